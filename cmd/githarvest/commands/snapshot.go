package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/githarvest/pkg/config"
	"github.com/Sumatoshi-tech/githarvest/pkg/refstate"
	"github.com/Sumatoshi-tech/githarvest/pkg/workspace"
)

// Snapshot output formats.
const (
	FormatJSON  = "json"
	FormatTable = "table"
)

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

// SnapshotCommand holds the flags of "githarvest snapshot".
type SnapshotCommand struct {
	configPath    string
	repoID        int64
	checkpointDir string
	format        string
	forget        bool
	noColor       bool
}

// snapshotReport is the JSON form of the snapshot command.
type snapshotReport struct {
	Repository    string             `json:"repository"`
	Current       *refstate.Snapshot `json:"current"`
	Checkpoint    *refstate.Snapshot `json:"checkpoint,omitempty"`
	NewBranches   []string           `json:"new_branches"`
	UpToDate      bool               `json:"up_to_date"`
	CheckpointDir string             `json:"checkpoint_dir"`
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand() *cobra.Command {
	sc := &SnapshotCommand{}

	cmd := &cobra.Command{
		Use:   "snapshot <repo-path>",
		Short: "Print the current reference state and compare it with the checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  sc.run,
	}

	cmd.Flags().StringVarP(&sc.configPath, "config", "c", "", "Config file (default .githarvest.yaml in . or $HOME)")
	cmd.Flags().Int64Var(&sc.repoID, "repo-id", 0, "Repository id the checkpoint belongs to")
	cmd.Flags().StringVar(&sc.checkpointDir, "checkpoint-dir", "", "Checkpoint directory (default ~/.githarvest/checkpoints)")
	cmd.Flags().StringVarP(&sc.format, "format", "f", FormatJSON, "Output format: json or table")
	cmd.Flags().BoolVar(&sc.forget, "forget", false, "Delete the saved checkpoint")
	cmd.Flags().BoolVar(&sc.noColor, "no-color", false, "Disable colored table output")

	return cmd
}

func (sc *SnapshotCommand) run(cmd *cobra.Command, args []string) (err error) {
	if sc.format != FormatJSON && sc.format != FormatTable {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, sc.format)
	}

	flags := cmd.Flags()

	env, err := setup(cmd, sc.configPath, func(cfg *config.Config) {
		if flags.Changed("repo-id") {
			cfg.Extract.RepoID = sc.repoID
		}

		if flags.Changed("checkpoint-dir") {
			cfg.Checkpoint.Dir = sc.checkpointDir
		}
	})
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, env.close()) }()

	source, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve repository path: %w", err)
	}

	dir := env.cfg.Checkpoint.Dir
	if dir == "" {
		dir = refstate.DefaultDir()
	}

	store := refstate.NewStore(dir, source, env.cfg.Extract.RepoID)

	if sc.forget {
		err = store.Clear()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "checkpoint removed: %s\n", store.Dir())

		return nil
	}

	ws, err := workspace.Local{}.Materialize(cmd.Context(), source)
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, ws.Close()) }()

	repo, err := ws.Open()
	if err != nil {
		return err
	}
	defer repo.Free()

	current := refstate.Capture(repo, env.logger)

	checkpoint, err := store.Load()
	if err != nil && !errors.Is(err, refstate.ErrNoCheckpoint) {
		return err
	}

	report := snapshotReport{
		Repository:    source,
		Current:       current,
		Checkpoint:    checkpoint,
		NewBranches:   current.NewBranches(checkpoint),
		UpToDate:      checkpoint != nil && current.Equal(checkpoint),
		CheckpointDir: store.Dir(),
	}

	if sc.format == FormatTable {
		renderRefs(cmd.OutOrStdout(), report, sc.noColor)

		return nil
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(report)
}
