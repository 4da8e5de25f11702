package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/githarvest/pkg/config"
	"github.com/Sumatoshi-tech/githarvest/pkg/extract"
	"github.com/Sumatoshi-tech/githarvest/pkg/harvest"
	"github.com/Sumatoshi-tech/githarvest/pkg/lineage"
	"github.com/Sumatoshi-tech/githarvest/pkg/observability"
	"github.com/Sumatoshi-tech/githarvest/pkg/records"
	"github.com/Sumatoshi-tech/githarvest/pkg/refstate"
	"github.com/Sumatoshi-tech/githarvest/pkg/scheduler"
	"github.com/Sumatoshi-tech/githarvest/pkg/sink"
	"github.com/Sumatoshi-tech/githarvest/pkg/workspace"
)

// ExtractCommand holds the flags of "githarvest extract".
type ExtractCommand struct {
	configPath    string
	repoID        int64
	executor      string
	workers       int
	sinkURL       string
	lz4           bool
	windowDays    int
	blameMode     string
	checkpointDir string
	noCheckpoint  bool
	reset         bool
	tempCopy      bool
	noColor       bool
}

// NewExtractCommand creates the extract command.
func NewExtractCommand() *cobra.Command {
	ec := &ExtractCommand{}

	cmd := &cobra.Command{
		Use:   "extract <repo-path>",
		Short: "Extract history added since the last run",
		Long: `Extract commits, patches, rewrite lineage and branch membership that
appeared since the last successful run, then save the reference state as
the next checkpoint.

Sinks: "-" (JSON lines on stdout), a file path, sqlite:///<path>
(sqlite:////abs/path for absolute paths) or postgres://...`,
		Args: cobra.ExactArgs(1),
		RunE: ec.run,
	}

	cmd.Flags().StringVarP(&ec.configPath, "config", "c", "", "Config file (default .githarvest.yaml in . or $HOME)")
	cmd.Flags().Int64Var(&ec.repoID, "repo-id", 0, "Repository id stamped on every record")
	cmd.Flags().StringVar(&ec.executor, "executor", "", "Executor: sequential or pool")
	cmd.Flags().IntVarP(&ec.workers, "workers", "w", 0, "Pool workers (0 = CPU count)")
	cmd.Flags().StringVarP(&ec.sinkURL, "sink", "o", "", "Output sink")
	cmd.Flags().BoolVar(&ec.lz4, "lz4", false, "Compress JSON lines output with lz4")
	cmd.Flags().IntVar(&ec.windowDays, "window-days", 0, "Only extract commits authored in the last N days (0 = all)")
	cmd.Flags().StringVar(&ec.blameMode, "blame", "", "Blame implementation: process or native")
	cmd.Flags().StringVar(&ec.checkpointDir, "checkpoint-dir", "", "Checkpoint directory (default ~/.githarvest/checkpoints)")
	cmd.Flags().BoolVar(&ec.noCheckpoint, "no-checkpoint", false, "Neither load nor save the checkpoint")
	cmd.Flags().BoolVar(&ec.reset, "reset", false, "Ignore the saved checkpoint and extract the full history")
	cmd.Flags().BoolVar(&ec.tempCopy, "temp-copy", false, "Extract from a private temporary copy of the repository")
	cmd.Flags().BoolVar(&ec.noColor, "no-color", false, "Disable colored summary output")

	return cmd
}

func (ec *ExtractCommand) override(cmd *cobra.Command) func(*config.Config) {
	flags := cmd.Flags()

	return func(cfg *config.Config) {
		if flags.Changed("repo-id") {
			cfg.Extract.RepoID = ec.repoID
		}

		if flags.Changed("executor") {
			cfg.Executor.Kind = ec.executor
		}

		if flags.Changed("workers") {
			cfg.Executor.Workers = ec.workers
		}

		if flags.Changed("sink") {
			cfg.Sink.URL = ec.sinkURL
		}

		if flags.Changed("lz4") {
			cfg.Sink.LZ4 = ec.lz4
		}

		if flags.Changed("window-days") {
			cfg.Extract.WindowDays = ec.windowDays
		}

		if flags.Changed("blame") {
			cfg.Blame.Mode = ec.blameMode
		}

		if flags.Changed("checkpoint-dir") {
			cfg.Checkpoint.Dir = ec.checkpointDir
		}

		if ec.noCheckpoint {
			cfg.Checkpoint.Enabled = false
		}
	}
}

func (ec *ExtractCommand) run(cmd *cobra.Command, args []string) (err error) {
	env, err := setup(cmd, ec.configPath, ec.override(cmd))
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, env.close()) }()

	ctx := cmd.Context()
	cfg := env.cfg
	logger := env.logger

	source, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve repository path: %w", err)
	}

	ignore, err := extract.NewIgnoreSpec(cfg.Extract.Ignore, cfg.Extract.IgnoreVendor)
	if err != nil {
		return err
	}

	metrics, err := observability.NewExtractionMetrics(env.providers.Meter)
	if err != nil {
		return err
	}

	var materializer workspace.Materializer = workspace.Local{}
	if ec.tempCopy {
		materializer = workspace.TempCopy{Logger: logger}
	}

	ws, err := materializer.Materialize(ctx, source)
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, ws.Close()) }()

	checkpointDir := cfg.Checkpoint.Dir
	if checkpointDir == "" {
		checkpointDir = refstate.DefaultDir()
	}

	// The checkpoint is keyed by the source path, not the temporary copy.
	store := refstate.NewStore(checkpointDir, source, cfg.Extract.RepoID)

	previous, err := ec.loadCheckpoint(store, cfg.Checkpoint.Enabled)
	if err != nil {
		return err
	}

	out, err := sink.Open(ctx, cfg.Sink.URL, cfg.Sink.LZ4, cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}

	counted := newCountingSink(out)

	res, runErr := harvest.Run(ctx, harvest.Params{
		RepoID:     cfg.Extract.RepoID,
		Path:       ws.Path(),
		Previous:   previous,
		Sink:       counted,
		Executor:   newExecutor(cfg.Executor, logger),
		Ignore:     ignore,
		WindowDays: cfg.Extract.WindowDays,
		Blamer:     newBlamer(cfg.Blame, logger),
		TabSize:    cfg.Extract.TabSize,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     env.providers.Tracer,
	})

	// Records must be flushed before the checkpoint may advance.
	closeErr := out.Close()
	if runErr != nil || closeErr != nil {
		return errors.Join(runErr, closeErr)
	}

	if cfg.Checkpoint.Enabled {
		err = store.Save(res.Checkpoint)
		if err != nil {
			return err
		}

		logger.DebugContext(ctx, "checkpoint saved", "dir", store.Dir())
	}

	renderSummary(cmd.ErrOrStderr(), res, counted.counts(), ec.noColor)

	return nil
}

func (ec *ExtractCommand) loadCheckpoint(store *refstate.Store, enabled bool) (*refstate.Snapshot, error) {
	if !enabled {
		return nil, nil
	}

	if ec.reset {
		return nil, nil
	}

	prev, err := store.Load()
	if errors.Is(err, refstate.ErrNoCheckpoint) {
		return nil, nil
	}

	return prev, err
}

func newExecutor(cfg config.ExecutorConfig, logger *slog.Logger) scheduler.Executor {
	if cfg.Kind == config.ExecutorSequential {
		return scheduler.Sequential{Logger: logger}
	}

	return scheduler.Pool{Workers: cfg.Workers, Logger: logger}
}

func newBlamer(cfg config.BlameConfig, logger *slog.Logger) lineage.Blamer {
	if cfg.Mode == config.BlameNative {
		return lineage.NativeBlamer{}
	}

	return lineage.ProcessBlamer{Binary: cfg.Binary, Timeout: cfg.Timeout, Logger: logger}
}

// countingSink counts the records that reached the wrapped sink.
type countingSink struct {
	next records.Sink

	mu sync.Mutex
	n  map[records.Kind]int
}

func newCountingSink(next records.Sink) *countingSink {
	return &countingSink{next: next, n: map[records.Kind]int{}}
}

func (s *countingSink) Write(ctx context.Context, kind records.Kind, record any) error {
	err := s.next.Write(ctx, kind, record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.n[kind]++
	s.mu.Unlock()

	return nil
}

func (s *countingSink) counts() map[records.Kind]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return maps.Clone(s.n)
}
