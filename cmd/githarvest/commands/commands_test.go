package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/githarvest/pkg/config"
	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib/gittest"
	"github.com/Sumatoshi-tech/githarvest/pkg/harvest"
	"github.com/Sumatoshi-tech/githarvest/pkg/records"
	"github.com/Sumatoshi-tech/githarvest/pkg/refstate"
	"github.com/Sumatoshi-tech/githarvest/pkg/scheduler"
	"github.com/Sumatoshi-tech/githarvest/pkg/sink"
)

type fixture struct {
	repo          *gittest.Repo
	configPath    string
	checkpointDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	checkpoints := filepath.Join(dir, "checkpoints")
	configPath := filepath.Join(dir, "githarvest.yaml")

	body := fmt.Sprintf(`extract:
  repo_id: 42
executor:
  kind: sequential
blame:
  mode: native
checkpoint:
  dir: %q
logging:
  level: error
`, checkpoints)
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o600))

	return &fixture{repo: gittest.New(t), configPath: configPath, checkpointDir: checkpoints}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := NewExtractCommand()
	if args[0] == "snapshot" {
		root = NewSnapshotCommand()
	}

	var stdout, stderr bytes.Buffer

	root.SetArgs(args[1:])
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(context.Background())

	return stdout.String(), stderr.String(), err
}

func readCommits(t *testing.T, path string) []records.Commit {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)

	defer f.Close()

	var commits []records.Commit

	err = sink.ReadJSONLines(f, false, func(kind records.Kind, raw json.RawMessage) error {
		if kind != records.KindCommit {
			return nil
		}

		var c records.Commit
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}

		commits = append(commits, c)

		return nil
	})
	require.NoError(t, err)

	return commits
}

func TestExtract_IncrementalWithCheckpoint(t *testing.T) {
	fx := newFixture(t)
	a := fx.repo.Commit(map[string]string{"main.go": "package main\n"})
	b := fx.repo.Commit(map[string]string{"main.go": "package main\n\nfunc main() {}\n"}, a)
	fx.repo.Branch("main", b)

	out := filepath.Join(t.TempDir(), "first.jsonl")

	_, summary, err := execute(t, "extract", "--config", fx.configPath, "--sink", out, "--no-color", fx.repo.Path())
	require.NoError(t, err)
	assert.Contains(t, summary, "Commits extracted")
	assert.Contains(t, summary, "extraction complete")

	commits := readCommits(t, out)
	require.Len(t, commits, 2)
	assert.Equal(t, int64(42), commits[0].RepoID)

	source, err := filepath.Abs(fx.repo.Path())
	require.NoError(t, err)

	saved, err := refstate.NewStore(fx.checkpointDir, source, 42).Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]gitlib.Hash{"main": b}, saved.Branches)

	c := fx.repo.Commit(map[string]string{"main.go": "package main\n\nfunc main() { println() }\n"}, b)
	fx.repo.Branch("main", c)

	out = filepath.Join(t.TempDir(), "second.jsonl")

	_, _, err = execute(t, "extract", "--config", fx.configPath, "--sink", out, fx.repo.Path())
	require.NoError(t, err)

	commits = readCommits(t, out)
	require.Len(t, commits, 1)
	assert.Equal(t, c, commits[0].CommitID)

	out = filepath.Join(t.TempDir(), "reset.jsonl")

	_, _, err = execute(t, "extract", "--config", fx.configPath, "--sink", out, "--reset", "--executor", "pool", fx.repo.Path())
	require.NoError(t, err)
	assert.Len(t, readCommits(t, out), 3)
}

func TestExtract_StdoutAndTempCopy(t *testing.T) {
	fx := newFixture(t)
	a := fx.repo.Commit(map[string]string{"a.txt": "a\n"})
	fx.repo.Branch("main", a)

	stdout, _, err := execute(t, "extract", "--config", fx.configPath, "--sink", "-", "--no-checkpoint", "--temp-copy",
		fx.repo.Path())
	require.NoError(t, err)

	kinds := map[records.Kind]int{}
	err = sink.ReadJSONLines(strings.NewReader(stdout), false, func(kind records.Kind, _ json.RawMessage) error {
		kinds[kind]++

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, kinds[records.KindCommit])
	assert.Equal(t, 1, kinds[records.KindPatch])
	assert.Equal(t, 1, kinds[records.KindCommitBranch])
	assert.NoDirExists(t, fx.checkpointDir)
}

func TestExtract_InvalidFlag(t *testing.T) {
	fx := newFixture(t)

	_, _, err := execute(t, "extract", "--config", fx.configPath, "--executor", "threads", fx.repo.Path())
	require.ErrorIs(t, err, config.ErrInvalidExecutor)
}

func TestExtract_NotARepositoryLeavesNoCheckpoint(t *testing.T) {
	fx := newFixture(t)

	_, _, err := execute(t, "extract", "--config", fx.configPath, "--sink", "-", t.TempDir())
	require.Error(t, err)
	assert.NoDirExists(t, fx.checkpointDir)
}

func TestSnapshot_ComparesWithCheckpoint(t *testing.T) {
	fx := newFixture(t)
	a := fx.repo.Commit(map[string]string{"a.txt": "a\n"})
	fx.repo.Branch("main", a)
	fx.repo.Tag("v1", a)

	stdout, _, err := execute(t, "snapshot", "--config", fx.configPath, fx.repo.Path())
	require.NoError(t, err)

	var report snapshotReport

	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.False(t, report.UpToDate)
	assert.Nil(t, report.Checkpoint)
	assert.Equal(t, []string{"main"}, report.NewBranches)
	assert.Equal(t, map[string]gitlib.Hash{"v1": a}, report.Current.Tags)

	_, _, err = execute(t, "extract", "--config", fx.configPath, "--sink", "-", fx.repo.Path())
	require.NoError(t, err)

	stdout, _, err = execute(t, "snapshot", "--config", fx.configPath, fx.repo.Path())
	require.NoError(t, err)

	report = snapshotReport{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.True(t, report.UpToDate)
	assert.Empty(t, report.NewBranches)

	b := fx.repo.Commit(map[string]string{"a.txt": "b\n"}, a)
	fx.repo.Branch("dev", b)

	stdout, _, err = execute(t, "snapshot", "--config", fx.configPath, "--format", "table", "--no-color", fx.repo.Path())
	require.NoError(t, err)
	assert.Contains(t, stdout, "dev")
	assert.Contains(t, stdout, refNew)
	assert.Contains(t, stdout, refUnchanged)
	assert.Contains(t, stdout, "checkpoint out of date")

	stdout, _, err = execute(t, "snapshot", "--config", fx.configPath, "--forget", fx.repo.Path())
	require.NoError(t, err)
	assert.Contains(t, stdout, "checkpoint removed")
	assert.NoDirExists(t, strings.TrimSpace(strings.TrimPrefix(stdout, "checkpoint removed:")))
}

func TestSnapshot_UnknownFormat(t *testing.T) {
	fx := newFixture(t)

	_, _, err := execute(t, "snapshot", "--config", fx.configPath, "--format", "xml", fx.repo.Path())
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestRefStatus(t *testing.T) {
	t.Parallel()

	x := gitlib.NewHash(strings.Repeat("1", gitlib.HashHexSize))
	y := gitlib.NewHash(strings.Repeat("2", gitlib.HashHexSize))

	current := map[string]gitlib.Hash{"same": x, "moved": y, "added": x}
	prev := map[string]gitlib.Hash{"same": x, "moved": x, "gone": y}

	assert.Equal(t, refUnchanged, refStatus("same", current, prev))
	assert.Equal(t, refMoved, refStatus("moved", current, prev))
	assert.Equal(t, refNew, refStatus("added", current, prev))
	assert.Equal(t, refDeleted, refStatus("gone", current, prev))
}

func TestRenderSummary_ListsFailures(t *testing.T) {
	t.Parallel()

	failed := make([]gitlib.Hash, 0, maxListedFailures+2)
	for i := range maxListedFailures + 2 {
		failed = append(failed, gitlib.NewHash(fmt.Sprintf("%040x", i+1)))
	}

	res := harvest.Result{
		Snapshot: refstate.Empty(),
		Summary:  scheduler.Summary{Processed: 1200, Failed: len(failed), FailedIDs: failed},
	}

	var buf bytes.Buffer

	renderSummary(&buf, res, map[records.Kind]int{records.KindPatch: 3400}, true)

	out := buf.String()
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "3,400")
	assert.Contains(t, out, "12 commits failed")
	assert.Contains(t, out, failed[0].String())
	assert.NotContains(t, out, failed[maxListedFailures].String())
	assert.Contains(t, out, "... and 2 more")
}

func TestCountingSink(t *testing.T) {
	t.Parallel()

	mem := sink.NewMemory()
	s := newCountingSink(mem)

	require.NoError(t, s.Write(context.Background(), records.KindCommit, records.Commit{}))
	require.NoError(t, s.Write(context.Background(), records.KindPatch, records.Patch{}))
	require.NoError(t, s.Write(context.Background(), records.KindPatch, records.Patch{}))

	assert.Equal(t, map[records.Kind]int{records.KindCommit: 1, records.KindPatch: 2}, s.counts())
	assert.Len(t, mem.Entries(), 3)
}
