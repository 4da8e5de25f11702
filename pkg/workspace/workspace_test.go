package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib/gittest"
	"github.com/Sumatoshi-tech/githarvest/pkg/workspace"
)

func TestLocal_UsesPathInPlace(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	id := fixture.Commit(map[string]string{"a.txt": "a\n"})
	fixture.Branch("main", id)

	ws, err := workspace.Local{}.Materialize(context.Background(), fixture.Path())
	require.NoError(t, err)

	want, err := filepath.Abs(fixture.Path())
	require.NoError(t, err)
	assert.Equal(t, want, ws.Path())

	repo, err := ws.Open()
	require.NoError(t, err)
	repo.Free()

	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close())
	assert.DirExists(t, fixture.Path())
}

func TestLocal_RejectsNonRepository(t *testing.T) {
	t.Parallel()

	_, err := workspace.Local{}.Materialize(context.Background(), t.TempDir())
	require.ErrorIs(t, err, workspace.ErrNotRepository)
}

func TestTempCopy_CopiesAndRemoves(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	id := fixture.Commit(map[string]string{"a.txt": "a\n"})
	fixture.Branch("main", id)

	base := t.TempDir()

	ws, err := workspace.TempCopy{BaseDir: base}.Materialize(context.Background(), fixture.Path())
	require.NoError(t, err)
	assert.NotEqual(t, fixture.Path(), ws.Path())

	repo, err := ws.Open()
	require.NoError(t, err)

	commit, err := repo.LookupCommit(context.Background(), id)
	require.NoError(t, err)
	commit.Free()
	repo.Free()

	require.NoError(t, ws.Close())
	assert.NoDirExists(t, ws.Path())
	require.NoError(t, ws.Close())
	assert.DirExists(t, fixture.Path())
}

func TestTempCopy_CleansUpOnFailure(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "README"), []byte("plain dir\n"), 0o600))

	base := t.TempDir()

	_, err := workspace.TempCopy{BaseDir: base}.Materialize(context.Background(), src)
	require.ErrorIs(t, err, workspace.ErrNotRepository)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTempCopy_MissingSource(t *testing.T) {
	t.Parallel()

	_, err := workspace.TempCopy{BaseDir: t.TempDir()}.Materialize(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestTempCopy_CanceledContext(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	base := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := workspace.TempCopy{BaseDir: base}.Materialize(ctx, fixture.Path())
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
