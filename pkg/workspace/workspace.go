// Package workspace provides the on-disk repository an extraction reads.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
)

// ErrNotRepository is returned when the materialized path is not a git repository.
var ErrNotRepository = errors.New("not a git repository")

// Workspace is a repository directory valid until Close.
// Close is idempotent and safe to defer on every path.
type Workspace struct {
	path    string
	cleanup func() error

	once     sync.Once
	closeErr error
}

// Path returns the repository directory.
func (w *Workspace) Path() string {
	return w.path
}

// Open opens a repository handle on the workspace. The caller frees it.
func (w *Workspace) Open() (*gitlib.Repository, error) {
	return gitlib.OpenRepository(w.path)
}

// Close releases the workspace.
func (w *Workspace) Close() error {
	w.once.Do(func() {
		if w.cleanup != nil {
			w.closeErr = w.cleanup()
		}
	})

	return w.closeErr
}

// Materializer makes a repository available on local disk.
type Materializer interface {
	Materialize(ctx context.Context, source string) (*Workspace, error)
}

// Local uses an existing repository in place. Close leaves it untouched.
type Local struct{}

// Materialize checks that source is a repository.
func (Local) Materialize(_ context.Context, source string) (*Workspace, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", source, err)
	}

	err = verify(abs)
	if err != nil {
		return nil, err
	}

	return &Workspace{path: abs}, nil
}

// TempCopy copies the repository into a private temporary directory that
// Close removes. Extraction then never races with writers of the source.
type TempCopy struct {
	// BaseDir holds the temporary directories. Empty means os.TempDir.
	BaseDir string
	Logger  *slog.Logger
}

// Materialize copies source.
func (t TempCopy) Materialize(ctx context.Context, source string) (*Workspace, error) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", source, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotRepository, source)
	}

	err = ctx.Err()
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(t.BaseDir, "githarvest-ws-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}

	remove := func() error {
		rmErr := os.RemoveAll(dir)
		if rmErr != nil {
			return fmt.Errorf("remove workspace %s: %w", dir, rmErr)
		}

		return nil
	}

	err = os.CopyFS(dir, os.DirFS(source))
	if err == nil {
		err = verify(dir)
	}

	if err != nil {
		return nil, errors.Join(fmt.Errorf("copy %s: %w", source, err), remove())
	}

	logger.DebugContext(ctx, "workspace materialized", "source", source, "path", dir)

	return &Workspace{path: dir, cleanup: remove}, nil
}

func verify(path string) error {
	repo, err := gitlib.OpenRepository(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotRepository, path, err)
	}

	repo.Free()

	return nil
}
