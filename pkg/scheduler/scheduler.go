// Package scheduler applies a per-commit unit of work to every commit of a
// source, sequentially or on a bounded pool of workers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
)

// ErrPanic wraps a panic recovered from a unit.
var ErrPanic = errors.New("unit panicked")

// Source yields commit ids until io.EOF. *resolver.Iterator satisfies it.
type Source interface {
	Next() (gitlib.Hash, error)
}

// Opener opens a repository handle owned by one worker.
type Opener func() (*gitlib.Repository, error)

// Unit processes one commit using the calling worker's repository handle.
// Once started a unit runs to completion.
type Unit func(ctx context.Context, repo *gitlib.Repository, id gitlib.Hash) error

// Summary counts the units of one run.
type Summary struct {
	Processed int
	Failed    int
	FailedIDs []gitlib.Hash
}

// Executor runs unit for every commit of src. A failing unit is logged and
// counted; only setup failures and cancellation end the run early.
type Executor interface {
	Run(ctx context.Context, open Opener, src Source, unit Unit) (Summary, error)
}

// tally is a concurrency-safe Summary builder.
type tally struct {
	mu  sync.Mutex
	sum Summary
}

func (t *tally) record(id gitlib.Hash, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.sum.Failed++
		t.sum.FailedIDs = append(t.sum.FailedIDs, id)

		return
	}

	t.sum.Processed++
}

func (t *tally) summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.sum
}

// runUnit calls unit and converts a panic into an error.
func runUnit(ctx context.Context, unit Unit, repo *gitlib.Repository, id gitlib.Hash, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)

			logger.Error("commit extraction panicked", "commit", id.String(), "panic", r, "stack", string(debug.Stack()))
		}
	}()

	err = unit(ctx, repo, id)
	if err != nil {
		logger.Error("commit extraction failed", "commit", id.String(), "error", err)
	}

	return err
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}

	return slog.Default()
}

// Sequential runs every unit on the calling goroutine with one repository handle.
type Sequential struct {
	Logger *slog.Logger
}

// Run implements Executor.
func (s Sequential) Run(ctx context.Context, open Opener, src Source, unit Unit) (Summary, error) {
	logger := loggerOrDefault(s.Logger)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	repo, err := open()
	if err != nil {
		return Summary{}, fmt.Errorf("open repository: %w", err)
	}
	defer repo.Free()

	var t tally

	for {
		err = ctx.Err()
		if err != nil {
			return t.summary(), err
		}

		id, nextErr := src.Next()
		if errors.Is(nextErr, io.EOF) {
			return t.summary(), nil
		}

		if nextErr != nil {
			return t.summary(), fmt.Errorf("next commit: %w", nextErr)
		}

		t.record(id, runUnit(ctx, unit, repo, id, logger))
	}
}

// Pool runs units on Workers goroutines. A single producer drains the source;
// every worker opens its own repository handle and stays on one OS thread.
type Pool struct {
	// Workers bounds concurrency. Zero or less means runtime.NumCPU.
	Workers int
	Logger  *slog.Logger
}

// Run implements Executor.
func (p Pool) Run(ctx context.Context, open Opener, src Source, unit Unit) (Summary, error) {
	logger := loggerOrDefault(p.Logger)

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var t tally

	g, gctx := errgroup.WithContext(ctx)
	ids := make(chan gitlib.Hash, workers)

	g.Go(func() error {
		defer close(ids)

		for {
			id, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}

			if err != nil {
				return fmt.Errorf("next commit: %w", err)
			}

			select {
			case ids <- id:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	for range workers {
		g.Go(func() error {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			repo, err := open()
			if err != nil {
				return fmt.Errorf("open repository: %w", err)
			}
			defer repo.Free()

			for id := range ids {
				if gctx.Err() != nil {
					return gctx.Err()
				}

				t.record(id, runUnit(gctx, unit, repo, id, logger))
			}

			return nil
		})
	}

	err := g.Wait()

	return t.summary(), err
}
