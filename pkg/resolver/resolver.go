// Package resolver computes the set of commits an incremental extraction
// still has to process.
package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
	"github.com/Sumatoshi-tech/githarvest/pkg/refstate"
)

// Walker walks the ancestry of pushed commits, oldest first, excluding
// hidden commits and their ancestors.
type Walker interface {
	Push(h gitlib.Hash) error
	Hide(h gitlib.Hash) error
	Next() (gitlib.Hash, error)
	Free()
}

// Graph is the commit graph capability the resolver needs.
type Graph interface {
	NewWalk() (Walker, error)
	AuthorTime(ctx context.Context, h gitlib.Hash) (time.Time, error)
}

// NewGraph adapts a repository to Graph.
func NewGraph(repo *gitlib.Repository) Graph {
	return repoGraph{repo: repo}
}

type repoGraph struct {
	repo *gitlib.Repository
}

func (g repoGraph) NewWalk() (Walker, error) {
	walk, err := g.repo.Walk()
	if err != nil {
		return nil, err
	}

	walk.OldestFirst()

	return walk, nil
}

func (g repoGraph) AuthorTime(ctx context.Context, h gitlib.Hash) (time.Time, error) {
	return g.repo.AuthorTime(ctx, h)
}

// SeenSet holds commit ids already handed out during this process.
type SeenSet map[gitlib.Hash]struct{}

// Has reports whether h was seen.
func (s SeenSet) Has(h gitlib.Hash) bool {
	_, ok := s[h]

	return ok
}

// Add marks h as seen.
func (s SeenSet) Add(h gitlib.Hash) {
	s[h] = struct{}{}
}

// Remove forgets h so a later resolution yields it again.
func (s SeenSet) Remove(h gitlib.Hash) {
	delete(s, h)
}

// Options tune a resolution.
type Options struct {
	// Previous is the snapshot of the last successful run. Nil means every
	// reachable commit is new.
	Previous *refstate.Snapshot
	// Seen is shared across resolutions in one process. Commits in it are
	// skipped, and every yielded commit is added to it.
	Seen SeenSet
	// WindowDays limits yielded commits to those authored in the last
	// WindowDays days. Zero disables the limit.
	WindowDays int
	// Now is the reference point of the window. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Iterator yields the resolved commit ids lazily. It is single-pass and
// must not be used from more than one goroutine.
type Iterator struct {
	ctx    context.Context
	graph  Graph
	heads  []gitlib.Hash
	tails  []gitlib.Hash
	seen   SeenSet
	cutoff time.Time
	logger *slog.Logger

	next   int
	walk   Walker
	walked []gitlib.Hash
	done   bool
}

// Resolve prepares the walk over current's heads. Nothing is read from the
// graph until Next is called.
func Resolve(ctx context.Context, graph Graph, current *refstate.Snapshot, opts Options) *Iterator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	seen := opts.Seen
	if seen == nil {
		seen = SeenSet{}
	}

	it := &Iterator{
		ctx:    ctx,
		graph:  graph,
		heads:  current.Heads(),
		tails:  opts.Previous.CommitIDs(),
		seen:   seen,
		logger: logger,
	}

	if opts.WindowDays > 0 {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}

		it.cutoff = now().AddDate(0, 0, -opts.WindowDays)
	}

	return it
}

// Next returns the next commit to extract, or io.EOF once every head has
// been walked. Parents are returned before their children.
func (it *Iterator) Next() (gitlib.Hash, error) {
	for !it.done {
		err := it.ctx.Err()
		if err != nil {
			it.Close()

			return gitlib.Hash{}, err
		}

		if it.walk == nil && !it.startNextHead() {
			continue
		}

		h, err := it.walk.Next()
		if errors.Is(err, io.EOF) {
			it.finishHead()

			continue
		}

		if err != nil {
			it.logger.Warn("ancestor walk failed, moving to next head", "error", err)
			it.finishHead()

			continue
		}

		if it.seen.Has(h) || !it.inWindow(h) {
			continue
		}

		it.seen.Add(h)

		return h, nil
	}

	return gitlib.Hash{}, io.EOF
}

// Collect drains the iterator into a slice.
func (it *Iterator) Collect() ([]gitlib.Hash, error) {
	var out []gitlib.Hash

	for {
		h, err := it.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}

		if err != nil {
			return out, err
		}

		out = append(out, h)
	}
}

// Close releases the active walker. Further calls to Next return io.EOF.
func (it *Iterator) Close() {
	if it.walk != nil {
		it.walk.Free()
		it.walk = nil
	}

	it.done = true
}

// startNextHead sets up a fresh walk for the next head. It returns false
// when the head could not be walked or no heads remain.
func (it *Iterator) startNextHead() bool {
	if it.next >= len(it.heads) {
		it.done = true

		return false
	}

	head := it.heads[it.next]
	it.next++

	walk, err := it.graph.NewWalk()
	if err != nil {
		it.logger.Warn("cannot create ancestor walk", "head", head.String(), "error", err)

		return false
	}

	err = walk.Push(head)
	if err != nil {
		it.logger.Warn("cannot walk head, skipping", "head", head.String(), "error", err)
		walk.Free()

		return false
	}

	for _, tail := range it.tails {
		hideErr := walk.Hide(tail)
		if hideErr != nil {
			it.logger.Warn("cannot hide known tail, walking past it", "tail", tail.String(), "error", hideErr)
		}
	}

	// Everything reachable from an earlier head was already traversed,
	// yielded or not.
	for _, prev := range it.walked {
		hideErr := walk.Hide(prev)
		if hideErr != nil {
			it.logger.Warn("cannot hide walked head", "head", prev.String(), "error", hideErr)
		}
	}

	it.walked = append(it.walked, head)
	it.walk = walk

	return true
}

func (it *Iterator) finishHead() {
	if it.walk != nil {
		it.walk.Free()
		it.walk = nil
	}
}

func (it *Iterator) inWindow(h gitlib.Hash) bool {
	if it.cutoff.IsZero() {
		return true
	}

	when, err := it.graph.AuthorTime(it.ctx, h)
	if err != nil {
		// Let extraction surface the broken commit.
		it.logger.Warn("cannot read author time", "commit", h.String(), "error", err)

		return true
	}

	return !when.Before(it.cutoff)
}
