package gitlib

import (
	"fmt"
	"io"

	git2go "github.com/libgit2/git2go/v34"
)

// RevWalk wraps a libgit2 revision walker.
type RevWalk struct {
	walk *git2go.RevWalk
	repo *Repository
}

// Push adds a commit to start walking from.
func (w *RevWalk) Push(hash Hash) error {
	err := w.walk.Push(hash.ToOid())
	if err != nil {
		return fmt.Errorf("push %s to revwalk: %w", hash, err)
	}

	return nil
}

// Hide marks a commit and all of its ancestors as uninteresting.
// Ancestors still reachable through another pushed, unhidden commit
// are hidden too once they are reachable from the hidden one.
func (w *RevWalk) Hide(hash Hash) error {
	err := w.walk.Hide(hash.ToOid())
	if err != nil {
		return fmt.Errorf("hide %s in revwalk: %w", hash, err)
	}

	return nil
}

// OldestFirst sorts the walk so that parents are yielded before their
// children and older commits before newer ones.
func (w *RevWalk) OldestFirst() {
	w.walk.Sorting(git2go.SortTopological | git2go.SortTime | git2go.SortReverse)
}

// Next returns the next commit hash in the walk, or io.EOF when done.
func (w *RevWalk) Next() (Hash, error) {
	oid := new(git2go.Oid)

	nextErr := w.walk.Next(oid)
	if nextErr != nil {
		if git2go.IsErrorCode(nextErr, git2go.ErrorCodeIterOver) {
			return Hash{}, io.EOF
		}

		return Hash{}, fmt.Errorf("revwalk next: %w", nextErr)
	}

	return HashFromOid(oid), nil
}

// Free releases the walker resources.
func (w *RevWalk) Free() {
	if w.walk != nil {
		w.walk.Free()
		w.walk = nil
	}
}
