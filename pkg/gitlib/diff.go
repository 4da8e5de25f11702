package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// initialHunkCapacity is the initial capacity for per-file hunk slices.
const initialHunkCapacity = 4

// LineOrigin classifies a line inside a hunk.
type LineOrigin int

const (
	// LineContext means the line is unchanged.
	LineContext LineOrigin = iota
	// LineAdded means the line exists only in the new file.
	LineAdded
	// LineDeleted means the line exists only in the old file.
	LineDeleted
)

// Line is one line of a hunk. OldLineno is set for context and deleted
// lines, NewLineno for context and added lines; both are 1-based.
type Line struct {
	Origin    LineOrigin
	OldLineno int
	NewLineno int
	Content   string
}

// Hunk is a contiguous block of changed lines within a file diff.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// FilePatch is the diff of a single file between two trees.
type FilePatch struct {
	Status  byte
	OldPath string
	NewPath string
	OldHash Hash
	NewHash Hash
	OldSize int64
	NewSize int64
	Binary  bool
	Hunks   []Hunk
}

// Diff wraps a libgit2 diff.
type Diff struct {
	diff *git2go.Diff
}

// NumDeltas returns the number of deltas in the diff.
func (d *Diff) NumDeltas() (int, error) {
	numDeltas, err := d.diff.NumDeltas()
	if err != nil {
		return 0, fmt.Errorf("get num deltas: %w", err)
	}

	return numDeltas, nil
}

// Patches materialises every delta of the diff with its hunks and lines.
// Unmodified, ignored, untracked and unreadable deltas are skipped.
func (d *Diff) Patches() ([]FilePatch, error) {
	numDeltas, err := d.NumDeltas()
	if err != nil {
		return nil, err
	}

	patches := make([]FilePatch, 0, numDeltas)

	err = d.diff.ForEach(func(delta git2go.DiffDelta, _ float64) (git2go.DiffForEachHunkCallback, error) {
		status, keep := statusChar(delta.Status)
		if !keep {
			return nil, nil
		}

		patches = append(patches, FilePatch{
			Status:  status,
			OldPath: delta.OldFile.Path,
			NewPath: delta.NewFile.Path,
			OldHash: HashFromOid(delta.OldFile.Oid),
			NewHash: HashFromOid(delta.NewFile.Oid),
			OldSize: int64(delta.OldFile.Size),
			NewSize: int64(delta.NewFile.Size),
			Binary:  isBinary(delta),
			Hunks:   make([]Hunk, 0, initialHunkCapacity),
		})
		current := &patches[len(patches)-1]

		return func(hunk git2go.DiffHunk) (git2go.DiffForEachLineCallback, error) {
			current.Hunks = append(current.Hunks, Hunk{
				OldStart: hunk.OldStart,
				OldLines: hunk.OldLines,
				NewStart: hunk.NewStart,
				NewLines: hunk.NewLines,
			})
			h := &current.Hunks[len(current.Hunks)-1]

			return func(line git2go.DiffLine) error {
				switch line.Origin {
				case git2go.DiffLineContext:
					h.Lines = append(h.Lines, Line{
						Origin: LineContext, OldLineno: line.OldLineno, NewLineno: line.NewLineno, Content: line.Content,
					})
				case git2go.DiffLineAddition:
					h.Lines = append(h.Lines, Line{Origin: LineAdded, NewLineno: line.NewLineno, Content: line.Content})
				case git2go.DiffLineDeletion:
					h.Lines = append(h.Lines, Line{Origin: LineDeleted, OldLineno: line.OldLineno, Content: line.Content})
				case git2go.DiffLineBinary:
					current.Binary = true
				case git2go.DiffLineContextEOFNL,
					git2go.DiffLineAddEOFNL,
					git2go.DiffLineDelEOFNL,
					git2go.DiffLineFileHdr,
					git2go.DiffLineHunkHdr:
				}

				return nil
			}, nil
		}, nil
	}, git2go.DiffDetailLines)
	if err != nil {
		return nil, fmt.Errorf("diff foreach: %w", err)
	}

	return patches, nil
}

// Free releases the diff resources.
func (d *Diff) Free() {
	if d.diff == nil {
		return
	}

	err := d.diff.Free()
	d.diff = nil
	// Consume error - Free() errors are non-actionable in cleanup.
	if err != nil {
		return
	}
}

func isBinary(delta git2go.DiffDelta) bool {
	return delta.Flags&git2go.DiffFlagBinary != 0 ||
		delta.OldFile.Flags&git2go.DiffFlagBinary != 0 ||
		delta.NewFile.Flags&git2go.DiffFlagBinary != 0
}

// statusChar maps a libgit2 delta status to the git status letter.
// The second result is false for statuses that carry no change.
func statusChar(status git2go.Delta) (byte, bool) {
	switch status {
	case git2go.DeltaAdded:
		return 'A', true
	case git2go.DeltaDeleted:
		return 'D', true
	case git2go.DeltaModified:
		return 'M', true
	case git2go.DeltaRenamed:
		return 'R', true
	case git2go.DeltaCopied:
		return 'C', true
	case git2go.DeltaTypeChange:
		return 'T', true
	case git2go.DeltaConflicted:
		return 'U', true
	case git2go.DeltaUnmodified, git2go.DeltaIgnored, git2go.DeltaUntracked, git2go.DeltaUnreadable:
		return 0, false
	}

	return 'X', true
}
