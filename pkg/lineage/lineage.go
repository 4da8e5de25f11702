// Package lineage attributes the lines a patch deletes to the commits that
// introduced them.
package lineage

import (
	"context"
	"log/slog"
	"slices"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
)

// Input describes one file patch of one commit.
type Input struct {
	// Parent is the commit the patch was diffed against.
	Parent gitlib.Hash
	// Merge is set when the patched commit has more than one parent.
	Merge bool
	// Root is set when the patched commit has no parents.
	Root  bool
	Patch *gitlib.FilePatch
}

// Rewrite is the number of deleted lines last touched by one earlier commit.
type Rewrite struct {
	Commit gitlib.Hash
	Author gitlib.Signature
	Lines  int
}

// Result summarises the rewrites of one patch.
type Result struct {
	// Rewrites holds one entry per distinct commit, ordered by commit id.
	Rewrites []Rewrite
	// Lines is the total number of attributed deleted lines.
	Lines int
	// Degraded is set when blame failed and the result is empty for that reason.
	Degraded bool
}

// Count returns the number of distinct rewritten commits.
func (r Result) Count() int {
	return len(r.Rewrites)
}

// Detector runs blame on the parent side of patches.
type Detector struct {
	blamer Blamer
	logger *slog.Logger
}

// NewDetector creates a detector. A nil blamer means ProcessBlamer with defaults.
func NewDetector(blamer Blamer, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}

	if blamer == nil {
		blamer = ProcessBlamer{Logger: logger}
	}

	return &Detector{blamer: blamer, logger: logger}
}

// Skip reports whether in can never carry rewrites: merge and root commit
// patches, pure additions, binary patches and patches without hunks.
func Skip(in Input) bool {
	p := in.Patch

	return in.Merge || in.Root || p == nil || p.Status == 'A' || p.Binary || len(p.Hunks) == 0
}

// Detect blames the parent version of the patched file and tallies deleted
// lines per attributing commit.
func (d *Detector) Detect(ctx context.Context, repo *gitlib.Repository, in Input) Result {
	if Skip(in) {
		return Result{}
	}

	blame, err := d.blamer.Blame(ctx, repo, in.Parent, in.Patch.OldPath)
	if err != nil {
		d.logger.Warn("blame failed, no rewrites recorded",
			"parent", in.Parent.String(), "path", in.Patch.OldPath, "error", err)

		return Result{Degraded: true}
	}

	return Tally(in.Patch.Hunks, blame)
}

// Tally attributes every deleted line of hunks using blame, which is keyed
// by old line number. Lines blame knows nothing about are not counted.
func Tally(hunks []gitlib.Hunk, blame map[int]Attribution) Result {
	byCommit := map[gitlib.Hash]*Rewrite{}

	var total int

	for _, hunk := range hunks {
		for _, line := range hunk.Lines {
			if line.Origin != gitlib.LineDeleted {
				continue
			}

			attr, ok := blame[line.OldLineno]
			if !ok {
				continue
			}

			rw := byCommit[attr.Commit]
			if rw == nil {
				rw = &Rewrite{Commit: attr.Commit, Author: attr.Author}
				byCommit[attr.Commit] = rw
			}

			rw.Lines++
			total++
		}
	}

	rewrites := make([]Rewrite, 0, len(byCommit))
	for _, rw := range byCommit {
		rewrites = append(rewrites, *rw)
	}

	slices.SortFunc(rewrites, func(a, b Rewrite) int {
		return slices.Compare(a.Commit[:], b.Commit[:])
	})

	return Result{Rewrites: rewrites, Lines: total}
}
