// Package extract turns one commit into commit, patch and rewrite records.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
	"github.com/Sumatoshi-tech/githarvest/pkg/lineage"
	"github.com/Sumatoshi-tech/githarvest/pkg/patchstats"
	"github.com/Sumatoshi-tech/githarvest/pkg/records"
	"github.com/Sumatoshi-tech/githarvest/pkg/safeconv"
)

// MaxPathLength is the longest path stored on a patch record, in characters.
const MaxPathLength = 255

// Options configure an Extractor.
type Options struct {
	RepoID int64
	// Ignore drops matching files from the emitted patches. May be nil.
	Ignore *IgnoreSpec
	// TabSize is the indentation width for complexity. Zero means patchstats.DefaultTabSize.
	TabSize int
	// Lineage detects rewrites. Nil means a detector with the default blamer.
	Lineage *lineage.Detector
	Logger  *slog.Logger
}

// Outcome counts what one Extract call emitted.
type Outcome struct {
	Diffs          int
	Patches        int
	Rewrites       int
	Ignored        int
	BlameFallbacks int
}

// Extractor is stateless apart from its options and safe for concurrent use,
// provided every goroutine passes its own repository handle.
type Extractor struct {
	opts   Options
	logger *slog.Logger
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Lineage == nil {
		opts.Lineage = lineage.NewDetector(nil, logger)
	}

	if opts.TabSize <= 0 {
		opts.TabSize = patchstats.DefaultTabSize
	}

	return &Extractor{opts: opts, logger: logger}
}

// parentDiff is the patch set of a commit against one parent.
type parentDiff struct {
	parent  gitlib.Hash
	patches []gitlib.FilePatch
}

// Extract reads commit id from repo and writes its records to sink:
// the commit first, then for every parent its patches, each followed by
// its rewrites.
func (e *Extractor) Extract(ctx context.Context, repo *gitlib.Repository, id gitlib.Hash, sink records.Sink) (Outcome, error) {
	var out Outcome

	commit, err := repo.LookupCommit(ctx, id)
	if err != nil {
		return out, err
	}
	defer commit.Free()

	diffs, err := e.diffs(repo, commit)
	if err != nil {
		return out, err
	}

	author := commit.Author()
	committer := commit.Committer()
	nParents := commit.NumParents()

	rec := records.Commit{
		RepoID:         e.opts.RepoID,
		CommitID:       id,
		AuthorName:     author.Name,
		AuthorEmail:    author.Email,
		AuthorTime:     author.Epoch(),
		CommitterName:  committer.Name,
		CommitterEmail: committer.Email,
		CommitterTime:  committer.Epoch(),
		Message:        commit.Message(),
		NParents:       nParents,
		TreeID:         commit.TreeHash(),
		IsMerge:        nParents > 1,
	}

	kept := make([][]gitlib.FilePatch, len(diffs))

	for i, d := range diffs {
		rec.NFiles += len(d.patches)

		for _, p := range d.patches {
			if e.ignored(&p) {
				rec.NIgnored++

				continue
			}

			kept[i] = append(kept[i], p)
		}
	}

	err = sink.Write(ctx, records.KindCommit, rec)
	if err != nil {
		return out, fmt.Errorf("write commit %s: %w", id, err)
	}

	out.Diffs = len(diffs)
	out.Ignored = rec.NIgnored

	for i, d := range diffs {
		for j := range kept[i] {
			err = e.emitPatch(ctx, repo, sink, &rec, d.parent, &kept[i][j], &out)
			if err != nil {
				return out, err
			}
		}
	}

	return out, nil
}

func (e *Extractor) ignored(p *gitlib.FilePatch) bool {
	return e.opts.Ignore.Match(p.NewPath) || (p.OldPath != p.NewPath && e.opts.Ignore.Match(p.OldPath))
}

// diffs computes one patch set per parent, or a single one against the
// empty tree for a root commit. Parents missing from the object database
// are logged and skipped.
func (e *Extractor) diffs(repo *gitlib.Repository, commit *gitlib.Commit) ([]parentDiff, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	defer tree.Free()

	n := commit.NumParents()
	if n == 0 {
		patches, diffErr := diffPatches(repo, nil, tree)
		if diffErr != nil {
			return nil, diffErr
		}

		return []parentDiff{{parent: gitlib.EmptyTreeHash(), patches: patches}}, nil
	}

	out := make([]parentDiff, 0, n)

	for i := range n {
		parentID := commit.ParentHash(i)

		patches, parentErr := parentPatches(repo, commit, i, tree)
		if parentErr != nil {
			e.logger.Warn("skipping unreadable parent",
				"commit", commit.Hash().String(), "parent", parentID.String(), "error", parentErr)

			continue
		}

		out = append(out, parentDiff{parent: parentID, patches: patches})
	}

	return out, nil
}

func parentPatches(repo *gitlib.Repository, commit *gitlib.Commit, n int, tree *gitlib.Tree) ([]gitlib.FilePatch, error) {
	parent, err := commit.Parent(n)
	if err != nil {
		return nil, err
	}
	defer parent.Free()

	parentTree, err := parent.Tree()
	if err != nil {
		return nil, err
	}
	defer parentTree.Free()

	return diffPatches(repo, parentTree, tree)
}

func diffPatches(repo *gitlib.Repository, oldTree, newTree *gitlib.Tree) ([]gitlib.FilePatch, error) {
	diff, err := repo.DiffTreeToTree(oldTree, newTree)
	if err != nil {
		return nil, err
	}
	defer diff.Free()

	return diff.Patches()
}

func (e *Extractor) emitPatch(
	ctx context.Context, repo *gitlib.Repository, sink records.Sink,
	commit *records.Commit, parent gitlib.Hash, p *gitlib.FilePatch, out *Outcome,
) error {
	stats := patchstats.Compute(p.Hunks, e.opts.TabSize)
	lang, category := e.language(ctx, repo, p)
	newPath := TruncatePath(p.NewPath)

	rw := e.opts.Lineage.Detect(ctx, repo, lineage.Input{
		Parent: parent,
		Merge:  commit.IsMerge,
		Root:   commit.NParents == 0,
		Patch:  p,
	})
	if rw.Degraded {
		out.BlameFallbacks++
	}

	rec := records.Patch{
		RepoID:         commit.RepoID,
		CommitID:       commit.CommitID,
		ParentCommitID: parent,
		AuthorTime:     commit.AuthorTime,
		IsMerge:        commit.IsMerge,
		Status:         string(p.Status),
		OldPath:        TruncatePath(p.OldPath),
		NewPath:        newPath,
		OldSize:        safeconv.ClampToInt32(p.OldSize),
		NewSize:        safeconv.ClampToInt32(p.NewSize),
		IsBinary:       p.Binary,
		Lang:           lang,
		LangType:       category,
		LocI:           stats.LocI,
		LocD:           stats.LocD,
		CompI:          stats.CompI,
		CompD:          stats.CompD,
		LocIStd:        patchstats.Finite(stats.LocIStd),
		LocDStd:        patchstats.Finite(stats.LocDStd),
		CompIStd:       patchstats.Finite(stats.CompIStd),
		CompDStd:       patchstats.Finite(stats.CompDStd),
		NHunks:         len(p.Hunks),
		NRewrites:      rw.Count(),
		RewritesLoc:    int64(rw.Lines),
	}

	err := sink.Write(ctx, records.KindPatch, rec)
	if err != nil {
		return fmt.Errorf("write patch %s %s: %w", commit.CommitID, newPath, err)
	}

	out.Patches++

	for _, r := range rw.Rewrites {
		err = sink.Write(ctx, records.KindPatchRewrite, records.PatchRewrite{
			RepoID:               commit.RepoID,
			CommitID:             commit.CommitID,
			AuthorName:           commit.AuthorName,
			AuthorEmail:          commit.AuthorEmail,
			AuthorTime:           commit.AuthorTime,
			NewPath:              newPath,
			RewrittenCommitID:    r.Commit,
			RewrittenAuthorName:  r.Author.Name,
			RewrittenAuthorEmail: r.Author.Email,
			RewrittenAuthorTime:  r.Author.Epoch(),
			LocDeleted:           int64(r.Lines),
		})
		if err != nil {
			return fmt.Errorf("write rewrite %s %s: %w", commit.CommitID, newPath, err)
		}

		out.Rewrites++
	}

	return nil
}

func (e *Extractor) language(ctx context.Context, repo *gitlib.Repository, p *gitlib.FilePatch) (string, string) {
	name, blobID, size := p.NewPath, p.NewHash, p.NewSize
	if p.Status == 'D' {
		name, blobID, size = p.OldPath, p.OldHash, p.OldSize
	}

	return DetectLanguage(name, func() []byte {
		if p.Binary || blobID.IsZero() || size > maxSniffSize {
			return nil
		}

		blob, err := repo.LookupBlob(ctx, blobID)
		if err != nil {
			return nil
		}
		defer blob.Free()

		return blob.Contents()
	})
}

// TruncatePath shortens p to MaxPathLength characters.
func TruncatePath(p string) string {
	if utf8.RuneCountInString(p) <= MaxPathLength {
		return p
	}

	runes := []rune(p)

	return string(runes[:MaxPathLength])
}
