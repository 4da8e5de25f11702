package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// BlameLine attributes one line of a file to the commit that last touched it.
type BlameLine struct {
	Line   int
	Commit Hash
	Author Signature
}

// BlameFile attributes every line of path as it exists at rev.
// Line numbers are 1-based and refer to the file at rev.
func (r *Repository) BlameFile(rev Hash, path string) ([]BlameLine, error) {
	opts, err := git2go.DefaultBlameOptions()
	if err != nil {
		return nil, fmt.Errorf("get blame options: %w", err)
	}

	opts.NewestCommit = rev.ToOid()

	blame, err := r.repo.BlameFile(path, &opts)
	if err != nil {
		return nil, fmt.Errorf("blame %s at %s: %w", path, rev, err)
	}

	defer func() { _ = blame.Free() }()

	count := blame.HunkCount()
	lines := make([]BlameLine, 0, count)

	for i := range count {
		hunk, hunkErr := blame.HunkByIndex(i)
		if hunkErr != nil {
			return nil, fmt.Errorf("blame hunk %d of %s: %w", i, path, hunkErr)
		}

		commit := HashFromOid(hunk.FinalCommitId)
		author := toSignature(hunk.FinalSignature)
		start := int(hunk.FinalStartLineNumber)

		for offset := range int(hunk.LinesInHunk) {
			lines = append(lines, BlameLine{Line: start + offset, Commit: commit, Author: author})
		}
	}

	return lines, nil
}
