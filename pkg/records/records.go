// Package records defines the append-only facts emitted by an extraction run
// and the sink they are written to.
package records

import (
	"context"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
)

// Kind names a record type on the sink boundary.
type Kind string

// Record kinds.
const (
	KindCommit       Kind = "commit"
	KindPatch        Kind = "patch"
	KindPatchRewrite Kind = "patch-rewrite"
	KindCommitBranch Kind = "commit-branch"
)

// Sink consumes extracted records.
//
// Implementations must be safe for concurrent use and must not fail on
// records whose identity key was already written.
type Sink interface {
	Write(ctx context.Context, kind Kind, record any) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, kind Kind, record any) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, kind Kind, record any) error {
	return f(ctx, kind, record)
}

// Commit is one commit ever observed. Identity key: (RepoID, CommitID).
type Commit struct {
	RepoID         int64       `json:"repo_id"`
	CommitID       gitlib.Hash `json:"commit_id"`
	AuthorName     string      `json:"author_name"`
	AuthorEmail    string      `json:"author_email"`
	AuthorTime     int64       `json:"author_time"`
	CommitterName  string      `json:"committer_name"`
	CommitterEmail string      `json:"committer_email"`
	CommitterTime  int64       `json:"committer_time"`
	Message        string      `json:"message"`
	NParents       int         `json:"nparents"`
	TreeID         gitlib.Hash `json:"tree_id"`
	IsMerge        bool        `json:"is_merge"`
	// NFiles counts every changed file across all parent diffs,
	// including files dropped by the ignore spec.
	NFiles int `json:"nfiles"`
	// NIgnored counts changed files dropped by the ignore spec.
	NIgnored int `json:"nignored"`
}

// Patch is one changed file of a commit relative to one parent.
// Identity key: (RepoID, CommitID, ParentCommitID, NewPath).
type Patch struct {
	RepoID         int64       `json:"repo_id"`
	CommitID       gitlib.Hash `json:"commit_id"`
	ParentCommitID gitlib.Hash `json:"parent_commit_id"`
	AuthorTime     int64       `json:"author_time"`
	IsMerge        bool        `json:"is_merge"`

	Status   string `json:"status"`
	OldPath  string `json:"old_path"`
	NewPath  string `json:"new_path"`
	OldSize  int32  `json:"old_size"`
	NewSize  int32  `json:"new_size"`
	IsBinary bool   `json:"is_binary"`
	Lang     string `json:"lang"`
	LangType string `json:"langtype"`

	LocI  int64 `json:"loc_i"`
	LocD  int64 `json:"loc_d"`
	CompI int64 `json:"comp_i"`
	CompD int64 `json:"comp_d"`

	LocIStd  float64 `json:"loc_i_std"`
	LocDStd  float64 `json:"loc_d_std"`
	CompIStd float64 `json:"comp_i_std"`
	CompDStd float64 `json:"comp_d_std"`

	NHunks      int   `json:"nhunks"`
	NRewrites   int   `json:"nrewrites"`
	RewritesLoc int64 `json:"rewrites_loc"`
}

// PatchRewrite attributes deleted lines of a patch to the earlier commit
// that introduced them.
// Identity key: (RepoID, CommitID, NewPath, RewrittenCommitID).
type PatchRewrite struct {
	RepoID      int64       `json:"repo_id"`
	CommitID    gitlib.Hash `json:"commit_id"`
	AuthorName  string      `json:"author_name"`
	AuthorEmail string      `json:"author_email"`
	AuthorTime  int64       `json:"author_time"`
	NewPath     string      `json:"new_path"`

	RewrittenCommitID    gitlib.Hash `json:"rewritten_commit_id"`
	RewrittenAuthorName  string      `json:"rewritten_author_name"`
	RewrittenAuthorEmail string      `json:"rewritten_author_email"`
	RewrittenAuthorTime  int64       `json:"rewritten_author_time"`

	LocDeleted int64 `json:"loc_d"`
}

// CommitBranch records that a commit is reachable from a branch.
// Identity key: (RepoID, CommitID, Branch).
type CommitBranch struct {
	RepoID     int64       `json:"repo_id"`
	CommitID   gitlib.Hash `json:"commit_id"`
	Branch     string      `json:"branch"`
	AuthorTime int64       `json:"author_time"`
}
