// Package gittest builds throwaway git repositories for tests.
package gittest

import (
	"maps"
	"slices"
	"testing"
	"time"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
)

// Default identity used for fixture commits.
const (
	AuthorName  = "Test User"
	AuthorEmail = "test@example.com"
)

// Repo is a git repository rooted in a test temp directory.
// Commits are written directly to the object database; the working
// directory is never touched.
type Repo struct {
	t      *testing.T
	path   string
	native *git2go.Repository
}

// New initialises an empty repository. It is freed when the test ends.
func New(t *testing.T) *Repo {
	t.Helper()

	dir := t.TempDir()

	native, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)

	t.Cleanup(native.Free)

	return &Repo{t: t, path: dir, native: native}
}

// Path returns the repository directory.
func (r *Repo) Path() string {
	return r.path
}

// Open opens a fresh gitlib handle on the repository.
func (r *Repo) Open() *gitlib.Repository {
	r.t.Helper()

	repo, err := gitlib.OpenRepository(r.path)
	require.NoError(r.t, err)

	r.t.Cleanup(repo.Free)

	return repo
}

// CommitOptions customises a fixture commit.
type CommitOptions struct {
	Message string
	When    time.Time
	Author  string
	Email   string
}

// Commit writes a commit whose tree holds exactly files (path to content)
// with the given parents, and returns its id.
func (r *Repo) Commit(files map[string]string, parents ...gitlib.Hash) gitlib.Hash {
	r.t.Helper()

	return r.CommitWith(CommitOptions{}, files, parents...)
}

// CommitWith is Commit with explicit options.
func (r *Repo) CommitWith(opts CommitOptions, files map[string]string, parents ...gitlib.Hash) gitlib.Hash {
	r.t.Helper()

	if opts.Message == "" {
		opts.Message = "commit"
	}

	if opts.When.IsZero() {
		opts.When = time.Now()
	}

	if opts.Author == "" {
		opts.Author = AuthorName
	}

	if opts.Email == "" {
		opts.Email = AuthorEmail
	}

	index, err := git2go.NewIndex()
	require.NoError(r.t, err)

	defer index.Free()

	for _, path := range slices.Sorted(maps.Keys(files)) {
		blobID, blobErr := r.native.CreateBlobFromBuffer([]byte(files[path]))
		require.NoError(r.t, blobErr)

		addErr := index.Add(&git2go.IndexEntry{
			Path: path,
			Mode: git2go.FilemodeBlob,
			Id:   blobID,
			Size: uint32(len(files[path])),
		})
		require.NoError(r.t, addErr)
	}

	treeID, err := index.WriteTreeTo(r.native)
	require.NoError(r.t, err)

	tree, err := r.native.LookupTree(treeID)
	require.NoError(r.t, err)

	defer tree.Free()

	parentCommits := make([]*git2go.Commit, 0, len(parents))

	for _, parent := range parents {
		commit, lookupErr := r.native.LookupCommit(parent.ToOid())
		require.NoError(r.t, lookupErr)

		parentCommits = append(parentCommits, commit)
	}

	defer func() {
		for _, commit := range parentCommits {
			commit.Free()
		}
	}()

	sig := &git2go.Signature{Name: opts.Author, Email: opts.Email, When: opts.When}

	oid, err := r.native.CreateCommit("", sig, sig, opts.Message, tree, parentCommits...)
	require.NoError(r.t, err)

	return gitlib.HashFromOid(oid)
}

// Branch points refs/heads/name at target, moving it if it exists.
func (r *Repo) Branch(name string, target gitlib.Hash) {
	r.t.Helper()

	r.setRef(gitlib.BranchPrefix+name, target)
}

// Tag points the lightweight tag refs/tags/name at target.
func (r *Repo) Tag(name string, target gitlib.Hash) {
	r.t.Helper()

	r.setRef(gitlib.TagPrefix+name, target)
}

// AnnotatedTag creates an annotated tag object for target.
func (r *Repo) AnnotatedTag(name string, target gitlib.Hash) {
	r.t.Helper()

	commit, err := r.native.LookupCommit(target.ToOid())
	require.NoError(r.t, err)

	defer commit.Free()

	sig := &git2go.Signature{Name: AuthorName, Email: AuthorEmail, When: time.Now()}

	_, err = r.native.Tags.Create(name, commit, sig, "release "+name)
	require.NoError(r.t, err)
}

// SetHead points HEAD symbolically at a branch.
func (r *Repo) SetHead(branch string) {
	r.t.Helper()

	require.NoError(r.t, r.native.SetHead(gitlib.BranchPrefix+branch))
}

// Ref points the fully qualified reference name at any object, commit or not.
func (r *Repo) Ref(name string, target gitlib.Hash) {
	r.t.Helper()

	r.setRef(name, target)
}

// Blob writes content to the object database and returns its id.
func (r *Repo) Blob(content string) gitlib.Hash {
	r.t.Helper()

	oid, err := r.native.CreateBlobFromBuffer([]byte(content))
	require.NoError(r.t, err)

	return gitlib.HashFromOid(oid)
}

func (r *Repo) setRef(name string, target gitlib.Hash) {
	ref, err := r.native.References.Create(name, target.ToOid(), true, "gittest")
	require.NoError(r.t, err)

	ref.Free()
}
