package gitlib

import (
	"fmt"
	"strings"

	git2go "github.com/libgit2/git2go/v34"
)

// Reference namespaces walked by ListReferences.
const (
	BranchPrefix = "refs/heads/"
	TagPrefix    = "refs/tags/"
)

// RefTarget is a named reference resolved to the commit it points at.
// Err is set when the reference exists but cannot be resolved to a commit
// (dangling target, tag pointing at a tree); Target is then zero.
type RefTarget struct {
	Name   string
	Target Hash
	Err    error
}

// Branches lists local branches with their tip commits.
// Symbolic references (for example a symbolic HEAD under refs/heads) are skipped.
func (r *Repository) Branches() ([]RefTarget, error) {
	return r.listReferences(BranchPrefix)
}

// Tags lists tags with the commit each one peels to.
func (r *Repository) Tags() ([]RefTarget, error) {
	return r.listReferences(TagPrefix)
}

func (r *Repository) listReferences(prefix string) ([]RefTarget, error) {
	iter, err := r.repo.NewReferenceIteratorGlob(prefix + "*")
	if err != nil {
		return nil, fmt.Errorf("iterate %s: %w", prefix, err)
	}
	defer iter.Free()

	var targets []RefTarget

	for {
		ref, nextErr := iter.Next()
		if nextErr != nil {
			if git2go.IsErrorCode(nextErr, git2go.ErrorCodeIterOver) {
				break
			}

			return targets, fmt.Errorf("iterate %s: %w", prefix, nextErr)
		}

		if ref.Type() == git2go.ReferenceSymbolic {
			ref.Free()

			continue
		}

		target := RefTarget{Name: strings.TrimPrefix(ref.Name(), prefix)}
		target.Target, target.Err = peelToCommit(ref)
		ref.Free()

		targets = append(targets, target)
	}

	return targets, nil
}

func peelToCommit(ref *git2go.Reference) (Hash, error) {
	obj, err := ref.Peel(git2go.ObjectCommit)
	if err != nil {
		return Hash{}, fmt.Errorf("peel %s: %w", ref.Name(), err)
	}
	defer obj.Free()

	return HashFromOid(obj.Id()), nil
}
