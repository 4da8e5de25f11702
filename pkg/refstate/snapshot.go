// Package refstate captures and persists the reference state of a repository:
// the commit each branch and tag points at.
package refstate

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
)

// RefLister lists branch and tag references. It is satisfied by *gitlib.Repository.
type RefLister interface {
	Branches() ([]gitlib.RefTarget, error)
	Tags() ([]gitlib.RefTarget, error)
}

// Snapshot is an immutable view of branch tips and tag targets.
type Snapshot struct {
	Branches map[string]gitlib.Hash `json:"branches"`
	Tags     map[string]gitlib.Hash `json:"tags"`
}

// Empty returns a snapshot with no references.
func Empty() *Snapshot {
	return &Snapshot{
		Branches: map[string]gitlib.Hash{},
		Tags:     map[string]gitlib.Hash{},
	}
}

// Capture reads the current branches and tags of repo. References that cannot
// be resolved to a commit are logged and left out.
func Capture(repo RefLister, logger *slog.Logger) *Snapshot {
	if logger == nil {
		logger = slog.Default()
	}

	snap := Empty()

	branches, err := repo.Branches()
	if err != nil {
		logger.Warn("listing branches failed, snapshot is partial", "error", err)
	}

	collect(snap.Branches, branches, "branch", logger)

	tags, err := repo.Tags()
	if err != nil {
		logger.Warn("listing tags failed, snapshot is partial", "error", err)
	}

	collect(snap.Tags, tags, "tag", logger)

	return snap
}

func collect(dst map[string]gitlib.Hash, refs []gitlib.RefTarget, kind string, logger *slog.Logger) {
	for _, ref := range refs {
		if ref.Err != nil || ref.Target.IsZero() {
			logger.Warn("skipping unresolvable reference", "kind", kind, "name", ref.Name, "error", ref.Err)

			continue
		}

		dst[ref.Name] = ref.Target
	}
}

// Heads returns the walk starting points: branch tips ordered by branch name,
// then tag targets ordered by tag name, each commit listed once.
func (s *Snapshot) Heads() []gitlib.Hash {
	if s == nil {
		return nil
	}

	seen := make(map[gitlib.Hash]struct{}, len(s.Branches)+len(s.Tags))
	heads := make([]gitlib.Hash, 0, len(s.Branches)+len(s.Tags))

	for _, refs := range []map[string]gitlib.Hash{s.Branches, s.Tags} {
		for _, name := range slices.Sorted(maps.Keys(refs)) {
			h := refs[name]
			if _, dup := seen[h]; dup {
				continue
			}

			seen[h] = struct{}{}
			heads = append(heads, h)
		}
	}

	return heads
}

// CommitIDs returns every referenced commit id, sorted and deduplicated.
func (s *Snapshot) CommitIDs() []gitlib.Hash {
	ids := s.Heads()

	slices.SortFunc(ids, func(a, b gitlib.Hash) int {
		return slices.Compare(a[:], b[:])
	})

	return ids
}

// NewBranches returns the sorted names of branches in s that prev lacks.
// A nil prev means every branch is new.
func (s *Snapshot) NewBranches(prev *Snapshot) []string {
	if s == nil {
		return nil
	}

	var names []string

	for name := range s.Branches {
		if prev != nil {
			if _, ok := prev.Branches[name]; ok {
				continue
			}
		}

		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Equal reports whether both snapshots reference the same commits under the same names.
// A nil snapshot equals an empty one.
func (s *Snapshot) Equal(other *Snapshot) bool {
	return maps.Equal(s.branches(), other.branches()) && maps.Equal(s.tags(), other.tags())
}

func (s *Snapshot) branches() map[string]gitlib.Hash {
	if s == nil {
		return nil
	}

	return s.Branches
}

func (s *Snapshot) tags() map[string]gitlib.Hash {
	if s == nil {
		return nil
	}

	return s.Tags
}
