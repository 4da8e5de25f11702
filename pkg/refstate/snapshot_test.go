package refstate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib/gittest"
)

func hash(b byte) gitlib.Hash {
	var h gitlib.Hash
	h[0] = b

	return h
}

type stubLister struct {
	branches  []gitlib.RefTarget
	tags      []gitlib.RefTarget
	branchErr error
}

func (s stubLister) Branches() ([]gitlib.RefTarget, error) { return s.branches, s.branchErr }
func (s stubLister) Tags() ([]gitlib.RefTarget, error)     { return s.tags, nil }

func TestCapture_Repository(t *testing.T) {
	t.Parallel()

	fx := gittest.New(t)
	a := fx.Commit(map[string]string{"a.txt": "a"})
	b := fx.Commit(map[string]string{"a.txt": "b"}, a)

	fx.Branch("main", b)
	fx.Branch("old", a)
	fx.SetHead("main")
	fx.AnnotatedTag("v1", a)
	fx.Tag("light", b)
	fx.Ref(gitlib.TagPrefix+"blob-tag", fx.Blob("not a commit"))

	snap := Capture(fx.Open(), nil)

	assert.Equal(t, map[string]gitlib.Hash{"main": b, "old": a}, snap.Branches)
	assert.Equal(t, map[string]gitlib.Hash{"v1": a, "light": b}, snap.Tags)
}

func TestCapture_PartialListing(t *testing.T) {
	t.Parallel()

	snap := Capture(stubLister{
		branches:  []gitlib.RefTarget{{Name: "main", Target: hash(1)}, {Name: "broken", Err: errors.New("dangling")}},
		branchErr: errors.New("iterator failed"),
		tags:      []gitlib.RefTarget{{Name: "zero"}},
	}, nil)

	assert.Equal(t, map[string]gitlib.Hash{"main": hash(1)}, snap.Branches)
	assert.Empty(t, snap.Tags)
}

func TestHeads_OrderAndDedup(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{
		Branches: map[string]gitlib.Hash{"zeta": hash(1), "alpha": hash(2), "mid": hash(2)},
		Tags:     map[string]gitlib.Hash{"v2": hash(3), "v1": hash(1)},
	}

	assert.Equal(t, []gitlib.Hash{hash(2), hash(1), hash(3)}, snap.Heads())

	var nilSnap *Snapshot

	assert.Empty(t, nilSnap.Heads())
	assert.Empty(t, Empty().Heads())
}

func TestCommitIDs_Sorted(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{
		Branches: map[string]gitlib.Hash{"a": hash(9), "b": hash(3)},
		Tags:     map[string]gitlib.Hash{"t": hash(5), "u": hash(9)},
	}

	assert.Equal(t, []gitlib.Hash{hash(3), hash(5), hash(9)}, snap.CommitIDs())
}

func TestNewBranches(t *testing.T) {
	t.Parallel()

	prev := &Snapshot{Branches: map[string]gitlib.Hash{"main": hash(1)}}
	cur := &Snapshot{Branches: map[string]gitlib.Hash{"main": hash(2), "feature": hash(3), "bugfix": hash(4)}}

	assert.Equal(t, []string{"bugfix", "feature"}, cur.NewBranches(prev))
	assert.Equal(t, []string{"bugfix", "feature", "main"}, cur.NewBranches(nil))
	assert.Empty(t, prev.NewBranches(cur))
}

func TestEqual(t *testing.T) {
	t.Parallel()

	a := &Snapshot{Branches: map[string]gitlib.Hash{"main": hash(1)}, Tags: map[string]gitlib.Hash{}}
	b := &Snapshot{Branches: map[string]gitlib.Hash{"main": hash(1)}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(&Snapshot{Branches: map[string]gitlib.Hash{"main": hash(2)}}))
	assert.False(t, a.Equal(&Snapshot{Branches: map[string]gitlib.Hash{"main": hash(1)}, Tags: map[string]gitlib.Hash{"v": hash(1)}}))

	var nilSnap *Snapshot

	assert.True(t, nilSnap.Equal(Empty()))
	require.False(t, nilSnap.Equal(a))
}
