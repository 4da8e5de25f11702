package resolver

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib/gittest"
	"github.com/Sumatoshi-tech/githarvest/pkg/refstate"
)

func branches(refs map[string]gitlib.Hash) *refstate.Snapshot {
	snap := refstate.Empty()
	for name, h := range refs {
		snap.Branches[name] = h
	}

	return snap
}

func resolveAll(t *testing.T, repo *gitlib.Repository, current *refstate.Snapshot, opts Options) []gitlib.Hash {
	t.Helper()

	ids, err := Resolve(context.Background(), NewGraph(repo), current, opts).Collect()
	require.NoError(t, err)

	return ids
}

// linear builds A <- B <- C.
func linear(t *testing.T) (*gittest.Repo, gitlib.Hash, gitlib.Hash, gitlib.Hash) {
	t.Helper()

	fx := gittest.New(t)
	a := fx.Commit(map[string]string{"f": "1"})
	b := fx.Commit(map[string]string{"f": "2"}, a)
	c := fx.Commit(map[string]string{"f": "3"}, b)

	return fx, a, b, c
}

func TestResolve_LinearIncremental(t *testing.T) {
	t.Parallel()

	fx, a, b, c := linear(t)

	ids := resolveAll(t, fx.Open(), branches(map[string]gitlib.Hash{"main": c}), Options{
		Previous: branches(map[string]gitlib.Hash{"main": a}),
	})

	assert.Equal(t, []gitlib.Hash{b, c}, ids)
}

func TestResolve_EverythingIsNewWithoutPrevious(t *testing.T) {
	t.Parallel()

	fx, a, b, c := linear(t)

	ids := resolveAll(t, fx.Open(), branches(map[string]gitlib.Hash{"main": c}), Options{})

	assert.Equal(t, []gitlib.Hash{a, b, c}, ids)
}

func TestResolve_IdempotentWhenNothingMoved(t *testing.T) {
	t.Parallel()

	fx, _, _, c := linear(t)
	snap := branches(map[string]gitlib.Hash{"main": c})
	snap.Tags["v1"] = c

	ids := resolveAll(t, fx.Open(), snap, Options{Previous: snap})

	assert.Empty(t, ids)
}

func TestResolve_ZeroHeads(t *testing.T) {
	t.Parallel()

	fx, _, _, _ := linear(t)

	ids := resolveAll(t, fx.Open(), refstate.Empty(), Options{})

	assert.Empty(t, ids)
}

func TestResolve_BranchesOnSameUnseenCommit(t *testing.T) {
	t.Parallel()

	fx, a, b, c := linear(t)

	ids := resolveAll(t, fx.Open(), branches(map[string]gitlib.Hash{"one": c, "two": c}), Options{
		Previous: branches(map[string]gitlib.Hash{"one": b}),
	})

	assert.Equal(t, []gitlib.Hash{c}, ids)
	assert.NotContains(t, ids, a)
}

func TestResolve_ConvergingBranchesShareAncestorsOnce(t *testing.T) {
	t.Parallel()

	fx := gittest.New(t)
	root := fx.Commit(map[string]string{"f": "root"})
	left := fx.Commit(map[string]string{"f": "left"}, root)
	right := fx.Commit(map[string]string{"f": "right"}, root)
	merge := fx.Commit(map[string]string{"f": "merge"}, left, right)

	current := branches(map[string]gitlib.Hash{"feature": right, "main": merge})
	current.Tags["v0"] = root

	ids := resolveAll(t, fx.Open(), current, Options{})

	assert.ElementsMatch(t, []gitlib.Hash{root, left, right, merge}, ids)
	assert.Len(t, ids, 4)
	assert.Equal(t, root, ids[0])
}

func TestResolve_HeadOrderDoesNotChangeTheSet(t *testing.T) {
	t.Parallel()

	fx := gittest.New(t)
	root := fx.Commit(map[string]string{"f": "root"})
	x := fx.Commit(map[string]string{"f": "x"}, root)
	y := fx.Commit(map[string]string{"f": "y"}, root)
	repo := fx.Open()

	first := resolveAll(t, repo, branches(map[string]gitlib.Hash{"a": x, "b": y}), Options{})
	second := resolveAll(t, repo, branches(map[string]gitlib.Hash{"a": y, "b": x}), Options{})

	assert.ElementsMatch(t, first, second)
	assert.ElementsMatch(t, []gitlib.Hash{root, x, y}, first)
}

func TestResolve_PreviousTailOnOtherBranch(t *testing.T) {
	t.Parallel()

	fx := gittest.New(t)
	root := fx.Commit(map[string]string{"f": "root"})
	known := fx.Commit(map[string]string{"f": "known"}, root)
	fresh := fx.Commit(map[string]string{"f": "fresh"}, root)

	ids := resolveAll(t, fx.Open(), branches(map[string]gitlib.Hash{"main": known, "topic": fresh}), Options{
		Previous: branches(map[string]gitlib.Hash{"main": known}),
	})

	assert.Equal(t, []gitlib.Hash{fresh}, ids)
}

func TestResolve_MissingTailIsSkipped(t *testing.T) {
	t.Parallel()

	fx, a, b, c := linear(t)
	missing := gitlib.NewHash("1111111111111111111111111111111111111111")

	ids := resolveAll(t, fx.Open(), branches(map[string]gitlib.Hash{"main": c}), Options{
		Previous: branches(map[string]gitlib.Hash{"gone": missing}),
	})

	assert.Equal(t, []gitlib.Hash{a, b, c}, ids)
}

func TestResolve_MissingHeadIsSkipped(t *testing.T) {
	t.Parallel()

	fx, _, b, c := linear(t)
	missing := gitlib.NewHash("2222222222222222222222222222222222222222")

	ids := resolveAll(t, fx.Open(), branches(map[string]gitlib.Hash{"a-gone": missing, "main": c}), Options{
		Previous: branches(map[string]gitlib.Hash{"main": b}),
	})

	assert.Equal(t, []gitlib.Hash{c}, ids)
}

func TestResolve_TimeWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fx := gittest.New(t)
	old := fx.CommitWith(gittest.CommitOptions{When: now.AddDate(0, 0, -40)}, map[string]string{"f": "old"})
	recent := fx.CommitWith(gittest.CommitOptions{When: now.AddDate(0, 0, -10)}, map[string]string{"f": "new"}, old)

	seen := SeenSet{}
	ids := resolveAll(t, fx.Open(), branches(map[string]gitlib.Hash{"main": recent}), Options{
		WindowDays: 30,
		Now:        func() time.Time { return now },
		Seen:       seen,
	})

	assert.Equal(t, []gitlib.Hash{recent}, ids)
	assert.False(t, seen.Has(old))
}

func TestResolve_SeenSetSharedAcrossRuns(t *testing.T) {
	t.Parallel()

	fx, a, b, c := linear(t)
	repo := fx.Open()
	seen := SeenSet{}
	seen.Add(b)

	ids := resolveAll(t, repo, branches(map[string]gitlib.Hash{"main": c}), Options{Seen: seen})
	assert.Equal(t, []gitlib.Hash{a, c}, ids)

	again := resolveAll(t, repo, branches(map[string]gitlib.Hash{"main": c}), Options{Seen: seen})
	assert.Empty(t, again)

	seen.Remove(a)

	retry := resolveAll(t, repo, branches(map[string]gitlib.Hash{"main": c}), Options{Seen: seen})
	assert.Equal(t, []gitlib.Hash{a}, retry)
}

func TestIterator_LazyAndCancellable(t *testing.T) {
	t.Parallel()

	fx, a, _, c := linear(t)
	ctx, cancel := context.WithCancel(context.Background())

	it := Resolve(ctx, NewGraph(fx.Open()), branches(map[string]gitlib.Hash{"main": c}), Options{})

	first, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, a, first)

	cancel()

	_, err = it.Next()
	require.ErrorIs(t, err, context.Canceled)

	_, err = it.Next()
	require.ErrorIs(t, err, io.EOF)
}

type failingGraph struct{}

func (failingGraph) NewWalk() (Walker, error) { return nil, errors.New("no walker") }

func (failingGraph) AuthorTime(context.Context, gitlib.Hash) (time.Time, error) {
	return time.Time{}, nil
}

func TestResolve_WalkerUnavailable(t *testing.T) {
	t.Parallel()

	ids, err := Resolve(context.Background(), failingGraph{}, branches(map[string]gitlib.Hash{"main": gitlib.EmptyTreeHash()}), Options{}).Collect()
	require.NoError(t, err)
	assert.Empty(t, ids)
}
