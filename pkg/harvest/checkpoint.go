package harvest

import (
	"context"
	"log/slog"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
	"github.com/Sumatoshi-tech/githarvest/pkg/refstate"
)

// ancestry answers reachability questions. It is satisfied by *gitlib.Repository.
type ancestry interface {
	IsAncestor(ancestor, descendant gitlib.Hash) (bool, error)
}

// checkpointFor returns the part of current that is safe to persist. A ref
// whose tip reaches a failed commit keeps its previous target, or is left
// out when it had none, so the next run resolves the failed commit again.
func checkpointFor(
	ctx context.Context, repo ancestry, current, previous *refstate.Snapshot,
	failed []gitlib.Hash, logger *slog.Logger,
) *refstate.Snapshot {
	if len(failed) == 0 {
		return current
	}

	var prevBranches, prevTags map[string]gitlib.Hash
	if previous != nil {
		prevBranches, prevTags = previous.Branches, previous.Tags
	}

	cp := refstate.Empty()
	held := 0

	held += settle(ctx, repo, cp.Branches, current.Branches, prevBranches, failed, "branch", logger)
	held += settle(ctx, repo, cp.Tags, current.Tags, prevTags, failed, "tag", logger)

	logger.WarnContext(ctx, "checkpoint held back for refs reaching failed commits",
		"failed", len(failed), "refs", held)

	return cp
}

func settle(
	ctx context.Context, repo ancestry, dst, current, previous map[string]gitlib.Hash,
	failed []gitlib.Hash, kind string, logger *slog.Logger,
) int {
	held := 0

	for name, tip := range current {
		if !reachesAny(ctx, repo, tip, failed, kind, name, logger) {
			dst[name] = tip

			continue
		}

		held++

		if old, ok := previous[name]; ok {
			dst[name] = old
		}
	}

	return held
}

// reachesAny reports whether tip is, or descends from, one of failed.
// Unanswerable checks count as reaching.
func reachesAny(
	ctx context.Context, repo ancestry, tip gitlib.Hash, failed []gitlib.Hash,
	kind, name string, logger *slog.Logger,
) bool {
	for _, id := range failed {
		if id == tip {
			return true
		}

		ok, err := repo.IsAncestor(id, tip)
		if err != nil {
			logger.WarnContext(ctx, "ancestry check failed, holding ref back",
				kind, name, "commit", id.String(), "error", err)

			return true
		}

		if ok {
			return true
		}
	}

	return false
}
