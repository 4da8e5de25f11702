// Package harvest runs one incremental extraction over a repository.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/githarvest/pkg/extract"
	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
	"github.com/Sumatoshi-tech/githarvest/pkg/lineage"
	"github.com/Sumatoshi-tech/githarvest/pkg/observability"
	"github.com/Sumatoshi-tech/githarvest/pkg/records"
	"github.com/Sumatoshi-tech/githarvest/pkg/refstate"
	"github.com/Sumatoshi-tech/githarvest/pkg/resolver"
	"github.com/Sumatoshi-tech/githarvest/pkg/scheduler"
)

const tracerName = "githarvest"

// ErrNoSink is returned when Params.Sink is nil.
var ErrNoSink = errors.New("no sink configured")

// Params carries every capability a run needs.
type Params struct {
	RepoID int64
	// Path is the repository directory. Each executor worker opens its own handle on it.
	Path string
	// Previous is the snapshot saved by the last successful run, or nil.
	Previous *refstate.Snapshot
	// Seen is shared across runs in one process. May be nil.
	Seen resolver.SeenSet
	Sink records.Sink
	// Executor defaults to scheduler.Sequential.
	Executor   scheduler.Executor
	Ignore     *extract.IgnoreSpec
	WindowDays int
	// Blamer defaults to lineage.ProcessBlamer.
	Blamer  lineage.Blamer
	TabSize int
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *observability.ExtractionMetrics
	Tracer  trace.Tracer
}

// Result describes a finished run.
type Result struct {
	// Snapshot is the reference state the run was computed against.
	Snapshot *refstate.Snapshot
	// Checkpoint is the state to save for the next run. It equals Snapshot
	// unless commits failed, in which case refs reaching a failed commit keep
	// their previous target.
	Checkpoint *refstate.Snapshot
	Summary  scheduler.Summary
	// NewBranches lists branches absent from the previous snapshot.
	NewBranches []string
	// BranchFacts counts the CommitBranch records written.
	BranchFacts int
	Duration    time.Duration
}

// Run extracts every commit that became reachable since Previous and then
// records branch membership. Per-commit failures are counted in
// Result.Summary and left out of Result.Checkpoint and Params.Seen so they
// are retried. An error is returned only when the run as a whole failed, in
// which case Result must not be checkpointed.
func Run(ctx context.Context, p Params) (res Result, err error) {
	// The run's own handle is used below, on this goroutine.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if p.Sink == nil {
		return res, ErrNoSink
	}

	tracer := p.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	executor := p.Executor
	if executor == nil {
		executor = scheduler.Sequential{Logger: logger}
	}

	start := time.Now()

	ctx, span := tracer.Start(ctx, "githarvest.run", trace.WithAttributes(
		attribute.Int64(observability.AttrRepoID, p.RepoID),
		attribute.String(observability.AttrExecutor, executorKind(executor)),
	))

	defer func() {
		res.Duration = time.Since(start)
		p.Metrics.RecordRun(ctx, res.Duration, err)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.SetAttributes(attribute.Int(observability.AttrFailedUnit, res.Summary.Failed))
		span.End()
	}()

	repo, err := gitlib.OpenRepository(p.Path)
	if err != nil {
		return res, err
	}
	defer repo.Free()

	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	res.Snapshot = refstate.Capture(repo, logger)
	res.NewBranches = res.Snapshot.NewBranches(p.Previous)

	logger.InfoContext(ctx, "reference state captured",
		"branches", len(res.Snapshot.Branches),
		"tags", len(res.Snapshot.Tags),
		"new_branches", len(res.NewBranches),
	)

	it := resolver.Resolve(ctx, resolver.NewGraph(repo), res.Snapshot, resolver.Options{
		Previous:   p.Previous,
		Seen:       p.Seen,
		WindowDays: p.WindowDays,
		Now:        func() time.Time { return now },
		Logger:     logger,
	})
	defer it.Close()

	extractor := extract.New(extract.Options{
		RepoID:  p.RepoID,
		Ignore:  p.Ignore,
		TabSize: p.TabSize,
		Lineage: lineage.NewDetector(p.Blamer, logger),
		Logger:  logger,
	})

	unit := func(ctx context.Context, r *gitlib.Repository, id gitlib.Hash) error {
		return extractCommit(ctx, tracer, p.Metrics, extractor, r, id, p)
	}

	open := func() (*gitlib.Repository, error) {
		return gitlib.OpenRepository(p.Path)
	}

	res.Summary, err = executor.Run(ctx, open, it, unit)

	if p.Seen != nil {
		for _, id := range res.Summary.FailedIDs {
			p.Seen.Remove(id)
		}
	}

	if err != nil {
		return res, fmt.Errorf("extract commits: %w", err)
	}

	res.BranchFacts, err = emitBranches(ctx, repo, res.Snapshot, p, cutoff(now, p.WindowDays), logger)
	if err != nil {
		return res, err
	}

	res.Checkpoint = checkpointFor(ctx, repo, res.Snapshot, p.Previous, res.Summary.FailedIDs, logger)

	logger.InfoContext(ctx, "extraction finished",
		"processed", res.Summary.Processed,
		"failed", res.Summary.Failed,
		"branch_facts", res.BranchFacts,
		"duration", time.Since(start),
	)

	return res, nil
}

func extractCommit(
	ctx context.Context, tracer trace.Tracer, metrics *observability.ExtractionMetrics,
	extractor *extract.Extractor, repo *gitlib.Repository, id gitlib.Hash, p Params,
) error {
	ctx, span := tracer.Start(ctx, "githarvest.extract.commit", trace.WithAttributes(
		attribute.Int64(observability.AttrRepoID, p.RepoID),
		attribute.String(observability.AttrCommitID, id.String()),
	))
	defer span.End()

	start := time.Now()
	out, err := extractor.Extract(ctx, repo, id, p.Sink)

	span.SetAttributes(
		attribute.Int(observability.AttrParents, out.Diffs),
		attribute.Int(observability.AttrPatches, out.Patches),
		attribute.Int(observability.AttrRewrites, out.Rewrites),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	metrics.RecordCommit(ctx, observability.CommitStats{
		Patches:        out.Patches,
		Rewrites:       out.Rewrites,
		Ignored:        out.Ignored,
		BlameFallbacks: out.BlameFallbacks,
		Duration:       time.Since(start),
		Err:            err,
	})

	return err
}

func cutoff(now time.Time, windowDays int) time.Time {
	if windowDays <= 0 {
		return time.Time{}
	}

	return now.AddDate(0, 0, -windowDays)
}

// branchEmitter writes CommitBranch facts for one run.
type branchEmitter struct {
	repo      *gitlib.Repository
	sink      records.Sink
	repoID    int64
	notBefore time.Time
	logger    *slog.Logger
	written   int
}

// emitBranches writes a CommitBranch fact for every commit that became
// reachable from a branch since that branch's previous tip. A branch that
// did not exist before contributes its whole history. Commits authored
// before notBefore are skipped.
func emitBranches(
	ctx context.Context, repo *gitlib.Repository, snap *refstate.Snapshot,
	p Params, notBefore time.Time, logger *slog.Logger,
) (int, error) {
	var prev map[string]gitlib.Hash
	if p.Previous != nil {
		prev = p.Previous.Branches
	}

	e := &branchEmitter{repo: repo, sink: p.Sink, repoID: p.RepoID, notBefore: notBefore, logger: logger}

	for _, name := range slices.Sorted(maps.Keys(snap.Branches)) {
		tip := snap.Branches[name]

		oldTip, existed := prev[name]
		if existed && oldTip == tip {
			continue
		}

		err := e.branch(ctx, name, tip, oldTip, existed)
		if err != nil {
			return e.written, err
		}
	}

	return e.written, nil
}

// branch walks tip, hiding oldTip when hide is set. Unreadable history is
// logged and yields partial facts; only sink failures are returned.
func (e *branchEmitter) branch(ctx context.Context, name string, tip, oldTip gitlib.Hash, hide bool) error {
	walk, err := e.repo.Walk()
	if err != nil {
		e.logger.WarnContext(ctx, "branch walk unavailable", "branch", name, "error", err)

		return nil
	}
	defer walk.Free()

	err = walk.Push(tip)
	if err != nil {
		e.logger.WarnContext(ctx, "branch tip unreadable", "branch", name, "tip", tip.String(), "error", err)

		return nil
	}

	if hide {
		hideErr := walk.Hide(oldTip)
		if hideErr != nil {
			e.logger.WarnContext(ctx, "previous branch tip unreadable, emitting full history",
				"branch", name, "tip", oldTip.String(), "error", hideErr)
		}
	}

	for {
		err = ctx.Err()
		if err != nil {
			return err
		}

		id, nextErr := walk.Next()
		if errors.Is(nextErr, io.EOF) {
			return nil
		}

		if nextErr != nil {
			e.logger.WarnContext(ctx, "branch walk interrupted", "branch", name, "error", nextErr)

			return nil
		}

		when, timeErr := e.repo.AuthorTime(ctx, id)
		if timeErr != nil {
			e.logger.WarnContext(ctx, "commit unreadable", "branch", name, "commit", id.String(), "error", timeErr)

			continue
		}

		if when.Before(e.notBefore) {
			continue
		}

		err = e.sink.Write(ctx, records.KindCommitBranch, records.CommitBranch{
			RepoID:     e.repoID,
			CommitID:   id,
			Branch:     name,
			AuthorTime: when.Unix(),
		})
		if err != nil {
			return fmt.Errorf("write branch %s commit %s: %w", name, id, err)
		}

		e.written++
	}
}

func executorKind(e scheduler.Executor) string {
	switch e.(type) {
	case scheduler.Pool, *scheduler.Pool:
		return "pool"
	case scheduler.Sequential, *scheduler.Sequential:
		return "sequential"
	default:
		return fmt.Sprintf("%T", e)
	}
}
