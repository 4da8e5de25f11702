package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCommitsTotal   = "githarvest.commits.total"
	metricPatchesTotal   = "githarvest.patches.total"
	metricRewritesTotal  = "githarvest.rewrites.total"
	metricIgnoredTotal   = "githarvest.ignored.files.total"
	metricBlameFallbacks = "githarvest.blame.fallbacks.total"
	metricCommitDuration = "githarvest.commit.duration.seconds"
	metricRunDuration    = "githarvest.run.duration.seconds"

	attrStatus = "status"

	// StatusOK and StatusError label commit and run outcomes.
	StatusOK    = "ok"
	StatusError = "error"
)

// commitBuckets covers 1ms to 60s per commit; runBuckets 1s to 2h per run.
var (
	commitBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	runBuckets    = []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600, 7200}
)

// ExtractionMetrics holds the instruments of an extraction run.
// A nil *ExtractionMetrics records nothing.
type ExtractionMetrics struct {
	commits        metric.Int64Counter
	patches        metric.Int64Counter
	rewrites       metric.Int64Counter
	ignored        metric.Int64Counter
	blameFallbacks metric.Int64Counter
	commitDuration metric.Float64Histogram
	runDuration    metric.Float64Histogram
}

// CommitStats is what one extracted commit contributes to the metrics.
type CommitStats struct {
	Patches        int
	Rewrites       int
	Ignored        int
	BlameFallbacks int
	Duration       time.Duration
	Err            error
}

// NewExtractionMetrics creates the instruments from mt.
func NewExtractionMetrics(mt metric.Meter) (*ExtractionMetrics, error) {
	var (
		m   ExtractionMetrics
		err error
	)

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.commits, metricCommitsTotal, "Commits extracted, by status", "{commit}"},
		{&m.patches, metricPatchesTotal, "Patch records emitted", "{patch}"},
		{&m.rewrites, metricRewritesTotal, "Patch rewrite records emitted", "{rewrite}"},
		{&m.ignored, metricIgnoredTotal, "Changed files dropped by the ignore spec", "{file}"},
		{&m.blameFallbacks, metricBlameFallbacks, "Patches whose blame failed", "{patch}"},
	}

	for _, c := range counters {
		*c.dst, err = mt.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
	}

	m.commitDuration, err = mt.Float64Histogram(metricCommitDuration,
		metric.WithDescription("Per-commit extraction duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(commitBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCommitDuration, err)
	}

	m.runDuration, err = mt.Float64Histogram(metricRunDuration,
		metric.WithDescription("Extraction run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(runBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunDuration, err)
	}

	return &m, nil
}

// RecordCommit records one commit. Safe for concurrent use.
func (m *ExtractionMetrics) RecordCommit(ctx context.Context, s CommitStats) {
	if m == nil {
		return
	}

	status := StatusOK
	if s.Err != nil {
		status = StatusError
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))

	m.commits.Add(ctx, 1, attrs)
	m.commitDuration.Record(ctx, s.Duration.Seconds(), attrs)
	m.patches.Add(ctx, int64(s.Patches))
	m.rewrites.Add(ctx, int64(s.Rewrites))
	m.ignored.Add(ctx, int64(s.Ignored))
	m.blameFallbacks.Add(ctx, int64(s.BlameFallbacks))
}

// RecordRun records the duration and outcome of a whole run.
func (m *ExtractionMetrics) RecordRun(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}

	status := StatusOK
	if err != nil {
		status = StatusError
	}

	m.runDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String(attrStatus, status)))
}
