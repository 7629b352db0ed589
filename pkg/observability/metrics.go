package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricTracesAnalyzed = "launchtrace.traces.analyzed"
	metricTraceDuration  = "launchtrace.trace.duration"
	metricMissingAnchors = "launchtrace.anchors.missing"
	metricInflightTraces = "launchtrace.traces.inflight"

	attrOutcome = "outcome"
	attrApp     = "app"
	attrAnchor  = "anchor"
)

// Trace outcomes recorded by LaunchMetrics.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeDegraded  = "degraded"
	OutcomeFailed    = "failed"
)

// durationBuckets covers 1ms to 60s; most traces analyse in well under a second.
var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// LaunchMetrics holds the per-trace analysis instruments.
type LaunchMetrics struct {
	analyzed metric.Int64Counter
	duration metric.Float64Histogram
	missing  metric.Int64Counter
	inflight metric.Int64UpDownCounter
}

// NewLaunchMetrics creates the instruments on mt.
func NewLaunchMetrics(mt metric.Meter) (*LaunchMetrics, error) {
	analyzed, err := mt.Int64Counter(metricTracesAnalyzed,
		metric.WithDescription("Traces analysed, by outcome"),
		metric.WithUnit("{trace}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTracesAnalyzed, err)
	}

	duration, err := mt.Float64Histogram(metricTraceDuration,
		metric.WithDescription("Wall time spent analysing one trace"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTraceDuration, err)
	}

	missing, err := mt.Int64Counter(metricMissingAnchors,
		metric.WithDescription("Optional anchors that could not be resolved"),
		metric.WithUnit("{anchor}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricMissingAnchors, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricInflightTraces,
		metric.WithDescription("Traces currently being analysed"),
		metric.WithUnit("{trace}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricInflightTraces, err)
	}

	return &LaunchMetrics{
		analyzed: analyzed,
		duration: duration,
		missing:  missing,
		inflight: inflight,
	}, nil
}

// RecordTrace records one finished trace.
func (lm *LaunchMetrics) RecordTrace(ctx context.Context, app, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrApp, app),
		attribute.String(attrOutcome, outcome),
	)

	lm.analyzed.Add(ctx, 1, attrs)
	lm.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordMissing counts each absent optional anchor by name.
func (lm *LaunchMetrics) RecordMissing(ctx context.Context, anchors []string) {
	for _, name := range anchors {
		lm.missing.Add(ctx, 1, metric.WithAttributes(attribute.String(attrAnchor, name)))
	}
}

// TrackInflight increments the in-flight gauge and returns the decrement.
func (lm *LaunchMetrics) TrackInflight(ctx context.Context) func() {
	lm.inflight.Add(ctx, 1)

	return func() { lm.inflight.Add(ctx, -1) }
}
