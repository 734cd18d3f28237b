package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricHooksTotal       = "descinject.hooks.total"
	metricHookDuration     = "descinject.hook.duration.seconds"
	metricResolutionMisses = "descinject.resolution.misses.total"
	metricCacheMisses      = "descinject.cache.misses.total"
	metricInflightHooks    = "descinject.inflight.hooks"
	metricRewrittenCalls   = "descinject.rewritten.calls.total"

	attrHook    = "hook"
	attrOutcome = "outcome"
)

// Hook names used as metric attributes.
const (
	HookLoad      = "load"
	HookTransform = "transform"
)

// durationBucketBoundaries covers 100µs to 5s; hooks parse a single file and
// at most a handful of wrapper modules.
var durationBucketBoundaries = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// PluginMetrics holds the OTel instruments recorded by the plugin hooks.
// A nil *PluginMetrics records nothing.
type PluginMetrics struct {
	hooksTotal       metric.Int64Counter
	hookDuration     metric.Float64Histogram
	resolutionMisses metric.Int64Counter
	cacheMisses      metric.Int64Counter
	inflightHooks    metric.Int64UpDownCounter
	rewrittenCalls   metric.Int64Counter
}

// NewPluginMetrics creates plugin metric instruments from the given meter.
func NewPluginMetrics(mt metric.Meter) (*PluginMetrics, error) {
	hooksTotal, err := mt.Int64Counter(metricHooksTotal,
		metric.WithDescription("Plugin hook invocations by outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricHooksTotal, err)
	}

	hookDuration, err := mt.Float64Histogram(metricHookDuration,
		metric.WithDescription("Plugin hook duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricHookDuration, err)
	}

	resolutionMisses, err := mt.Int64Counter(metricResolutionMisses,
		metric.WithDescription("Candidate imports the resolver could not locate"),
		metric.WithUnit("{import}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricResolutionMisses, err)
	}

	cacheMisses, err := mt.Int64Counter(metricCacheMisses,
		metric.WithDescription("Transforms that found no discovery verdict"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheMisses, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricInflightHooks,
		metric.WithDescription("Number of hooks currently running"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricInflightHooks, err)
	}

	rewritten, err := mt.Int64Counter(metricRewrittenCalls,
		metric.WithDescription("Container factory calls whose props were edited"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRewrittenCalls, err)
	}

	return &PluginMetrics{
		hooksTotal:       hooksTotal,
		hookDuration:     hookDuration,
		resolutionMisses: resolutionMisses,
		cacheMisses:      cacheMisses,
		inflightHooks:    inflight,
		rewrittenCalls:   rewritten,
	}, nil
}

// RecordHook records a completed hook with its outcome and duration.
func (pm *PluginMetrics) RecordHook(ctx context.Context, hook, outcome string, duration time.Duration) {
	if pm == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrHook, hook),
		attribute.String(attrOutcome, outcome),
	)

	pm.hooksTotal.Add(ctx, 1, attrs)
	pm.hookDuration.Record(ctx, duration.Seconds(), attrs)
}

// TrackInflight increments the in-flight gauge and returns a function to decrement it.
func (pm *PluginMetrics) TrackInflight(ctx context.Context, hook string) func() {
	if pm == nil {
		return func() {}
	}

	attrs := metric.WithAttributes(attribute.String(attrHook, hook))
	pm.inflightHooks.Add(ctx, 1, attrs)

	return func() {
		pm.inflightHooks.Add(ctx, -1, attrs)
	}
}

// ResolutionMiss counts one unresolved candidate import.
func (pm *PluginMetrics) ResolutionMiss(ctx context.Context) {
	if pm == nil {
		return
	}

	pm.resolutionMisses.Add(ctx, 1)
}

// CacheMiss counts one transform that ran before discovery.
func (pm *PluginMetrics) CacheMiss(ctx context.Context) {
	if pm == nil {
		return
	}

	pm.cacheMisses.Add(ctx, 1)
}

// RewrittenCalls counts edited factory calls.
func (pm *PluginMetrics) RewrittenCalls(ctx context.Context, n int) {
	if pm == nil || n == 0 {
		return
	}

	pm.rewrittenCalls.Add(ctx, int64(n))
}
