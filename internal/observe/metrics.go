// Package observe provides application-wide observability primitives for
// Tallyvox: OpenTelemetry metrics and the Prometheus exporter bridge that
// serves them on /metrics.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Tallyvox metrics.
const meterName = "github.com/MrWong99/tallyvox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// RecognizeDuration tracks per-chunk speech recognition latency.
	RecognizeDuration metric.Float64Histogram

	// FramesProcessed counts audio frames handed to a recognizer session.
	FramesProcessed metric.Int64Counter

	// FramesDropped counts audio frames discarded because a speaker's queue
	// was full or the router was already shut down. Use with attribute:
	//   attribute.String("reason", ...)
	FramesDropped metric.Int64Counter

	// KeywordHits counts debounced keyword detections. Use with attribute:
	//   attribute.String("keyword", ...)
	KeywordHits metric.Int64Counter

	// RecognizeErrors counts chunks the recognizer session rejected.
	RecognizeErrors metric.Int64Counter

	// StoreErrors counts failed writes to the durable count store.
	StoreErrors metric.Int64Counter

	// ActiveWorkers tracks the number of live per-speaker workers.
	ActiveWorkers metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// per-chunk recognition latency.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecognizeDuration, err = m.Float64Histogram("tallyvox.recognize.duration",
		metric.WithDescription("Latency of a single recognizer Accept call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesProcessed, err = m.Int64Counter("tallyvox.frames.processed",
		metric.WithDescription("Total audio frames handed to a recognizer session."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("tallyvox.frames.dropped",
		metric.WithDescription("Total audio frames discarded, by reason."),
	); err != nil {
		return nil, err
	}
	if met.KeywordHits, err = m.Int64Counter("tallyvox.keyword.hits",
		metric.WithDescription("Total debounced keyword detections, by keyword."),
	); err != nil {
		return nil, err
	}
	if met.RecognizeErrors, err = m.Int64Counter("tallyvox.recognize.errors",
		metric.WithDescription("Total audio chunks rejected by a recognizer session."),
	); err != nil {
		return nil, err
	}
	if met.StoreErrors, err = m.Int64Counter("tallyvox.store.errors",
		metric.WithDescription("Total failed writes to the durable count store."),
	); err != nil {
		return nil, err
	}
	if met.ActiveWorkers, err = m.Int64UpDownCounter("tallyvox.active_workers",
		metric.WithDescription("Number of live per-speaker workers."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordDrop records a dropped frame with the given reason.
func (m *Metrics) RecordDrop(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordHit records a keyword detection for the given keyword.
func (m *Metrics) RecordHit(ctx context.Context, keyword string) {
	m.KeywordHits.Add(ctx, 1,
		metric.WithAttributes(attribute.String("keyword", keyword)),
	)
}
