// Package observe provides application-wide observability primitives for
// tomeglot: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tomeglot metrics.
const meterName = "github.com/MrWong99/tomeglot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ChunkDuration tracks how long a single chunk takes to translate,
	// including retries and post-processing. Use with attribute:
	//   attribute.String("file_type", ...)
	ChunkDuration metric.Float64Histogram

	// JobDuration tracks end-to-end document translation latency. Use with
	// attribute: attribute.String("file_type", ...)
	JobDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts LLM API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ChunksTranslated counts translated chunks. Use with attribute:
	//   attribute.String("status", ...) — "completed" or "failed"
	ChunksTranslated metric.Int64Counter

	// JobsSubmitted counts submitted translation jobs. Use with attribute:
	//   attribute.String("file_type", ...)
	JobsSubmitted metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attribute:
	//   attribute.String("provider", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveJobs tracks the number of jobs currently translating.
	ActiveJobs metric.Int64UpDownCounter

	// QueuedJobs tracks the number of jobs waiting for a slot.
	QueuedJobs metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// chunkBuckets defines histogram bucket boundaries (in seconds) sized for LLM
// inference: a chunk typically takes seconds, a slow local model minutes.
var chunkBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// jobBuckets covers whole documents, from a short subtitle file to a novel.
var jobBuckets = []float64{
	5, 15, 60, 300, 900, 1800, 3600, 7200, 14400,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ChunkDuration, err = m.Float64Histogram("tomeglot.chunk.duration",
		metric.WithDescription("Latency of a single chunk translation including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(chunkBuckets...),
	); err != nil {
		return nil, err
	}
	if met.JobDuration, err = m.Float64Histogram("tomeglot.job.duration",
		metric.WithDescription("End-to-end document translation latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("tomeglot.provider.requests",
		metric.WithDescription("Total LLM provider requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ChunksTranslated, err = m.Int64Counter("tomeglot.chunks.translated",
		metric.WithDescription("Total translated chunks by status."),
	); err != nil {
		return nil, err
	}
	if met.JobsSubmitted, err = m.Int64Counter("tomeglot.jobs.submitted",
		metric.WithDescription("Total submitted translation jobs by file type."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("tomeglot.provider.errors",
		metric.WithDescription("Total provider errors by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveJobs, err = m.Int64UpDownCounter("tomeglot.active_jobs",
		metric.WithDescription("Number of jobs currently translating."),
	); err != nil {
		return nil, err
	}
	if met.QueuedJobs, err = m.Int64UpDownCounter("tomeglot.queued_jobs",
		metric.WithDescription("Number of jobs waiting for a translation slot."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("tomeglot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordChunk records a chunk translation result together with its duration.
func (m *Metrics) RecordChunk(ctx context.Context, fileType, status string, seconds float64) {
	m.ChunksTranslated.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	m.ChunkDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("file_type", fileType)),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
