// Package observe provides application-wide observability primitives for
// lexvoss: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all lexvoss metrics.
const meterName = "lexvoss"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// GenerationDuration tracks end-to-end question generation latency,
	// including validation retries.
	GenerationDuration metric.Float64Histogram

	// ChatDuration tracks tutor chat completion latency.
	ChatDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// QuestionsGenerated counts generated questions. Use with attributes:
	//   attribute.String("type", ...), attribute.String("backend", ...), attribute.String("status", ...)
	QuestionsGenerated metric.Int64Counter

	// QuestionsAnswered counts answered questions. Use with attribute:
	//   attribute.Bool("correct", ...)
	QuestionsAnswered metric.Int64Counter

	// WordsArchived counts words retired from rotation as mastered.
	WordsArchived metric.Int64Counter

	// BufferBuilds counts background buffer builds by outcome. Use with
	// attribute: attribute.String("outcome", "finished"|"cancelled")
	BufferBuilds metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live training sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// generationBuckets defines histogram bucket boundaries (in seconds) for
// LLM-bound operations, which run from sub-second to the 120s generation
// timeout.
var generationBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120,
}

// ttsBuckets defines histogram bucket boundaries (in seconds) for speech
// synthesis calls.
var ttsBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.GenerationDuration, err = m.Float64Histogram("lexvoss.generation.duration",
		metric.WithDescription("Latency of question generation including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(generationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChatDuration, err = m.Float64Histogram("lexvoss.chat.duration",
		metric.WithDescription("Latency of tutor chat completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(generationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("lexvoss.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(ttsBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.QuestionsGenerated, err = m.Int64Counter("lexvoss.questions.generated",
		metric.WithDescription("Total generated questions by type, backend, and status."),
	); err != nil {
		return nil, err
	}
	if met.QuestionsAnswered, err = m.Int64Counter("lexvoss.questions.answered",
		metric.WithDescription("Total answered questions by correctness."),
	); err != nil {
		return nil, err
	}
	if met.WordsArchived, err = m.Int64Counter("lexvoss.words.archived",
		metric.WithDescription("Total words archived as mastered."),
	); err != nil {
		return nil, err
	}
	if met.BufferBuilds, err = m.Int64Counter("lexvoss.buffer.builds",
		metric.WithDescription("Total background buffer builds by outcome."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("lexvoss.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("lexvoss.active_sessions",
		metric.WithDescription("Number of live training sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("lexvoss.http.request.duration",
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

// RecordQuestionGenerated records a generated-question counter increment
// with the standard attribute set.
func (m *Metrics) RecordQuestionGenerated(ctx context.Context, qtype, backend, status string) {
	m.QuestionsGenerated.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", qtype),
			attribute.String("backend", backend),
			attribute.String("status", status),
		),
	)
}

// RecordAnswer records an answered-question counter increment.
func (m *Metrics) RecordAnswer(ctx context.Context, correct bool) {
	m.QuestionsAnswered.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("correct", correct)),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
