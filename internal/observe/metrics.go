// Package observe provides application-wide observability primitives for
// phonocoach: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all phonocoach metrics.
const meterName = "github.com/MrWong99/phonocoach"

// Provider kinds used as the "kind" attribute.
const (
	KindSTT = "stt"
	KindTTS = "tts"
	KindG2P = "g2p"
	KindLLM = "llm"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per collaborator ---

	// STTDuration tracks speech recognition latency.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks reference audio synthesis latency.
	TTSDuration metric.Float64Histogram

	// G2PDuration tracks text to phonemic conversion latency.
	G2PDuration metric.Float64Histogram

	// LLMDuration tracks coaching tip generation latency.
	LLMDuration metric.Float64Histogram

	// --- Scoring ---

	// Attempts counts scored attempts. Use with attribute:
	//   attribute.String("grade", ...)
	Attempts metric.Int64Counter

	// Score records the 0-100 score of every scored attempt.
	Score metric.Int64Histogram

	// --- Providers ---

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ToolCalls counts MCP tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ActiveSessions tracks the number of live practice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// recognition and synthesis calls, which range from milliseconds (dictionary
// lookups) to tens of seconds (remote transcription of long clips).
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 85, 90, 95, 100}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	latency := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	// Histograms.
	if met.STTDuration, err = latency("phonocoach.stt.duration", "Latency of speech recognition."); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = latency("phonocoach.tts.duration", "Latency of reference audio synthesis."); err != nil {
		return nil, err
	}
	if met.G2PDuration, err = latency("phonocoach.g2p.duration", "Latency of phonemic conversion."); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = latency("phonocoach.llm.duration", "Latency of coaching tip generation."); err != nil {
		return nil, err
	}
	if met.Score, err = m.Int64Histogram("phonocoach.score",
		metric.WithDescription("Score of scored attempts."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Attempts, err = m.Int64Counter("phonocoach.attempts",
		metric.WithDescription("Total scored attempts by grade."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("phonocoach.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("phonocoach.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("phonocoach.tool.calls",
		metric.WithDescription("Total MCP tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("phonocoach.sessions.active",
		metric.WithDescription("Number of live practice sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("phonocoach.http.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

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

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
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

// RecordProviderCall records the outcome of one collaborator call: the
// latency histogram for kind, the request counter, and on failure the error
// counter.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, kind string, d time.Duration, err error) {
	if h := m.durationFor(kind); h != nil {
		h.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, kind)
	}
	m.RecordProviderRequest(ctx, provider, kind, status)
}

// RecordAttempt records a scored attempt.
func (m *Metrics) RecordAttempt(ctx context.Context, grade string, score int) {
	m.Attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("grade", grade)))
	m.Score.Record(ctx, int64(score))
}

// RecordToolCall records a tool call counter increment.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

func (m *Metrics) durationFor(kind string) metric.Float64Histogram {
	switch kind {
	case KindSTT:
		return m.STTDuration
	case KindTTS:
		return m.TTSDuration
	case KindG2P:
		return m.G2PDuration
	case KindLLM:
		return m.LLMDuration
	}
	return nil
}
