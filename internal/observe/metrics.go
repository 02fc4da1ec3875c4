// Package observe provides the skill's observability primitives:
// OpenTelemetry metrics, distributed tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// the Prometheus exporter set up by [InitProvider]. A package-level default
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

// meterName is the instrumentation scope name used for all skill metrics.
const meterName = "github.com/MrWong99/couchskill"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// IntentRequests counts handled skill requests. Attributes:
	//   attribute.String("intent", ...), attribute.String("outcome", ...)
	IntentRequests metric.Int64Counter

	// IntentDuration tracks end-to-end handling time of a skill request,
	// provider calls included.
	IntentDuration metric.Float64Histogram

	// ProviderRequests counts media provider calls. Attributes:
	//   attribute.String("provider", ...), attribute.String("op", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderDuration tracks media provider call latency.
	ProviderDuration metric.Float64Histogram

	// ProviderErrors counts failed provider calls. Attributes:
	//   attribute.String("provider", ...), attribute.String("op", ...)
	ProviderErrors metric.Int64Counter

	// CircuitTransitions counts circuit breaker state changes. Attributes:
	//   attribute.String("provider", ...), attribute.String("state", ...)
	CircuitTransitions metric.Int64Counter

	// RejectedRequests counts requests refused by the webhook before
	// dispatch. Attributes: attribute.String("reason", ...)
	RejectedRequests metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The voice
// platform gives a skill 8 seconds to answer.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.IntentRequests, err = m.Int64Counter("couchskill.intent.requests",
		metric.WithDescription("Total skill requests by intent and outcome."),
	); err != nil {
		return nil, err
	}
	if met.IntentDuration, err = m.Float64Histogram("couchskill.intent.duration",
		metric.WithDescription("Latency of skill request handling by intent."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("couchskill.provider.requests",
		metric.WithDescription("Total media provider calls by provider, operation, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderDuration, err = m.Float64Histogram("couchskill.provider.duration",
		metric.WithDescription("Latency of media provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("couchskill.provider.errors",
		metric.WithDescription("Total media provider errors by provider and operation."),
	); err != nil {
		return nil, err
	}
	if met.CircuitTransitions, err = m.Int64Counter("couchskill.circuit.transitions",
		metric.WithDescription("Circuit breaker state transitions by provider and new state."),
	); err != nil {
		return nil, err
	}

	if met.RejectedRequests, err = m.Int64Counter("couchskill.webhook.rejected",
		metric.WithDescription("Requests rejected before dispatch by reason."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("couchskill.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordIntent records one handled skill request and its latency.
func (m *Metrics) RecordIntent(ctx context.Context, intent, outcome string, d time.Duration) {
	m.IntentRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("intent", intent),
			attribute.String("outcome", outcome),
		),
	)
	m.IntentDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("intent", intent)),
	)
}

// RecordProviderRequest records one provider call, its latency, and, when
// status is not "ok", a provider error.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, op, status string, d time.Duration) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
	m.ProviderDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("op", op),
		),
	)
	if status != "ok" {
		m.ProviderErrors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("provider", provider),
				attribute.String("op", op),
			),
		)
	}
}

// RecordCircuitTransition records a breaker moving to state.
func (m *Metrics) RecordCircuitTransition(ctx context.Context, provider, state string) {
	m.CircuitTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("state", state),
		),
	)
}

// RecordRejected records a request refused before dispatch.
func (m *Metrics) RecordRejected(ctx context.Context, reason string) {
	m.RejectedRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
