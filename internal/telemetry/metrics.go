package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	PublishAttempts     metric.Int64Counter
	PublishDuration     metric.Float64Histogram
	SweepPostsSynced    metric.Int64Counter
	TokenRefreshes      metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("social-publisher-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	publishAttempts, err := meter.Int64Counter(
		"publish.attempts.total",
		metric.WithDescription("Publish attempts by platform and outcome"),
	)
	if err != nil {
		return nil, err
	}

	publishDuration, err := meter.Float64Histogram(
		"publish.duration",
		metric.WithDescription("Platform publish call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	sweepPostsSynced, err := meter.Int64Counter(
		"sweep.posts.synced",
		metric.WithDescription("Posts re-enqueued by the reconciliation sweep"),
	)
	if err != nil {
		return nil, err
	}

	tokenRefreshes, err := meter.Int64Counter(
		"tokens.refreshes.total",
		metric.WithDescription("OAuth token refresh attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		PublishAttempts:     publishAttempts,
		PublishDuration:     publishDuration,
		SweepPostsSynced:    sweepPostsSynced,
		TokenRefreshes:      tokenRefreshes,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordPublish records one publish attempt and its duration
func (m *Metrics) RecordPublish(platform, outcome string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("publish.platform", platform),
		attribute.String("publish.outcome", outcome),
	}

	m.PublishAttempts.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.PublishDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordSweep records how many posts one sweep run re-enqueued
func (m *Metrics) RecordSweep(synced, failed int64) {
	m.SweepPostsSynced.Add(context.Background(), synced,
		metric.WithAttributes(attribute.String("sweep.outcome", "synced")))
	if failed > 0 {
		m.SweepPostsSynced.Add(context.Background(), failed,
			metric.WithAttributes(attribute.String("sweep.outcome", "failed")))
	}
}

// RecordTokenRefresh records one token refresh attempt
func (m *Metrics) RecordTokenRefresh(platform, outcome string) {
	attrs := []attribute.KeyValue{
		attribute.String("token.platform", platform),
		attribute.String("token.outcome", outcome),
	}

	m.TokenRefreshes.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
