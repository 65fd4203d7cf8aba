package platform

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"social-publisher-platform/internal/logger"
	"social-publisher-platform/internal/telemetry"
)

// breakerMetrics receives circuit breaker state changes when a metrics
// sink has been installed. Set once at process start, before any guard
// is built.
var breakerMetrics *telemetry.Metrics

// UseMetrics routes circuit breaker state changes from every guard into
// the metrics sink.
func UseMetrics(m *telemetry.Metrics) {
	breakerMetrics = m
}

// Guard wraps every outbound platform call in a rate limiter and a
// circuit breaker so one misbehaving platform cannot starve the worker
// pool or hammer a degraded API.
type Guard struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewGuard(name string, rps float64, burst int) *Guard {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if breakerMetrics != nil {
				breakerMetrics.RecordCircuitBreakerState(name, to.String())
			}
		},
	})

	return &Guard{
		name:    name,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Do runs fn behind the limiter and breaker. Breaker rejections surface
// as transient errors so the queue retries once the platform recovers.
func (g *Guard) Do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, Transient(g.name+" rate limiter wait", err)
	}

	out, err := g.breaker.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, Transient(g.name+" circuit breaker open", err)
		}
		return nil, err
	}
	return out, nil
}
