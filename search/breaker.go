package search

import (
	"context"
	"errors"
	"log/slog"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/poiesic/wayfinder/config"
	"github.com/poiesic/wayfinder/metrics"
)

// newBreaker creates the circuit breaker guarding place store lookups.
// Caller cancellations are not counted as failures.
func newBreaker(cfg config.BreakerConfig, m *metrics.Metrics, logger *slog.Logger) *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:        "place-store",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			m.SetBreakerState(float64(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return gobreaker.NewCircuitBreaker[any](settings)
}

// guard runs fn with the lookup timeout, behind the breaker when one is configured.
func guard[T any](ctx context.Context, s *Searcher, fn func(ctx context.Context) (T, error)) (T, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	if s.breaker == nil {
		return fn(lookupCtx)
	}

	var zero T
	result, err := s.breaker.Execute(func() (any, error) {
		return fn(lookupCtx)
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

// degradationKind maps a lookup error to its metrics label.
func degradationKind(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return metrics.KindBreaker
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.KindTimeout
	default:
		return metrics.KindSearch
	}
}
