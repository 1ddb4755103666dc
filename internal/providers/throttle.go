package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Throttle enforces a minimum gap between requests to one provider. The
// limiter state lives with the provider handle, not in a package global, so
// tests and multiple instances never share limiters by accident.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle builds a throttle with the given minimum gap between calls.
func NewThrottle(minGap time.Duration) *Throttle {
	return &Throttle{limiter: rate.NewLimiter(rate.Every(minGap), 1)}
}

// Wait blocks until the next request is allowed or the context expires.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// NewBreaker wraps a provider in a circuit breaker: three consecutive
// failures open it for a minute, then a single trial request is allowed
// through.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// ClassifyStatus maps an HTTP status to the provider error taxonomy.
func ClassifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status 429", ErrTransient)
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrTransient, status)
	case status >= 400:
		return fmt.Errorf("%w: status %d", ErrPermanent, status)
	default:
		return nil
	}
}

// IsTransient reports whether the error is retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}
