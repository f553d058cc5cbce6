package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-assistant/internal/common/config"
	"catalog-assistant/internal/common/logger"

	"github.com/sony/gobreaker"
)

// BreakerCompleter stops calling a failing backend until it cools down.
// Calls cut short by the caller's own deadline or cancellation do not count
// against the backend; an open breaker reports ErrUnavailable.
type BreakerCompleter struct {
	inner   Completer
	breaker *gobreaker.CircuitBreaker
}

// callerDoneError marks a failure that happened after the caller's context ended.
type callerDoneError struct {
	err error
}

func (e callerDoneError) Error() string { return e.err.Error() }

func (e callerDoneError) Unwrap() error { return e.err }

// countsAsSuccess keeps caller-side aborts out of the failure count.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var done callerDoneError
	return errors.As(err, &done) || errors.Is(err, context.Canceled)
}

func NewBreakerCompleter(inner Completer, cfg config.BreakerConfig, log logger.Logger) *BreakerCompleter {
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	openTimeout := config.GetDuration(cfg.OpenTimeoutMs)
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	return &BreakerCompleter{
		inner: inner,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:         "genai",
			MaxRequests:  1,
			Timeout:      openTimeout,
			IsSuccessful: countsAsSuccess,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(maxFailures)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Warn("circuit breaker state changed", map[string]interface{}{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				})
			},
		}),
	}
}

func (b *BreakerCompleter) Complete(ctx context.Context, prompt string, tier Tier) (string, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		text, err := b.inner.Complete(ctx, prompt, tier)
		if err != nil && ctx.Err() != nil {
			return nil, callerDoneError{err: err}
		}
		return text, err
	})
	if err != nil {
		var done callerDoneError
		if errors.As(err, &done) {
			return "", done.err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", err
	}
	return out.(string), nil
}

// State exposes the breaker state for readiness reporting.
func (b *BreakerCompleter) State() string {
	return b.breaker.State().String()
}
