package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// DefaultBreakerSettings trips after more than five consecutive engine start failures.
func DefaultBreakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: notEngineFailure,
	}
}

// notEngineFailure treats a nil error and a canceled or expired caller context
// as success; only the engine failing to run counts against the breaker.
func notEngineFailure(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type breakerEngine struct {
	next Engine
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker guards next with a circuit breaker. Only errors returned by Run count
// as failures; a non-zero return code is a normal outcome, and so is a run cut short
// by its context. While the breaker is open Run fails fast with gobreaker.ErrOpenState.
func WithBreaker(next Engine, settings gobreaker.Settings) Engine {
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = notEngineFailure
	}
	return &breakerEngine{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerEngine) Run(ctx context.Context, inv Invocation) (*Outcome, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.Run(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Outcome), nil
}
