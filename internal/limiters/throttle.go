package limiters

import (
	"context"
	"errors"
	"fmt"

	"github.com/Elinez19/kleva/internal/rate"
)

var (
	ErrThrottled           = errors.New("throttled")
	ErrThrottleUnavailable = errors.New("throttle backend unavailable")
)

// Throttle namespaces a rate.Limiter budget. Keys are prefixed with the
// throttle name so one backend can serve several throttles.
type Throttle struct {
	name    string
	limiter rate.Limiter
}

func NewThrottle(name string, limiter rate.Limiter) *Throttle {
	if limiter == nil {
		return nil
	}
	return &Throttle{name: name, limiter: limiter}
}

func (t *Throttle) key(key string) string {
	return t.name + ":" + key
}

// Check returns ErrThrottled when key has no budget left.
func (t *Throttle) Check(ctx context.Context, key string) error {
	if t == nil || key == "" {
		return nil
	}
	ok, err := t.limiter.Allow(ctx, t.key(key))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	if !ok {
		return ErrThrottled
	}
	return nil
}

// RecordFailure consumes one unit of budget.
func (t *Throttle) RecordFailure(ctx context.Context, key string) error {
	if t == nil || key == "" {
		return nil
	}
	if _, err := t.limiter.Hit(ctx, t.key(key)); err != nil {
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return nil
}

// Take consumes one unit and returns ErrThrottled when the budget was
// already spent. Used for request-style throttles where every call counts.
func (t *Throttle) Take(ctx context.Context, key string) error {
	if t == nil || key == "" {
		return nil
	}
	ok, err := t.limiter.Hit(ctx, t.key(key))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	if !ok {
		return ErrThrottled
	}
	return nil
}

func (t *Throttle) Reset(ctx context.Context, key string) error {
	if t == nil || key == "" {
		return nil
	}
	if err := t.limiter.Reset(ctx, t.key(key)); err != nil {
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return nil
}
