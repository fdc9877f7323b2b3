package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Elinez19/kleva/account"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// ErrLockoutUnavailable wraps failures of the backing store.
var ErrLockoutUnavailable = errors.New("lockout backend unavailable")

// LockoutConfig holds the lockout thresholds.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// FailureRecorder is the slice of account.Store the lockout needs. The
// increment must be atomic in the implementation.
type FailureRecorder interface {
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (account.LockState, error)
	ResetLoginFailures(ctx context.Context, id string) error
}

// Lockout moves an account between Open and Locked. A failure that
// reaches the threshold stores lock-until and resets the counter; a
// successful password check resets the counter without unlocking early.
type Lockout struct {
	store  FailureRecorder
	config LockoutConfig
	now    func() time.Time
}

func NewLockout(store FailureRecorder, cfg LockoutConfig, now func() time.Time) *Lockout {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultLockoutThreshold
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultLockoutDuration
	}
	if now == nil {
		now = time.Now
	}
	return &Lockout{store: store, config: cfg, now: now}
}

// Remaining returns how long acct stays locked, or zero when it is open.
// Callers must check this before any password comparison.
func (l *Lockout) Remaining(acct *account.Account) time.Duration {
	if l == nil || acct == nil {
		return 0
	}
	now := l.now()
	if !acct.LockedAt(now) {
		return 0
	}
	return acct.LockedUntil.Sub(now)
}

// RecordFailure counts one failed password check. The returned state has
// Locked set when this failure triggered the lock.
func (l *Lockout) RecordFailure(ctx context.Context, acct *account.Account) (account.LockState, error) {
	if l == nil || acct == nil {
		return account.LockState{}, nil
	}

	state, err := l.store.RecordLoginFailure(ctx, acct.ID, l.config.Threshold, l.now().Add(l.config.Duration))
	if err != nil {
		return account.LockState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return state, nil
}

// RecordSuccess resets the failure counter. It skips the write when the
// counter is already zero.
func (l *Lockout) RecordSuccess(ctx context.Context, acct *account.Account) error {
	if l == nil || acct == nil || acct.FailedAttempts == 0 {
		return nil
	}
	if err := l.store.ResetLoginFailures(ctx, acct.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}
