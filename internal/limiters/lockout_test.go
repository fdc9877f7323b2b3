package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Elinez19/kleva/account"
)

type failingRecorder struct{}

func (failingRecorder) RecordLoginFailure(context.Context, string, int, time.Time) (account.LockState, error) {
	return account.LockState{}, errors.New("db down")
}

func (failingRecorder) ResetLoginFailures(context.Context, string) error {
	return errors.New("db down")
}

func newLockoutFixture(t *testing.T) (*Lockout, *account.MemoryStore, *time.Time) {
	t.Helper()
	store := account.NewMemoryStore()
	if err := store.Create(context.Background(), &account.Account{ID: "u1", Email: "alice@example.com"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	l := NewLockout(store, LockoutConfig{Threshold: 5, Duration: 15 * time.Minute}, func() time.Time { return now })
	return l, store, &now
}

func load(t *testing.T, store *account.MemoryStore) *account.Account {
	t.Helper()
	a, err := store.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	return a
}

func TestLockoutLocksAtThreshold(t *testing.T) {
	l, store, now := newLockoutFixture(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		st, err := l.RecordFailure(ctx, load(t, store))
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if st.Locked {
			t.Fatalf("locked too early at attempt %d", i)
		}
		if l.Remaining(load(t, store)) != 0 {
			t.Fatalf("expected account open after %d failures", i)
		}
	}

	st, err := l.RecordFailure(ctx, load(t, store))
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !st.Locked {
		t.Fatal("expected fifth failure to lock")
	}

	acct := load(t, store)
	if acct.FailedAttempts != 0 {
		t.Fatalf("expected counter reset on lock, got %d", acct.FailedAttempts)
	}
	if got := l.Remaining(acct); got != 15*time.Minute {
		t.Fatalf("expected 15m remaining, got %v", got)
	}

	*now = now.Add(10 * time.Minute)
	if got := l.Remaining(acct); got != 5*time.Minute {
		t.Fatalf("expected 5m remaining, got %v", got)
	}

	*now = now.Add(5*time.Minute + time.Second)
	if got := l.Remaining(acct); got != 0 {
		t.Fatalf("expected lock to elapse, got %v", got)
	}
}

func TestLockoutSuccessResetsCounter(t *testing.T) {
	l, store, _ := newLockoutFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.RecordFailure(ctx, load(t, store)); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}
	if err := l.RecordSuccess(ctx, load(t, store)); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}
	if got := load(t, store).FailedAttempts; got != 0 {
		t.Fatalf("expected counter reset, got %d", got)
	}

	for i := 0; i < 4; i++ {
		st, _ := l.RecordFailure(ctx, load(t, store))
		if st.Locked {
			t.Fatal("expected counter to restart from zero after success")
		}
	}
}

func TestLockoutWrapsStoreErrors(t *testing.T) {
	l := NewLockout(failingRecorder{}, LockoutConfig{}, nil)
	acct := &account.Account{ID: "u1", FailedAttempts: 1}

	if _, err := l.RecordFailure(context.Background(), acct); !errors.Is(err, ErrLockoutUnavailable) {
		t.Fatalf("expected ErrLockoutUnavailable, got %v", err)
	}
	if err := l.RecordSuccess(context.Background(), acct); !errors.Is(err, ErrLockoutUnavailable) {
		t.Fatalf("expected ErrLockoutUnavailable, got %v", err)
	}
}

func TestNilLockoutIsOpen(t *testing.T) {
	var l *Lockout
	if l.Remaining(&account.Account{LockedUntil: time.Now().Add(time.Hour)}) != 0 {
		t.Fatal("nil lockout must report no lock")
	}
}
