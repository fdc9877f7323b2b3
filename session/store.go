package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("session not found")
	ErrCacheMiss        = errors.New("session cache miss")
	ErrRedisUnavailable = errors.New("redis unavailable")
	ErrRefreshNotFound  = errors.New("refresh token not found")
)

// Store is the durable session store and the source of truth.
type Store interface {
	Save(ctx context.Context, s *Session) error
	// Get returns ErrNotFound for unknown ids. Expired rows may be returned;
	// the registry filters them.
	Get(ctx context.Context, id string) (*Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	// Delete removes the session and returns its owner.
	Delete(ctx context.Context, id string) (accountID string, err error)
	DeleteAllForAccount(ctx context.Context, accountID string) ([]string, error)
	ListForAccount(ctx context.Context, accountID string, now time.Time) ([]*Session, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Cache is the fast, best-effort session copy. Entries expire by TTL.
type Cache interface {
	Put(ctx context.Context, s *Session, ttl time.Duration) error
	// Get returns ErrCacheMiss when the entry is absent.
	Get(ctx context.Context, id string) (*Session, error)
	// Touch updates last activity and leaves the remaining TTL untouched.
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, accountID, id string) error
	// DeleteAll removes every id in the account's index plus ids.
	DeleteAll(ctx context.Context, accountID string, ids []string) error
}

// RefreshStore holds refresh token records keyed by token hash.
type RefreshStore interface {
	SaveRefresh(ctx context.Context, r *RefreshRecord) error
	GetRefresh(ctx context.Context, hash string) (*RefreshRecord, error)
	// RevokeRefresh flips the revoked flag and reports whether this call
	// did it; a second call for the same hash returns false.
	RevokeRefresh(ctx context.Context, hash string) (bool, error)
	RevokeRefreshForSession(ctx context.Context, sessionID string) error
	RevokeRefreshForAccount(ctx context.Context, accountID string) error
	DeleteExpiredRefresh(ctx context.Context, before time.Time) (int64, error)
}
