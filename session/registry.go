package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultLifetime matches the refresh token lifetime.
const DefaultLifetime = 7 * 24 * time.Hour

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Lifetime time.Duration
	Now      func() time.Time
	Logger   *zap.Logger
}

// NewSession describes a session to create.
type NewSession struct {
	AccountID string
	Device    string
	Origin    string
}

// Registry composes the durable store with an optional cache. Durable
// writes must succeed; cache writes are best-effort and logged.
type Registry struct {
	store    Store
	cache    Cache
	lifetime time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewRegistry builds a registry. cache may be nil.
func NewRegistry(store Store, cache Cache, cfg RegistryConfig) (*Registry, error) {
	if store == nil {
		return nil, errors.New("session: durable store required")
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Registry{
		store:    store,
		cache:    cache,
		lifetime: cfg.Lifetime,
		now:      cfg.Now,
		logger:   cfg.Logger.Named("session"),
	}, nil
}

// Lifetime is the absolute session lifetime.
func (r *Registry) Lifetime() time.Duration { return r.lifetime }

// Create persists a new session to the durable store, then mirrors it into
// the cache with a TTL equal to the session lifetime.
func (r *Registry) Create(ctx context.Context, ns NewSession) (*Session, error) {
	if ns.AccountID == "" {
		return nil, errors.New("session: account id required")
	}
	now := r.now()
	s := &Session{
		ID:           uuid.NewString(),
		AccountID:    ns.AccountID,
		Device:       ns.Device,
		Origin:       ns.Origin,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(r.lifetime),
	}

	if err := r.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("session: save: %w", err)
	}
	r.cachePut(ctx, s, r.lifetime)
	return s.clone(), nil
}

// Get reads the cache first. On a miss it falls back to the durable store
// and repopulates the cache with the remaining lifetime.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	now := r.now()

	if r.cache != nil {
		s, err := r.cache.Get(ctx, id)
		switch {
		case err == nil:
			if s.ExpiredAt(now) {
				return nil, ErrNotFound
			}
			return s, nil
		case errors.Is(err, ErrCacheMiss):
		default:
			r.logger.Warn("session cache read failed, using durable store",
				zap.String("session_id", id), zap.Error(err))
		}
	}

	s, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.ExpiredAt(now) {
		return nil, ErrNotFound
	}
	r.cachePut(ctx, s, s.ExpiresAt.Sub(now))
	return s, nil
}

// Touch records activity in both stores without extending the session.
func (r *Registry) Touch(ctx context.Context, id string) error {
	at := r.now()
	if err := r.store.Touch(ctx, id, at); err != nil {
		return err
	}
	if r.cache != nil {
		if err := r.cache.Touch(ctx, id, at); err != nil && !errors.Is(err, ErrCacheMiss) {
			r.logger.Warn("session cache touch failed", zap.String("session_id", id), zap.Error(err))
		}
	}
	return nil
}

// Revoke removes the session from both stores and the account index.
func (r *Registry) Revoke(ctx context.Context, id string) error {
	accountID, err := r.store.Delete(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	notFound := errors.Is(err, ErrNotFound)

	if r.cache != nil {
		if accountID == "" {
			if cached, cerr := r.cache.Get(ctx, id); cerr == nil {
				accountID = cached.AccountID
			}
		}
		if cerr := r.cache.Delete(ctx, accountID, id); cerr != nil {
			r.logger.Warn("session cache delete failed", zap.String("session_id", id), zap.Error(cerr))
		}
	}

	if notFound {
		return ErrNotFound
	}
	return nil
}

// RevokeAll deletes every session of the account from the durable store
// first; the cache is cleared afterwards on a best-effort basis.
func (r *Registry) RevokeAll(ctx context.Context, accountID string) (int, error) {
	ids, err := r.store.DeleteAllForAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if r.cache != nil {
		if cerr := r.cache.DeleteAll(ctx, accountID, ids); cerr != nil {
			r.logger.Warn("session cache bulk delete failed",
				zap.String("account_id", accountID), zap.Int("sessions", len(ids)), zap.Error(cerr))
		}
	}
	return len(ids), nil
}

// List returns the account's live sessions from the durable store.
func (r *Registry) List(ctx context.Context, accountID string) ([]*Session, error) {
	return r.store.ListForAccount(ctx, accountID, r.now())
}

// PurgeExpired removes expired sessions from the durable store.
func (r *Registry) PurgeExpired(ctx context.Context) (int64, error) {
	return r.store.DeleteExpired(ctx, r.now())
}

func (r *Registry) cachePut(ctx context.Context, s *Session, ttl time.Duration) {
	if r.cache == nil || ttl <= 0 {
		return
	}
	if err := r.cache.Put(ctx, s, ttl); err != nil {
		r.logger.Warn("session cache write failed", zap.String("session_id", s.ID), zap.Error(err))
	}
}
