package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a per-key failure budget: at most Max hits per Window.
type Limiter interface {
	// Allow reports whether key still has budget, without consuming any.
	Allow(ctx context.Context, key string) (bool, error)
	// Hit consumes one unit and reports whether the key was still within
	// budget after the hit.
	Hit(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// Config is shared by both backends.
type Config struct {
	Max    int
	Window time.Duration
}

func (c Config) valid() bool {
	return c.Max > 0 && c.Window > 0
}

// Redis is a fixed-window Limiter.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// NewRedis creates a limiter whose keys live under prefix.
func NewRedis(client redis.UniversalClient, prefix string, cfg Config) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if !cfg.valid() {
		return nil, errors.New("rate limit max and window must be positive")
	}
	return &Redis{redis: client, prefix: prefix, config: cfg}, nil
}

func (l *Redis) key(key string) string {
	return l.prefix + key
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count < int64(l.config.Max), nil
}

func (l *Redis) Hit(ctx context.Context, key string) (bool, error) {
	k := l.key(key)
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set by the first hit only.
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.config.Window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count <= int64(l.config.Max), nil
}

func (l *Redis) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
