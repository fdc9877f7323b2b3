package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAccountID    = "account_id"
	fieldDevice       = "device"
	fieldOrigin       = "origin"
	fieldCreatedAt    = "created_at"
	fieldLastActivity = "last_activity"
	fieldExpiresAt    = "expires_at"
)

// HSET on an existing hash keeps its TTL, so touching never extends the
// session's cache lifetime.
const touchSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "last_activity", ARGV[1])
return 1
`

var touchSessionLua = redis.NewScript(touchSessionScript)

// RedisCache stores each session as a hash under <prefix>:s:<id> and keeps
// a per-account set of session ids under <prefix>:as:<account>.
type RedisCache struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "kleva"
	}
	return &RedisCache{redis: client, prefix: prefix}
}

func (c *RedisCache) key(id string) string {
	return c.prefix + ":s:" + id
}

func (c *RedisCache) indexKey(accountID string) string {
	return c.prefix + ":as:" + accountID
}

// Put writes the session and its index entry. The index TTL only ever
// grows, so a read-through of an older session cannot expire the index
// ahead of a longer-lived member. NX covers the fresh set, GT extends an
// existing one (Redis >= 7.0).
func (c *RedisCache) Put(ctx context.Context, s *Session, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	key := c.key(s.ID)
	idx := c.indexKey(s.AccountID)
	idxTTL := ttl.Truncate(time.Second)
	if idxTTL < ttl {
		idxTTL += time.Second
	}

	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldAccountID, s.AccountID,
			fieldDevice, s.Device,
			fieldOrigin, s.Origin,
			fieldCreatedAt, s.CreatedAt.UnixMilli(),
			fieldLastActivity, s.LastActivity.UnixMilli(),
			fieldExpiresAt, s.ExpiresAt.UnixMilli(),
		)
		pipe.PExpire(ctx, key, ttl)
		pipe.SAdd(ctx, idx, s.ID)
		pipe.ExpireNX(ctx, idx, idxTTL)
		pipe.ExpireGT(ctx, idx, idxTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := c.redis.HGetAll(ctx, c.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrCacheMiss
	}
	return decodeFields(id, fields)
}

func (c *RedisCache) Touch(ctx context.Context, id string, at time.Time) error {
	n, err := touchSessionLua.Run(ctx, c.redis, []string{c.key(id)}, at.UnixMilli()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n == 0 {
		return ErrCacheMiss
	}
	return nil
}

// Delete is idempotent.
func (c *RedisCache) Delete(ctx context.Context, accountID, id string) error {
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.key(id))
		if accountID != "" {
			pipe.SRem(ctx, c.indexKey(accountID), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (c *RedisCache) DeleteAll(ctx context.Context, accountID string, ids []string) error {
	idx := c.indexKey(accountID)
	members, err := c.redis.SMembers(ctx, idx).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	seen := make(map[string]struct{}, len(members)+len(ids))
	keys := make([]string, 0, len(members)+len(ids)+1)
	for _, list := range [][]string{members, ids} {
		for _, id := range list {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			keys = append(keys, c.key(id))
		}
	}
	keys = append(keys, idx)

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func decodeFields(id string, fields map[string]string) (*Session, error) {
	created, err := parseMillis(fields[fieldCreatedAt])
	if err != nil {
		return nil, err
	}
	last, err := parseMillis(fields[fieldLastActivity])
	if err != nil {
		return nil, err
	}
	expires, err := parseMillis(fields[fieldExpiresAt])
	if err != nil {
		return nil, err
	}
	if fields[fieldAccountID] == "" {
		return nil, errors.New("cached session missing account id")
	}

	return &Session{
		ID:           id,
		AccountID:    fields[fieldAccountID],
		Device:       fields[fieldDevice],
		Origin:       fields[fieldOrigin],
		CreatedAt:    created,
		LastActivity: last,
		ExpiresAt:    expires,
	}, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("cached session has invalid timestamp %q", v)
	}
	return time.UnixMilli(ms), nil
}
