package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type registryFixture struct {
	reg   *Registry
	store *MemoryStore
	cache *RedisCache
	mr    *miniredis.Miniredis
	now   time.Time
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	f := &registryFixture{
		store: NewMemoryStore(),
		cache: NewRedisCache(rdb, "test"),
		mr:    mr,
		now:   time.Unix(1_700_000_000, 0),
	}
	f.reg, err = NewRegistry(f.store, f.cache, RegistryConfig{
		Lifetime: time.Hour,
		Now:      func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return f
}

func (f *registryFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
	f.mr.FastForward(d)
}

func TestRegistryCreateWritesBothStores(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	s, err := f.reg.Create(ctx, NewSession{AccountID: "u1", Device: "firefox", Origin: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !s.ExpiresAt.Equal(f.now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", s.ExpiresAt)
	}

	if _, err := f.store.Get(ctx, s.ID); err != nil {
		t.Fatalf("expected durable copy, got %v", err)
	}
	if _, err := f.cache.Get(ctx, s.ID); err != nil {
		t.Fatalf("expected cached copy, got %v", err)
	}
	if ttl := f.mr.TTL("test:s:" + s.ID); ttl != time.Hour {
		t.Fatalf("expected cache TTL of one lifetime, got %v", ttl)
	}
	if ok, _ := f.mr.SIsMember("test:as:u1", s.ID); !ok {
		t.Fatal("expected session id in account index")
	}
}

func TestRegistryTouchPreservesCacheTTL(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	s, _ := f.reg.Create(ctx, NewSession{AccountID: "u1"})
	f.advance(20 * time.Minute)

	if err := f.reg.Touch(ctx, s.ID); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	if ttl := f.mr.TTL("test:s:" + s.ID); ttl != 40*time.Minute {
		t.Fatalf("expected remaining TTL to be kept at 40m, got %v", ttl)
	}

	cached, err := f.cache.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("cache Get failed: %v", err)
	}
	if !cached.LastActivity.Equal(f.now) {
		t.Fatalf("expected cached activity %v, got %v", f.now, cached.LastActivity)
	}
	durable, _ := f.store.Get(ctx, s.ID)
	if !durable.LastActivity.Equal(f.now) {
		t.Fatalf("expected durable activity %v, got %v", f.now, durable.LastActivity)
	}
}

func TestRegistryReadThroughRepopulatesCache(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	s, _ := f.reg.Create(ctx, NewSession{AccountID: "u1"})
	f.advance(15 * time.Minute)
	f.mr.Del("test:s:" + s.ID)

	got, err := f.reg.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AccountID != "u1" {
		t.Fatalf("unexpected session %+v", got)
	}
	if !f.mr.Exists("test:s:" + s.ID) {
		t.Fatal("expected read-through to repopulate cache")
	}
	if ttl := f.mr.TTL("test:s:" + s.ID); ttl != 45*time.Minute {
		t.Fatalf("expected repopulated TTL to equal remaining lifetime, got %v", ttl)
	}
}

func TestReadThroughKeepsAccountIndexTTL(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	older, _ := f.reg.Create(ctx, NewSession{AccountID: "u1"})
	f.advance(40 * time.Minute)
	newer, _ := f.reg.Create(ctx, NewSession{AccountID: "u1"})
	if ttl := f.mr.TTL("test:as:u1"); ttl != time.Hour {
		t.Fatalf("expected index TTL to follow the newest session, got %v", ttl)
	}

	f.mr.Del("test:s:" + older.ID)
	if _, err := f.reg.Get(ctx, older.ID); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ttl := f.mr.TTL("test:s:" + older.ID); ttl != 20*time.Minute {
		t.Fatalf("expected repopulated TTL of 20m, got %v", ttl)
	}
	if ttl := f.mr.TTL("test:as:u1"); ttl != time.Hour {
		t.Fatalf("read-through shortened index TTL to %v", ttl)
	}

	f.advance(30 * time.Minute)
	if ok, _ := f.mr.SIsMember("test:as:u1", newer.ID); !ok {
		t.Fatal("expected index to outlive the repopulated session")
	}
}

func TestRegistryRevokeRemovesFromBothPaths(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	s, _ := f.reg.Create(ctx, NewSession{AccountID: "u1"})
	if err := f.reg.Revoke(ctx, s.ID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := f.reg.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound via registry, got %v", err)
	}
	if _, err := f.cache.Get(ctx, s.ID); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	if _, err := f.store.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected durable not found, got %v", err)
	}
	if ok, _ := f.mr.SIsMember("test:as:u1", s.ID); ok {
		t.Fatal("expected id removed from account index")
	}

	if err := f.reg.Revoke(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected second revoke to report ErrNotFound, got %v", err)
	}
}

func TestRegistryRevokeAll(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	a, _ := f.reg.Create(ctx, NewSession{AccountID: "u1", Device: "phone"})
	b, _ := f.reg.Create(ctx, NewSession{AccountID: "u1", Device: "laptop"})
	other, _ := f.reg.Create(ctx, NewSession{AccountID: "u2"})

	n, err := f.reg.RevokeAll(ctx, "u1")
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked, got %d", n)
	}
	for _, id := range []string{a.ID, b.ID} {
		if _, err := f.reg.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected %s revoked, got %v", id, err)
		}
	}
	if f.mr.Exists("test:as:u1") {
		t.Fatal("expected account index deleted")
	}
	if _, err := f.reg.Get(ctx, other.ID); err != nil {
		t.Fatalf("expected other account untouched, got %v", err)
	}
}

func TestRegistryDegradesWhenCacheDown(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	f.mr.Close()
	s, err := f.reg.Create(ctx, NewSession{AccountID: "u1"})
	if err != nil {
		t.Fatalf("Create must succeed on durable store alone, got %v", err)
	}
	if _, err := f.reg.Get(ctx, s.ID); err != nil {
		t.Fatalf("Get must fall back to durable store, got %v", err)
	}
	if err := f.reg.Touch(ctx, s.ID); err != nil {
		t.Fatalf("Touch must tolerate cache outage, got %v", err)
	}
	if _, err := f.reg.RevokeAll(ctx, "u1"); err != nil {
		t.Fatalf("RevokeAll must tolerate cache outage, got %v", err)
	}
	if _, err := f.store.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected durable store to be authoritative, got %v", err)
	}
}

func TestRegistryWithoutCache(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStore()
	reg, err := NewRegistry(store, nil, RegistryConfig{Lifetime: time.Hour, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	ctx := context.Background()

	s, _ := reg.Create(ctx, NewSession{AccountID: "u1"})
	if _, err := reg.Get(ctx, s.ID); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	now = now.Add(time.Hour)
	if _, err := reg.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session to be not found, got %v", err)
	}
	list, _ := reg.List(ctx, "u1")
	if len(list) != 0 {
		t.Fatalf("expected expired session excluded from list, got %d", len(list))
	}
	if n, _ := reg.PurgeExpired(ctx); n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
}
