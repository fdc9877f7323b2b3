package rate

import (
	"context"
	"errors"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

const defaultMaxLocalKeys = 10000

// Local keeps one token bucket per key in process memory. Buckets refill
// at Max per Window, so a key regains budget gradually instead of all at
// once as with the Redis fixed window.
type Local struct {
	mu      sync.Mutex
	config  Config
	buckets map[string]*xrate.Limiter
	maxKeys int
	now     func() time.Time
}

func NewLocal(cfg Config) (*Local, error) {
	if !cfg.valid() {
		return nil, errors.New("rate limit max and window must be positive")
	}
	return &Local{
		config:  cfg,
		buckets: make(map[string]*xrate.Limiter),
		maxKeys: defaultMaxLocalKeys,
		now:     time.Now,
	}, nil
}

func (l *Local) bucket(key string, create bool) *xrate.Limiter {
	b, ok := l.buckets[key]
	if ok || !create {
		return b
	}
	if len(l.buckets) >= l.maxKeys {
		l.evictFull()
	}
	every := l.config.Window / time.Duration(l.config.Max)
	b = xrate.NewLimiter(xrate.Every(every), l.config.Max)
	l.buckets[key] = b
	return b
}

// evictFull drops buckets that have refilled completely; they carry no
// state a fresh bucket would not.
func (l *Local) evictFull() {
	now := l.now()
	for k, b := range l.buckets {
		if b.TokensAt(now) >= float64(b.Burst()) {
			delete(l.buckets, k)
		}
	}
}

func (l *Local) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucket(key, false)
	if b == nil {
		return true, nil
	}
	return b.TokensAt(l.now()) >= 1, nil
}

func (l *Local) Hit(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.bucket(key, true).AllowN(l.now(), 1), nil
}

func (l *Local) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
	return nil
}
