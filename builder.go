package kleva

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Elinez19/kleva/account"
	"github.com/Elinez19/kleva/internal/limiters"
	"github.com/Elinez19/kleva/internal/metrics"
	"github.com/Elinez19/kleva/internal/rate"
	"github.com/Elinez19/kleva/jwt"
	"github.com/Elinez19/kleva/notify"
	"github.com/Elinez19/kleva/password"
	"github.com/Elinez19/kleva/session"
	"github.com/Elinez19/kleva/twofactor"
)

const dummyPassword = "kleva-timing-equalizer"

// Builder assembles an Engine. Each Builder builds at most one Engine.
type Builder struct {
	config Config

	accounts  account.Store
	sessions  session.Store
	cache     session.Cache
	refresh   session.RefreshStore
	redis     redis.UniversalClient
	sink      notify.Sink
	approvals ApprovalReader

	logger     *zap.Logger
	registerer prometheus.Registerer
	now        func() time.Time

	built bool
}

// New starts a Builder from DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAccountStore sets the credential store. Required.
func (b *Builder) WithAccountStore(s account.Store) *Builder {
	b.accounts = s
	return b
}

// WithSessionStore sets the durable session store. Required. When s also
// implements session.RefreshStore it holds refresh records too, unless
// WithRefreshStore overrides it.
func (b *Builder) WithSessionStore(s session.Store) *Builder {
	b.sessions = s
	return b
}

func (b *Builder) WithRefreshStore(s session.RefreshStore) *Builder {
	b.refresh = s
	return b
}

// WithSessionCache sets an explicit session cache.
func (b *Builder) WithSessionCache(c session.Cache) *Builder {
	b.cache = c
	return b
}

// WithRedis backs the session cache and the rate limit counters with
// client. Without it the engine runs durable-only with in-process limits.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithNotifier sets the sink behind the asynchronous dispatcher.
func (b *Builder) WithNotifier(sink notify.Sink) *Builder {
	b.sink = sink
	return b
}

// WithApprovalReader overrides how provider approval is read at login.
func (b *Builder) WithApprovalReader(r ApprovalReader) *Builder {
	b.approvals = r
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetricsRegisterer enables Prometheus collectors on reg.
func (b *Builder) WithMetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// WithClock overrides time.Now across the engine and its components.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the components.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.sessions == nil {
		return nil, errors.New("session store required")
	}

	refreshStore := b.refresh
	if refreshStore == nil {
		rs, ok := b.sessions.(session.RefreshStore)
		if !ok {
			return nil, errors.New("refresh store required")
		}
		refreshStore = rs
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- SESSIONS --------
	cache := b.cache
	if cache == nil && b.redis != nil {
		cache = session.NewRedisCache(b.redis, cfg.Session.RedisPrefix)
	}
	registry, err := session.NewRegistry(b.sessions, cache, session.RegistryConfig{
		Lifetime: cfg.sessionLifetime(),
		Now:      now,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	// -------- TOKENS / PASSWORDS --------
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		TwoFactorTTL:  cfg.JWT.TwoFactorTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(cfg.Password.hasherConfig())
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	tf, err := twofactor.NewManager(b.accounts, twofactor.Config{
		Issuer:           cfg.TwoFactor.Issuer,
		Skew:             cfg.TwoFactor.Skew,
		BackupCodeCount:  cfg.TwoFactor.BackupCodeCount,
		BackupCodeLength: cfg.TwoFactor.BackupCodeLength,
		Now:              now,
	})
	if err != nil {
		return nil, err
	}

	// -------- LIMITS --------
	loginLimiter, err := b.limiter(cfg, cfg.RateLimit.LoginPerOrigin)
	if err != nil {
		return nil, err
	}
	tfLimiter, err := b.limiter(cfg, cfg.RateLimit.TwoFactorPerAccount)
	if err != nil {
		return nil, err
	}
	emailLimiter, err := b.limiter(cfg, cfg.RateLimit.EmailRequests)
	if err != nil {
		return nil, err
	}

	// -------- NOTIFY / METRICS --------
	dispatcher := notify.NewDispatcher(notify.Config{
		BufferSize:      cfg.Notify.BufferSize,
		DeliveryTimeout: cfg.Notify.DeliveryTimeout,
	}, b.sink, logger)

	var recorder *metrics.Recorder
	if b.registerer != nil {
		recorder, err = metrics.New(b.registerer, dispatcher.Dropped)
		if err != nil {
			dispatcher.Close()
			return nil, err
		}
	}

	engine := &Engine{
		config:            cfg,
		accounts:          b.accounts,
		sessions:          registry,
		refresh:           refreshStore,
		tokens:            tokens,
		passwords:         hasher,
		twoFactor:         tf,
		lockout:           limiters.NewLockout(b.accounts, limiters.LockoutConfig(cfg.Lockout), now),
		loginThrottle:     limiters.NewThrottle("login", loginLimiter),
		twoFactorThrottle: limiters.NewThrottle("2fa", tfLimiter),
		emailThrottle:     limiters.NewThrottle("email", emailLimiter),
		approvals:         b.approvals,
		notifier:          dispatcher,
		metrics:           recorder,
		logger:            logger.Named("kleva"),
		now:               now,
		dummyHash:         dummyHash,
	}

	b.built = true

	return engine, nil
}

// limiter returns nil when the budget is disabled, which turns the
// matching throttle into a no-op.
func (b *Builder) limiter(cfg Config, l LimitConfig) (rate.Limiter, error) {
	if l.Max <= 0 {
		return nil, nil
	}
	rc := rate.Config{Max: l.Max, Window: l.Window}
	if b.redis != nil {
		return rate.NewRedis(b.redis, cfg.RateLimit.RedisPrefix+":", rc)
	}
	return rate.NewLocal(rc)
}
