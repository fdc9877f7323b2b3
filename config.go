package kleva

import (
	"errors"
	"time"

	"github.com/Elinez19/kleva/jwt"
	"github.com/Elinez19/kleva/notify"
	"github.com/Elinez19/kleva/password"
)

// Config holds every tunable of the Engine. Start from DefaultConfig and
// override what the deployment needs; Build validates the result.
type Config struct {
	JWT       JWTConfig
	Password  PasswordConfig
	Session   SessionConfig
	Lockout   LockoutConfig
	TwoFactor TwoFactorConfig
	Tokens    TokenConfig
	RateLimit RateLimitConfig
	Notify    NotifyConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures bearer token signing.
type JWTConfig struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	TwoFactorTTL time.Duration
	// SigningMethod is "hs256" (default) or "ed25519".
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the Argon2id cost. The defaults come from
// password.DefaultConfig and meet its production floor.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (p PasswordConfig) hasherConfig() password.Config {
	return password.Config{
		Memory:      p.Memory,
		Time:        p.Time,
		Parallelism: p.Parallelism,
		SaltLength:  p.SaltLength,
		KeyLength:   p.KeyLength,
	}
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	// Lifetime is the absolute session lifetime. Zero means the refresh TTL.
	Lifetime time.Duration
	// RotateRefresh issues a new refresh token on every refresh and treats
	// a second use of a rotated token as theft.
	RotateRefresh bool
	RedisPrefix   string
}

/*
====================================
LOCKOUT / RATE LIMIT CONFIG
====================================
*/

type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// LimitConfig is a budget of Max events per Window. Max <= 0 disables it.
type LimitConfig struct {
	Max    int
	Window time.Duration
}

type RateLimitConfig struct {
	// LoginPerOrigin counts failed logins per origin address.
	LoginPerOrigin LimitConfig
	// TwoFactorPerAccount counts failed second-factor codes per account.
	TwoFactorPerAccount LimitConfig
	// EmailRequests bounds reset and verification mails per address.
	EmailRequests LimitConfig
	RedisPrefix   string
}

/*
====================================
TWO-FACTOR / TOKENS / NOTIFY
====================================
*/

type TwoFactorConfig struct {
	Issuer           string
	Skew             uint
	BackupCodeCount  int
	BackupCodeLength int
}

// TokenConfig sets the lifetime of emailed one-time tokens.
type TokenConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

type NotifyConfig struct {
	BufferSize      int
	DeliveryTimeout time.Duration
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. JWT.PrivateKey is left empty
// and must be supplied.
func DefaultConfig() Config {
	hashing := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			TwoFactorTTL:  5 * time.Minute,
			SigningMethod: string(jwt.MethodHS256),
			Issuer:        "kleva",
		},
		Password: PasswordConfig{
			Memory:      hashing.Memory,
			Time:        hashing.Time,
			Parallelism: hashing.Parallelism,
			SaltLength:  hashing.SaltLength,
			KeyLength:   hashing.KeyLength,
		},
		Session: SessionConfig{
			Lifetime:      7 * 24 * time.Hour,
			RotateRefresh: false,
			RedisPrefix:   "kleva",
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:           "Kleva",
			Skew:             2,
			BackupCodeCount:  10,
			BackupCodeLength: 10,
		},
		Tokens: TokenConfig{
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
		},
		RateLimit: RateLimitConfig{
			LoginPerOrigin:      LimitConfig{Max: 20, Window: 15 * time.Minute},
			TwoFactorPerAccount: LimitConfig{Max: 5, Window: 15 * time.Minute},
			EmailRequests:       LimitConfig{Max: 3, Window: time.Hour},
			RedisPrefix:         "kleva:rl",
		},
		Notify: NotifyConfig{
			BufferSize:      notify.DefaultBufferSize,
			DeliveryTimeout: notify.DefaultDeliveryTimeout,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be longer than AccessTTL")
	}
	if c.JWT.TwoFactorTTL <= 0 || c.JWT.TwoFactorTTL > c.JWT.AccessTTL {
		return errors.New("JWT TwoFactorTTL must be > 0 and <= AccessTTL")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case jwt.MethodEd25519:
		// The engine signs tokens, so a verify-only key pair is not enough.
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Session
	if c.Session.Lifetime < 0 {
		return errors.New("Session Lifetime must be >= 0")
	}
	if c.Session.Lifetime > 0 && c.Session.Lifetime < c.JWT.AccessTTL {
		return errors.New("Session Lifetime must cover at least one access token")
	}

	// Lockout
	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Two-factor
	if c.TwoFactor.Skew > 10 {
		return errors.New("TwoFactor Skew must be <= 10")
	}
	if c.TwoFactor.BackupCodeCount < 1 || c.TwoFactor.BackupCodeCount > 20 {
		return errors.New("TwoFactor BackupCodeCount must be between 1 and 20")
	}
	if c.TwoFactor.BackupCodeLength < 8 || c.TwoFactor.BackupCodeLength > 32 {
		return errors.New("TwoFactor BackupCodeLength must be between 8 and 32")
	}

	// Tokens
	if c.Tokens.VerificationTTL <= 0 {
		return errors.New("Tokens VerificationTTL must be > 0")
	}
	if c.Tokens.ResetTTL <= 0 || c.Tokens.ResetTTL > 24*time.Hour {
		return errors.New("Tokens ResetTTL must be > 0 and <= 24h")
	}

	// Rate limits
	for name, l := range map[string]LimitConfig{
		"LoginPerOrigin":      c.RateLimit.LoginPerOrigin,
		"TwoFactorPerAccount": c.RateLimit.TwoFactorPerAccount,
		"EmailRequests":       c.RateLimit.EmailRequests,
	} {
		if l.Max > 0 && l.Window <= 0 {
			return errors.New("RateLimit " + name + " Window must be > 0 when Max is set")
		}
	}

	// Notify
	if c.Notify.BufferSize < 0 {
		return errors.New("Notify BufferSize must be >= 0")
	}

	return nil
}

func (c *Config) sessionLifetime() time.Duration {
	if c.Session.Lifetime > 0 {
		return c.Session.Lifetime
	}
	return c.JWT.RefreshTTL
}
