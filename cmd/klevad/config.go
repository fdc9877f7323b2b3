package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/Elinez19/kleva"
)

// serverConfig is the klevad file format. Secrets are expected from the
// environment rather than the file.
type serverConfig struct {
	Addr            string        `toml:"addr"`
	LogLevel        string        `toml:"log_level"`
	PostgresDSN     string        `toml:"postgres_dsn"`
	RedisURL        string        `toml:"redis_url"`
	KafkaBrokers    []string      `toml:"kafka_brokers"`
	KafkaTopic      string        `toml:"kafka_topic"`
	CleanupInterval time.Duration `toml:"cleanup_interval"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`

	Auth authConfig `toml:"auth"`
}

type authConfig struct {
	JWTKey        string        `toml:"-"`
	Issuer        string        `toml:"issuer"`
	AccessTTL     time.Duration `toml:"access_ttl"`
	RefreshTTL    time.Duration `toml:"refresh_ttl"`
	SessionTTL    time.Duration `toml:"session_ttl"`
	RotateRefresh *bool         `toml:"rotate_refresh"`

	LockoutThreshold int           `toml:"lockout_threshold"`
	LockoutDuration  time.Duration `toml:"lockout_duration"`

	LoginPerOrigin int `toml:"login_per_origin"`
	TwoFactorLimit int `toml:"two_factor_limit"`
	EmailRequests  int `toml:"email_requests"`

	TwoFactorIssuer string `toml:"two_factor_issuer"`
	NotifyBuffer    int    `toml:"notify_buffer"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Addr:            ":8080",
		LogLevel:        "info",
		KafkaTopic:      "kleva.auth-events",
		CleanupInterval: 10 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
	}
}

// loadConfig reads path (optional), then .env, then KLEVA_* variables.
// Later sources win.
func loadConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("read .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if cfg.PostgresDSN == "" {
		return cfg, errors.New("postgres dsn required (KLEVA_POSTGRES_DSN)")
	}
	if cfg.Auth.JWTKey == "" {
		return cfg, errors.New("jwt signing key required (KLEVA_JWT_KEY)")
	}
	return cfg, nil
}

func applyEnv(cfg *serverConfig) error {
	str := map[string]*string{
		"KLEVA_ADDR":         &cfg.Addr,
		"KLEVA_LOG_LEVEL":    &cfg.LogLevel,
		"KLEVA_POSTGRES_DSN": &cfg.PostgresDSN,
		"KLEVA_REDIS_URL":    &cfg.RedisURL,
		"KLEVA_KAFKA_TOPIC":  &cfg.KafkaTopic,
		"KLEVA_JWT_KEY":      &cfg.Auth.JWTKey,
		"KLEVA_JWT_ISSUER":   &cfg.Auth.Issuer,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("KLEVA_KAFKA_BROKERS"); ok {
		cfg.KafkaBrokers = splitList(v)
	}

	dur := map[string]*time.Duration{
		"KLEVA_CLEANUP_INTERVAL": &cfg.CleanupInterval,
		"KLEVA_ACCESS_TTL":       &cfg.Auth.AccessTTL,
		"KLEVA_REFRESH_TTL":      &cfg.Auth.RefreshTTL,
		"KLEVA_SESSION_TTL":      &cfg.Auth.SessionTTL,
		"KLEVA_LOCKOUT_DURATION": &cfg.Auth.LockoutDuration,
	}
	for name, dst := range dur {
		v, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv("KLEVA_LOCKOUT_THRESHOLD"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KLEVA_LOCKOUT_THRESHOLD: %w", err)
		}
		cfg.Auth.LockoutThreshold = n
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// engineConfig overlays the non-zero file settings on kleva defaults.
func (c serverConfig) engineConfig() kleva.Config {
	cfg := kleva.DefaultConfig()
	a := c.Auth

	cfg.JWT.PrivateKey = []byte(a.JWTKey)
	if a.Issuer != "" {
		cfg.JWT.Issuer = a.Issuer
	}
	if a.AccessTTL > 0 {
		cfg.JWT.AccessTTL = a.AccessTTL
	}
	if a.RefreshTTL > 0 {
		cfg.JWT.RefreshTTL = a.RefreshTTL
	}
	if a.SessionTTL > 0 {
		cfg.Session.Lifetime = a.SessionTTL
	}
	if a.RotateRefresh != nil {
		cfg.Session.RotateRefresh = *a.RotateRefresh
	}
	if a.LockoutThreshold > 0 {
		cfg.Lockout.Threshold = a.LockoutThreshold
	}
	if a.LockoutDuration > 0 {
		cfg.Lockout.Duration = a.LockoutDuration
	}
	if a.LoginPerOrigin > 0 {
		cfg.RateLimit.LoginPerOrigin.Max = a.LoginPerOrigin
	}
	if a.TwoFactorLimit > 0 {
		cfg.RateLimit.TwoFactorPerAccount.Max = a.TwoFactorLimit
	}
	if a.EmailRequests > 0 {
		cfg.RateLimit.EmailRequests.Max = a.EmailRequests
	}
	if a.TwoFactorIssuer != "" {
		cfg.TwoFactor.Issuer = a.TwoFactorIssuer
	}
	if a.NotifyBuffer > 0 {
		cfg.Notify.BufferSize = a.NotifyBuffer
	}
	return cfg
}
