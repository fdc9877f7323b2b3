package kleva

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigNeedsSigningKey(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default config without a key to fail")
	}
	cfg.JWT.PrivateKey = []byte(strings.Repeat("k", 32))
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with key: %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short hs256 key", func(c *Config) { c.JWT.PrivateKey = []byte("short") }},
		{"refresh shorter than access", func(c *Config) { c.JWT.RefreshTTL = time.Minute }},
		{"two-factor token outlives access", func(c *Config) { c.JWT.TwoFactorTTL = time.Hour }},
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "rs512" }},
		{"ed25519 without public key", func(c *Config) { c.JWT.SigningMethod = "ed25519" }},
		{"ed25519 without private key", func(c *Config) {
			c.JWT.SigningMethod = "ed25519"
			c.JWT.PrivateKey = nil
			c.JWT.PublicKey = make([]byte, ed25519.PublicKeySize)
		}},
		{"weak argon2 memory", func(c *Config) { c.Password.Memory = 1024 }},
		{"session shorter than access", func(c *Config) { c.Session.Lifetime = time.Minute }},
		{"zero lockout threshold", func(c *Config) { c.Lockout.Threshold = 0 }},
		{"zero lockout duration", func(c *Config) { c.Lockout.Duration = 0 }},
		{"huge skew", func(c *Config) { c.TwoFactor.Skew = 30 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultPasswordCostMeetsProductionFloor(t *testing.T) {
	cfg := DefaultConfig().Password.hasherConfig()
	if !cfg.MeetsProductionFloor() {
		t.Fatalf("default password cost %+v is below the production floor", cfg)
	}
}

func TestConfigValidateAccepts(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ed25519 key pair", func(c *Config) {
			c.JWT.SigningMethod = "ed25519"
			c.JWT.PrivateKey = priv
			c.JWT.PublicKey = pub
		}},
		{"zero skew", func(c *Config) { c.TwoFactor.Skew = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestBuilderCopiesConfig(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)
	cfg.JWT.PrivateKey[0] = 'X'
	if b.config.JWT.PrivateKey[0] == 'X' {
		t.Fatal("builder shares key bytes with caller")
	}
}

func TestBuilderRequiresStores(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without stores")
	}
}
