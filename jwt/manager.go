package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// TokenType is the signed discriminator that keeps token kinds from being
// substituted for one another.
type TokenType string

const (
	TypeAccess    TokenType = "access"
	TypeRefresh   TokenType = "refresh"
	TypeTwoFactor TokenType = "2fa"
)

var (
	ErrExpired       = errors.New("token expired")
	ErrMalformed     = errors.New("token malformed")
	ErrBadSignature  = errors.New("token signature invalid")
	ErrWrongType     = errors.New("token type mismatch")
	ErrInvalidClaims = errors.New("token claims invalid")
)

// Config configures a Manager.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	TwoFactorTTL  time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for hs256, or an Ed25519 private key
	// (raw or PEM) for ed25519.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Claims is the signed token payload.
type Claims struct {
	Type      TokenType `json:"typ"`
	AccountID string    `json:"uid"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	SessionID string    `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens. It is safe for concurrent use.
type Manager struct {
	config    Config
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	now       func() time.Time
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.TwoFactorTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("access TTL must be shorter than refresh TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	m := &Manager{config: cfg, now: cfg.Now}
	if m.now == nil {
		m.now = time.Now
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verifyKey = cfg.PrivateKey
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
			m.verifyKey = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verifyKey = pub
		}
		if m.verifyKey == nil {
			return nil, errors.New("ed25519 requires a private or public key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// IssueAccess mints a short-lived access token. sessionID may be empty.
func (m *Manager) IssueAccess(accountID, email, role, sessionID string) (string, error) {
	return m.issue(TypeAccess, accountID, email, role, sessionID, m.config.AccessTTL)
}

// IssueRefresh mints a long-lived refresh token. Each token carries a
// unique id so two tokens issued in the same second never collide.
func (m *Manager) IssueRefresh(accountID, email, role string) (string, error) {
	return m.issue(TypeRefresh, accountID, email, role, "", m.config.RefreshTTL)
}

// IssueTwoFactor mints the temporary token returned when a login stops at
// the two-factor gate. It is rejected wherever an access token is expected.
func (m *Manager) IssueTwoFactor(accountID, email, role string) (string, error) {
	return m.issue(TypeTwoFactor, accountID, email, role, "", m.config.TwoFactorTTL)
}

func (m *Manager) issue(typ TokenType, accountID, email, role, sessionID string, ttl time.Duration) (string, error) {
	if m.signKey == nil {
		return "", errors.New("manager has no signing key")
	}
	if accountID == "" {
		return "", ErrInvalidClaims
	}

	now := m.now()
	claims := Claims{
		Type:      typ,
		AccountID: accountID,
		Email:     email,
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	return jwt.NewWithClaims(m.method, claims).SignedString(m.signKey)
}

// Verify checks signature, expiry and type. A correctly signed token of
// the wrong kind fails with ErrWrongType even after it expired.
func (m *Manager) Verify(token string, expected TokenType) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	claims := &Claims{}
	_, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, ErrBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		// The signature was checked before claims validation.
		if claims.Type != expected {
			return nil, ErrWrongType
		}
		return nil, ErrExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}

	if claims.Type != expected {
		return nil, ErrWrongType
	}
	if claims.AccountID == "" {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
