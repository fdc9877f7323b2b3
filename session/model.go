package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Session is one authenticated device. It is the unit of logout and
// revocation.
type Session struct {
	ID           string
	AccountID    string
	Device       string
	Origin       string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
}

// ExpiredAt reports whether the session has passed its absolute expiry.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

func (s *Session) clone() *Session {
	c := *s
	return &c
}

// RefreshRecord is the persisted form of an issued refresh token.
type RefreshRecord struct {
	Hash      string
	AccountID string
	SessionID string
	Device    string
	Origin    string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// UsableAt reports whether the record may still renew an access token.
func (r *RefreshRecord) UsableAt(now time.Time) bool {
	return !r.Revoked && r.ExpiresAt.After(now)
}

// HashRefreshToken is the lookup key for a refresh token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
