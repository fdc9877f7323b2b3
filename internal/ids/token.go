package ids

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const secretTokenSize = 32

var ErrTokenShape = errors.New("ids: malformed token")

// NewSecretToken returns 32 random bytes hex-encoded. It backs email
// verification and password reset links.
func NewSecretToken() (string, error) {
	var raw [secretTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// HashSecretToken returns the hex SHA-256 digest stored in place of token.
func HashSecretToken(token string) (string, error) {
	if len(token) != 2*secretTokenSize {
		return "", ErrTokenShape
	}
	if _, err := hex.DecodeString(token); err != nil {
		return "", ErrTokenShape
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:]), nil
}
