// Package ids generates account identifiers and one-time secrets.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewAccountID returns a lexicographically sortable ULID.
func NewAccountID() string {
	return NewAccountIDAt(time.Now())
}

func NewAccountIDAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
