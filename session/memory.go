package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store and RefreshStore in process memory, for
// tests and single-node development.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	refresh  map[string]*RefreshRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		refresh:  make(map[string]*RefreshRecord),
	}
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

func (m *MemoryStore) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.LastActivity = at
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return "", ErrNotFound
	}
	delete(m.sessions, id)
	return s.AccountID, nil
}

func (m *MemoryStore) DeleteAllForAccount(_ context.Context, accountID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, s := range m.sessions {
		if s.AccountID == accountID {
			ids = append(ids, id)
			delete(m.sessions, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) ListForAccount(_ context.Context, accountID string, now time.Time) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.AccountID == accountID && !s.ExpiredAt(now) {
			out = append(out, s.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.ExpiredAt(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SaveRefresh(_ context.Context, r *RefreshRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	m.refresh[r.Hash] = &c
	return nil
}

func (m *MemoryStore) GetRefresh(_ context.Context, hash string) (*RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refresh[hash]
	if !ok {
		return nil, ErrRefreshNotFound
	}
	c := *r
	return &c, nil
}

func (m *MemoryStore) RevokeRefresh(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refresh[hash]
	if !ok || r.Revoked {
		return false, nil
	}
	r.Revoked = true
	return true, nil
}

func (m *MemoryStore) RevokeRefreshForSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.refresh {
		if r.SessionID == sessionID {
			r.Revoked = true
		}
	}
	return nil
}

func (m *MemoryStore) RevokeRefreshForAccount(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.refresh {
		if r.AccountID == accountID {
			r.Revoked = true
		}
	}
	return nil
}

func (m *MemoryStore) DeleteExpiredRefresh(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, r := range m.refresh {
		if !r.ExpiresAt.After(before) {
			delete(m.refresh, h)
			n++
		}
	}
	return n, nil
}
