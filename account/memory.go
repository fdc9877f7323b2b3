package account

import (
	"context"
	"sync"
	"time"
)

type backupCode struct {
	used bool
}

// MemoryStore is an in-process Store for tests and local development.
// Each instance is independent; there is no shared package state.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*Account
	byEmail map[string]string
	byPhone map[string]string
	backup  map[string]map[string]*backupCode
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
		byPhone: make(map[string]string),
		backup:  make(map[string]map[string]*backupCode),
		now:     time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, acct *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[acct.Email]; ok {
		return ErrDuplicateEmail
	}
	if acct.Profile.Phone != "" {
		if _, ok := s.byPhone[acct.Profile.Phone]; ok {
			return ErrDuplicatePhone
		}
	}

	c := acct.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	c.UpdatedAt = c.CreatedAt
	s.byID[c.ID] = c
	s.byEmail[c.Email] = c.ID
	if c.Profile.Phone != "" {
		s.byPhone[c.Profile.Phone] = c.ID
	}
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return acct.Clone(), nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) SetVerificationToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	return s.update(id, func(a *Account) error {
		a.VerificationTokenHash = tokenHash
		a.VerificationExpiresAt = expiresAt
		return nil
	})
}

func (s *MemoryStore) ConsumeVerificationToken(_ context.Context, tokenHash string, now time.Time) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.byID {
		if tokenHash == "" || a.VerificationTokenHash != tokenHash {
			continue
		}
		if !a.VerificationExpiresAt.After(now) {
			return nil, ErrTokenInvalid
		}
		a.EmailVerified = true
		a.VerificationTokenHash = ""
		a.VerificationExpiresAt = time.Time{}
		a.UpdatedAt = s.now()
		return a.Clone(), nil
	}
	return nil, ErrTokenInvalid
}

func (s *MemoryStore) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	return s.update(id, func(a *Account) error {
		a.ResetTokenHash = tokenHash
		a.ResetExpiresAt = expiresAt
		return nil
	})
}

func (s *MemoryStore) ConsumeResetToken(_ context.Context, tokenHash string, now time.Time) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.byID {
		if tokenHash == "" || a.ResetTokenHash != tokenHash {
			continue
		}
		valid := a.ResetExpiresAt.After(now)
		a.ResetTokenHash = ""
		a.ResetExpiresAt = time.Time{}
		if !valid {
			return nil, ErrTokenInvalid
		}
		a.UpdatedAt = s.now()
		return a.Clone(), nil
	}
	return nil, ErrTokenInvalid
}

func (s *MemoryStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return s.update(id, func(a *Account) error {
		a.PasswordHash = hash
		return nil
	})
}

func (s *MemoryStore) SetActive(_ context.Context, id string, active bool) error {
	return s.update(id, func(a *Account) error {
		a.Active = active
		return nil
	})
}

func (s *MemoryStore) RecordLoginFailure(_ context.Context, id string, threshold int, lockUntil time.Time) (LockState, error) {
	var state LockState
	err := s.update(id, func(a *Account) error {
		a.FailedAttempts++
		if a.FailedAttempts >= threshold {
			a.FailedAttempts = 0
			a.LockedUntil = lockUntil
			state.Locked = true
		}
		state.Attempts = a.FailedAttempts
		state.LockedUntil = a.LockedUntil
		return nil
	})
	return state, err
}

func (s *MemoryStore) ResetLoginFailures(_ context.Context, id string) error {
	return s.update(id, func(a *Account) error {
		a.FailedAttempts = 0
		return nil
	})
}

func (s *MemoryStore) SetPendingTwoFactor(_ context.Context, id, secret string, codeHashes []string) error {
	return s.update(id, func(a *Account) error {
		a.TwoFactorEnabled = false
		a.TwoFactorSecret = secret
		codes := make(map[string]*backupCode, len(codeHashes))
		for _, h := range codeHashes {
			codes[h] = &backupCode{}
		}
		s.backup[id] = codes
		return nil
	})
}

func (s *MemoryStore) EnableTwoFactor(_ context.Context, id string) error {
	return s.update(id, func(a *Account) error {
		if a.TwoFactorSecret == "" {
			return ErrTwoFactorNotPending
		}
		a.TwoFactorEnabled = true
		return nil
	})
}

func (s *MemoryStore) ClearTwoFactor(_ context.Context, id string) error {
	return s.update(id, func(a *Account) error {
		a.TwoFactorEnabled = false
		a.TwoFactorSecret = ""
		delete(s.backup, id)
		return nil
	})
}

func (s *MemoryStore) ConsumeBackupCode(_ context.Context, id, codeHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return false, ErrNotFound
	}
	code, ok := s.backup[id][codeHash]
	if !ok || code.used {
		return false, nil
	}
	code.used = true
	return true, nil
}

func (s *MemoryStore) RemainingBackupCodes(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return 0, ErrNotFound
	}
	n := 0
	for _, c := range s.backup[id] {
		if !c.used {
			n++
		}
	}
	return n, nil
}

// SetApproval stands in for the external approval workflow.
func (s *MemoryStore) SetApproval(id string, approval Approval, reason string) error {
	return s.update(id, func(a *Account) error {
		a.Approval = approval
		a.RejectionReason = reason
		return nil
	})
}

func (s *MemoryStore) update(id string, fn func(*Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(a); err != nil {
		return err
	}
	a.UpdatedAt = s.now()
	return nil
}
