package account

import (
	"context"
	"time"
)

// Store is the durable credential store. Implementations must make
// RecordLoginFailure and ConsumeBackupCode atomic with respect to
// concurrent callers; the rest of the engine holds no in-process locks.
type Store interface {
	// Create fails with ErrDuplicateEmail, or ErrDuplicatePhone (which
	// matches ErrDuplicateEmail) when the phone is taken.
	Create(ctx context.Context, acct *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	// GetByEmail expects a normalized email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	// ConsumeVerificationToken marks the owning account verified and clears
	// the token in one step. Unknown or expired tokens yield ErrTokenInvalid.
	ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*Account, error)
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	// ConsumeResetToken clears the token and returns the owning account.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (*Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetActive(ctx context.Context, id string, active bool) error

	// RecordLoginFailure increments the failed-attempt counter. When the
	// increment reaches threshold the counter resets to zero and
	// lockUntil is stored.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (LockState, error)
	ResetLoginFailures(ctx context.Context, id string) error

	// SetPendingTwoFactor replaces the secret and backup codes and leaves
	// 2FA disabled until EnableTwoFactor.
	SetPendingTwoFactor(ctx context.Context, id, secret string, codeHashes []string) error
	EnableTwoFactor(ctx context.Context, id string) error
	ClearTwoFactor(ctx context.Context, id string) error
	// ConsumeBackupCode marks the matching unused code used and reports
	// whether this call consumed it.
	ConsumeBackupCode(ctx context.Context, id, codeHash string) (bool, error)
	RemainingBackupCodes(ctx context.Context, id string) (int, error)
}
