package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Elinez19/kleva/account"
)

const accountColumns = `id, email, password_hash, role, profile, active, email_verified,
verification_token_hash, verification_expires_at, reset_token_hash, reset_expires_at,
two_factor_enabled, two_factor_secret, failed_attempts, locked_until,
approval, rejection_reason, created_at, updated_at`

// AccountStore implements account.Store.
type AccountStore struct{ db *DB }

var _ account.Store = (*AccountStore)(nil)

func NewAccountStore(db *DB) *AccountStore { return &AccountStore{db: db} }

func (s *AccountStore) Create(ctx context.Context, a *account.Account) error {
	const q = `
INSERT INTO accounts (id, email, phone, password_hash, role, profile, active, email_verified,
    verification_token_hash, verification_expires_at, approval, rejection_reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`

	profile, err := json.Marshal(a.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	var verifyExpires any
	if !a.VerificationExpiresAt.IsZero() {
		verifyExpires = a.VerificationExpiresAt
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = s.db.Pool.Exec(ctx, q,
		a.ID, a.Email, nullString(a.Profile.Phone), a.PasswordHash, string(a.Role), profile,
		a.Active, a.EmailVerified, nullString(a.VerificationTokenHash), verifyExpires,
		string(a.Approval), a.RejectionReason, created)
	if pg, ok := uniqueViolation(err); ok {
		if pg.ConstraintName == "accounts_phone_key" {
			return account.ErrDuplicatePhone
		}
		return account.ErrDuplicateEmail
	}
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (*account.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(s.db.Pool.QueryRow(ctx, q, id))
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(s.db.Pool.QueryRow(ctx, q, email))
}

func (s *AccountStore) SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	const q = `
UPDATE accounts
SET verification_token_hash = $2, verification_expires_at = $3, updated_at = now()
WHERE id = $1`
	return s.execOne(ctx, q, id, tokenHash, expiresAt)
}

func (s *AccountStore) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*account.Account, error) {
	q := `
UPDATE accounts
SET email_verified = TRUE, verification_token_hash = NULL, verification_expires_at = NULL, updated_at = now()
WHERE verification_token_hash = $1 AND verification_expires_at > $2
RETURNING ` + accountColumns
	a, err := scanAccount(s.db.Pool.QueryRow(ctx, q, tokenHash, now))
	if errors.Is(err, account.ErrNotFound) {
		return nil, account.ErrTokenInvalid
	}
	return a, err
}

func (s *AccountStore) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	const q = `
UPDATE accounts
SET reset_token_hash = $2, reset_expires_at = $3, updated_at = now()
WHERE id = $1`
	return s.execOne(ctx, q, id, tokenHash, expiresAt)
}

// ConsumeResetToken only matches unexpired tokens. An expired token stays
// until the next reset request overwrites it.
func (s *AccountStore) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (*account.Account, error) {
	q := `
UPDATE accounts
SET reset_token_hash = NULL, reset_expires_at = NULL, updated_at = now()
WHERE reset_token_hash = $1 AND reset_expires_at > $2
RETURNING ` + accountColumns
	a, err := scanAccount(s.db.Pool.QueryRow(ctx, q, tokenHash, now))
	if errors.Is(err, account.ErrNotFound) {
		return nil, account.ErrTokenInvalid
	}
	return a, err
}

func (s *AccountStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	const q = `UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`
	return s.execOne(ctx, q, id, hash)
}

func (s *AccountStore) SetActive(ctx context.Context, id string, active bool) error {
	const q = `UPDATE accounts SET active = $2, updated_at = now() WHERE id = $1`
	return s.execOne(ctx, q, id, active)
}

// RecordLoginFailure increments and, at threshold, locks in one statement so
// concurrent failures cannot both observe the pre-lock count.
func (s *AccountStore) RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (account.LockState, error) {
	const q = `
UPDATE accounts
SET failed_attempts = CASE WHEN failed_attempts + 1 >= $2 THEN 0 ELSE failed_attempts + 1 END,
    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
    updated_at = now()
WHERE id = $1
RETURNING failed_attempts, locked_until`

	var (
		state  account.LockState
		locked *time.Time
	)
	err := s.db.Pool.QueryRow(ctx, q, id, threshold, lockUntil).Scan(&state.Attempts, &locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return state, account.ErrNotFound
	}
	if err != nil {
		return state, err
	}
	state.LockedUntil = nullTime(locked)
	// A failure always leaves the counter at one or more unless it locked.
	state.Locked = state.Attempts == 0
	return state, nil
}

func (s *AccountStore) ResetLoginFailures(ctx context.Context, id string) error {
	const q = `UPDATE accounts SET failed_attempts = 0, updated_at = now() WHERE id = $1`
	return s.execOne(ctx, q, id)
}

func (s *AccountStore) SetPendingTwoFactor(ctx context.Context, id, secret string, codeHashes []string) (err error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const upd = `UPDATE accounts SET two_factor_enabled = FALSE, two_factor_secret = $2, updated_at = now() WHERE id = $1`
	const del = `DELETE FROM backup_codes WHERE account_id = $1`
	const ins = `INSERT INTO backup_codes (account_id, code_hash) SELECT $1, unnest($2::text[])`

	tag, err := tx.Exec(ctx, upd, id, secret)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	if _, err = tx.Exec(ctx, del, id); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, ins, id, codeHashes)
	return err
}

// EnableTwoFactor returns ErrTwoFactorNotPending when no secret is stored,
// including for unknown ids.
func (s *AccountStore) EnableTwoFactor(ctx context.Context, id string) error {
	const q = `
UPDATE accounts
SET two_factor_enabled = TRUE, updated_at = now()
WHERE id = $1 AND two_factor_secret <> ''`
	tag, err := s.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return account.ErrTwoFactorNotPending
	}
	return nil
}

func (s *AccountStore) ClearTwoFactor(ctx context.Context, id string) error {
	const q = `
WITH cleared AS (DELETE FROM backup_codes WHERE account_id = $1)
UPDATE accounts
SET two_factor_enabled = FALSE, two_factor_secret = '', updated_at = now()
WHERE id = $1`
	return s.execOne(ctx, q, id)
}

func (s *AccountStore) ConsumeBackupCode(ctx context.Context, id, codeHash string) (bool, error) {
	const q = `
UPDATE backup_codes
SET used_at = now()
WHERE account_id = $1 AND code_hash = $2 AND used_at IS NULL`
	tag, err := s.db.Pool.Exec(ctx, q, id, codeHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *AccountStore) RemainingBackupCodes(ctx context.Context, id string) (int, error) {
	const q = `SELECT count(*) FROM backup_codes WHERE account_id = $1 AND used_at IS NULL`
	var n int
	if err := s.db.Pool.QueryRow(ctx, q, id).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Approval reads the provider approval columns written by the approval
// workflow.
func (s *AccountStore) Approval(ctx context.Context, id string) (account.Approval, string, error) {
	const q = `SELECT approval, rejection_reason FROM accounts WHERE id = $1`
	var approval, reason string
	err := s.db.Pool.QueryRow(ctx, q, id).Scan(&approval, &reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", account.ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	return account.Approval(approval), reason, nil
}

func (s *AccountStore) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := s.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		a                                        account.Account
		role, approval                           string
		profile                                  []byte
		verifyHash, resetHash                    *string
		verifyExpires, resetExpires, lockedUntil *time.Time
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &role, &profile, &a.Active, &a.EmailVerified,
		&verifyHash, &verifyExpires, &resetHash, &resetExpires,
		&a.TwoFactorEnabled, &a.TwoFactorSecret, &a.FailedAttempts, &lockedUntil,
		&approval, &a.RejectionReason, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &a.Profile); err != nil {
			return nil, fmt.Errorf("decode profile for %s: %w", a.ID, err)
		}
	}
	a.Role = account.Role(role)
	a.Approval = account.Approval(approval)
	if verifyHash != nil {
		a.VerificationTokenHash = *verifyHash
	}
	if resetHash != nil {
		a.ResetTokenHash = *resetHash
	}
	a.VerificationExpiresAt = nullTime(verifyExpires)
	a.ResetExpiresAt = nullTime(resetExpires)
	a.LockedUntil = nullTime(lockedUntil)
	return &a, nil
}
