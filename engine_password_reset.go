package kleva

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Elinez19/kleva/account"
	"github.com/Elinez19/kleva/internal/ids"
	"github.com/Elinez19/kleva/notify"
)

// RequestPasswordReset always returns nil, whether or not the email is
// registered. When it is, a reset token is stored and dispatched.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	email = account.NormalizeEmail(email)
	if !e.allowEmailRequest(ctx, email) {
		return nil
	}

	acct, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, account.ErrNotFound) {
			e.logger.Error("load account for password reset", zap.String("email", email), zap.Error(err))
		}
		return nil
	}
	if !acct.Active {
		return nil
	}

	token, hash, err := newSecretToken()
	if err != nil {
		e.logger.Error("generate reset token", zap.Error(err))
		return nil
	}
	if err := e.accounts.SetResetToken(ctx, acct.ID, hash, e.now().Add(e.config.Tokens.ResetTTL)); err != nil {
		e.logger.Error("store reset token", zap.String("account_id", acct.ID), zap.Error(err))
		return nil
	}
	e.dispatch(notify.TypePasswordResetRequested, acct, token, nil)
	return nil
}

// ResetPassword consumes a reset token, sets the new password, clears the
// lockout counter and revokes every session of the account.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := account.CheckPassword(newPassword); err != nil {
		return err
	}
	hash, err := ids.HashSecretToken(token)
	if err != nil {
		return ErrResetTokenInvalid
	}
	acct, err := e.accounts.ConsumeResetToken(ctx, hash, e.now())
	if errors.Is(err, account.ErrTokenInvalid) {
		return ErrResetTokenInvalid
	}
	if err != nil {
		return e.internal("consume reset token", err)
	}

	if err := e.setPassword(ctx, acct, newPassword); err != nil {
		return err
	}
	if err := e.accounts.ResetLoginFailures(ctx, acct.ID); err != nil {
		e.logger.Warn("reset login failures", zap.String("account_id", acct.ID), zap.Error(err))
	}
	e.logger.Info("password reset", zap.String("account_id", acct.ID))
	return nil
}

// ChangePassword requires the current password, which counts toward the
// lockout like a login attempt. On success all sessions of the account
// are revoked, including the caller's.
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, next string) error {
	acct, err := e.accounts.GetByID(ctx, accountID)
	if errors.Is(err, account.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return e.internal("load account", err, zap.String("account_id", accountID))
	}
	if err := e.verifyCurrentPassword(ctx, acct, current); err != nil {
		return err
	}

	if err := account.CheckPassword(next); err != nil {
		return err
	}
	if current == next {
		return ErrPasswordReuse
	}
	if err := e.setPassword(ctx, acct, next); err != nil {
		return err
	}
	e.logger.Info("password changed", zap.String("account_id", acct.ID))
	return nil
}

// verifyCurrentPassword re-checks the password of an authenticated caller
// under the same rules as login: a locked account is rejected before the
// hash is compared, and a mismatch counts toward the lockout.
func (e *Engine) verifyCurrentPassword(ctx context.Context, acct *account.Account, candidate string) error {
	if remaining := e.lockout.Remaining(acct); remaining > 0 {
		return &LockedError{RetryAfter: remaining}
	}
	return e.checkPassword(ctx, acct, candidate, "")
}

// setPassword rehashes, revokes everything and notifies.
func (e *Engine) setPassword(ctx context.Context, acct *account.Account, plain string) error {
	hash, err := e.passwords.Hash(plain)
	if err != nil {
		return e.internal("hash password", err, zap.String("account_id", acct.ID))
	}
	if err := e.accounts.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		return e.internal("update password hash", err, zap.String("account_id", acct.ID))
	}
	if _, err := e.revokeEverything(ctx, acct.ID); err != nil {
		return err
	}
	e.dispatch(notify.TypePasswordChanged, acct, "", nil)
	return nil
}
