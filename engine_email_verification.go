package kleva

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Elinez19/kleva/account"
	"github.com/Elinez19/kleva/internal/ids"
	"github.com/Elinez19/kleva/internal/limiters"
	"github.com/Elinez19/kleva/notify"
)

// VerifyEmail consumes a verification token and marks the owning account
// verified. Tokens are single use.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	hash, err := ids.HashSecretToken(token)
	if err != nil {
		return ErrVerificationTokenInvalid
	}
	acct, err := e.accounts.ConsumeVerificationToken(ctx, hash, e.now())
	if errors.Is(err, account.ErrTokenInvalid) {
		return ErrVerificationTokenInvalid
	}
	if err != nil {
		return e.internal("consume verification token", err)
	}

	e.logger.Info("email verified", zap.String("account_id", acct.ID))
	e.dispatch(notify.TypeWelcome, acct, "", nil)
	return nil
}

// ResendVerification issues a fresh verification token. It returns nil for
// unknown or already verified emails so callers cannot probe which
// addresses are registered.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	email = account.NormalizeEmail(email)
	if !e.allowEmailRequest(ctx, email) {
		return nil
	}

	acct, err := e.accounts.GetByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		return nil
	}
	if err != nil {
		return e.internal("load account by email", err, zap.String("email", email))
	}
	if acct.EmailVerified || !acct.Active {
		return nil
	}

	token, hash, err := newSecretToken()
	if err != nil {
		return e.internal("generate verification token", err)
	}
	if err := e.accounts.SetVerificationToken(ctx, acct.ID, hash, e.now().Add(e.config.Tokens.VerificationTTL)); err != nil {
		return e.internal("store verification token", err, zap.String("account_id", acct.ID))
	}
	e.dispatch(notify.TypeVerificationRequested, acct, token, nil)
	return nil
}

// allowEmailRequest spends one unit of the per-email request budget.
// Throttled requests are silently dropped.
func (e *Engine) allowEmailRequest(ctx context.Context, email string) bool {
	err := e.emailThrottle.Take(ctx, email)
	switch {
	case err == nil:
		return true
	case errors.Is(err, limiters.ErrThrottled):
		e.logger.Info("email request throttled", zap.String("email", email))
		return false
	default:
		e.logger.Warn("email throttle unavailable", zap.String("email", email), zap.Error(err))
		return true
	}
}
