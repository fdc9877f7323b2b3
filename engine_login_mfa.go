package kleva

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Elinez19/kleva/account"
	"github.com/Elinez19/kleva/internal/limiters"
	"github.com/Elinez19/kleva/internal/metrics"
	"github.com/Elinez19/kleva/jwt"
	"github.com/Elinez19/kleva/twofactor"
)

// CompleteTwoFactorLogin describes the second step of a two-factor login
// and its observable behavior.
//
// tempToken is the token returned by Login with RequiresTwoFactor set. It
// is only accepted here and never as a bearer token. The password is not
// checked again; lock and standing are, since either may have changed
// since the first step.
func (e *Engine) CompleteTwoFactorLogin(ctx context.Context, tempToken, code, device, origin string) (*LoginResult, error) {
	claims, err := e.tokens.Verify(tempToken, jwt.TypeTwoFactor)
	if err != nil {
		e.metrics.TwoFactor(metrics.ResultFailure)
		return nil, tokenError(err)
	}
	if code == "" {
		return nil, ErrTwoFactorRequired
	}

	acct, err := e.accounts.GetByID(ctx, claims.AccountID)
	if errors.Is(err, account.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, e.internal("load account", err, zap.String("account_id", claims.AccountID))
	}
	if remaining := e.lockout.Remaining(acct); remaining > 0 {
		return nil, &LockedError{RetryAfter: remaining}
	}
	if err := e.checkStanding(ctx, acct); err != nil {
		return nil, err
	}
	if !acct.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}

	if err := e.verifySecondFactor(ctx, acct, code); err != nil {
		return nil, err
	}
	return e.startSession(ctx, acct, device, origin)
}

// verifySecondFactor checks code against the account's TOTP secret and
// backup codes. Attempts are throttled per account on their own counter;
// they never touch the password lockout.
func (e *Engine) verifySecondFactor(ctx context.Context, acct *account.Account, code string) error {
	if err := e.twoFactorThrottle.Check(ctx, acct.ID); err != nil {
		if errors.Is(err, limiters.ErrThrottled) {
			e.metrics.TwoFactor(metrics.ResultThrottled)
			return ErrTwoFactorRateLimited
		}
		e.logger.Warn("two-factor throttle unavailable", zap.String("account_id", acct.ID), zap.Error(err))
	}

	method, err := e.twoFactor.VerifyLogin(ctx, acct, code)
	switch {
	case err == nil:
	case errors.Is(err, twofactor.ErrInvalidCode):
		if err := e.twoFactorThrottle.RecordFailure(ctx, acct.ID); err != nil {
			e.logger.Warn("record two-factor failure", zap.String("account_id", acct.ID), zap.Error(err))
		}
		e.metrics.TwoFactor(metrics.ResultFailure)
		return ErrInvalidTwoFactorCode
	case errors.Is(err, twofactor.ErrNotEnabled):
		return ErrTwoFactorNotEnabled
	default:
		e.metrics.TwoFactor(metrics.ResultUnavailable)
		return e.internal("verify two-factor code", err, zap.String("account_id", acct.ID))
	}

	if err := e.twoFactorThrottle.Reset(ctx, acct.ID); err != nil {
		e.logger.Warn("reset two-factor throttle", zap.String("account_id", acct.ID), zap.Error(err))
	}
	if method == twofactor.MethodBackupCode {
		e.metrics.TwoFactor(metrics.ResultBackupCode)
		e.logger.Info("backup code consumed", zap.String("account_id", acct.ID))
		return nil
	}
	e.metrics.TwoFactor(metrics.ResultSuccess)
	return nil
}
