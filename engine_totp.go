package kleva

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Elinez19/kleva/account"
	"github.com/Elinez19/kleva/internal/limiters"
	"github.com/Elinez19/kleva/notify"
	"github.com/Elinez19/kleva/twofactor"
)

// TwoFactorEnrollment is returned once by Enroll2FA. The secret and backup
// codes cannot be retrieved again.
type TwoFactorEnrollment struct {
	Secret          string
	ProvisioningURI string
	QRCode          string
	BackupCodes     []string
}

// Enroll2FA describes the enroll2fa operation and its observable behavior.
//
// Enroll2FA requires the current password and stores a new secret and
// backup codes pending confirmation. 2FA stays off until Confirm2FA. The
// password check is subject to the lockout exactly like Login.
func (e *Engine) Enroll2FA(ctx context.Context, accountID, password string) (*TwoFactorEnrollment, error) {
	acct, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if err := e.verifyCurrentPassword(ctx, acct, password); err != nil {
		return nil, err
	}
	enrollment, err := e.twoFactor.BeginEnrollment(ctx, acct)
	if err != nil {
		return nil, e.twoFactorError("begin two-factor enrollment", acct.ID, err)
	}
	return &TwoFactorEnrollment{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		QRCode:          enrollment.QRCode,
		BackupCodes:     enrollment.BackupCodes,
	}, nil
}

// Confirm2FA describes the confirm2fa operation and its observable behavior.
//
// Confirm2FA checks a TOTP code against the pending secret and enables 2FA.
func (e *Engine) Confirm2FA(ctx context.Context, accountID, code string) error {
	acct, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := e.twoFactor.ConfirmEnrollment(ctx, acct, code); err != nil {
		return e.twoFactorError("confirm two-factor enrollment", acct.ID, err)
	}
	e.logger.Info("two-factor enabled", zap.String("account_id", acct.ID))
	e.dispatch(notify.TypeTwoFactorEnabled, acct, "", nil)
	return nil
}

// Disable2FA describes the disable2fa operation and its observable behavior.
//
// Disable2FA requires the password, plus a TOTP or backup code when 2FA is
// enabled, and clears the secret and backup codes.
func (e *Engine) Disable2FA(ctx context.Context, accountID, password, code string) error {
	acct, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !acct.TwoFactorEnabled && !acct.TwoFactorPending() {
		return ErrTwoFactorNotEnabled
	}
	if err := e.verifyCurrentPassword(ctx, acct, password); err != nil {
		return err
	}
	if acct.TwoFactorEnabled {
		if err := e.twoFactorThrottle.Check(ctx, acct.ID); errors.Is(err, limiters.ErrThrottled) {
			return ErrTwoFactorRateLimited
		}
	}
	if err := e.twoFactor.Disable(ctx, acct, code); err != nil {
		if errors.Is(err, twofactor.ErrInvalidCode) {
			if err := e.twoFactorThrottle.RecordFailure(ctx, acct.ID); err != nil {
				e.logger.Warn("record two-factor failure", zap.String("account_id", acct.ID), zap.Error(err))
			}
		}
		return e.twoFactorError("disable two-factor", acct.ID, err)
	}
	e.logger.Info("two-factor disabled", zap.String("account_id", acct.ID))
	return nil
}

// BackupCodesRemaining reports how many unused backup codes the account has.
func (e *Engine) BackupCodesRemaining(ctx context.Context, accountID string) (int, error) {
	n, err := e.accounts.RemainingBackupCodes(ctx, accountID)
	if err != nil {
		return 0, e.internal("count backup codes", err, zap.String("account_id", accountID))
	}
	return n, nil
}

func (e *Engine) loadAccount(ctx context.Context, accountID string) (*account.Account, error) {
	acct, err := e.accounts.GetByID(ctx, accountID)
	if errors.Is(err, account.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, e.internal("load account", err, zap.String("account_id", accountID))
	}
	if !acct.Active {
		return nil, ErrAccountDisabled
	}
	return acct, nil
}

func (e *Engine) twoFactorError(op, accountID string, err error) error {
	switch {
	case errors.Is(err, twofactor.ErrInvalidCode):
		return ErrInvalidTwoFactorCode
	case errors.Is(err, twofactor.ErrAlreadyEnabled):
		return ErrTwoFactorAlreadyEnabled
	case errors.Is(err, twofactor.ErrNotEnabled), errors.Is(err, twofactor.ErrNotPending):
		return ErrTwoFactorNotEnabled
	default:
		return e.internal(op, err, zap.String("account_id", accountID))
	}
}
