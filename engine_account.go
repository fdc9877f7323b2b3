package kleva

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Elinez19/kleva/account"
	"github.com/Elinez19/kleva/internal/ids"
	"github.com/Elinez19/kleva/notify"
)

// Register describes the register operation and its observable behavior.
//
// Register validates the email, role, password and role profile, stores a
// hashed password and a hashed verification token, and dispatches the
// plaintext token for delivery. It fails with ErrDuplicateEmail when the
// email or phone is taken and ErrWeakPassword when the password does not
// meet policy.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	email := account.NormalizeEmail(req.Email)
	if err := account.ValidateEmail(email); err != nil {
		return nil, err
	}
	if !req.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if err := account.CheckPassword(req.Password); err != nil {
		return nil, err
	}
	profile := req.Profile
	if err := profile.Validate(req.Role); err != nil {
		return nil, err
	}

	hash, err := e.passwords.Hash(req.Password)
	if err != nil {
		return nil, e.internal("hash password", err)
	}
	token, tokenHash, err := newSecretToken()
	if err != nil {
		return nil, e.internal("generate verification token", err)
	}

	now := e.now()
	acct := &account.Account{
		ID:                    ids.NewAccountIDAt(now),
		Email:                 email,
		PasswordHash:          hash,
		Role:                  req.Role,
		Profile:               profile,
		Active:                true,
		VerificationTokenHash: tokenHash,
		VerificationExpiresAt: now.Add(e.config.Tokens.VerificationTTL),
		Approval:              account.InitialApproval(req.Role),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := e.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, e.internal("create account", err, zap.String("email", email))
	}

	e.logger.Info("account registered", zap.String("account_id", acct.ID), zap.String("role", string(acct.Role)))
	e.dispatch(notify.TypeVerificationRequested, acct, token, nil)
	return &RegisterResult{AccountID: acct.ID, Approval: acct.Approval}, nil
}

// DeactivateAccount soft-deletes the account and ends all its sessions.
// Accounts are never hard-deleted.
func (e *Engine) DeactivateAccount(ctx context.Context, accountID string) error {
	if err := e.setActive(ctx, accountID, false); err != nil {
		return err
	}
	if _, err := e.revokeEverything(ctx, accountID); err != nil {
		return err
	}
	e.logger.Info("account deactivated", zap.String("account_id", accountID))
	return nil
}

// ReactivateAccount reverses DeactivateAccount. Sessions are not restored.
func (e *Engine) ReactivateAccount(ctx context.Context, accountID string) error {
	if err := e.setActive(ctx, accountID, true); err != nil {
		return err
	}
	e.logger.Info("account reactivated", zap.String("account_id", accountID))
	return nil
}

func (e *Engine) setActive(ctx context.Context, accountID string, active bool) error {
	err := e.accounts.SetActive(ctx, accountID, active)
	if errors.Is(err, account.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return e.internal("set account active", err, zap.String("account_id", accountID), zap.Bool("active", active))
	}
	return nil
}

// newSecretToken returns a mailable token and the hash stored for it.
func newSecretToken() (token, hash string, err error) {
	token, err = ids.NewSecretToken()
	if err != nil {
		return "", "", err
	}
	hash, err = ids.HashSecretToken(token)
	if err != nil {
		return "", "", fmt.Errorf("hash fresh token: %w", err)
	}
	return token, hash, nil
}
