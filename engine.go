package kleva

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Elinez19/kleva/account"
	"github.com/Elinez19/kleva/internal/limiters"
	"github.com/Elinez19/kleva/internal/metrics"
	"github.com/Elinez19/kleva/jwt"
	"github.com/Elinez19/kleva/notify"
	"github.com/Elinez19/kleva/password"
	"github.com/Elinez19/kleva/session"
	"github.com/Elinez19/kleva/twofactor"
)

// Engine runs the account-security flows. It holds no per-request state;
// all mutable state lives in the stores, so one Engine serves concurrent
// requests.
//
// Safe to retry: Refresh, Authenticate, ListSessions and the read paths.
// Not safe to retry blindly: Login and ChangePassword, because a wrong
// password counts toward the lockout on every attempt.
type Engine struct {
	config    Config
	accounts  account.Store
	sessions  *session.Registry
	refresh   session.RefreshStore
	tokens    *jwt.Manager
	passwords *password.Argon2
	twoFactor *twofactor.Manager

	lockout           *limiters.Lockout
	loginThrottle     *limiters.Throttle
	twoFactorThrottle *limiters.Throttle
	emailThrottle     *limiters.Throttle

	approvals ApprovalReader
	notifier  *notify.Dispatcher
	metrics   *metrics.Recorder
	logger    *zap.Logger
	now       func() time.Time

	dummyHash string
}

// Close drains pending notifications.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.notifier.Close()
}

// NotificationsDropped reports events lost to a full dispatch buffer.
func (e *Engine) NotificationsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.notifier.Dropped()
}

// Login runs CredentialCheck, LockCheck, PasswordVerify and the
// TwoFactorGate, then issues tokens and creates the session. A locked
// account is rejected before the password hash is compared.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := e.loginThrottle.Check(ctx, req.Origin); err != nil {
		if errors.Is(err, limiters.ErrThrottled) {
			e.metrics.Login(metrics.ResultThrottled)
			return nil, ErrLoginRateLimited
		}
		e.logger.Warn("login throttle unavailable", zap.String("origin", req.Origin), zap.Error(err))
	}

	email := account.NormalizeEmail(req.Email)
	acct, err := e.accounts.GetByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		_, _ = e.passwords.Verify(req.Password, e.dummyHash)
		e.recordOriginFailure(ctx, req.Origin)
		e.metrics.Login(metrics.ResultFailure)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, e.internal("load account by email", err, zap.String("email", email))
	}

	if remaining := e.lockout.Remaining(acct); remaining > 0 {
		e.metrics.Login(metrics.ResultLocked)
		return nil, &LockedError{RetryAfter: remaining}
	}

	if err := e.checkPassword(ctx, acct, req.Password, req.Origin); err != nil {
		if errors.Is(err, ErrInvalidPassword) {
			err = ErrInvalidCredentials
		}
		return nil, err
	}

	if err := e.checkStanding(ctx, acct); err != nil {
		e.metrics.Login(metrics.ResultFailure)
		return nil, err
	}

	if acct.TwoFactorEnabled {
		if req.TwoFactorCode == "" {
			temp, err := e.tokens.IssueTwoFactor(acct.ID, acct.Email, string(acct.Role))
			if err != nil {
				return nil, e.internal("issue two-factor token", err, zap.String("account_id", acct.ID))
			}
			e.metrics.Login(metrics.ResultTwoFactor)
			return &LoginResult{RequiresTwoFactor: true, TempToken: temp}, nil
		}
		if err := e.verifySecondFactor(ctx, acct, req.TwoFactorCode); err != nil {
			return nil, err
		}
	}

	return e.startSession(ctx, acct, req.Device, req.Origin)
}

// checkPassword compares candidate with the stored hash and drives the
// lockout. It returns ErrInvalidPassword, *LockedError when this failure
// locked the account, or ErrInternal.
func (e *Engine) checkPassword(ctx context.Context, acct *account.Account, candidate, origin string) error {
	start := time.Now()
	ok, err := e.passwords.Verify(candidate, acct.PasswordHash)
	e.metrics.ObserveLogin(time.Since(start))
	if err != nil && !errors.Is(err, password.ErrEmptyPassword) && !errors.Is(err, password.ErrPasswordTooLong) {
		e.logger.Error("stored password hash unreadable", zap.String("account_id", acct.ID), zap.Error(err))
	}

	if ok {
		if err := e.lockout.RecordSuccess(ctx, acct); err != nil {
			e.logger.Warn("reset login failures", zap.String("account_id", acct.ID), zap.Error(err))
		}
		return nil
	}

	e.recordOriginFailure(ctx, origin)
	state, err := e.lockout.RecordFailure(ctx, acct)
	if err != nil {
		return e.internal("record login failure", err, zap.String("account_id", acct.ID))
	}
	if state.Locked {
		e.metrics.Lockout()
		e.metrics.Login(metrics.ResultLocked)
		until := state.LockedUntil
		e.logger.Info("account locked",
			zap.String("account_id", acct.ID), zap.Time("locked_until", until))
		e.dispatch(notify.TypeAccountLocked, acct, "", &until)
		return &LockedError{RetryAfter: until.Sub(e.now())}
	}
	e.metrics.Login(metrics.ResultFailure)
	return ErrInvalidPassword
}

// checkStanding applies the post-password gates: active, verified, and
// approved for providers.
func (e *Engine) checkStanding(ctx context.Context, acct *account.Account) error {
	if !acct.Active {
		return ErrAccountDisabled
	}
	if !acct.EmailVerified {
		return ErrEmailNotVerified
	}
	if acct.Role != account.RoleProvider {
		return nil
	}

	approval, reason := acct.Approval, acct.RejectionReason
	if e.approvals != nil {
		var err error
		approval, reason, err = e.approvals.Approval(ctx, acct.ID)
		if err != nil {
			return e.internal("read provider approval", err, zap.String("account_id", acct.ID))
		}
	}
	switch approval {
	case account.ApprovalApproved:
		return nil
	case account.ApprovalRejected:
		return &ApprovalRejectedError{Reason: reason}
	default:
		return ErrApprovalPending
	}
}

// startSession creates the session, then the access token bound to it,
// then the refresh record.
func (e *Engine) startSession(ctx context.Context, acct *account.Account, device, origin string) (*LoginResult, error) {
	sess, err := e.sessions.Create(ctx, session.NewSession{
		AccountID: acct.ID,
		Device:    device,
		Origin:    origin,
	})
	if err != nil {
		return nil, e.internal("create session", err, zap.String("account_id", acct.ID))
	}

	access, err := e.tokens.IssueAccess(acct.ID, acct.Email, string(acct.Role), sess.ID)
	if err != nil {
		e.abandonSession(ctx, sess.ID)
		return nil, e.internal("issue access token", err, zap.String("account_id", acct.ID))
	}
	refresh, err := e.issueRefresh(ctx, acct, sess)
	if err != nil {
		e.abandonSession(ctx, sess.ID)
		return nil, err
	}

	e.metrics.SessionCreated()
	e.metrics.Login(metrics.ResultSuccess)
	e.logger.Info("login succeeded",
		zap.String("account_id", acct.ID), zap.String("session_id", sess.ID), zap.String("origin", origin))

	return &LoginResult{
		AccessToken:     access,
		RefreshToken:    refresh,
		SessionID:       sess.ID,
		AccessExpiresAt: e.now().Add(e.tokens.AccessTTL()),
	}, nil
}

func (e *Engine) issueRefresh(ctx context.Context, acct *account.Account, sess *session.Session) (string, error) {
	token, err := e.tokens.IssueRefresh(acct.ID, acct.Email, string(acct.Role))
	if err != nil {
		return "", e.internal("issue refresh token", err, zap.String("account_id", acct.ID))
	}
	now := e.now()
	rec := &session.RefreshRecord{
		Hash:      session.HashRefreshToken(token),
		AccountID: acct.ID,
		SessionID: sess.ID,
		Device:    sess.Device,
		Origin:    sess.Origin,
		CreatedAt: now,
		ExpiresAt: now.Add(e.tokens.RefreshTTL()),
	}
	if err := e.refresh.SaveRefresh(ctx, rec); err != nil {
		return "", e.internal("save refresh record", err, zap.String("session_id", sess.ID))
	}
	return token, nil
}

func (e *Engine) abandonSession(ctx context.Context, sessionID string) {
	if err := e.sessions.Revoke(ctx, sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		e.logger.Warn("abandon session", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Refresh exchanges a refresh token for a new access token bound to the
// same session. With rotation enabled the presented token is retired and
// a replacement returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := e.tokens.Verify(refreshToken, jwt.TypeRefresh)
	if err != nil {
		e.metrics.Refresh(metrics.ResultFailure)
		return nil, tokenError(err)
	}

	rec, err := e.refresh.GetRefresh(ctx, session.HashRefreshToken(refreshToken))
	if errors.Is(err, session.ErrRefreshNotFound) {
		e.metrics.Refresh(metrics.ResultFailure)
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, e.internal("load refresh record", err, zap.String("account_id", claims.AccountID))
	}
	if rec.AccountID != claims.AccountID {
		e.metrics.Refresh(metrics.ResultFailure)
		return nil, ErrRefreshInvalid
	}

	now := e.now()
	if rec.Revoked {
		return nil, e.revokedRefreshUsed(ctx, rec)
	}
	if !rec.UsableAt(now) {
		e.metrics.Refresh(metrics.ResultFailure)
		return nil, ErrRefreshInvalid
	}

	sess, err := e.sessions.Get(ctx, rec.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		e.metrics.Refresh(metrics.ResultFailure)
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, e.internal("load session", err, zap.String("session_id", rec.SessionID))
	}

	acct, err := e.accounts.GetByID(ctx, rec.AccountID)
	if err != nil {
		return nil, e.internal("load account", err, zap.String("account_id", rec.AccountID))
	}
	if !acct.Active {
		e.metrics.Refresh(metrics.ResultFailure)
		return nil, ErrAccountDisabled
	}

	result := &RefreshResult{SessionID: sess.ID}
	if e.config.Session.RotateRefresh {
		retired, err := e.refresh.RevokeRefresh(ctx, rec.Hash)
		if err != nil {
			return nil, e.internal("retire refresh token", err, zap.String("session_id", sess.ID))
		}
		if !retired {
			// Another request retired it between our read and write.
			return nil, e.revokedRefreshUsed(ctx, rec)
		}
		next, err := e.issueRefresh(ctx, acct, sess)
		if err != nil {
			return nil, err
		}
		result.RefreshToken = next
	}

	access, err := e.tokens.IssueAccess(acct.ID, acct.Email, string(acct.Role), sess.ID)
	if err != nil {
		return nil, e.internal("issue access token", err, zap.String("account_id", acct.ID))
	}
	if err := e.sessions.Touch(ctx, sess.ID); err != nil {
		e.logger.Warn("touch session on refresh", zap.String("session_id", sess.ID), zap.Error(err))
	}

	e.metrics.Refresh(metrics.ResultSuccess)
	result.AccessToken = access
	result.AccessExpiresAt = now.Add(e.tokens.AccessTTL())
	return result, nil
}

// revokedRefreshUsed handles a revoked record. Under rotation a revoked
// token whose session is still alive was rotated away and is being
// replayed, so the session is ended.
func (e *Engine) revokedRefreshUsed(ctx context.Context, rec *session.RefreshRecord) error {
	if !e.config.Session.RotateRefresh {
		e.metrics.Refresh(metrics.ResultFailure)
		return ErrRefreshInvalid
	}
	if _, err := e.sessions.Get(ctx, rec.SessionID); err != nil {
		e.metrics.Refresh(metrics.ResultFailure)
		return ErrRefreshInvalid
	}

	e.logger.Warn("refresh token reuse detected",
		zap.String("account_id", rec.AccountID), zap.String("session_id", rec.SessionID))
	if err := e.endSession(ctx, rec.SessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	e.metrics.Refresh(metrics.ResultReuse)
	return ErrRefreshReuse
}

// Logout ends sessionID and revokes its refresh tokens. A presented
// refresh token that belongs to another session is left alone.
func (e *Engine) Logout(ctx context.Context, sessionID, refreshToken string) error {
	if refreshToken != "" {
		hash := session.HashRefreshToken(refreshToken)
		rec, err := e.refresh.GetRefresh(ctx, hash)
		switch {
		case err == nil && rec.SessionID == sessionID:
			if _, err := e.refresh.RevokeRefresh(ctx, hash); err != nil {
				return e.internal("revoke refresh token", err, zap.String("session_id", sessionID))
			}
		case err == nil:
			e.logger.Warn("logout refresh token belongs to another session", zap.String("session_id", sessionID))
		case !errors.Is(err, session.ErrRefreshNotFound):
			return e.internal("load refresh record", err, zap.String("session_id", sessionID))
		}
	}
	return e.endSession(ctx, sessionID)
}

func (e *Engine) endSession(ctx context.Context, sessionID string) error {
	err := e.sessions.Revoke(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return e.internal("revoke session", err, zap.String("session_id", sessionID))
	}
	if err := e.refresh.RevokeRefreshForSession(ctx, sessionID); err != nil {
		return e.internal("revoke session refresh tokens", err, zap.String("session_id", sessionID))
	}
	e.metrics.SessionsRevoked(1)
	return nil
}

// revokeEverything ends every session of the account and retires all its
// refresh tokens. The durable store is authoritative; cache cleanup is
// best-effort inside the registry.
func (e *Engine) revokeEverything(ctx context.Context, accountID string) (int, error) {
	n, err := e.sessions.RevokeAll(ctx, accountID)
	if err != nil {
		return 0, e.internal("revoke all sessions", err, zap.String("account_id", accountID))
	}
	if err := e.refresh.RevokeRefreshForAccount(ctx, accountID); err != nil {
		return n, e.internal("revoke account refresh tokens", err, zap.String("account_id", accountID))
	}
	e.metrics.SessionsRevoked(n)
	return n, nil
}

func (e *Engine) recordOriginFailure(ctx context.Context, origin string) {
	if err := e.loginThrottle.RecordFailure(ctx, origin); err != nil {
		e.logger.Warn("record origin failure", zap.String("origin", origin), zap.Error(err))
	}
}

// internal logs err with context and returns the opaque ErrInternal.
func (e *Engine) internal(op string, err error, fields ...zap.Field) error {
	e.logger.Error(op, append(fields, zap.Error(err))...)
	return ErrInternal
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrWrongType):
		return ErrTokenWrongType
	default:
		return ErrTokenMalformed
	}
}
