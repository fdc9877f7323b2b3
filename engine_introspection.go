package kleva

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Elinez19/kleva/account"
	"github.com/Elinez19/kleva/jwt"
	"github.com/Elinez19/kleva/session"
)

// Authenticate resolves an access token to the caller. The signature and
// expiry are checked locally before any store is touched; the bound
// session must then still exist and belong to the token's account.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := e.tokens.Verify(accessToken, jwt.TypeAccess)
	if err != nil {
		return nil, tokenError(err)
	}
	if claims.SessionID == "" {
		return nil, ErrTokenMalformed
	}

	sess, err := e.sessions.Get(ctx, claims.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, e.internal("load session", err, zap.String("session_id", claims.SessionID))
	}
	if sess.AccountID != claims.AccountID {
		e.logger.Warn("access token bound to another account's session",
			zap.String("account_id", claims.AccountID), zap.String("session_id", sess.ID))
		return nil, ErrSessionNotFound
	}

	if err := e.sessions.Touch(ctx, sess.ID); err != nil {
		e.logger.Warn("touch session", zap.String("session_id", sess.ID), zap.Error(err))
	}
	return &Identity{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		Role:      account.Role(claims.Role),
		SessionID: sess.ID,
	}, nil
}

// ListSessions returns the account's live sessions, most recently active
// first.
func (e *Engine) ListSessions(ctx context.Context, accountID string) ([]SessionInfo, error) {
	sessions, err := e.sessions.List(ctx, accountID)
	if err != nil {
		return nil, e.internal("list sessions", err, zap.String("account_id", accountID))
	}
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionInfo(s))
	}
	return out, nil
}

// RevokeSession ends one session of the account. A session owned by
// another account is reported as not found.
func (e *Engine) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	sess, err := e.sessions.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return e.internal("load session", err, zap.String("session_id", sessionID))
	}
	if sess.AccountID != accountID {
		return ErrSessionNotFound
	}
	return e.endSession(ctx, sessionID)
}

// RevokeAllSessions ends every session of the account and returns how
// many were removed.
func (e *Engine) RevokeAllSessions(ctx context.Context, accountID string) (int, error) {
	n, err := e.revokeEverything(ctx, accountID)
	if err != nil {
		return 0, err
	}
	e.logger.Info("all sessions revoked", zap.String("account_id", accountID), zap.Int("sessions", n))
	return n, nil
}

// CleanupExpired deletes expired sessions and refresh records from the
// durable stores. Redis entries expire on their own.
func (e *Engine) CleanupExpired(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	n, err := e.sessions.PurgeExpired(ctx)
	if err != nil {
		return res, e.internal("purge expired sessions", err)
	}
	res.Sessions = n

	n, err = e.refresh.DeleteExpiredRefresh(ctx, e.now())
	if err != nil {
		return res, e.internal("purge expired refresh tokens", err)
	}
	res.RefreshTokens = n
	return res, nil
}
