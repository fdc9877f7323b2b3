package kleva

import (
	"context"
	"time"

	"github.com/Elinez19/kleva/account"
	"github.com/Elinez19/kleva/session"
)

// ApprovalReader reports the provider approval state kept by the approval
// workflow. It is consulted only during login of provider accounts.
type ApprovalReader interface {
	Approval(ctx context.Context, accountID string) (account.Approval, string, error)
}

// RegisterRequest is the input of Register.
type RegisterRequest struct {
	Email    string
	Password string
	Role     account.Role
	Profile  account.Profile
}

// RegisterResult is returned by Register. The account cannot log in until
// its email is verified, and providers additionally need approval.
type RegisterResult struct {
	AccountID string
	Approval  account.Approval
}

// LoginRequest is the input of Login. TwoFactorCode may carry a TOTP code
// or a backup code for accounts with 2FA enabled.
type LoginRequest struct {
	Email         string
	Password      string
	Device        string
	Origin        string
	TwoFactorCode string
}

// LoginResult holds either a token pair or, when RequiresTwoFactor is
// set, only TempToken. TempToken is accepted by CompleteTwoFactorLogin and
// rejected everywhere an access token is expected.
type LoginResult struct {
	AccessToken     string
	RefreshToken    string
	SessionID       string
	AccessExpiresAt time.Time

	RequiresTwoFactor bool
	TempToken         string
}

// RefreshResult carries a new access token. RefreshToken is set only when
// refresh rotation is enabled.
type RefreshResult struct {
	AccessToken     string
	RefreshToken    string
	SessionID       string
	AccessExpiresAt time.Time
}

// Identity is the caller behind a verified access token with a live session.
type Identity struct {
	AccountID string
	Email     string
	Role      account.Role
	SessionID string
}

// CleanupResult counts rows removed by CleanupExpired.
type CleanupResult struct {
	Sessions      int64
	RefreshTokens int64
}

// SessionInfo is the caller-facing view of a session.
type SessionInfo struct {
	ID           string
	Device       string
	Origin       string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
}

func sessionInfo(s *session.Session) SessionInfo {
	return SessionInfo{
		ID:           s.ID,
		Device:       s.Device,
		Origin:       s.Origin,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
	}
}
