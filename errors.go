package kleva

import (
	"errors"
	"time"

	"github.com/Elinez19/kleva/account"
)

var (
	// ErrInvalidCredentials never says whether the email or the password
	// was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is matched by *LockedError.
	ErrAccountLocked    = errors.New("account locked")
	ErrAccountDisabled  = errors.New("account disabled")
	ErrEmailNotVerified = errors.New("email not verified")
	ErrApprovalPending  = errors.New("provider approval pending")
	// ErrApprovalRejected is matched by *ApprovalRejectedError.
	ErrApprovalRejected = errors.New("provider approval rejected")

	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenWrongType = errors.New("token type mismatch")

	ErrTwoFactorRequired       = errors.New("two-factor code required")
	ErrInvalidTwoFactorCode    = errors.New("invalid two-factor code")
	ErrTwoFactorRateLimited    = errors.New("two-factor attempts rate limited")
	ErrTwoFactorNotEnabled     = errors.New("two-factor not enabled")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")

	ErrSessionNotFound = errors.New("session not found")
	ErrRefreshInvalid  = errors.New("invalid refresh token")
	ErrRefreshReuse    = errors.New("refresh token reuse detected")

	ErrDuplicateEmail = account.ErrDuplicateEmail
	// ErrDuplicatePhone matches ErrDuplicateEmail.
	ErrDuplicatePhone = account.ErrDuplicatePhone
	ErrWeakPassword   = account.ErrWeakPassword
	ErrInvalidEmail   = account.ErrInvalidEmail
	ErrInvalidProfile = account.ErrInvalidProfile
	ErrInvalidRole    = account.ErrInvalidRole

	// ErrInvalidPassword is returned when an authenticated operation
	// re-checks the current password and it does not match.
	ErrInvalidPassword          = errors.New("invalid password")
	ErrPasswordReuse            = errors.New("new password must differ from the current password")
	ErrVerificationTokenInvalid = errors.New("verification token invalid or expired")
	ErrResetTokenInvalid        = errors.New("reset token invalid or expired")
	ErrLoginRateLimited         = errors.New("login rate limited")

	// ErrInternal hides downstream failures from callers. The cause is
	// logged where it happens.
	ErrInternal = errors.New("internal error")
)

// LockedError reports a locked account and how long the lock still holds.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return "account locked, retry after " + e.RetryAfter.Round(time.Second).String()
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

// ApprovalRejectedError carries the reason recorded by the approval workflow.
type ApprovalRejectedError struct {
	Reason string
}

func (e *ApprovalRejectedError) Error() string {
	if e.Reason == "" {
		return ErrApprovalRejected.Error()
	}
	return ErrApprovalRejected.Error() + ": " + e.Reason
}

func (e *ApprovalRejectedError) Is(target error) bool { return target == ErrApprovalRejected }

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidCredentials, "INVALID_CREDENTIALS"},
	{ErrAccountLocked, "ACCOUNT_LOCKED"},
	{ErrAccountDisabled, "ACCOUNT_DISABLED"},
	{ErrEmailNotVerified, "EMAIL_NOT_VERIFIED"},
	{ErrApprovalPending, "APPROVAL_PENDING"},
	{ErrApprovalRejected, "APPROVAL_REJECTED"},
	{ErrTokenExpired, "TOKEN_EXPIRED"},
	{ErrTokenMalformed, "TOKEN_MALFORMED"},
	{ErrTokenWrongType, "TOKEN_WRONG_TYPE"},
	{ErrTwoFactorRequired, "TWO_FACTOR_REQUIRED"},
	{ErrInvalidTwoFactorCode, "INVALID_TWO_FACTOR_CODE"},
	{ErrTwoFactorRateLimited, "TWO_FACTOR_RATE_LIMITED"},
	{ErrTwoFactorNotEnabled, "TWO_FACTOR_NOT_ENABLED"},
	{ErrTwoFactorAlreadyEnabled, "TWO_FACTOR_ALREADY_ENABLED"},
	{ErrSessionNotFound, "SESSION_NOT_FOUND"},
	{ErrRefreshInvalid, "REFRESH_INVALID"},
	{ErrRefreshReuse, "REFRESH_REUSE"},
	{ErrDuplicateEmail, "DUPLICATE_EMAIL"},
	{ErrWeakPassword, "WEAK_PASSWORD"},
	{ErrInvalidEmail, "INVALID_EMAIL"},
	{ErrInvalidProfile, "INVALID_PROFILE"},
	{ErrInvalidRole, "INVALID_ROLE"},
	{ErrInvalidPassword, "INVALID_PASSWORD"},
	{ErrPasswordReuse, "PASSWORD_REUSE"},
	{ErrVerificationTokenInvalid, "VERIFICATION_TOKEN_INVALID"},
	{ErrResetTokenInvalid, "RESET_TOKEN_INVALID"},
	{ErrLoginRateLimited, "LOGIN_RATE_LIMITED"},
}

// Code maps err to a stable machine-readable kind for transport layers.
// Unknown errors, including ErrInternal, map to "INTERNAL".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}
