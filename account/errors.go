package account

import "errors"

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateEmail is returned when the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicatePhone is returned when the phone number is already
	// registered. It matches ErrDuplicateEmail, so callers checking for a
	// taken identity need only one comparison.
	ErrDuplicatePhone error = duplicatePhoneError{}
	// ErrTokenInvalid is returned when a verification or reset token is unknown or expired.
	ErrTokenInvalid = errors.New("token invalid or expired")
	// ErrTwoFactorNotPending is returned when enabling 2FA without a stored secret.
	ErrTwoFactorNotPending = errors.New("two-factor enrollment not pending")

	ErrWeakPassword   = errors.New("password does not meet policy")
	ErrInvalidEmail   = errors.New("invalid email address")
	ErrInvalidProfile = errors.New("invalid profile")
	ErrInvalidRole    = errors.New("invalid role")
)

type duplicatePhoneError struct{}

func (duplicatePhoneError) Error() string { return "phone already registered" }

func (duplicatePhoneError) Is(target error) bool { return target == ErrDuplicateEmail }
