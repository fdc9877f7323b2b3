package account

import "time"

// Role is the closed set of account roles.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// Approval is the service-provider approval state. It is owned by an
// external workflow and only read during login.
type Approval string

const (
	ApprovalPending  Approval = "pending"
	ApprovalApproved Approval = "approved"
	ApprovalRejected Approval = "rejected"
)

// Account is the persisted credential record.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	Profile      Profile
	Active       bool

	EmailVerified         bool
	VerificationTokenHash string
	VerificationExpiresAt time.Time

	ResetTokenHash string
	ResetExpiresAt time.Time

	// TwoFactorSecret is set while enrollment is pending and after it is
	// confirmed; TwoFactorEnabled flips only on confirmation.
	TwoFactorEnabled bool
	TwoFactorSecret  string

	FailedAttempts int
	LockedUntil    time.Time

	Approval        Approval
	RejectionReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockedAt reports whether the account is locked at the given instant.
func (a *Account) LockedAt(now time.Time) bool {
	return !a.LockedUntil.IsZero() && a.LockedUntil.After(now)
}

// TwoFactorPending reports whether an enrollment was started but not confirmed.
func (a *Account) TwoFactorPending() bool {
	return !a.TwoFactorEnabled && a.TwoFactorSecret != ""
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Profile = a.Profile.clone()
	return &c
}

// LockState is the lockout counter after a failed attempt was recorded.
type LockState struct {
	Attempts    int
	LockedUntil time.Time
	// Locked is true when this failure reached the threshold.
	Locked bool
}
