package account

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

const (
	MinPasswordLength = 8
	MaxPasswordBytes  = 128
	maxNameLength     = 50
	maxBioLength      = 1000
)

var phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{6,14}$`)

// NormalizeEmail trims and lowercases an address; emails are unique
// case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail expects an already normalized address.
func ValidateEmail(email string) error {
	if email == "" || len(email) > 254 {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return ErrInvalidEmail
	}
	return nil
}

// CheckPassword enforces the password policy: length bounds plus at least
// one uppercase letter, one lowercase letter and one digit.
func CheckPassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("%w: must be at most %d bytes", ErrWeakPassword, MaxPasswordBytes)
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return fmt.Errorf("%w: needs an uppercase letter, a lowercase letter and a digit", ErrWeakPassword)
	}
	return nil
}

// Validate checks the profile against the role it is registered under and
// fills role defaults. Exactly the variant matching role may be set.
func (p *Profile) Validate(role Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}

	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Phone = strings.TrimSpace(p.Phone)
	if p.FirstName == "" || len(p.FirstName) > maxNameLength {
		return fmt.Errorf("%w: first name", ErrInvalidProfile)
	}
	if p.LastName == "" || len(p.LastName) > maxNameLength {
		return fmt.Errorf("%w: last name", ErrInvalidProfile)
	}
	if p.Phone != "" && !phonePattern.MatchString(p.Phone) {
		return fmt.Errorf("%w: phone", ErrInvalidProfile)
	}

	switch role {
	case RoleCustomer:
		if p.Provider != nil || p.Admin != nil {
			return fmt.Errorf("%w: customer profile carries another role's fields", ErrInvalidProfile)
		}
		if p.Customer == nil {
			p.Customer = &CustomerProfile{}
		}
		switch p.Customer.PreferredContact {
		case "":
			p.Customer.PreferredContact = ContactEmail
		case ContactEmail, ContactPhone, ContactSMS:
		default:
			return fmt.Errorf("%w: preferred contact method", ErrInvalidProfile)
		}
		if p.Customer.PreferredContact != ContactEmail && p.Phone == "" {
			return fmt.Errorf("%w: phone required for %s contact", ErrInvalidProfile, p.Customer.PreferredContact)
		}
	case RoleProvider:
		if p.Customer != nil || p.Admin != nil {
			return fmt.Errorf("%w: provider profile carries another role's fields", ErrInvalidProfile)
		}
		if p.Provider == nil || len(p.Provider.Skills) == 0 {
			return fmt.Errorf("%w: provider requires at least one skill", ErrInvalidProfile)
		}
		if p.Provider.ExperienceYears < 0 || p.Provider.HourlyRate < 0 {
			return fmt.Errorf("%w: provider experience and rate must not be negative", ErrInvalidProfile)
		}
		if len(p.Provider.Bio) > maxBioLength {
			return fmt.Errorf("%w: bio", ErrInvalidProfile)
		}
	case RoleAdmin:
		if p.Customer != nil || p.Provider != nil {
			return fmt.Errorf("%w: admin profile carries another role's fields", ErrInvalidProfile)
		}
		if p.Admin == nil || strings.TrimSpace(p.Admin.Department) == "" {
			return fmt.Errorf("%w: admin requires a department", ErrInvalidProfile)
		}
	}
	return nil
}

// InitialApproval is the approval state a new account starts with.
func InitialApproval(role Role) Approval {
	if role == RoleProvider {
		return ApprovalPending
	}
	return ApprovalApproved
}
