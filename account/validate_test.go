package account

import (
	"errors"
	"testing"
)

func TestNormalizeEmailLowercasesAndTrims(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("unexpected normalized email %q", got)
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"alice@example.com", "a.b+tag@sub.example.org"}
	for _, email := range valid {
		if err := ValidateEmail(email); err != nil {
			t.Fatalf("expected %q to be valid, got %v", email, err)
		}
	}

	invalid := []string{"", "alice", "alice@", "@example.com", "Alice <alice@example.com>", "alice@localhost"}
	for _, email := range invalid {
		if err := ValidateEmail(email); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("expected %q to be rejected, got %v", email, err)
		}
	}
}

func TestCheckPasswordPolicy(t *testing.T) {
	if err := CheckPassword("Passw0rd1"); err != nil {
		t.Fatalf("expected strong password to pass, got %v", err)
	}

	weak := []string{"Pa0", "password1", "PASSWORD1", "Password", ""}
	for _, pw := range weak {
		if err := CheckPassword(pw); !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("expected %q to be weak, got %v", pw, err)
		}
	}
}

func TestProfileValidateCustomerDefaults(t *testing.T) {
	p := Profile{FirstName: " Alice ", LastName: "Doe"}
	if err := p.Validate(RoleCustomer); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if p.FirstName != "Alice" {
		t.Fatalf("expected trimmed first name, got %q", p.FirstName)
	}
	if p.Customer == nil || p.Customer.PreferredContact != ContactEmail {
		t.Fatalf("expected default email contact, got %+v", p.Customer)
	}
}

func TestProfileValidateRejectsForeignVariant(t *testing.T) {
	p := Profile{
		FirstName: "Bob",
		LastName:  "Builder",
		Admin:     &AdminProfile{Department: "ops"},
	}
	if err := p.Validate(RoleCustomer); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}
}

func TestProfileValidateProviderRequiresSkills(t *testing.T) {
	p := Profile{FirstName: "Bob", LastName: "Builder", Provider: &ProviderProfile{}}
	if err := p.Validate(RoleProvider); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}

	p.Provider.Skills = []string{"plumbing"}
	if err := p.Validate(RoleProvider); err != nil {
		t.Fatalf("expected provider profile to pass, got %v", err)
	}
}

func TestProfileValidateSMSNeedsPhone(t *testing.T) {
	p := Profile{
		FirstName: "Alice",
		LastName:  "Doe",
		Customer:  &CustomerProfile{PreferredContact: ContactSMS},
	}
	if err := p.Validate(RoleCustomer); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile without phone, got %v", err)
	}

	p.Phone = "+15551234567"
	if err := p.Validate(RoleCustomer); err != nil {
		t.Fatalf("expected profile with phone to pass, got %v", err)
	}
}

func TestProfileValidateUnknownRole(t *testing.T) {
	p := Profile{FirstName: "A", LastName: "B"}
	if err := p.Validate(Role("superuser")); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}
