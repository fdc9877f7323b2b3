package twofactor

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/Elinez19/kleva/account"
)

const (
	DefaultIssuer           = "Kleva"
	DefaultSkew             = 2
	DefaultPeriod           = 30
	DefaultBackupCodeCount  = 10
	DefaultBackupCodeLength = 10
	secretSize              = 20
	qrSize                  = 256
)

var (
	ErrInvalidCode     = errors.New("invalid two-factor code")
	ErrAlreadyEnabled  = errors.New("two-factor already enabled")
	ErrNotEnabled      = errors.New("two-factor not enabled")
	ErrNotPending      = errors.New("no pending two-factor enrollment")
	ErrUnavailable     = errors.New("two-factor backend unavailable")
)

// Method tells which factor satisfied a verification.
type Method string

const (
	MethodTOTP       Method = "totp"
	MethodBackupCode Method = "backup_code"
)

// Store is the slice of account.Store the manager writes to.
type Store interface {
	SetPendingTwoFactor(ctx context.Context, id, secret string, codeHashes []string) error
	EnableTwoFactor(ctx context.Context, id string) error
	ClearTwoFactor(ctx context.Context, id string) error
	ConsumeBackupCode(ctx context.Context, id, codeHash string) (bool, error)
}

// Config configures a Manager. Skew is taken as given: zero accepts only
// the current time step.
type Config struct {
	Issuer           string
	Skew             uint
	BackupCodeCount  int
	BackupCodeLength int
	Now              func() time.Time
}

// Enrollment is returned once by BeginEnrollment; the plaintext secret and
// codes are not retrievable afterwards.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
	// QRCode is a data URL holding a PNG of ProvisioningURI.
	QRCode      string
	BackupCodes []string
}

// Manager runs enrollment and verification. It never checks passwords:
// callers pass an account whose password was already verified under the
// lockout policy.
type Manager struct {
	store  Store
	config Config
	now    func() time.Time
}

func NewManager(store Store, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("twofactor: store is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.BackupCodeCount <= 0 {
		cfg.BackupCodeCount = DefaultBackupCodeCount
	}
	if cfg.BackupCodeLength < 8 {
		cfg.BackupCodeLength = DefaultBackupCodeLength
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, config: cfg, now: now}, nil
}

func (m *Manager) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    DefaultPeriod,
		Skew:      m.config.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// BeginEnrollment generates a fresh secret and backup codes and stores
// them pending confirmation. Restarting a pending enrollment replaces the
// earlier secret and codes.
func (m *Manager) BeginEnrollment(ctx context.Context, acct *account.Account) (*Enrollment, error) {
	if acct.TwoFactorEnabled {
		return nil, ErrAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: acct.Email,
		Period:      DefaultPeriod,
		SecretSize:  secretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	qr, err := qrDataURL(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	codes := make([]string, 0, m.config.BackupCodeCount)
	hashes := make([]string, 0, m.config.BackupCodeCount)
	for i := 0; i < m.config.BackupCodeCount; i++ {
		raw, err := newBackupCode(m.config.BackupCodeLength)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		codes = append(codes, FormatBackupCode(raw))
		hashes = append(hashes, BackupCodeHash(acct.ID, raw))
	}

	if err := m.store.SetPendingTwoFactor(ctx, acct.ID, key.Secret(), hashes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &Enrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCode:          qr,
		BackupCodes:     codes,
	}, nil
}

// ConfirmEnrollment enables 2FA once a code from the pending secret checks out.
func (m *Manager) ConfirmEnrollment(ctx context.Context, acct *account.Account, code string) error {
	if acct.TwoFactorEnabled {
		return ErrAlreadyEnabled
	}
	if acct.TwoFactorSecret == "" {
		return ErrNotPending
	}
	if !m.validTOTP(acct.TwoFactorSecret, code) {
		return ErrInvalidCode
	}
	if err := m.store.EnableTwoFactor(ctx, acct.ID); err != nil {
		if errors.Is(err, account.ErrTwoFactorNotPending) {
			return ErrNotPending
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// VerifyLogin accepts a TOTP code, then falls back to a backup code. A
// matching backup code is consumed.
func (m *Manager) VerifyLogin(ctx context.Context, acct *account.Account, code string) (Method, error) {
	if !acct.TwoFactorEnabled || acct.TwoFactorSecret == "" {
		return "", ErrNotEnabled
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return "", ErrInvalidCode
	}
	if m.validTOTP(acct.TwoFactorSecret, code) {
		return MethodTOTP, nil
	}

	canonical := CanonicalizeBackupCode(code)
	if !isBackupCodeShape(canonical, m.config.BackupCodeLength) {
		return "", ErrInvalidCode
	}
	ok, err := m.store.ConsumeBackupCode(ctx, acct.ID, BackupCodeHash(acct.ID, canonical))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return "", ErrInvalidCode
	}
	return MethodBackupCode, nil
}

// Disable requires a valid code when 2FA is enabled. A pending enrollment
// is discarded without one.
func (m *Manager) Disable(ctx context.Context, acct *account.Account, code string) error {
	if !acct.TwoFactorEnabled && acct.TwoFactorSecret == "" {
		return ErrNotEnabled
	}
	if acct.TwoFactorEnabled {
		if _, err := m.VerifyLogin(ctx, acct, code); err != nil {
			return err
		}
	}
	if err := m.store.ClearTwoFactor(ctx, acct.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (m *Manager) validTOTP(secret, code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, m.now(), m.validateOpts())
	return err == nil && ok
}

func qrDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
