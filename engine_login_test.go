package kleva

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Elinez19/kleva/account"
	"github.com/Elinez19/kleva/notify"
)

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	id := h.register(t, customerRequest("Alice@Example.com"))

	_, err := h.engine.Login(ctx, LoginRequest{Email: "alice@example.com", Password: testPassword})
	wantErr(t, err, ErrEmailNotVerified)

	h.verify(t, id)
	welcome := h.nextEvent(t, notify.TypeWelcome)
	if welcome.FirstName != "Alice" {
		t.Fatalf("welcome first name = %q", welcome.FirstName)
	}

	res := h.login(t, "alice@example.com")
	if res.AccessToken == "" || res.RefreshToken == "" || res.SessionID == "" {
		t.Fatalf("expected token pair and session, got %+v", res)
	}
	if res.RequiresTwoFactor {
		t.Fatal("2FA flagged for account without 2FA")
	}

	identity, err := h.engine.Authenticate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity.AccountID != id || identity.SessionID != res.SessionID || identity.Role != account.RoleCustomer {
		t.Fatalf("unexpected identity %+v", identity)
	}

	sessions, err := h.engine.ListSessions(ctx, id)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Device != "test-device" || sessions[0].Origin != "203.0.113.7" {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
}

func TestRegisterRejectsDuplicatesAndWeakPasswords(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	first := customerRequest("alice@example.com")
	first.Profile.Phone = "+15550001234"
	h.register(t, first)

	_, err := h.engine.Register(ctx, customerRequest("ALICE@example.com"))
	wantErr(t, err, ErrDuplicateEmail)

	samePhone := customerRequest("erin@example.com")
	samePhone.Profile.Phone = first.Profile.Phone
	_, err = h.engine.Register(ctx, samePhone)
	wantErr(t, err, ErrDuplicateEmail)
	wantErr(t, err, ErrDuplicatePhone)
	if got := Code(err); got != "DUPLICATE_EMAIL" {
		t.Fatalf("Code(duplicate phone) = %q, want DUPLICATE_EMAIL", got)
	}

	weak := customerRequest("bob@example.com")
	weak.Password = "password"
	_, err = h.engine.Register(ctx, weak)
	wantErr(t, err, ErrWeakPassword)

	bad := customerRequest("not-an-email")
	_, err = h.engine.Register(ctx, bad)
	wantErr(t, err, ErrInvalidEmail)

	noSkills := providerRequest("carol@example.com")
	noSkills.Profile.Provider = nil
	_, err = h.engine.Register(ctx, noSkills)
	wantErr(t, err, ErrInvalidProfile)

	role := customerRequest("dave@example.com")
	role.Role = "superuser"
	_, err = h.engine.Register(ctx, role)
	wantErr(t, err, ErrInvalidRole)
}

func TestVerifyEmailTokenIsSingleUse(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.register(t, customerRequest("alice@example.com"))
	ev := h.nextEvent(t, notify.TypeVerificationRequested)

	if err := h.engine.VerifyEmail(ctx, ev.Token); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	wantErr(t, h.engine.VerifyEmail(ctx, ev.Token), ErrVerificationTokenInvalid)
	wantErr(t, h.engine.VerifyEmail(ctx, "garbage"), ErrVerificationTokenInvalid)
}

func TestVerificationTokenExpires(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	id := h.register(t, customerRequest("alice@example.com"))
	stale := h.nextEvent(t, notify.TypeVerificationRequested)

	h.clock.Advance(25 * time.Hour)
	wantErr(t, h.engine.VerifyEmail(ctx, stale.Token), ErrVerificationTokenInvalid)

	if err := h.engine.ResendVerification(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	h.verify(t, id)
}

func TestResendVerificationDoesNotRevealUnknownEmails(t *testing.T) {
	h := newTestHarness(t)
	if err := h.engine.ResendVerification(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected nil for unknown email, got %v", err)
	}
}

func TestLoginWrongPasswordAndUnknownEmailAreIndistinguishable(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.registerVerified(t, "alice@example.com")

	_, errWrong := h.engine.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "Wrong0pass"})
	_, errUnknown := h.engine.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: testPassword})
	wantErr(t, errWrong, ErrInvalidCredentials)
	wantErr(t, errUnknown, ErrInvalidCredentials)
	if errWrong.Error() != errUnknown.Error() {
		t.Fatalf("messages differ: %q vs %q", errWrong, errUnknown)
	}
}

func TestLockoutHoldsAgainstCorrectPassword(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	id := h.registerVerified(t, "alice@example.com")

	for i := 0; i < 5; i++ {
		_, err := h.engine.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "Wrong0pass", Origin: "198.51.100.1"})
		if i < 4 {
			wantErr(t, err, ErrInvalidCredentials)
		} else {
			wantErr(t, err, ErrAccountLocked)
		}
	}

	locked := h.nextEvent(t, notify.TypeAccountLocked)
	if locked.AccountID != id || locked.LockedUntil == nil {
		t.Fatalf("unexpected lock event %+v", locked)
	}

	_, err := h.engine.Login(ctx, LoginRequest{Email: "alice@example.com", Password: testPassword})
	var lockedErr *LockedError
	if !errors.As(err, &lockedErr) {
		t.Fatalf("expected *LockedError, got %v", err)
	}
	if lockedErr.RetryAfter <= 0 || lockedErr.RetryAfter > 15*time.Minute {
		t.Fatalf("unexpected retry after %v", lockedErr.RetryAfter)
	}

	h.clock.Advance(15*time.Minute + time.Second)
	h.login(t, "alice@example.com")
}

func TestSuccessfulLoginResetsFailureCounter(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	id := h.registerVerified(t, "alice@example.com")

	for i := 0; i < 4; i++ {
		_, _ = h.engine.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "Wrong0pass"})
	}
	h.login(t, "alice@example.com")

	acct, err := h.accounts.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if acct.FailedAttempts != 0 {
		t.Fatalf("failed attempts = %d, want 0", acct.FailedAttempts)
	}
	_, err = h.engine.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "Wrong0pass"})
	wantErr(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsDeactivatedAccount(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	id := h.registerVerified(t, "alice@example.com")
	res := h.login(t, "alice@example.com")

	if err := h.engine.DeactivateAccount(ctx, id); err != nil {
		t.Fatalf("DeactivateAccount: %v", err)
	}
	_, err := h.engine.Login(ctx, LoginRequest{Email: "alice@example.com", Password: testPassword})
	wantErr(t, err, ErrAccountDisabled)
	_, err = h.engine.Authenticate(ctx, res.AccessToken)
	wantErr(t, err, ErrSessionNotFound)

	if err := h.engine.ReactivateAccount(ctx, id); err != nil {
		t.Fatalf("ReactivateAccount: %v", err)
	}
	h.login(t, "alice@example.com")
}

type stubApprovals struct {
	approval account.Approval
	reason   string
	err      error
}

func (s stubApprovals) Approval(context.Context, string) (account.Approval, string, error) {
	return s.approval, s.reason, s.err
}

func TestProviderLoginFollowsApproval(t *testing.T) {
	cases := []struct {
		name     string
		approval stubApprovals
		want     error
	}{
		{"pending", stubApprovals{approval: account.ApprovalPending}, ErrApprovalPending},
		{"rejected", stubApprovals{approval: account.ApprovalRejected, reason: "incomplete documents"}, ErrApprovalRejected},
		{"approved", stubApprovals{approval: account.ApprovalApproved}, nil},
		{"reader down", stubApprovals{err: errors.New("connection refused")}, ErrInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHarness(t, func(b *Builder) { b.WithApprovalReader(tc.approval) })
			id := h.register(t, providerRequest("bob@example.com"))
			h.verify(t, id)

			_, err := h.engine.Login(context.Background(), LoginRequest{Email: "bob@example.com", Password: testPassword})
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Login: %v", err)
				}
				return
			}
			wantErr(t, err, tc.want)
			var rejected *ApprovalRejectedError
			if errors.As(err, &rejected) && rejected.Reason != tc.approval.reason {
				t.Fatalf("reason = %q", rejected.Reason)
			}
		})
	}
}

func TestProviderApprovalFallsBackToAccountRecord(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	id := h.register(t, providerRequest("bob@example.com"))
	h.verify(t, id)

	_, err := h.engine.Login(ctx, LoginRequest{Email: "bob@example.com", Password: testPassword})
	wantErr(t, err, ErrApprovalPending)

	if err := h.accounts.SetApproval(id, account.ApprovalApproved, ""); err != nil {
		t.Fatalf("SetApproval: %v", err)
	}
	h.login(t, "bob@example.com")
}

func TestLoginThrottledPerOrigin(t *testing.T) {
	h := newTestHarness(t, func(b *Builder) {
		cfg := testConfig()
		cfg.RateLimit.LoginPerOrigin = LimitConfig{Max: 3, Window: time.Hour}
		b.WithConfig(cfg)
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.engine.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: testPassword, Origin: "192.0.2.10"})
		wantErr(t, err, ErrInvalidCredentials)
	}
	_, err := h.engine.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: testPassword, Origin: "192.0.2.10"})
	wantErr(t, err, ErrLoginRateLimited)

	_, err = h.engine.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: testPassword, Origin: "192.0.2.11"})
	wantErr(t, err, ErrInvalidCredentials)
}

func TestConcurrentLoginsCreateDistinctSessions(t *testing.T) {
	h := newTestHarness(t)
	id := h.registerVerified(t, "alice@example.com")

	const n = 8
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.engine.Login(context.Background(), LoginRequest{Email: "alice@example.com", Password: testPassword})
			if err != nil {
				t.Errorf("Login: %v", err)
				return
			}
			ids <- res.SessionID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for sid := range ids {
		if seen[sid] {
			t.Fatalf("duplicate session id %s", sid)
		}
		seen[sid] = true
	}
	sessions, err := h.engine.ListSessions(context.Background(), id)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != n {
		t.Fatalf("sessions = %d, want %d", len(sessions), n)
	}
}
