package kleva

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/Elinez19/kleva/account"
	"github.com/Elinez19/kleva/notify"
	"github.com/Elinez19/kleva/session"
)

const testPassword = "Passw0rd1"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testHarness struct {
	engine   *Engine
	accounts *account.MemoryStore
	sessions *session.MemoryStore
	clock    *testClock
	events   *notify.ChannelSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password = PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	return cfg
}

func newTestHarness(t testing.TB, configure ...func(*Builder)) *testHarness {
	t.Helper()

	h := &testHarness{
		accounts: account.NewMemoryStore(),
		sessions: session.NewMemoryStore(),
		clock:    newTestClock(),
		events:   notify.NewChannelSink(128),
	}
	b := New().
		WithConfig(testConfig()).
		WithAccountStore(h.accounts).
		WithSessionStore(h.sessions).
		WithNotifier(h.events).
		WithClock(h.clock.Now)
	for _, fn := range configure {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

// nextEvent returns the next dispatched event of type typ, skipping others.
func (h *testHarness) nextEvent(t testing.TB, typ notify.Type) notify.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events.Events():
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event dispatched", typ)
		}
	}
}

func customerRequest(email string) RegisterRequest {
	return RegisterRequest{
		Email:    email,
		Password: testPassword,
		Role:     account.RoleCustomer,
		Profile:  account.Profile{FirstName: "Alice", LastName: "Smith"},
	}
}

func providerRequest(email string) RegisterRequest {
	return RegisterRequest{
		Email:    email,
		Password: testPassword,
		Role:     account.RoleProvider,
		Profile: account.Profile{
			FirstName: "Bob",
			LastName:  "Jones",
			Provider:  &account.ProviderProfile{Skills: []string{"plumbing"}, ExperienceYears: 4},
		},
	}
}

func (h *testHarness) register(t testing.TB, req RegisterRequest) string {
	t.Helper()
	res, err := h.engine.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("Register(%s): %v", req.Email, err)
	}
	return res.AccountID
}

// registerVerified registers a customer and confirms its email.
func (h *testHarness) registerVerified(t testing.TB, email string) string {
	t.Helper()
	id := h.register(t, customerRequest(email))
	h.verify(t, id)
	return id
}

func (h *testHarness) verify(t testing.TB, accountID string) {
	t.Helper()
	ev := h.nextEvent(t, notify.TypeVerificationRequested)
	if ev.AccountID != accountID {
		t.Fatalf("verification event for %q, want %q", ev.AccountID, accountID)
	}
	if err := h.engine.VerifyEmail(context.Background(), ev.Token); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
}

func (h *testHarness) login(t testing.TB, email string) *LoginResult {
	t.Helper()
	res, err := h.engine.Login(context.Background(), LoginRequest{
		Email:    email,
		Password: testPassword,
		Device:   "test-device",
		Origin:   "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return res
}

func (h *testHarness) enableTwoFactor(t testing.TB, accountID string) *TwoFactorEnrollment {
	t.Helper()
	ctx := context.Background()
	enrollment, err := h.engine.Enroll2FA(ctx, accountID, testPassword)
	if err != nil {
		t.Fatalf("Enroll2FA: %v", err)
	}
	if err := h.engine.Confirm2FA(ctx, accountID, totpCode(t, enrollment.Secret, h.clock.Now())); err != nil {
		t.Fatalf("Confirm2FA: %v", err)
	}
	return enrollment
}

func totpCode(t testing.TB, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generate totp code: %v", err)
	}
	return code
}

func wantErr(t testing.TB, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
