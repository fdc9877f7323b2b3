package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	var dropped uint64 = 3
	r, err := New(reg, func() uint64 { return dropped })
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r.Login(ResultSuccess)
	r.Login(ResultSuccess)
	r.Login(ResultLocked)
	r.Lockout()
	r.SessionCreated()
	r.SessionsRevoked(4)
	r.SessionsRevoked(0)
	r.Refresh(ResultReuse)
	r.TwoFactor(ResultBackupCode)
	r.ObserveLogin(20 * time.Millisecond)

	if got := testutil.ToFloat64(r.logins.WithLabelValues(ResultSuccess)); got != 2 {
		t.Fatalf("expected 2 successful logins, got %v", got)
	}
	if got := testutil.ToFloat64(r.sessionsRevoked); got != 4 {
		t.Fatalf("expected 4 revoked sessions, got %v", got)
	}

	expected := `
# HELP kleva_notifications_dropped_total Notifications dropped because the dispatch buffer was full.
# TYPE kleva_notifications_dropped_total counter
kleva_notifications_dropped_total 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "kleva_notifications_dropped_total"); err != nil {
		t.Fatalf("dropped counter mismatch: %v", err)
	}
}

func TestRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg, nil); err != nil {
		t.Fatalf("first New: %v", err)
	}
	if _, err := New(reg, nil); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Login(ResultFailure)
	r.Lockout()
	r.SessionCreated()
	r.SessionsRevoked(1)
	r.Refresh(ResultSuccess)
	r.TwoFactor(ResultSuccess)
	r.ObserveLogin(time.Second)
}
