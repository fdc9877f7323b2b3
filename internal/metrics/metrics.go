package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kleva"

// Result labels shared by the outcome counters.
const (
	ResultSuccess     = "success"
	ResultFailure     = "failure"
	ResultLocked      = "locked"
	ResultThrottled   = "throttled"
	ResultTwoFactor   = "two_factor_required"
	ResultReuse       = "reuse_detected"
	ResultBackupCode  = "backup_code"
	ResultUnavailable = "unavailable"
)

// Recorder wraps the collectors registered for one engine.
type Recorder struct {
	logins          *prometheus.CounterVec
	lockouts        prometheus.Counter
	sessionsCreated prometheus.Counter
	sessionsRevoked prometheus.Counter
	refresh         *prometheus.CounterVec
	twoFactor       *prometheus.CounterVec
	loginDuration   prometheus.Histogram
}

// New registers the collectors with reg. dropped, when set, is exported as
// the notification drop counter.
func New(reg prometheus.Registerer, dropped func() uint64) (*Recorder, error) {
	r := &Recorder{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lockouts_total",
			Help:      "Accounts locked after repeated password failures.",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created.",
		}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_revoked_total",
			Help:      "Sessions revoked by logout or administrative action.",
		}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Refresh token exchanges by result.",
		}, []string{"result"}),
		twoFactor: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "two_factor_total",
			Help:      "Second-factor verifications by result.",
		}, []string{"result"}),
		loginDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "login_duration_seconds",
			Help:      "Time spent in the password step of login.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}

	collectors := []prometheus.Collector{
		r.logins, r.lockouts, r.sessionsCreated, r.sessionsRevoked,
		r.refresh, r.twoFactor, r.loginDuration,
	}
	if dropped != nil {
		collectors = append(collectors, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because the dispatch buffer was full.",
		}, func() float64 { return float64(dropped()) }))
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) Login(result string) {
	if r == nil {
		return
	}
	r.logins.WithLabelValues(result).Inc()
}

func (r *Recorder) ObserveLogin(d time.Duration) {
	if r == nil {
		return
	}
	r.loginDuration.Observe(d.Seconds())
}

func (r *Recorder) Lockout() {
	if r == nil {
		return
	}
	r.lockouts.Inc()
}

func (r *Recorder) SessionCreated() {
	if r == nil {
		return
	}
	r.sessionsCreated.Inc()
}

func (r *Recorder) SessionsRevoked(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.sessionsRevoked.Add(float64(n))
}

func (r *Recorder) Refresh(result string) {
	if r == nil {
		return
	}
	r.refresh.WithLabelValues(result).Inc()
}

func (r *Recorder) TwoFactor(result string) {
	if r == nil {
		return
	}
	r.twoFactor.WithLabelValues(result).Inc()
}
