// Package metrics holds the prometheus collectors for login activity and HTTP traffic.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Login attempt results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	loginAttempts   *prometheus.CounterVec
	registrations   prometheus.Counter
	passwordResets  *prometheus.CounterVec
	mailDeliveries  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests processed.",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		loginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modauth_login_attempts_total",
				Help: "Login attempts by result.",
			},
			[]string{"result"},
		),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modauth_registrations_total",
			Help: "Accounts created through the registration form.",
		}),
		passwordResets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modauth_password_resets_total",
				Help: "Forgot-password and reset-password completions.",
			},
			[]string{"stage"},
		),
		mailDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modauth_mail_deliveries_total",
				Help: "Outgoing mail by result.",
			},
			[]string{"result"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.requestCount,
		m.requestDuration,
		m.loginAttempts,
		m.registrations,
		m.passwordResets,
		m.mailDeliveries,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveRequest(method, path string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(seconds)
}

func (m *Metrics) LoginAttempt(result string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) Registration() {
	if m == nil {
		return
	}
	m.registrations.Inc()
}

// PasswordReset counts a completed "forgot" or "reset" step.
func (m *Metrics) PasswordReset(stage string) {
	if m == nil {
		return
	}
	m.passwordResets.WithLabelValues(stage).Inc()
}

func (m *Metrics) MailDelivery(err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.mailDeliveries.WithLabelValues(result).Inc()
}
