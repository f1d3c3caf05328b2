package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveRequest("GET", "/login", 200, 0.01)
	m.LoginAttempt(ResultSuccess)
	m.LoginAttempt(ResultFailure)
	m.LoginAttempt(ResultFailure)
	m.Registration()
	m.PasswordReset("forgot")
	m.MailDelivery(nil)
	m.MailDelivery(errors.New("smtp down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestCount.WithLabelValues("GET", "/login", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.loginAttempts.WithLabelValues(ResultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.registrations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passwordResets.WithLabelValues("forgot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mailDeliveries.WithLabelValues(ResultFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.requestDuration))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("GET", "/", 200, 0)
		m.LoginAttempt(ResultError)
		m.Registration()
		m.PasswordReset("reset")
		m.MailDelivery(nil)
	})
}
