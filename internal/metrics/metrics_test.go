// AngelaMos | 2026
// metrics_test.go

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordAuthCommand("login", "success", 10*time.Millisecond)
	m.RecordEmail("log", OutcomeSuccess)
	m.RecordEvent("user.status_changed", OutcomeSuccess)
	m.RecordHTTPRequest(http.MethodPost, "/api/auth/login", http.StatusOK, time.Millisecond)
	m.RecordRateLimited("auth")

	families, err := reg.Gather()
	require.NoError(t, err)

	registered := make(map[string]bool)
	for _, family := range families {
		registered[family.GetName()] = true
	}

	for _, name := range []string{
		"users_auth_commands_total",
		"users_auth_command_duration_seconds",
		"users_emails_sent_total",
		"users_events_published_total",
		"users_http_requests_total",
		"users_http_request_duration_seconds",
		"users_rate_limited_total",
	} {
		assert.True(t, registered[name], "metric %q should be registered", name)
	}
}

func TestRecordAuthCommand_IncrementsByOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAuthCommand("refresh", "success", time.Millisecond)
	m.RecordAuthCommand("refresh", "unauthorized", time.Millisecond)
	m.RecordAuthCommand("refresh", "unauthorized", time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.AuthCommands.WithLabelValues("refresh", "success")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.AuthCommands.WithLabelValues("refresh", "unauthorized")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.AuthDuration))
}

func TestNilMetrics_IsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordAuthCommand("login", "success", time.Millisecond)
		m.RecordEmail("log", OutcomeError)
		m.RecordEvent("x", OutcomeError)
		m.RecordHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
		m.RecordRateLimited("global")
	})
}

func TestHandler_ServesExposition(t *testing.T) {
	reg := NewRegistry()
	m := NewMetrics(reg)
	m.RecordEmail("mailgun", OutcomeSuccess)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "users_emails_sent_total"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
