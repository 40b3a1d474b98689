// AngelaMos | 2026
// metrics.go

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for delivery counters.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds every collector the service exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	AuthCommands    *prometheus.CounterVec
	AuthDuration    *prometheus.HistogramVec
	EmailsSent      *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	RateLimited     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Registration panics on duplicates, following prometheus convention.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthCommands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "users_auth_commands_total",
				Help: "Total number of auth commands by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		AuthDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "users_auth_command_duration_seconds",
				Help:    "Auth command duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		EmailsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "users_emails_sent_total",
				Help: "Total number of outbound emails by driver and outcome",
			},
			[]string{"driver", "outcome"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "users_events_published_total",
				Help: "Total number of domain events published by type and outcome",
			},
			[]string{"event", "outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "users_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "users_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "users_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"scope"},
		),
	}

	reg.MustRegister(
		m.AuthCommands,
		m.AuthDuration,
		m.EmailsSent,
		m.EventsPublished,
		m.HTTPRequests,
		m.HTTPDuration,
		m.RateLimited,
	)

	return m
}

// NewRegistry returns a registry preloaded with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordAuthCommand counts one auth command and observes its duration.
// outcome is "success" or the error kind.
func (m *Metrics) RecordAuthCommand(command, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AuthCommands.WithLabelValues(command, outcome).Inc()
	m.AuthDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func (m *Metrics) RecordEmail(driver, outcome string) {
	if m == nil {
		return
	}
	m.EmailsSent.WithLabelValues(driver, outcome).Inc()
}

func (m *Metrics) RecordEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) RecordHTTPRequest(
	method, route string,
	status int,
	duration time.Duration,
) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) RecordRateLimited(scope string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(scope).Inc()
}
