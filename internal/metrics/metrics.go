package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of an upstream call.
const (
	OutcomeOK          = "ok"
	OutcomeRejected    = "rejected"
	OutcomeUnavailable = "unavailable"
)

var (
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diary_upstream_requests_total",
		Help: "Requests to the school services by action and outcome.",
	}, []string{"action", "outcome"})

	upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "diary_upstream_request_duration_seconds",
		Help:    "Latency of requests to the school services.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	sessionsAuthenticated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diary_sessions_authenticated_total",
		Help: "Sessions that reached the authenticated step, by role.",
	}, []string{"role"})

	staleResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diary_stale_results_total",
		Help: "Responses discarded because the session moved on while they were in flight.",
	}, []string{"operation"})

	sessionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diary_session_events_total",
		Help: "Session events consumed by the audit worker.",
	}, []string{"type"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diary_rate_limited_total",
		Help: "Requests rejected by the per-IP rate limiter.",
	})
)

// ObserveUpstream records one call to a school service.
func ObserveUpstream(action, outcome string, took time.Duration) {
	upstreamRequests.WithLabelValues(action, outcome).Inc()
	upstreamDuration.WithLabelValues(action).Observe(took.Seconds())
}

// SessionAuthenticated counts a completed login.
func SessionAuthenticated(role string) {
	sessionsAuthenticated.WithLabelValues(role).Inc()
}

// StaleResult counts a response dropped by the generation check.
func StaleResult(operation string) {
	staleResults.WithLabelValues(operation).Inc()
}

// SessionEvent counts an event handled by the worker.
func SessionEvent(eventType string) {
	sessionEvents.WithLabelValues(eventType).Inc()
}

// RateLimited counts a rejected request.
func RateLimited() {
	rateLimited.Inc()
}
