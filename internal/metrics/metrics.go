// Package metrics exposes Prometheus collectors for assessments, routing
// decisions and clarification sessions. A nil *Metrics is a no-op.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

const namespace = "hitl"

// Metrics holds every collector the engine reports to.
type Metrics struct {
	assessments   *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	overall       *prometheus.HistogramVec
	engagements   *prometheus.CounterVec
	responses     *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: domain, strategy
		assessments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assessor",
			Name:      "assessments_total",
			Help:      "Uncertainty assessments by domain and recommended strategy",
		}, []string{"domain", "strategy"}),

		// Labels: domain
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assessor",
			Name:      "fallbacks_total",
			Help:      "Assessments that failed and returned the conservative fallback",
		}, []string{"domain"}),

		// Labels: domain
		overall: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "assessor",
			Name:      "overall_uncertainty",
			Help:      "Distribution of overall uncertainty scores",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}, []string{"domain"}),

		// Labels: domain, strategy, priority
		engagements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "engagements_total",
			Help:      "Engagement requests created by the router",
		}, []string{"domain", "strategy", "priority"}),

		// Labels: domain
		responses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clarify",
			Name:      "responses_total",
			Help:      "Human responses accepted by clarification sessions",
		}, []string{"domain"}),

		// Labels: status (started, completed, abandoned)
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clarify",
			Name:      "sessions_total",
			Help:      "Clarification session lifecycle transitions",
		}, []string{"status"}),

		// Labels: outcome (delivered, failed)
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "webhooks_total",
			Help:      "Webhook delivery attempts by outcome",
		}, []string{"outcome"}),

		// Labels: method, route, status
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "status"}),

		// Labels: method, route
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
}

// otherLabel replaces label values outside the known vocabulary so callers
// cannot create unbounded series.
const otherLabel = "other"

func domainLabel(d uncertainty.Domain) string {
	switch d {
	case uncertainty.DomainConversational, uncertainty.DomainTechnical, uncertainty.DomainCompliance:
		return string(d)
	}
	return otherLabel
}

func strategyLabel(s uncertainty.Strategy) string {
	if !s.Valid() {
		return otherLabel
	}
	return string(s)
}

func priorityLabel(p routing.Priority) string {
	switch p {
	case routing.PriorityLow, routing.PriorityMedium, routing.PriorityHigh, routing.PriorityCritical:
		return string(p)
	}
	return otherLabel
}

// ObserveAssessment records one assessment.
func (m *Metrics) ObserveAssessment(a uncertainty.Assessment) {
	if m == nil {
		return
	}
	d := domainLabel(a.Domain)
	m.assessments.WithLabelValues(d, strategyLabel(a.Recommendation)).Inc()
	m.overall.WithLabelValues(d).Observe(a.Overall)
	if a.Fallback {
		m.fallbacks.WithLabelValues(d).Inc()
	}
}

// ObserveEngagement records one routing decision.
func (m *Metrics) ObserveEngagement(req *routing.EngagementRequest) {
	if m == nil || req == nil {
		return
	}
	m.engagements.WithLabelValues(domainLabel(req.Domain), strategyLabel(req.Strategy), priorityLabel(req.Priority)).Inc()
}

// ObserveResponse records an accepted clarification response.
func (m *Metrics) ObserveResponse(d uncertainty.Domain) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(domainLabel(d)).Inc()
}

// ObserveSession records a session lifecycle transition.
func (m *Metrics) ObserveSession(status string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(status).Inc()
}

// ObserveWebhook records one webhook delivery attempt.
func (m *Metrics) ObserveWebhook(err error) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
