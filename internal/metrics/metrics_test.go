package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

func TestObservers(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAssessment(uncertainty.Assessment{Domain: uncertainty.DomainTechnical, Recommendation: uncertainty.StrategyDialogue, Overall: 0.5})
	m.ObserveAssessment(uncertainty.Assessment{Domain: uncertainty.DomainTechnical, Recommendation: uncertainty.StrategyCollaborative, Overall: 0.8, Fallback: true})
	m.ObserveEngagement(&routing.EngagementRequest{Domain: uncertainty.DomainCompliance, Strategy: uncertainty.StrategyExpert, Priority: routing.PriorityHigh})
	m.ObserveEngagement(nil)
	m.ObserveResponse(uncertainty.DomainCompliance)
	m.ObserveSession("completed")
	m.ObserveWebhook(nil)
	m.ObserveWebhook(errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.assessments.WithLabelValues("technical", "structured_dialogue")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("technical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.engagements.WithLabelValues("compliance", "expert_consultation", "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.responses.WithLabelValues("compliance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.overall))
}

func TestUnknownDomainsShareOneSeries(t *testing.T) {
	m := New(prometheus.NewRegistry())

	for i := 0; i < 50; i++ {
		d := uncertainty.Domain(fmt.Sprintf("caller-domain-%d", i))
		m.ObserveAssessment(uncertainty.Assessment{Domain: d, Recommendation: uncertainty.StrategyBrief, Overall: 0.3})
		m.ObserveEngagement(&routing.EngagementRequest{Domain: d, Strategy: "made-up", Priority: "urgent"})
		m.ObserveResponse(d)
	}

	assert.Equal(t, 1, testutil.CollectAndCount(m.assessments))
	assert.Equal(t, 1, testutil.CollectAndCount(m.overall))
	assert.Equal(t, 1, testutil.CollectAndCount(m.engagements))
	assert.Equal(t, 1, testutil.CollectAndCount(m.responses))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.assessments.WithLabelValues("other", "brief_clarification")))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.engagements.WithLabelValues("other", "other", "other")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAssessment(uncertainty.Assessment{})
		m.ObserveSession("started")
		m.ObserveWebhook(nil)
	})
	h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	assert.NotNil(t, m.Middleware(h))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/clarifications/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/clarifications/abc", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/clarifications/{id}", "404")))
}
