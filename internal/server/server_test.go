package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ziadkadry99/hitl/internal/audit"
	"github.com/ziadkadry99/hitl/internal/auth"
	"github.com/ziadkadry99/hitl/internal/clarify"
	"github.com/ziadkadry99/hitl/internal/config"
	"github.com/ziadkadry99/hitl/internal/db"
	"github.com/ziadkadry99/hitl/internal/engine"
	"github.com/ziadkadry99/hitl/internal/metrics"
	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

func newTestServer(t *testing.T, serverCfg config.ServerConfig) *Server {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	profiles := uncertainty.DefaultProfiles()
	store := audit.NewStore(database)
	router := routing.New(profiles, routing.WithHistory(store))
	sessions := clarify.NewManager(clarify.NewMemoryStore(), profiles)
	authz := auth.NewAuthorizer("reviewer")
	e := engine.New(uncertainty.NewAssessor(profiles), router, sessions,
		engine.WithAuthorizer(authz), engine.WithMetrics(m))

	return New(serverCfg, config.DefaultConfig().Auth, Deps{
		Engine:     e,
		Authorizer: authz,
		Audit:      store,
		Metrics:    m,
		Gatherer:   reg,
	}, nil)
}

func serve(srv *Server, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{})

	w := serve(srv, "GET", "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{CORSOrigins: []string{"*"}})

	w := serve(srv, "OPTIONS", "/healthz", map[string]string{
		"Origin":                        "http://example.com",
		"Access-Control-Request-Method": "GET",
	})
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{})

	serve(srv, "GET", "/healthz", nil)
	w := serve(srv, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "hitl_http_requests_total") {
		t.Errorf("expected request counter in /metrics output")
	}
}

func TestEngineRoutesRequireIdentity(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{})

	w := serve(srv, "GET", "/api/v1/history", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without identity, got %d", w.Code)
	}

	w = serve(srv, "GET", "/api/v1/history", map[string]string{auth.DefaultUserHeader: "alice"})
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with identity, got %d", w.Code)
	}
}

func TestAuditRoutesRequireReviewer(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{})

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"plain user", map[string]string{auth.DefaultUserHeader: "alice"}, http.StatusForbidden},
		{"reviewer", map[string]string{auth.DefaultUserHeader: "rita", auth.DefaultRolesHeader: "reviewer"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(srv, "GET", "/api/v1/audit/", tt.headers)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{Host: "127.0.0.1", Port: 9090})
	if got := srv.Addr(); got != "127.0.0.1:9090" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestStartAndShutdown(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{Host: "127.0.0.1", Port: 0})

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Start returned %v after shutdown", err)
		}
	case <-ctx.Done():
		t.Fatal("Start did not return after shutdown")
	}
}
