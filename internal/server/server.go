// Package server hosts the HTTP API: the engine endpoints, the reviewer-only
// audit and notification logs, health and metrics.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ziadkadry99/hitl/internal/audit"
	"github.com/ziadkadry99/hitl/internal/auth"
	"github.com/ziadkadry99/hitl/internal/config"
	"github.com/ziadkadry99/hitl/internal/engine"
	"github.com/ziadkadry99/hitl/internal/metrics"
	"github.com/ziadkadry99/hitl/internal/notifications"
)

// Deps are the feature components mounted on the router. Nil members are
// skipped.
type Deps struct {
	Engine        *engine.Engine
	Authorizer    *auth.Authorizer
	Audit         *audit.Store
	Notifications *notifications.Store
	Dispatcher    *notifications.Dispatcher
	Metrics       *metrics.Metrics
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Server is the hitl HTTP server.
type Server struct {
	cfg        config.ServerConfig
	auth       config.AuthConfig
	deps       Deps
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a server and builds its routes.
func New(cfg config.ServerConfig, authCfg config.AuthConfig, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:    cfg,
		auth:   authCfg,
		deps:   deps,
		logger: logger,
	}
	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.deps.Metrics.Middleware)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type",
			headerOr(s.auth.UserHeader, auth.DefaultUserHeader),
			headerOr(s.auth.RolesHeader, auth.DefaultRolesHeader)},
		MaxAge: 300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	identity := auth.Middleware(s.auth.UserHeader, s.auth.RolesHeader)
	authz := s.deps.Authorizer
	if authz == nil {
		authz = auth.NewAuthorizer(s.auth.ReviewerRoles...)
	}
	reviewer := func(next http.Handler) http.Handler {
		return identity(authz.RequireReviewer(next))
	}

	if s.deps.Engine != nil {
		engine.RegisterRoutes(r, s.deps.Engine, identity)
	}
	if s.deps.Audit != nil {
		audit.RegisterRoutes(r, s.deps.Audit, reviewer)
	}
	if s.deps.Notifications != nil {
		notifications.RegisterRoutes(r, s.deps.Notifications, s.deps.Dispatcher, reviewer)
	}

	return r
}

func headerOr(h, def string) string {
	if h == "" {
		return def
	}
	return h
}

// requestLogger logs one line per request once the handler returns.
func requestLogger(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			l.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// Router returns the chi router.
func (s *Server) Router() chi.Router { return s.router }

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Start listens until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("hitl server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
