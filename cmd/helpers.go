package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ziadkadry99/hitl/internal/audit"
	"github.com/ziadkadry99/hitl/internal/auth"
	"github.com/ziadkadry99/hitl/internal/clarify"
	"github.com/ziadkadry99/hitl/internal/config"
	"github.com/ziadkadry99/hitl/internal/db"
	"github.com/ziadkadry99/hitl/internal/embeddings"
	"github.com/ziadkadry99/hitl/internal/engine"
	"github.com/ziadkadry99/hitl/internal/knowledge"
	"github.com/ziadkadry99/hitl/internal/llm"
	"github.com/ziadkadry99/hitl/internal/logging"
	"github.com/ziadkadry99/hitl/internal/metrics"
	"github.com/ziadkadry99/hitl/internal/notifications"
	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `hitl init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// createEmbedderFromConfig creates the knowledge base embedder.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.Knowledge.EmbeddingProvider
	var apiKey string
	if provider == config.ProviderOpenAI {
		apiKey = auth.GetAPIKey(string(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("%s is required for OpenAI embeddings (or run `hitl auth openai`)",
				config.APIKeyEnvVar(config.ProviderOpenAI))
		}
	}
	return embeddings.New(string(provider), cfg.Knowledge.EmbeddingModel, apiKey, "")
}

// createLLMProviderFromConfig creates the rate limited provider behind the
// model judge. It returns nil when no provider is configured.
func createLLMProviderFromConfig(cfg *config.Config) (llm.Provider, string, error) {
	if cfg.LLM.Provider == config.ProviderNone {
		return nil, "", nil
	}
	model := cfg.LLM.Model
	if model == "" {
		model = config.DefaultModel(cfg.LLM.Provider)
	}
	provider, err := llm.NewProvider(string(cfg.LLM.Provider), model, cfg.LLM.BaseURL)
	if err != nil {
		return nil, "", err
	}
	if cfg.LLM.RequestsPerMinute > 0 {
		provider = llm.NewRateLimitedProvider(provider, cfg.LLM.RequestsPerMinute)
	}
	return provider, model, nil
}

// app holds every component built from the configuration.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	database   *db.DB
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	authz      *auth.Authorizer
	engine     *engine.Engine
	audit      *audit.Store
	notifStore *notifications.Store
	dispatcher *notifications.Dispatcher
	knowledge  *knowledge.Base
}

// newApp loads the configuration and wires the engine.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log, verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.metrics = metrics.New(a.registry)
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	profiles := a.cfg.Domains

	var (
		store   clarify.Store
		history routing.History
	)
	switch a.cfg.Storage.Driver {
	case config.StorageSQLite:
		database, err := db.Open(a.cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		a.database = database
		store = clarify.NewSQLStore(database)
		a.audit = audit.NewStore(database)
		history = a.audit
		a.notifStore = notifications.NewStore(database)
	default:
		store = clarify.NewMemoryStore()
		history = routing.NewMemoryHistory()
	}

	assessorOpts := []uncertainty.Option{uncertainty.WithLogger(a.logger)}
	coverage, err := a.buildCoverage(ctx)
	if err != nil {
		return err
	}
	if coverage != nil {
		assessorOpts = append(assessorOpts, uncertainty.WithCoverage(coverage))
	}
	provider, model, err := createLLMProviderFromConfig(a.cfg)
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}
	if provider != nil {
		assessorOpts = append(assessorOpts, uncertainty.WithExtraProbes(uncertainty.NewModelJudge(provider, model)))
	}

	assessor := uncertainty.NewAssessor(profiles, assessorOpts...)
	router := routing.New(profiles,
		routing.WithHistory(history),
		routing.WithSettings(a.cfg.Routing.Settings),
		routing.WithClassifier(routing.NewKeywordClassifier(a.cfg.Routing.Triggers)),
		routing.WithLogger(a.logger),
	)
	sessions := clarify.NewManager(store, profiles,
		clarify.WithSettings(a.cfg.Session),
		clarify.WithRecorder(engine.SessionRecorder(router, a.metrics)),
		clarify.WithLogger(a.logger),
	)

	a.authz = auth.NewAuthorizer(a.cfg.Auth.ReviewerRoles...)
	opts := []engine.Option{
		engine.WithAuthorizer(a.authz),
		engine.WithMetrics(a.metrics),
		engine.WithLogger(a.logger),
	}
	if a.cfg.Notify.WebhookURL != "" || a.notifStore != nil {
		dopts := []notifications.Option{
			notifications.WithMinPriority(a.cfg.Notify.MinPriority),
			notifications.WithLogger(a.logger),
			notifications.WithObserver(a.metrics.ObserveWebhook),
		}
		if a.notifStore != nil {
			dopts = append(dopts, notifications.WithStore(a.notifStore))
		}
		a.dispatcher = notifications.NewDispatcher(a.cfg.Notify.WebhookURL, dopts...)
		opts = append(opts, engine.WithNotifier(a.dispatcher))
	}

	a.engine = engine.New(assessor, router, sessions, opts...)
	return nil
}

// buildCoverage loads the knowledge base, preferring a persisted index
// over re-reading the source documents. It returns nil when no knowledge
// is configured.
func (a *app) buildCoverage(ctx context.Context) (uncertainty.CoverageEstimator, error) {
	kc := a.cfg.Knowledge
	if kc.Root == "" && kc.PersistPath == "" {
		return nil, nil
	}
	embedder, err := createEmbedderFromConfig(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	base, err := knowledge.NewBase(embedder)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge base: %w", err)
	}

	loaded := false
	if kc.PersistPath != "" {
		if _, err := os.Stat(kc.PersistPath); err == nil {
			if err := base.Load(kc.PersistPath); err != nil {
				a.logger.Warn("could not load knowledge index", zap.String("path", kc.PersistPath), zap.Error(err))
			} else {
				loaded = true
			}
		}
	}
	if !loaded && kc.Root != "" {
		if _, err := base.LoadFiles(ctx, kc.Root, kc.Include, nil); err != nil {
			return nil, fmt.Errorf("indexing knowledge: %w", err)
		}
	}
	a.logger.Debug("knowledge base ready", zap.Int("documents", base.Count()), zap.Bool("from_index", loaded))

	a.knowledge = base
	return knowledge.NewCoverage(base, uncertainty.ContextCoverage{}), nil
}

// maintain removes expired sessions and retries pending webhooks.
func (a *app) maintain(ctx context.Context) {
	if hours := a.cfg.Storage.RetentionHours; hours > 0 {
		n, err := a.engine.Sweep(ctx, time.Duration(hours)*time.Hour)
		if err != nil {
			a.logger.Warn("session sweep failed", zap.Error(err))
		} else if n > 0 {
			a.logger.Info("expired clarification sessions removed", zap.Int("count", n))
		}
	}
	if a.dispatcher != nil {
		n, err := a.dispatcher.Redeliver(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("webhook redelivery failed", zap.Error(err))
		} else if n > 0 {
			a.logger.Info("pending notifications delivered", zap.Int("count", n))
		}
	}
}

// Close releases the database and flushes the logger.
func (a *app) Close() {
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			a.logger.Warn("closing database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
