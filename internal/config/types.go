package config

import (
	"github.com/ziadkadry99/hitl/internal/clarify"
	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// StorageDriver selects where sessions and engagement history are kept.
type StorageDriver string

const (
	StorageMemory StorageDriver = "memory"
	StorageSQLite StorageDriver = "sqlite"
)

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderNone   ProviderType = ""
	ProviderHash   ProviderType = "hash"
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
)

// Config is the top-level hitl configuration, corresponding to .hitl.yml.
type Config struct {
	Server    ServerConfig         `yaml:"server" koanf:"server"`
	Storage   StorageConfig        `yaml:"storage" koanf:"storage"`
	Log       LogConfig            `yaml:"log" koanf:"log"`
	Session   clarify.Settings     `yaml:"session" koanf:"session"`
	Routing   RoutingConfig        `yaml:"routing" koanf:"routing"`
	Domains   uncertainty.Profiles `yaml:"domains" koanf:"domains"`
	Knowledge KnowledgeConfig      `yaml:"knowledge" koanf:"knowledge"`
	LLM       LLMConfig            `yaml:"llm" koanf:"llm"`
	Auth      AuthConfig           `yaml:"auth" koanf:"auth"`
	Notify    NotifyConfig         `yaml:"notify" koanf:"notify"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host        string   `yaml:"host" koanf:"host"`
	Port        int      `yaml:"port" koanf:"port"`
	CORSOrigins []string `yaml:"cors_origins" koanf:"cors_origins"`
}

// StorageConfig selects the session and history backend.
type StorageConfig struct {
	Driver         StorageDriver `yaml:"driver" koanf:"driver"`
	Path           string        `yaml:"path" koanf:"path"`
	RetentionHours int           `yaml:"retention_hours" koanf:"retention_hours"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}

// RoutingConfig tunes response processing and the domain classifier.
type RoutingConfig struct {
	Settings routing.Settings `yaml:"settings" koanf:"settings"`
	Triggers routing.Triggers `yaml:"triggers" koanf:"triggers"`
}

// KnowledgeConfig describes the reference documents used to estimate
// knowledge coverage.
type KnowledgeConfig struct {
	Root              string       `yaml:"root" koanf:"root"`
	Include           []string     `yaml:"include" koanf:"include"`
	EmbeddingProvider ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string       `yaml:"embedding_model" koanf:"embedding_model"`
	PersistPath       string       `yaml:"persist_path" koanf:"persist_path"`
}

// LLMConfig enables the optional model judge probe.
type LLMConfig struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	BaseURL           string       `yaml:"base_url" koanf:"base_url"`
	RequestsPerMinute int          `yaml:"requests_per_minute" koanf:"requests_per_minute"`
}

// AuthConfig names the identity headers and the roles allowed to review any
// session.
type AuthConfig struct {
	UserHeader    string   `yaml:"user_header" koanf:"user_header"`
	RolesHeader   string   `yaml:"roles_header" koanf:"roles_header"`
	ReviewerRoles []string `yaml:"reviewer_roles" koanf:"reviewer_roles"`
}

// NotifyConfig configures webhook delivery of engagement requests.
type NotifyConfig struct {
	WebhookURL  string           `yaml:"webhook_url" koanf:"webhook_url"`
	MinPriority routing.Priority `yaml:"min_priority" koanf:"min_priority"`
}
