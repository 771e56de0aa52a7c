package config

import (
	"github.com/ziadkadry99/hitl/internal/auth"
	"github.com/ziadkadry99/hitl/internal/clarify"
	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = ".hitl.yml"

// DefaultKnowledgeInclude are the reference documents indexed when the
// knowledge base is enabled without explicit globs.
var DefaultKnowledgeInclude = []string{
	"**/*.md",
	"**/*.txt",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Driver:         StorageMemory,
			Path:           ".hitl/hitl.db",
			RetentionHours: 24,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Session: clarify.DefaultSettings(),
		Routing: RoutingConfig{
			Settings: routing.DefaultSettings(),
			Triggers: routing.DefaultTriggers(),
		},
		Domains: uncertainty.DefaultProfiles(),
		Knowledge: KnowledgeConfig{
			EmbeddingProvider: ProviderHash,
		},
		LLM: LLMConfig{
			RequestsPerMinute: 60,
		},
		Auth: AuthConfig{
			UserHeader:    auth.DefaultUserHeader,
			RolesHeader:   auth.DefaultRolesHeader,
			ReviewerRoles: []string{"reviewer"},
		},
		Notify: NotifyConfig{
			MinPriority: routing.PriorityLow,
		},
	}
}

// DefaultModel returns the judge model used when llm.model is unset.
func DefaultModel(p ProviderType) string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderOllama:
		return "llama3"
	default:
		return ""
	}
}

