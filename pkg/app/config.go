package app

import (
	"fmt"
	"time"

	"github.com/voxprep/go-voxprep/internal/config"
	"github.com/voxprep/go-voxprep/pkg/evaluation"
	"github.com/voxprep/go-voxprep/pkg/relay"
)

// Config holds everything the service needs to run.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// Provider credentials. OpenAI is the primary conversation
	// provider; ElevenLabs is the fallback when an agent id is set.
	OpenAIKey         string
	ElevenLabsKey     string
	ElevenLabsAgentID string

	// Scoring credentials. Gemini is primary, OpenAI the fallback.
	GeminiKey string

	// MongoURI enables durable storage; empty means in-memory.
	MongoURI string
	MongoDB  string

	Session relay.SessionConfig
	Queue   evaluation.Config

	Debug bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Port:    "8080",
		MongoDB: "voxprep",
		Session: relay.DefaultSessionConfig(),
		Queue:   evaluation.DefaultConfig(),
	}
}

// FromEnv fills the config from environment variables.
func FromEnv() Config {
	cfg := DefaultConfig()

	cfg.Port = config.Env("PORT", cfg.Port)
	cfg.OpenAIKey = config.Env("OPENAI_API_KEY", "")
	cfg.ElevenLabsKey = config.Env("ELEVENLABS_API_KEY", "")
	cfg.ElevenLabsAgentID = config.Env("ELEVENLABS_AGENT_ID", "")
	cfg.GeminiKey = config.Env("GEMINI_API_KEY", "")
	cfg.MongoURI = config.Env("MONGODB_URI", "")
	cfg.MongoDB = config.Env("MONGODB_DATABASE", cfg.MongoDB)

	cfg.Session.PingInterval = config.EnvDuration("PING_INTERVAL", cfg.Session.PingInterval)
	cfg.Session.ConnectTimeout = config.EnvDuration("PROVIDER_CONNECT_TIMEOUT", cfg.Session.ConnectTimeout)

	cfg.Queue.Workers = config.EnvInt("EVAL_WORKERS", cfg.Queue.Workers)
	cfg.Queue.MaxRetries = config.EnvInt("EVAL_MAX_RETRIES", cfg.Queue.MaxRetries)
	cfg.Queue.Staleness = config.EnvDuration("EVAL_STALENESS", cfg.Queue.Staleness)

	return cfg
}

// ConfigError describes a missing or invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("app: config %s: %s", e.Field, e.Reason)
}

// Validate checks that a runnable combination of settings is present.
func (c *Config) Validate() error {
	if c.Port == "" {
		return &ConfigError{Field: "Port", Reason: "required"}
	}
	if c.OpenAIKey == "" && c.ElevenLabsAgentID == "" {
		return &ConfigError{
			Field:  "OpenAIKey",
			Reason: "at least one conversation provider must be configured",
		}
	}
	if c.GeminiKey == "" && c.OpenAIKey == "" {
		return &ConfigError{
			Field:  "GeminiKey",
			Reason: "at least one scoring provider must be configured",
		}
	}
	if c.Queue.MaxRetries < 1 {
		return &ConfigError{Field: "Queue.MaxRetries", Reason: "must be at least 1"}
	}
	if c.Session.ConnectTimeout < time.Second {
		return &ConfigError{Field: "Session.ConnectTimeout", Reason: "must be at least 1s"}
	}
	return nil
}
