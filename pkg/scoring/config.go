package scoring

import (
	"log/slog"
	"time"
)

// Config holds scorer configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	MaxTokens   int
	Temperature float64

	// Timeout bounds the whole LLM call.
	Timeout time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring scorers.
type Option func(*Config)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens sets the response token cap.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults shared by all scorers.
func DefaultConfig() *Config {
	return &Config{
		MaxTokens:   4096,
		Temperature: 0.3,
		Timeout:     60 * time.Second,
		Logger:      slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
