package conversation

import (
	"log/slog"
	"time"

	"github.com/voxprep/go-voxprep/pkg/interview"
)

// Config holds configuration for conversation providers.
type Config struct {
	// APIKey is the authentication key for the provider.
	APIKey string

	// AgentID is the conversational agent identifier (ElevenLabs).
	AgentID string

	// Model is the realtime model to use (OpenAI).
	Model string

	// Voice is the voice ID for TTS (OpenAI).
	Voice string

	// Candidate is the profile used to build the interviewer prompt and
	// init payload.
	Candidate interview.CandidateContext

	// BaseURL overrides the default WebSocket endpoint (tests).
	BaseURL string

	// Temperature controls response randomness (0.0-1.0).
	Temperature float64

	// MaxResponseTokens limits response length.
	MaxResponseTokens int

	// InputSampleRate is the audio input sample rate in Hz.
	InputSampleRate int

	// OutputSampleRate is the audio output sample rate in Hz.
	OutputSampleRate int

	// Timeout is the connection handshake timeout.
	Timeout time.Duration

	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration

	// FirstResponseDelay is how long to wait after session setup before
	// requesting the first response, so the agent speaks first without
	// clipping the session handshake.
	FirstResponseDelay time.Duration

	// TurnDetection configures voice activity detection.
	TurnDetection *TurnDetection

	// EventBuffer is the normalized event channel capacity.
	EventBuffer int

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// TurnDetection configures voice activity detection for turn-taking.
type TurnDetection struct {
	// Type is the detection type: "server_vad" or "none".
	Type string

	// Threshold is the VAD threshold (0.0-1.0).
	Threshold float64

	// PrefixPaddingMs is silence before speech starts.
	PrefixPaddingMs int

	// SilenceDurationMs is silence duration to end the turn. Interview
	// answers involve thinking pauses, so this defaults much longer than
	// a chat assistant would use.
	SilenceDurationMs int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Temperature:        0.8,
		MaxResponseTokens:  4096,
		InputSampleRate:    16000,
		OutputSampleRate:   16000,
		Timeout:            10 * time.Second,
		ReadTimeout:        5 * time.Minute,
		FirstResponseDelay: 500 * time.Millisecond,
		EventBuffer:        256,
		Logger:             slog.Default(),
		TurnDetection: &TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 2500,
		},
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithAgentID sets the conversational agent ID (ElevenLabs).
func WithAgentID(id string) Option {
	return func(c *Config) {
		c.AgentID = id
	}
}

// WithModel sets the realtime model (OpenAI).
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithVoice sets the TTS voice.
func WithVoice(voice string) Option {
	return func(c *Config) {
		c.Voice = voice
	}
}

// WithCandidate sets the candidate context for prompt construction.
func WithCandidate(candidate interview.CandidateContext) Option {
	return func(c *Config) {
		c.Candidate = candidate
	}
}

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithTemperature sets the response temperature.
func WithTemperature(temp float64) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithMaxTokens sets the maximum response tokens.
func WithMaxTokens(tokens int) Option {
	return func(c *Config) {
		c.MaxResponseTokens = tokens
	}
}

// WithTimeout sets the connection handshake timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithTurnDetection configures voice activity detection.
func WithTurnDetection(td *TurnDetection) Option {
	return func(c *Config) {
		c.TurnDetection = td
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Common voice constants for convenience.
const (
	// OpenAI voices
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)
