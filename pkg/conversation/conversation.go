// Package conversation provides adapters for real-time voice interview
// providers. It supports the OpenAI Realtime API and the ElevenLabs
// Agents Platform behind a single Provider interface.
//
// Each adapter owns one outbound WebSocket connection, configures the
// session from the candidate's profile, and translates the provider's
// wire protocol into a normalized event stream that the relay consumes
// from a single channel:
//
//	provider, err := conversation.NewOpenAI(
//	    conversation.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    conversation.WithCandidate(candidate),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	if err := provider.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	for ev := range provider.Events() {
//	    switch ev.Type {
//	    case conversation.EventAudioChunk:
//	        // forward PCM16 to the client
//	    }
//	}
package conversation

import "context"

// ConnectionState represents the WebSocket connection state.
type ConnectionState int

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates connection is being established.
	StateConnecting
	// StateConnected indicates an active connection.
	StateConnected
)

// String returns a human-readable connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Capabilities describes what features a provider supports.
type Capabilities struct {
	// SupportsResponseCancel indicates an in-flight response can be
	// cancelled explicitly by id. Providers without it handle barge-in
	// server-side.
	SupportsResponseCancel bool

	// SupportsCustomVoice indicates custom voice selection is available.
	SupportsCustomVoice bool

	// InputSampleRate is the expected audio input sample rate (Hz).
	InputSampleRate int

	// OutputSampleRate is the audio output sample rate (Hz).
	OutputSampleRate int
}

// Provider is the interface for voice interview providers.
// Implementations handle the WebSocket connection, session setup from the
// candidate context, and wire-protocol translation.
type Provider interface {
	// Name identifies the provider ("openai" or "elevenlabs").
	Name() string

	// Connect establishes the WebSocket connection and configures the
	// session. It returns once the socket is up; readiness is signaled
	// by an EventSessionReady on Events.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection. The Events channel is
	// closed once the read loop exits.
	Close() error

	// IsConnected returns true if connected.
	IsConnected() bool

	// SendAudio sends PCM16 mono audio at the provider's input rate.
	SendAudio(audio []byte) error

	// CancelResponse interrupts the current agent response, referencing
	// the in-flight response id where the protocol supports it.
	CancelResponse() error

	// Events returns the normalized event stream. The channel is closed
	// when the provider connection ends.
	Events() <-chan Event

	// Capabilities returns provider capabilities.
	Capabilities() Capabilities
}
