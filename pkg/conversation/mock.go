package conversation

import (
	"context"
	"sync"
)

// Mock is a test double for Provider. It records calls and lets tests
// inject events through the Simulate helpers.
type Mock struct {
	mu        sync.Mutex
	connected bool
	closed    bool

	// captured calls
	SentAudio    [][]byte
	CancelCalls  int
	ConnectCalls int

	// injectable failures
	ConnectErr error
	SendErr    error

	// reported capabilities
	Caps Capabilities

	events chan Event
}

// NewMock creates a Mock with a buffered event stream.
func NewMock() *Mock {
	return &Mock{
		Caps: Capabilities{
			SupportsResponseCancel: true,
			InputSampleRate:        16000,
			OutputSampleRate:       16000,
		},
		events: make(chan Event, 64),
	}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConnectCalls++
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	if m.connected {
		return ErrAlreadyConnected
	}
	m.connected = true
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.connected = false
	m.closed = true
	close(m.events)
	return nil
}

func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Mock) SendAudio(audio []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendErr != nil {
		return m.SendErr
	}
	if !m.connected {
		return ErrNotConnected
	}
	buf := make([]byte, len(audio))
	copy(buf, audio)
	m.SentAudio = append(m.SentAudio, buf)
	return nil
}

func (m *Mock) CancelResponse() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelCalls++
	return nil
}

func (m *Mock) Events() <-chan Event {
	return m.events
}

func (m *Mock) Capabilities() Capabilities {
	return m.Caps
}

// SentChunks returns a copy of all audio sent so far.
func (m *Mock) SentChunks() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.SentAudio))
	copy(out, m.SentAudio)
	return out
}

// Cancels returns how many cancel calls were made.
func (m *Mock) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CancelCalls
}

// Emit injects an arbitrary event into the stream.
func (m *Mock) Emit(ev Event) {
	m.events <- ev
}

// SimulateSessionReady emits a session ready event.
func (m *Mock) SimulateSessionReady() {
	m.Emit(Event{Type: EventSessionReady})
}

// SimulateAudio emits an assistant audio chunk.
func (m *Mock) SimulateAudio(audio []byte) {
	m.Emit(Event{Type: EventAudioChunk, Speaker: SpeakerAssistant, Audio: audio})
}

// SimulateTranscript emits a final transcript for the given speaker.
func (m *Mock) SimulateTranscript(speaker Speaker, text string) {
	m.Emit(Event{Type: EventFinalTranscript, Speaker: speaker, Text: text})
}

// SimulateError emits a provider error event.
func (m *Mock) SimulateError(code, message string) {
	m.Emit(Event{Type: EventProviderError, Code: code, Message: message})
}

// SimulateEnded emits a conversation ended event and closes the stream.
func (m *Mock) SimulateEnded() {
	m.Emit(Event{Type: EventConversationEnded})
	m.Close()
}

// Ensure Mock implements Provider.
var _ Provider = (*Mock)(nil)
