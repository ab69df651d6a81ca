package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/voxprep/go-voxprep/pkg/conversation"
	"github.com/voxprep/go-voxprep/pkg/interview"
)

// mockConn is a scriptable ClientConn.
type mockConn struct {
	reads chan clientFrame
	quit  chan struct{}

	mu          sync.Mutex
	writes      []outFrame
	closed      bool
	pongHandler func(string) error
	once        sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{
		reads: make(chan clientFrame, 16),
		quit:  make(chan struct{}),
	}
}

func (c *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case fr := <-c.reads:
		return fr.messageType, fr.data, fr.err
	case <-c.quit:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *mockConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, outFrame{messageType: messageType, data: cp})
	return nil
}

func (c *mockConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pongHandler = h
}

// pong invokes the installed pong handler, as the read loop would on a
// client pong frame.
func (c *mockConn) pong() {
	c.mu.Lock()
	h := c.pongHandler
	c.mu.Unlock()
	if h != nil {
		_ = h("")
	}
}

func (c *mockConn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.quit)
	})
	return nil
}

func (c *mockConn) sendJSON(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	c.reads <- clientFrame{messageType: textMessage, data: data}
}

func (c *mockConn) sendBinary(data []byte) {
	c.reads <- clientFrame{messageType: binaryMessage, data: data}
}

// messageTypes returns the type field of every JSON frame written so far.
func (c *mockConn) messageTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var types []string
	for _, fr := range c.writes {
		if fr.messageType != textMessage {
			continue
		}
		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(fr.data, &msg) == nil {
			types = append(types, msg.Type)
		}
	}
	return types
}

func (c *mockConn) waitForMessage(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, got := range c.messageTypes() {
			if got == want {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never received %q, got %v", want, c.messageTypes())
}

func (c *mockConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, fr := range c.writes {
		if fr.messageType == pingMessage {
			n++
		}
	}
	return n
}

func (c *mockConn) binaryFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	var frames [][]byte
	for _, fr := range c.writes {
		if fr.messageType == binaryMessage {
			frames = append(frames, fr.data)
		}
	}
	return frames
}

func testSessionConfig(providers ...ProviderFactory) SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Providers = providers
	cfg.ConnectTimeout = time.Second
	cfg.Logger = slog.Default()
	return cfg
}

func mockFactory(m *conversation.Mock) ProviderFactory {
	return func(candidate interview.CandidateContext) (conversation.Provider, error) {
		return m, nil
	}
}

// passthroughMock returns a mock whose input rate matches the default
// capture rate, so forwarded audio is byte-identical.
func passthroughMock() *conversation.Mock {
	m := conversation.NewMock()
	m.Caps.InputSampleRate = 48000
	return m
}

func startSession(t *testing.T, conn *mockConn, cfg SessionConfig) *Session {
	t.Helper()
	session := NewSession(conn, cfg)

	done := make(chan struct{})
	go func() {
		session.Run(context.Background())
		close(done)
	}()
	t.Cleanup(func() {
		session.teardown()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("session did not stop")
		}
	})

	conn.waitForMessage(t, msgConnected)
	return session
}

func TestSessionConnectedOnOpen(t *testing.T) {
	conn := newMockConn()
	session := startSession(t, conn, testSessionConfig(mockFactory(conversation.NewMock())))

	if session.State() != StateIdle {
		t.Errorf("State() = %v, want idle", session.State())
	}
}

func TestSessionUnknownMessageType(t *testing.T) {
	conn := newMockConn()
	session := startSession(t, conn, testSessionConfig(mockFactory(conversation.NewMock())))

	conn.sendJSON(t, map[string]any{"type": "make_coffee"})
	conn.waitForMessage(t, msgError)

	// the connection stays open after a protocol violation
	if session.State() == StateClosed {
		t.Error("session closed on unknown message type")
	}
}

func TestSessionStartInterview(t *testing.T) {
	conn := newMockConn()
	mock := passthroughMock()
	session := startSession(t, conn, testSessionConfig(mockFactory(mock)))

	conn.sendJSON(t, map[string]any{
		"type":             msgStartInterview,
		"candidateContext": map[string]any{"name": "Sam", "major": "computer science"},
	})

	conn.waitForMessage(t, msgInterviewStarting)

	waitFor(t, mock.IsConnected, "provider never connected")
	mock.SimulateSessionReady()
	conn.waitForMessage(t, msgInterviewStarted)

	if session.State() != StateActive {
		t.Errorf("State() = %v, want active", session.State())
	}
}

func TestSessionFallbackProvider(t *testing.T) {
	primary := conversation.NewMock()
	primary.ConnectErr = conversation.NewConnectionError("dial failed", errors.New("refused"), true)
	secondary := passthroughMock()

	conn := newMockConn()
	startSession(t, conn, testSessionConfig(mockFactory(primary), mockFactory(secondary)))

	conn.sendJSON(t, map[string]any{"type": msgStartInterview})
	waitFor(t, secondary.IsConnected, "fallback provider never connected")

	secondary.SimulateSessionReady()
	conn.waitForMessage(t, msgInterviewStarted)

	// no error reached the client and no audio touched the failed provider
	for _, mt := range conn.messageTypes() {
		if mt == msgError {
			t.Error("error sent to client despite successful fallback")
		}
	}
	if len(primary.SentChunks()) != 0 {
		t.Errorf("failed provider received %d audio chunks", len(primary.SentChunks()))
	}
}

func TestSessionAllProvidersFail(t *testing.T) {
	p1 := conversation.NewMock()
	p1.ConnectErr = errors.New("down")
	p2 := conversation.NewMock()
	p2.ConnectErr = errors.New("also down")

	conn := newMockConn()
	session := startSession(t, conn, testSessionConfig(mockFactory(p1), mockFactory(p2)))

	conn.sendJSON(t, map[string]any{"type": msgStartInterview})
	conn.waitForMessage(t, msgError)

	waitFor(t, func() bool { return session.State() == StateClosed }, "session never closed")
}

func TestSessionEndToEndAudio(t *testing.T) {
	conn := newMockConn()
	mock := passthroughMock()
	startSession(t, conn, testSessionConfig(mockFactory(mock)))

	conn.sendJSON(t, map[string]any{
		"type":             msgStartInterview,
		"candidateContext": map[string]any{"name": "Sam"},
	})
	conn.waitForMessage(t, msgInterviewStarting)
	waitFor(t, mock.IsConnected, "provider never connected")
	mock.SimulateSessionReady()
	conn.waitForMessage(t, msgInterviewStarted)

	frame := make([]byte, 320)
	conn.sendBinary(frame)

	waitFor(t, func() bool { return len(mock.SentChunks()) == 1 }, "audio never forwarded")

	for _, mt := range conn.messageTypes() {
		if mt == msgError {
			t.Error("error emitted for a well-formed audio frame")
		}
	}
}

func TestSessionPartialFrameReassembly(t *testing.T) {
	conn := newMockConn()
	mock := passthroughMock()
	startSession(t, conn, testSessionConfig(mockFactory(mock)))

	conn.sendJSON(t, map[string]any{"type": msgStartInterview})
	waitFor(t, mock.IsConnected, "provider never connected")
	mock.SimulateSessionReady()
	conn.waitForMessage(t, msgInterviewStarted)

	conn.sendBinary([]byte{0x01, 0x02, 0x03})
	conn.sendBinary([]byte{0x04})

	waitFor(t, func() bool { return totalBytes(mock.SentChunks()) == 4 }, "audio never fully forwarded")

	for _, chunk := range mock.SentChunks() {
		if len(chunk)%2 != 0 {
			t.Errorf("odd-length buffer forwarded: %d bytes", len(chunk))
		}
	}
}

func TestSessionProviderEventsReachClient(t *testing.T) {
	conn := newMockConn()
	mock := passthroughMock()
	startSession(t, conn, testSessionConfig(mockFactory(mock)))

	conn.sendJSON(t, map[string]any{"type": msgStartInterview})
	waitFor(t, mock.IsConnected, "provider never connected")
	mock.SimulateSessionReady()
	conn.waitForMessage(t, msgInterviewStarted)

	mock.SimulateTranscript(conversation.SpeakerAssistant, "Tell me about yourself.")
	conn.waitForMessage(t, msgAITranscription)

	mock.Emit(conversation.Event{Type: conversation.EventSpeechStarted, Speaker: conversation.SpeakerUser})
	conn.waitForMessage(t, msgStudentSpeechStarted)

	// user speech during an assistant response triggers cancellation
	waitFor(t, func() bool { return mock.Cancels() == 1 }, "response never cancelled")

	mock.SimulateTranscript(conversation.SpeakerUser, "I am a student.")
	conn.waitForMessage(t, msgStudentTranscription)

	mock.SimulateAudio([]byte{0x01, 0x02})
	waitFor(t, func() bool { return len(conn.binaryFrames()) == 1 }, "assistant audio never forwarded")
}

func TestSessionEndInterview(t *testing.T) {
	conn := newMockConn()
	mock := passthroughMock()
	session := startSession(t, conn, testSessionConfig(mockFactory(mock)))

	conn.sendJSON(t, map[string]any{"type": msgStartInterview})
	waitFor(t, mock.IsConnected, "provider never connected")
	mock.SimulateSessionReady()
	conn.waitForMessage(t, msgInterviewStarted)

	conn.sendJSON(t, map[string]any{"type": msgEndInterview})
	conn.waitForMessage(t, msgInterviewEnded)

	waitFor(t, func() bool { return session.State() == StateClosed }, "session never closed")
	waitFor(t, func() bool { return !mock.IsConnected() }, "provider never closed")
}

func TestSessionPongTracksLiveness(t *testing.T) {
	conn := newMockConn()
	cfg := testSessionConfig(mockFactory(conversation.NewMock()))
	cfg.PingInterval = 20 * time.Millisecond

	session := startSession(t, conn, cfg)

	waitFor(t, func() bool { return conn.pingCount() > 0 }, "ping never sent")

	before := session.lastPong.Load()
	time.Sleep(2 * time.Millisecond)
	conn.pong()

	waitFor(t, func() bool { return session.lastPong.Load() > before }, "pong never recorded")
}

func TestSessionTranscriptHandoff(t *testing.T) {
	conn := newMockConn()
	mock := passthroughMock()

	var (
		mu             sync.Mutex
		conversationID string
		candidate      interview.CandidateContext
		text           string
	)

	cfg := testSessionConfig(mockFactory(mock))
	cfg.OnTranscript = func(id string, c interview.CandidateContext, tr string) {
		mu.Lock()
		defer mu.Unlock()
		conversationID = id
		candidate = c
		text = tr
	}

	session := startSession(t, conn, cfg)

	conn.sendJSON(t, map[string]any{
		"type":             msgStartInterview,
		"candidateContext": map[string]any{"name": "Sam", "major": "finance"},
	})
	waitFor(t, mock.IsConnected, "provider never connected")
	mock.SimulateSessionReady()
	conn.waitForMessage(t, msgInterviewStarted)

	mock.SimulateTranscript(conversation.SpeakerAssistant, "Walk me through your resume.")
	conn.waitForMessage(t, msgAITranscription)
	mock.SimulateTranscript(conversation.SpeakerUser, "I interned at a bank last summer.")
	conn.waitForMessage(t, msgStudentTranscription)

	conn.sendJSON(t, map[string]any{"type": msgEndInterview})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return text != ""
	}, "transcript never handed off")

	mu.Lock()
	defer mu.Unlock()
	if conversationID != session.ID() {
		t.Errorf("conversation id = %q, want session id %q", conversationID, session.ID())
	}
	if candidate.Name != "Sam" {
		t.Errorf("candidate name = %q, want Sam", candidate.Name)
	}
	want := "AI: Walk me through your resume.\nUser: I interned at a bank last summer."
	if text != want {
		t.Errorf("transcript = %q, want %q", text, want)
	}
}

func TestSessionBackpressureDropsAudio(t *testing.T) {
	conn := newMockConn()
	mock := passthroughMock()

	cfg := testSessionConfig(mockFactory(mock))
	cfg.BufferDrop = 8 // tiny ceiling so one chunk saturates it

	session := startSession(t, conn, cfg)

	conn.sendJSON(t, map[string]any{"type": msgStartInterview})
	waitFor(t, mock.IsConnected, "provider never connected")
	mock.SimulateSessionReady()
	conn.waitForMessage(t, msgInterviewStarted)

	// a chunk over the ceiling is shed instead of queued
	session.enqueueAudio(make([]byte, 64))

	time.Sleep(50 * time.Millisecond)
	if frames := conn.binaryFrames(); len(frames) != 0 {
		t.Errorf("oversized audio was forwarded, %d frames", len(frames))
	}
}

func totalBytes(chunks [][]byte) int {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	return n
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
