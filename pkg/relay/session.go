package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voxprep/go-voxprep/pkg/audio"
	"github.com/voxprep/go-voxprep/pkg/conversation"
	"github.com/voxprep/go-voxprep/pkg/interview"
)

// WebSocket frame opcodes, per RFC 6455.
const (
	textMessage   = 1
	binaryMessage = 2
	pingMessage   = 9
)

// State is the lifecycle state of a relay session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClientConn is the client-side WebSocket surface a session drives.
type ClientConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// ProviderFactory builds a conversation provider for a candidate.
type ProviderFactory func(candidate interview.CandidateContext) (conversation.Provider, error)

// SessionConfig holds per-session tuning.
type SessionConfig struct {
	// Providers is tried in order; the first successful connect wins.
	Providers []ProviderFactory

	// ConnectTimeout bounds each provider connection attempt.
	ConnectTimeout time.Duration

	// PingInterval is the client liveness ping cadence.
	PingInterval time.Duration

	// BufferWarn is the outbound byte level that triggers logging.
	BufferWarn int

	// BufferDrop is the outbound byte level past which provider audio
	// is dropped instead of queued.
	BufferDrop int

	// OnTranscript, when set, receives the assembled conversation
	// transcript once a session that produced final transcripts tears
	// down. The session id doubles as the conversation id.
	OnTranscript func(conversationID string, candidate interview.CandidateContext, transcript string)

	Logger *slog.Logger
}

// DefaultSessionConfig returns production session settings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		BufferWarn:     256 * 1024,
		BufferDrop:     1024 * 1024,
	}
}

type outFrame struct {
	messageType int
	data        []byte
}

type clientFrame struct {
	messageType int
	data        []byte
	err         error
}

// Session relays one client connection to one conversation provider.
//
// A session moves Idle -> Connecting -> Active -> Closed. Closed is
// terminal; closing either leg closes the other.
type Session struct {
	id     string
	conn   ClientConn
	config SessionConfig
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	provider  conversation.Provider
	candidate interview.CandidateContext
	turns     []string

	// client audio reassembly and source-rate estimation
	frames     audio.FrameBuffer
	audioStart time.Time
	samplesIn  int
	sourceRate int

	outbound chan outFrame
	buffered atomic.Int64
	lastPong atomic.Int64

	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

// NewSession creates a session over an accepted client connection.
func NewSession(conn ClientConn, cfg SessionConfig) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.BufferWarn <= 0 {
		cfg.BufferWarn = 256 * 1024
	}
	if cfg.BufferDrop <= 0 {
		cfg.BufferDrop = 1024 * 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	id := uuid.NewString()
	return &Session{
		id:         id,
		conn:       conn,
		config:     cfg,
		logger:     cfg.Logger.With("component", "relay.session", "session_id", id),
		state:      StateIdle,
		outbound:   make(chan outFrame, 256),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run drives the session until either leg closes. It blocks.
func (s *Session) Run(ctx context.Context) {
	s.logger.Info("session started")

	s.lastPong.Store(time.Now().UnixNano())
	s.conn.SetPongHandler(func(string) error {
		s.lastPong.Store(time.Now().UnixNano())
		return nil
	})

	go s.writeLoop()

	reads := make(chan clientFrame)
	go s.readLoop(reads)

	s.sendJSON(eventMessage{Type: msgConnected})

	ping := time.NewTicker(s.config.PingInterval)
	defer ping.Stop()

	var providerEvents <-chan conversation.Event

	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return

		case <-s.done:
			return

		case fr := <-reads:
			if fr.err != nil {
				s.logger.Info("client disconnected", "error", fr.err)
				s.teardown()
				return
			}
			if events := s.handleClientFrame(ctx, fr); events != nil {
				providerEvents = events
			}

		case ev, ok := <-providerEvents:
			if !ok {
				s.logger.Info("provider event stream closed")
				s.teardown()
				return
			}
			s.handleProviderEvent(ev)

		case <-ping.C:
			// soft liveness only; a stale pong is logged, never a
			// forced kill
			if age := time.Since(time.Unix(0, s.lastPong.Load())); age > 2*s.config.PingInterval {
				s.logger.Warn("no pong from client", "age", age)
			}
			s.enqueue(pingMessage, nil)
		}
	}
}

// readLoop feeds client frames into the session loop.
func (s *Session) readLoop(reads chan<- clientFrame) {
	for {
		mt, data, err := s.conn.ReadMessage()
		select {
		case reads <- clientFrame{messageType: mt, data: data, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// writeLoop serializes all client writes. On shutdown it flushes
// whatever is queued before the socket closes.
func (s *Session) writeLoop() {
	defer close(s.writerDone)

	for {
		select {
		case <-s.done:
			for {
				select {
				case fr := <-s.outbound:
					if err := s.conn.WriteMessage(fr.messageType, fr.data); err != nil {
						return
					}
				default:
					return
				}
			}
		case fr := <-s.outbound:
			err := s.conn.WriteMessage(fr.messageType, fr.data)
			if fr.messageType == binaryMessage {
				s.buffered.Add(-int64(len(fr.data)))
			}
			if err != nil {
				// a dead socket also fails the read loop, which tears
				// the session down from the main loop
				s.logger.Warn("client write failed", "error", err)
				return
			}
		}
	}
}

// handleClientFrame dispatches one client frame. It returns a non-nil
// event channel when a provider connection was just established.
func (s *Session) handleClientFrame(ctx context.Context, fr clientFrame) <-chan conversation.Event {
	if fr.messageType == binaryMessage {
		s.handleBinaryAudio(fr.data)
		return nil
	}

	var msg clientMessage
	if err := json.Unmarshal(fr.data, &msg); err != nil {
		s.sendError("invalid_json", "Message was not valid JSON.")
		return nil
	}

	switch msg.Type {
	case msgStartInterview:
		return s.handleStart(ctx, msg)

	case msgEndInterview:
		s.logger.Info("interview ended by client")
		s.sendJSON(eventMessage{Type: msgInterviewEnded})
		s.teardown()
		return nil

	case msgAudioChunk:
		s.handleAudioChunk(msg)
		return nil

	default:
		s.sendError("unknown_message_type", fmt.Sprintf("Unknown message type %q.", msg.Type))
		return nil
	}
}

// handleStart connects a provider and acknowledges the client.
func (s *Session) handleStart(ctx context.Context, msg clientMessage) <-chan conversation.Event {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		s.sendError("interview_already_started", "An interview is already in progress on this connection.")
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	// ack before any provider round-trip so the UI can react
	s.sendJSON(eventMessage{Type: msgInterviewStarting})

	var candidate interview.CandidateContext
	if msg.CandidateContext != nil {
		candidate = *msg.CandidateContext
	}

	s.mu.Lock()
	s.candidate = candidate
	s.mu.Unlock()

	provider := s.connectProvider(ctx, candidate)
	if provider == nil {
		s.sendError("connection_failed", "Could not reach the interview service. Please try again.")
		s.teardown()
		return nil
	}

	s.mu.Lock()
	s.provider = provider
	s.mu.Unlock()

	return provider.Events()
}

// connectProvider tries each factory in order until one connects.
func (s *Session) connectProvider(ctx context.Context, candidate interview.CandidateContext) conversation.Provider {
	for i, factory := range s.config.Providers {
		provider, err := factory(candidate)
		if err != nil {
			s.logger.Warn("provider construction failed",
				"provider_index", i,
				"error", err,
			)
			continue
		}

		connectCtx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
		err = provider.Connect(connectCtx)
		cancel()
		if err != nil {
			s.logger.Warn("provider connect failed, trying next",
				"provider", provider.Name(),
				"provider_index", i,
				"error", err,
			)
			continue
		}

		if i > 0 {
			s.logger.Info("fallback provider connected", "provider", provider.Name())
		} else {
			s.logger.Info("provider connected", "provider", provider.Name())
		}
		return provider
	}
	return nil
}

// handleBinaryAudio forwards a raw client audio frame. Malformed audio
// is dropped and logged, never fatal to the session.
func (s *Session) handleBinaryAudio(data []byte) {
	s.mu.Lock()
	provider := s.provider
	active := s.state == StateActive
	s.mu.Unlock()

	if !active || provider == nil {
		return
	}

	framed := s.frames.Push(data)
	if len(framed) == 0 {
		return
	}

	s.forwardAudio(provider, framed, s.estimateSourceRate(len(framed)/2), 1)
}

// handleAudioChunk forwards base64 audio with declared format hints.
func (s *Session) handleAudioChunk(msg clientMessage) {
	s.mu.Lock()
	provider := s.provider
	active := s.state == StateActive
	s.mu.Unlock()

	if !active || provider == nil {
		return
	}

	data, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		s.logger.Warn("audio chunk decode failed", "error", err)
		return
	}

	rate := msg.SampleRate
	if rate == 0 {
		rate = audio.DefaultSampleRate
	}
	channels := msg.Channels
	if channels == 0 {
		channels = 1
	}

	s.forwardAudio(provider, data, rate, channels)
}

func (s *Session) forwardAudio(provider conversation.Provider, data []byte, sourceRate, channels int) {
	out, err := audio.Resample(data, sourceRate, provider.Capabilities().InputSampleRate, channels)
	if err != nil {
		s.logger.Warn("dropping malformed audio", "error", err)
		return
	}
	if err := provider.SendAudio(out); err != nil {
		s.logger.Warn("provider audio send failed", "error", err)
	}
}

// estimateSourceRate infers the client capture rate from throughput.
// Until a second of audio timing has accumulated, the most common
// capture rate is assumed.
func (s *Session) estimateSourceRate(newSamples int) int {
	if s.sourceRate != 0 {
		return s.sourceRate
	}

	now := time.Now()
	if s.audioStart.IsZero() {
		s.audioStart = now
	}
	s.samplesIn += newSamples

	elapsed := now.Sub(s.audioStart)
	if elapsed < time.Second {
		return audio.DefaultSampleRate
	}

	s.sourceRate = audio.EstimateRate(s.samplesIn, elapsed)
	s.logger.Info("estimated client sample rate", "rate", s.sourceRate)
	return s.sourceRate
}

// handleProviderEvent translates a provider event to client messages.
func (s *Session) handleProviderEvent(ev conversation.Event) {
	switch ev.Type {
	case conversation.EventSessionReady:
		s.mu.Lock()
		ready := s.state == StateConnecting
		if ready {
			s.state = StateActive
		}
		s.mu.Unlock()
		if ready {
			s.logger.Info("interview active")
			s.sendJSON(eventMessage{Type: msgInterviewStarted})
		}

	case conversation.EventAudioChunk:
		s.enqueueAudio(ev.Audio)

	case conversation.EventPartialTranscript, conversation.EventFinalTranscript:
		msgType := msgAITranscription
		if ev.Speaker == conversation.SpeakerUser {
			msgType = msgStudentTranscription
		}
		final := ev.Type == conversation.EventFinalTranscript
		if final && ev.Text != "" {
			s.recordTurn(ev.Speaker, ev.Text)
		}
		s.sendJSON(transcriptionMessage{
			Type:    msgType,
			Text:    ev.Text,
			IsFinal: final,
		})

	case conversation.EventSpeechStarted:
		if ev.Speaker != conversation.SpeakerUser {
			return
		}
		s.sendJSON(eventMessage{Type: msgStudentSpeechStarted})

		s.mu.Lock()
		provider := s.provider
		s.mu.Unlock()
		if provider != nil && provider.Capabilities().SupportsResponseCancel {
			if err := provider.CancelResponse(); err != nil {
				s.logger.Warn("response cancel failed", "error", err)
			}
		}

	case conversation.EventSpeechStopped:
		if ev.Speaker == conversation.SpeakerUser {
			s.sendJSON(eventMessage{Type: msgStudentSpeechEnded})
		}

	case conversation.EventConversationEnded:
		s.logger.Info("conversation ended by provider")
		s.sendJSON(eventMessage{Type: msgInterviewEnded})
		s.teardown()

	case conversation.EventProviderError:
		s.logger.Error("provider error",
			"code", ev.Code,
			"message", ev.Message,
		)
		s.sendError(ev.Code, userSafeMessage(ev.Code))
	}
}

// enqueueAudio forwards provider audio to the client with backpressure.
// A slow client sheds audio rather than growing the queue without
// bound.
func (s *Session) enqueueAudio(data []byte) {
	buffered := s.buffered.Load()
	if buffered+int64(len(data)) > int64(s.config.BufferDrop) {
		s.logger.Warn("client too far behind, dropping audio",
			"buffered_bytes", buffered,
		)
		return
	}
	if buffered > int64(s.config.BufferWarn) {
		s.logger.Debug("client audio buffering", "buffered_bytes", buffered)
	}
	s.enqueue(binaryMessage, data)
}

func (s *Session) enqueue(messageType int, data []byte) {
	fr := outFrame{messageType: messageType, data: data}
	select {
	case s.outbound <- fr:
		if messageType == binaryMessage {
			s.buffered.Add(int64(len(data)))
		}
	case <-s.done:
	default:
		s.logger.Warn("outbound queue full, dropping frame")
	}
}

func (s *Session) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("marshal failed", "error", err)
		return
	}
	s.enqueue(textMessage, data)
}

func (s *Session) sendError(code, message string) {
	s.sendJSON(errorMessage{Type: msgError, Message: message, Code: code})
}

// recordTurn accumulates a final transcript line for post-session
// evaluation, in the same speaker-labeled form the webhook delivers.
func (s *Session) recordTurn(speaker conversation.Speaker, text string) {
	label := "AI"
	if speaker == conversation.SpeakerUser {
		label = "User"
	}
	s.mu.Lock()
	s.turns = append(s.turns, label+": "+text)
	s.mu.Unlock()
}

// teardown closes both legs exactly once. No forwarding happens after
// it begins.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		provider := s.provider
		candidate := s.candidate
		turns := s.turns
		s.mu.Unlock()

		close(s.done)

		if provider != nil {
			if err := provider.Close(); err != nil {
				s.logger.Warn("provider close failed", "error", err)
			}
		}

		// let the writer flush queued frames before the socket closes
		select {
		case <-s.writerDone:
		case <-time.After(time.Second):
		}

		if err := s.conn.Close(); err == nil {
			s.logger.Info("session closed")
		}

		if s.config.OnTranscript != nil && len(turns) > 0 {
			s.config.OnTranscript(s.id, candidate, strings.Join(turns, "\n"))
		}
	})
}
