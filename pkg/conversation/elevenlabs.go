package conversation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxprep/go-voxprep/pkg/audio"
	"github.com/voxprep/go-voxprep/pkg/interview"
)

const (
	providerElevenLabs = "elevenlabs"
	elevenLabsWSURL    = "wss://api.elevenlabs.io/v1/convai/conversation"
)

// ElevenLabs implements Provider for the ElevenLabs Conversational AI API.
type ElevenLabs struct {
	config *Config
	logger *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	state     ConnectionState
	cancelCtx context.CancelFunc

	// assistant audio arrives in arbitrarily sized chunks, sometimes
	// split mid-sample; frames reassembles whole PCM16 frames
	frames audio.FrameBuffer

	events  chan Event
	dropped atomic.Int64
}

// NewElevenLabs creates a new ElevenLabs conversation provider.
// An agent ID is required; the API key is optional for public agents.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.AgentID == "" {
		return nil, ErrMissingAgentID
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &ElevenLabs{
		config: cfg,
		logger: cfg.Logger.With("component", "conversation.elevenlabs"),
		state:  StateDisconnected,
		events: make(chan Event, cfg.EventBuffer),
	}, nil
}

// Name identifies the provider.
func (e *ElevenLabs) Name() string { return providerElevenLabs }

// Connect establishes the WebSocket connection to ElevenLabs.
func (e *ElevenLabs) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateDisconnected {
		e.mu.Unlock()
		return ErrAlreadyConnected
	}
	e.state = StateConnecting
	e.mu.Unlock()

	base := e.config.BaseURL
	if base == "" {
		base = elevenLabsWSURL
	}
	url := fmt.Sprintf("%s?agent_id=%s&output_format=pcm_%d",
		base, e.config.AgentID, e.config.OutputSampleRate)

	headers := http.Header{}
	if e.config.APIKey != "" {
		headers.Set("xi-api-key", e.config.APIKey)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: e.config.Timeout,
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, e.config.Timeout)
	defer cancelDial()

	e.logger.Info("connecting to ElevenLabs ConvAI",
		"agent_id", e.config.AgentID,
	)

	conn, resp, err := dialer.DialContext(dialCtx, url, headers)
	if err != nil {
		e.mu.Lock()
		e.state = StateDisconnected
		e.mu.Unlock()
		if resp != nil {
			return NewConnectionError(
				fmt.Sprintf("dial failed with status %d", resp.StatusCode),
				err,
				resp.StatusCode >= 500,
			)
		}
		return NewConnectionError("dial failed", err, true)
	}

	msgCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.conn = conn
	e.state = StateConnected
	e.cancelCtx = cancel
	e.frames.Reset()
	e.mu.Unlock()

	if err := e.sendInitiation(); err != nil {
		e.Close()
		return err
	}

	go e.handleMessages(msgCtx)

	e.logger.Info("connected to ElevenLabs ConvAI")

	return nil
}

// sendInitiation sends the conversation initiation message with the
// candidate's dynamic variables so the agent prompt is personalized.
// The PCM output format is requested here in addition to the URL
// parameter; some agent configurations ignore the URL parameter and
// fall back to a compressed format.
func (e *ElevenLabs) sendInitiation() error {
	vars := interview.InitVariables(e.config.Candidate)
	dyn := make(map[string]any, len(vars))
	for k, v := range vars {
		dyn[k] = v
	}

	msg := map[string]any{
		"type":              "conversation_initiation_client_data",
		"dynamic_variables": dyn,
		"conversation_config_override": map[string]any{
			"agent": map[string]any{
				"prompt": map[string]any{
					"prompt": interview.SystemPrompt(e.config.Candidate),
				},
			},
			"tts": map[string]any{
				"output_format": fmt.Sprintf("pcm_%d", e.config.OutputSampleRate),
			},
		},
	}
	return e.writeJSON(msg)
}

// Close gracefully closes the connection.
func (e *ElevenLabs) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateDisconnected {
		return nil
	}

	if e.cancelCtx != nil {
		e.cancelCtx()
	}

	if e.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = e.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		e.conn.Close()
	}

	e.state = StateDisconnected
	e.logger.Info("disconnected from ElevenLabs ConvAI")

	return nil
}

// IsConnected returns true if connected.
func (e *ElevenLabs) IsConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == StateConnected
}

// Events returns the normalized event stream.
func (e *ElevenLabs) Events() <-chan Event {
	return e.events
}

// SendAudio sends PCM16 audio to the conversation.
func (e *ElevenLabs) SendAudio(audioData []byte) error {
	if len(audioData)%2 != 0 {
		return ErrInvalidAudio
	}

	msg := map[string]any{
		"user_audio_chunk": base64.StdEncoding.EncodeToString(audioData),
	}
	return e.writeJSON(msg)
}

// CancelResponse is not supported by the ConvAI protocol; interruption
// happens server-side when the user speaks.
func (e *ElevenLabs) CancelResponse() error {
	return nil
}

// Capabilities returns provider capabilities.
func (e *ElevenLabs) Capabilities() Capabilities {
	return Capabilities{
		SupportsResponseCancel: false,
		SupportsCustomVoice:    true,
		InputSampleRate:        e.config.InputSampleRate,
		OutputSampleRate:       e.config.OutputSampleRate,
	}
}

// writeJSON sends a JSON message over the connection.
func (e *ElevenLabs) writeJSON(v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateConnected || e.conn == nil {
		return ErrNotConnected
	}
	if err := e.conn.WriteJSON(v); err != nil {
		return NewConnectionError("write failed", err, true)
	}
	return nil
}

// elevenLabsEvent is the closed union of ConvAI wire messages we
// recognize, keyed by the type field.
type elevenLabsEvent struct {
	Type string `json:"type"`

	AudioEvent *struct {
		AudioBase64 string `json:"audio_base_64"`
	} `json:"audio_event,omitempty"`

	UserTranscriptionEvent *struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`

	AgentResponseEvent *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`

	PingEvent *struct {
		EventID int `json:"event_id"`
	} `json:"ping_event,omitempty"`

	ErrorEvent *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error_event,omitempty"`
}

// handleMessages processes incoming messages until the connection ends,
// then closes the event stream.
func (e *ElevenLabs) handleMessages(ctx context.Context) {
	normalClose := false

	defer func() {
		e.mu.Lock()
		if e.state == StateConnected {
			e.state = StateDisconnected
		}
		e.mu.Unlock()

		if normalClose {
			e.publish(Event{Type: EventConversationEnded})
		}
		close(e.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e.mu.RLock()
		conn := e.conn
		e.mu.RUnlock()

		if conn == nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(e.config.ReadTimeout))

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				e.logger.Info("conversation ended normally")
				normalClose = true
				return
			}
			if ctx.Err() == nil {
				e.logger.Error("read error", "error", err)
				e.publish(Event{
					Type:    EventProviderError,
					Code:    "connection_closed",
					Message: err.Error(),
				})
			}
			return
		}

		// some deployments stream agent audio as raw binary frames
		if msgType == websocket.BinaryMessage {
			e.publishAudio(data)
			continue
		}

		var msg elevenLabsEvent
		if err := json.Unmarshal(data, &msg); err != nil {
			e.logger.Warn("failed to parse message", "error", err)
			continue
		}

		e.handleEvent(msg)
	}
}

// handleEvent translates one wire message into normalized events.
func (e *ElevenLabs) handleEvent(msg elevenLabsEvent) {
	switch msg.Type {
	case "conversation_initiation_metadata":
		e.logger.Info("conversation initiated")
		e.publish(Event{Type: EventSessionReady})

	case "audio":
		if msg.AudioEvent != nil && msg.AudioEvent.AudioBase64 != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.AudioEvent.AudioBase64)
			if err != nil {
				e.logger.Warn("failed to decode audio", "error", err)
				return
			}
			e.publishAudio(chunk)
		}

	case "user_transcript":
		if msg.UserTranscriptionEvent != nil && msg.UserTranscriptionEvent.UserTranscript != "" {
			// ConvAI has no explicit VAD events; the arrival of a user
			// transcript marks the end of the user's turn
			e.publish(Event{Type: EventSpeechStopped, Speaker: SpeakerUser})
			e.publish(Event{
				Type:    EventFinalTranscript,
				Speaker: SpeakerUser,
				Text:    msg.UserTranscriptionEvent.UserTranscript,
			})
		}

	case "agent_response":
		if msg.AgentResponseEvent != nil && msg.AgentResponseEvent.AgentResponse != "" {
			e.publish(Event{
				Type:    EventFinalTranscript,
				Speaker: SpeakerAssistant,
				Text:    msg.AgentResponseEvent.AgentResponse,
			})
		}

	case "interruption":
		e.publish(Event{Type: EventSpeechStarted, Speaker: SpeakerUser})

	case "ping":
		if msg.PingEvent != nil {
			pong := map[string]any{
				"type":     "pong",
				"event_id": msg.PingEvent.EventID,
			}
			if err := e.writeJSON(pong); err != nil {
				e.logger.Warn("pong failed", "error", err)
			}
		}

	case "error":
		if msg.ErrorEvent != nil {
			e.publish(Event{
				Type:    EventProviderError,
				Code:    msg.ErrorEvent.Code,
				Message: msg.ErrorEvent.Message,
			})
		}

	default:
		e.logger.Debug("unrecognized provider event", "type", msg.Type)
	}
}

// publishAudio frames a raw chunk into whole PCM16 samples and emits it.
// Only the read goroutine touches the frame buffer.
func (e *ElevenLabs) publishAudio(chunk []byte) {
	framed := e.frames.Push(chunk)
	if len(framed) == 0 {
		return
	}
	e.publish(Event{Type: EventAudioChunk, Speaker: SpeakerAssistant, Audio: framed})
}

// publish delivers an event without blocking the read loop.
func (e *ElevenLabs) publish(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.dropped.Add(1)
		e.logger.Warn("event buffer full, dropping event", "type", ev.Type.String())
	}
}

// Ensure ElevenLabs implements Provider.
var _ Provider = (*ElevenLabs)(nil)
