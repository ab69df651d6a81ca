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

	"github.com/voxprep/go-voxprep/pkg/interview"
)

const (
	providerOpenAI    = "openai"
	openAIRealtimeURL = "wss://api.openai.com/v1/realtime"
	openAIModel       = "gpt-4o-realtime-preview-2024-12-17"
)

// OpenAI implements Provider for the OpenAI Realtime API.
type OpenAI struct {
	config *Config
	logger *slog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	state      ConnectionState
	responseID string // in-flight response, empty when idle
	cancelCtx  context.CancelFunc
	firstResp  *time.Timer

	events  chan Event
	dropped atomic.Int64
}

// NewOpenAI creates a new OpenAI Realtime conversation provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Model = openAIModel
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Voice == "" {
		cfg.Voice = VoiceShimmer
	}

	return &OpenAI{
		config: cfg,
		logger: cfg.Logger.With("component", "conversation.openai"),
		state:  StateDisconnected,
		events: make(chan Event, cfg.EventBuffer),
	}, nil
}

// Name identifies the provider.
func (o *OpenAI) Name() string { return providerOpenAI }

// Connect establishes the WebSocket connection to OpenAI.
func (o *OpenAI) Connect(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateDisconnected {
		o.mu.Unlock()
		return ErrAlreadyConnected
	}
	o.state = StateConnecting
	o.mu.Unlock()

	base := o.config.BaseURL
	if base == "" {
		base = openAIRealtimeURL
	}
	url := fmt.Sprintf("%s?model=%s", base, o.config.Model)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+o.config.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{
		HandshakeTimeout: o.config.Timeout,
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, o.config.Timeout)
	defer cancelDial()

	o.logger.Info("connecting to OpenAI Realtime API",
		"model", o.config.Model,
	)

	conn, resp, err := dialer.DialContext(dialCtx, url, headers)
	if err != nil {
		o.mu.Lock()
		o.state = StateDisconnected
		o.mu.Unlock()
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

	o.mu.Lock()
	o.conn = conn
	o.state = StateConnected
	o.cancelCtx = cancel
	o.mu.Unlock()

	go o.handleMessages(msgCtx)

	o.logger.Info("connected to OpenAI Realtime API")

	return nil
}

// Close gracefully closes the connection.
func (o *OpenAI) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateDisconnected {
		return nil
	}

	if o.firstResp != nil {
		o.firstResp.Stop()
		o.firstResp = nil
	}
	if o.cancelCtx != nil {
		o.cancelCtx()
	}

	if o.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = o.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		o.conn.Close()
	}

	o.state = StateDisconnected
	o.logger.Info("disconnected from OpenAI Realtime API")

	return nil
}

// IsConnected returns true if connected.
func (o *OpenAI) IsConnected() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state == StateConnected
}

// Events returns the normalized event stream.
func (o *OpenAI) Events() <-chan Event {
	return o.events
}

// SendAudio sends PCM16 audio to the conversation.
func (o *OpenAI) SendAudio(audio []byte) error {
	if len(audio)%2 != 0 {
		return ErrInvalidAudio
	}

	msg := map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(audio),
	}
	return o.writeJSON(msg)
}

// CancelResponse cancels the in-flight response, referencing its id.
// It is a no-op when no response is in flight.
func (o *OpenAI) CancelResponse() error {
	o.mu.RLock()
	responseID := o.responseID
	o.mu.RUnlock()

	if responseID == "" {
		return nil
	}

	msg := map[string]any{
		"type":        "response.cancel",
		"response_id": responseID,
	}
	return o.writeJSON(msg)
}

// Capabilities returns provider capabilities.
func (o *OpenAI) Capabilities() Capabilities {
	return Capabilities{
		SupportsResponseCancel: true,
		SupportsCustomVoice:    false, // fixed voice list only
		InputSampleRate:        o.config.InputSampleRate,
		OutputSampleRate:       o.config.OutputSampleRate,
	}
}

// configureSession sends the session.update configuring the interviewer.
func (o *OpenAI) configureSession() error {
	td := o.config.TurnDetection
	if td == nil {
		td = DefaultConfig().TurnDetection
	}

	msg := map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"modalities":          []string{"text", "audio"},
			"instructions":        interview.SystemPrompt(o.config.Candidate),
			"voice":               o.config.Voice,
			"input_audio_format":  "pcm16",
			"output_audio_format": "pcm16",
			"input_audio_transcription": map[string]any{
				"model": "whisper-1",
			},
			"turn_detection": map[string]any{
				"type":                td.Type,
				"threshold":           td.Threshold,
				"prefix_padding_ms":   td.PrefixPaddingMs,
				"silence_duration_ms": td.SilenceDurationMs,
			},
			"temperature":                o.config.Temperature,
			"max_response_output_tokens": o.config.MaxResponseTokens,
		},
	}
	return o.writeJSON(msg)
}

// requestFirstResponse asks the agent to speak first, after a short delay
// so the session update has settled server-side.
func (o *OpenAI) requestFirstResponse() {
	timer := time.AfterFunc(o.config.FirstResponseDelay, func() {
		if err := o.writeJSON(map[string]any{"type": "response.create"}); err != nil {
			o.logger.Warn("first response request failed", "error", err)
		}
	})

	o.mu.Lock()
	o.firstResp = timer
	o.mu.Unlock()
}

// writeJSON sends a JSON message over the connection.
func (o *OpenAI) writeJSON(v any) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateConnected || o.conn == nil {
		return ErrNotConnected
	}
	if err := o.conn.WriteJSON(v); err != nil {
		return NewConnectionError("write failed", err, true)
	}
	return nil
}

// openAIEvent is the closed union of the Realtime wire messages we
// recognize, keyed by the type field.
type openAIEvent struct {
	Type       string          `json:"type"`
	Delta      string          `json:"delta,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Response   *openAIResponse `json:"response,omitempty"`
	Error      *openAIError    `json:"error,omitempty"`
}

type openAIResponse struct {
	ID string `json:"id"`
}

type openAIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleMessages processes incoming WebSocket messages until the
// connection ends, then closes the event stream.
func (o *OpenAI) handleMessages(ctx context.Context) {
	normalClose := false

	defer func() {
		o.mu.Lock()
		if o.state == StateConnected {
			o.state = StateDisconnected
		}
		o.mu.Unlock()

		if normalClose {
			o.publish(Event{Type: EventConversationEnded})
		}
		close(o.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		o.mu.RLock()
		conn := o.conn
		o.mu.RUnlock()

		if conn == nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(o.config.ReadTimeout))

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				o.logger.Info("connection closed normally")
				normalClose = true
				return
			}
			if ctx.Err() == nil {
				o.logger.Error("read error", "error", err)
				o.publish(Event{
					Type:    EventProviderError,
					Code:    "connection_closed",
					Message: err.Error(),
				})
			}
			return
		}

		var msg openAIEvent
		if err := json.Unmarshal(data, &msg); err != nil {
			o.logger.Warn("failed to parse message", "error", err)
			continue
		}

		o.handleEvent(msg)
	}
}

// handleEvent translates one wire message into normalized events.
func (o *OpenAI) handleEvent(msg openAIEvent) {
	switch msg.Type {
	case "session.created":
		o.logger.Info("session created")
		if err := o.configureSession(); err != nil {
			o.logger.Error("session configuration failed", "error", err)
		}

	case "session.updated":
		o.logger.Debug("session updated")
		o.requestFirstResponse()
		o.publish(Event{Type: EventSessionReady})

	case "response.created":
		if msg.Response != nil {
			o.mu.Lock()
			o.responseID = msg.Response.ID
			o.mu.Unlock()
		}

	case "response.done", "response.cancelled":
		o.mu.Lock()
		o.responseID = ""
		o.mu.Unlock()

	case "input_audio_buffer.speech_started":
		o.publish(Event{Type: EventSpeechStarted, Speaker: SpeakerUser})

	case "input_audio_buffer.speech_stopped":
		o.publish(Event{Type: EventSpeechStopped, Speaker: SpeakerUser})

	case "conversation.item.input_audio_transcription.delta":
		if msg.Delta != "" {
			o.publish(Event{Type: EventPartialTranscript, Speaker: SpeakerUser, Text: msg.Delta})
		}

	case "conversation.item.input_audio_transcription.completed":
		if msg.Transcript != "" {
			o.publish(Event{Type: EventFinalTranscript, Speaker: SpeakerUser, Text: msg.Transcript})
		}

	case "response.audio.delta":
		if msg.Delta != "" {
			audio, err := base64.StdEncoding.DecodeString(msg.Delta)
			if err != nil {
				o.logger.Warn("failed to decode audio delta", "error", err)
				return
			}
			o.publish(Event{Type: EventAudioChunk, Speaker: SpeakerAssistant, Audio: audio})
		}

	case "response.audio_transcript.delta":
		if msg.Delta != "" {
			o.publish(Event{Type: EventPartialTranscript, Speaker: SpeakerAssistant, Text: msg.Delta})
		}

	case "response.audio_transcript.done":
		if msg.Transcript != "" {
			o.publish(Event{Type: EventFinalTranscript, Speaker: SpeakerAssistant, Text: msg.Transcript})
		}

	case "error":
		if msg.Error != nil {
			o.publish(Event{
				Type:    EventProviderError,
				Code:    msg.Error.Code,
				Message: msg.Error.Message,
			})
		}

	default:
		o.logger.Debug("unrecognized provider event", "type", msg.Type)
	}
}

// publish delivers an event without blocking the read loop. Consumers
// that fall behind lose events rather than stalling the socket.
func (o *OpenAI) publish(ev Event) {
	select {
	case o.events <- ev:
	default:
		o.dropped.Add(1)
		o.logger.Warn("event buffer full, dropping event", "type", ev.Type.String())
	}
}

// Ensure OpenAI implements Provider.
var _ Provider = (*OpenAI)(nil)
