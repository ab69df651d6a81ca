// Package relay bridges student WebSocket connections to realtime
// conversation providers and hands finished transcripts to the
// evaluation queue.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/voxprep/go-voxprep/pkg/evaluation"
	"github.com/voxprep/go-voxprep/pkg/interview"
	"github.com/voxprep/go-voxprep/pkg/store"
)

// ServerConfig holds relay server settings.
type ServerConfig struct {
	Port    string
	Session SessionConfig
	Logger  *slog.Logger
}

// Server is the public HTTP and WebSocket surface of the relay.
type Server struct {
	app    *fiber.App
	config ServerConfig
	store  store.Store
	queue  *evaluation.Queue
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates the relay server and registers its routes.
func NewServer(cfg ServerConfig, st store.Store, queue *evaluation.Queue) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Session.Logger == nil {
		cfg.Session.Logger = cfg.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: cfg,
		store:  st,
		queue:  queue,
		logger: cfg.Logger.With("component", "relay.server"),
		ctx:    ctx,
		cancel: cancel,
	}

	app := fiber.New(fiber.Config{
		AppName:               "voxprep",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)
	app.Post("/webhook/transcript", s.handleTranscriptWebhook)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/voice", websocket.New(s.handleVoiceWS))

	// sessions that assembled their own transcript feed the same
	// evaluation path as the webhook
	if s.config.Session.OnTranscript == nil {
		s.config.Session.OnTranscript = s.ingestSessionTranscript
	}

	s.app = app
	return s
}

// Start serves until Shutdown is called. It blocks.
func (s *Server) Start() error {
	s.logger.Info("relay listening", "port", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops accepting connections and closes live sessions.
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleVoiceWS runs one relay session per connection.
func (s *Server) handleVoiceWS(c *websocket.Conn) {
	session := NewSession(c, s.config.Session)
	session.Run(s.ctx)
}

// ingestSessionTranscript persists a session-assembled transcript and
// queues its evaluation. Runs on the session goroutine during teardown,
// so it carries its own deadline.
func (s *Server) ingestSessionTranscript(conversationID string, candidate interview.CandidateContext, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	iv, err := s.store.FindInterviewByConversation(ctx, conversationID)
	if err != nil {
		iv = &evaluation.Interview{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
		}
	}
	iv.Transcript = text
	iv.Candidate = candidate

	if err := s.store.SaveInterview(ctx, iv); err != nil {
		s.logger.Error("failed to save session transcript",
			"conversation_id", conversationID,
			"error", err,
		)
		return
	}

	if err := s.queue.Enqueue(ctx, iv.ID, conversationID); err != nil {
		s.logger.Error("failed to enqueue session evaluation",
			"interview_id", iv.ID,
			"error", err,
		)
		return
	}

	s.logger.Info("session transcript queued",
		"interview_id", iv.ID,
		"conversation_id", conversationID,
	)
}

// webhookPayload accepts both the flat transcript form and the
// ElevenLabs post-call shape.
type webhookPayload struct {
	ConversationID string `json:"conversation_id"`
	Transcript     string `json:"transcript"`

	Type string `json:"type"`
	Data *struct {
		ConversationID string           `json:"conversation_id"`
		Transcript     []transcriptTurn `json:"transcript"`
	} `json:"data"`
}

type transcriptTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// handleTranscriptWebhook stores a finished transcript and enqueues
// its evaluation.
func (s *Server) handleTranscriptWebhook(c *fiber.Ctx) error {
	var payload webhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid payload",
		})
	}

	conversationID := payload.ConversationID
	text := payload.Transcript
	if payload.Data != nil {
		conversationID = payload.Data.ConversationID
		text = renderTurns(payload.Data.Transcript)
	}

	if conversationID == "" || strings.TrimSpace(text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "conversation_id and transcript required",
		})
	}

	ctx := c.Context()

	iv, err := s.store.FindInterviewByConversation(ctx, conversationID)
	if err != nil {
		iv = &evaluation.Interview{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
		}
	}
	iv.Transcript = text

	if err := s.store.SaveInterview(ctx, iv); err != nil {
		s.logger.Error("failed to save interview", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "storage failure",
		})
	}

	if err := s.queue.Enqueue(ctx, iv.ID, conversationID); err != nil {
		s.logger.Error("failed to enqueue evaluation",
			"interview_id", iv.ID,
			"error", err,
		)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "evaluation queue unavailable",
		})
	}

	s.logger.Info("transcript received",
		"interview_id", iv.ID,
		"conversation_id", conversationID,
	)

	return c.JSON(fiber.Map{
		"interview_id": iv.ID,
		"status":       "queued",
	})
}

// renderTurns flattens provider transcript turns into labeled lines the
// parser recognizes.
func renderTurns(turns []transcriptTurn) string {
	var b strings.Builder
	for _, t := range turns {
		if strings.TrimSpace(t.Message) == "" {
			continue
		}
		label := "User"
		if t.Role == "agent" || t.Role == "assistant" || t.Role == "ai" {
			label = "AI"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, t.Message)
	}
	return b.String()
}
