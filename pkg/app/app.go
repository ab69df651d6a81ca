// Package app wires the voxprep service together: storage, the
// evaluation queue, the scoring chain, and the relay server.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/voxprep/go-voxprep/internal/log"
	"github.com/voxprep/go-voxprep/pkg/conversation"
	"github.com/voxprep/go-voxprep/pkg/evaluation"
	"github.com/voxprep/go-voxprep/pkg/interview"
	"github.com/voxprep/go-voxprep/pkg/relay"
	"github.com/voxprep/go-voxprep/pkg/scoring"
	"github.com/voxprep/go-voxprep/pkg/store"
)

// App is the assembled service.
type App struct {
	config Config

	store  store.Store
	queue  *evaluation.Queue
	server *relay.Server
}

// New validates the configuration and creates the app.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{config: cfg}, nil
}

// Init builds the component graph. Call before Run.
func (a *App) Init() error {
	level := "info"
	if a.config.Debug {
		level = "debug"
	}
	log.Init(level)
	logger := log.L()

	// storage
	if a.config.MongoURI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		st, err := store.NewMongo(ctx, a.config.MongoURI, a.config.MongoDB)
		if err != nil {
			return fmt.Errorf("app: storage: %w", err)
		}
		a.store = st
		logger.Info("using mongodb storage", "database", a.config.MongoDB)
	} else {
		a.store = store.NewMemory()
		logger.Warn("using in-memory storage, evaluations will not survive restarts")
	}

	// scoring chain, gemini first
	var scorers []scoring.Scorer
	if a.config.GeminiKey != "" {
		g, err := scoring.NewGemini(
			scoring.WithAPIKey(a.config.GeminiKey),
			scoring.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("app: gemini scorer: %w", err)
		}
		scorers = append(scorers, g)
	}
	if a.config.OpenAIKey != "" {
		o, err := scoring.NewOpenAI(
			scoring.WithAPIKey(a.config.OpenAIKey),
			scoring.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("app: openai scorer: %w", err)
		}
		scorers = append(scorers, o)
	}
	scorer, err := scoring.NewChain(scorers...)
	if err != nil {
		return fmt.Errorf("app: scoring chain: %w", err)
	}

	// evaluation queue
	queueCfg := a.config.Queue
	queueCfg.Logger = logger
	a.queue = evaluation.NewQueue(a.store, scorer, queueCfg)

	// relay server
	sessionCfg := a.config.Session
	sessionCfg.Logger = logger
	sessionCfg.Providers = a.providerFactories()

	a.server = relay.NewServer(relay.ServerConfig{
		Port:    a.config.Port,
		Session: sessionCfg,
		Logger:  logger,
	}, a.store, a.queue)

	return nil
}

// providerFactories returns conversation providers in preference
// order: OpenAI Realtime first, the ElevenLabs agent as fallback.
func (a *App) providerFactories() []relay.ProviderFactory {
	var factories []relay.ProviderFactory

	if a.config.OpenAIKey != "" {
		key := a.config.OpenAIKey
		factories = append(factories, func(candidate interview.CandidateContext) (conversation.Provider, error) {
			return conversation.NewOpenAI(
				conversation.WithAPIKey(key),
				conversation.WithCandidate(candidate),
				conversation.WithLogger(log.L()),
			)
		})
	}

	if a.config.ElevenLabsAgentID != "" {
		key := a.config.ElevenLabsKey
		agentID := a.config.ElevenLabsAgentID
		factories = append(factories, func(candidate interview.CandidateContext) (conversation.Provider, error) {
			return conversation.NewElevenLabs(
				conversation.WithAPIKey(key),
				conversation.WithAgentID(agentID),
				conversation.WithCandidate(candidate),
				conversation.WithLogger(log.L()),
			)
		})
	}

	return factories
}

// Run starts the queue and serves until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.queue.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the server, the queue, and storage, in that order.
func (a *App) Shutdown() {
	logger := log.L()

	if a.server != nil {
		if err := a.server.Shutdown(); err != nil {
			logger.Warn("server shutdown failed", "error", err)
		}
	}
	if a.queue != nil {
		a.queue.Stop()
	}
	if a.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.store.Close(ctx); err != nil {
			logger.Warn("storage close failed", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
