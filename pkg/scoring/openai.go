package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/voxprep/go-voxprep/internal/httpc"
)

const providerOpenAI = "openai"

// OpenAI scores transcripts with the OpenAI chat completions API.
type OpenAI struct {
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI scorer.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://api.openai.com/v1"
	cfg.Model = "gpt-4o-mini"
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerOpenAI, ErrNoAPIKey)
	}

	return &OpenAI{
		config: cfg,
		http:   httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "scoring.openai"),
	}, nil
}

// Name identifies the scoring provider.
func (o *OpenAI) Name() string { return providerOpenAI }

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Score evaluates the transcript with one chat completion.
func (o *OpenAI) Score(ctx context.Context, req *Request) (*Result, error) {
	if len(req.Questions) == 0 {
		return nil, WrapError(providerOpenAI, ErrNoQuestions)
	}

	start := time.Now()

	payload := map[string]any{
		"model": o.config.Model,
		"messages": []map[string]any{
			{"role": "user", "content": buildPrompt(req)},
		},
		"temperature":     o.config.Temperature,
		"max_tokens":      o.config.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}

	url := o.config.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	resp, err := o.http.Do(httpReq)
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(msg),
			Provider:   providerOpenAI,
		}
	}

	var result openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("decode response: %w", err))
	}
	if result.Error.Message != "" {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    result.Error.Message,
			Provider:   providerOpenAI,
		}
	}
	if len(result.Choices) == 0 {
		return nil, WrapError(providerOpenAI, fmt.Errorf("no response content"))
	}

	parsed, err := parseResult(result.Choices[0].Message.Content)
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}

	o.logger.Info("transcript scored",
		"questions", len(parsed.Questions),
		"overall_score", parsed.OverallScore,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return parsed, nil
}

// Ensure OpenAI implements Scorer.
var _ Scorer = (*OpenAI)(nil)
