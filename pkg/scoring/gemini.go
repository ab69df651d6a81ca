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

const providerGemini = "gemini"

// Gemini scores transcripts with Google's Gemini API.
type Gemini struct {
	apiKey string
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewGemini creates a Gemini scorer.
func NewGemini(opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	cfg.Model = "gemini-2.0-flash"
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerGemini, ErrNoAPIKey)
	}

	return &Gemini{
		apiKey: cfg.APIKey,
		config: cfg,
		http:   httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "scoring.gemini"),
	}, nil
}

// Name identifies the scoring provider.
func (g *Gemini) Name() string { return providerGemini }

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Score evaluates the transcript with one Gemini call.
func (g *Gemini) Score(ctx context.Context, req *Request) (*Result, error) {
	if len(req.Questions) == 0 {
		return nil, WrapError(providerGemini, ErrNoQuestions)
	}

	start := time.Now()

	payload := map[string]any{
		"contents": []map[string]any{
			{
				"role": "user",
				"parts": []map[string]any{
					{"text": buildPrompt(req)},
				},
			},
		},
		"generationConfig": map[string]any{
			"temperature":     g.config.Temperature,
			"maxOutputTokens": g.config.MaxTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.config.BaseURL, g.config.Model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(msg),
			Provider:   providerGemini,
		}
	}

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("decode response: %w", err))
	}
	if result.Error.Message != "" {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    result.Error.Message,
			Provider:   providerGemini,
		}
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, WrapError(providerGemini, fmt.Errorf("no response content"))
	}

	parsed, err := parseResult(result.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	g.logger.Info("transcript scored",
		"questions", len(parsed.Questions),
		"overall_score", parsed.OverallScore,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return parsed, nil
}

// parseResult extracts and validates the evaluation JSON from a model
// reply.
func parseResult(text string) (*Result, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ensure Gemini implements Scorer.
var _ Scorer = (*Gemini)(nil)
