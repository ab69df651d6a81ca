package scoring

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoAPIKey is returned when an API key is required but missing.
	ErrNoAPIKey = errors.New("scoring: API key required")

	// ErrNoQuestions is returned when the request carries no pairs.
	ErrNoQuestions = errors.New("scoring: no question pairs to score")

	// ErrNoQuestionScores is returned when the model omits per-question scores.
	ErrNoQuestionScores = errors.New("scoring: no question scores in response")

	// ErrMalformedResponse is returned when no JSON object can be
	// extracted from the model reply.
	ErrMalformedResponse = errors.New("scoring: malformed model response")

	// ErrNoScorers is returned when a chain has no scorers.
	ErrNoScorers = errors.New("scoring: at least one scorer required")
)

// APIError represents an error response from a scoring API.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("scoring [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("scoring [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ChainError aggregates errors from all scorers in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "scoring chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("scoring chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("scoring chain: all %d scorers failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns the last error in the chain.
func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}
