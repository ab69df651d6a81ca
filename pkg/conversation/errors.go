package conversation

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conversation package.
var (
	// ErrMissingAPIKey indicates the API key was not provided.
	ErrMissingAPIKey = errors.New("conversation: API key is required")

	// ErrMissingAgentID indicates the agent ID was not provided (ElevenLabs).
	ErrMissingAgentID = errors.New("conversation: agent ID is required")

	// ErrNotConnected indicates the provider is not connected.
	ErrNotConnected = errors.New("conversation: not connected")

	// ErrAlreadyConnected indicates the provider is already connected.
	ErrAlreadyConnected = errors.New("conversation: already connected")

	// ErrConnectionClosed indicates the connection was closed unexpectedly.
	ErrConnectionClosed = errors.New("conversation: connection closed")

	// ErrInvalidAudio indicates the audio format is not supported.
	ErrInvalidAudio = errors.New("conversation: invalid audio format")
)

// APIError represents an error from the provider API.
type APIError struct {
	// StatusCode is the HTTP status code (if applicable).
	StatusCode int

	// Code is the error code from the API.
	Code string

	// Message is the human-readable error message.
	Message string

	// Retryable indicates if the request can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("conversation: API error [%s]: %s", e.Code, e.Message)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("conversation: API error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("conversation: API error: %s", e.Message)
}

// IsRetryable returns true if the error can be retried.
func (e *APIError) IsRetryable() bool {
	return e.Retryable
}

// NewAPIError creates a new APIError.
func NewAPIError(statusCode int, code, message string) *APIError {
	retryable := statusCode == 429 || statusCode >= 500
	return &APIError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Retryable:  retryable,
	}
}

// ConnectionError represents a WebSocket connection error.
type ConnectionError struct {
	// Reason describes why the connection failed.
	Reason string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if reconnection should be attempted.
	Retryable bool
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("conversation: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("conversation: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if reconnection should be attempted.
func (e *ConnectionError) IsRetryable() bool {
	return e.Retryable
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(reason string, cause error, retryable bool) *ConnectionError {
	return &ConnectionError{
		Reason:    reason,
		Cause:     cause,
		Retryable: retryable,
	}
}

// Error checking helpers.

// IsConnectionError returns true if the error is a connection failure.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsRateLimited returns true if the error is due to rate limiting.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.Code == "rate_limit_exceeded"
	}
	return false
}

// IsQuotaExceeded returns true if the error is due to quota exhaustion.
func IsQuotaExceeded(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == "quota_exceeded" || apiErr.Code == "insufficient_quota"
	}
	return false
}

// IsAuthError returns true if the error is an invalid or rejected key.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.Code == "invalid_api_key"
	}
	return false
}
