// Package evaluation runs interview evaluations in the background.
//
// A Queue drains evaluation jobs with a bounded worker pool, scoring
// each interview's transcript and persisting the result. Failed jobs
// retry with exponential backoff up to a fixed cap; a periodic health
// sweep re-drives evaluations left pending by a crash.
package evaluation

import (
	"context"
	"errors"
	"time"

	"github.com/voxprep/go-voxprep/pkg/interview"
	"github.com/voxprep/go-voxprep/pkg/scoring"
)

// Status is the lifecycle state of an evaluation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true once the evaluation will not change again
// on its own.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Interview is the durable record an evaluation is computed from.
type Interview struct {
	ID             string                     `json:"id"`
	ConversationID string                     `json:"conversation_id"`
	Transcript     string                     `json:"transcript"`
	Candidate      interview.CandidateContext `json:"candidate"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// Evaluation is the durable evaluation record, one non-terminal per
// interview at a time.
type Evaluation struct {
	InterviewID    string          `json:"interview_id"`
	ConversationID string          `json:"conversation_id"`
	Status         Status          `json:"status"`
	OverallScore   *int            `json:"overall_score,omitempty"`
	Payload        *scoring.Result `json:"payload,omitempty"`
	Error          string          `json:"error,omitempty"`
	RetryCount     int             `json:"retry_count"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Store persists interviews and evaluations.
type Store interface {
	// GetInterview loads an interview. Returns ErrNotFound when absent.
	GetInterview(ctx context.Context, id string) (*Interview, error)

	// GetEvaluation loads the evaluation for an interview. Returns
	// ErrNotFound when absent.
	GetEvaluation(ctx context.Context, interviewID string) (*Evaluation, error)

	// SaveEvaluation upserts an evaluation keyed by interview id.
	SaveEvaluation(ctx context.Context, ev *Evaluation) error

	// FindStalePending returns pending evaluations not updated since
	// the cutoff.
	FindStalePending(ctx context.Context, cutoff time.Time) ([]*Evaluation, error)
}

// Sentinel errors for evaluation preconditions.
var (
	// ErrNotFound is returned by stores for missing records.
	ErrNotFound = errors.New("evaluation: not found")

	// ErrEmptyTranscript means the interview has no transcript text.
	ErrEmptyTranscript = errors.New("evaluation: empty transcript")

	// ErrUnparseableTranscript means parsing yielded no pairs.
	ErrUnparseableTranscript = errors.New("evaluation: no question pairs in transcript")

	// ErrQueueFull means the job buffer is at capacity.
	ErrQueueFull = errors.New("evaluation: queue full")

	// ErrQueueClosed means the queue has been stopped.
	ErrQueueClosed = errors.New("evaluation: queue closed")
)
