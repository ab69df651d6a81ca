// Package store persists interviews and evaluations. Memory is the
// default backend; Mongo is used when a connection URI is configured.
package store

import (
	"context"

	"github.com/voxprep/go-voxprep/pkg/evaluation"
)

// Store is the full persistence surface used by the relay and the
// evaluation queue.
type Store interface {
	evaluation.Store

	// SaveInterview upserts an interview record keyed by id.
	SaveInterview(ctx context.Context, iv *evaluation.Interview) error

	// FindInterviewByConversation loads the interview for a provider
	// conversation id. Returns evaluation.ErrNotFound when absent.
	FindInterviewByConversation(ctx context.Context, conversationID string) (*evaluation.Interview, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}
