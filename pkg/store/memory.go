package store

import (
	"context"
	"sync"
	"time"

	"github.com/voxprep/go-voxprep/pkg/evaluation"
)

// Memory is an in-process Store for tests and single-node deployments.
type Memory struct {
	mu          sync.RWMutex
	interviews  map[string]*evaluation.Interview
	evaluations map[string]*evaluation.Evaluation
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		interviews:  make(map[string]*evaluation.Interview),
		evaluations: make(map[string]*evaluation.Evaluation),
	}
}

// SaveInterview upserts an interview record.
func (m *Memory) SaveInterview(ctx context.Context, iv *evaluation.Interview) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *iv
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	m.interviews[cp.ID] = &cp
	return nil
}

// GetInterview loads an interview by id.
func (m *Memory) GetInterview(ctx context.Context, id string) (*evaluation.Interview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	iv, ok := m.interviews[id]
	if !ok {
		return nil, evaluation.ErrNotFound
	}
	cp := *iv
	return &cp, nil
}

// FindInterviewByConversation loads the interview for a conversation id.
func (m *Memory) FindInterviewByConversation(ctx context.Context, conversationID string) (*evaluation.Interview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, iv := range m.interviews {
		if iv.ConversationID == conversationID {
			cp := *iv
			return &cp, nil
		}
	}
	return nil, evaluation.ErrNotFound
}

// GetEvaluation loads the evaluation for an interview.
func (m *Memory) GetEvaluation(ctx context.Context, interviewID string) (*evaluation.Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, ok := m.evaluations[interviewID]
	if !ok {
		return nil, evaluation.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

// SaveEvaluation upserts an evaluation keyed by interview id.
func (m *Memory) SaveEvaluation(ctx context.Context, ev *evaluation.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *ev
	if existing, ok := m.evaluations[cp.InterviewID]; ok && cp.CreatedAt.IsZero() {
		cp.CreatedAt = existing.CreatedAt
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	m.evaluations[cp.InterviewID] = &cp
	return nil
}

// FindStalePending returns pending evaluations not updated since cutoff.
func (m *Memory) FindStalePending(ctx context.Context, cutoff time.Time) ([]*evaluation.Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stale []*evaluation.Evaluation
	for _, ev := range m.evaluations {
		if ev.Status == evaluation.StatusPending && ev.UpdatedAt.Before(cutoff) {
			cp := *ev
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}

// Close is a no-op for the in-memory backend.
func (m *Memory) Close(ctx context.Context) error { return nil }

// Ensure Memory implements Store.
var _ Store = (*Memory)(nil)
