package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxprep/go-voxprep/pkg/evaluation"
)

func TestMemoryInterviewRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	iv := &evaluation.Interview{
		ID:             "iv-1",
		ConversationID: "conv-1",
		Transcript:     "Interviewer: Tell me about yourself.\nCandidate: I study computer science.",
	}
	if err := m.SaveInterview(ctx, iv); err != nil {
		t.Fatalf("SaveInterview() error = %v", err)
	}

	got, err := m.GetInterview(ctx, "iv-1")
	if err != nil {
		t.Fatalf("GetInterview() error = %v", err)
	}
	if got.Transcript != iv.Transcript {
		t.Errorf("Transcript = %q, want %q", got.Transcript, iv.Transcript)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set on save")
	}

	byConv, err := m.FindInterviewByConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("FindInterviewByConversation() error = %v", err)
	}
	if byConv.ID != "iv-1" {
		t.Errorf("ID = %q, want iv-1", byConv.ID)
	}
}

func TestMemoryNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.GetInterview(ctx, "missing"); !errors.Is(err, evaluation.ErrNotFound) {
		t.Errorf("GetInterview() error = %v, want ErrNotFound", err)
	}
	if _, err := m.GetEvaluation(ctx, "missing"); !errors.Is(err, evaluation.ErrNotFound) {
		t.Errorf("GetEvaluation() error = %v, want ErrNotFound", err)
	}
	if _, err := m.FindInterviewByConversation(ctx, "missing"); !errors.Is(err, evaluation.ErrNotFound) {
		t.Errorf("FindInterviewByConversation() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryEvaluationUpsert(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ev := &evaluation.Evaluation{
		InterviewID: "iv-1",
		Status:      evaluation.StatusPending,
		CreatedAt:   time.Now().Add(-time.Hour),
		UpdatedAt:   time.Now(),
	}
	if err := m.SaveEvaluation(ctx, ev); err != nil {
		t.Fatalf("SaveEvaluation() error = %v", err)
	}

	// second save without CreatedAt keeps the original
	update := &evaluation.Evaluation{
		InterviewID: "iv-1",
		Status:      evaluation.StatusComplete,
		UpdatedAt:   time.Now(),
	}
	if err := m.SaveEvaluation(ctx, update); err != nil {
		t.Fatalf("SaveEvaluation() error = %v", err)
	}

	got, err := m.GetEvaluation(ctx, "iv-1")
	if err != nil {
		t.Fatalf("GetEvaluation() error = %v", err)
	}
	if got.Status != evaluation.StatusComplete {
		t.Errorf("Status = %q, want complete", got.Status)
	}
	if !got.CreatedAt.Equal(ev.CreatedAt) {
		t.Errorf("CreatedAt changed on upsert")
	}
}

func TestMemoryFindStalePending(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	old := &evaluation.Evaluation{
		InterviewID: "old",
		Status:      evaluation.StatusPending,
		CreatedAt:   time.Now().Add(-10 * time.Minute),
		UpdatedAt:   time.Now().Add(-10 * time.Minute),
	}
	fresh := &evaluation.Evaluation{
		InterviewID: "fresh",
		Status:      evaluation.StatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	done := &evaluation.Evaluation{
		InterviewID: "done",
		Status:      evaluation.StatusComplete,
		CreatedAt:   time.Now().Add(-10 * time.Minute),
		UpdatedAt:   time.Now().Add(-10 * time.Minute),
	}
	for _, ev := range []*evaluation.Evaluation{old, fresh, done} {
		if err := m.SaveEvaluation(ctx, ev); err != nil {
			t.Fatalf("SaveEvaluation() error = %v", err)
		}
	}

	stale, err := m.FindStalePending(ctx, time.Now().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("FindStalePending() error = %v", err)
	}
	if len(stale) != 1 || stale[0].InterviewID != "old" {
		t.Errorf("FindStalePending() = %+v, want only 'old'", stale)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_ = m.SaveInterview(ctx, &evaluation.Interview{ID: "iv-1", Transcript: "original"})

	got, _ := m.GetInterview(ctx, "iv-1")
	got.Transcript = "mutated"

	again, _ := m.GetInterview(ctx, "iv-1")
	if again.Transcript != "original" {
		t.Error("store returned a shared pointer, mutation leaked")
	}
}
