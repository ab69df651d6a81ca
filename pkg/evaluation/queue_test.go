package evaluation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxprep/go-voxprep/pkg/evaluation"
	"github.com/voxprep/go-voxprep/pkg/scoring"
	"github.com/voxprep/go-voxprep/pkg/store"
)

const testTranscript = "Interviewer: Tell me about your background in detail.\n" +
	"Candidate: I am a senior studying computer science at a state school.\n" +
	"Interviewer: What project are you most proud of building?\n" +
	"Candidate: A websocket relay that streams audio between two services.\n"

func testConfig() evaluation.Config {
	cfg := evaluation.DefaultConfig()
	cfg.BackoffBase = 10 * time.Millisecond
	cfg.SweepInterval = 0 // no sweep during unit tests
	cfg.ScoreTimeout = time.Second
	return cfg
}

func seedInterview(t *testing.T, s store.Store, id string) {
	t.Helper()
	err := s.SaveInterview(context.Background(), &evaluation.Interview{
		ID:             id,
		ConversationID: "conv-" + id,
		Transcript:     testTranscript,
	})
	if err != nil {
		t.Fatalf("SaveInterview() error = %v", err)
	}
}

func waitForStatus(t *testing.T, s store.Store, interviewID string, want evaluation.Status) *evaluation.Evaluation {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev, err := s.GetEvaluation(context.Background(), interviewID)
		if err == nil && ev.Status == want {
			return ev
		}
		time.Sleep(5 * time.Millisecond)
	}
	ev, _ := s.GetEvaluation(context.Background(), interviewID)
	t.Fatalf("evaluation never reached %q, last state: %+v", want, ev)
	return nil
}

func TestQueueScoresInterview(t *testing.T) {
	s := store.NewMemory()
	seedInterview(t, s, "iv-1")

	q := evaluation.NewQueue(s, scoring.NewMock(), testConfig())
	q.Start()
	defer q.Stop()

	if err := q.Enqueue(context.Background(), "iv-1", "conv-iv-1"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	ev := waitForStatus(t, s, "iv-1", evaluation.StatusComplete)
	if ev.OverallScore == nil || *ev.OverallScore != 75 {
		t.Errorf("OverallScore = %v, want 75", ev.OverallScore)
	}
	if ev.Payload == nil || len(ev.Payload.Questions) != 2 {
		t.Errorf("Payload = %+v, want 2 scored questions", ev.Payload)
	}
}

func TestQueueEnqueueIdempotent(t *testing.T) {
	s := store.NewMemory()
	seedInterview(t, s, "iv-1")

	var mu sync.Mutex
	calls := 0
	release := make(chan struct{})
	mock := scoring.NewMock()
	mock.ScoreFunc = func(ctx context.Context, req *scoring.Request) (*scoring.Result, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return scoring.NewMock().Score(ctx, req)
	}

	q := evaluation.NewQueue(s, mock, testConfig())
	q.Start()
	defer q.Stop()

	if err := q.Enqueue(context.Background(), "iv-1", "conv-iv-1"); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}
	if err := q.Enqueue(context.Background(), "iv-1", "conv-iv-1"); err != nil {
		t.Fatalf("second Enqueue() error = %v", err)
	}
	close(release)

	waitForStatus(t, s, "iv-1", evaluation.StatusComplete)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("scorer called %d times, want 1", calls)
	}
}

func TestQueueEnqueueAfterComplete(t *testing.T) {
	s := store.NewMemory()
	seedInterview(t, s, "iv-1")

	mock := scoring.NewMock()
	q := evaluation.NewQueue(s, mock, testConfig())
	q.Start()
	defer q.Stop()

	if err := q.Enqueue(context.Background(), "iv-1", "conv-iv-1"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	waitForStatus(t, s, "iv-1", evaluation.StatusComplete)

	if err := q.Enqueue(context.Background(), "iv-1", "conv-iv-1"); err != nil {
		t.Fatalf("Enqueue() after complete error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if got := mock.Calls(); got != 1 {
		t.Errorf("scorer called %d times after re-enqueue, want 1", got)
	}
}

func TestQueueRetryBackoff(t *testing.T) {
	s := store.NewMemory()
	seedInterview(t, s, "iv-1")

	var mu sync.Mutex
	var attempts []time.Time
	failing := scoring.NewMock()
	failing.ScoreFunc = func(ctx context.Context, req *scoring.Request) (*scoring.Result, error) {
		mu.Lock()
		attempts = append(attempts, time.Now())
		mu.Unlock()
		return nil, errors.New("model unavailable")
	}

	cfg := testConfig()
	q := evaluation.NewQueue(s, failing, cfg)
	q.Start()
	defer q.Stop()

	if err := q.Enqueue(context.Background(), "iv-1", "conv-iv-1"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// wait for the terminal attempt
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(attempts)
		mu.Unlock()
		if n >= cfg.MaxRetries {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(5 * cfg.BackoffBase) // no extra attempt sneaks in

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != cfg.MaxRetries {
		t.Fatalf("attempts = %d, want %d", len(attempts), cfg.MaxRetries)
	}

	// delays strictly increase: base, then base*2
	first := attempts[1].Sub(attempts[0])
	second := attempts[2].Sub(attempts[1])
	if second <= first {
		t.Errorf("backoff not increasing: %v then %v", first, second)
	}

	ev, err := s.GetEvaluation(context.Background(), "iv-1")
	if err != nil {
		t.Fatalf("GetEvaluation() error = %v", err)
	}
	if ev.Status != evaluation.StatusFailed {
		t.Errorf("Status = %q, want failed", ev.Status)
	}
	if ev.Error == "" {
		t.Error("Error is empty, want failure message")
	}
}

func TestQueueMissingInterviewFails(t *testing.T) {
	s := store.NewMemory()

	q := evaluation.NewQueue(s, scoring.NewMock(), testConfig())
	q.Start()
	defer q.Stop()

	if err := q.Enqueue(context.Background(), "ghost", "conv-ghost"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	ev := waitForStatus(t, s, "ghost", evaluation.StatusFailed)
	if ev.Error == "" {
		t.Error("Error is empty, want not found message")
	}
}

func TestQueueEmptyTranscriptFails(t *testing.T) {
	s := store.NewMemory()
	_ = s.SaveInterview(context.Background(), &evaluation.Interview{
		ID:             "iv-empty",
		ConversationID: "conv-empty",
	})

	q := evaluation.NewQueue(s, scoring.NewMock(), testConfig())
	q.Start()
	defer q.Stop()

	if err := q.Enqueue(context.Background(), "iv-empty", "conv-empty"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	waitForStatus(t, s, "iv-empty", evaluation.StatusFailed)
}

func TestQueueHealthSweep(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seedInterview(t, s, "iv-stalled")
	_ = s.SaveInterview(ctx, &evaluation.Interview{
		ID:             "iv-bare",
		ConversationID: "conv-bare",
	})

	stale := time.Now().Add(-10 * time.Minute)
	for _, id := range []string{"iv-stalled", "iv-bare"} {
		err := s.SaveEvaluation(ctx, &evaluation.Evaluation{
			InterviewID: id,
			Status:      evaluation.StatusPending,
			CreatedAt:   stale,
			UpdatedAt:   stale,
		})
		if err != nil {
			t.Fatalf("SaveEvaluation() error = %v", err)
		}
	}

	cfg := testConfig()
	cfg.SweepDelay = 10 * time.Millisecond
	cfg.SweepInterval = 20 * time.Millisecond

	q := evaluation.NewQueue(s, scoring.NewMock(), cfg)
	q.Start()
	defer q.Stop()

	// stalled with a transcript is re-driven to completion
	waitForStatus(t, s, "iv-stalled", evaluation.StatusComplete)

	// stalled without a transcript is marked failed
	ev := waitForStatus(t, s, "iv-bare", evaluation.StatusFailed)
	if ev.Error == "" {
		t.Error("Error is empty, want stalled message")
	}
}

func TestQueueEnqueueAfterStop(t *testing.T) {
	s := store.NewMemory()
	q := evaluation.NewQueue(s, scoring.NewMock(), testConfig())
	q.Start()
	q.Stop()

	err := q.Enqueue(context.Background(), "iv-1", "conv-1")
	if !errors.Is(err, evaluation.ErrQueueClosed) {
		t.Errorf("Enqueue() after Stop = %v, want ErrQueueClosed", err)
	}
}
