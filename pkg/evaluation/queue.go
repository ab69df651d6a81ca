package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxprep/go-voxprep/pkg/interview"
	"github.com/voxprep/go-voxprep/pkg/scoring"
	"github.com/voxprep/go-voxprep/pkg/transcript"
)

// Config holds queue tuning parameters.
type Config struct {
	// Workers is the number of concurrent jobs.
	Workers int

	// QueueSize bounds the pending job buffer.
	QueueSize int

	// MaxRetries is the total attempt cap per enqueue.
	MaxRetries int

	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration

	// Staleness is how old a pending evaluation must be before a
	// duplicate enqueue re-drives it.
	Staleness time.Duration

	// SweepInterval is how often the health sweep runs.
	SweepInterval time.Duration

	// SweepDelay postpones the first sweep after start.
	SweepDelay time.Duration

	// ScoreTimeout bounds each scoring call.
	ScoreTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns production queue settings.
func DefaultConfig() Config {
	return Config{
		Workers:       2,
		QueueSize:     64,
		MaxRetries:    3,
		BackoffBase:   2 * time.Second,
		Staleness:     5 * time.Minute,
		SweepInterval: 2 * time.Minute,
		SweepDelay:    time.Minute,
		ScoreTimeout:  60 * time.Second,
	}
}

type job struct {
	interviewID    string
	conversationID string
	retryCount     int
}

// Queue drains evaluation jobs with a bounded worker pool.
type Queue struct {
	config Config
	store  Store
	scorer scoring.Scorer
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool

	jobs chan job
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewQueue creates an evaluation queue. Store and scorer are required.
func NewQueue(store Store, scorer scoring.Scorer, cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Queue{
		config: cfg,
		store:  store,
		scorer: scorer,
		logger: cfg.Logger.With("component", "evaluation.queue"),
		jobs:   make(chan job, cfg.QueueSize),
		quit:   make(chan struct{}),
	}
}

// Start launches the workers and the health sweep.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	if q.config.SweepInterval > 0 {
		q.wg.Add(1)
		go q.healthSweep()
	}

	q.logger.Info("evaluation queue started",
		"workers", q.config.Workers,
		"max_retries", q.config.MaxRetries,
	)
}

// Stop shuts down the workers and waits for in-flight jobs.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.quit)
	q.wg.Wait()
	q.logger.Info("evaluation queue stopped")
}

// Enqueue submits an interview for evaluation. It is idempotent: a
// completed evaluation, or a live one younger than the staleness
// threshold, makes this a no-op.
func (q *Queue) Enqueue(ctx context.Context, interviewID, conversationID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	existing, err := q.store.GetEvaluation(ctx, interviewID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("evaluation: load existing: %w", err)
	}

	if existing != nil {
		switch existing.Status {
		case StatusComplete:
			return nil
		case StatusPending, StatusProcessing:
			if time.Since(existing.UpdatedAt) < q.config.Staleness {
				q.logger.Debug("duplicate enqueue suppressed", "interview_id", interviewID)
				return nil
			}
			q.logger.Warn("re-driving stalled evaluation",
				"interview_id", interviewID,
				"age", time.Since(existing.UpdatedAt),
			)
		}
	}

	now := time.Now()
	ev := &Evaluation{
		InterviewID:    interviewID,
		ConversationID: conversationID,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if existing != nil {
		ev.CreatedAt = existing.CreatedAt
	}
	if err := q.store.SaveEvaluation(ctx, ev); err != nil {
		return fmt.Errorf("evaluation: save pending: %w", err)
	}

	return q.push(job{interviewID: interviewID, conversationID: conversationID})
}

func (q *Queue) push(j job) error {
	select {
	case q.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	logger := q.logger.With("worker", id)

	for {
		select {
		case <-q.quit:
			return
		case j := <-q.jobs:
			q.process(j, logger)
		}
	}
}

// process runs one job attempt and schedules a retry on failure.
func (q *Queue) process(j job, logger *slog.Logger) {
	ctx := context.Background()
	attempt := j.retryCount + 1

	logger.Info("evaluating interview",
		"interview_id", j.interviewID,
		"attempt", attempt,
	)

	result, err := q.evaluate(ctx, j)
	if err == nil {
		logger.Info("evaluation complete",
			"interview_id", j.interviewID,
			"overall_score", result.OverallScore,
		)
		return
	}

	q.markFailed(ctx, j, err)

	if attempt >= q.config.MaxRetries {
		logger.Error("evaluation failed permanently",
			"interview_id", j.interviewID,
			"attempts", attempt,
			"error", err,
		)
		return
	}

	delay := q.backoff(j.retryCount)
	logger.Warn("evaluation failed, scheduling retry",
		"interview_id", j.interviewID,
		"attempt", attempt,
		"retry_in", delay,
		"error", err,
	)

	retry := job{
		interviewID:    j.interviewID,
		conversationID: j.conversationID,
		retryCount:     j.retryCount + 1,
	}
	time.AfterFunc(delay, func() {
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}
		if err := q.push(retry); err != nil {
			q.logger.Error("retry dropped", "interview_id", retry.interviewID, "error", err)
		}
	})
}

// backoff doubles the base delay per completed attempt.
func (q *Queue) backoff(retryCount int) time.Duration {
	return q.config.BackoffBase << retryCount
}

// evaluate runs the scoring pipeline for one interview.
func (q *Queue) evaluate(ctx context.Context, j job) (*scoring.Result, error) {
	iv, err := q.store.GetInterview(ctx, j.interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Transcript == "" {
		return nil, ErrEmptyTranscript
	}

	pairs := transcript.Parse(iv.Transcript)
	if len(pairs) == 0 {
		return nil, ErrUnparseableTranscript
	}

	if err := q.setStatus(ctx, j, StatusProcessing); err != nil {
		return nil, err
	}

	req := &scoring.Request{Questions: pairs}
	// candidate context is best effort; scoring proceeds without it
	if iv.Candidate.Major != "" {
		req.Major = iv.Candidate.Major
		req.Role = interview.TargetRole(iv.Candidate.Major)
	}
	req.ResumeText = iv.Candidate.ResumeText()

	scoreCtx := ctx
	if q.config.ScoreTimeout > 0 {
		var cancel context.CancelFunc
		scoreCtx, cancel = context.WithTimeout(ctx, q.config.ScoreTimeout)
		defer cancel()
	}

	result, err := q.scorer.Score(scoreCtx, req)
	if err != nil {
		return nil, err
	}

	score := result.OverallScore
	now := time.Now()
	ev := &Evaluation{
		InterviewID:    j.interviewID,
		ConversationID: j.conversationID,
		Status:         StatusComplete,
		OverallScore:   &score,
		Payload:        result,
		RetryCount:     j.retryCount,
		UpdatedAt:      now,
	}
	if err := q.store.SaveEvaluation(ctx, ev); err != nil {
		return nil, err
	}

	return result, nil
}

func (q *Queue) setStatus(ctx context.Context, j job, status Status) error {
	ev, err := q.store.GetEvaluation(ctx, j.interviewID)
	if err != nil {
		return err
	}
	ev.Status = status
	ev.RetryCount = j.retryCount
	ev.UpdatedAt = time.Now()
	return q.store.SaveEvaluation(ctx, ev)
}

func (q *Queue) markFailed(ctx context.Context, j job, cause error) {
	ev, err := q.store.GetEvaluation(ctx, j.interviewID)
	if err != nil {
		q.logger.Error("failed to load evaluation for failure update",
			"interview_id", j.interviewID,
			"error", err,
		)
		return
	}
	ev.Status = StatusFailed
	ev.Error = cause.Error()
	ev.RetryCount = j.retryCount
	ev.UpdatedAt = time.Now()
	if err := q.store.SaveEvaluation(ctx, ev); err != nil {
		q.logger.Error("failed to persist failure",
			"interview_id", j.interviewID,
			"error", err,
		)
	}
}

// healthSweep re-drives evaluations stuck pending past the staleness
// threshold, guarding against crashes and missed enqueue calls.
func (q *Queue) healthSweep() {
	defer q.wg.Done()

	timer := time.NewTimer(q.config.SweepDelay)
	defer timer.Stop()

	select {
	case <-q.quit:
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(q.config.SweepInterval)
	defer ticker.Stop()

	for {
		q.sweep()
		select {
		case <-q.quit:
			return
		case <-ticker.C:
		}
	}
}

func (q *Queue) sweep() {
	ctx := context.Background()
	cutoff := time.Now().Add(-q.config.Staleness)

	stale, err := q.store.FindStalePending(ctx, cutoff)
	if err != nil {
		q.logger.Error("health sweep query failed", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	q.logger.Warn("health sweep found stalled evaluations", "count", len(stale))

	for _, ev := range stale {
		iv, err := q.store.GetInterview(ctx, ev.InterviewID)
		if err != nil || iv.Transcript == "" {
			ev.Status = StatusFailed
			ev.Error = "stalled with no transcript"
			ev.UpdatedAt = time.Now()
			if err := q.store.SaveEvaluation(ctx, ev); err != nil {
				q.logger.Error("failed to mark stalled evaluation",
					"interview_id", ev.InterviewID,
					"error", err,
				)
			}
			continue
		}

		if err := q.push(job{
			interviewID:    ev.InterviewID,
			conversationID: ev.ConversationID,
		}); err != nil {
			q.logger.Error("failed to re-enqueue stalled evaluation",
				"interview_id", ev.InterviewID,
				"error", err,
			)
		}
	}
}
