package scoring

import (
	"context"
	"sync"
)

// Mock is a test double for Scorer.
type Mock struct {
	mu sync.Mutex

	// ScoreFunc overrides the default canned result when set.
	ScoreFunc func(ctx context.Context, req *Request) (*Result, error)

	// Err makes every call fail when set.
	Err error

	// Requests captures every request received.
	Requests []*Request
}

// NewMock creates a mock scorer returning a fixed passing result.
func NewMock() *Mock {
	return &Mock{}
}

// WithError creates a mock scorer that always fails.
func WithError(err error) *Mock {
	return &Mock{Err: err}
}

// Name identifies the scoring provider.
func (m *Mock) Name() string { return "mock" }

// Score records the request and returns the configured result.
func (m *Mock) Score(ctx context.Context, req *Request) (*Result, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	fn := m.ScoreFunc
	err := m.Err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}

	questions := make([]QuestionResult, len(req.Questions))
	for i, qa := range req.Questions {
		questions[i] = QuestionResult{
			Question:     qa.Question,
			Answer:       qa.Answer,
			Score:        75,
			Strengths:    []string{"clear answer"},
			Improvements: []string{"add a concrete example"},
		}
	}

	return &Result{
		OverallScore:        75,
		OverallStrengths:    []string{"consistent delivery"},
		OverallImprovements: []string{"quantify results"},
		Questions:           questions,
	}, nil
}

// Calls returns how many score calls were made.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Ensure Mock implements Scorer.
var _ Scorer = (*Mock)(nil)
