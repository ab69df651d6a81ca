package scoring

import (
	"context"
	"log/slog"
)

// Chain tries multiple scorers in order until one succeeds.
type Chain struct {
	scorers []Scorer
	logger  *slog.Logger
}

// NewChain creates a scorer chain. At least one scorer is required.
func NewChain(scorers ...Scorer) (*Chain, error) {
	if len(scorers) == 0 {
		return nil, ErrNoScorers
	}
	return &Chain{
		scorers: scorers,
		logger:  slog.Default().With("component", "scoring.chain"),
	}, nil
}

// Name identifies the scoring provider.
func (c *Chain) Name() string { return "chain" }

// Score tries each scorer until one succeeds.
func (c *Chain) Score(ctx context.Context, req *Request) (*Result, error) {
	var errs []error

	for i, s := range c.scorers {
		result, err := s.Score(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback scorer succeeded",
					"scorer", s.Name(),
				)
			}
			return result, nil
		}

		errs = append(errs, err)
		c.logger.Warn("scorer failed, trying next",
			"scorer", s.Name(),
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &ChainError{Errors: errs}
}

// Ensure Chain implements Scorer.
var _ Scorer = (*Chain)(nil)
