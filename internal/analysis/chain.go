package analysis

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Observer is told which tier produced each result
type Observer interface {
	ObserveAnalysis(tier string)
}

// Chain tries strategies in order until one returns a result
type Chain struct {
	strategies []Strategy
	logger     *zap.Logger
	observer   Observer
}

// NewChain builds a chain. Put the placeholder last to make it infallible.
func NewChain(logger *zap.Logger, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, logger: logger}
}

// SetObserver wires metrics
func (c *Chain) SetObserver(o Observer) {
	c.observer = o
}

// Analyze returns the first successful result
func (c *Chain) Analyze(ctx context.Context, in Input) (*Result, error) {
	for _, s := range c.strategies {
		res, err := s.Analyze(ctx, in)
		if err == nil && res != nil {
			res.Source = s.Name()
			if c.observer != nil {
				c.observer.ObserveAnalysis(s.Name())
			}
			return res, nil
		}
		if err == nil || errors.Is(err, ErrSkipped) {
			continue
		}
		c.logger.Warn("Analysis strategy failed, falling back",
			zap.String("strategy", s.Name()),
			zap.Error(err))
	}
	return nil, ErrNoResult
}
