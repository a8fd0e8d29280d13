// Package analysis produces a violation judgement for a frame.
//
// Strategies are tried in order: a precomputed judgement supplied by the
// caller, the remote classification gateway, and finally a placeholder that
// never fails.
package analysis

import (
	"context"
	"errors"
)

// Tier names
const (
	TierPrecomputed = "precomputed"
	TierGateway     = "gateway"
	TierPlaceholder = "placeholder"
)

// ErrSkipped means a strategy does not apply to this input
var ErrSkipped = errors.New("analysis strategy not applicable")

// ErrNoResult means every strategy was skipped or failed
var ErrNoResult = errors.New("no analysis strategy produced a result")

// Input is what the strategies get to look at
type Input struct {
	// ImageBase64 is the raw payload, with or without a data URL prefix
	ImageBase64   string
	ViolationType string
	Severity      string
}

// Result is a judgement. Confidence is 0..1; zero means unknown.
type Result struct {
	Violations      []string `json:"violations"`
	Confidence      float64  `json:"confidence"`
	Severity        string   `json:"severity"`
	Recommendations []string `json:"recommendations"`
	Source          string   `json:"source,omitempty"`
}

// Strategy is one way of getting a Result
type Strategy interface {
	Name() string
	Analyze(ctx context.Context, in Input) (*Result, error)
}
