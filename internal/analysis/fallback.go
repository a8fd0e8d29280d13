package analysis

import (
	"context"
	"strings"

	"github.com/sumangalagouda/DEV-HACK/internal/models"
)

// Precomputed trusts a judgement the caller already made
type Precomputed struct{}

func (Precomputed) Name() string { return TierPrecomputed }

func (Precomputed) Analyze(_ context.Context, in Input) (*Result, error) {
	violationType := strings.TrimSpace(in.ViolationType)
	if violationType == "" {
		return nil, ErrSkipped
	}
	severity := models.SeverityHigh
	if sev, ok := models.ParseSeverity(in.Severity); ok {
		severity = sev
	}
	return &Result{
		Violations:      []string{violationType},
		Confidence:      0.85,
		Severity:        string(severity),
		Recommendations: []string{"Review site safety protocols"},
	}, nil
}

// PlaceholderViolation is recorded when no judgement could be made
const PlaceholderViolation = "Image uploaded - Manual review recommended"

// Placeholder always answers, asking for manual review
type Placeholder struct{}

func (Placeholder) Name() string { return TierPlaceholder }

func (Placeholder) Analyze(context.Context, Input) (*Result, error) {
	return &Result{
		Violations:      []string{PlaceholderViolation},
		Confidence:      0.5,
		Severity:        string(models.SeverityMedium),
		Recommendations: []string{"Review image manually for PPE compliance"},
	}, nil
}
