// Package dashboard computes the summary figures shown to supervisors
package dashboard

import (
	"context"
	"time"

	"github.com/sumangalagouda/DEV-HACK/internal/credentials"
)

// PenaltyPerViolation is subtracted from 100 for each violation today
const PenaltyPerViolation = 5

// Stats is the /api/detections/stats payload
type Stats struct {
	SafetyScore         int   `json:"safetyScore"`
	ViolationsToday     int64 `json:"violationsToday"`
	ViolationsYesterday int64 `json:"violationsYesterday"`
	// Trend is today minus yesterday; negative is an improvement
	Trend int64 `json:"trend"`
}

// Counter counts violations in a time range
type Counter interface {
	CountViolations(ctx context.Context, cred credentials.Credential, from, to time.Time) (int64, error)
}

// SafetyScore is 100 minus the penalty per violation, floored at zero
func SafetyScore(violations int64) int {
	score := int64(100) - violations*PenaltyPerViolation
	if score < 0 {
		return 0
	}
	return int(score)
}

// StartOfDay is local midnight of t's day
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Compute builds the stats for the day containing now
func Compute(ctx context.Context, counter Counter, cred credentials.Credential, now time.Time) (*Stats, error) {
	today := StartOfDay(now)
	yesterday := today.AddDate(0, 0, -1)
	tomorrow := today.AddDate(0, 0, 1)

	todayCount, err := counter.CountViolations(ctx, cred, today, tomorrow)
	if err != nil {
		return nil, err
	}
	yesterdayCount, err := counter.CountViolations(ctx, cred, yesterday, today)
	if err != nil {
		return nil, err
	}

	return &Stats{
		SafetyScore:         SafetyScore(todayCount),
		ViolationsToday:     todayCount,
		ViolationsYesterday: yesterdayCount,
		Trend:               todayCount - yesterdayCount,
	}, nil
}
