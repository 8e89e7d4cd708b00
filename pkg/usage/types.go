package usage

import (
	"context"
	"errors"
	"time"
)

// SyncStatus marks whether a usage row has been delivered to the
// client-side cache.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
)

// FeatureUsage is one feature_usage row: a single feature's counter for
// one user over one calendar month.
type FeatureUsage struct {
	ID              int64      `json:"id"`
	UserID          string     `json:"user_id"`
	FeatureCode     string     `json:"feature_code"`
	PeriodStart     time.Time  `json:"period_start"`
	PeriodEnd       time.Time  `json:"period_end"`
	CurrentCount    int        `json:"current_count"`
	LimitCount      int        `json:"limit_count"`
	UsagePercentage float64    `json:"usage_percentage"`
	SyncStatus      SyncStatus `json:"sync_status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FeatureStats is the per-feature summary returned to clients.
type FeatureStats struct {
	Feature         string  `json:"feature"`
	CurrentCount    int     `json:"current_count"`
	LimitCount      int     `json:"limit_count"`
	UsagePercentage float64 `json:"usage_percentage"`
	Exceeded        bool    `json:"exceeded"`
	DaysRemaining   int     `json:"days_remaining"`
}

// LimitExceededError is returned when a feature's monthly cap is reached.
type LimitExceededError struct {
	Feature string `json:"feature"`
	Current int    `json:"current"`
	Limit   int    `json:"limit"`
}

func (e *LimitExceededError) Error() string {
	return "limit exceeded for " + e.Feature
}

// IsLimitExceeded checks if an error is a limit exceeded error.
func IsLimitExceeded(err error) bool {
	var le *LimitExceededError
	return errors.As(err, &le)
}

// Service tracks and gates feature usage.
type Service interface {
	Increment(ctx context.Context, userID, feature string, n int) error
	CheckLimit(ctx context.Context, userID, feature string) error
	CurrentStats(ctx context.Context, userID string) ([]FeatureStats, error)
	SeedPeriod(ctx context.Context, userID string, periodStart time.Time) error
	RolloverAll(ctx context.Context) (int, error)
	MarkSynced(ctx context.Context, userID string) error
}
