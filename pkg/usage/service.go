package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mnzioki/dukabook/pkg/plans"
)

// PostgresService implements Service against the feature_usage table.
type PostgresService struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresService creates a usage service backed by db.
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db, now: time.Now}
}

// periodBounds returns the calendar-month window containing t, in UTC.
func periodBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Percentage computes the stored usage percentage: count/limit rounded
// to two places, or 0 for unlimited features.
func Percentage(count, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Round(float64(count)/float64(limit)*100*100) / 100
}

// planTier returns the user's current plan, defaulting to free when the
// user has no subscription row yet.
func (s *PostgresService) planTier(ctx context.Context, userID string) (plans.Tier, error) {
	var tier string
	err := s.db.QueryRowContext(ctx,
		`SELECT plan FROM user_subscription_tracking WHERE user_id = $1`, userID,
	).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return plans.TierFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up plan: %w", err)
	}
	return plans.Tier(tier), nil
}

// Increment bumps the feature counter for the current period through
// the increment_feature_usage schema function, which creates the
// period row on first use. The stored percentage is recomputed by the
// table's row trigger, so readers never see a stale value.
func (s *PostgresService) Increment(ctx context.Context, userID, feature string, n int) error {
	if n <= 0 {
		return fmt.Errorf("increment must be positive, got %d", n)
	}

	tier, err := s.planTier(ctx, userID)
	if err != nil {
		return err
	}
	limit := plans.Limit(tier, feature)
	start, end := periodBounds(s.now())

	if _, err := s.db.ExecContext(ctx,
		`SELECT increment_feature_usage($1, $2, $3, $4, $5, $6)`,
		userID, feature, start, end, n, limit); err != nil {
		return fmt.Errorf("failed to increment %s usage: %w", feature, err)
	}
	return nil
}

// CheckLimit returns a *LimitExceededError when the feature's monthly
// cap is reached. Missing period rows are seeded and rechecked.
func (s *PostgresService) CheckLimit(ctx context.Context, userID, feature string) error {
	start, _ := periodBounds(s.now())

	var current, limit int
	err := s.db.QueryRowContext(ctx, `
		SELECT current_count, limit_count
		FROM feature_usage
		WHERE user_id = $1 AND feature_code = $2 AND period_start = $3
	`, userID, feature, start).Scan(&current, &limit)

	if errors.Is(err, sql.ErrNoRows) {
		if err := s.SeedPeriod(ctx, userID, start); err != nil {
			return err
		}
		err = s.db.QueryRowContext(ctx, `
			SELECT current_count, limit_count
			FROM feature_usage
			WHERE user_id = $1 AND feature_code = $2 AND period_start = $3
		`, userID, feature, start).Scan(&current, &limit)
	}
	if err != nil {
		return fmt.Errorf("failed to check %s limit: %w", feature, err)
	}

	if limit > 0 && current >= limit {
		return &LimitExceededError{Feature: feature, Current: current, Limit: limit}
	}
	return nil
}

// CurrentStats returns a summary for every tracked feature in the
// current period.
func (s *PostgresService) CurrentStats(ctx context.Context, userID string) ([]FeatureStats, error) {
	start, end := periodBounds(s.now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT feature_code, current_count, limit_count, usage_percentage
		FROM feature_usage
		WHERE user_id = $1 AND period_start = $2
		ORDER BY feature_code
	`, userID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage stats: %w", err)
	}
	defer rows.Close()

	daysRemaining := int(end.Sub(s.now()).Hours() / 24)
	if daysRemaining < 0 {
		daysRemaining = 0
	}

	var stats []FeatureStats
	for rows.Next() {
		var fs FeatureStats
		if err := rows.Scan(&fs.Feature, &fs.CurrentCount, &fs.LimitCount, &fs.UsagePercentage); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		fs.Exceeded = fs.LimitCount > 0 && fs.CurrentCount >= fs.LimitCount
		fs.DaysRemaining = daysRemaining
		stats = append(stats, fs)
	}
	return stats, rows.Err()
}

// SeedPeriod inserts zeroed counter rows for every tracked feature at the
// given period start, using the user's current plan limits. Existing rows
// are left untouched, so re-running is safe.
func (s *PostgresService) SeedPeriod(ctx context.Context, userID string, periodStart time.Time) error {
	tier, err := s.planTier(ctx, userID)
	if err != nil {
		return err
	}
	periodEnd := periodStart.AddDate(0, 1, 0)

	query := `
		INSERT INTO feature_usage
			(user_id, feature_code, period_start, period_end, current_count, limit_count, usage_percentage, sync_status)
		VALUES ($1, $2, $3, $4, 0, $5, 0, 'pending')
		ON CONFLICT (user_id, feature_code, period_start) DO NOTHING
	`
	for _, feature := range plans.Features() {
		if _, err := s.db.ExecContext(ctx, query, userID, feature, periodStart, periodEnd, plans.Limit(tier, feature)); err != nil {
			return fmt.Errorf("failed to seed %s usage: %w", feature, err)
		}
	}
	return nil
}

// RolloverAll seeds the current period for every subscribed user and
// returns how many users were processed. Run from cron on the first of
// the month.
func (s *PostgresService) RolloverAll(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM user_subscription_tracking`)
	if err != nil {
		return 0, fmt.Errorf("failed to list subscribed users: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	start, _ := periodBounds(s.now())
	for i, id := range userIDs {
		if err := s.SeedPeriod(ctx, id, start); err != nil {
			return i, err
		}
	}
	return len(userIDs), nil
}

// MarkSynced flags all of the user's pending usage rows as delivered.
func (s *PostgresService) MarkSynced(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE feature_usage
		SET sync_status = 'synced', updated_at = NOW()
		WHERE user_id = $1 AND sync_status = 'pending'
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to mark usage synced: %w", err)
	}
	return nil
}
