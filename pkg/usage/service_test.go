package usage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnzioki/dukabook/pkg/plans"
)

// fixedNow pins the period to June 2026 so bounds are stable.
var fixedNow = time.Date(2026, time.June, 15, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*PostgresService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PostgresService{db: db, now: func() time.Time { return fixedNow }}, mock
}

func expectPlanLookup(mock sqlmock.Sqlmock, userID string, tier plans.Tier) {
	mock.ExpectQuery("SELECT plan FROM user_subscription_tracking").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"plan"}).AddRow(string(tier)))
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		name  string
		count int
		limit int
		want  float64
	}{
		{name: "zero of five", count: 0, limit: 5, want: 0},
		{name: "one third", count: 1, limit: 3, want: 33.33},
		{name: "two thirds", count: 2, limit: 3, want: 66.67},
		{name: "at limit", count: 5, limit: 5, want: 100},
		{name: "over limit", count: 6, limit: 5, want: 120},
		{name: "unlimited", count: 42, limit: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percentage(tt.count, tt.limit))
		})
	}
}

func TestPeriodBounds(t *testing.T) {
	start, end := periodBounds(fixedNow)
	assert.Equal(t, time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestIncrement(t *testing.T) {
	svc, mock := newTestService(t)

	expectPlanLookup(mock, "user-1", plans.TierFree)
	periodStart := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("SELECT increment_feature_usage").
		WithArgs("user-1", plans.FeatureInvoices, periodStart, periodStart.AddDate(0, 1, 0), 1, 5).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := svc.Increment(context.Background(), "user-1", plans.FeatureInvoices, 1)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrement_DefaultsToFreePlan(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT plan FROM user_subscription_tracking").
		WithArgs("user-new").
		WillReturnError(sql.ErrNoRows)
	periodStart := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("SELECT increment_feature_usage").
		WithArgs("user-new", plans.FeatureSales, periodStart, periodStart.AddDate(0, 1, 0), 2, 50).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := svc.Increment(context.Background(), "user-new", plans.FeatureSales, 2)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrement_RejectsNonPositive(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Error(t, svc.Increment(context.Background(), "user-1", plans.FeatureSales, 0))
	assert.Error(t, svc.Increment(context.Background(), "user-1", plans.FeatureSales, -3))
}

func TestCheckLimit_UnderLimit(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT current_count, limit_count").
		WithArgs("user-1", plans.FeatureInvoices, time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"current_count", "limit_count"}).AddRow(3, 5))

	assert.NoError(t, svc.CheckLimit(context.Background(), "user-1", plans.FeatureInvoices))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckLimit_Exceeded(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT current_count, limit_count").
		WithArgs("user-1", plans.FeatureInvoices, time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"current_count", "limit_count"}).AddRow(5, 5))

	err := svc.CheckLimit(context.Background(), "user-1", plans.FeatureInvoices)
	require.Error(t, err)
	assert.True(t, IsLimitExceeded(err))

	var le *LimitExceededError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, plans.FeatureInvoices, le.Feature)
	assert.Equal(t, 5, le.Current)
	assert.Equal(t, 5, le.Limit)
}

func TestCheckLimit_UnlimitedNeverExceeds(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT current_count, limit_count").
		WithArgs("user-1", plans.FeatureSales, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"current_count", "limit_count"}).AddRow(100000, 0))

	assert.NoError(t, svc.CheckLimit(context.Background(), "user-1", plans.FeatureSales))
}

func TestCheckLimit_SeedsMissingPeriod(t *testing.T) {
	svc, mock := newTestService(t)
	periodStart := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT current_count, limit_count").
		WithArgs("user-1", plans.FeatureInvoices, periodStart).
		WillReturnError(sql.ErrNoRows)

	expectPlanLookup(mock, "user-1", plans.TierStarter)
	for range plans.Features() {
		mock.ExpectExec("INSERT INTO feature_usage").
			WillReturnResult(sqlmock.NewResult(1, 1))
	}

	mock.ExpectQuery("SELECT current_count, limit_count").
		WithArgs("user-1", plans.FeatureInvoices, periodStart).
		WillReturnRows(sqlmock.NewRows([]string{"current_count", "limit_count"}).AddRow(0, 100))

	assert.NoError(t, svc.CheckLimit(context.Background(), "user-1", plans.FeatureInvoices))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrentStats(t *testing.T) {
	svc, mock := newTestService(t)
	periodStart := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT feature_code, current_count, limit_count, usage_percentage").
		WithArgs("user-1", periodStart).
		WillReturnRows(sqlmock.NewRows([]string{"feature_code", "current_count", "limit_count", "usage_percentage"}).
			AddRow("invoices", 5, 5, 100.0).
			AddRow("sales", 10, 50, 20.0).
			AddRow("products", 7, 0, 0.0))

	stats, err := svc.CurrentStats(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, stats, 3)

	assert.True(t, stats[0].Exceeded)
	assert.False(t, stats[1].Exceeded)
	assert.False(t, stats[2].Exceeded, "unlimited features never report exceeded")

	// June 15th, period ends July 1st.
	assert.Equal(t, 15, stats[0].DaysRemaining)
}

func TestRolloverAll(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT user_id FROM user_subscription_tracking").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1").AddRow("user-2"))

	for _, userID := range []string{"user-1", "user-2"} {
		expectPlanLookup(mock, userID, plans.TierFree)
		for range plans.Features() {
			mock.ExpectExec("INSERT INTO feature_usage").
				WillReturnResult(sqlmock.NewResult(1, 1))
		}
	}

	n, err := svc.RolloverAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSynced(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec("UPDATE feature_usage").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	assert.NoError(t, svc.MarkSynced(context.Background(), "user-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
