package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/plans"
)

var testNow = time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*PostgresService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PostgresService{db: db, now: func() time.Time { return testNow }}, mock
}

func subscriptionRows(userID string, tier plans.Tier, status Status) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "plan", "status",
		"current_period_start", "current_period_end", "canceled_at",
		"created_at", "updated_at",
	}).AddRow(1, userID, string(tier), string(status),
		testNow, testNow.AddDate(0, 1, 0), nil, testNow, testNow)
}

func TestCreate(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO user_subscription_tracking").
		WithArgs("user-1", plans.TierStarter, StatusActive, testNow, testNow.AddDate(0, 1, 0)).
		WillReturnRows(subscriptionRows("user-1", plans.TierStarter, StatusActive))
	mock.ExpectExec("INSERT INTO subscription_audit_log").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	sub, err := svc.Create(context.Background(), "user-1", plans.TierStarter, "user-1")
	require.NoError(t, err)
	assert.Equal(t, plans.TierStarter, sub.Plan)
	assert.Equal(t, StatusActive, sub.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_AlreadySubscribed(t *testing.T) {
	svc, mock := newTestService(t)

	// ON CONFLICT DO NOTHING yields no row for an existing user.
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO user_subscription_tracking").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), "user-1", plans.TierFree, "user-1")
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_UnknownPlan(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create(context.Background(), "user-1", plans.Tier("platinum"), "user-1")
	assert.True(t, ledger.IsValidation(err))
}

func TestGet_NotFound(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM user_subscription_tracking").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestChangePlan(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(subscriptionRows("user-1", plans.TierFree, StatusActive))
	mock.ExpectQuery("UPDATE user_subscription_tracking").
		WithArgs(plans.TierBusiness, "user-1").
		WillReturnRows(subscriptionRows("user-1", plans.TierBusiness, StatusActive))
	for _, feature := range plans.Features() {
		mock.ExpectExec("UPDATE feature_usage").
			WithArgs(plans.Limit(plans.TierBusiness, feature), "user-1", feature).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec("INSERT INTO subscription_audit_log").
		WithArgs("user-1", string(plans.TierFree), string(plans.TierBusiness), "", "", "admin", "upgrade").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	sub, err := svc.ChangePlan(context.Background(), "user-1", plans.TierBusiness, "admin", "upgrade")
	require.NoError(t, err)
	assert.Equal(t, plans.TierBusiness, sub.Plan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangePlan_RefreshesCurrentPeriodLimits(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(subscriptionRows("user-1", plans.TierFree, StatusActive))
	mock.ExpectQuery("UPDATE user_subscription_tracking").
		WithArgs(plans.TierStarter, "user-1").
		WillReturnRows(subscriptionRows("user-1", plans.TierStarter, StatusActive))
	// Every feature's open-period counter row takes the new tier's limit
	// inside the same transaction as the plan change.
	for _, feature := range plans.Features() {
		mock.ExpectExec("UPDATE feature_usage").
			WithArgs(plans.Limit(plans.TierStarter, feature), "user-1", feature).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec("INSERT INTO subscription_audit_log").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, err := svc.ChangePlan(context.Background(), "user-1", plans.TierStarter, "user-1", "upgrade")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangePlan_SameTierIsNoop(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(subscriptionRows("user-1", plans.TierStarter, StatusActive))
	mock.ExpectCommit()

	sub, err := svc.ChangePlan(context.Background(), "user-1", plans.TierStarter, "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, plans.TierStarter, sub.Plan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(subscriptionRows("user-1", plans.TierStarter, StatusActive))
	mock.ExpectExec("UPDATE user_subscription_tracking").
		WithArgs(StatusCanceled, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO subscription_audit_log").
		WithArgs("user-1", "", "", string(StatusActive), string(StatusCanceled), "user-1", "too expensive").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := svc.Cancel(context.Background(), "user-1", "user-1", "too expensive")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel_AlreadyCanceledIsNoop(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(subscriptionRows("user-1", plans.TierStarter, StatusCanceled))
	mock.ExpectCommit()

	assert.NoError(t, svc.Cancel(context.Background(), "user-1", "user-1", ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReactivate(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(subscriptionRows("user-1", plans.TierStarter, StatusCanceled))
	mock.ExpectQuery("UPDATE user_subscription_tracking").
		WithArgs(StatusActive, testNow, testNow.AddDate(0, 1, 0), "user-1").
		WillReturnRows(subscriptionRows("user-1", plans.TierStarter, StatusActive))
	mock.ExpectExec("INSERT INTO subscription_audit_log").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	sub, err := svc.Reactivate(context.Background(), "user-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sub.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReactivate_ActiveSubscriptionRejected(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(subscriptionRows("user-1", plans.TierStarter, StatusActive))
	mock.ExpectRollback()

	_, err := svc.Reactivate(context.Background(), "user-1", "user-1")
	assert.True(t, ledger.IsValidation(err))
}

func TestAuditTrail(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM subscription_audit_log").
		WithArgs("user-1", 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "old_plan", "new_plan", "old_status", "new_status", "actor", "reason", "created_at",
		}).
			AddRow(2, "user-1", "free", "starter", "", "", "admin", "upgrade", testNow).
			AddRow(1, "user-1", "", "free", "", "active", "user-1", "subscription created", testNow.Add(-time.Hour)))

	entries, err := svc.AuditTrail(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "starter", entries[0].NewPlan)
	assert.Equal(t, "subscription created", entries[1].Reason)
}

func TestPruneAuditBefore(t *testing.T) {
	svc, mock := newTestService(t)

	cutoff := testNow.AddDate(-1, 0, 0)
	mock.ExpectExec("DELETE FROM subscription_audit_log").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 17))

	removed, err := svc.PruneAuditBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(17), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
