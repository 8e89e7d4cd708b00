package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/plans"
)

// ErrAlreadySubscribed is returned by Create when the user already has
// a subscription row.
var ErrAlreadySubscribed = errors.New("user already has a subscription")

// PostgresService implements Service against user_subscription_tracking
// and subscription_audit_log.
type PostgresService struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresService creates a subscription service backed by db.
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db, now: time.Now}
}

const subscriptionColumns = `id, user_id, plan, status, current_period_start, current_period_end, canceled_at, created_at, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (*Subscription, error) {
	sub := &Subscription{}
	err := row.Scan(&sub.ID, &sub.UserID, &sub.Plan, &sub.Status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CanceledAt,
		&sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return sub, nil
}

// Create starts a user on the given plan. The first billing period runs
// one month from now.
func (s *PostgresService) Create(ctx context.Context, userID string, tier plans.Tier, actor string) (*Subscription, error) {
	if !plans.Valid(tier) {
		return nil, &ledger.ValidationError{Field: "plan", Message: "unknown plan " + string(tier)}
	}

	now := s.now()
	periodEnd := now.AddDate(0, 1, 0)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO user_subscription_tracking (user_id, plan, status, current_period_start, current_period_end)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING `+subscriptionColumns,
		userID, tier, StatusActive, now, periodEnd)

	sub, err := scanSubscription(row)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, ErrAlreadySubscribed
	}
	if err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, tx, &AuditEntry{
		UserID:    userID,
		NewPlan:   string(tier),
		NewStatus: string(StatusActive),
		Actor:     actor,
		Reason:    "subscription created",
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit subscription: %w", err)
	}
	return sub, nil
}

// Get returns the user's subscription, or ledger.ErrNotFound.
func (s *PostgresService) Get(ctx context.Context, userID string) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM user_subscription_tracking WHERE user_id = $1`, userID)
	return scanSubscription(row)
}

// ChangePlan moves the user to a new tier and records the transition.
// Changing to the current tier is a no-op.
func (s *PostgresService) ChangePlan(ctx context.Context, userID string, tier plans.Tier, actor, reason string) (*Subscription, error) {
	if !plans.Valid(tier) {
		return nil, &ledger.ValidationError{Field: "plan", Message: "unknown plan " + string(tier)}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanSubscription(tx.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM user_subscription_tracking WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, err
	}
	if current.Plan == tier {
		return current, tx.Commit()
	}

	updated, err := scanSubscription(tx.QueryRowContext(ctx, `
		UPDATE user_subscription_tracking
		SET plan = $1, updated_at = NOW()
		WHERE user_id = $2
		RETURNING `+subscriptionColumns, tier, userID))
	if err != nil {
		return nil, err
	}

	// The current billing period keeps its counters but takes the new
	// tier's limits immediately, so an upgrade unblocks the user without
	// waiting for rollover. Percentages are recomputed by the row trigger.
	for _, feature := range plans.Features() {
		if _, err := tx.ExecContext(ctx, `
			UPDATE feature_usage
			SET limit_count = $1, sync_status = 'pending', updated_at = NOW()
			WHERE user_id = $2 AND feature_code = $3
			  AND period_start <= CURRENT_DATE AND period_end > CURRENT_DATE
		`, plans.Limit(tier, feature), userID, feature); err != nil {
			return nil, fmt.Errorf("failed to refresh %s limit: %w", feature, err)
		}
	}

	if err := s.appendAudit(ctx, tx, &AuditEntry{
		UserID:  userID,
		OldPlan: string(current.Plan),
		NewPlan: string(tier),
		Actor:   actor,
		Reason:  reason,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit plan change: %w", err)
	}
	return updated, nil
}

// Cancel marks the subscription canceled. The row is kept so limits
// fall back to the free tier rather than disappearing.
func (s *PostgresService) Cancel(ctx context.Context, userID, actor, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanSubscription(tx.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM user_subscription_tracking WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return err
	}
	if current.Status == StatusCanceled {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE user_subscription_tracking
		SET status = $1, canceled_at = NOW(), updated_at = NOW()
		WHERE user_id = $2
	`, StatusCanceled, userID); err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}

	if err := s.appendAudit(ctx, tx, &AuditEntry{
		UserID:    userID,
		OldStatus: string(current.Status),
		NewStatus: string(StatusCanceled),
		Actor:     actor,
		Reason:    reason,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return nil
}

// Reactivate returns a canceled subscription to active and starts a
// fresh billing period.
func (s *PostgresService) Reactivate(ctx context.Context, userID, actor string) (*Subscription, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanSubscription(tx.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM user_subscription_tracking WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, err
	}
	if current.Status != StatusCanceled {
		return nil, &ledger.ValidationError{Field: "status", Message: "only canceled subscriptions can be reactivated"}
	}

	now := s.now()
	updated, err := scanSubscription(tx.QueryRowContext(ctx, `
		UPDATE user_subscription_tracking
		SET status = $1, canceled_at = NULL,
		    current_period_start = $2, current_period_end = $3, updated_at = NOW()
		WHERE user_id = $4
		RETURNING `+subscriptionColumns,
		StatusActive, now, now.AddDate(0, 1, 0), userID))
	if err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, tx, &AuditEntry{
		UserID:    userID,
		OldStatus: string(StatusCanceled),
		NewStatus: string(StatusActive),
		Actor:     actor,
		Reason:    "subscription reactivated",
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reactivation: %w", err)
	}
	return updated, nil
}

// AuditTrail returns the most recent transitions for a user, newest first.
func (s *PostgresService) AuditTrail(ctx context.Context, userID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(old_plan, ''), COALESCE(new_plan, ''),
		       COALESCE(old_status, ''), COALESCE(new_status, ''), actor, COALESCE(reason, ''), created_at
		FROM subscription_audit_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.OldPlan, &e.NewPlan,
			&e.OldStatus, &e.NewStatus, &e.Actor, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneAuditBefore deletes audit entries recorded before cutoff and
// reports how many rows were removed. Run by the retention job.
func (s *PostgresService) PruneAuditBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscription_audit_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresService) appendAudit(ctx context.Context, tx *sql.Tx, e *AuditEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO subscription_audit_log (user_id, old_plan, new_plan, old_status, new_status, actor, reason)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''))
	`, e.UserID, e.OldPlan, e.NewPlan, e.OldStatus, e.NewStatus, e.Actor, e.Reason)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}
