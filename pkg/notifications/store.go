package notifications

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mnzioki/dukabook/pkg/ledger"
)

// DeliveryStatus tracks a journaled push delivery attempt.
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusFailed   DeliveryStatus = "failed"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
)

// PushSubscription is a browser push endpoint registered by a client.
// The p256dh and auth values are the Web Push encryption keys supplied
// at subscription time.
type PushSubscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryLog is one journaled delivery attempt in notification_log.
type DeliveryLog struct {
	ID             int64          `json:"id"`
	UserID         string         `json:"user_id"`
	SubscriptionID string         `json:"subscription_id,omitempty"`
	Type           string         `json:"notification_type"`
	Payload        Payload        `json:"payload"`
	Status         DeliveryStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	NextAttemptAt  *time.Time     `json:"next_attempt_at,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Journal is the persistence surface the Notifier and RetryWorker
// depend on. *Store implements it against Postgres.
type Journal interface {
	RegisterSubscription(ctx context.Context, userID string, sub *PushSubscription) error
	UnregisterSubscription(ctx context.Context, userID, endpoint string) error
	ListSubscriptions(ctx context.Context, userID string) ([]*PushSubscription, error)
	GetSubscription(ctx context.Context, id string) (*PushSubscription, error)

	Enqueue(ctx context.Context, entry *DeliveryLog) error
	PendingRetries(ctx context.Context, limit int) ([]*DeliveryLog, error)
	MarkSuccess(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, attempts int, nextAttempt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id int64, lastError string) error
}

// Store persists push subscriptions and the delivery journal.
type Store struct {
	db *sql.DB
}

// NewStore creates a notification store on an existing database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RegisterSubscription upserts a push endpoint for the user. Re-posting
// the same endpoint refreshes its keys instead of erroring.
func (s *Store) RegisterSubscription(ctx context.Context, userID string, sub *PushSubscription) error {
	if sub.Endpoint == "" {
		return &ledger.ValidationError{Field: "endpoint", Message: "endpoint is required"}
	}
	if sub.P256dh == "" || sub.Auth == "" {
		return &ledger.ValidationError{Field: "keys", Message: "p256dh and auth keys are required"}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, endpoint)
		DO UPDATE SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth
		RETURNING id, created_at
	`, userID, sub.Endpoint, sub.P256dh, sub.Auth).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to register push subscription: %w", err)
	}
	sub.UserID = userID
	return nil
}

// UnregisterSubscription removes a push endpoint for the user.
func (s *Store) UnregisterSubscription(ctx context.Context, userID, endpoint string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2
	`, userID, endpoint)
	if err != nil {
		return fmt.Errorf("failed to unregister push subscription: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// ListSubscriptions returns all push endpoints registered by the user.
func (s *Store) ListSubscriptions(ctx context.Context, userID string) ([]*PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*PushSubscription
	for rows.Next() {
		sub := &PushSubscription{}
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan push subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// GetSubscription looks up a push endpoint by ID.
func (s *Store) GetSubscription(ctx context.Context, id string) (*PushSubscription, error) {
	sub := &PushSubscription{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions
		WHERE id = $1
	`, id).Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get push subscription: %w", err)
	}
	return sub, nil
}

// Enqueue journals a pending delivery and fills in the entry's ID and
// timestamps from the inserted row.
func (s *Store) Enqueue(ctx context.Context, entry *DeliveryLog) error {
	if err := entry.Payload.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}
	if entry.Status == "" {
		entry.Status = DeliveryStatusPending
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO notification_log (user_id, subscription_id, notification_type, payload, status)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, entry.UserID, entry.SubscriptionID, entry.Payload.Type, payload, entry.Status).
		Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// PendingRetries returns journal entries due for a delivery attempt,
// oldest first. Pending rows with no next_attempt_at are due
// immediately.
func (s *Store) PendingRetries(ctx context.Context, limit int) ([]*DeliveryLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(subscription_id::text, ''), notification_type,
			payload, status, attempts, next_attempt_at, COALESCE(last_error, ''),
			created_at, updated_at
		FROM notification_log
		WHERE status IN ('pending', 'retrying')
			AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending notifications: %w", err)
	}
	defer rows.Close()

	var entries []*DeliveryLog
	for rows.Next() {
		entry := &DeliveryLog{}
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.SubscriptionID, &entry.Type,
			&payload, &entry.Status, &entry.Attempts, &entry.NextAttemptAt, &entry.LastError,
			&entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification log entry: %w", err)
		}
		if err := json.Unmarshal(payload, &entry.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification payload %d: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkSuccess closes out a delivered entry.
func (s *Store) MarkSuccess(ctx context.Context, id int64) error {
	return s.updateStatus(ctx, `
		UPDATE notification_log
		SET status = 'success', attempts = attempts + 1, next_attempt_at = NULL,
			last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
}

// MarkRetry schedules another attempt after a failed delivery.
func (s *Store) MarkRetry(ctx context.Context, id int64, attempts int, nextAttempt time.Time, lastError string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notification_log
		SET status = 'retrying', attempts = $2, next_attempt_at = $3,
			last_error = $4, updated_at = NOW()
		WHERE id = $1
	`, id, attempts, nextAttempt, lastError)
	if err != nil {
		return fmt.Errorf("failed to mark notification for retry: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// MarkFailed gives up on an entry permanently.
func (s *Store) MarkFailed(ctx context.Context, id int64, lastError string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notification_log
		SET status = 'failed', attempts = attempts + 1, next_attempt_at = NULL,
			last_error = $2, updated_at = NOW()
		WHERE id = $1
	`, id, lastError)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) updateStatus(ctx context.Context, query string, id int64) error {
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}
