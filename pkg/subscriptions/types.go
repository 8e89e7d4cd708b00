package subscriptions

import (
	"context"
	"time"

	"github.com/mnzioki/dukabook/pkg/plans"
)

// Status represents the state of a user's subscription.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Subscription is a user_subscription_tracking row.
type Subscription struct {
	ID                 int64      `json:"id"`
	UserID             string     `json:"user_id"`
	Plan               plans.Tier `json:"plan"`
	Status             Status     `json:"status"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// AuditEntry is one subscription_audit_log row recording a plan or
// status transition.
type AuditEntry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	OldPlan   string    `json:"old_plan,omitempty"`
	NewPlan   string    `json:"new_plan,omitempty"`
	OldStatus string    `json:"old_status,omitempty"`
	NewStatus string    `json:"new_status,omitempty"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Service manages subscription lifecycle.
type Service interface {
	Create(ctx context.Context, userID string, tier plans.Tier, actor string) (*Subscription, error)
	Get(ctx context.Context, userID string) (*Subscription, error)
	ChangePlan(ctx context.Context, userID string, tier plans.Tier, actor, reason string) (*Subscription, error)
	Cancel(ctx context.Context, userID, actor, reason string) error
	Reactivate(ctx context.Context, userID, actor string) (*Subscription, error)
	AuditTrail(ctx context.Context, userID string, limit int) ([]AuditEntry, error)
}
