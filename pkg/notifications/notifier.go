package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/mnzioki/dukabook/pkg/async"
	"github.com/mnzioki/dukabook/pkg/observability"
)

// Notifier fans one notification out to every delivery channel a user
// has: the in-app WebSocket hub immediately, and a journaled push
// delivery per registered endpoint.
type Notifier struct {
	journal    Journal
	hub        *Hub
	dispatcher Dispatcher
	policy     *RetryPolicy
	logger     *observability.Logger
}

// NewNotifier wires the fan-out. hub may be nil when running without
// WebSocket support; a nil dispatcher falls back to LogDispatcher.
func NewNotifier(journal Journal, hub *Hub, dispatcher Dispatcher, logger *observability.Logger) *Notifier {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if dispatcher == nil {
		dispatcher = &LogDispatcher{Logger: logger}
	}
	return &Notifier{
		journal:    journal,
		hub:        hub,
		dispatcher: dispatcher,
		policy:     NewRetryPolicy(DefaultRetryConfig()),
		logger:     logger.WithField("component", "notifier"),
	}
}

// Notify journals one delivery per push subscription and broadcasts the
// event in-app. Push attempts happen asynchronously; a failed first
// attempt is left to the retry sweep.
func (n *Notifier) Notify(ctx context.Context, userID string, payload Payload) error {
	if err := payload.Validate(); err != nil {
		return err
	}

	if n.hub != nil {
		n.hub.Broadcast(userID, Event{Type: payload.Type, Entity: payload.Tag})
	}

	subs, err := n.journal.ListSubscriptions(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list push subscriptions: %w", err)
	}

	for _, sub := range subs {
		entry := &DeliveryLog{
			UserID:         userID,
			SubscriptionID: sub.ID,
			Type:           payload.Type,
			Payload:        payload,
			Status:         DeliveryStatusPending,
		}
		if err := n.journal.Enqueue(ctx, entry); err != nil {
			return err
		}
		n.deliverAsync(entry, sub)
	}
	return nil
}

// deliverAsync makes the first push attempt off the request path. The
// journal row stays pending on failure so the sweep picks it up with
// backoff.
func (n *Notifier) deliverAsync(entry *DeliveryLog, sub *PushSubscription) {
	payload := entry.Payload
	id := entry.ID
	async.SafeGo(context.Background(), 15*time.Second, "push delivery",
		func(ctx context.Context) error {
			if err := n.dispatcher.Deliver(ctx, sub, payload); err != nil {
				next := n.policy.NextRetryTime(1)
				if markErr := n.journal.MarkRetry(ctx, id, 1, next, err.Error()); markErr != nil {
					return markErr
				}
				return nil
			}
			return n.journal.MarkSuccess(ctx, id)
		})
}

// NotifyChange broadcasts an entity event in-app only. Entity CRUD is
// too chatty for push; push is reserved for the payload constructors.
func (n *Notifier) NotifyChange(userID, entity, action string, id any) {
	if n.hub != nil {
		n.hub.BroadcastChange(userID, entity, action, id)
	}
}
