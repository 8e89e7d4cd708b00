package notifications

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mnzioki/dukabook/pkg/async"
	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/observability"
)

// Dispatcher sends a payload to one push endpoint. The production
// transport lives behind this interface; tests and deployments without
// a push gateway use LogDispatcher.
type Dispatcher interface {
	Deliver(ctx context.Context, sub *PushSubscription, payload Payload) error
}

// LogDispatcher records deliveries in the log instead of sending them.
type LogDispatcher struct {
	Logger *observability.Logger
}

func (d *LogDispatcher) Deliver(_ context.Context, sub *PushSubscription, payload Payload) error {
	if d.Logger != nil {
		d.Logger.WithFields(map[string]interface{}{
			"endpoint": sub.Endpoint,
			"type":     payload.Type,
			"tag":      payload.Tag,
		}).Info("Push notification dispatched")
	}
	return nil
}

// RetryConfig configures delivery retry behavior.
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      30 * time.Second,
		MaxDelay:          1 * time.Hour,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy implements exponential backoff for delivery attempts.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy, filling invalid fields with
// defaults.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	defaults := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = defaults.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = defaults.BackoffMultiplier
	}
	return &RetryPolicy{config: config}
}

// ShouldRetry reports whether a failed delivery gets another attempt.
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil {
		return false
	}
	return attempts < p.config.MaxAttempts
}

// NextRetryDelay calculates the backoff before the next attempt:
// initialDelay * multiplier^(attempts-1), capped at MaxDelay.
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

// NextRetryTime calculates when the next attempt should happen.
func (p *RetryPolicy) NextRetryTime(attempts int) time.Time {
	return time.Now().Add(p.NextRetryDelay(attempts))
}

// RetryWorker sweeps notification_log for due deliveries and dispatches
// them through a worker pool.
type RetryWorker struct {
	journal    Journal
	dispatcher Dispatcher
	policy     *RetryPolicy
	logger     *observability.Logger
	batchSize  int
	workers    int
	stopCh     chan struct{}
	ticker     *time.Ticker
}

// NewRetryWorker creates a retry worker. A nil dispatcher falls back to
// LogDispatcher.
func NewRetryWorker(journal Journal, dispatcher Dispatcher, policy *RetryPolicy, logger *observability.Logger) *RetryWorker {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if dispatcher == nil {
		dispatcher = &LogDispatcher{Logger: logger}
	}
	if policy == nil {
		policy = NewRetryPolicy(DefaultRetryConfig())
	}
	return &RetryWorker{
		journal:    journal,
		dispatcher: dispatcher,
		policy:     policy,
		logger:     logger.WithField("component", "notification_retry"),
		batchSize:  100,
		workers:    4,
		stopCh:     make(chan struct{}),
	}
}

// Start sweeps on a fixed interval until Stop or context cancellation.
func (w *RetryWorker) Start(ctx context.Context, interval time.Duration) {
	w.ticker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-w.ticker.C:
				if err := w.Sweep(ctx); err != nil {
					w.logger.WithError(err).Warn("Notification retry sweep failed")
				}
			}
		}
	}()
}

// Stop halts the sweep loop.
func (w *RetryWorker) Stop() {
	if w.ticker != nil {
		w.ticker.Stop()
	}
	close(w.stopCh)
}

// Sweep dispatches one batch of due deliveries. The jobs binary calls
// this directly from its cron schedule.
func (w *RetryWorker) Sweep(ctx context.Context) error {
	entries, err := w.journal.PendingRetries(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("failed to load pending notifications: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	errs := async.Batch(ctx, entries, w.workers, "notification dispatch", 30*time.Second,
		func(ctx context.Context, entry *DeliveryLog) error {
			return w.attempt(ctx, entry)
		})
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d notification dispatches failed: %w", len(errs), len(entries), errs[0])
	}

	w.logger.WithField("dispatched", len(entries)).Debug("Notification retry sweep complete")
	return nil
}

// attempt delivers one journal entry and records the outcome.
func (w *RetryWorker) attempt(ctx context.Context, entry *DeliveryLog) error {
	if entry.SubscriptionID == "" {
		// In-app only entry; nothing to push.
		return w.journal.MarkSuccess(ctx, entry.ID)
	}

	sub, err := w.journal.GetSubscription(ctx, entry.SubscriptionID)
	if errors.Is(err, ledger.ErrNotFound) {
		// The endpoint was unregistered while the entry waited.
		return w.journal.MarkFailed(ctx, entry.ID, "push subscription no longer exists")
	}
	if err != nil {
		return fmt.Errorf("failed to load subscription for notification %d: %w", entry.ID, err)
	}

	attempts := entry.Attempts + 1
	deliverErr := w.dispatcher.Deliver(ctx, sub, entry.Payload)
	if deliverErr == nil {
		return w.journal.MarkSuccess(ctx, entry.ID)
	}

	if w.policy.ShouldRetry(attempts, deliverErr) {
		next := w.policy.NextRetryTime(attempts)
		if err := w.journal.MarkRetry(ctx, entry.ID, attempts, next, deliverErr.Error()); err != nil {
			return err
		}
		return nil
	}
	return w.journal.MarkFailed(ctx, entry.ID, fmt.Sprintf("max retries exceeded: %v", deliverErr))
}
