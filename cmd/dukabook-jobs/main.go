package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mnzioki/dukabook/pkg/config"
	"github.com/mnzioki/dukabook/pkg/notifications"
	"github.com/mnzioki/dukabook/pkg/observability"
	"github.com/mnzioki/dukabook/pkg/storage/postgres"
	"github.com/mnzioki/dukabook/pkg/subscriptions"
	"github.com/mnzioki/dukabook/pkg/usage"
)

var (
	rolloverSchedule  = flag.String("rollover-schedule", "30 0 1 * *", "Cron schedule for monthly usage rollover (default: 1st day 00:30 UTC)")
	overdueSchedule   = flag.String("overdue-schedule", "15 1 * * *", "Cron schedule for the overdue invoice sweep (default: 01:15 UTC)")
	retentionSchedule = flag.String("retention-schedule", "45 1 * * *", "Cron schedule for audit log retention (default: 01:45 UTC)")
	retrySchedule     = flag.String("retry-schedule", "*/5 * * * *", "Cron schedule for the notification retry sweep (default: every 5 minutes)")
	auditRetention    = flag.Duration("audit-retention", 365*24*time.Hour, "How long subscription audit entries are kept")
	runOnce           = flag.Bool("run-once", false, "Run every job once and exit (for testing)")
)

func main() {
	flag.Parse()

	logger := observability.NewLogger(
		observability.ParseLevel(os.Getenv("DUKABOOK_LOG_LEVEL")), os.Stdout)

	store, err := postgres.NewStore(config.LoadStorageConfig(), logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to storage")
		os.Exit(1)
	}
	defer store.Close()

	jobs := &jobRunner{
		store:     store,
		usage:     usage.NewPostgresService(store.DB()),
		subs:      subscriptions.NewPostgresService(store.DB()),
		retention: *auditRetention,
		logger:    logger,
	}

	journal := notifications.NewStore(store.DB())
	dispatcher := &notifications.LogDispatcher{Logger: logger}
	jobs.notifier = notifications.NewNotifier(journal, notifications.NewHub(logger), dispatcher, logger)
	jobs.retryWorker = notifications.NewRetryWorker(journal, dispatcher, nil, logger)

	if *runOnce {
		ctx := context.Background()
		jobs.rollover(ctx)
		jobs.sweepOverdueInvoices(ctx)
		jobs.pruneAudit(ctx)
		jobs.retrySweep(ctx)
		return
	}

	c := cron.New()
	schedule := func(name, spec string, fn func(context.Context)) {
		if _, err := c.AddFunc(spec, func() {
			defer observability.RecoverPanic(logger, name)
			fn(context.Background())
		}); err != nil {
			logger.WithError(err).WithField("job", name).Error("Failed to schedule job")
			os.Exit(1)
		}
		logger.WithField("job", name).WithField("schedule", spec).Info("Job scheduled")
	}
	schedule("usage_rollover", *rolloverSchedule, jobs.rollover)
	schedule("overdue_invoices", *overdueSchedule, jobs.sweepOverdueInvoices)
	schedule("audit_retention", *retentionSchedule, jobs.pruneAudit)
	schedule("notification_retry", *retrySchedule, jobs.retrySweep)

	c.Start()
	logger.Info("DukaBook jobs worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down")
	<-c.Stop().Done()
}

type jobRunner struct {
	store       *postgres.Store
	usage       *usage.PostgresService
	subs        *subscriptions.PostgresService
	notifier    *notifications.Notifier
	retryWorker *notifications.RetryWorker
	retention   time.Duration
	logger      *observability.Logger
}

// rollover seeds zeroed usage counters for the new billing period for
// every subscribed user.
func (j *jobRunner) rollover(ctx context.Context) {
	seeded, err := j.usage.RolloverAll(ctx)
	if err != nil {
		j.logger.WithError(err).Error("Usage rollover failed")
		return
	}
	j.logger.WithField("users", seeded).Info("Usage rollover complete")
}

// sweepOverdueInvoices flips sent invoices past their due date to
// overdue and notifies each owner.
func (j *jobRunner) sweepOverdueInvoices(ctx context.Context) {
	flagged, err := j.store.MarkOverdueInvoices(ctx, time.Now().UTC())
	if err != nil {
		j.logger.WithError(err).Error("Overdue invoice sweep failed")
		return
	}
	for _, inv := range flagged {
		payload := notifications.NewInvoiceOverdue(inv.InvoiceNumber, inv.ID)
		if err := j.notifier.Notify(ctx, inv.UserID, payload); err != nil {
			j.logger.WithError(err).WithField("invoice_id", inv.ID).Warn("Overdue notification failed")
		}
	}
	if len(flagged) > 0 {
		j.logger.WithField("invoices", len(flagged)).Info("Overdue invoice sweep complete")
	}
}

// pruneAudit deletes subscription audit entries past the retention
// window.
func (j *jobRunner) pruneAudit(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.retention)
	removed, err := j.subs.PruneAuditBefore(ctx, cutoff)
	if err != nil {
		j.logger.WithError(err).Error("Audit retention cleanup failed")
		return
	}
	if removed > 0 {
		j.logger.WithField("removed", removed).Info(fmt.Sprintf("Pruned audit entries older than %s", cutoff.Format("2006-01-02")))
	}
}

// retrySweep redelivers push notifications stuck in the retry queue.
func (j *jobRunner) retrySweep(ctx context.Context) {
	if err := j.retryWorker.Sweep(ctx); err != nil {
		j.logger.WithError(err).Warn("Notification retry sweep failed")
	}
}
