// Package usage tracks per-user, per-feature counters against monthly
// plan limits.
//
// # Overview
//
// Each user holds one feature_usage row per (feature, calendar month).
// Increment upserts the row, so the first write in a month creates it
// and every later write bumps current_count. The stored
// usage_percentage is recomputed on every write as
// round(current_count / limit_count * 100, 2), or 0 when the plan is
// unlimited (limit_count = 0).
//
// CheckLimit is consulted by pkg/middleware before gated writes:
//
//	if err := svc.CheckLimit(ctx, userID, plans.FeatureInvoices); err != nil {
//		if usage.IsLimitExceeded(err) {
//			// respond 403 with the limit_exceeded body
//		}
//	}
//
// A cron job calls RolloverAll on the first of each month to seed fresh
// period rows from the user's current plan.
//
// # Related Packages
//
//   - pkg/plans: the per-tier limits seeded into limit_count
//   - pkg/middleware: request gating and async increments
package usage
