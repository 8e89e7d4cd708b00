// Package subscriptions manages each user's plan membership and the
// audit trail of every plan or status change.
//
// # Overview
//
// A user holds exactly one user_subscription_tracking row: current
// plan, status and billing period. Lifecycle operations (create,
// change plan, cancel, reactivate) update the row and append a
// subscription_audit_log entry carrying the old and new values, the
// actor and a free-form reason. A database trigger records the same
// transitions for writes that bypass this package.
//
// # Related Packages
//
//   - pkg/plans: the tier definitions subscriptions point at
//   - pkg/usage: limits seeded from the subscribed plan
package subscriptions
