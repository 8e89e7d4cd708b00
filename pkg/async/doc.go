// Package async wraps the two goroutine patterns the background
// paths rely on.
//
// SafeGo is fire-and-forget with a deadline and panic recovery, used
// for work the request should not wait on, such as bumping usage
// counters after a write or handing a push notification to the
// dispatcher:
//
//	async.SafeGo(ctx, 5*time.Second, "increment feature usage", func(ctx context.Context) error {
//		return service.Increment(ctx, userID, feature, 1)
//	})
//
// Batch fans a slice out over a bounded number of goroutines and
// collects every failure, used by the notification retry sweep:
//
//	errs := async.Batch(ctx, entries, workers, "notification dispatch", 30*time.Second, attempt)
package async
