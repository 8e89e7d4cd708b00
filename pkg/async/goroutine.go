package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mnzioki/dukabook/pkg/observability"
)

// SafeGo runs fn on its own goroutine with a deadline and panic
// recovery. Failures are logged through the context's logger rather
// than surfaced, so callers use this only for work the request does
// not depend on.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		logger := observability.FromContext(ctx).WithField("task", taskName)
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("panic", fmt.Sprintf("%v", r)).Error("background task panicked")
				logger.Debug(string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).Warn("background task failed")
		}
	}()
}

// Batch runs fn over items with at most workers goroutines in
// flight. Each invocation gets its own timeout and panic recovery.
// The returned slice holds every failure; ordering is not meaningful.
// A canceled ctx stops new work from starting but lets in-flight
// invocations finish.
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers < 1 {
		workers = 1
	}

	var (
		sem  = make(chan struct{}, workers)
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			record(err)
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					record(fmt.Errorf("%s panicked: %v", taskName, r))
				}
			}()

			taskCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			if err := fn(taskCtx, item); err != nil {
				record(err)
			}
		}(item)
	}

	wg.Wait()
	return errs
}
