package observability

import "runtime/debug"

// RecoverPanic logs a recovered panic with its stack trace and swallows
// it. Meant for defer at the top of scheduled jobs and other goroutines
// where one bad run must not take the process down:
//
//	defer observability.RecoverPanic(logger, "usage_rollover")
func RecoverPanic(logger *Logger, task string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("task", task).
			WithField("stack", string(debug.Stack())).
			Error("panic recovered")
	}
}
