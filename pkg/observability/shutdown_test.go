package observability

import (
	"bytes"
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testShutdownLogger() *Logger {
	return NewLogger(ErrorLevel, &bytes.Buffer{})
}

func TestShutdownManagerDefaultTimeout(t *testing.T) {
	sm := NewShutdownManager(testShutdownLogger(), nil, 0)
	assert.Equal(t, 30*time.Second, sm.timeout)
}

func TestWaitForShutdownRunsStepsInOrder(t *testing.T) {
	sm := NewShutdownManager(testShutdownLogger(), nil, 5*time.Second)

	var order []int
	sm.RegisterShutdownFunc(func(context.Context) error {
		order = append(order, 1)
		return nil
	})
	sm.RegisterShutdownFunc(func(context.Context) error {
		order = append(order, 2)
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- sm.WaitForShutdown() }()

	// Let WaitForShutdown install its signal handler before firing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown never completed")
	}

	assert.Equal(t, []int{1, 2}, order)
}

func TestWaitForShutdownCollectsStepFailures(t *testing.T) {
	sm := NewShutdownManager(testShutdownLogger(), nil, 5*time.Second)

	stepErr := errors.New("redis close failed")
	var secondRan bool
	sm.RegisterShutdownFunc(func(context.Context) error { return stepErr })
	sm.RegisterShutdownFunc(func(context.Context) error {
		secondRan = true
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- sm.WaitForShutdown() }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, stepErr)
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown never completed")
	}

	// A failed step must not stop later cleanup.
	assert.True(t, secondRan)
}

func TestRecoverPanicSwallowsPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)

	func() {
		defer RecoverPanic(logger, "usage_rollover")
		panic("bad state")
	}()

	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "usage_rollover")
}
