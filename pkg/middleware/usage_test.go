package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnzioki/dukabook/pkg/contextkeys"
	"github.com/mnzioki/dukabook/pkg/usage"
)

type fakeUsageService struct {
	mu         sync.Mutex
	checkErr   error
	increments []string
}

func (f *fakeUsageService) Increment(ctx context.Context, userID, feature string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.increments = append(f.increments, userID+"/"+feature)
	return nil
}

func (f *fakeUsageService) CheckLimit(ctx context.Context, userID, feature string) error {
	return f.checkErr
}

func (f *fakeUsageService) CurrentStats(ctx context.Context, userID string) ([]usage.FeatureStats, error) {
	return nil, nil
}

func (f *fakeUsageService) SeedPeriod(ctx context.Context, userID string, periodStart time.Time) error {
	return nil
}

func (f *fakeUsageService) RolloverAll(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeUsageService) MarkSynced(ctx context.Context, userID string) error { return nil }

func (f *fakeUsageService) incrementCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.increments)
}

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", nil)
	if userID != "" {
		req = req.WithContext(contextkeys.WithUserID(req.Context(), userID))
	}
	return req
}

func TestEnforceLimit_UnderLimit(t *testing.T) {
	svc := &fakeUsageService{}
	mw := NewUsageLimitMiddleware(svc)

	called := false
	handler := mw.EnforceLimit("sales")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs("user-1"))

	assert.True(t, called)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestEnforceLimit_Exceeded(t *testing.T) {
	svc := &fakeUsageService{checkErr: &usage.LimitExceededError{
		Feature: "sales",
		Current: 30,
		Limit:   30,
	}}
	mw := NewUsageLimitMiddleware(svc)

	handler := mw.EnforceLimit("sales")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs("user-1"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"limit_exceeded","feature":"sales","current":30,"limit":30}`, rec.Body.String())
}

func TestEnforceLimit_CounterErrorFailsOpen(t *testing.T) {
	svc := &fakeUsageService{checkErr: errors.New("connection refused")}
	mw := NewUsageLimitMiddleware(svc)

	called := false
	handler := mw.EnforceLimit("sales")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs("user-1"))

	assert.True(t, called)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestEnforceLimit_AnonymousPassesThrough(t *testing.T) {
	svc := &fakeUsageService{checkErr: &usage.LimitExceededError{Feature: "sales"}}
	mw := NewUsageLimitMiddleware(svc)

	called := false
	handler := mw.EnforceLimit("sales")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(""))

	assert.True(t, called)
}

func TestIncrementUsage(t *testing.T) {
	svc := &fakeUsageService{}

	IncrementUsage(context.Background(), svc, "user-1", "expenses")

	require.Eventually(t, func() bool {
		return svc.incrementCount() == 1
	}, time.Second, 10*time.Millisecond)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Equal(t, []string{"user-1/expenses"}, svc.increments)
}
