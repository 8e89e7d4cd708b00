package api

import (
	"net/http"
	"time"

	"github.com/mnzioki/dukabook/pkg/httputil"
	"github.com/mnzioki/dukabook/pkg/middleware"
	"github.com/mnzioki/dukabook/pkg/plans"
	"github.com/mnzioki/dukabook/pkg/storage"
	"github.com/mnzioki/dukabook/pkg/usage"
)

// currentUsage handles GET /api/v1/usage.
func (s *Server) currentUsage(w http.ResponseWriter, r *http.Request) {
	stats, err := s.usage.CurrentStats(r.Context(), middleware.GetUserID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}

// usageStatsResponse bundles the month's counters with the plan and the
// month-to-date sales aggregate for the dashboard.
type usageStatsResponse struct {
	Plan        plans.Plan           `json:"plan"`
	PeriodStart time.Time            `json:"period_start"`
	Features    []usage.FeatureStats `json:"features"`
	Sales       storage.SalesTotals  `json:"sales"`
}

// usageStats handles GET /api/v1/usage/stats.
func (s *Server) usageStats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	stats, err := s.usage.CurrentStats(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	tier := plans.TierFree
	if s.subs != nil {
		if sub, err := s.subs.Get(r.Context(), userID); err == nil {
			tier = sub.Plan
		}
	}

	now := time.Now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	totals, err := s.store.SalesTotals(r.Context(), userID, periodStart, periodStart.AddDate(0, 1, 0))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, usageStatsResponse{
		Plan:        plans.Get(tier),
		PeriodStart: periodStart,
		Features:    stats,
		Sales:       totals,
	})
}
