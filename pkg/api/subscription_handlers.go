package api

import (
	"errors"
	"net/http"

	"github.com/mnzioki/dukabook/pkg/httputil"
	"github.com/mnzioki/dukabook/pkg/ledger"
	"github.com/mnzioki/dukabook/pkg/middleware"
	"github.com/mnzioki/dukabook/pkg/plans"
)

// getSubscription handles GET /api/v1/subscription. Accounts that
// predate subscription tracking are backfilled onto the free plan.
func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	sub, err := s.subs.Get(r.Context(), userID)
	if errors.Is(err, ledger.ErrNotFound) {
		sub, err = s.subs.Create(r.Context(), userID, plans.TierFree, "backfill")
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, sub)
}

// changePlan handles PUT /api/v1/subscription.
func (s *Server) changePlan(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var req changePlanRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	tier := plans.Tier(req.Plan)
	if !plans.Valid(tier) {
		httputil.WriteValidationError(w, "unknown plan: "+req.Plan)
		return
	}

	sub, err := s.subs.ChangePlan(r.Context(), userID, tier, userID, req.Reason)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, sub)
}

// cancelSubscription handles DELETE /api/v1/subscription.
func (s *Server) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var req cancelSubscriptionRequest
	// The body is optional; a bare DELETE cancels without a reason.
	httputil.ParseJSON(r, &req)

	if err := s.subs.Cancel(r.Context(), userID, userID, req.Reason); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// reactivateSubscription handles POST /api/v1/subscription/reactivate.
func (s *Server) reactivateSubscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	sub, err := s.subs.Reactivate(r.Context(), userID, userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, sub)
}

// subscriptionHistory handles GET /api/v1/subscription/history.
func (s *Server) subscriptionHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := httputil.ParseQueryInt(r, "limit", 50)
	entries, err := s.subs.AuditTrail(r.Context(), middleware.GetUserID(r), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, entries)
}
