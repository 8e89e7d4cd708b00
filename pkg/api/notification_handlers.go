package api

import (
	"net/http"

	"github.com/mnzioki/dukabook/pkg/httputil"
	"github.com/mnzioki/dukabook/pkg/middleware"
	"github.com/mnzioki/dukabook/pkg/notifications"
)

// listPushSubscriptions handles GET /api/v1/notifications/subscriptions.
func (s *Server) listPushSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.journal.ListSubscriptions(r.Context(), middleware.GetUserID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, subs)
}

// registerPushSubscription handles POST /api/v1/notifications/subscriptions.
// The body is the serialized PushSubscription object from the browser.
func (s *Server) registerPushSubscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var req pushSubscriptionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sub := &notifications.PushSubscription{
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := s.journal.RegisterSubscription(r.Context(), userID, sub); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteCreated(w, sub)
}

// unregisterPushSubscription handles DELETE /api/v1/notifications/subscriptions.
func (s *Server) unregisterPushSubscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var req unregisterPushRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Endpoint == "" {
		httputil.WriteValidationError(w, "endpoint is required")
		return
	}

	if err := s.journal.UnregisterSubscription(r.Context(), userID, req.Endpoint); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// handleWebSocket handles GET /api/v1/ws, upgrading to the in-app event
// stream.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		httputil.WriteServiceUnavailable(w, "event stream not available")
		return
	}
	s.hub.HandleWebSocket(middleware.GetUserID(r), w, r)
}
