package api

import (
	"net/http"
	"time"

	"github.com/mnzioki/dukabook/pkg/httputil"
	"github.com/mnzioki/dukabook/pkg/middleware"
)

// register handles POST /api/v1/auth/register.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := s.users.Register(r.Context(), req.Email, req.Password, req.BusinessName)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	// New accounts start on the free plan.
	if s.subs != nil {
		if _, err := s.subs.Create(r.Context(), user.ID, "free", "registration"); err != nil {
			s.logger.WithError(err).WithField("user_id", user.ID).Error("Failed to create initial subscription")
		}
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, authResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(s.tokens.TTL()),
		User:      user,
	})
}

// login handles POST /api/v1/auth/login.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := s.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, authResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(s.tokens.TTL()),
		User:      user,
	})
}

// me handles GET /api/v1/auth/me.
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Get(r.Context(), middleware.GetUserID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// changePassword handles POST /api/v1/auth/password.
func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	err := s.users.ChangePassword(r.Context(), middleware.GetUserID(r), req.CurrentPassword, req.NewPassword)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "password changed", nil)
}
