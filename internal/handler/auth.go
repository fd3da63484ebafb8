package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/campus-clubs/internal/apperror"
	"github.com/sakif/campus-clubs/internal/metrics"
	"github.com/sakif/campus-clubs/internal/service"
)

// AuthHandler serves the /accounts routes.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister      → create an account
//   - HandleLogin         → check credentials, return a bearer token
//   - HandleProfile       → the caller's profile with clubs and interests
//   - HandleUpdateProfile → replace name/grade/major and interests
//
// Register and login outcomes are counted in metrics here rather than in the
// service, which knows nothing about Prometheus.
type AuthHandler struct {
	auth    *service.AuthService
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewAuthHandler(auth *service.AuthService, m *metrics.Metrics, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, metrics: m, logger: logger}
}

// HandleRegister creates an account.
//
// HTTP: POST /accounts/register
// REQUEST BODY: {"institutionId": "s1234", "password": "...", "name": "...", "grade": "...", "major": "..."}
// RESPONSE: 200 with the user (never the password hash)
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.metrics.AuthAttempt("register", metrics.OutcomeRejected)
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.auth.Register(r.Context(), in)
	if err != nil {
		h.metrics.AuthAttempt("register", outcomeOf(err))
		writeError(w, r, h.logger, err)
		return
	}

	h.metrics.AuthAttempt("register", metrics.OutcomeSuccess)
	writeJSON(w, http.StatusOK, user)
}

// HandleLogin exchanges credentials for a token.
//
// HTTP: POST /accounts/login
// REQUEST BODY: {"institutionId": "s1234", "password": "..."}
// RESPONSE: {"token": "<jwt>", "expiresAt": "...", "userId": "..."}
//
// The client sends the token back as "Authorization: Bearer <jwt>".
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.metrics.AuthAttempt("login", metrics.OutcomeRejected)
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.Login(r.Context(), in)
	if err != nil {
		h.metrics.AuthAttempt("login", outcomeOf(err))
		writeError(w, r, h.logger, err)
		return
	}

	h.metrics.AuthAttempt("login", metrics.OutcomeSuccess)
	writeJSON(w, http.StatusOK, result)
}

// HandleProfile returns the authenticated user's profile.
//
// HTTP: GET /accounts/me
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	profile, err := h.auth.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleUpdateProfile replaces the editable profile fields.
//
// HTTP: PUT /accounts/me
// REQUEST BODY: {"name": "...", "grade": "...", "major": "...", "interests": ["Chess", "Music"]}
// RESPONSE: 204 No Content
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var in service.ProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.auth.UpdateProfile(r.Context(), userID, in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// outcomeOf buckets an auth error for the auth_attempts_total metric.
func outcomeOf(err error) string {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return metrics.OutcomeFailure
	}
	if errors.Is(err, apperror.ErrUnauthenticated) {
		return metrics.OutcomeFailure
	}
	return metrics.OutcomeRejected
}
