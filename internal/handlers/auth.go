package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	"github.com/sfm-market/storefront/internal/metrics"
	"github.com/sfm-market/storefront/internal/services"
	"github.com/sfm-market/storefront/internal/session"
	"github.com/sfm-market/storefront/types"
)

// AuthHandler provides cookie session endpoints.
type AuthHandler struct {
	userService *services.UserService
	sessions    *session.CookieStore
	log         logr.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, sessions *session.CookieStore, log logr.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		sessions:    sessions,
		log:         log.WithName("auth"),
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, userService *services.UserService, sessions *session.CookieStore, log logr.Logger) {
	handler := NewAuthHandler(userService, sessions, log)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
	r.Get("/me", handler.Me)
}

// Register creates a USER account and signs it in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "user not found", "failed to create user")
		return
	}

	if !h.establish(w, user, "register") {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, services.ErrAccountInactive):
			writeError(w, http.StatusForbidden, err.Error())
		default:
			h.log.Error(err, "login failed")
			writeError(w, http.StatusInternalServerError, "failed to authenticate")
		}
		return
	}

	if !h.establish(w, user, "login") {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Logout clears the session cookie. It succeeds for anonymous callers too.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the caller's session, or null when anonymous.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (h *AuthHandler) establish(w http.ResponseWriter, user types.User, reason string) bool {
	return establishSession(w, h.sessions, h.log, user, reason)
}

func establishSession(w http.ResponseWriter, sessions *session.CookieStore, log logr.Logger, user types.User, reason string) bool {
	if _, err := sessions.Establish(w, services.Claims(user)); err != nil {
		log.Error(err, "failed to establish session", "subject", user.ID, "reason", reason)
		return false
	}
	metrics.SessionsIssuedTotal.WithLabelValues(reason).Inc()
	return true
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is the client-visible view of a session.
type SessionResponse struct {
	SubjectID   string     `json:"subject_id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Role        types.Role `json:"role"`
	AvatarRef   string     `json:"avatar,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

func newSessionResponse(sess *session.Session) SessionResponse {
	return SessionResponse{
		SubjectID:   sess.SubjectID,
		Email:       sess.Email,
		DisplayName: sess.DisplayName,
		Role:        sess.Role,
		AvatarRef:   sess.AvatarRef,
		ExpiresAt:   sess.ExpiresAt,
	}
}
