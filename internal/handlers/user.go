package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	"github.com/sfm-market/storefront/internal/services"
	"github.com/sfm-market/storefront/internal/session"
	"github.com/sfm-market/storefront/types"
)

// UserHandler provides profile and account management endpoints.
type UserHandler struct {
	userService *services.UserService
	sessions    *session.CookieStore
	log         logr.Logger
}

func NewUserHandler(userService *services.UserService, sessions *session.CookieStore, log logr.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		sessions:    sessions,
		log:         log.WithName("users"),
	}
}

// UserRouter registers profile routes for every signed-in user and account
// management routes for admins.
func UserRouter(r chi.Router, userService *services.UserService, sessions *session.CookieStore, log logr.Logger) {
	handler := NewUserHandler(userService, sessions, log)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)
		r.Get("/me", handler.GetProfile)
		r.Put("/me", handler.UpdateProfile)
		r.Post("/me/avatar", handler.UploadAvatar)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireRole(types.RoleAdmin))
		r.Get("/", handler.ListUsers)
		r.Put("/{userID}", handler.UpdateUser)
		r.Delete("/{userID}", handler.DeleteUser)
	})
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Profile(r.Context(), session.FromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err, "user not found", "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile saves the profile and re-issues the session so the new name
// and avatar show up in it.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req services.ProfileInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), session.FromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, err, "user not found", "failed to update profile")
		return
	}
	establishSession(w, h.sessions, h.log, user, "profile")
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(w, r, "file", services.MaxAvatarBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.UploadAvatar(r.Context(), session.FromContext(r.Context()), upload)
	if err != nil {
		writeServiceError(w, err, "user not found", "failed to upload avatar")
		return
	}
	establishSession(w, h.sessions, h.log, user, "profile")
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.userService.List(r.Context(), session.FromContext(r.Context()), offset, limit)
	if err != nil {
		writeServiceError(w, err, "user not found", "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.User]{Items: items, Page: page, Limit: limit, Total: total})
}

// UpdateUser changes the role and/or status of another account. The
// target's existing session keeps its old role until it expires.
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req services.AdminUserInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.AdminUpdate(r.Context(), session.FromContext(r.Context()), chi.URLParam(r, "userID"), req)
	if err != nil {
		writeServiceError(w, err, "user not found", "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.userService.Delete(r.Context(), session.FromContext(r.Context()), chi.URLParam(r, "userID")); err != nil {
		writeServiceError(w, err, "user not found", "failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
