package handlers

import (
	"errors"
	"net/http"

	"github.com/sfm-market/storefront/internal/authz"
	"github.com/sfm-market/storefront/internal/session"
	"github.com/sfm-market/storefront/types"
)

// RequireAuth rejects anonymous requests with 401 before the route runs.
// It expects session.CookieStore.Load earlier in the chain.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := authz.RequireAuthenticated(session.FromContext(r.Context())); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects anonymous requests with 401 and sessions outside
// allowed with 403.
func RequireRole(allowed ...types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := authz.RequireRole(session.FromContext(r.Context()), allowed...)
			switch {
			case errors.Is(err, authz.ErrUnauthenticated):
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			case err != nil:
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
