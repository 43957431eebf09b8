// Package authz holds the authorization decisions made before any mutation:
// authentication, role membership, and resource ownership.
package authz

import (
	"errors"
	"slices"

	"github.com/sfm-market/storefront/internal/session"
	"github.com/sfm-market/storefront/types"
)

var (
	// ErrUnauthenticated is returned when a session is required but absent.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the session may not perform the action.
	ErrForbidden = errors.New("forbidden")
)

// RequireAuthenticated returns sess, or ErrUnauthenticated when it is nil.
func RequireAuthenticated(sess *session.Session) (*session.Session, error) {
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	return sess, nil
}

// RequireRole fails with ErrUnauthenticated for a nil session and with
// ErrForbidden when the session role is not in allowed.
func RequireRole(sess *session.Session, allowed ...types.Role) error {
	if sess == nil {
		return ErrUnauthenticated
	}
	if !slices.Contains(allowed, sess.Role) {
		return ErrForbidden
	}
	return nil
}
