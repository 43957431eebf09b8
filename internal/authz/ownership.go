package authz

import (
	"context"

	"github.com/sfm-market/storefront/internal/metrics"
	"github.com/sfm-market/storefront/internal/session"
	"github.com/sfm-market/storefront/types"
)

// CanMutate reports whether sess may modify a resource owned by ownerID.
// Admins may modify anything; everyone else only what they own.
func CanMutate(sess *session.Session, ownerID string) bool {
	if sess == nil {
		return false
	}
	if sess.Role == types.RoleAdmin {
		return true
	}
	return ownerID != "" && ownerID == sess.SubjectID
}

// Policy names the owner field of a resource type.
type Policy[T any] struct {
	// Resource labels the resource type in metrics.
	Resource string
	// OwnerOf returns the subject id that owns res.
	OwnerOf func(res T) string
}

// CanMutate applies the ownership rule to res.
func (p Policy[T]) CanMutate(sess *session.Session, res T) bool {
	return CanMutate(sess, p.OwnerOf(res))
}

// GuardMutation runs the read-then-authorize-then-write sequence for a
// single resource: the session is required, the resource is fetched, the
// ownership rule is applied, and only then is write called. Fetch errors are
// returned unchanged, so a missing resource is reported before a forbidden
// one. On success the resource as it was before the write is returned.
//
// Nothing locks the resource between fetch and write.
func GuardMutation[T any](
	ctx context.Context,
	sess *session.Session,
	policy Policy[T],
	fetch func(ctx context.Context) (T, error),
	write func(ctx context.Context, current T) error,
) (T, error) {
	var zero T
	if _, err := RequireAuthenticated(sess); err != nil {
		record(policy.Resource, "unauthenticated")
		return zero, err
	}

	current, err := fetch(ctx)
	if err != nil {
		record(policy.Resource, "fetch_failed")
		return zero, err
	}

	if !policy.CanMutate(sess, current) {
		record(policy.Resource, "forbidden")
		return zero, ErrForbidden
	}

	if err := write(ctx, current); err != nil {
		return zero, err
	}
	record(policy.Resource, "allowed")
	return current, nil
}

func record(resource, outcome string) {
	metrics.AuthDecisionsTotal.WithLabelValues(resource, outcome).Inc()
}
