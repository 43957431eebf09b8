package session

import "context"

type contextKey struct{}

// NewContext returns a copy of ctx carrying sess. A nil sess records that the
// caller was checked and is anonymous.
func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the session stored in ctx, or nil for anonymous callers.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(contextKey{}).(*Session)
	return sess
}

// loaded reports the stored session and whether Load already ran for ctx.
func loaded(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(*Session)
	return sess, ok
}
