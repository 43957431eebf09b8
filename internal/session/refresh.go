package session

import "net/http"

// Renew re-signs a still valid session cookie with a fresh TTL, sliding the
// expiry forward. It reports whether the cookie was replaced. Missing or
// unverifiable cookies are left untouched. The session placed by Load is
// reused when present.
func (s *CookieStore) Renew(w http.ResponseWriter, r *http.Request) bool {
	sess, ok := loaded(r.Context())
	if !ok {
		sess = s.Read(r)
	}
	if sess == nil {
		return false
	}
	if _, err := s.Establish(w, sess.Claims); err != nil {
		s.log.Error(err, "failed to renew session", "subject", sess.SubjectID)
		return false
	}
	return true
}

// Refresh is middleware that renews the session on safe requests. It never
// rejects a request.
func (s *CookieStore) Refresh(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			s.Renew(w, r)
		}
		next.ServeHTTP(w, r)
	})
}
