package session

import (
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/sfm-market/storefront/internal/metrics"
)

// CookieOptions controls the session cookie attributes.
type CookieOptions struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// CookieStore binds a Codec to a single HTTP cookie.
type CookieStore struct {
	codec  *Codec
	name   string
	ttl    time.Duration
	secure bool
	log    logr.Logger
}

// NewCookieStore constructs a CookieStore writing tokens from codec.
func NewCookieStore(codec *Codec, opts CookieOptions, log logr.Logger) *CookieStore {
	return &CookieStore{
		codec:  codec,
		name:   opts.Name,
		ttl:    opts.TTL,
		secure: opts.Secure,
		log:    log.WithName("session"),
	}
}

// Name returns the cookie name.
func (s *CookieStore) Name() string {
	return s.name
}

// Establish signs claims and writes them as the session cookie. The cookie
// expires at the same instant as the token.
func (s *CookieStore) Establish(w http.ResponseWriter, claims Claims) (Session, error) {
	token, sess, err := s.codec.Sign(claims, s.ttl)
	if err != nil {
		return Session{}, err
	}
	cookie := s.baseCookie()
	cookie.Value = token
	cookie.Expires = sess.ExpiresAt
	cookie.MaxAge = int(sess.ExpiresAt.Sub(sess.IssuedAt) / time.Second)
	http.SetCookie(w, cookie)
	return sess, nil
}

// Read returns the verified session carried by r, or nil for an anonymous
// caller. A token that fails verification is treated as no session at all.
func (s *CookieStore) Read(r *http.Request) *Session {
	cookie, err := r.Cookie(s.name)
	if err != nil || cookie.Value == "" {
		return nil
	}
	sess, err := s.codec.Verify(cookie.Value)
	if err != nil {
		kind := Kind(err)
		metrics.SessionVerifyFailuresTotal.WithLabelValues(kind).Inc()
		s.log.V(1).Info("ignoring session cookie", "reason", kind)
		return nil
	}
	return &sess
}

// Destroy overwrites the session cookie with an already expired one.
func (s *CookieStore) Destroy(w http.ResponseWriter) {
	cookie := s.baseCookie()
	cookie.Expires = time.Unix(0, 0)
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
}

// Load is middleware that reads the session once and stores it in the
// request context for handlers and guards. Anonymous requests are stored as
// a nil session so later middleware does not verify the cookie again.
func (s *CookieStore) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), s.Read(r))))
	})
}

func (s *CookieStore) baseCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.name,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
