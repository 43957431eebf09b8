package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sfm-market/storefront/internal/metrics"
)

const testCookieName = "session"

func newTestStore(t *testing.T, ttl time.Duration) (*CookieStore, *fakeClock) {
	t.Helper()
	codec, clock := newTestCodec(t)
	store := NewCookieStore(codec, CookieOptions{Name: testCookieName, TTL: ttl}, logr.Discard())
	return store, clock
}

func responseCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected exactly one cookie, got %d", len(cookies))
	}
	return cookies[0]
}

func requestWithCookie(cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	return req
}

func TestCookieStore_EstablishAttributes(t *testing.T) {
	store, _ := newTestStore(t, 7*24*time.Hour)

	rec := httptest.NewRecorder()
	sess, err := store.Establish(rec, testClaims())
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}

	cookie := responseCookie(t, rec)
	if cookie.Name != testCookieName {
		t.Errorf("name = %q", cookie.Name)
	}
	if !cookie.HttpOnly {
		t.Error("cookie must be HttpOnly")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", cookie.SameSite)
	}
	if cookie.Path != "/" {
		t.Errorf("Path = %q, want /", cookie.Path)
	}
	if cookie.Secure {
		t.Error("cookie should not be Secure when not configured")
	}
	if cookie.MaxAge != int((7 * 24 * time.Hour).Seconds()) {
		t.Errorf("MaxAge = %d", cookie.MaxAge)
	}
	if !cookie.Expires.Equal(sess.ExpiresAt) {
		t.Errorf("cookie expires %v, token expires %v", cookie.Expires, sess.ExpiresAt)
	}
}

func TestCookieStore_CookieAndTokenExpireTogether(t *testing.T) {
	store, _ := newTestStore(t, 90*time.Minute)

	rec := httptest.NewRecorder()
	if _, err := store.Establish(rec, testClaims()); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	cookie := responseCookie(t, rec)

	decoded, err := store.codec.Verify(cookie.Value)
	if err != nil {
		t.Fatalf("Verify cookie value: %v", err)
	}
	if !decoded.ExpiresAt.Equal(cookie.Expires) {
		t.Fatalf("token exp %v != cookie Expires %v", decoded.ExpiresAt, cookie.Expires)
	}
	if got := time.Duration(cookie.MaxAge) * time.Second; got != decoded.ExpiresAt.Sub(decoded.IssuedAt) {
		t.Fatalf("MaxAge %v != token lifetime %v", got, decoded.ExpiresAt.Sub(decoded.IssuedAt))
	}
}

func TestCookieStore_SecureWhenConfigured(t *testing.T) {
	codec, _ := newTestCodec(t)
	store := NewCookieStore(codec, CookieOptions{Name: testCookieName, TTL: time.Hour, Secure: true}, logr.Discard())

	rec := httptest.NewRecorder()
	if _, err := store.Establish(rec, testClaims()); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	if !responseCookie(t, rec).Secure {
		t.Fatal("expected Secure cookie")
	}
}

func TestCookieStore_EstablishThenRead(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	claims := testClaims()

	rec := httptest.NewRecorder()
	if _, err := store.Establish(rec, claims); err != nil {
		t.Fatalf("Establish: %v", err)
	}

	sess := store.Read(requestWithCookie(responseCookie(t, rec)))
	if sess == nil {
		t.Fatal("Read returned nil after Establish")
	}
	if sess.Claims != claims {
		t.Fatalf("claims = %+v, want %+v", sess.Claims, claims)
	}
}

func TestCookieStore_DestroyThenRead(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	rec := httptest.NewRecorder()
	store.Destroy(rec)
	cookie := responseCookie(t, rec)

	if cookie.Value != "" {
		t.Errorf("destroyed cookie value = %q", cookie.Value)
	}
	if cookie.MaxAge >= 0 {
		t.Errorf("MaxAge = %d, want negative", cookie.MaxAge)
	}
	if !cookie.Expires.Before(time.Now()) {
		t.Errorf("Expires = %v, want past", cookie.Expires)
	}
	if cookie.Path != "/" || !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("destroy cookie attributes differ from establish: %+v", cookie)
	}

	if sess := store.Read(requestWithCookie(cookie)); sess != nil {
		t.Fatalf("Read after Destroy = %+v, want nil", sess)
	}
}

func TestCookieStore_ReadWithoutCookie(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	if sess := store.Read(requestWithCookie(nil)); sess != nil {
		t.Fatalf("Read without cookie = %+v, want nil", sess)
	}
}

func TestCookieStore_ReadFailuresLookAnonymous(t *testing.T) {
	store, clock := newTestStore(t, time.Second)

	rec := httptest.NewRecorder()
	if _, err := store.Establish(rec, testClaims()); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	valid := responseCookie(t, rec)

	tampered := *valid
	tampered.Value = valid.Value[:len(valid.Value)-2] + "AA"
	if tampered.Value == valid.Value {
		tampered.Value = valid.Value[:len(valid.Value)-2] + "BB"
	}

	before := testutil.ToFloat64(metrics.SessionVerifyFailuresTotal.WithLabelValues("invalid_signature"))
	if sess := store.Read(requestWithCookie(&tampered)); sess != nil {
		t.Fatal("tampered cookie produced a session")
	}
	if after := testutil.ToFloat64(metrics.SessionVerifyFailuresTotal.WithLabelValues("invalid_signature")); after != before+1 {
		t.Errorf("invalid_signature failures = %v, want %v", after, before+1)
	}

	garbage := &http.Cookie{Name: testCookieName, Value: "not-a-token"}
	if sess := store.Read(requestWithCookie(garbage)); sess != nil {
		t.Fatal("garbage cookie produced a session")
	}

	clock.Advance(2 * time.Second)
	if sess := store.Read(requestWithCookie(valid)); sess != nil {
		t.Fatal("expired cookie produced a session")
	}
}

func TestCookieStore_LoadStoresSessionInContext(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	rec := httptest.NewRecorder()
	if _, err := store.Establish(rec, testClaims()); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	cookie := responseCookie(t, rec)

	var seen *Session
	handler := store.Load(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), requestWithCookie(cookie))
	if seen == nil || seen.SubjectID != "u1" {
		t.Fatalf("session in context = %+v", seen)
	}

	seen = nil
	handler.ServeHTTP(httptest.NewRecorder(), requestWithCookie(nil))
	if seen != nil {
		t.Fatalf("anonymous request carried session %+v", seen)
	}
}
