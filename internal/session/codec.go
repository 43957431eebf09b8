// Package session issues and reads the signed, cookie-borne sessions used by
// every protected route. Sessions are stateless: nothing is stored server side,
// so a token stays valid until it expires.
package session

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sfm-market/storefront/types"
)

var (
	// ErrMalformed is returned for tokens that are structurally invalid.
	ErrMalformed = errors.New("session: malformed token")
	// ErrInvalidSignature is returned when the signature does not match the
	// token contents, either from tampering or a different secret.
	ErrInvalidSignature = errors.New("session: invalid token signature")
	// ErrExpired is returned for correctly signed tokens past their expiry.
	ErrExpired = errors.New("session: token expired")
)

var signatureEncoding = base64.RawURLEncoding.Strict()

// Claims is the application payload carried by a session token.
type Claims struct {
	SubjectID   string     `json:"subjectId"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	Role        types.Role `json:"role"`
	AvatarRef   string     `json:"avatarRef,omitempty"`
}

// Session is a verified set of claims together with its validity window.
type Session struct {
	Claims
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	Claims
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 session tokens with a process-wide secret.
// A Codec is immutable after construction and safe for concurrent use.
type Codec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec constructs a Codec for the given signing secret.
func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("session: signing secret is required")
	}
	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// Sign issues a token for claims that expires ttl after now. Token times have
// one-second precision, so ttl is truncated to whole seconds.
func (c *Codec) Sign(claims Claims, ttl time.Duration) (string, Session, error) {
	ttl = ttl.Truncate(time.Second)
	if ttl <= 0 {
		return "", Session{}, errors.New("session: ttl must be at least one second")
	}
	if strings.TrimSpace(claims.SubjectID) == "" {
		return "", Session{}, errors.New("session: subject is required")
	}
	if !claims.Role.Valid() {
		return "", Session{}, fmt.Errorf("session: unknown role %q", claims.Role)
	}

	issuedAt := c.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Claims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", Session{}, err
	}
	return signed, Session{Claims: claims, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

// Verify checks the token signature, then its expiry, and returns the
// decoded session. Errors match ErrMalformed, ErrInvalidSignature or
// ErrExpired with errors.Is.
func (c *Codec) Verify(token string) (Session, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Session{}, ErrMalformed
	}

	// The signature covers the raw header and payload text, so it is checked
	// before anything in them is decoded.
	sig, err := signatureEncoding.DecodeString(parts[2])
	if err != nil {
		return Session{}, ErrInvalidSignature
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.secret); err != nil {
		return Session{}, ErrInvalidSignature
	}

	var claims tokenClaims
	_, err = c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Session{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Session{}, ErrInvalidSignature
		default:
			return Session{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	if strings.TrimSpace(claims.SubjectID) == "" {
		return Session{}, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	if !claims.Role.Valid() {
		return Session{}, fmt.Errorf("%w: unknown role %q", ErrMalformed, claims.Role)
	}
	if claims.IssuedAt == nil {
		return Session{}, fmt.Errorf("%w: missing iat", ErrMalformed)
	}

	return Session{
		Claims:    claims.Claims,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Kind labels a Verify error for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "unknown"
	}
}
