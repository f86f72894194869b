package security

import (
	"fmt"
	"time"
	"todo_service/internal/common"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
)

const signingAlg = "HS256"

// TokenCodec issues and verifies signed, self-expiring bearer credentials.
// It holds no mutable state once constructed and is safe for concurrent use.
type TokenCodec struct {
	auth *jwtauth.JWTAuth
	now  func() time.Time
}

type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for both issuing and validating.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

func NewTokenCodec(secret []byte, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.auth = jwtauth.New(signingAlg, secret, nil, jwxjwt.WithClock(jwxjwt.ClockFunc(c.now)))
	return c
}

// Issue returns a credential for subject that expires ttl from now.
func (c *TokenCodec) Issue(subject string, ttl time.Duration) (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	_, tokenString, err := c.auth.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Verify checks the signature and expiry of tokenString and returns its subject.
func (c *TokenCodec) Verify(tokenString string) (string, error) {
	token, err := jwtauth.VerifyToken(c.auth, tokenString)
	if err != nil {
		return "", fmt.Errorf("invalid or expired token: %w", common.ErrUnauthorized)
	}
	subject := token.Subject()
	if subject == "" {
		return "", fmt.Errorf("token has no subject: %w", common.ErrUnauthorized)
	}
	return subject, nil
}
