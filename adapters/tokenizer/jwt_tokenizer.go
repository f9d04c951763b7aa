package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dfortune/fortuna/core"
	"github.com/dfortune/fortuna/ports"
)

const AudienceSession = "session"

// DefaultSessionTTL is the absolute lifetime of a session token. After it
// elapses re-authentication with a fresh wallet signature is mandatory.
const DefaultSessionTTL = 12 * time.Hour

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs.
type JWTTokenizer struct {
	signKey    *ecdsa.PrivateKey
	sessionTTL time.Duration
	now        func() time.Time
}

// Option configures a JWTTokenizer.
type Option func(*JWTTokenizer)

// WithSessionTTL overrides the session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(j *JWTTokenizer) { j.sessionTTL = ttl }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(j *JWTTokenizer) { j.now = now }
}

// NewJWTTokenizer creates a new JWT tokenizer.
func NewJWTTokenizer(signKey *ecdsa.PrivateKey, opts ...Option) ports.Tokenizer {
	j := &JWTTokenizer{
		signKey:    signKey,
		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// MintSession signs a session token for identity.
func (j *JWTTokenizer) MintSession(identity core.Identity) (string, time.Time, error) {
	now := j.now()
	expiresAt := now.Add(j.sessionTTL)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Address,
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		UserID:  identity.ID,
		IsAdmin: identity.IsAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	return signedToken, expiresAt, nil
}

// VerifySession parses and validates a session token.
func (j *JWTTokenizer) VerifySession(tokenStr string) (*core.Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceSession), jwt.WithTimeFunc(j.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, core.ErrTokenExpired
		}
		return nil, fmt.Errorf("failed to parse session token: %w", core.ErrInvalidToken)
	}

	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, core.ErrInvalidToken
	}

	return &core.Session{
		Identity: core.Identity{
			ID:      claims.UserID,
			Address: claims.Subject,
			IsAdmin: claims.IsAdmin,
		},
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
