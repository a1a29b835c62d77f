package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for malformed, unsigned or wrongly signed tokens.
	ErrInvalidToken = errors.New("jwt: invalid token")
	// ErrExpiredToken is returned when the token's exp claim has passed.
	ErrExpiredToken = errors.New("jwt: token expired")
)

// Claims are the access token claims issued by the account service. Subject carries the user sub.
type Claims struct {
	UserSub string `json:"user_sub,omitempty"`
	jwt.RegisteredClaims
}

// Sub returns the authenticated user sub.
func (c *Claims) Sub() string {
	if c.UserSub != "" {
		return c.UserSub
	}
	return c.Subject
}

// TokenVerifier validates HS256 bearer tokens against a shared secret.
type TokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenVerifier constructs a verifier. An empty issuer skips the iss check.
func NewTokenVerifier(secret, issuer string) (*TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt: secret is required")
	}
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// WithClock overrides the time source used for exp/nbf checks.
func (v *TokenVerifier) WithClock(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// Verify parses the token and returns its claims.
func (v *TokenVerifier) Verify(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Sub() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken signs claims for the supplied user. The account service owns issuance; this exists for tooling and tests.
func IssueToken(secret, issuer, userSub string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userSub,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
