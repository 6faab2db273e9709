// Package token issues and verifies the signed access and refresh tokens.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Subject is the caller-supplied part of the claim set.
type Subject struct {
	UserID          uint64
	Email           string
	Role            string
	IsVerified      bool
	NeedsOnboarding bool
}

type Claims struct {
	Email           string `json:"email"`
	Role            string `json:"role"`
	IsVerified      bool   `json:"is_verified"`
	NeedsOnboarding bool   `json:"needs_onboarding"`
	Type            Type   `json:"type"`
	jwt.RegisteredClaims
}

// UserID parses the numeric account id carried in "sub".
func (c *Claims) UserID() (uint64, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type Option func(*Codec)

// WithClock overrides the time source used for iat/exp and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCodec(secret, issuer string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}

	c := &Codec{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token of the given type valid for ttl and returns it with its expiry.
func (c *Codec) Issue(subject Subject, typ Type, ttl time.Duration) (string, time.Time, error) {
	if typ != TypeAccess && typ != TypeRefresh {
		return "", time.Time{}, fmt.Errorf("unknown token type %q", typ)
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive")
	}

	now := c.now().UTC()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		Email:           subject.Email,
		Role:            subject.Role,
		IsVerified:      subject.IsVerified,
		NeedsOnboarding: subject.NeedsOnboarding,
		Type:            typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(subject.UserID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}

	return signed, expiresAt, nil
}

// Verify checks signature, type and expiry, in that order. Callers must not
// expose which of ErrInvalidToken or ErrExpiredToken occurred.
func (c *Codec) Verify(tokenString string, expected Type) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	if _, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Type != expected {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, expected, claims.Type)
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}
	if c.now().After(claims.ExpiresAt.Time) {
		return nil, ErrExpiredToken
	}

	return claims, nil
}
