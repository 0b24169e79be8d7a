// Package auth issues and validates the bearer tokens that identify users,
// admins and the push relay caller.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is used when no TTL is configured.
const DefaultAccessTokenTTL = 15 * time.Minute

// Roles carried in issued tokens.
const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleService = "service"
)

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims are the custom claims embedded in issued tokens.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token grants admin access.
func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// JWTService issues and validates HS256 tokens.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService constructs a JWTService.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    now,
	}, nil
}

// GenerateAccessToken issues a signed token for userID with the given role.
func (s *JWTService) GenerateAccessToken(userID, role string) (string, error) {
	if userID == "" {
		return "", errors.New("jwt: user id is required")
	}

	now := s.now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken parses and validates a signed token.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	if _, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("jwt: invalid issuer")
	}
	if claims.UserID == "" {
		return nil, errors.New("jwt: missing user id claim")
	}
	return &claims, nil
}

type ctxKey struct{}

// WithUserID records the authenticated caller on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFromContext returns the authenticated caller, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
