package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MustafaBasol/crm-sub006/internal/config"
	"github.com/MustafaBasol/crm-sub006/internal/model"
)

// Token service errors
var (
	ErrNoSigningSecret = errors.New("no signing secret configured")
	ErrTokenInvalid    = errors.New("invalid or expired session token")
)

// SessionClaims represents the claims carried by a session token.
// TokenVersion is the revocation primitive: validation rejects any token
// whose version differs from the user's current stored value.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email        string     `json:"email"`
	Role         model.Role `json:"role"`
	TenantID     string     `json:"tenant_id"`
	TokenVersion int        `json:"token_version"`
}

// TokenService issues and validates session tokens
type TokenService struct {
	cfg    config.TokenConfig
	secret []byte
}

// NewTokenService creates a new TokenService
func NewTokenService(cfg config.TokenConfig) (*TokenService, error) {
	if cfg.SigningSecret == "" {
		return nil, ErrNoSigningSecret
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	return &TokenService{
		cfg:    cfg,
		secret: []byte(cfg.SigningSecret),
	}, nil
}

// Issue signs a new session token for the user
func (s *TokenService) Issue(user *model.User) (string, error) {
	now := time.Now()

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.SessionTTL)),
			ID:        uuid.New().String(),
		},
		Email:        user.Email,
		Role:         user.Role,
		TenantID:     user.TenantID,
		TokenVersion: user.TokenVersion,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a session token and returns its claims.
// Signature and expiry failures yield ErrTokenInvalid; the token-version
// check against the stored user is the caller's responsibility since it
// needs a user lookup.
func (s *TokenService) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// SessionTTL returns the configured session token lifetime
func (s *TokenService) SessionTTL() time.Duration {
	return s.cfg.SessionTTL
}
