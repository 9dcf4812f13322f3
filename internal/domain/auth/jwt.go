// Package auth validates the bearer tokens presented by POS terminals and
// back-office users. Tokens are HS256 JWTs carrying the stores a user may bill for.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "ncfpos/internal/core/context"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret   string
	Issuer   string // Optional; checked when set.
	TokenTTL time.Duration
	Leeway   time.Duration
}

// DefaultJWTConfig returns the default configuration for secret.
func DefaultJWTConfig(secret, issuer string) JWTConfig {
	return JWTConfig{
		Secret:   secret,
		Issuer:   issuer,
		TokenTTL: 12 * time.Hour,
		Leeway:   30 * time.Second,
	}
}

// Claims are the token claims understood by the service.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string   `json:"uid,omitempty"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	StoreIDs  []string `json:"stores,omitempty"`
	SessionID string   `json:"sid,omitempty"`
}

// JWTService signs and validates tokens.
type JWTService struct {
	config JWTConfig
	parser *jwt.Parser
}

// NewJWTService creates a new JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	return &JWTService{config: config, parser: jwt.NewParser(opts...)}
}

// TokenRequest describes a token to sign.
type TokenRequest struct {
	UserID   string
	Email    string
	Roles    []string
	StoreIDs []string
	TTL      time.Duration // Zero uses the configured TTL.
}

// GenerateToken signs a token for req. Used by the provisioning CLI to
// hand out terminal credentials.
func (s *JWTService) GenerateToken(req TokenRequest) (string, time.Time, error) {
	if req.UserID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.config.TokenTTL
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   req.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:   req.UserID,
		Email:    req.Email,
		Roles:    req.Roles,
		StoreIDs: req.StoreIDs,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies the token and returns the authenticated user.
func (s *JWTService) ValidateToken(tokenString string) (*appctx.UserContext, error) {
	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, errors.New("token has no subject")
	}

	return &appctx.UserContext{
		UserID:    userID,
		Email:     claims.Email,
		Roles:     claims.Roles,
		StoreIDs:  claims.StoreIDs,
		SessionID: claims.SessionID,
	}, nil
}
