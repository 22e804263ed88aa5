package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims represents the JWT claims issued by the identity provider.
type Claims struct {
	jwt.RegisteredClaims
	UserID        uuid.UUID `json:"user_id"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	EmailVerified bool      `json:"email_verified"`
}

// JWTConfig holds token verification configuration.
type JWTConfig struct {
	Secret string
	Issuer string
}

// JWTVerifier validates HS256 bearer tokens from the identity provider.
type JWTVerifier struct {
	config *JWTConfig
}

// NewJWTVerifier creates a new JWT verifier.
func NewJWTVerifier(config *JWTConfig) *JWTVerifier {
	return &JWTVerifier{config: config}
}

// Verify parses and validates the token, returning the asserted identity.
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(v.config.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if v.config.Issuer != "" && claims.Issuer != v.config.Issuer {
		return nil, ErrInvalidToken
	}
	if claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}

	return &Identity{
		UserID:        claims.UserID,
		Email:         claims.Email,
		Name:          claims.Name,
		EmailVerified: claims.EmailVerified,
	}, nil
}

// Sign issues a token for the given identity. Production tokens come from
// the identity provider; this is used by tests and local tooling.
func (v *JWTVerifier) Sign(id *Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.config.Issuer,
			Subject:   id.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		UserID:        id.UserID,
		Email:         id.Email,
		Name:          id.Name,
		EmailVerified: id.EmailVerified,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(v.config.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Compile-time check
var _ Verifier = (*JWTVerifier)(nil)
