package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Identity is the verified claim set returned by the identity provider.
type Identity struct {
	UserID        uuid.UUID
	Email         string
	Name          string
	EmailVerified bool
}

// Verifier validates an opaque bearer credential and returns the identity
// it asserts. Implementations must not touch application state.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Module errors.
var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("authorization token required")
)
