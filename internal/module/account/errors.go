package account

import "errors"

// Module errors.
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidDisplayName = errors.New("display name must not be empty")
)
