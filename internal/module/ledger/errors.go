package ledger

import "errors"

// Module errors.
var (
	ErrInvalidAmount      = errors.New("amount must be a positive integer")
	ErrInsufficientTokens = errors.New("insufficient token balance")
)
