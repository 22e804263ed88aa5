package pricing

import "errors"

// Module errors.
var (
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrNoMatchingTier      = errors.New("no pricing tier matches token amount")
)
