package purchase

import "errors"

// Module errors.
var (
	ErrInvalidAmount    = errors.New("token amount outside allowed purchase range")
	ErrSettlementFailed = errors.New("payment settlement failed")
	ErrRecordNotFound   = errors.New("purchase record not found")
)
