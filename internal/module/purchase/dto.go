package purchase

// CalculatePriceRequest is the quote payload.
type CalculatePriceRequest struct {
	TokenAmount int64  `json:"token_amount" binding:"required"`
	Currency    string `json:"currency"`
}

// PurchaseRequest is the purchase payload.
type PurchaseRequest struct {
	TokenAmount int64  `json:"token_amount" binding:"required"`
	Currency    string `json:"currency"`
}
