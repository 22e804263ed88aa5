package account

import "time"

// UpdateProfileRequest is the profile update payload.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" binding:"required,max=100"`
}

// AccountResponse is the public account view.
type AccountResponse struct {
	ID                   string     `json:"id"`
	Email                string     `json:"email"`
	DisplayName          string     `json:"display_name"`
	TokenBalance         int64      `json:"token_balance"`
	PaidTokens           int64      `json:"paid_tokens"`
	TotalTokensUsed      int64      `json:"total_tokens_used"`
	FreeTokensGranted    bool       `json:"free_tokens_granted"`
	EmailVerified        bool       `json:"email_verified"`
	TokenExpiryDate      *time.Time `json:"token_expiry_date,omitempty"`
	HasClaudeOpusAccess  bool       `json:"has_claude_opus_access"`
	ClaudeOpusDailyLimit int64      `json:"claude_opus_daily_limit"`
	CreatedAt            time.Time  `json:"created_at"`
}

// ToResponse converts an account to its public view.
func (a *Account) ToResponse() *AccountResponse {
	return &AccountResponse{
		ID:                   a.ID.String(),
		Email:                a.Email,
		DisplayName:          a.DisplayName,
		TokenBalance:         a.TokenBalance,
		PaidTokens:           a.PaidTokens,
		TotalTokensUsed:      a.TotalTokensUsed,
		FreeTokensGranted:    a.FreeTokensGranted,
		EmailVerified:        a.EmailVerified,
		TokenExpiryDate:      a.TokenExpiryDate,
		HasClaudeOpusAccess:  a.HasClaudeOpusAccess,
		ClaudeOpusDailyLimit: a.ClaudeOpusDailyLimit,
		CreatedAt:            a.CreatedAt,
	}
}
