package account

import (
	"time"

	"github.com/google/uuid"
)

// Account is a user's billing account. The token counters on this row are
// mutated only through the ledger's atomic operations, never by ad hoc
// field writes.
type Account struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email       string    `json:"email" gorm:"uniqueIndex;not null"`
	DisplayName string    `json:"display_name" gorm:"not null"`

	// Ledger fields
	TokenBalance    int64 `json:"token_balance" gorm:"not null;default:0"`
	PaidTokens      int64 `json:"paid_tokens" gorm:"not null;default:0"`
	TotalTokensUsed int64 `json:"total_tokens_used" gorm:"not null;default:0"`

	// One-shot welcome grant
	FreeTokensGranted   bool       `json:"free_tokens_granted" gorm:"not null;default:false"`
	FreeTokensGrantedAt *time.Time `json:"free_tokens_granted_at,omitempty"`

	// Mirror of the identity provider's verified-email claim
	EmailVerified bool `json:"email_verified" gorm:"not null;default:false"`

	// Purchased tokens expire 30 days after the most recent purchase.
	TokenExpiryDate *time.Time `json:"token_expiry_date,omitempty"`

	// Premium tier, unlocked by crossing a purchase-size threshold
	HasClaudeOpusAccess  bool  `json:"has_claude_opus_access" gorm:"not null;default:false"`
	ClaudeOpusDailyLimit int64 `json:"claude_opus_daily_limit" gorm:"not null;default:0"`

	IsAdmin bool `json:"is_admin" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Account) TableName() string {
	return "accounts"
}

// HasExpiredTokens reports whether the purchased-token expiry has passed.
func (a *Account) HasExpiredTokens(now time.Time) bool {
	return a.TokenExpiryDate != nil && now.After(*a.TokenExpiryDate)
}
