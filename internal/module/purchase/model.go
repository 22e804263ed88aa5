package purchase

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/chatforge/server/internal/module/pricing"
)

// Status represents the settlement status of a purchase.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one append-only purchase. TotalPrice is always derived from
// (TokenAmount, Currency) through the pricing table and currency converter,
// never set independently, so any stored record can be re-priced and
// audited.
type Record struct {
	ID     uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`

	TokenAmount      int64            `json:"token_amount" gorm:"not null"`
	Currency         pricing.Currency `json:"currency" gorm:"not null"`
	PricePerThousand float64          `json:"price_per_thousand" gorm:"not null"`
	TotalPrice       float64          `json:"total_price" gorm:"not null"`

	Tier              string         `json:"tier" gorm:"not null"`
	Benefits          pq.StringArray `json:"benefits" gorm:"type:text[]"`
	UnlocksClaudeOpus bool           `json:"unlocks_claude_opus" gorm:"not null;default:false"`
	ClaudeOpusLimit   int64          `json:"claude_opus_limit" gorm:"not null;default:0"`

	PaymentGateway string `json:"payment_gateway" gorm:"not null"`
	TransactionID  string `json:"transaction_id" gorm:"uniqueIndex;not null"`
	Status         Status `json:"status" gorm:"not null"`

	PurchaseDate time.Time `json:"purchase_date" gorm:"not null"`
	ExpiryDate   time.Time `json:"expiry_date" gorm:"not null"`
}

// TableName returns the database table name.
func (Record) TableName() string {
	return "purchase_records"
}
