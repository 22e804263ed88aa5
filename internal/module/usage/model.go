package usage

import (
	"time"

	"github.com/google/uuid"
)

// Event is one append-only usage record. An Event exists if and only if the
// matching debit was applied to the user's balance; BalanceClamped marks the
// rare case where the true generation cost exceeded the remaining balance
// and the debit floored at zero.
type Event struct {
	ID             int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID         uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	ConversationID uuid.UUID `json:"conversation_id" gorm:"type:uuid;not null;index"`
	MessageID      uuid.UUID `json:"message_id" gorm:"type:uuid;not null"`
	Model          string    `json:"model" gorm:"not null"`
	InputTokens    int64     `json:"input_tokens" gorm:"not null;default:0"`
	OutputTokens   int64     `json:"output_tokens" gorm:"not null;default:0"`
	TotalTokens    int64     `json:"total_tokens" gorm:"not null;default:0"`
	BalanceClamped bool      `json:"balance_clamped" gorm:"not null;default:false"`
	Timestamp      time.Time `json:"timestamp" gorm:"not null;index"`
}

// TableName returns the database table name.
func (Event) TableName() string {
	return "usage_events"
}

// Usage is the provider-reported token count for one exchange. Counts are
// trusted as-is; the system does not re-tokenize to verify.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Total returns the authoritative total for billing.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// ModelUsage aggregates usage for one model.
type ModelUsage struct {
	Model         string `json:"model"`
	TotalTokens   int64  `json:"total_tokens"`
	TotalRequests int    `json:"total_requests"`
}

// DailyUsage aggregates usage for one calendar day.
type DailyUsage struct {
	Date          string `json:"date"`
	TotalTokens   int64  `json:"total_tokens"`
	TotalRequests int    `json:"total_requests"`
}

// Stats is an aggregated usage report.
type Stats struct {
	TotalTokens   int64                  `json:"total_tokens"`
	TotalRequests int                    `json:"total_requests"`
	ByModel       map[string]*ModelUsage `json:"by_model"`
	ByDay         []*DailyUsage          `json:"by_day"`
}
