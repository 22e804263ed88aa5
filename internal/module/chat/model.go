package chat

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is one chat thread owned by a user.
type Conversation struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	Title     string    `json:"title" gorm:"not null"`
	Model     string    `json:"model" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Conversation) TableName() string {
	return "conversations"
}

// MessageRole is the author of a message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one turn inside a conversation. TokenCount is the billed
// total for assistant messages and zero for user messages and fallbacks.
type Message struct {
	ID             uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID   `json:"conversation_id" gorm:"type:uuid;not null;index"`
	Role           MessageRole `json:"role" gorm:"not null"`
	Content        string      `json:"content" gorm:"type:text;not null"`
	Model          string      `json:"model"`
	TokenCount     int64       `json:"token_count" gorm:"not null;default:0"`
	CreatedAt      time.Time   `json:"created_at"`
}

// TableName returns the database table name.
func (Message) TableName() string {
	return "messages"
}
