package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for conversation and message data access.
type Repository interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id, userID uuid.UUID) (*Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*Conversation, error)
	TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteConversation(ctx context.Context, id, userID uuid.UUID) error
	CreateMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new chat repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateConversation(ctx context.Context, conv *Conversation) error {
	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (r *repository) GetConversation(ctx context.Context, id, userID uuid.UUID) (*Conversation, error) {
	var conv Conversation
	err := r.db.WithContext(ctx).
		First(&conv, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

func (r *repository) ListConversations(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*Conversation, error) {
	var convs []*Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

func (r *repository) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&Conversation{}).
		Where("id = ?", id).
		Update("updated_at", at)
	if result.Error != nil {
		return fmt.Errorf("touch conversation: %w", result.Error)
	}
	return nil
}

// DeleteConversation removes the conversation and its messages in one
// transaction. Usage events keep their conversation id; the audit log
// outlives the thread.
func (r *repository) DeleteConversation(ctx context.Context, id, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&Conversation{})
		if result.Error != nil {
			return fmt.Errorf("delete conversation: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrConversationNotFound
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		return nil
	})
}

func (r *repository) CreateMessage(ctx context.Context, msg *Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (r *repository) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	var msgs []*Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}
