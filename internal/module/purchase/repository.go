package purchase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for purchase record access. Records are
// append-only.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	GetByTransactionID(ctx context.Context, transactionID string) (*Record, error)
	ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*Record, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new purchase repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, record *Record) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create purchase record: %w", err)
	}
	return nil
}

func (r *repository) GetByTransactionID(ctx context.Context, transactionID string) (*Record, error) {
	var record Record
	err := r.db.WithContext(ctx).First(&record, "transaction_id = ?", transactionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get purchase record: %w", err)
	}
	return &record, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*Record, error) {
	var records []*Record
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("purchase_date DESC").
		Offset(offset).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list purchase records: %w", err)
	}
	return records, nil
}
