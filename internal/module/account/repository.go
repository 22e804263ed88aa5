package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the interface for account data access.
//
// UpdateAtomic is the document store's conditional-update primitive: it runs
// mutate against a row-locked copy of the account inside a transaction, so
// concurrent ledger operations on the same user serialize instead of losing
// updates.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	Create(ctx context.Context, acct *Account) error
	UpdateProfile(ctx context.Context, id uuid.UUID, displayName string) error
	UpdateAtomic(ctx context.Context, id uuid.UUID, mutate func(*Account) error) (*Account, error)
	List(ctx context.Context, offset, limit int) ([]*Account, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new account repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	var acct Account
	err := r.db.WithContext(ctx).First(&acct, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acct, nil
}

func (r *repository) Create(ctx context.Context, acct *Account) error {
	if err := r.db.WithContext(ctx).Create(acct).Error; err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *repository) UpdateProfile(ctx context.Context, id uuid.UUID, displayName string) error {
	result := r.db.WithContext(ctx).
		Model(&Account{}).
		Where("id = ?", id).
		Update("display_name", displayName)
	if result.Error != nil {
		return fmt.Errorf("update profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *repository) UpdateAtomic(ctx context.Context, id uuid.UUID, mutate func(*Account) error) (*Account, error) {
	var updated *Account
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acct Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&acct, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}

		if err := mutate(&acct); err != nil {
			return err
		}

		if err := tx.Save(&acct).Error; err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		updated = &acct
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *repository) List(ctx context.Context, offset, limit int) ([]*Account, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&Account{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	var accounts []*Account
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&accounts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, total, nil
}
