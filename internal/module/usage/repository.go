package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for usage event access. Events are
// append-only; there are no update or delete operations.
type Repository interface {
	Create(ctx context.Context, event *Event) error
	ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*Event, error)
	GetStats(ctx context.Context, userID uuid.UUID, start, end time.Time) (*Stats, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new usage repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, event *Event) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("create usage event: %w", err)
	}
	return nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*Event, error) {
	var events []*Event
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Offset(offset).
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list usage events: %w", err)
	}
	return events, nil
}

func (r *repository) GetStats(ctx context.Context, userID uuid.UUID, start, end time.Time) (*Stats, error) {
	stats := &Stats{
		ByModel: make(map[string]*ModelUsage),
		ByDay:   make([]*DailyUsage, 0),
	}

	var totals struct {
		TotalTokens   int64
		TotalRequests int64
	}
	err := r.db.WithContext(ctx).
		Model(&Event{}).
		Select("COALESCE(SUM(total_tokens), 0) as total_tokens, COUNT(*) as total_requests").
		Where("user_id = ? AND timestamp >= ? AND timestamp < ?", userID, start, end).
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("get usage totals: %w", err)
	}
	stats.TotalTokens = totals.TotalTokens
	stats.TotalRequests = int(totals.TotalRequests)

	var modelStats []struct {
		Model         string
		TotalTokens   int64
		TotalRequests int64
	}
	err = r.db.WithContext(ctx).
		Model(&Event{}).
		Select("model, COALESCE(SUM(total_tokens), 0) as total_tokens, COUNT(*) as total_requests").
		Where("user_id = ? AND timestamp >= ? AND timestamp < ?", userID, start, end).
		Group("model").
		Scan(&modelStats).Error
	if err != nil {
		return nil, fmt.Errorf("get usage by model: %w", err)
	}
	for _, m := range modelStats {
		stats.ByModel[m.Model] = &ModelUsage{
			Model:         m.Model,
			TotalTokens:   m.TotalTokens,
			TotalRequests: int(m.TotalRequests),
		}
	}

	var dailyStats []struct {
		Date          time.Time
		TotalTokens   int64
		TotalRequests int64
	}
	err = r.db.WithContext(ctx).
		Model(&Event{}).
		Select("DATE(timestamp) as date, COALESCE(SUM(total_tokens), 0) as total_tokens, COUNT(*) as total_requests").
		Where("user_id = ? AND timestamp >= ? AND timestamp < ?", userID, start, end).
		Group("DATE(timestamp)").
		Order("DATE(timestamp) ASC").
		Scan(&dailyStats).Error
	if err != nil {
		return nil, fmt.Errorf("get usage by day: %w", err)
	}
	for _, d := range dailyStats {
		stats.ByDay = append(stats.ByDay, &DailyUsage{
			Date:          d.Date.Format("2006-01-02"),
			TotalTokens:   d.TotalTokens,
			TotalRequests: int(d.TotalRequests),
		})
	}

	return stats, nil
}
