package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatforge/server/internal/module/ledger"
)

// Debiter is the ledger surface the meter needs.
type Debiter interface {
	DebitClamped(ctx context.Context, userID uuid.UUID, amount int64) (ledger.DebitResult, error)
	Credit(ctx context.Context, userID uuid.UUID, amount int64, source ledger.CreditSource) (int64, error)
}

// Meter turns one chat exchange into a balance debit plus an append-only
// usage event. The debit and the event are one logical transaction: a
// failed debit writes no event, and a failed event write credits the
// debited amount back.
type Meter struct {
	ledger Debiter
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewMeter creates a new usage meter.
func NewMeter(ledger Debiter, repo Repository, logger *zap.Logger) *Meter {
	return &Meter{
		ledger: ledger,
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// RecordResult is the outcome of metering one exchange.
type RecordResult struct {
	Event      *Event
	NewBalance int64
}

// RecordUsage debits the provider-reported total and appends the usage
// event. The debit is clamped at zero: the pre-check estimate bounds the
// exposure, but the true cost is only known after the provider responds,
// and a successful generation is never retroactively failed.
func (m *Meter) RecordUsage(ctx context.Context, userID, conversationID, messageID uuid.UUID, model string, u Usage) (*RecordResult, error) {
	total := u.Total()
	if total <= 0 {
		return nil, ledger.ErrInvalidAmount
	}

	debit, err := m.ledger.DebitClamped(ctx, userID, total)
	if err != nil {
		return nil, fmt.Errorf("debit usage: %w", err)
	}

	event := &Event{
		UserID:         userID,
		ConversationID: conversationID,
		MessageID:      messageID,
		Model:          model,
		InputTokens:    u.InputTokens,
		OutputTokens:   u.OutputTokens,
		TotalTokens:    total,
		BalanceClamped: debit.Clamped,
		Timestamp:      m.now(),
	}
	if err := m.repo.Create(ctx, event); err != nil {
		// Undo the debit so the ledger and the event log stay consistent.
		if debit.Debited > 0 {
			if _, cerr := m.ledger.Credit(ctx, userID, debit.Debited, ledger.CreditSourceAdmin); cerr != nil {
				m.logger.Error("failed to compensate debit after event write failure",
					zap.String("user_id", userID.String()),
					zap.Int64("amount", debit.Debited),
					zap.Error(cerr),
				)
			}
		}
		return nil, fmt.Errorf("record usage event: %w", err)
	}

	return &RecordResult{Event: event, NewBalance: debit.NewBalance}, nil
}

// History returns the user's usage events, newest first.
func (m *Meter) History(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*Event, error) {
	return m.repo.ListByUser(ctx, userID, offset, limit)
}

// Stats aggregates the user's usage over [start, end).
func (m *Meter) Stats(ctx context.Context, userID uuid.UUID, start, end time.Time) (*Stats, error) {
	return m.repo.GetStats(ctx, userID, start, end)
}
