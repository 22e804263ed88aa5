package purchase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatforge/server/internal/module/account"
	"github.com/chatforge/server/internal/module/ledger"
	"github.com/chatforge/server/internal/module/pricing"
)

// Crediter is the ledger surface the processor needs.
type Crediter interface {
	Credit(ctx context.Context, userID uuid.UUID, amount int64, source ledger.CreditSource) (int64, error)
	DebitClamped(ctx context.Context, userID uuid.UUID, amount int64) (ledger.DebitResult, error)
}

// OpusCounter resets a user's per-day Claude Opus usage counter.
type OpusCounter interface {
	Reset(ctx context.Context, userID uuid.UUID) error
}

// Service validates, prices, settles, and records token purchases. Every
// failure mode leaves the ledger untouched.
type Service struct {
	table    *pricing.Table
	conv     *pricing.Converter
	ledger   Crediter
	accounts account.Repository
	repo     Repository
	gateway  Gateway
	opus     OpusCounter
	logger   *zap.Logger
	now      func() time.Time

	expiryDays int
}

// NewService creates a new purchase service.
func NewService(
	table *pricing.Table,
	conv *pricing.Converter,
	ledgerSvc Crediter,
	accounts account.Repository,
	repo Repository,
	gateway Gateway,
	opus OpusCounter,
	expiryDays int,
	logger *zap.Logger,
) *Service {
	if expiryDays <= 0 {
		expiryDays = ledger.DefaultConfig().ExpiryDays
	}
	return &Service{
		table:      table,
		conv:       conv,
		ledger:     ledgerSvc,
		accounts:   accounts,
		repo:       repo,
		gateway:    gateway,
		opus:       opus,
		logger:     logger,
		now:        time.Now,
		expiryDays: expiryDays,
	}
}

// Quote prices a token amount in the requested currency. Amounts outside
// the purchasable range fail with ErrInvalidAmount before any lookup.
func (s *Service) Quote(tokenAmount int64, currency pricing.Currency) (pricing.Quote, error) {
	if tokenAmount < pricing.MinPurchaseTokens || tokenAmount > pricing.MaxPurchaseTokens {
		return pricing.Quote{}, ErrInvalidAmount
	}
	quote, err := s.table.QuoteUSD(tokenAmount)
	if err != nil {
		return pricing.Quote{}, err
	}
	return s.conv.Convert(quote, currency)
}

// Purchase settles a token purchase end to end: bounds check, pricing,
// gateway settlement, ledger credit, premium unlock, and the append-only
// record. Validation and settlement failures perform no mutation.
func (s *Service) Purchase(ctx context.Context, userID uuid.UUID, tokenAmount int64, currency pricing.Currency) (*Record, error) {
	quote, err := s.Quote(tokenAmount, currency)
	if err != nil {
		return nil, err
	}

	if _, err := s.accounts.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	settlement, err := s.gateway.Settle(ctx, quote.TotalPrice, quote.Currency, map[string]string{
		"user_id":      userID.String(),
		"token_amount": fmt.Sprintf("%d", tokenAmount),
		"tier":         quote.Tier,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	if _, err := s.ledger.Credit(ctx, userID, tokenAmount, ledger.CreditSourcePurchase); err != nil {
		return nil, fmt.Errorf("credit purchase: %w", err)
	}

	if quote.UnlocksClaudeOpus {
		if err := s.unlockOpus(ctx, userID, quote.ClaudeOpusDailyLimit); err != nil {
			s.logger.Error("failed to unlock claude opus access",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
	}

	purchaseTime := s.now()
	record := &Record{
		ID:                uuid.New(),
		UserID:            userID,
		TokenAmount:       tokenAmount,
		Currency:          quote.Currency,
		PricePerThousand:  quote.PricePerThousand,
		TotalPrice:        quote.TotalPrice,
		Tier:              quote.Tier,
		Benefits:          quote.Benefits,
		UnlocksClaudeOpus: quote.UnlocksClaudeOpus,
		ClaudeOpusLimit:   quote.ClaudeOpusDailyLimit,
		PaymentGateway:    settlement.Gateway,
		TransactionID:     settlement.TransactionID,
		Status:            StatusCompleted,
		PurchaseDate:      purchaseTime,
		ExpiryDate:        purchaseTime.AddDate(0, 0, s.expiryDays),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		// Undo the credit so a lost record cannot leave unpaid-for tokens.
		if _, derr := s.ledger.DebitClamped(ctx, userID, tokenAmount); derr != nil {
			s.logger.Error("failed to compensate credit after record write failure",
				zap.String("user_id", userID.String()),
				zap.Int64("amount", tokenAmount),
				zap.Error(derr),
			)
		}
		return nil, fmt.Errorf("write purchase record: %w", err)
	}

	s.logger.Info("purchase completed",
		zap.String("user_id", userID.String()),
		zap.Int64("tokens", tokenAmount),
		zap.String("tier", quote.Tier),
		zap.String("currency", string(quote.Currency)),
		zap.Float64("total_price", quote.TotalPrice),
		zap.String("transaction_id", settlement.TransactionID),
	)
	return record, nil
}

// History returns a page of the user's purchases, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, offset, limit)
}

func (s *Service) unlockOpus(ctx context.Context, userID uuid.UUID, dailyLimit int64) error {
	_, err := s.accounts.UpdateAtomic(ctx, userID, func(a *account.Account) error {
		a.HasClaudeOpusAccess = true
		a.ClaudeOpusDailyLimit = dailyLimit
		return nil
	})
	if err != nil {
		return err
	}
	if s.opus != nil {
		return s.opus.Reset(ctx, userID)
	}
	return nil
}
