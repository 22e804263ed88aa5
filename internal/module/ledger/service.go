package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatforge/server/internal/module/account"
)

// CreditSource identifies why tokens were credited. Purchases additionally
// bump the paid-token counter and extend the expiry date.
type CreditSource string

const (
	CreditSourcePurchase CreditSource = "purchase"
	CreditSourceWelcome  CreditSource = "welcome"
	CreditSourceAdmin    CreditSource = "admin"
)

// DebitResult reports the outcome of a clamped debit.
type DebitResult struct {
	NewBalance int64
	Debited    int64
	Clamped    bool
}

// Config holds ledger constants.
type Config struct {
	WelcomeTokens int64
	ExpiryDays    int
}

// DefaultConfig returns the production ledger constants.
func DefaultConfig() Config {
	return Config{
		WelcomeTokens: 50_000,
		ExpiryDays:    30,
	}
}

// Recorder counts ledger mutations for monitoring. Implemented by the
// metrics registry; nil disables recording.
type Recorder interface {
	RecordCredit(source string, tokens int64)
	RecordDebit(tokens int64, clamped bool)
}

// Service is the sole authority for mutating the token counters on an
// account. Every operation is a single atomic read-modify-write through
// the repository's row-locked update, so concurrent debits and credits on
// the same user serialize instead of losing updates.
type Service struct {
	repo    account.Repository
	config  Config
	metrics Recorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new ledger service.
func NewService(repo account.Repository, config Config, metrics Recorder, logger *zap.Logger) *Service {
	if config.WelcomeTokens <= 0 {
		config.WelcomeTokens = DefaultConfig().WelcomeTokens
	}
	if config.ExpiryDays <= 0 {
		config.ExpiryDays = DefaultConfig().ExpiryDays
	}
	return &Service{
		repo:    repo,
		config:  config,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// GrantFreeTokensOnce applies the one-time welcome grant. If the grant was
// already applied the call is a no-op and returns granted=false with the
// unchanged balance, which makes repeated verification checks and racing
// requests safe.
func (s *Service) GrantFreeTokensOnce(ctx context.Context, userID uuid.UUID) (account.GrantResult, error) {
	granted := false
	acct, err := s.repo.UpdateAtomic(ctx, userID, func(a *account.Account) error {
		if a.FreeTokensGranted {
			return nil
		}
		now := s.now()
		a.TokenBalance += s.config.WelcomeTokens
		a.FreeTokensGranted = true
		a.FreeTokensGrantedAt = &now
		granted = true
		return nil
	})
	if err != nil {
		return account.GrantResult{}, err
	}

	if granted {
		if s.metrics != nil {
			s.metrics.RecordCredit(string(CreditSourceWelcome), s.config.WelcomeTokens)
		}
		s.logger.Info("welcome tokens granted",
			zap.String("user_id", userID.String()),
			zap.Int64("amount", s.config.WelcomeTokens),
			zap.Int64("new_balance", acct.TokenBalance),
		)
	}
	return account.GrantResult{Granted: granted, NewBalance: acct.TokenBalance}, nil
}

// Credit increments the balance by amount. Purchase credits also increment
// the cumulative paid-token counter and extend the expiry date to
// now + ExpiryDays.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount int64, source CreditSource) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	acct, err := s.repo.UpdateAtomic(ctx, userID, func(a *account.Account) error {
		a.TokenBalance += amount
		if source == CreditSourcePurchase {
			a.PaidTokens += amount
			expiry := s.now().AddDate(0, 0, s.config.ExpiryDays)
			a.TokenExpiryDate = &expiry
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.RecordCredit(string(source), amount)
	}
	s.logger.Info("tokens credited",
		zap.String("user_id", userID.String()),
		zap.Int64("amount", amount),
		zap.String("source", string(source)),
		zap.Int64("new_balance", acct.TokenBalance),
	)
	return acct.TokenBalance, nil
}

// Debit decrements the balance by amount and increments the cumulative
// usage counter. A balance below amount fails with ErrInsufficientTokens
// and leaves the account untouched; balances never go negative.
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	acct, err := s.repo.UpdateAtomic(ctx, userID, func(a *account.Account) error {
		if a.TokenBalance < amount {
			return ErrInsufficientTokens
		}
		a.TokenBalance -= amount
		a.TotalTokensUsed += amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.RecordDebit(amount, false)
	}
	return acct.TokenBalance, nil
}

// DebitClamped debits up to amount, flooring the balance at zero. The full
// amount is counted against TotalTokensUsed; the shortfall is forgiven.
// Used after a generation whose true cost exceeds the remaining balance,
// which the pre-check estimate bounds but cannot eliminate.
func (s *Service) DebitClamped(ctx context.Context, userID uuid.UUID, amount int64) (DebitResult, error) {
	if amount <= 0 {
		return DebitResult{}, ErrInvalidAmount
	}

	result := DebitResult{}
	acct, err := s.repo.UpdateAtomic(ctx, userID, func(a *account.Account) error {
		debited := amount
		if a.TokenBalance < amount {
			debited = a.TokenBalance
			result.Clamped = true
		}
		a.TokenBalance -= debited
		a.TotalTokensUsed += amount
		result.Debited = debited
		return nil
	})
	if err != nil {
		return DebitResult{}, err
	}
	result.NewBalance = acct.TokenBalance

	if s.metrics != nil {
		s.metrics.RecordDebit(result.Debited, result.Clamped)
	}
	if result.Clamped {
		s.logger.Warn("debit clamped to remaining balance",
			zap.String("user_id", userID.String()),
			zap.Int64("requested", amount),
			zap.Int64("debited", result.Debited),
		)
	}
	return result, nil
}

// Balance returns the current spendable balance.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	acct, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acct.TokenBalance, nil
}

// Compile-time check
var _ account.TokenGranter = (*Service)(nil)
