package account

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatforge/server/internal/module/identity"
)

// GrantResult reports the outcome of the one-time welcome grant.
type GrantResult struct {
	Granted    bool  `json:"granted"`
	NewBalance int64 `json:"new_balance"`
}

// TokenGranter applies the idempotent welcome grant. Implemented by the
// token ledger.
type TokenGranter interface {
	GrantFreeTokensOnce(ctx context.Context, userID uuid.UUID) (GrantResult, error)
}

// VerificationTransition describes what the verification gate observed.
type VerificationTransition struct {
	JustVerified bool         `json:"just_verified"`
	Grant        *GrantResult `json:"grant,omitempty"`
}

// BootstrapResult is the outcome of verifying a bearer credential: the
// backing account (created lazily on first sight) and any verification
// transition that fired.
type BootstrapResult struct {
	Account      *Account                `json:"account"`
	Transition   *VerificationTransition `json:"transition"`
	IsNewAccount bool                    `json:"is_new_account"`
}

// Service owns account lifecycle and the email verification gate.
type Service struct {
	repo    Repository
	granter TokenGranter
	logger  *zap.Logger
}

// NewService creates a new account service.
func NewService(repo Repository, granter TokenGranter, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		granter: granter,
		logger:  logger,
	}
}

// VerifyAndBootstrap resolves an identity to its account, creating the
// account on first sight, then runs the verification gate against the
// provider's current verified-email claim.
func (s *Service) VerifyAndBootstrap(ctx context.Context, id *identity.Identity) (*BootstrapResult, error) {
	isNew := false
	acct, err := s.repo.GetByID(ctx, id.UserID)
	if errors.Is(err, ErrAccountNotFound) {
		acct = &Account{
			ID:          id.UserID,
			Email:       id.Email,
			DisplayName: displayName(id),
		}
		if err := s.repo.Create(ctx, acct); err != nil {
			return nil, err
		}
		isNew = true
		s.logger.Info("account created",
			zap.String("user_id", id.UserID.String()),
			zap.String("email", id.Email),
		)
	} else if err != nil {
		return nil, err
	}

	transition, err := s.ObserveVerification(ctx, id.UserID, id.EmailVerified)
	if err != nil {
		return nil, err
	}

	// Re-read so the response reflects the grant, if any.
	acct, err = s.repo.GetByID(ctx, id.UserID)
	if err != nil {
		return nil, err
	}

	return &BootstrapResult{
		Account:      acct,
		Transition:   transition,
		IsNewAccount: isNew,
	}, nil
}

// ObserveVerification mirrors the identity provider's verified-email claim
// onto the account and, on an unverified-to-verified transition, triggers
// the one-time welcome grant. Repeat observations with verifiedNow=true are
// safe no-ops: the grant's idempotence lives in the ledger. A
// verified-to-unverified observation only updates the mirror flag.
func (s *Service) ObserveVerification(ctx context.Context, userID uuid.UUID, verifiedNow bool) (*VerificationTransition, error) {
	wasVerified := false
	_, err := s.repo.UpdateAtomic(ctx, userID, func(a *Account) error {
		wasVerified = a.EmailVerified
		a.EmailVerified = verifiedNow
		return nil
	})
	if err != nil {
		return nil, err
	}

	transition := &VerificationTransition{
		JustVerified: !wasVerified && verifiedNow,
	}

	if verifiedNow {
		grant, err := s.granter.GrantFreeTokensOnce(ctx, userID)
		if err != nil {
			return nil, err
		}
		transition.Grant = &grant
	}
	return transition, nil
}

// GetAccount returns the account for the given user.
func (s *Service) GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error) {
	return s.repo.GetByID(ctx, userID)
}

// UpdateProfile updates the display name.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return ErrInvalidDisplayName
	}
	return s.repo.UpdateProfile(ctx, userID, displayName)
}

// ListAccounts returns a page of accounts, newest first.
func (s *Service) ListAccounts(ctx context.Context, offset, limit int) ([]*Account, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, offset, limit)
}

func displayName(id *identity.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	if at := strings.Index(id.Email, "@"); at > 0 {
		return id.Email[:at]
	}
	return id.Email
}
