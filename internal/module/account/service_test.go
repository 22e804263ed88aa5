package account

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatforge/server/internal/module/identity"
)

type fakeRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*Account
}

func newFakeRepo(accts ...*Account) *fakeRepo {
	r := &fakeRepo{accounts: make(map[uuid.UUID]*Account)}
	for _, a := range accts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) Create(_ context.Context, acct *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[acct.ID]; ok {
		return ErrEmailExists
	}
	r.accounts[acct.ID] = acct
	return nil
}

func (r *fakeRepo) UpdateProfile(_ context.Context, id uuid.UUID, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.DisplayName = displayName
	return nil
}

func (r *fakeRepo) UpdateAtomic(_ context.Context, id uuid.UUID, mutate func(*Account) error) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	*a = cp
	result := cp
	return &result, nil
}

func (r *fakeRepo) List(_ context.Context, _, _ int) ([]*Account, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

// fakeGranter mimics the ledger's idempotent welcome grant.
type fakeGranter struct {
	repo   *fakeRepo
	amount int64
	calls  int
}

func (g *fakeGranter) GrantFreeTokensOnce(ctx context.Context, userID uuid.UUID) (GrantResult, error) {
	g.calls++
	granted := false
	acct, err := g.repo.UpdateAtomic(ctx, userID, func(a *Account) error {
		if a.FreeTokensGranted {
			return nil
		}
		a.TokenBalance += g.amount
		a.FreeTokensGranted = true
		granted = true
		return nil
	})
	if err != nil {
		return GrantResult{}, err
	}
	return GrantResult{Granted: granted, NewBalance: acct.TokenBalance}, nil
}

func newTestService(repo *fakeRepo) (*Service, *fakeGranter) {
	granter := &fakeGranter{repo: repo, amount: 50_000}
	return NewService(repo, granter, zap.NewNop()), granter
}

func TestService_VerifyAndBootstrap(t *testing.T) {
	ctx := context.Background()

	t.Run("verified signup creates account and grants tokens", func(t *testing.T) {
		repo := newFakeRepo()
		svc, _ := newTestService(repo)
		id := &identity.Identity{
			UserID:        uuid.New(),
			Email:         "alice@example.com",
			Name:          "Alice",
			EmailVerified: true,
		}

		result, err := svc.VerifyAndBootstrap(ctx, id)
		require.NoError(t, err)
		assert.True(t, result.IsNewAccount)
		assert.True(t, result.Transition.JustVerified)
		require.NotNil(t, result.Transition.Grant)
		assert.True(t, result.Transition.Grant.Granted)
		assert.Equal(t, int64(50_000), result.Account.TokenBalance)
		assert.Equal(t, "Alice", result.Account.DisplayName)
	})

	t.Run("unverified signup creates account without tokens", func(t *testing.T) {
		repo := newFakeRepo()
		svc, granter := newTestService(repo)
		id := &identity.Identity{
			UserID: uuid.New(),
			Email:  "bob@example.com",
		}

		result, err := svc.VerifyAndBootstrap(ctx, id)
		require.NoError(t, err)
		assert.True(t, result.IsNewAccount)
		assert.False(t, result.Transition.JustVerified)
		assert.Nil(t, result.Transition.Grant)
		assert.Equal(t, int64(0), result.Account.TokenBalance)
		assert.Equal(t, 0, granter.calls)
	})

	t.Run("display name falls back to email local part", func(t *testing.T) {
		repo := newFakeRepo()
		svc, _ := newTestService(repo)
		id := &identity.Identity{
			UserID:        uuid.New(),
			Email:         "carol@example.com",
			EmailVerified: true,
		}

		result, err := svc.VerifyAndBootstrap(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "carol", result.Account.DisplayName)
	})

	t.Run("existing account is not recreated", func(t *testing.T) {
		userID := uuid.New()
		repo := newFakeRepo(&Account{ID: userID, Email: "dave@example.com", TokenBalance: 123})
		svc, _ := newTestService(repo)
		id := &identity.Identity{UserID: userID, Email: "dave@example.com"}

		result, err := svc.VerifyAndBootstrap(ctx, id)
		require.NoError(t, err)
		assert.False(t, result.IsNewAccount)
		assert.Equal(t, int64(123), result.Account.TokenBalance)
	})
}

func TestService_ObserveVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("unverified to verified fires the grant once", func(t *testing.T) {
		userID := uuid.New()
		repo := newFakeRepo(&Account{ID: userID})
		svc, granter := newTestService(repo)

		transition, err := svc.ObserveVerification(ctx, userID, true)
		require.NoError(t, err)
		assert.True(t, transition.JustVerified)
		require.NotNil(t, transition.Grant)
		assert.True(t, transition.Grant.Granted)

		// Repeated verified observations keep calling the granter but it
		// stays a no-op.
		transition, err = svc.ObserveVerification(ctx, userID, true)
		require.NoError(t, err)
		assert.False(t, transition.JustVerified)
		require.NotNil(t, transition.Grant)
		assert.False(t, transition.Grant.Granted)
		assert.Equal(t, 2, granter.calls)

		acct, _ := repo.GetByID(ctx, userID)
		assert.Equal(t, int64(50_000), acct.TokenBalance)
	})

	t.Run("verified to unverified only updates the mirror", func(t *testing.T) {
		userID := uuid.New()
		repo := newFakeRepo(&Account{ID: userID, EmailVerified: true, FreeTokensGranted: true, TokenBalance: 10})
		svc, granter := newTestService(repo)

		transition, err := svc.ObserveVerification(ctx, userID, false)
		require.NoError(t, err)
		assert.False(t, transition.JustVerified)
		assert.Nil(t, transition.Grant)
		assert.Equal(t, 0, granter.calls)

		acct, _ := repo.GetByID(ctx, userID)
		assert.False(t, acct.EmailVerified)
		assert.Equal(t, int64(10), acct.TokenBalance)
	})

	t.Run("unknown account", func(t *testing.T) {
		svc, _ := newTestService(newFakeRepo())
		_, err := svc.ObserveVerification(ctx, uuid.New(), true)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	repo := newFakeRepo(&Account{ID: userID, DisplayName: "old"})
	svc, _ := newTestService(repo)

	t.Run("updates trimmed name", func(t *testing.T) {
		err := svc.UpdateProfile(ctx, userID, "  New Name  ")
		require.NoError(t, err)

		acct, _ := repo.GetByID(ctx, userID)
		assert.Equal(t, "New Name", acct.DisplayName)
	})

	t.Run("rejects blank names", func(t *testing.T) {
		err := svc.UpdateProfile(ctx, userID, "   ")
		assert.ErrorIs(t, err, ErrInvalidDisplayName)
	})
}
