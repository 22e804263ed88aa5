package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatforge/server/internal/adapter/outbound/llm"
	"github.com/chatforge/server/internal/module/account"
	"github.com/chatforge/server/internal/module/ledger"
	"github.com/chatforge/server/internal/module/usage"
)

type fakeRepo struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*Conversation
	messages      map[uuid.UUID][]*Message
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		conversations: make(map[uuid.UUID]*Conversation),
		messages:      make(map[uuid.UUID][]*Message),
	}
}

func (r *fakeRepo) CreateConversation(_ context.Context, conv *Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[conv.ID] = conv
	return nil
}

func (r *fakeRepo) GetConversation(_ context.Context, id, userID uuid.UUID) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok || conv.UserID != userID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (r *fakeRepo) ListConversations(_ context.Context, userID uuid.UUID, _, _ int) ([]*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Conversation
	for _, c := range r.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeRepo) TouchConversation(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conversations[id]; ok {
		c.UpdatedAt = at
	}
	return nil
}

func (r *fakeRepo) DeleteConversation(_ context.Context, id, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok || conv.UserID != userID {
		return ErrConversationNotFound
	}
	delete(r.conversations, id)
	delete(r.messages, id)
	return nil
}

func (r *fakeRepo) CreateMessage(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], msg)
	return nil
}

func (r *fakeRepo) ListMessages(_ context.Context, conversationID uuid.UUID) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[conversationID], nil
}

type fakeAccounts struct {
	accounts map[uuid.UUID]*account.Account
}

func (r *fakeAccounts) GetByID(_ context.Context, id uuid.UUID) (*account.Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAccounts) Create(_ context.Context, acct *account.Account) error {
	r.accounts[acct.ID] = acct
	return nil
}

func (r *fakeAccounts) UpdateProfile(_ context.Context, _ uuid.UUID, _ string) error { return nil }

func (r *fakeAccounts) UpdateAtomic(_ context.Context, id uuid.UUID, mutate func(*account.Account) error) (*account.Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	if err := mutate(a); err != nil {
		return nil, err
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAccounts) List(_ context.Context, _, _ int) ([]*account.Account, int64, error) {
	return nil, 0, nil
}

// fakeCompleter returns a canned response or a canned error.
type fakeCompleter struct {
	resp     *llm.Response
	err      error
	requests []*llm.Request
}

func (c *fakeCompleter) Chat(_ context.Context, req *llm.Request) (*llm.Response, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	return c.resp, nil
}

type fakeMeter struct {
	results []*usage.RecordResult
	usages  []usage.Usage
	balance int64
}

func (m *fakeMeter) RecordUsage(_ context.Context, _, _, _ uuid.UUID, _ string, u usage.Usage) (*usage.RecordResult, error) {
	m.usages = append(m.usages, u)
	m.balance -= u.Total()
	if m.balance < 0 {
		m.balance = 0
	}
	result := &usage.RecordResult{NewBalance: m.balance}
	m.results = append(m.results, result)
	return result, nil
}

type fakeOpusGate struct {
	used     int64
	recorded []int64
}

func (g *fakeOpusGate) UsedToday(_ context.Context, _ uuid.UUID) (int64, error) {
	return g.used, nil
}

func (g *fakeOpusGate) Record(_ context.Context, _ uuid.UUID, tokens int64) (int64, error) {
	g.recorded = append(g.recorded, tokens)
	g.used += tokens
	return g.used, nil
}

type chatFixture struct {
	svc       *Service
	repo      *fakeRepo
	accounts  *fakeAccounts
	completer *fakeCompleter
	meter     *fakeMeter
	opus      *fakeOpusGate
	userID    uuid.UUID
}

func newChatFixture(t *testing.T, acct *account.Account) *chatFixture {
	t.Helper()
	if acct == nil {
		acct = &account.Account{ID: uuid.New(), TokenBalance: 10_000}
	}
	repo := newFakeRepo()
	accounts := &fakeAccounts{accounts: map[uuid.UUID]*account.Account{acct.ID: acct}}
	completer := &fakeCompleter{resp: &llm.Response{
		Text:  "Hello there.",
		Usage: llm.Usage{InputTokens: 25, OutputTokens: 75},
	}}
	meter := &fakeMeter{balance: acct.TokenBalance}
	opus := &fakeOpusGate{}
	svc := NewService(repo, accounts, completer, meter, opus, DefaultConfig(), zap.NewNop())
	return &chatFixture{svc: svc, repo: repo, accounts: accounts, completer: completer, meter: meter, opus: opus, userID: acct.ID}
}

func TestService_SendChatTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("successful turn stores both messages and meters usage", func(t *testing.T) {
		f := newChatFixture(t, nil)

		result, err := f.svc.SendChatTurn(ctx, f.userID, uuid.Nil, "gpt-4o", "Hello!")
		require.NoError(t, err)
		assert.False(t, result.Fallback)
		assert.Equal(t, "Hello!", result.UserMessage.Content)
		assert.Equal(t, "Hello there.", result.AssistantMessage.Content)
		assert.Equal(t, int64(100), result.Usage.Total())
		assert.Equal(t, int64(9_900), result.NewBalance)

		msgs, _ := f.repo.ListMessages(ctx, result.Conversation.ID)
		assert.Len(t, msgs, 2)
		require.Len(t, f.meter.usages, 1)
		assert.Equal(t, int64(100), f.meter.usages[0].Total())
	})

	t.Run("empty message is rejected", func(t *testing.T) {
		f := newChatFixture(t, nil)

		_, err := f.svc.SendChatTurn(ctx, f.userID, uuid.Nil, "", "   \n ")
		assert.ErrorIs(t, err, ErrEmptyMessage)
		assert.Empty(t, f.completer.requests)
	})

	t.Run("pre-check rejects before any provider call", func(t *testing.T) {
		// 80 characters estimates to 20 input tokens plus the 100-token
		// response allowance, which a 50-token balance cannot cover.
		acct := &account.Account{ID: uuid.New(), TokenBalance: 50}
		f := newChatFixture(t, acct)
		message := strings.Repeat("a", 80)

		_, err := f.svc.SendChatTurn(ctx, acct.ID, uuid.Nil, "gpt-4o", message)
		assert.ErrorIs(t, err, ledger.ErrInsufficientTokens)
		assert.Empty(t, f.completer.requests)
		assert.Empty(t, f.meter.usages)
	})

	t.Run("provider failure returns a free fallback turn", func(t *testing.T) {
		f := newChatFixture(t, nil)
		f.completer.err = llm.ErrProvider

		result, err := f.svc.SendChatTurn(ctx, f.userID, uuid.Nil, "gpt-4o", "Hello?")
		require.NoError(t, err)
		assert.True(t, result.Fallback)
		assert.Equal(t, DefaultConfig().FallbackMessage, result.AssistantMessage.Content)
		assert.Equal(t, int64(10_000), result.NewBalance)
		assert.Empty(t, f.meter.usages)

		// Both the user message and the fallback are persisted.
		msgs, _ := f.repo.ListMessages(ctx, result.Conversation.ID)
		assert.Len(t, msgs, 2)
	})

	t.Run("new conversation takes its title from the first line", func(t *testing.T) {
		f := newChatFixture(t, nil)

		result, err := f.svc.SendChatTurn(ctx, f.userID, uuid.Nil, "gpt-4o", "First line\nsecond line")
		require.NoError(t, err)
		assert.Equal(t, "First line", result.Conversation.Title)
	})

	t.Run("follow-up turns reuse the conversation and send history", func(t *testing.T) {
		f := newChatFixture(t, nil)

		first, err := f.svc.SendChatTurn(ctx, f.userID, uuid.Nil, "gpt-4o", "Hello!")
		require.NoError(t, err)

		second, err := f.svc.SendChatTurn(ctx, f.userID, first.Conversation.ID, "gpt-4o", "And again")
		require.NoError(t, err)
		assert.Equal(t, first.Conversation.ID, second.Conversation.ID)

		// The second request carries the prior exchange plus the new turn.
		require.Len(t, f.completer.requests, 2)
		assert.Len(t, f.completer.requests[1].Messages, 3)
	})

	t.Run("another user's conversation is not found", func(t *testing.T) {
		f := newChatFixture(t, nil)

		first, err := f.svc.SendChatTurn(ctx, f.userID, uuid.Nil, "gpt-4o", "Hello!")
		require.NoError(t, err)

		stranger := &account.Account{ID: uuid.New(), TokenBalance: 10_000}
		require.NoError(t, f.accounts.Create(ctx, stranger))

		_, err = f.svc.SendChatTurn(ctx, stranger.ID, first.Conversation.ID, "gpt-4o", "Mine now")
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})

	t.Run("blank model falls back to the default", func(t *testing.T) {
		f := newChatFixture(t, nil)

		_, err := f.svc.SendChatTurn(ctx, f.userID, uuid.Nil, "", "Hello!")
		require.NoError(t, err)
		require.Len(t, f.completer.requests, 1)
		assert.Equal(t, DefaultConfig().DefaultModel, f.completer.requests[0].Model)
	})
}

func TestService_SendChatTurn_OpusGating(t *testing.T) {
	ctx := context.Background()

	t.Run("opus without access is denied", func(t *testing.T) {
		f := newChatFixture(t, nil)

		_, err := f.svc.SendChatTurn(ctx, f.userID, uuid.Nil, "claude-opus-4", "Hello!")
		assert.ErrorIs(t, err, ErrOpusAccessDenied)
		assert.Empty(t, f.completer.requests)
	})

	t.Run("opus within the daily allowance runs and is counted", func(t *testing.T) {
		acct := &account.Account{
			ID:                   uuid.New(),
			TokenBalance:         10_000,
			HasClaudeOpusAccess:  true,
			ClaudeOpusDailyLimit: 25_000,
		}
		f := newChatFixture(t, acct)

		result, err := f.svc.SendChatTurn(ctx, acct.ID, uuid.Nil, "claude-opus-4", "Hello!")
		require.NoError(t, err)
		assert.False(t, result.Fallback)
		assert.Equal(t, []int64{100}, f.opus.recorded)
	})

	t.Run("opus at the daily limit is rejected", func(t *testing.T) {
		acct := &account.Account{
			ID:                   uuid.New(),
			TokenBalance:         10_000,
			HasClaudeOpusAccess:  true,
			ClaudeOpusDailyLimit: 25_000,
		}
		f := newChatFixture(t, acct)
		f.opus.used = 25_000

		_, err := f.svc.SendChatTurn(ctx, acct.ID, uuid.Nil, "claude-opus-4", "Hello!")
		assert.ErrorIs(t, err, ErrOpusLimitReached)
		assert.Empty(t, f.completer.requests)
	})

	t.Run("non-opus models skip the gate", func(t *testing.T) {
		f := newChatFixture(t, nil)

		_, err := f.svc.SendChatTurn(ctx, f.userID, uuid.Nil, "claude-sonnet-4", "Hello!")
		require.NoError(t, err)
		assert.Empty(t, f.opus.recorded)
	})
}

func TestService_Conversations(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, nil)

	first, err := f.svc.SendChatTurn(ctx, f.userID, uuid.Nil, "gpt-4o", "One")
	require.NoError(t, err)
	_, err = f.svc.SendChatTurn(ctx, f.userID, uuid.Nil, "gpt-4o", "Two")
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		convs, err := f.svc.ListConversations(ctx, f.userID, 0, 10)
		require.NoError(t, err)
		assert.Len(t, convs, 2)
	})

	t.Run("get with messages", func(t *testing.T) {
		conv, msgs, err := f.svc.GetConversation(ctx, first.Conversation.ID, f.userID)
		require.NoError(t, err)
		assert.Equal(t, first.Conversation.ID, conv.ID)
		assert.Len(t, msgs, 2)
	})

	t.Run("delete removes the thread", func(t *testing.T) {
		require.NoError(t, f.svc.DeleteConversation(ctx, first.Conversation.ID, f.userID))

		_, _, err := f.svc.GetConversation(ctx, first.Conversation.ID, f.userID)
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})

	t.Run("delete unknown conversation", func(t *testing.T) {
		err := f.svc.DeleteConversation(ctx, uuid.New(), f.userID)
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})
}

func TestTitleFromMessage(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected string
	}{
		{"short message", "Hello", "Hello"},
		{"multiline keeps first line", "Line one\nline two", "Line one"},
		{"long message truncated", strings.Repeat("x", 80), strings.Repeat("x", 60)},
		{"surrounding whitespace trimmed", "  Hi  ", "Hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, titleFromMessage(tt.message))
		})
	}
}
