package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatforge/server/internal/adapter/outbound/llm"
	"github.com/chatforge/server/internal/module/account"
	"github.com/chatforge/server/internal/module/ledger"
	"github.com/chatforge/server/internal/module/usage"
)

// Completer performs one chat completion. Satisfied by the provider
// registry and by the circuit-breaker wrappers around it.
type Completer interface {
	Chat(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// Meterer settles one exchange against the token ledger.
type Meterer interface {
	RecordUsage(ctx context.Context, userID, conversationID, messageID uuid.UUID, model string, u usage.Usage) (*usage.RecordResult, error)
}

// OpusGate tracks per-day Claude Opus token consumption.
type OpusGate interface {
	UsedToday(ctx context.Context, userID uuid.UUID) (int64, error)
	Record(ctx context.Context, userID uuid.UUID, tokens int64) (int64, error)
}

// Config holds chat turn settings.
type Config struct {
	// MinResponseAllowance is the response floor added to the input
	// estimate for the pre-check.
	MinResponseAllowance int64
	// MaxTokens caps the provider-side generation length.
	MaxTokens int
	// HistoryLimit bounds how many prior messages are sent as context.
	HistoryLimit int
	// FallbackMessage is returned at zero cost when the provider fails.
	FallbackMessage string
	// DefaultModel is used when a request names no model.
	DefaultModel string
}

// DefaultConfig returns the production chat settings.
func DefaultConfig() Config {
	return Config{
		MinResponseAllowance: 100,
		MaxTokens:            4096,
		HistoryLimit:         20,
		FallbackMessage:      "Sorry, I'm having trouble responding right now. Please try again in a moment. This message cost you no tokens.",
		DefaultModel:         "gpt-4o-mini",
	}
}

// Service orchestrates one chat turn: pre-check, provider call, metered
// debit, and message persistence.
type Service struct {
	repo      Repository
	accounts  account.Repository
	completer Completer
	meter     Meterer
	opus      OpusGate
	config    Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new chat service.
func NewService(
	repo Repository,
	accounts account.Repository,
	completer Completer,
	meter Meterer,
	opus OpusGate,
	config Config,
	logger *zap.Logger,
) *Service {
	def := DefaultConfig()
	if config.MinResponseAllowance <= 0 {
		config.MinResponseAllowance = def.MinResponseAllowance
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = def.MaxTokens
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = def.HistoryLimit
	}
	if config.FallbackMessage == "" {
		config.FallbackMessage = def.FallbackMessage
	}
	if config.DefaultModel == "" {
		config.DefaultModel = def.DefaultModel
	}
	return &Service{
		repo:      repo,
		accounts:  accounts,
		completer: completer,
		meter:     meter,
		opus:      opus,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// TurnResult is the outcome of one chat turn.
type TurnResult struct {
	Conversation     *Conversation `json:"conversation"`
	UserMessage      *Message      `json:"user_message"`
	AssistantMessage *Message      `json:"assistant_message"`
	Usage            usage.Usage   `json:"usage"`
	NewBalance       int64         `json:"new_balance"`
	Fallback         bool          `json:"fallback"`
}

// SendChatTurn runs one exchange. The pre-check estimates a lower-bound
// cost from the input length plus the response allowance and rejects the
// turn before any provider call when the balance is below it. A provider
// failure produces a fallback assistant message at zero token cost with
// no debit. conversationID may be uuid.Nil to start a new thread.
func (s *Service) SendChatTurn(ctx context.Context, userID, conversationID uuid.UUID, model, message string) (*TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if model == "" {
		model = s.config.DefaultModel
	}

	acct, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	estimate := s.estimateCost(message)
	if acct.TokenBalance < estimate {
		s.logger.Info("chat turn rejected by pre-check",
			zap.String("user_id", userID.String()),
			zap.Int64("balance", acct.TokenBalance),
			zap.Int64("estimate", estimate),
		)
		return nil, ledger.ErrInsufficientTokens
	}

	if llm.IsOpusModel(model) {
		if err := s.checkOpusAccess(ctx, acct); err != nil {
			return nil, err
		}
	}

	conv, err := s.resolveConversation(ctx, userID, conversationID, model, message)
	if err != nil {
		return nil, err
	}

	userMsg := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           MessageRoleUser,
		Content:        message,
		CreatedAt:      s.now(),
	}
	if err := s.repo.CreateMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	req, err := s.buildRequest(ctx, conv.ID, model)
	if err != nil {
		return nil, err
	}

	resp, err := s.completer.Chat(ctx, req)
	if err != nil {
		// Failed generations are free: no debit, fallback message.
		s.logger.Warn("provider call failed, returning fallback",
			zap.String("user_id", userID.String()),
			zap.String("model", model),
			zap.Error(err),
		)
		return s.fallbackTurn(ctx, conv, userMsg, model, acct.TokenBalance)
	}

	assistantMsg := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           MessageRoleAssistant,
		Content:        resp.Text,
		Model:          model,
		TokenCount:     resp.Usage.InputTokens + resp.Usage.OutputTokens,
		CreatedAt:      s.now(),
	}
	if err := s.repo.CreateMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}

	u := usage.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	record, err := s.meter.RecordUsage(ctx, userID, conv.ID, assistantMsg.ID, model, u)
	if err != nil {
		return nil, err
	}

	if llm.IsOpusModel(model) && s.opus != nil {
		if _, err := s.opus.Record(ctx, userID, u.Total()); err != nil {
			s.logger.Error("failed to record opus usage",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
	}

	if err := s.repo.TouchConversation(ctx, conv.ID, s.now()); err != nil {
		s.logger.Warn("failed to touch conversation",
			zap.String("conversation_id", conv.ID.String()),
			zap.Error(err),
		)
	}

	return &TurnResult{
		Conversation:     conv,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Usage:            u,
		NewBalance:       record.NewBalance,
	}, nil
}

// estimateCost is the pre-check lower bound: roughly four characters per
// token on the input, plus the minimum response allowance.
func (s *Service) estimateCost(message string) int64 {
	inputEstimate := int64(len(message)+3) / 4
	return inputEstimate + s.config.MinResponseAllowance
}

func (s *Service) checkOpusAccess(ctx context.Context, acct *account.Account) error {
	if !acct.HasClaudeOpusAccess {
		return ErrOpusAccessDenied
	}
	if s.opus == nil || acct.ClaudeOpusDailyLimit <= 0 {
		return nil
	}
	used, err := s.opus.UsedToday(ctx, acct.ID)
	if err != nil {
		return err
	}
	if used >= acct.ClaudeOpusDailyLimit {
		return ErrOpusLimitReached
	}
	return nil
}

func (s *Service) resolveConversation(ctx context.Context, userID, conversationID uuid.UUID, model, message string) (*Conversation, error) {
	if conversationID != uuid.Nil {
		return s.repo.GetConversation(ctx, conversationID, userID)
	}
	now := s.now()
	conv := &Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     titleFromMessage(message),
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Service) buildRequest(ctx context.Context, conversationID uuid.UUID, model string) (*llm.Request, error) {
	history, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(history) > s.config.HistoryLimit {
		history = history[len(history)-s.config.HistoryLimit:]
	}

	messages := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == MessageRoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}

	return &llm.Request{
		Model:     model,
		Messages:  messages,
		MaxTokens: s.config.MaxTokens,
	}, nil
}

func (s *Service) fallbackTurn(ctx context.Context, conv *Conversation, userMsg *Message, model string, balance int64) (*TurnResult, error) {
	assistantMsg := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           MessageRoleAssistant,
		Content:        s.config.FallbackMessage,
		Model:          model,
		CreatedAt:      s.now(),
	}
	if err := s.repo.CreateMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}
	return &TurnResult{
		Conversation:     conv,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		NewBalance:       balance,
		Fallback:         true,
	}, nil
}

// ListConversations returns the user's threads, most recently active first.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListConversations(ctx, userID, offset, limit)
}

// GetConversation returns one thread with its messages.
func (s *Service) GetConversation(ctx context.Context, id, userID uuid.UUID) (*Conversation, []*Message, error) {
	conv, err := s.repo.GetConversation(ctx, id, userID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// DeleteConversation removes a thread and its messages.
func (s *Service) DeleteConversation(ctx context.Context, id, userID uuid.UUID) error {
	return s.repo.DeleteConversation(ctx, id, userID)
}

func titleFromMessage(message string) string {
	const maxTitle = 60
	title := strings.TrimSpace(message)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if len(title) > maxTitle {
		title = title[:maxTitle]
	}
	return title
}
