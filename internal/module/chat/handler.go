package chat

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chatforge/server/internal/module/account"
	"github.com/chatforge/server/internal/module/ledger"
	"github.com/chatforge/server/internal/utils/metrics"
	"github.com/chatforge/server/internal/utils/pagination"
)

// Handler handles HTTP requests for chat conversations.
type Handler struct {
	service *Service
	metrics *metrics.Metrics
}

// NewHandler creates a new chat handler. metrics may be nil.
func NewHandler(service *Service, m *metrics.Metrics) *Handler {
	return &Handler{service: service, metrics: m}
}

// RegisterRoutes registers chat routes. All routes require auth.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	chat := r.Group("/chat")
	{
		chat.POST("/message", h.SendMessage)
		chat.GET("/conversations", h.ListConversations)
		chat.GET("/conversations/:id", h.GetConversation)
		chat.DELETE("/conversations/:id", h.DeleteConversation)
	}
}

// SendMessage runs one chat turn for the current user.
func (h *Handler) SendMessage(c *gin.Context) {
	userID := getUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}

	conversationID := uuid.Nil
	if req.ConversationID != "" {
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "invalid conversation id"})
			return
		}
		conversationID = id
	}

	result, err := h.service.SendChatTurn(c.Request.Context(), userID, conversationID, req.Model, req.Message)
	if err != nil {
		handleError(c, err)
		return
	}

	if result.Fallback && h.metrics != nil {
		h.metrics.RecordChatFallback(result.AssistantMessage.Model)
	}

	c.JSON(http.StatusOK, result)
}

// ListConversations returns the user's threads, most recently active first.
func (h *Handler) ListConversations(c *gin.Context) {
	userID := getUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}

	p := pagination.New()
	if err := c.ShouldBindQuery(p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}

	convs, err := h.service.ListConversations(c.Request.Context(), userID, p.Offset(), p.Limit())
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": convs,
		"page":          p.Page,
		"page_size":     p.Limit(),
	})
}

// GetConversation returns one thread with its messages.
func (h *Handler) GetConversation(c *gin.Context) {
	userID := getUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "invalid conversation id"})
		return
	}

	conv, msgs, err := h.service.GetConversation(c.Request.Context(), id, userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ConversationDetail{Conversation: conv, Messages: msgs})
}

// DeleteConversation removes a thread and its messages.
func (h *Handler) DeleteConversation(c *gin.Context) {
	userID := getUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "invalid conversation id"})
		return
	}

	if err := h.service.DeleteConversation(c.Request.Context(), id, userID); err != nil {
		handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// --- Helpers ---

func getUserID(c *gin.Context) uuid.UUID {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return userID
}

func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_message", "message": "Message must not be empty"})
	case errors.Is(err, ledger.ErrInsufficientTokens):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient_tokens", "message": "Not enough tokens for this request"})
	case errors.Is(err, ErrOpusAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "opus_access_denied", "message": "Your plan does not include Claude Opus"})
	case errors.Is(err, ErrOpusLimitReached):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "opus_limit_reached", "message": "Daily Claude Opus limit reached"})
	case errors.Is(err, ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation_not_found", "message": "Conversation not found"})
	case errors.Is(err, account.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account_not_found", "message": "Account not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Something went wrong"})
	}
}
