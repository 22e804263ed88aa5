package purchase

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chatforge/server/internal/module/account"
	"github.com/chatforge/server/internal/module/pricing"
	"github.com/chatforge/server/internal/utils/metrics"
)

// Handler handles HTTP requests for token purchases.
type Handler struct {
	service *Service
	metrics *metrics.Metrics
}

// NewHandler creates a new purchase handler. metrics may be nil.
func NewHandler(service *Service, m *metrics.Metrics) *Handler {
	return &Handler{service: service, metrics: m}
}

// RegisterRoutes registers purchase routes. All routes require auth.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	tokens := r.Group("/tokens")
	{
		tokens.POST("/calculate-price", h.CalculatePrice)
		tokens.POST("/purchase", h.Purchase)
		tokens.GET("/purchases", h.History)
	}
}

// CalculatePrice quotes a token amount without settling anything.
func (h *Handler) CalculatePrice(c *gin.Context) {
	var req CalculatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}

	quote, err := h.service.Quote(req.TokenAmount, parseCurrency(req.Currency))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// Purchase settles a token purchase for the current user.
func (h *Handler) Purchase(c *gin.Context) {
	userID := getUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}

	record, err := h.service.Purchase(c.Request.Context(), userID, req.TokenAmount, parseCurrency(req.Currency))
	if err != nil {
		if h.metrics != nil && errors.Is(err, ErrSettlementFailed) {
			h.metrics.RecordPurchase(string(parseCurrency(req.Currency)), "", "failed")
		}
		handleError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordPurchase(string(record.Currency), record.Tier, string(record.Status))
	}

	c.JSON(http.StatusCreated, record)
}

// History returns the user's purchases, newest first.
func (h *Handler) History(c *gin.Context) {
	userID := getUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}

	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	records, err := h.service.History(c.Request.Context(), userID, offset, limit)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchases": records})
}

// --- Helpers ---

// parseCurrency defaults blank input to USD; invalid codes flow through to
// the converter, which rejects them.
func parseCurrency(s string) pricing.Currency {
	if s == "" {
		return pricing.CurrencyUSD
	}
	return pricing.Currency(s)
}

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
	case errors.Is(err, ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": "Token amount must be between 10,000 and 10,000,000"})
	case errors.Is(err, pricing.ErrUnsupportedCurrency):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_currency", "message": "Currency is not supported"})
	case errors.Is(err, ErrSettlementFailed):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "settlement_failed", "message": "Payment was declined"})
	case errors.Is(err, account.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account_not_found", "message": "Account not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Something went wrong"})
	}
}
