package usage

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chatforge/server/internal/module/account"
	"github.com/chatforge/server/internal/utils/pagination"
)

// Handler handles HTTP requests for usage reporting.
type Handler struct {
	meter *Meter
}

// NewHandler creates a new usage handler.
func NewHandler(meter *Meter) *Handler {
	return &Handler{meter: meter}
}

// RegisterRoutes registers usage routes. All routes require auth.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	usage := r.Group("/usage")
	{
		usage.GET("/events", h.Events)
		usage.GET("/stats", h.Stats)
	}
}

// Events returns the user's usage events, newest first.
func (h *Handler) Events(c *gin.Context) {
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

	events, err := h.meter.History(c.Request.Context(), userID, p.Offset(), p.Limit())
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":    events,
		"page":      p.Page,
		"page_size": p.Limit(),
	})
}

// Stats aggregates the user's usage over a trailing window of days.
func (h *Handler) Stats(c *gin.Context) {
	userID := getUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}

	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days < 1 || days > 365 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "days must be between 1 and 365"})
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	stats, err := h.meter.Stats(c.Request.Context(), userID, start, end)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
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
	case errors.Is(err, account.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account_not_found", "message": "Account not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Something went wrong"})
	}
}
