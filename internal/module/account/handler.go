package account

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chatforge/server/internal/module/identity"
	"github.com/chatforge/server/internal/utils/middleware"
)

// Handler handles HTTP requests for accounts and the verification gate.
type Handler struct {
	service *Service
}

// NewHandler creates a new account handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers account routes. All routes require auth.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/verify", h.Verify)
		auth.GET("/check-verification", h.CheckVerification)
	}
	acct := r.Group("/account")
	{
		acct.GET("/me", h.GetMe)
		acct.PUT("/profile", h.UpdateProfile)
	}
}

// RegisterAdminRoutes registers admin-only account routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/accounts", h.ListAccounts)
}

// Verify resolves the bearer identity to an account, creating it on first
// sight, and runs the verification gate.
func (h *Handler) Verify(c *gin.Context) {
	id := middleware.GetIdentity(c)
	if id == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}

	result, err := h.service.VerifyAndBootstrap(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account":        result.Account.ToResponse(),
		"transition":     result.Transition,
		"is_new_account": result.IsNewAccount,
	})
}

// CheckVerification re-runs the verification gate for the current identity
// and reports the grant outcome. Safe to call repeatedly.
func (h *Handler) CheckVerification(c *gin.Context) {
	id := middleware.GetIdentity(c)
	if id == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}

	transition, err := h.service.ObserveVerification(c.Request.Context(), id.UserID, id.EmailVerified)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, transition)
}

// GetMe returns the current account.
func (h *Handler) GetMe(c *gin.Context) {
	userID := getUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}

	acct, err := h.service.GetAccount(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, acct.ToResponse())
}

// UpdateProfile updates the display name.
func (h *Handler) UpdateProfile(c *gin.Context) {
	userID := getUserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}

	if err := h.service.UpdateProfile(c.Request.Context(), userID, req.DisplayName); err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile updated"})
}

// ListAccounts returns a page of accounts for the admin dashboard.
func (h *Handler) ListAccounts(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	accounts, total, err := h.service.ListAccounts(c.Request.Context(), offset, limit)
	if err != nil {
		handleError(c, err)
		return
	}

	responses := make([]*AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		responses = append(responses, a.ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"accounts": responses,
		"total":    total,
	})
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
	case errors.Is(err, ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account_not_found", "message": "Account not found"})
	case errors.Is(err, ErrEmailExists):
		c.JSON(http.StatusConflict, gin.H{"error": "email_already_registered", "message": "Email already registered"})
	case errors.Is(err, ErrInvalidDisplayName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_display_name", "message": "Display name must not be empty"})
	case errors.Is(err, identity.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Invalid or expired token"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Something went wrong"})
	}
}
