package api

import (
	"net/http"

	"entitlement-api/internal/response"

	"github.com/gin-gonic/gin"
)

// ValidateReceiptRequest represents a receipt validation request
type ValidateReceiptRequest struct {
	UserID        string `json:"user_id"`
	ReceiptData   string `json:"receipt_data" binding:"required"`
	ProductID     string `json:"product_id" binding:"required"`
	TransactionID string `json:"transaction_id"`
}

// ValidateReceipt verifies a client-reported purchase and upgrades the user.
// Reporting the same transaction twice mutates the ledger exactly once.
// POST /api/receipt/validate
func (h *Handlers) ValidateReceipt(c *gin.Context) {
	var req ValidateReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Invalid request format: "+err.Error())
		return
	}

	userID := userIDFrom(c, req.UserID)
	if userID == "" {
		response.ValidationError(c, "user_id is required")
		return
	}

	result, err := h.receipts.ValidateAndUpgrade(c.Request.Context(), userID, req.ReceiptData, req.ProductID, req.TransactionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"already_processed": result.AlreadyProcessed,
		"subscription_type": result.SubscriptionType,
		"expires_at":        result.ExpiresAt,
	})
}

// RestorePurchasesRequest represents a restore request
type RestorePurchasesRequest struct {
	UserID   string   `json:"user_id"`
	Products []string `json:"products" binding:"required,min=1"`
}

// RestorePurchases re-applies ownership the client reports from the store
// POST /api/receipt/restore
func (h *Handlers) RestorePurchases(c *gin.Context) {
	var req RestorePurchasesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Invalid request format: "+err.Error())
		return
	}

	userID := userIDFrom(c, req.UserID)
	if userID == "" {
		response.ValidationError(c, "user_id is required")
		return
	}

	productID, err := h.receipts.Restore(userID, req.Products)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"product_id": productID,
	})
}

// SyncSubscriptionRequest represents a sync request. An empty active set is
// meaningful: it asks for the expiry check.
type SyncSubscriptionRequest struct {
	UserID         string   `json:"user_id"`
	ActiveProducts []string `json:"active_products"`
}

// SyncSubscription reconciles the ledger with the client's current store state
// POST /api/receipt/sync
func (h *Handlers) SyncSubscription(c *gin.Context) {
	var req SyncSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Invalid request format: "+err.Error())
		return
	}

	userID := userIDFrom(c, req.UserID)
	if userID == "" {
		response.ValidationError(c, "user_id is required")
		return
	}

	updated, err := h.receipts.Sync(userID, req.ActiveProducts)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"updated": updated,
	})
}

// ExpireSubscriptionRequest represents a forced expiry check
type ExpireSubscriptionRequest struct {
	UserID string `json:"user_id"`
}

// ExpireSubscription forces the expiry check, identical to a sync with an
// empty active set
// POST /api/receipt/expire
func (h *Handlers) ExpireSubscription(c *gin.Context) {
	var req ExpireSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Invalid request format: "+err.Error())
		return
	}

	userID := userIDFrom(c, req.UserID)
	if userID == "" {
		response.ValidationError(c, "user_id is required")
		return
	}

	updated, err := h.receipts.Sync(userID, nil)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"updated": updated,
	})
}
