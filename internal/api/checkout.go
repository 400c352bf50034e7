package api

import (
	"net/http"
	"time"

	"entitlement-api/internal/config"
	"entitlement-api/internal/response"
	"entitlement-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// CreateCheckoutRequest represents a checkout session request
type CreateCheckoutRequest struct {
	UserID    string `json:"user_id"`
	Plan      string `json:"plan" binding:"required,oneof=monthly yearly"`
	TrialDays int64  `json:"trial_days"`
}

// CreateCheckout creates a provider-hosted checkout session
// POST /api/subscription/checkout
func (h *Handlers) CreateCheckout(c *gin.Context) {
	var req CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Invalid request format: "+err.Error())
		return
	}

	userID := userIDFrom(c, req.UserID)
	if userID == "" {
		response.ValidationError(c, "user_id is required")
		return
	}

	record, err := h.ledger.GetEntitlement(userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	priceID := config.AppConfig.StripeMonthlyPriceID
	if req.Plan == "yearly" {
		priceID = config.AppConfig.StripeYearlyPriceID
	}
	if priceID == "" {
		response.ValidationError(c, "no price configured for plan "+req.Plan)
		return
	}

	session, err := h.stripe.CreateCheckoutSession(userID, record.Email, record.StripeCustomerID, priceID, req.TrialDays)
	if err != nil {
		logging.Errorf("Failed to create checkout session for user %s: %v", userID, err)
		response.Error(c, http.StatusBadGateway, response.CodeProviderUnavailable, "failed to create checkout session")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"url":       session.URL,
		"sessionId": session.ID,
	})
}

// CreatePortalRequest represents a billing-portal session request
type CreatePortalRequest struct {
	UserID string `json:"user_id"`
}

// CreatePortal creates a billing-portal session for an existing customer
// POST /api/subscription/portal
func (h *Handlers) CreatePortal(c *gin.Context) {
	var req CreatePortalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Invalid request format: "+err.Error())
		return
	}

	userID := userIDFrom(c, req.UserID)
	if userID == "" {
		response.ValidationError(c, "user_id is required")
		return
	}

	record, err := h.ledger.GetEntitlement(userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if record.StripeCustomerID == "" {
		response.ValidationError(c, "no billing account on record for this user")
		return
	}

	session, err := h.stripe.CreatePortalSession(record.StripeCustomerID)
	if err != nil {
		logging.Errorf("Failed to create portal session for user %s: %v", userID, err)
		response.Error(c, http.StatusBadGateway, response.CodeProviderUnavailable, "failed to create portal session")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"url":     session.URL,
	})
}

// CancelSubscriptionRequest represents a cancel request
type CancelSubscriptionRequest struct {
	UserID string `json:"user_id"`
}

// CancelSubscription flags the user's subscription to cancel at period end.
// The authoritative entitlement change still arrives via webhook; the stamp
// written here just makes the pending cancellation visible immediately.
// POST /api/subscription/cancel
func (h *Handlers) CancelSubscription(c *gin.Context) {
	var req CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Invalid request format: "+err.Error())
		return
	}

	userID := userIDFrom(c, req.UserID)
	if userID == "" {
		response.ValidationError(c, "user_id is required")
		return
	}

	record, err := h.ledger.GetEntitlement(userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if record.StripeSubscriptionID == "" {
		response.ValidationError(c, "no active web subscription on record for this user")
		return
	}

	sub, err := h.stripe.CancelAtPeriodEnd(record.StripeSubscriptionID)
	if err != nil {
		logging.Errorf("Failed to cancel subscription for user %s: %v", userID, err)
		response.Error(c, http.StatusBadGateway, response.CodeProviderUnavailable, "failed to cancel subscription")
		return
	}

	var cancelAt *time.Time
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0)
		cancelAt = &t
		if _, err := h.ledger.MutateEntitlement(userID, map[string]interface{}{
			"subscription_will_cancel_at": t,
		}); err != nil {
			logging.Warnf("Failed to stamp pending cancellation for user %s: %v", userID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"cancel_at": cancelAt,
	})
}

// SubscriptionStatus returns the user's entitlement record
// GET /api/subscription/status
func (h *Handlers) SubscriptionStatus(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		userID = c.GetString("user_id")
	}
	if userID == "" {
		response.ValidationError(c, "user_id is required")
		return
	}

	record, err := h.ledger.GetEntitlement(userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, record)
}
