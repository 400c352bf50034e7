package api

import (
	"errors"
	"net/http"

	"entitlement-api/internal/response"
	"entitlement-api/internal/services"
	"entitlement-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// StripeWebhook receives signed asynchronous events from Stripe. Signature
// verification runs over the raw, unparsed payload — re-serializing first
// would invalidate the signature. A 2xx acknowledges handled or intentionally
// dropped events; a 5xx tells Stripe to redeliver after a transient failure.
// POST /api/webhook/stripe
func (h *Handlers) StripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		response.ValidationError(c, "Failed to read request body")
		return
	}
	if len(payload) == 0 {
		response.ValidationError(c, "Empty request body")
		return
	}

	if err := h.webhooks.Process(payload, c.GetHeader("Stripe-Signature")); err != nil {
		if errors.Is(err, services.ErrInvalidSignature) {
			logging.Warnf("Rejected webhook with bad signature: %v", err)
			response.Error(c, http.StatusBadRequest, response.CodeInvalidSignature, "signature verification failed")
			return
		}
		// Transient store/provider failure: answer 5xx so Stripe redelivers
		logging.Errorf("Webhook handling failed, requesting redelivery: %v", err)
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
