package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"entitlement-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v76"
)

const webhookTestSecret = "whsec_test_secret"

func newWebhookRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &Handlers{
		webhooks: services.NewWebhookProcessor(services.NewLedger(), nil, nil, webhookTestSecret),
	}
	r := gin.New()
	r.POST("/api/webhook/stripe", h.StripeWebhook)
	return r
}

func stripeSignature(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(r *gin.Engine, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStripeWebhookRejectsEmptyBody(t *testing.T) {
	r := newWebhookRouter()

	w := postWebhook(r, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	r := newWebhookRouter()

	payload := []byte(`{"id":"evt_1","type":"customer.created"}`)
	w := postWebhook(r, payload, "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_signature")
}

func TestStripeWebhookAcknowledgesSignedEvent(t *testing.T) {
	r := newWebhookRouter()

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_1","object":"event","api_version":%q,"type":"customer.created","data":{"object":{"id":"cus_1"}}}`,
		stripe.APIVersion,
	))
	w := postWebhook(r, payload, stripeSignature(payload, webhookTestSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "received")
}
