package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"entitlement-api/internal/config"
	"entitlement-api/internal/database"
	"entitlement-api/internal/middleware"
	"entitlement-api/internal/response"
	"entitlement-api/internal/services"
	"entitlement-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// Handlers bundles the services behind the HTTP surface
type Handlers struct {
	ledger   *services.Ledger
	stripe   *services.StripeClient
	webhooks *services.WebhookProcessor
	receipts *services.ReceiptProcessor
	places   *services.PlacesService
	events   *services.EventsService
}

// SetupRoutes wires services, middleware, and routes onto the engine
func SetupRoutes(r *gin.Engine) {
	cfg := config.AppConfig

	ledger := services.NewLedger()
	stripeClient := services.NewStripeClient()
	mailer := services.NewMailer()

	var webhooks *services.WebhookProcessor
	if mailer != nil {
		webhooks = services.NewWebhookProcessor(ledger, stripeClient, mailer, cfg.StripeWebhookSecret)
	} else {
		webhooks = services.NewWebhookProcessor(ledger, stripeClient, nil, cfg.StripeWebhookSecret)
	}

	var receipts *services.ReceiptProcessor
	if cfg.AppleSharedSecret != "" {
		receipts = services.NewReceiptProcessor(ledger, services.NewAppleClient(cfg.AppleSharedSecret), cfg.ReceiptDedupEnabled)
	} else {
		receipts = services.NewReceiptProcessor(ledger, nil, cfg.ReceiptDedupEnabled)
	}

	// Cache and admission share the Redis client; both degrade without it
	var cache *services.Cache
	var counters services.CounterStore
	if redisClient := database.GetRedis(); redisClient != nil {
		cache = services.NewCache(services.NewRedisCacheStore(redisClient))
		counters = services.NewRedisCounterStore(redisClient)
	} else {
		cache = services.NewCache(nil)
		counters = services.NewMemoryCounterStore()
	}

	var places *services.PlacesService
	if cfg.GoogleMapsAPIKey != "" {
		var err error
		places, err = services.NewPlacesService(cache)
		if err != nil {
			logging.Errorf("Places service disabled: %v", err)
			places = nil
		}
	} else {
		logging.Warnf("GOOGLE_MAPS_API_KEY not set, place search endpoints disabled")
	}

	h := &Handlers{
		ledger:   ledger,
		stripe:   stripeClient,
		webhooks: webhooks,
		receipts: receipts,
		places:   places,
		events:   services.NewEventsService(cache),
	}

	window := time.Duration(cfg.RateLimitWindowSeconds) * time.Second

	api := r.Group("/api")
	{
		// Billing surface: checkout orchestration and entitlement reads
		subscription := api.Group("/subscription")
		subscription.Use(middleware.ClientAuthMiddleware())
		subscription.Use(middleware.RateLimit(counters, "billing", cfg.BillingRateLimit, window))
		{
			subscription.POST("/checkout", h.CreateCheckout)
			subscription.POST("/portal", h.CreatePortal)
			subscription.POST("/cancel", h.CancelSubscription)
			subscription.GET("/status", h.SubscriptionStatus)
		}

		// Receipt reconciliation surface, same route class as billing
		receipt := api.Group("/receipt")
		receipt.Use(middleware.ClientAuthMiddleware())
		receipt.Use(middleware.RateLimit(counters, "billing", cfg.BillingRateLimit, window))
		{
			receipt.POST("/validate", h.ValidateReceipt)
			receipt.POST("/restore", h.RestorePurchases)
			receipt.POST("/sync", h.SyncSubscription)
			receipt.POST("/expire", h.ExpireSubscription)
		}

		// Read-through search surface
		search := api.Group("/search")
		search.Use(middleware.ClientAuthMiddleware())
		search.Use(middleware.RateLimit(counters, "search", cfg.SearchRateLimit, window))
		{
			search.GET("/geocode", h.Geocode)
			search.GET("/nearby", h.Nearby)
			search.GET("/photo", h.Photo)
			search.GET("/events", h.SearchEvents)
		}

		// Stripe calls this; authenticated by the payload signature, exempt
		// from admission control
		api.POST("/webhook/stripe", h.StripeWebhook)
	}

	r.GET("/health", h.Health)
}

// Health reports service and dependency status
func (h *Handlers) Health(c *gin.Context) {
	store := "ok"
	if db := database.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err != nil {
			store = "error"
		} else if err := sqlDB.Ping(); err != nil {
			store = "error"
		}
	} else {
		store = "uninitialized"
	}

	cache := "disabled"
	if redisClient := database.GetRedis(); redisClient != nil {
		cache = "ok"
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			cache = "error"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "entitlement-api",
		"store":   store,
		"cache":   cache,
	})
}

// userIDFrom resolves the acting user from the request body, falling back to
// the authenticated identity header
func userIDFrom(c *gin.Context, bodyUserID string) string {
	if bodyUserID != "" {
		return bodyUserID
	}
	return c.GetString("user_id")
}

// respondServiceError maps the service error taxonomy onto HTTP statuses
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		response.Error(c, http.StatusBadRequest, response.CodeUserNotFound, "user record not found")
	case errors.Is(err, services.ErrCustomerNotFound):
		response.Error(c, http.StatusBadRequest, response.CodeUserNotFound, "no user matches that customer")
	case errors.Is(err, services.ErrReceiptInvalid):
		response.Error(c, http.StatusBadRequest, response.CodeReceiptInvalid, "receipt was rejected")
	case errors.Is(err, services.ErrInvalidSignature):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidSignature, "signature verification failed")
	case errors.Is(err, services.ErrProviderUnavailable):
		response.Error(c, http.StatusBadGateway, response.CodeProviderUnavailable, "upstream provider error")
	case errors.Is(err, services.ErrStoreUnavailable):
		response.Error(c, http.StatusServiceUnavailable, response.CodeStoreUnavailable, "record store unavailable")
	default:
		logging.Errorf("Unhandled service error: %v", err)
		response.Error(c, http.StatusInternalServerError, "internal_error", "unexpected failure")
	}
}
