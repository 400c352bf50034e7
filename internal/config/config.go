package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port string
	Mode string

	// Client authentication
	APIKey string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL string

	// Stripe configuration
	StripeSecretKey      string
	StripeWebhookSecret  string
	StripeMonthlyPriceID string
	StripeYearlyPriceID  string
	CheckoutSuccessURL   string
	CheckoutCancelURL    string
	PortalReturnURL      string

	// Apple receipt validation configuration
	AppleSharedSecret   string
	ReceiptDedupEnabled bool

	// Search provider configuration
	GoogleMapsAPIKey   string
	TicketmasterAPIKey string

	// Brevo email configuration
	BrevoAPIKey    string
	BrevoFromEmail string
	BrevoFromName  string

	// Admission control (requests per window, per route class)
	RateLimitWindowSeconds int
	BillingRateLimit       int
	SearchRateLimit        int

	// Cache TTLs (seconds)
	GeocodeCacheTTL int
	NearbyCacheTTL  int
	PhotoCacheTTL   int
	EventsCacheTTL  int
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = &Config{
		Port:                 getEnv("PORT", "8080"),
		Mode:                 getEnv("GIN_MODE", "debug"),
		APIKey:               getEnv("API_KEY", ""),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379/0"),
		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeMonthlyPriceID: getEnv("STRIPE_MONTHLY_PRICE_ID", ""),
		StripeYearlyPriceID:  getEnv("STRIPE_YEARLY_PRICE_ID", ""),
		CheckoutSuccessURL:   getEnv("CHECKOUT_SUCCESS_URL", "https://app.example.com/billing/success"),
		CheckoutCancelURL:    getEnv("CHECKOUT_CANCEL_URL", "https://app.example.com/billing/cancel"),
		PortalReturnURL:      getEnv("PORTAL_RETURN_URL", "https://app.example.com/account"),
		AppleSharedSecret:    getEnv("APPLE_SHARED_SECRET", ""),
		ReceiptDedupEnabled:  getEnvBool("RECEIPT_DEDUP_ENABLED", true),
		GoogleMapsAPIKey:     getEnv("GOOGLE_MAPS_API_KEY", ""),
		TicketmasterAPIKey:   getEnv("TICKETMASTER_API_KEY", ""),
		BrevoAPIKey:          getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail:       getEnv("BREVO_FROM_EMAIL", ""),
		BrevoFromName:        getEnv("BREVO_FROM_NAME", "Billing"),

		RateLimitWindowSeconds: getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		BillingRateLimit:       getEnvInt("BILLING_RATE_LIMIT", 30),
		SearchRateLimit:        getEnvInt("SEARCH_RATE_LIMIT", 60),

		GeocodeCacheTTL: getEnvInt("GEOCODE_CACHE_TTL", 30*24*3600),
		NearbyCacheTTL:  getEnvInt("NEARBY_CACHE_TTL", 24*3600),
		PhotoCacheTTL:   getEnvInt("PHOTO_CACHE_TTL", 7*24*3600),
		EventsCacheTTL:  getEnvInt("EVENTS_CACHE_TTL", 6*3600),
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
