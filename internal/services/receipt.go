package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"entitlement-api/internal/database"
	"entitlement-api/internal/models"
	"entitlement-api/pkg/logging"

	"gorm.io/gorm"
)

// Subscription plan types derived from the product id marker
const (
	SubscriptionTypeMonthly = "monthly"
	SubscriptionTypeYearly  = "yearly"
)

// receiptVerifier is the slice of the receipt-validation service the
// processor depends on
type receiptVerifier interface {
	Verify(ctx context.Context, receiptData string) (*AppleReceiptVerification, error)
}

// ReceiptProcessor reconciles client-reported App Store purchases with the
// ledger. All three operations are idempotent. A nil verifier is the
// explicit soft-launch trust-the-client mode: receipts are accepted without
// remote validation and every such acceptance is logged.
type ReceiptProcessor struct {
	ledger       *Ledger
	verifier     receiptVerifier
	dedupEnabled bool
}

// NewReceiptProcessor creates a new receipt processor
func NewReceiptProcessor(ledger *Ledger, verifier receiptVerifier, dedupEnabled bool) *ReceiptProcessor {
	if verifier == nil {
		logging.Warnf("Receipt validation running in trust-the-client mode: no shared secret configured, receipts will not be verified remotely")
	}
	return &ReceiptProcessor{
		ledger:       ledger,
		verifier:     verifier,
		dedupEnabled: dedupEnabled,
	}
}

// ValidateResult is the outcome of a validate-and-upgrade call
type ValidateResult struct {
	AlreadyProcessed bool       `json:"already_processed"`
	SubscriptionType string     `json:"subscription_type"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	Environment      string     `json:"environment,omitempty"`
}

// ValidateAndUpgrade verifies a receipt and upgrades the user to premium on
// the apple platform. The same transaction reported twice mutates the ledger
// exactly once; the second call returns AlreadyProcessed.
func (p *ReceiptProcessor) ValidateAndUpgrade(ctx context.Context, userID, receiptData, productID, transactionID string) (*ValidateResult, error) {
	if p.dedupEnabled && transactionID != "" {
		txn, err := database.GetProcessedTransaction(transactionID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if txn != nil {
			logging.Infof("Transaction %s already processed for user %s, skipping", transactionID, txn.UserID)
			return &ValidateResult{
				AlreadyProcessed: true,
				SubscriptionType: subscriptionTypeFor(txn.ProductID),
			}, nil
		}
	}

	environment := ""
	if p.verifier != nil {
		verification, err := p.verifier.Verify(ctx, receiptData)
		if err != nil {
			return nil, err
		}
		environment = verification.Environment
	} else {
		logging.Warnf("Accepting unverified receipt for user %s (trust-the-client mode)", userID)
	}

	subType := subscriptionTypeFor(productID)
	// Best-effort local estimate; the store's own billing remains
	// authoritative for the actual renewal date
	months := 1
	if subType == SubscriptionTypeYearly {
		months = 12
	}
	expiresAt := time.Now().AddDate(0, months, 0)

	if transactionID != "" {
		err := database.CreateProcessedTransaction(&models.ProcessedTransaction{
			TransactionID: transactionID,
			UserID:        userID,
			ProductID:     productID,
			ProcessedAt:   time.Now(),
		})
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// A concurrent request won the check-then-write race; the
				// unique index kept the mutation single
				logging.Infof("Transaction %s recorded concurrently, skipping duplicate upgrade", transactionID)
				return &ValidateResult{AlreadyProcessed: true, SubscriptionType: subType}, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	_, err := p.ledger.MutateEntitlement(userID, map[string]interface{}{
		"subscription_status":       models.StatusPremium,
		"subscription_platform":     models.PlatformApple,
		"apple_product_id":          productID,
		"apple_subscription_expiry": expiresAt,
	})
	if err != nil {
		return nil, err
	}

	logging.Infof("Receipt validated for user %s: product=%s type=%s env=%s", userID, productID, subType, environment)
	return &ValidateResult{
		SubscriptionType: subType,
		ExpiresAt:        &expiresAt,
		Environment:      environment,
	}, nil
}

// Restore upgrades the user based on the products the client reports owning.
// Restore carries no transaction dedup: the same inputs always converge on
// the same target state.
func (p *ReceiptProcessor) Restore(userID string, ownedProducts []string) (string, error) {
	best := pickBestProduct(ownedProducts)
	if best == "" {
		return "", fmt.Errorf("no owned products reported")
	}

	_, err := p.ledger.MutateEntitlement(userID, map[string]interface{}{
		"subscription_status":   models.StatusPremium,
		"subscription_platform": models.PlatformApple,
		"apple_product_id":      best,
	})
	if err != nil {
		return "", err
	}

	logging.Infof("Restored purchases for user %s: product=%s", userID, best)
	return best, nil
}

// Sync reconciles the ledger with the client's currently-active product set.
// A non-empty set upgrades only when the ledger disagrees. An empty set
// downgrades only a past-expiry apple subscription; a missing expiry means no
// forced downgrade (implicit grace).
func (p *ReceiptProcessor) Sync(userID string, activeProducts []string) (bool, error) {
	record, err := p.ledger.GetEntitlement(userID)
	if err != nil {
		return false, err
	}

	if len(activeProducts) > 0 {
		best := pickBestProduct(activeProducts)
		if record.SubscriptionStatus == models.StatusPremium &&
			record.SubscriptionPlatform == models.PlatformApple &&
			record.AppleProductID == best {
			// Already agrees, avoid the redundant write
			return false, nil
		}
		_, err := p.ledger.MutateEntitlement(userID, map[string]interface{}{
			"subscription_status":   models.StatusPremium,
			"subscription_platform": models.PlatformApple,
			"apple_product_id":      best,
		})
		if err != nil {
			return false, err
		}
		logging.Infof("Sync upgraded user %s to premium: product=%s", userID, best)
		return true, nil
	}

	if record.SubscriptionPlatform == models.PlatformApple &&
		record.AppleSubscriptionExpiry != nil &&
		record.AppleSubscriptionExpiry.Before(time.Now()) {
		_, err := p.ledger.MutateEntitlement(userID, map[string]interface{}{
			"subscription_status": models.StatusFree,
		})
		if err != nil {
			return false, err
		}
		logging.Infof("Sync downgraded user %s: apple subscription expired at %s", userID, record.AppleSubscriptionExpiry.Format(time.RFC3339))
		return true, nil
	}

	return false, nil
}

// subscriptionTypeFor derives the plan type from the product id marker
func subscriptionTypeFor(productID string) string {
	lower := strings.ToLower(productID)
	if strings.Contains(lower, "yearly") || strings.Contains(lower, "annual") {
		return SubscriptionTypeYearly
	}
	return SubscriptionTypeMonthly
}

// pickBestProduct prefers a yearly product over a monthly one, else the first
func pickBestProduct(products []string) string {
	if len(products) == 0 {
		return ""
	}
	for _, p := range products {
		if subscriptionTypeFor(p) == SubscriptionTypeYearly {
			return p
		}
	}
	return products[0]
}
