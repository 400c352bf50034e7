package services

import (
	"errors"
	"fmt"
	"time"

	"entitlement-api/internal/database"
	"entitlement-api/internal/models"

	"gorm.io/gorm"
)

// Ledger owns the canonical user entitlement record. It is the only writer of
// entitlement fields; every other component drives state changes through
// MutateEntitlement. The ledger itself never retries store errors — callers
// decide whether a failure is retryable.
type Ledger struct{}

// NewLedger creates a new ledger
func NewLedger() *Ledger {
	return &Ledger{}
}

// GetEntitlement returns the entitlement record for a user
func (l *Ledger) GetEntitlement(userID string) (*models.UserEntitlement, error) {
	record, err := database.GetEntitlementByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return record, nil
}

// FindUserByStripeCustomerID resolves a Stripe customer id back to the owning
// user record. Webhook handlers use this when an event carries only the
// customer id.
func (l *Ledger) FindUserByStripeCustomerID(customerID string) (*models.UserEntitlement, error) {
	if customerID == "" {
		return nil, ErrCustomerNotFound
	}
	record, err := database.FindEntitlementByStripeCustomerID(customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return record, nil
}

// MutateEntitlement applies a field-level patch to a user's entitlement
// record and returns the updated record. The patch is never a full overwrite,
// so concurrent writers touching disjoint fields do not need mutual
// exclusion. Same-field writes are last-write-wins by arrival order at the
// store; no version token guards against stale writes.
func (l *Ledger) MutateEntitlement(userID string, patch map[string]interface{}) (*models.UserEntitlement, error) {
	if _, err := l.GetEntitlement(userID); err != nil {
		return nil, err
	}

	// Every mutation stamps updated_at, used for auditing only
	patch["updated_at"] = time.Now()

	if err := database.PatchEntitlement(userID, patch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return l.GetEntitlement(userID)
}
