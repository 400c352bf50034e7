package database

import (
	"entitlement-api/internal/models"
)

// GetEntitlementByUserID fetches the entitlement record for a user
func GetEntitlementByUserID(userID string) (*models.UserEntitlement, error) {
	var record models.UserEntitlement
	err := DB.Where("user_id = ?", userID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindEntitlementByStripeCustomerID performs the reverse lookup from a Stripe
// customer id to the owning user record. At most one match is expected; the
// customer id column is indexed.
func FindEntitlementByStripeCustomerID(customerID string) (*models.UserEntitlement, error) {
	var record models.UserEntitlement
	err := DB.Where("stripe_customer_id = ?", customerID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// PatchEntitlement applies a field-level partial update to a user's
// entitlement record. Concurrent writers touching disjoint fields do not
// clobber each other because only the named columns are written.
func PatchEntitlement(userID string, patch map[string]interface{}) error {
	return DB.Model(&models.UserEntitlement{}).
		Where("user_id = ?", userID).
		Updates(patch).Error
}

// CreateEntitlement inserts a new entitlement record
func CreateEntitlement(record *models.UserEntitlement) error {
	return DB.Create(record).Error
}

// GetProcessedTransaction looks up a processed-transaction record by its
// externally-issued transaction id
func GetProcessedTransaction(transactionID string) (*models.ProcessedTransaction, error) {
	var txn models.ProcessedTransaction
	err := DB.Where("transaction_id = ?", transactionID).First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// CreateProcessedTransaction inserts a processed-transaction record. The
// unique index on transaction_id makes this create-if-absent: a concurrent
// duplicate surfaces as gorm.ErrDuplicatedKey rather than a second row.
func CreateProcessedTransaction(txn *models.ProcessedTransaction) error {
	return DB.Create(txn).Error
}
