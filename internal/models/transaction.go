package models

import (
	"time"
)

// ProcessedTransaction records an externally-issued purchase transaction that
// has already driven an entitlement mutation. Created once, never mutated,
// never deleted. Existence of a row is the sole deduplication mechanism for
// receipt-driven mutations; the unique index on TransactionID gives
// create-if-absent at the store level.
type ProcessedTransaction struct {
	BaseModel

	TransactionID string    `json:"transaction_id" gorm:"not null;size:100;uniqueIndex"`
	UserID        string    `json:"user_id" gorm:"not null;size:128;index"`
	ProductID     string    `json:"product_id" gorm:"size:100"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// TableName sets the table name
func (ProcessedTransaction) TableName() string {
	return "processed_transaction"
}
