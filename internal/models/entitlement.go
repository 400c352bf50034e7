package models

import (
	"time"
)

// Subscription status values. SubscriptionStatus is the authoritative field
// consulted by the rest of the product.
const (
	StatusFree    = "free"
	StatusTrial   = "trial"
	StatusPremium = "premium"
)

// Subscription platform values. Platform records which provider last drove
// the entitlement state.
const (
	PlatformNone  = "none"
	PlatformWeb   = "web"
	PlatformApple = "apple"
)

// UserEntitlement is the canonical per-user entitlement record.
// It is mutated only through the Ledger; no other component writes these fields.
type UserEntitlement struct {
	BaseModel

	UserID string `json:"user_id" gorm:"not null;uniqueIndex;size:128"`
	Email  string `json:"email" gorm:"size:255"`

	SubscriptionStatus   string `json:"subscription_status" gorm:"not null;size:20;default:'free'"`
	SubscriptionPlatform string `json:"subscription_platform" gorm:"not null;size:20;default:'none'"`

	// Present only when the web platform drove the state
	StripeCustomerID     string `json:"stripe_customer_id" gorm:"size:100;index"`
	StripeSubscriptionID string `json:"stripe_subscription_id" gorm:"size:100"`

	// Present only when the apple platform drove the state
	AppleProductID          string     `json:"apple_product_id" gorm:"size:100"`
	AppleSubscriptionExpiry *time.Time `json:"apple_subscription_expiry"`

	// Nullable timestamps; absence means "not applicable"
	TrialEndsAt              *time.Time `json:"trial_ends_at"`
	CurrentPeriodEnd         *time.Time `json:"current_period_end"`
	SubscriptionWillCancelAt *time.Time `json:"subscription_will_cancel_at"`

	// Soft flag for dunning follow-up; never changes SubscriptionStatus on its own
	PaymentFailed   bool       `json:"payment_failed"`
	PaymentFailedAt *time.Time `json:"payment_failed_at"`
}

// TableName sets the table name
func (UserEntitlement) TableName() string {
	return "user_entitlement"
}

// IsPremium reports whether the record grants premium features
func (u *UserEntitlement) IsPremium() bool {
	return u.SubscriptionStatus == StatusPremium || u.SubscriptionStatus == StatusTrial
}
