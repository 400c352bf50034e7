package services

import (
	"fmt"

	"entitlement-api/internal/config"

	"github.com/stripe/stripe-go/v76"
	portalsession "github.com/stripe/stripe-go/v76/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/subscription"
)

// StripeClient wraps the Stripe API calls used by the checkout orchestrator
// and the webhook processor. Request timeouts are handled by the stripe-go
// default HTTP client.
type StripeClient struct{}

// NewStripeClient creates a new Stripe client
func NewStripeClient() *StripeClient {
	stripe.Key = config.AppConfig.StripeSecretKey
	return &StripeClient{}
}

// CreateCheckoutSession creates a provider-hosted checkout session for a
// subscription. The user id travels as client_reference_id so the
// checkout.session.completed webhook can attribute the purchase.
func (c *StripeClient) CreateCheckoutSession(userID, email, customerID, priceID string, trialDays int64) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(userID),
		SuccessURL:        stripe.String(config.AppConfig.CheckoutSuccessURL),
		CancelURL:         stripe.String(config.AppConfig.CheckoutCancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
	}

	// Reuse the known customer so Stripe does not mint a duplicate
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	} else if email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	if trialDays > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(trialDays),
		}
	}

	session, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return session, nil
}

// CreatePortalSession creates a billing-portal session for an existing customer
func (c *StripeClient) CreatePortalSession(customerID string) (*stripe.BillingPortalSession, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(config.AppConfig.PortalReturnURL),
	}

	session, err := portalsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create portal session: %w", err)
	}
	return session, nil
}

// FetchSubscription retrieves the current subscription object from Stripe
func (c *StripeClient) FetchSubscription(id string) (*stripe.Subscription, error) {
	return subscription.Get(id, nil)
}

// CancelAtPeriodEnd flags a subscription to cancel when the current period
// ends. The authoritative state change still arrives via the
// customer.subscription.updated webhook.
func (c *StripeClient) CancelAtPeriodEnd(id string) (*stripe.Subscription, error) {
	return subscription.Update(id, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
}
