package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entitlement-api/internal/models"
	"entitlement-api/pkg/logging"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// subscriptionFetcher is the slice of the Stripe API the webhook processor
// depends on. Kept narrow so tests can drive handlers without the network.
type subscriptionFetcher interface {
	FetchSubscription(id string) (*stripe.Subscription, error)
}

// dunningNotifier receives payment-failure notices for follow-up email
type dunningNotifier interface {
	SendPaymentFailedNotice(email, userID string)
}

// WebhookProcessor consumes signed asynchronous events from Stripe, verifies
// authenticity against the shared webhook secret, and drives the ledger
// through idempotent handlers. Replaying an event yields the same final
// entitlement state as applying it once: every handler writes absolute values
// derived from the event, never increments.
//
// Events for the same user can arrive out of order or concurrently with a
// client receipt sync. Eventual consistency is accepted: an older event
// landing after a newer one temporarily reflects the older value until the
// next event or sync corrects it.
type WebhookProcessor struct {
	ledger *Ledger
	stripe subscriptionFetcher
	mailer dunningNotifier // optional
	secret string
}

// NewWebhookProcessor creates a new webhook processor
func NewWebhookProcessor(ledger *Ledger, fetcher subscriptionFetcher, mailer dunningNotifier, webhookSecret string) *WebhookProcessor {
	return &WebhookProcessor{
		ledger: ledger,
		stripe: fetcher,
		mailer: mailer,
		secret: webhookSecret,
	}
}

// Process verifies the event signature over the raw payload and dispatches it.
// A nil return means the event was durably handled or intentionally dropped
// and must be acknowledged; a non-nil return is a transient failure and the
// caller should answer 5xx so Stripe redelivers.
func (p *WebhookProcessor) Process(payload []byte, signatureHeader string) error {
	event, err := webhook.ConstructEvent(payload, signatureHeader, p.secret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch event.Type {
	case "checkout.session.completed":
		return p.handleCheckoutCompleted(event)
	case "customer.subscription.created":
		return p.handleSubscriptionCreated(event)
	case "customer.subscription.updated":
		return p.handleSubscriptionUpdated(event)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(event)
	case "invoice.payment_succeeded":
		return p.handleInvoicePaymentSucceeded(event)
	case "invoice.payment_failed":
		return p.handleInvoicePaymentFailed(event)
	default:
		// Unknown event types are acknowledged and ignored
		logging.Infof("Ignoring unhandled Stripe event type: %s", event.Type)
		return nil
	}
}

// handleCheckoutCompleted attributes a finished checkout to the user carried
// in client_reference_id and writes the initial web-platform entitlement.
func (p *WebhookProcessor) handleCheckoutCompleted(event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		logging.Errorf("Failed to parse checkout session from event %s: %v", event.ID, err)
		return nil
	}

	userID := session.ClientReferenceID
	if userID == "" {
		// Without the user id the event is undeliverable; drop, never retry
		logging.Warnf("Checkout session %s has no client_reference_id, dropping", session.ID)
		return nil
	}

	if session.Subscription == nil {
		logging.Warnf("Checkout session %s references no subscription, dropping", session.ID)
		return nil
	}

	sub, err := p.stripe.FetchSubscription(session.Subscription.ID)
	if err != nil {
		return fmt.Errorf("%w: fetch subscription %s: %v", ErrProviderUnavailable, session.Subscription.ID, err)
	}

	status := models.StatusPremium
	if sub.Status == stripe.SubscriptionStatusTrialing {
		status = models.StatusTrial
	}

	patch := map[string]interface{}{
		"subscription_status":    status,
		"subscription_platform":  models.PlatformWeb,
		"stripe_subscription_id": sub.ID,
	}
	if session.Customer != nil {
		patch["stripe_customer_id"] = session.Customer.ID
	}
	// Only write timestamps the provider actually returned; a missing value
	// must not overwrite a previously-known good one
	if sub.TrialEnd > 0 {
		patch["trial_ends_at"] = time.Unix(sub.TrialEnd, 0)
	}
	if sub.CurrentPeriodEnd > 0 {
		patch["current_period_end"] = time.Unix(sub.CurrentPeriodEnd, 0)
	}

	if _, err := p.ledger.MutateEntitlement(userID, patch); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			logging.Warnf("Checkout session %s references unknown user %s, dropping", session.ID, userID)
			return nil
		}
		return err
	}

	logging.Infof("Checkout completed for user %s: status=%s subscription=%s", userID, status, sub.ID)
	return nil
}

// handleSubscriptionCreated resolves the user via the customer id written by
// the checkout handler. If that write has not landed yet the lookup fails and
// the event is dropped; later subscription.updated and invoice events for the
// same subscription self-correct the record.
func (p *WebhookProcessor) handleSubscriptionCreated(event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		logging.Errorf("Failed to parse subscription from event %s: %v", event.ID, err)
		return nil
	}

	user, err := p.userForSubscription(&sub, event.ID)
	if user == nil {
		return err
	}

	status := models.StatusPremium
	if sub.Status == stripe.SubscriptionStatusTrialing {
		status = models.StatusTrial
	}

	patch := map[string]interface{}{
		"subscription_status":    status,
		"subscription_platform":  models.PlatformWeb,
		"stripe_subscription_id": sub.ID,
	}
	if sub.TrialEnd > 0 {
		patch["trial_ends_at"] = time.Unix(sub.TrialEnd, 0)
	}
	if sub.CurrentPeriodEnd > 0 {
		patch["current_period_end"] = time.Unix(sub.CurrentPeriodEnd, 0)
	}

	_, err = p.ledger.MutateEntitlement(user.UserID, patch)
	return p.ignoreMissingUser(err, user.UserID, event.ID)
}

// handleSubscriptionUpdated maps the provider status onto the entitlement
// status and tracks cancel-at-period-end
func (p *WebhookProcessor) handleSubscriptionUpdated(event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		logging.Errorf("Failed to parse subscription from event %s: %v", event.ID, err)
		return nil
	}

	user, err := p.userForSubscription(&sub, event.ID)
	if user == nil {
		return err
	}

	patch := map[string]interface{}{}
	switch sub.Status {
	case stripe.SubscriptionStatusActive:
		patch["subscription_status"] = models.StatusPremium
	case stripe.SubscriptionStatusTrialing:
		patch["subscription_status"] = models.StatusTrial
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		patch["subscription_status"] = models.StatusFree
	default:
		// Transient provider status (past_due, incomplete, unpaid): leave the
		// prior entitlement status untouched
	}

	if sub.CancelAtPeriodEnd && sub.CurrentPeriodEnd > 0 {
		patch["subscription_will_cancel_at"] = time.Unix(sub.CurrentPeriodEnd, 0)
	} else {
		patch["subscription_will_cancel_at"] = nil
	}
	if sub.CurrentPeriodEnd > 0 {
		patch["current_period_end"] = time.Unix(sub.CurrentPeriodEnd, 0)
	}

	_, err = p.ledger.MutateEntitlement(user.UserID, patch)
	return p.ignoreMissingUser(err, user.UserID, event.ID)
}

// handleSubscriptionDeleted forces the record back to free. The customer id
// is retained for audit and future reverse lookups.
func (p *WebhookProcessor) handleSubscriptionDeleted(event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		logging.Errorf("Failed to parse subscription from event %s: %v", event.ID, err)
		return nil
	}

	user, err := p.userForSubscription(&sub, event.ID)
	if user == nil {
		return err
	}

	patch := map[string]interface{}{
		"subscription_status":         models.StatusFree,
		"stripe_subscription_id":      "",
		"subscription_will_cancel_at": nil,
		"current_period_end":          nil,
	}

	_, err = p.ledger.MutateEntitlement(user.UserID, patch)
	if err == nil {
		logging.Infof("Subscription deleted for user %s, downgraded to free", user.UserID)
	}
	return p.ignoreMissingUser(err, user.UserID, event.ID)
}

// handleInvoicePaymentSucceeded covers renewals: re-fetch the subscription and
// refresh status and period end. Invoices not tied to a subscription are
// ignored. A successful payment also clears the dunning flag.
func (p *WebhookProcessor) handleInvoicePaymentSucceeded(event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		logging.Errorf("Failed to parse invoice from event %s: %v", event.ID, err)
		return nil
	}

	if inv.Subscription == nil {
		return nil
	}

	user, err := p.userForCustomer(inv.Customer, event.ID)
	if user == nil {
		return err
	}

	sub, err := p.stripe.FetchSubscription(inv.Subscription.ID)
	if err != nil {
		return fmt.Errorf("%w: fetch subscription %s: %v", ErrProviderUnavailable, inv.Subscription.ID, err)
	}

	patch := map[string]interface{}{
		"subscription_status": models.StatusPremium,
		"payment_failed":      false,
		"payment_failed_at":   nil,
	}
	if sub.CurrentPeriodEnd > 0 {
		patch["current_period_end"] = time.Unix(sub.CurrentPeriodEnd, 0)
	}

	_, err = p.ledger.MutateEntitlement(user.UserID, patch)
	return p.ignoreMissingUser(err, user.UserID, event.ID)
}

// handleInvoicePaymentFailed sets the dunning flag. It never downgrades the
// entitlement on its own; the downgrade arrives via subscription.updated or
// subscription.deleted when the provider exhausts its retry schedule.
func (p *WebhookProcessor) handleInvoicePaymentFailed(event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		logging.Errorf("Failed to parse invoice from event %s: %v", event.ID, err)
		return nil
	}

	if inv.Subscription == nil {
		return nil
	}

	user, err := p.userForCustomer(inv.Customer, event.ID)
	if user == nil {
		return err
	}

	patch := map[string]interface{}{
		"payment_failed":    true,
		"payment_failed_at": time.Now(),
	}

	if _, err := p.ledger.MutateEntitlement(user.UserID, patch); err != nil {
		return p.ignoreMissingUser(err, user.UserID, event.ID)
	}

	logging.Warnf("Payment failed for user %s, flagged for dunning", user.UserID)

	if p.mailer != nil && user.Email != "" {
		go p.mailer.SendPaymentFailedNotice(user.Email, user.UserID)
	}
	return nil
}

// userForSubscription resolves the owning user record from a subscription
// event via reverse lookup by customer id. A nil user with nil error means
// the event was intentionally dropped.
func (p *WebhookProcessor) userForSubscription(sub *stripe.Subscription, eventID string) (*models.UserEntitlement, error) {
	return p.userForCustomer(sub.Customer, eventID)
}

func (p *WebhookProcessor) userForCustomer(customer *stripe.Customer, eventID string) (*models.UserEntitlement, error) {
	customerID := ""
	if customer != nil {
		customerID = customer.ID
	}
	user, err := p.ledger.FindUserByStripeCustomerID(customerID)
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			logging.Warnf("Event %s references customer %q with no matching user, dropping", eventID, customerID)
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// ignoreMissingUser treats a vanished user as an intentional drop so the
// event is still acknowledged; store errors bubble for redelivery
func (p *WebhookProcessor) ignoreMissingUser(err error, userID, eventID string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUserNotFound) {
		logging.Warnf("Event %s references user %s that no longer exists, dropping", eventID, userID)
		return nil
	}
	return err
}
