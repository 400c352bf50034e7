package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"entitlement-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

const testWebhookSecret = "whsec_test_secret"

// fakeSubscriptionFetcher stands in for the Stripe API
type fakeSubscriptionFetcher struct {
	sub   *stripe.Subscription
	err   error
	calls int
}

func (f *fakeSubscriptionFetcher) FetchSubscription(id string) (*stripe.Subscription, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

// signPayload builds a valid Stripe-Signature header for the payload
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// eventPayload wraps an object JSON into a full webhook event envelope
func eventPayload(eventType, objectJSON string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"evt_test_1","object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`,
		stripe.APIVersion, eventType, objectJSON,
	))
}

func newTestProcessor(fetcher *fakeSubscriptionFetcher) *WebhookProcessor {
	return NewWebhookProcessor(NewLedger(), fetcher, nil, testWebhookSecret)
}

func TestProcessRejectsInvalidSignature(t *testing.T) {
	setupTestDB(t)
	p := newTestProcessor(&fakeSubscriptionFetcher{})

	payload := eventPayload("checkout.session.completed", `{"id":"cs_1"}`)

	err := p.Process(payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	err = p.Process(payload, signPayload(payload, "whsec_wrong_secret"))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestProcessAcknowledgesUnknownEventType(t *testing.T) {
	setupTestDB(t)
	fetcher := &fakeSubscriptionFetcher{}
	p := newTestProcessor(fetcher)

	payload := eventPayload("customer.created", `{"id":"cus_1"}`)
	require.NoError(t, p.Process(payload, signPayload(payload, testWebhookSecret)))
	assert.Zero(t, fetcher.calls)
}

func TestCheckoutCompletedTrialing(t *testing.T) {
	setupTestDB(t)

	trialEnd := time.Now().Add(7 * 24 * time.Hour).Unix()
	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()
	fetcher := &fakeSubscriptionFetcher{sub: &stripe.Subscription{
		ID:               "sub_1",
		Status:           stripe.SubscriptionStatusTrialing,
		TrialEnd:         trialEnd,
		CurrentPeriodEnd: periodEnd,
	}}
	p := newTestProcessor(fetcher)

	createTestUser(t, "u1", nil)

	payload := eventPayload("checkout.session.completed",
		`{"id":"cs_1","client_reference_id":"u1","customer":"cus_1","subscription":"sub_1"}`)
	require.NoError(t, p.Process(payload, signPayload(payload, testWebhookSecret)))

	record, err := NewLedger().GetEntitlement("u1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusTrial, record.SubscriptionStatus)
	assert.Equal(t, models.PlatformWeb, record.SubscriptionPlatform)
	assert.Equal(t, "cus_1", record.StripeCustomerID)
	assert.Equal(t, "sub_1", record.StripeSubscriptionID)
	require.NotNil(t, record.TrialEndsAt)
	assert.Equal(t, trialEnd, record.TrialEndsAt.Unix())
	require.NotNil(t, record.CurrentPeriodEnd)
	assert.Equal(t, periodEnd, record.CurrentPeriodEnd.Unix())
}

func TestCheckoutCompletedReplayIsIdempotent(t *testing.T) {
	setupTestDB(t)

	fetcher := &fakeSubscriptionFetcher{sub: &stripe.Subscription{
		ID:               "sub_1",
		Status:           stripe.SubscriptionStatusActive,
		CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour).Unix(),
	}}
	p := newTestProcessor(fetcher)

	createTestUser(t, "u1", nil)

	payload := eventPayload("checkout.session.completed",
		`{"id":"cs_1","client_reference_id":"u1","customer":"cus_1","subscription":"sub_1"}`)
	header := signPayload(payload, testWebhookSecret)

	require.NoError(t, p.Process(payload, header))
	first, err := NewLedger().GetEntitlement("u1")
	require.NoError(t, err)

	require.NoError(t, p.Process(payload, header))
	second, err := NewLedger().GetEntitlement("u1")
	require.NoError(t, err)

	assert.Equal(t, first.SubscriptionStatus, second.SubscriptionStatus)
	assert.Equal(t, first.StripeSubscriptionID, second.StripeSubscriptionID)
	assert.Equal(t, first.StripeCustomerID, second.StripeCustomerID)
	assert.Equal(t, first.CurrentPeriodEnd.Unix(), second.CurrentPeriodEnd.Unix())
}

func TestCheckoutCompletedWithoutReferenceIsDropped(t *testing.T) {
	setupTestDB(t)
	fetcher := &fakeSubscriptionFetcher{}
	p := newTestProcessor(fetcher)

	payload := eventPayload("checkout.session.completed",
		`{"id":"cs_1","customer":"cus_1","subscription":"sub_1"}`)
	require.NoError(t, p.Process(payload, signPayload(payload, testWebhookSecret)))
	assert.Zero(t, fetcher.calls, "undeliverable events must not hit the provider")
}

func TestSubscriptionCreatedUnknownCustomerIsDropped(t *testing.T) {
	setupTestDB(t)
	p := newTestProcessor(&fakeSubscriptionFetcher{})

	payload := eventPayload("customer.subscription.created",
		`{"id":"sub_1","customer":"cus_nobody","status":"active"}`)
	// Acked so Stripe does not redeliver; later events self-correct the record
	require.NoError(t, p.Process(payload, signPayload(payload, testWebhookSecret)))
}

func TestSubscriptionUpdatedCancelAtPeriodEnd(t *testing.T) {
	setupTestDB(t)
	p := newTestProcessor(&fakeSubscriptionFetcher{})

	createTestUser(t, "u1", func(u *models.UserEntitlement) {
		u.SubscriptionStatus = models.StatusPremium
		u.SubscriptionPlatform = models.PlatformWeb
		u.StripeCustomerID = "cus_1"
		u.StripeSubscriptionID = "sub_1"
	})

	periodEnd := time.Now().Add(20 * 24 * time.Hour).Unix()
	payload := eventPayload("customer.subscription.updated", fmt.Sprintf(
		`{"id":"sub_1","customer":"cus_1","status":"active","cancel_at_period_end":true,"current_period_end":%d}`,
		periodEnd,
	))
	require.NoError(t, p.Process(payload, signPayload(payload, testWebhookSecret)))

	record, err := NewLedger().GetEntitlement("u1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPremium, record.SubscriptionStatus)
	require.NotNil(t, record.SubscriptionWillCancelAt)
	assert.Equal(t, periodEnd, record.SubscriptionWillCancelAt.Unix())
}

func TestSubscriptionUpdatedPastDueKeepsStatus(t *testing.T) {
	setupTestDB(t)
	p := newTestProcessor(&fakeSubscriptionFetcher{})

	createTestUser(t, "u1", func(u *models.UserEntitlement) {
		u.SubscriptionStatus = models.StatusPremium
		u.StripeCustomerID = "cus_1"
	})

	payload := eventPayload("customer.subscription.updated",
		`{"id":"sub_1","customer":"cus_1","status":"past_due"}`)
	require.NoError(t, p.Process(payload, signPayload(payload, testWebhookSecret)))

	record, err := NewLedger().GetEntitlement("u1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPremium, record.SubscriptionStatus)
}

func TestSubscriptionDeletedDowngradesAndKeepsCustomerID(t *testing.T) {
	setupTestDB(t)
	p := newTestProcessor(&fakeSubscriptionFetcher{})

	createTestUser(t, "u1", func(u *models.UserEntitlement) {
		u.SubscriptionStatus = models.StatusPremium
		u.SubscriptionPlatform = models.PlatformWeb
		u.StripeCustomerID = "cus_1"
		u.StripeSubscriptionID = "sub_1"
		u.SubscriptionWillCancelAt = timePtr(time.Now().Add(24 * time.Hour))
	})

	payload := eventPayload("customer.subscription.deleted",
		`{"id":"sub_1","customer":"cus_1","status":"canceled"}`)
	require.NoError(t, p.Process(payload, signPayload(payload, testWebhookSecret)))

	record, err := NewLedger().GetEntitlement("u1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFree, record.SubscriptionStatus)
	assert.Empty(t, record.StripeSubscriptionID)
	assert.Nil(t, record.SubscriptionWillCancelAt)
	assert.Equal(t, "cus_1", record.StripeCustomerID, "customer id is retained for reverse lookups")
}

func TestInvoicePaymentFailedFlagsWithoutDowngrade(t *testing.T) {
	setupTestDB(t)
	p := newTestProcessor(&fakeSubscriptionFetcher{})

	createTestUser(t, "u1", func(u *models.UserEntitlement) {
		u.SubscriptionStatus = models.StatusPremium
		u.StripeCustomerID = "cus_1"
	})

	payload := eventPayload("invoice.payment_failed",
		`{"id":"in_1","customer":"cus_1","subscription":"sub_1"}`)
	require.NoError(t, p.Process(payload, signPayload(payload, testWebhookSecret)))

	record, err := NewLedger().GetEntitlement("u1")
	require.NoError(t, err)
	assert.True(t, record.PaymentFailed)
	assert.NotNil(t, record.PaymentFailedAt)
	assert.Equal(t, models.StatusPremium, record.SubscriptionStatus, "dunning must not downgrade on its own")
}

func TestInvoicePaymentSucceededClearsDunningFlag(t *testing.T) {
	setupTestDB(t)

	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()
	fetcher := &fakeSubscriptionFetcher{sub: &stripe.Subscription{
		ID:               "sub_1",
		Status:           stripe.SubscriptionStatusActive,
		CurrentPeriodEnd: periodEnd,
	}}
	p := newTestProcessor(fetcher)

	createTestUser(t, "u1", func(u *models.UserEntitlement) {
		u.SubscriptionStatus = models.StatusPremium
		u.StripeCustomerID = "cus_1"
		u.PaymentFailed = true
		u.PaymentFailedAt = timePtr(time.Now())
	})

	payload := eventPayload("invoice.payment_succeeded",
		`{"id":"in_1","customer":"cus_1","subscription":"sub_1"}`)
	require.NoError(t, p.Process(payload, signPayload(payload, testWebhookSecret)))

	record, err := NewLedger().GetEntitlement("u1")
	require.NoError(t, err)
	assert.False(t, record.PaymentFailed)
	assert.Nil(t, record.PaymentFailedAt)
	require.NotNil(t, record.CurrentPeriodEnd)
	assert.Equal(t, periodEnd, record.CurrentPeriodEnd.Unix())
}

func TestInvoiceWithoutSubscriptionIsIgnored(t *testing.T) {
	setupTestDB(t)
	fetcher := &fakeSubscriptionFetcher{}
	p := newTestProcessor(fetcher)

	createTestUser(t, "u1", func(u *models.UserEntitlement) {
		u.StripeCustomerID = "cus_1"
	})

	payload := eventPayload("invoice.payment_succeeded", `{"id":"in_1","customer":"cus_1"}`)
	require.NoError(t, p.Process(payload, signPayload(payload, testWebhookSecret)))
	assert.Zero(t, fetcher.calls)
}
