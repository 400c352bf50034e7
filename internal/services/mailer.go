package services

import (
	"context"
	"time"

	"entitlement-api/internal/config"
	"entitlement-api/pkg/logging"

	brevo "github.com/getbrevo/brevo-go/lib"
)

// Mailer sends dunning follow-up email through Brevo. Sending is
// fire-and-forget from the webhook path; a failure is logged and never
// affects event acknowledgement.
type Mailer struct {
	client    *brevo.APIClient
	fromEmail string
	fromName  string
}

// NewMailer creates a new mailer, or nil when Brevo is not configured
func NewMailer() *Mailer {
	if config.AppConfig.BrevoAPIKey == "" || config.AppConfig.BrevoFromEmail == "" {
		logging.Infof("Brevo not configured, payment-failure email disabled")
		return nil
	}

	cfg := brevo.NewConfiguration()
	cfg.AddDefaultHeader("api-key", config.AppConfig.BrevoAPIKey)

	return &Mailer{
		client:    brevo.NewAPIClient(cfg),
		fromEmail: config.AppConfig.BrevoFromEmail,
		fromName:  config.AppConfig.BrevoFromName,
	}
}

// SendPaymentFailedNotice emails the user that their renewal payment failed.
// The entitlement itself is untouched; this is follow-up only.
func (m *Mailer) SendPaymentFailedNotice(email, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	subject := "Action needed: your subscription payment failed"
	textContent := "We could not process your latest subscription payment.\n\n" +
		"Your premium access is still active for now. Please update your payment method to keep it.\n\n" +
		"If you already updated it, you can ignore this email."
	htmlContent := "<html><body><p>We could not process your latest subscription payment.</p>" +
		"<p>Your premium access is still active for now. Please update your payment method to keep it.</p>" +
		"<p style=\"color:#999;font-size:12px\">If you already updated it, you can ignore this email.</p></body></html>"

	_, _, err := m.client.TransactionalEmailsApi.SendTransacEmail(ctx, brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  m.fromName,
			Email: m.fromEmail,
		},
		To:          []brevo.SendSmtpEmailTo{{Email: email}},
		Subject:     subject,
		HtmlContent: htmlContent,
		TextContent: textContent,
	})
	if err != nil {
		logging.Errorf("Failed to send payment-failed email to user %s: %v", userID, err)
		return
	}

	logging.Infof("Payment-failed email sent to user %s", userID)
}
