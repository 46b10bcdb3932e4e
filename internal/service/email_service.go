package service

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// EmailSender abstracts the transactional email provider so services and
// tests never talk to Resend directly. Send failures are the caller's
// business to log; they must never fail a request.
type EmailSender interface {
	SendVerificationCode(ctx context.Context, to, code string) error
	SendInvitation(ctx context.Context, to, companyName, token string) error
	SendWelcome(ctx context.Context, to, companyName string) error
	SendReceipt(ctx context.Context, to, invoiceID, amount string) error
}

type resendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender wires the Resend SDK as the EmailSender.
func NewResendSender(apiKey, from string) EmailSender {
	return &resendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (s *resendSender) send(ctx context.Context, to, subject, html string) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	return err
}

func (s *resendSender) SendVerificationCode(ctx context.Context, to, code string) error {
	return s.send(ctx, to, "Your verification code",
		fmt.Sprintf("<p>Your verification code is <strong>%s</strong>. It expires in 10 minutes.</p>", code))
}

func (s *resendSender) SendInvitation(ctx context.Context, to, companyName, token string) error {
	return s.send(ctx, to, "You have been invited to "+companyName,
		fmt.Sprintf("<p>You were invited to join <strong>%s</strong>. Use this code to accept: %s</p>", companyName, token))
}

func (s *resendSender) SendWelcome(ctx context.Context, to, companyName string) error {
	return s.send(ctx, to, "Welcome aboard",
		fmt.Sprintf("<p>Your subscription for <strong>%s</strong> is active. Welcome!</p>", companyName))
}

func (s *resendSender) SendReceipt(ctx context.Context, to, invoiceID, amount string) error {
	return s.send(ctx, to, "Payment receipt",
		fmt.Sprintf("<p>We received your payment of %s (invoice %s). Thank you.</p>", amount, invoiceID))
}
