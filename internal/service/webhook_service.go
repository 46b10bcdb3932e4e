package service

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/websocket"
	"backend/pkg/response"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

// Local views of the Stripe event payloads. Decoding only the fields we
// use keeps the handlers stable across Stripe API version bumps.

type priceEvent struct {
	ID         string `json:"id"`
	Currency   string `json:"currency"`
	UnitAmount int64  `json:"unit_amount"`
}

type invoiceEvent struct {
	ID            string `json:"id"`
	Subscription  string `json:"subscription"`
	AmountPaid    int64  `json:"amount_paid"`
	AmountDue     int64  `json:"amount_due"`
	Currency      string `json:"currency"`
	BillingReason string `json:"billing_reason"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
}

type subscriptionEvent struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CanceledAt         int64  `json:"canceled_at"`
}

// WebhookService applies Stripe events to local state. Every write is an
// upsert or conditional update keyed by a Stripe id, so redelivery is
// always safe. This service is the sole writer of billing-status fields.
type WebhookService interface {
	HandleEvent(ctx context.Context, event stripe.Event) error
}

type webhookService struct {
	catalog   repository.CatalogRepository
	billing   repository.BillingRepository
	companies repository.CompanyRepository
	users     repository.UserRepository
	email     EmailSender
	hub       *websocket.Hub
}

func NewWebhookService(
	catalog repository.CatalogRepository,
	billing repository.BillingRepository,
	companies repository.CompanyRepository,
	users repository.UserRepository,
	email EmailSender,
	hub *websocket.Hub,
) WebhookService {
	return &webhookService{
		catalog:   catalog,
		billing:   billing,
		companies: companies,
		users:     users,
		email:     email,
		hub:       hub,
	}
}

func (s *webhookService) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch string(event.Type) {
	case "price.created", "price.updated":
		return s.handlePrice(ctx, event.Data.Raw)
	case "invoice.paid":
		return s.handleInvoice(ctx, event.Data.Raw, model.PaymentPaid)
	case "invoice.payment_failed":
		return s.handleInvoice(ctx, event.Data.Raw, model.PaymentFailed)
	case "customer.subscription.updated", "customer.subscription.deleted":
		return s.handleSubscription(ctx, event.Data.Raw)
	default:
		// Unsubscribed event type; acknowledge so Stripe stops retrying.
		return nil
	}
}

// handlePrice refreshes the cached amount the price id maps to. The
// preview path depends entirely on this cache matching what Stripe will
// charge at settlement.
func (s *webhookService) handlePrice(ctx context.Context, raw json.RawMessage) error {
	var price priceEvent
	if err := json.Unmarshal(raw, &price); err != nil {
		return response.NewError(http.StatusBadRequest, response.CodeValidation, "unreadable price payload")
	}
	amount := decimal.NewFromInt(price.UnitAmount).Div(decimal.NewFromInt(100))

	if plan, column, err := s.catalog.FindPlanByStripePrice(ctx, price.ID); err == nil {
		if err := s.catalog.UpdatePlanAmount(ctx, plan.ID, column, amount); err != nil {
			return response.WrapDB("plans", err)
		}
		return nil
	} else if err != gorm.ErrRecordNotFound {
		return response.WrapDB("plans", err)
	}

	if plugin, column, err := s.catalog.FindPluginByStripePrice(ctx, price.ID); err == nil {
		if err := s.catalog.UpdatePluginAmount(ctx, plugin.ID, column, amount); err != nil {
			return response.WrapDB("plugins", err)
		}
		return nil
	} else if err != gorm.ErrRecordNotFound {
		return response.WrapDB("plugins", err)
	}

	// Price for something we do not sell; ignore.
	return nil
}

func (s *webhookService) handleInvoice(ctx context.Context, raw json.RawMessage, outcome string) error {
	var invoice invoiceEvent
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return response.NewError(http.StatusBadRequest, response.CodeValidation, "unreadable invoice payload")
	}
	if invoice.Subscription == "" {
		return nil // one-off invoice, not ours
	}

	sub, err := s.billing.GetSubscriptionByStripeID(ctx, invoice.Subscription)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// Placeholder not written yet (sync path lost the race or
			// failed). Fail the delivery so Stripe redelivers on its
			// retry schedule; acking here would lose the invoice.
			log.Printf("webhook: no local subscription for %s yet, failing delivery for retry", invoice.Subscription)
			return response.NewError(http.StatusConflict, response.CodeSubscriptionPending, "subscription not reconciled yet")
		}
		return response.WrapDB("subscriptions", err)
	}

	cents := invoice.AmountPaid
	if outcome == model.PaymentFailed {
		cents = invoice.AmountDue
	}
	payment := &model.PaymentHistory{
		CompanyID:       sub.CompanyID,
		StripeInvoiceID: invoice.ID,
		Status:          outcome,
		Amount:          decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)),
		Currency:        invoice.Currency,
		BillingReason:   invoice.BillingReason,
	}
	if outcome == model.PaymentPaid && invoice.StatusTransitions.PaidAt > 0 {
		paidAt := time.Unix(invoice.StatusTransitions.PaidAt, 0).UTC()
		payment.PaidAt = &paidAt
	}
	if err := s.billing.UpsertPayment(ctx, payment); err != nil {
		return response.WrapDB("payment_history", err)
	}

	status := model.BillingActive
	if outcome == model.PaymentFailed {
		status = model.BillingPastDue
	}
	if err := s.billing.UpdateBillingStatus(ctx, invoice.Subscription, repository.SubscriptionUpdate{BillingStatus: status}); err != nil {
		return response.WrapDB("subscriptions", err)
	}

	s.notifyCompany(sub.CompanyID.String(), "billing.invoice_"+outcome, invoice.ID)

	if outcome == model.PaymentPaid {
		s.sendInvoiceEmails(ctx, sub, invoice)
	}
	return nil
}

// sendInvoiceEmails delivers the welcome email exactly once per
// subscription (billing_reason gate plus the DB marker) and a receipt for
// every other paid invoice. Failures are logged, never surfaced.
func (s *webhookService) sendInvoiceEmails(ctx context.Context, sub *model.Subscription, invoice invoiceEvent) {
	owner, err := s.companies.GetOwner(ctx, sub.CompanyID)
	if err != nil {
		log.Printf("webhook: no owner for company %s: %v", sub.CompanyID, err)
		return
	}
	user, err := s.users.GetByID(ctx, owner.UserID.String())
	if err != nil {
		log.Printf("webhook: owner user missing for company %s: %v", sub.CompanyID, err)
		return
	}
	company, err := s.companies.GetByID(ctx, sub.CompanyID)
	if err != nil {
		log.Printf("webhook: company %s missing: %v", sub.CompanyID, err)
		return
	}

	if invoice.BillingReason == "subscription_create" && sub.StripeSubscriptionID != nil {
		first, err := s.billing.MarkWelcomeEmailSent(ctx, *sub.StripeSubscriptionID)
		if err != nil {
			log.Printf("webhook: welcome marker update failed for %s: %v", *sub.StripeSubscriptionID, err)
			return
		}
		if first {
			if err := s.email.SendWelcome(ctx, user.Email, company.Name); err != nil {
				log.Printf("webhook: welcome email to %s failed: %v", user.Email, err)
			}
		}
		return
	}

	amount := decimal.NewFromInt(invoice.AmountPaid).Div(decimal.NewFromInt(100))
	if err := s.email.SendReceipt(ctx, user.Email, invoice.ID, amount.StringFixed(2)+" "+invoice.Currency); err != nil {
		log.Printf("webhook: receipt email to %s failed: %v", user.Email, err)
	}
}

func (s *webhookService) handleSubscription(ctx context.Context, raw json.RawMessage) error {
	var event subscriptionEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return response.NewError(http.StatusBadRequest, response.CodeValidation, "unreadable subscription payload")
	}

	update := repository.SubscriptionUpdate{}
	switch event.Status {
	case "active", "trialing":
		update.BillingStatus = model.BillingActive
	case "past_due", "unpaid":
		update.BillingStatus = model.BillingPastDue
	case "canceled", "incomplete_expired":
		update.BillingStatus = model.BillingCanceled
	}
	if event.CurrentPeriodStart > 0 {
		start := time.Unix(event.CurrentPeriodStart, 0).UTC()
		update.CurrentPeriodStart = &start
	}
	if event.CurrentPeriodEnd > 0 {
		end := time.Unix(event.CurrentPeriodEnd, 0).UTC()
		update.CurrentPeriodEnd = &end
	}
	update.CancelAtPeriodEnd = &event.CancelAtPeriodEnd
	if event.CanceledAt > 0 {
		canceled := time.Unix(event.CanceledAt, 0).UTC()
		update.CanceledAt = &canceled
	}

	if err := s.billing.UpdateBillingStatus(ctx, event.ID, update); err != nil {
		return response.WrapDB("subscriptions", err)
	}

	if sub, err := s.billing.GetSubscriptionByStripeID(ctx, event.ID); err == nil {
		s.notifyCompany(sub.CompanyID.String(), "billing.subscription_"+event.Status, event.ID)
	}
	return nil
}

func (s *webhookService) notifyCompany(companyID, event, ref string) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{"event": event, "ref": ref})
	if err != nil {
		return
	}
	s.hub.BroadcastCompany(companyID, payload)
}
