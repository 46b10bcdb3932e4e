package service

import (
	"context"
	"encoding/json"
	"testing"

	"backend/internal/model"
	"backend/pkg/response"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

type webhookFixture struct {
	svc       WebhookService
	catalog   *stubCatalogRepo
	billing   *stubBillingRepo
	companies *stubCompanyRepo
	users     *stubUserRepo
	email     *stubEmailSender
	companyID uuid.UUID
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	companies := newStubCompanyRepo()
	company := &model.Company{Name: "Acme Tavern"}
	if err := companies.Create(context.Background(), company); err != nil {
		t.Fatalf("create company: %v", err)
	}

	users := newStubUserRepo()
	owner := &model.User{Email: "owner@example.com", Verified: true}
	if err := users.Create(context.Background(), owner); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	if err := companies.CreateMembership(context.Background(), &model.CompanyUser{
		CompanyID: company.ID, UserID: owner.ID, Role: "owner", IsOwner: true, Status: model.MembershipActive,
	}); err != nil {
		t.Fatalf("create membership: %v", err)
	}

	catalog := newStubCatalogRepo()
	billing := newStubBillingRepo()
	email := &stubEmailSender{}
	svc := NewWebhookService(catalog, billing, companies, users, email, nil)

	return &webhookFixture{
		svc: svc, catalog: catalog, billing: billing,
		companies: companies, users: users, email: email, companyID: company.ID,
	}
}

func stripeEvent(t *testing.T, eventType string, payload interface{}) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return stripe.Event{
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func seedSubscription(t *testing.T, f *webhookFixture, stripeID string) *model.Subscription {
	t.Helper()
	sub := &model.Subscription{
		CompanyID:            f.companyID,
		PlanID:               uuid.New(),
		StripeSubscriptionID: &stripeID,
		BillingPeriod:        model.BillingMonthly,
		BillingStatus:        model.BillingIncomplete,
	}
	if err := f.billing.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}

func paidInvoice(id, subID, reason string, cents int64) map[string]interface{} {
	return map[string]interface{}{
		"id":             id,
		"subscription":   subID,
		"amount_paid":    cents,
		"currency":       "eur",
		"billing_reason": reason,
		"status_transitions": map[string]interface{}{
			"paid_at": 1767225600,
		},
	}
}

func TestInvoicePaidActivatesAndRecordsPayment(t *testing.T) {
	f := newWebhookFixture(t)
	sub := seedSubscription(t, f, "sub_123")

	event := stripeEvent(t, "invoice.paid", paidInvoice("in_1", "sub_123", "subscription_create", 9176))
	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if sub.BillingStatus != model.BillingActive {
		t.Fatalf("status = %s, want %s", sub.BillingStatus, model.BillingActive)
	}
	payment, ok := f.billing.payments["in_1"]
	if !ok {
		t.Fatal("payment row not written")
	}
	if !payment.Amount.Equal(decimal.RequireFromString("91.76")) {
		t.Fatalf("payment amount = %s, want 91.76", payment.Amount)
	}
	if payment.PaidAt == nil {
		t.Fatal("paid_at not set")
	}
}

func TestInvoicePaidRedeliverySendsWelcomeOnce(t *testing.T) {
	f := newWebhookFixture(t)
	seedSubscription(t, f, "sub_123")

	event := stripeEvent(t, "invoice.paid", paidInvoice("in_1", "sub_123", "subscription_create", 9176))
	for i := 0; i < 3; i++ {
		if err := f.svc.HandleEvent(context.Background(), event); err != nil {
			t.Fatalf("handle delivery %d: %v", i, err)
		}
	}

	if n := f.email.count("welcome"); n != 1 {
		t.Fatalf("welcome emails sent = %d, want 1", n)
	}
	if n := f.email.count("receipt"); n != 0 {
		t.Fatalf("subscription_create invoice must not produce receipts, got %d", n)
	}
	if len(f.billing.payments) != 1 {
		t.Fatalf("payment rows = %d, want 1", len(f.billing.payments))
	}
}

func TestRenewalInvoiceSendsReceipt(t *testing.T) {
	f := newWebhookFixture(t)
	seedSubscription(t, f, "sub_123")

	create := stripeEvent(t, "invoice.paid", paidInvoice("in_1", "sub_123", "subscription_create", 9176))
	if err := f.svc.HandleEvent(context.Background(), create); err != nil {
		t.Fatalf("handle create: %v", err)
	}
	renewal := stripeEvent(t, "invoice.paid", paidInvoice("in_2", "sub_123", "subscription_cycle", 9176))
	if err := f.svc.HandleEvent(context.Background(), renewal); err != nil {
		t.Fatalf("handle renewal: %v", err)
	}

	if n := f.email.count("welcome"); n != 1 {
		t.Fatalf("welcome emails = %d, want 1", n)
	}
	if n := f.email.count("receipt"); n != 1 {
		t.Fatalf("receipt emails = %d, want 1", n)
	}
}

func TestInvoicePaymentFailedMarksPastDue(t *testing.T) {
	f := newWebhookFixture(t)
	sub := seedSubscription(t, f, "sub_123")

	event := stripeEvent(t, "invoice.payment_failed", map[string]interface{}{
		"id": "in_9", "subscription": "sub_123", "amount_due": 4900, "currency": "eur",
		"billing_reason": "subscription_cycle",
	})
	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if sub.BillingStatus != model.BillingPastDue {
		t.Fatalf("status = %s, want %s", sub.BillingStatus, model.BillingPastDue)
	}
	payment := f.billing.payments["in_9"]
	if payment == nil || payment.Status != model.PaymentFailed {
		t.Fatalf("failed payment not recorded: %+v", payment)
	}
	if n := f.email.count("welcome") + f.email.count("receipt"); n != 0 {
		t.Fatalf("failed invoice must send no emails, got %d", n)
	}
}

func TestInvoiceForUnknownSubscriptionFailsDelivery(t *testing.T) {
	f := newWebhookFixture(t)

	// The placeholder may not exist yet. The delivery must fail so Stripe
	// redelivers; acknowledging here would lose the invoice for good.
	event := stripeEvent(t, "invoice.paid", paidInvoice("in_1", "sub_missing", "subscription_create", 100))
	err := f.svc.HandleEvent(context.Background(), event)
	if got := errCode(t, err); got != response.CodeSubscriptionPending {
		t.Fatalf("code = %q, want %q", got, response.CodeSubscriptionPending)
	}
	if len(f.billing.payments) != 0 {
		t.Fatal("no payment should be written without a local subscription")
	}

	// Once the placeholder lands, a redelivery of the same event succeeds.
	seedSubscription(t, f, "sub_missing")
	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("redelivery after reconcile: %v", err)
	}
	if f.billing.payments["in_1"] == nil {
		t.Fatal("redelivered invoice not recorded")
	}
}

func TestPriceUpdatedRefreshesPlanCache(t *testing.T) {
	f := newWebhookFixture(t)
	priceID := "price_pro_monthly"
	plan := &model.Plan{
		ID: uuid.New(), Key: "pro",
		MonthlyAmount:      decimal.RequireFromString("49.00"),
		StripeMonthlyPrice: &priceID,
	}
	f.catalog.plans = append(f.catalog.plans, plan)

	event := stripeEvent(t, "price.updated", map[string]interface{}{
		"id": priceID, "currency": "eur", "unit_amount": 5900,
	})
	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if !plan.MonthlyAmount.Equal(decimal.RequireFromString("59.00")) {
		t.Fatalf("cached amount = %s, want 59.00", plan.MonthlyAmount)
	}
}

func TestPriceEventForUnknownPriceIgnored(t *testing.T) {
	f := newWebhookFixture(t)

	event := stripeEvent(t, "price.created", map[string]interface{}{
		"id": "price_unrelated", "currency": "eur", "unit_amount": 100,
	})
	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown price must be acknowledged, got %v", err)
	}
}

func TestSubscriptionUpdatedMapsStatusAndPeriod(t *testing.T) {
	f := newWebhookFixture(t)
	sub := seedSubscription(t, f, "sub_123")

	event := stripeEvent(t, "customer.subscription.updated", map[string]interface{}{
		"id": "sub_123", "status": "past_due",
		"current_period_start": 1767225600, "current_period_end": 1769904000,
		"cancel_at_period_end": true,
	})
	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if sub.BillingStatus != model.BillingPastDue {
		t.Fatalf("status = %s, want %s", sub.BillingStatus, model.BillingPastDue)
	}
	if sub.CurrentPeriodStart == nil || sub.CurrentPeriodEnd == nil {
		t.Fatal("period bounds not written")
	}
	if !sub.CancelAtPeriodEnd {
		t.Fatal("cancel_at_period_end not written")
	}
}

func TestUnhandledEventTypeAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	event := stripe.Event{Type: "charge.refunded", Data: &stripe.EventData{Raw: json.RawMessage(`{}`)}}
	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unhandled types must be acknowledged, got %v", err)
	}
}

func TestInvoicePaidUpsertIsKeyedByInvoiceID(t *testing.T) {
	f := newWebhookFixture(t)
	seedSubscription(t, f, "sub_123")

	for i := 0; i < 2; i++ {
		event := stripeEvent(t, "invoice.paid", paidInvoice("in_dup", "sub_123", "subscription_cycle", 1000))
		if err := f.svc.HandleEvent(context.Background(), event); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if len(f.billing.payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(f.billing.payments))
	}
}
