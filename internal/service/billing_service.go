package service

import (
	"context"
	"net/http"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/response"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type ConfirmAndSubscribeRequest struct {
	PaymentMethodID string `json:"payment_method_id" binding:"required"`
}

type CheckPlanChangeRequest struct {
	PlanID  string `json:"plan_id" binding:"required,uuid"`
	Billing string `json:"billing" binding:"required,oneof=monthly yearly"`
}

type SubscriptionResponse struct {
	ID                   uuid.UUID `json:"id"`
	PlanID               uuid.UUID `json:"plan_id"`
	StripeSubscriptionID *string   `json:"stripe_subscription_id"`
	BillingPeriod        string    `json:"billing_period"`
	BillingStatus        string    `json:"billing_status"`
}

type PaymentResponse struct {
	ID              uuid.UUID       `json:"id"`
	StripeInvoiceID string          `json:"stripe_invoice_id"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	BillingReason   string          `json:"billing_reason"`
	PaidAt          *time.Time      `json:"paid_at"`
}

type PlanChangeResponse struct {
	CurrentPlanID      uuid.UUID       `json:"current_plan_id"`
	NewPlanID          uuid.UUID       `json:"new_plan_id"`
	InvalidatedPlugins []string        `json:"invalidated_plugins"`
	CurrentTotal       decimal.Decimal `json:"current_total"`
	NewTotal           decimal.Decimal `json:"new_total"`
}

// BillingService provisions Stripe subscriptions from the onboarding
// draft. The webhook service owns billing-status fields afterwards; this
// path only ever writes incomplete placeholders.
type BillingService interface {
	CreateSetupIntent(ctx context.Context, companyID uuid.UUID) (*IntentResult, error)
	CreatePaymentIntent(ctx context.Context, companyID uuid.UUID, preview PricePreviewRequest) (*IntentResult, error)
	ConfirmAndSubscribe(ctx context.Context, companyID uuid.UUID, req ConfirmAndSubscribeRequest) (*SubscriptionResponse, error)
	CheckPlanChange(ctx context.Context, companyID uuid.UUID, req CheckPlanChangeRequest) (*PlanChangeResponse, error)
	GetSubscription(ctx context.Context, companyID uuid.UUID) (*SubscriptionResponse, error)
	ListPayments(ctx context.Context, companyID uuid.UUID, page, limit int) ([]PaymentResponse, int64, error)
}

type billingService struct {
	companies  repository.CompanyRepository
	catalog    repository.CatalogRepository
	onboarding repository.OnboardingRepository
	billing    repository.BillingRepository
	users      repository.UserRepository
	wizard     OnboardingService
	pricing    PricingService
	gateway    StripeGateway
	tx         repository.TransactionManager
}

func NewBillingService(
	companies repository.CompanyRepository,
	catalog repository.CatalogRepository,
	onboarding repository.OnboardingRepository,
	billing repository.BillingRepository,
	users repository.UserRepository,
	wizard OnboardingService,
	pricing PricingService,
	gateway StripeGateway,
	tx repository.TransactionManager,
) BillingService {
	return &billingService{
		companies:  companies,
		catalog:    catalog,
		onboarding: onboarding,
		billing:    billing,
		users:      users,
		wizard:     wizard,
		pricing:    pricing,
		gateway:    gateway,
		tx:         tx,
	}
}

// ensureCustomer creates the Stripe customer on first billing touch and
// persists its id on the company. The owner's email goes on the customer
// so Stripe's own receipts reach a real inbox.
func (s *billingService) ensureCustomer(ctx context.Context, companyID uuid.UUID) (*model.Company, string, error) {
	company, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, "", response.NewError(http.StatusNotFound, response.CodeCompanyNotFound, "company not found")
	}
	if company.StripeCustomerID != nil {
		return company, *company.StripeCustomerID, nil
	}

	email := ""
	if owner, err := s.companies.GetOwner(ctx, companyID); err == nil {
		if user, err := s.users.GetByID(ctx, owner.UserID.String()); err == nil {
			email = user.Email
		}
	}

	customerID, err := s.gateway.CreateCustomer(ctx, company.Name, email)
	if err != nil {
		return nil, "", response.NewError(http.StatusBadGateway, response.CodePaymentFailed, "failed to create payment customer")
	}
	if err := s.companies.SetStripeCustomer(ctx, companyID, customerID); err != nil {
		return nil, "", response.WrapDB("companies", err)
	}
	company.StripeCustomerID = &customerID
	return company, customerID, nil
}

func (s *billingService) CreateSetupIntent(ctx context.Context, companyID uuid.UUID) (*IntentResult, error) {
	_, customerID, err := s.ensureCustomer(ctx, companyID)
	if err != nil {
		return nil, err
	}
	intent, err := s.gateway.CreateSetupIntent(ctx, customerID)
	if err != nil {
		return nil, response.NewError(http.StatusBadGateway, response.CodePaymentFailed, "failed to create setup intent")
	}
	return &intent, nil
}

func (s *billingService) CreatePaymentIntent(ctx context.Context, companyID uuid.UUID, preview PricePreviewRequest) (*IntentResult, error) {
	_, customerID, err := s.ensureCustomer(ctx, companyID)
	if err != nil {
		return nil, err
	}

	price, err := s.pricing.Preview(ctx, preview)
	if err != nil {
		return nil, err
	}
	if price.Total.IsZero() {
		return nil, response.NewError(http.StatusBadRequest, response.CodeValidation, "free plans need no payment intent")
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, customerID, price.Currency, price.Total)
	if err != nil {
		return nil, response.NewError(http.StatusBadGateway, response.CodePaymentFailed, "failed to create payment intent")
	}
	return &intent, nil
}

// ConfirmAndSubscribe runs after the client confirmed the intent with
// Stripe: create the real subscription server-side with the confirmed
// payment method, then record the placeholder row + items and provision
// the company in one transaction. Billing status stays incomplete until
// the invoice webhook lands.
func (s *billingService) ConfirmAndSubscribe(ctx context.Context, companyID uuid.UUID, req ConfirmAndSubscribeRequest) (*SubscriptionResponse, error) {
	_, customerID, err := s.ensureCustomer(ctx, companyID)
	if err != nil {
		return nil, err
	}

	record, err := s.onboarding.GetByCompany(ctx, companyID)
	if err != nil {
		return nil, response.NewError(http.StatusNotFound, response.CodeCompanyNotFound, "onboarding record not found")
	}
	if record.IsCompleted {
		return nil, response.NewError(http.StatusConflict, response.CodeOnboardingCompleted, "onboarding already completed")
	}
	draft, err := record.DecodeDraft()
	if err != nil {
		return nil, response.NewError(http.StatusInternalServerError, response.CodeServer, "stored draft is unreadable")
	}
	if draft.Plan == nil {
		return nil, response.NewError(http.StatusBadRequest, response.CodeInvalidStep, "no plan selected")
	}

	plan, err := s.catalog.GetPlan(ctx, draft.Plan.ID)
	if err != nil {
		return nil, response.NewError(http.StatusNotFound, response.CodePlanNotFound, "selected plan not found")
	}
	if plan.Free() {
		return nil, response.NewError(http.StatusBadRequest, response.CodeValidation, "free plans complete without billing")
	}

	plugins, err := s.catalog.GetPluginsByKeys(ctx, draft.Plugins)
	if err != nil {
		return nil, response.WrapDB("plugins", err)
	}

	lines, items, err := buildSubscriptionLines(plan, plugins, draft)
	if err != nil {
		return nil, err
	}

	created, err := s.gateway.CreateSubscription(ctx, customerID, req.PaymentMethodID, lines)
	if err != nil {
		return nil, response.NewError(http.StatusBadGateway, response.CodePaymentFailed, "failed to create subscription")
	}

	sub := &model.Subscription{
		CompanyID:            companyID,
		PlanID:               plan.ID,
		StripeSubscriptionID: &created.ID,
		BillingPeriod:        draft.Plan.Billing,
		BillingStatus:        model.BillingIncomplete,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.billing.CreateSubscription(txCtx, sub); err != nil {
			return response.WrapDB("subscriptions", err)
		}
		for i := range items {
			items[i].SubscriptionID = sub.ID
			if items[i].StripePriceID != nil {
				if itemID, ok := created.ItemIDs[*items[i].StripePriceID]; ok {
					id := itemID
					items[i].StripeItemID = &id
				}
			}
		}
		if err := s.billing.ReplaceItems(txCtx, sub.ID, items); err != nil {
			return response.WrapDB("subscription_items", err)
		}
		return s.wizard.ProvisionResources(txCtx, companyID)
	})
	if err != nil {
		// Stripe side succeeded but the local write failed; the invoice
		// webhook reconciles the subscription row on delivery.
		return nil, err
	}

	return &SubscriptionResponse{
		ID:                   sub.ID,
		PlanID:               sub.PlanID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		BillingPeriod:        sub.BillingPeriod,
		BillingStatus:        sub.BillingStatus,
	}, nil
}

// buildSubscriptionLines maps the draft onto Stripe prices and local audit
// items. Missing cached price ids mean the catalog was never synced and
// the subscription cannot be created faithfully.
func buildSubscriptionLines(plan *model.Plan, plugins []model.Plugin, draft model.Draft) ([]SubscriptionLine, []model.SubscriptionItem, error) {
	yearly := draft.Plan.Billing == model.BillingYearly

	basePrice := plan.StripeMonthlyPrice
	baseAmount := plan.MonthlyAmount
	extraPrice := plan.StripeExtraMonthly
	extraAmount := plan.ExtraStoreMonthly
	if yearly {
		basePrice = plan.StripeYearlyPrice
		baseAmount = plan.YearlyAmount
		extraPrice = plan.StripeExtraYearly
		extraAmount = plan.ExtraStoreYearly
	}
	if basePrice == nil {
		return nil, nil, response.NewError(http.StatusConflict, response.CodeServer, "plan has no synced price for that period")
	}

	lines := []SubscriptionLine{{PriceID: *basePrice, Quantity: 1}}
	items := []model.SubscriptionItem{{
		Kind:          model.ItemPlanBase,
		StripePriceID: basePrice,
		Quantity:      1,
		UnitAmount:    baseAmount,
	}}

	if draft.Branches > 0 {
		if extraPrice == nil {
			return nil, nil, response.NewError(http.StatusConflict, response.CodeServer, "plan has no synced extra-store price for that period")
		}
		lines = append(lines, SubscriptionLine{PriceID: *extraPrice, Quantity: int64(draft.Branches)})
		items = append(items, model.SubscriptionItem{
			Kind:          model.ItemExtraStore,
			StripePriceID: extraPrice,
			Quantity:      draft.Branches,
			UnitAmount:    extraAmount,
		})
	}

	for i := range plugins {
		plugin := plugins[i]
		// Eligibility is enforced before any Stripe call; a disallowed
		// plugin must never reach a live price line.
		if !plugin.AllowedFor(plan.Tier, draft.Industries) {
			return nil, nil, response.NewError(http.StatusForbidden, response.CodePluginNotAllowed, "plugin "+plugin.Key+" is not available on this plan")
		}
		price := plugin.StripeMonthlyPrice
		amount := plugin.MonthlyAmount
		if yearly {
			price = plugin.StripeYearlyPrice
			amount = plugin.YearlyAmount
		}
		if price == nil {
			return nil, nil, response.NewError(http.StatusConflict, response.CodeServer, "plugin "+plugin.Key+" has no synced price for that period")
		}
		lines = append(lines, SubscriptionLine{PriceID: *price, Quantity: 1})
		refID := plugin.ID
		items = append(items, model.SubscriptionItem{
			Kind:          model.ItemPlugin,
			RefID:         &refID,
			StripePriceID: price,
			Quantity:      1,
			UnitAmount:    amount,
		})
	}

	return lines, items, nil
}

// CheckPlanChange reports what a plan switch would invalidate and cost.
// The mutation itself is not offered yet.
func (s *billingService) CheckPlanChange(ctx context.Context, companyID uuid.UUID, req CheckPlanChangeRequest) (*PlanChangeResponse, error) {
	sub, err := s.billing.GetSubscriptionByCompany(ctx, companyID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, response.NewError(http.StatusNotFound, response.CodeOnboardingIncomplet, "no active subscription")
		}
		return nil, response.WrapDB("subscriptions", err)
	}

	newPlanID, err := uuid.Parse(req.PlanID)
	if err != nil {
		return nil, response.NewError(http.StatusBadRequest, response.CodeValidation, "invalid plan id")
	}
	newPlan, err := s.catalog.GetPlan(ctx, newPlanID)
	if err != nil {
		return nil, response.NewError(http.StatusNotFound, response.CodePlanNotFound, "plan not found")
	}

	items, err := s.billing.ListItems(ctx, sub.ID)
	if err != nil {
		return nil, response.WrapDB("subscription_items", err)
	}

	record, err := s.onboarding.GetByCompany(ctx, companyID)
	if err != nil {
		return nil, response.WrapDB("onboarding", err)
	}
	draft, err := record.DecodeDraft()
	if err != nil {
		return nil, response.NewError(http.StatusInternalServerError, response.CodeServer, "stored draft is unreadable")
	}

	plugins, err := s.catalog.ListPlugins(ctx)
	if err != nil {
		return nil, response.WrapDB("plugins", err)
	}
	byID := make(map[uuid.UUID]model.Plugin, len(plugins))
	for _, plugin := range plugins {
		byID[plugin.ID] = plugin
	}

	var invalidated []string
	pluginKeys := make([]string, 0)
	for _, item := range items {
		if item.Kind != model.ItemPlugin || item.RefID == nil {
			continue
		}
		plugin, ok := byID[*item.RefID]
		if !ok {
			continue
		}
		if plugin.AllowedFor(newPlan.Tier, draft.Industries) {
			pluginKeys = append(pluginKeys, plugin.Key)
		} else {
			invalidated = append(invalidated, plugin.Key)
		}
	}

	currentPreview, err := s.pricing.Preview(ctx, PricePreviewRequest{
		PlanID:   sub.PlanID.String(),
		Billing:  sub.BillingPeriod,
		Branches: draft.Branches,
		Plugins:  draft.Plugins,
	})
	if err != nil {
		return nil, err
	}
	newPreview, err := s.pricing.Preview(ctx, PricePreviewRequest{
		PlanID:   newPlan.ID.String(),
		Billing:  req.Billing,
		Branches: draft.Branches,
		Plugins:  pluginKeys,
	})
	if err != nil {
		return nil, err
	}

	return &PlanChangeResponse{
		CurrentPlanID:      sub.PlanID,
		NewPlanID:          newPlan.ID,
		InvalidatedPlugins: invalidated,
		CurrentTotal:       currentPreview.Total,
		NewTotal:           newPreview.Total,
	}, nil
}

func (s *billingService) GetSubscription(ctx context.Context, companyID uuid.UUID) (*SubscriptionResponse, error) {
	sub, err := s.billing.GetSubscriptionByCompany(ctx, companyID)
	if err != nil {
		return nil, response.NewError(http.StatusNotFound, response.CodeOnboardingIncomplet, "no subscription for company")
	}
	return &SubscriptionResponse{
		ID:                   sub.ID,
		PlanID:               sub.PlanID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		BillingPeriod:        sub.BillingPeriod,
		BillingStatus:        sub.BillingStatus,
	}, nil
}

func (s *billingService) ListPayments(ctx context.Context, companyID uuid.UUID, page, limit int) ([]PaymentResponse, int64, error) {
	payments, total, err := s.billing.ListPayments(ctx, companyID, page, limit)
	if err != nil {
		return nil, 0, response.WrapDB("payment_history", err)
	}
	out := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, PaymentResponse{
			ID:              p.ID,
			StripeInvoiceID: p.StripeInvoiceID,
			Status:          p.Status,
			Amount:          p.Amount,
			Currency:        p.Currency,
			BillingReason:   p.BillingReason,
			PaidAt:          p.PaidAt,
		})
	}
	return out, total, nil
}
