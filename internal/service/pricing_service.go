package service

import (
	"context"
	"net/http"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/response"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VATRate is the Greek standard VAT applied to every preview and charge.
var VATRate = decimal.NewFromFloat(0.24)

// --- DTOs ---

type PricePreviewRequest struct {
	PlanID   string   `json:"plan_id" binding:"required,uuid"`
	Billing  string   `json:"billing" binding:"required,oneof=monthly yearly"`
	Branches int      `json:"branches" binding:"min=0,max=9"`
	Plugins  []string `json:"plugins"`
}

type PriceLine struct {
	Kind     string          `json:"kind"`
	Key      string          `json:"key"`
	Quantity int             `json:"quantity"`
	Unit     decimal.Decimal `json:"unit"`
	Amount   decimal.Decimal `json:"amount"`
}

type PricePreviewResponse struct {
	Currency  string          `json:"currency"`
	Billing   string          `json:"billing"`
	Lines     []PriceLine     `json:"lines"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	VATAmount decimal.Decimal `json:"vat_amount"`
	Total     decimal.Decimal `json:"total"`
}

type PlanResponse struct {
	ID            uuid.UUID       `json:"id"`
	Key           string          `json:"key"`
	Tier          int             `json:"tier"`
	Currency      string          `json:"currency"`
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
	YearlyAmount  decimal.Decimal `json:"yearly_amount"`
	ExtraMonthly  decimal.Decimal `json:"extra_store_monthly"`
	ExtraYearly   decimal.Decimal `json:"extra_store_yearly"`
	Free          bool            `json:"free"`
}

type PluginResponse struct {
	ID            uuid.UUID       `json:"id"`
	Key           string          `json:"key"`
	MinTier       int             `json:"min_tier"`
	Industries    []string        `json:"industries"`
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
	YearlyAmount  decimal.Decimal `json:"yearly_amount"`
}

type CatalogResponse struct {
	Plans   []PlanResponse   `json:"plans"`
	Plugins []PluginResponse `json:"plugins"`
}

// PricingService computes previews from the cached catalog amounts only.
// Stripe is never called on this path; the webhook price sync keeps the
// cache matching what Stripe will settle.
type PricingService interface {
	Catalog(ctx context.Context) (*CatalogResponse, error)
	Preview(ctx context.Context, req PricePreviewRequest) (*PricePreviewResponse, error)
}

type pricingService struct {
	catalog repository.CatalogRepository
}

func NewPricingService(catalog repository.CatalogRepository) PricingService {
	return &pricingService{catalog: catalog}
}

func (s *pricingService) Catalog(ctx context.Context) (*CatalogResponse, error) {
	plans, err := s.catalog.ListPlans(ctx)
	if err != nil {
		return nil, response.WrapDB("plans", err)
	}
	plugins, err := s.catalog.ListPlugins(ctx)
	if err != nil {
		return nil, response.WrapDB("plugins", err)
	}

	out := &CatalogResponse{
		Plans:   make([]PlanResponse, 0, len(plans)),
		Plugins: make([]PluginResponse, 0, len(plugins)),
	}
	for _, p := range plans {
		out.Plans = append(out.Plans, PlanResponse{
			ID:            p.ID,
			Key:           p.Key,
			Tier:          p.Tier,
			Currency:      p.Currency,
			MonthlyAmount: p.MonthlyAmount,
			YearlyAmount:  p.YearlyAmount,
			ExtraMonthly:  p.ExtraStoreMonthly,
			ExtraYearly:   p.ExtraStoreYearly,
			Free:          p.Free(),
		})
	}
	for _, p := range plugins {
		out.Plugins = append(out.Plugins, PluginResponse{
			ID:            p.ID,
			Key:           p.Key,
			MinTier:       p.MinTier,
			Industries:    p.Industries,
			MonthlyAmount: p.MonthlyAmount,
			YearlyAmount:  p.YearlyAmount,
		})
	}
	return out, nil
}

func (s *pricingService) Preview(ctx context.Context, req PricePreviewRequest) (*PricePreviewResponse, error) {
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		return nil, response.NewError(http.StatusBadRequest, response.CodeValidation, "invalid plan id")
	}

	plan, err := s.catalog.GetPlan(ctx, planID)
	if err != nil {
		return nil, response.NewError(http.StatusNotFound, response.CodePlanNotFound, "plan not found")
	}

	plugins, err := s.catalog.GetPluginsByKeys(ctx, req.Plugins)
	if err != nil {
		return nil, response.WrapDB("plugins", err)
	}
	if len(plugins) != len(req.Plugins) {
		return nil, response.NewError(http.StatusBadRequest, response.CodeValidation, "unknown plugin key")
	}

	yearly := req.Billing == model.BillingYearly

	base := plan.MonthlyAmount
	extraUnit := plan.ExtraStoreMonthly
	if yearly {
		base = plan.YearlyAmount
		extraUnit = plan.ExtraStoreYearly
	}

	lines := []PriceLine{{
		Kind:     model.ItemPlanBase,
		Key:      plan.Key,
		Quantity: 1,
		Unit:     base,
		Amount:   base,
	}}
	subtotal := base

	if req.Branches > 0 && !extraUnit.IsZero() {
		amount := extraUnit.Mul(decimal.NewFromInt(int64(req.Branches)))
		lines = append(lines, PriceLine{
			Kind:     model.ItemExtraStore,
			Key:      "extra_store",
			Quantity: req.Branches,
			Unit:     extraUnit,
			Amount:   amount,
		})
		subtotal = subtotal.Add(amount)
	}

	for _, plugin := range plugins {
		unit := plugin.MonthlyAmount
		if yearly {
			unit = plugin.YearlyAmount
		}
		lines = append(lines, PriceLine{
			Kind:     model.ItemPlugin,
			Key:      plugin.Key,
			Quantity: 1,
			Unit:     unit,
			Amount:   unit,
		})
		subtotal = subtotal.Add(unit)
	}

	subtotal = subtotal.Round(2)
	// total is the rounded gross; VAT is derived as the difference so the
	// three figures always add up exactly at two decimals.
	total := subtotal.Mul(VATRate.Add(decimal.NewFromInt(1))).Round(2)
	vat := total.Sub(subtotal)

	return &PricePreviewResponse{
		Currency:  plan.Currency,
		Billing:   req.Billing,
		Lines:     lines,
		Subtotal:  subtotal,
		VATAmount: vat,
		Total:     total,
	}, nil
}
