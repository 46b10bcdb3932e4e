package service

import (
	"context"
	"encoding/json"
	"net/http"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/response"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

// OptionalPlan distinguishes "plan absent from the payload" from
// "plan explicitly set to null"; both matter to the reset rules.
type OptionalPlan struct {
	Present bool
	Value   *model.PlanSelection
}

func (o *OptionalPlan) UnmarshalJSON(b []byte) error {
	o.Present = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

// DraftUpdates is a partial draft patch. Nil pointer fields were absent
// from the payload and leave the stored value untouched.
type DraftUpdates struct {
	Company    *model.CompanyDraft `json:"company"`
	Industries *[]string           `json:"industries"`
	Plan       OptionalPlan        `json:"plan"`
	Plugins    *[]string           `json:"plugins"`
	Branches   *int                `json:"branches"`
}

type OnboardingStateResponse struct {
	CurrentStep    int         `json:"current_step"`
	MaxStepReached int         `json:"max_step_reached"`
	IsCompleted    bool        `json:"is_completed"`
	Draft          model.Draft `json:"draft"`
}

// Draft field names used by the reset-rule table.
const (
	fieldIndustries = "industries"
	fieldPlan       = "plan"
	fieldPlugins    = "plugins"
)

// resetRule declares that a change to Trigger invalidates the Clears
// fields. The plugin catalog is filtered by industry and gated by plan
// tier, so either changing voids the current plugin selection.
type resetRule struct {
	Trigger string
	Clears  []string
}

var draftResetRules = []resetRule{
	{Trigger: fieldIndustries, Clears: []string{fieldPlugins}},
	{Trigger: fieldPlan, Clears: []string{fieldPlugins}},
}

// Branch count bounds for the wizard.
const (
	MinBranches = 0
	MaxBranches = 9
)

// OnboardingService is the server-authoritative wizard state machine.
// Clients only mirror current_step; every transition is validated here.
type OnboardingService interface {
	State(ctx context.Context, companyID uuid.UUID) (*OnboardingStateResponse, error)
	Next(ctx context.Context, companyID uuid.UUID, updates DraftUpdates) (*OnboardingStateResponse, error)
	Back(ctx context.Context, companyID uuid.UUID) (*OnboardingStateResponse, error)
	UpdateDraft(ctx context.Context, companyID uuid.UUID, updates DraftUpdates) (*OnboardingStateResponse, error)
	Complete(ctx context.Context, companyID uuid.UUID) (*OnboardingStateResponse, error)

	// ProvisionResources materializes the draft (stores, plugin links) and
	// marks onboarding complete. Runs inside the caller's transaction; the
	// paid billing path drives it after payment confirmation.
	ProvisionResources(ctx context.Context, companyID uuid.UUID) error
}

type onboardingService struct {
	onboarding repository.OnboardingRepository
	catalog    repository.CatalogRepository
	stores     repository.StoreRepository
	companies  repository.CompanyRepository
	billing    repository.BillingRepository
	tx         repository.TransactionManager
}

func NewOnboardingService(
	onboarding repository.OnboardingRepository,
	catalog repository.CatalogRepository,
	stores repository.StoreRepository,
	companies repository.CompanyRepository,
	billing repository.BillingRepository,
	tx repository.TransactionManager,
) OnboardingService {
	return &onboardingService{
		onboarding: onboarding,
		catalog:    catalog,
		stores:     stores,
		companies:  companies,
		billing:    billing,
		tx:         tx,
	}
}

func (s *onboardingService) load(ctx context.Context, companyID uuid.UUID) (*model.Onboarding, model.Draft, error) {
	record, err := s.onboarding.GetByCompany(ctx, companyID)
	if err != nil {
		return nil, model.Draft{}, response.NewError(http.StatusNotFound, response.CodeCompanyNotFound, "onboarding record not found")
	}
	draft, err := record.DecodeDraft()
	if err != nil {
		return nil, model.Draft{}, response.NewError(http.StatusInternalServerError, response.CodeServer, "stored draft is unreadable")
	}
	return record, draft, nil
}

func (s *onboardingService) State(ctx context.Context, companyID uuid.UUID) (*OnboardingStateResponse, error) {
	record, draft, err := s.load(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return stateResponse(record, draft), nil
}

// Next merges the partial updates into the draft, applies the reset rules,
// and advances the step counter.
func (s *onboardingService) Next(ctx context.Context, companyID uuid.UUID, updates DraftUpdates) (*OnboardingStateResponse, error) {
	record, draft, err := s.load(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if record.IsCompleted {
		return nil, response.NewError(http.StatusConflict, response.CodeOnboardingCompleted, "onboarding already completed")
	}

	merged, err := applyUpdates(draft, updates)
	if err != nil {
		return nil, err
	}

	if err := validateStepData(record.CurrentStep, merged); err != nil {
		return nil, err
	}

	if record.CurrentStep < model.StepFinalize {
		record.CurrentStep++
		if record.CurrentStep > record.MaxStepReached {
			record.MaxStepReached = record.CurrentStep
		}
	}

	if err := record.EncodeDraft(merged); err != nil {
		return nil, response.NewError(http.StatusInternalServerError, response.CodeServer, "failed to encode draft")
	}
	if err := s.onboarding.Save(ctx, record); err != nil {
		return nil, response.WrapDB("onboarding", err)
	}
	return stateResponse(record, merged), nil
}

// Back decrements the step only. Draft data is never mutated on the way
// back.
func (s *onboardingService) Back(ctx context.Context, companyID uuid.UUID) (*OnboardingStateResponse, error) {
	record, draft, err := s.load(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if record.IsCompleted {
		return nil, response.NewError(http.StatusConflict, response.CodeOnboardingCompleted, "onboarding already completed")
	}
	if record.CurrentStep > model.StepCompany {
		record.CurrentStep--
		if err := s.onboarding.Save(ctx, record); err != nil {
			return nil, response.WrapDB("onboarding", err)
		}
	}
	return stateResponse(record, draft), nil
}

// UpdateDraft merges updates without advancing, for edits on the current
// step. The same sanitize-and-reset rules apply.
func (s *onboardingService) UpdateDraft(ctx context.Context, companyID uuid.UUID, updates DraftUpdates) (*OnboardingStateResponse, error) {
	record, draft, err := s.load(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if record.IsCompleted {
		return nil, response.NewError(http.StatusConflict, response.CodeOnboardingCompleted, "onboarding already completed")
	}

	merged, err := applyUpdates(draft, updates)
	if err != nil {
		return nil, err
	}
	if err := record.EncodeDraft(merged); err != nil {
		return nil, response.NewError(http.StatusInternalServerError, response.CodeServer, "failed to encode draft")
	}
	if err := s.onboarding.Save(ctx, record); err != nil {
		return nil, response.WrapDB("onboarding", err)
	}
	return stateResponse(record, merged), nil
}

// Complete finishes the free-plan path: provisioning plus a zero-amount
// local subscription row, all in one transaction. Paid plans must go
// through the billing flow first.
func (s *onboardingService) Complete(ctx context.Context, companyID uuid.UUID) (*OnboardingStateResponse, error) {
	record, draft, err := s.load(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if record.IsCompleted {
		return nil, response.NewError(http.StatusConflict, response.CodeOnboardingCompleted, "onboarding already completed")
	}
	if draft.Plan == nil {
		return nil, response.NewError(http.StatusBadRequest, response.CodeInvalidStep, "no plan selected")
	}

	plan, err := s.catalog.GetPlan(ctx, draft.Plan.ID)
	if err != nil {
		return nil, response.NewError(http.StatusNotFound, response.CodePlanNotFound, "selected plan not found")
	}
	if !plan.Free() {
		return nil, response.NewError(http.StatusPaymentRequired, response.CodePaymentRequired, "paid plan requires payment confirmation")
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ProvisionResources(txCtx, companyID); err != nil {
			return err
		}
		sub := &model.Subscription{
			CompanyID:     companyID,
			PlanID:        plan.ID,
			BillingPeriod: draft.Plan.Billing,
			BillingStatus: model.BillingActive,
		}
		if err := s.billing.CreateSubscription(txCtx, sub); err != nil {
			return response.WrapDB("subscriptions", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Re-read the completed record for the response.
	record, draft, err = s.load(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return stateResponse(record, draft), nil
}

// ProvisionResources creates the main store, extra branch stores, company
// plugin rows and store-plugin links from the draft, then marks the
// onboarding record completed. It relies on the caller's transaction
// context for atomicity.
func (s *onboardingService) ProvisionResources(ctx context.Context, companyID uuid.UUID) error {
	record, draft, err := s.load(ctx, companyID)
	if err != nil {
		return err
	}
	if record.IsCompleted {
		return response.NewError(http.StatusConflict, response.CodeOnboardingCompleted, "onboarding already completed")
	}
	if draft.Plan == nil || draft.Company == nil {
		return response.NewError(http.StatusBadRequest, response.CodeInvalidStep, "draft is missing required steps")
	}

	plan, err := s.catalog.GetPlan(ctx, draft.Plan.ID)
	if err != nil {
		return response.NewError(http.StatusNotFound, response.CodePlanNotFound, "selected plan not found")
	}

	plugins, err := s.catalog.GetPluginsByKeys(ctx, draft.Plugins)
	if err != nil {
		return response.WrapDB("plugins", err)
	}
	for _, plugin := range plugins {
		if !plugin.AllowedFor(plan.Tier, draft.Industries) {
			return response.NewError(http.StatusBadRequest, response.CodePluginNotAllowed, "plugin "+plugin.Key+" not available for this plan and industries")
		}
	}

	// Persist company contact details captured at step 1.
	company, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return response.NewError(http.StatusNotFound, response.CodeCompanyNotFound, "company not found")
	}
	company.Name = draft.Company.Name
	company.Phone = draft.Company.Phone
	if err := s.companies.Update(ctx, company); err != nil {
		return response.WrapDB("companies", err)
	}

	// Exactly one main store per company; an existing one means resources
	// were already provisioned.
	if _, err := s.stores.GetMain(ctx, companyID); err == nil {
		return response.NewError(http.StatusConflict, response.CodeOnboardingCompleted, "resources already provisioned")
	} else if err != gorm.ErrRecordNotFound {
		return response.WrapDB("stores", err)
	}

	main := &model.Store{CompanyID: companyID, Name: draft.Company.Name, IsMain: true}
	if err := s.stores.Create(ctx, main); err != nil {
		return response.WrapDB("stores", err)
	}
	for i := 0; i < draft.Branches; i++ {
		branch := &model.Store{CompanyID: companyID, Name: draft.Company.Name + " branch"}
		if err := s.stores.Create(ctx, branch); err != nil {
			return response.WrapDB("stores", err)
		}
	}

	for _, plugin := range plugins {
		if err := s.stores.CreateCompanyPlugin(ctx, &model.CompanyPlugin{CompanyID: companyID, PluginID: plugin.ID}); err != nil {
			return response.WrapDB("company_plugins", err)
		}
		if err := s.stores.LinkPlugin(ctx, &model.StorePlugin{StoreID: main.ID, PluginID: plugin.ID}); err != nil {
			return response.WrapDB("store_plugins", err)
		}
	}

	record.IsCompleted = true
	record.CurrentStep = model.StepFinalize
	record.MaxStepReached = model.StepFinalize
	if err := s.onboarding.Save(ctx, record); err != nil {
		return response.WrapDB("onboarding", err)
	}
	return nil
}

// applyUpdates merges a partial patch into the draft and fires the reset
// rules for fields that actually changed. Resubmitting an unchanged value
// is a no-op and clears nothing.
func applyUpdates(draft model.Draft, updates DraftUpdates) (model.Draft, error) {
	changed := map[string]bool{}

	if updates.Company != nil {
		draft.Company = updates.Company
	}

	if updates.Industries != nil {
		if !equalStrings(draft.Industries, *updates.Industries) {
			changed[fieldIndustries] = true
		}
		draft.Industries = *updates.Industries
	}

	if updates.Plan.Present {
		if planIDChanged(draft.Plan, updates.Plan.Value) {
			changed[fieldPlan] = true
		}
		draft.Plan = updates.Plan.Value
	}

	if updates.Plugins != nil {
		draft.Plugins = *updates.Plugins
	}

	if updates.Branches != nil {
		if *updates.Branches < MinBranches || *updates.Branches > MaxBranches {
			return model.Draft{}, response.NewError(http.StatusBadRequest, response.CodeInvalidRange, "branches must be between 0 and 9")
		}
		draft.Branches = *updates.Branches
	}

	for _, rule := range draftResetRules {
		if !changed[rule.Trigger] {
			continue
		}
		for _, field := range rule.Clears {
			switch field {
			case fieldPlugins:
				draft.Plugins = nil
			case fieldIndustries:
				draft.Industries = nil
			case fieldPlan:
				draft.Plan = nil
			}
		}
	}

	return draft, nil
}

// planIDChanged reports whether the plan identity changed. A billing-period
// switch on the same plan keeps plugins valid and fires no reset.
func planIDChanged(prev, next *model.PlanSelection) bool {
	if prev == nil && next == nil {
		return false
	}
	if prev == nil || next == nil {
		return true
	}
	return prev.ID != next.ID
}

// validateStepData gates the step transition on the data that step is
// responsible for.
func validateStepData(step int, draft model.Draft) error {
	switch step {
	case model.StepCompany:
		if draft.Company == nil || draft.Company.Name == "" {
			return response.NewError(http.StatusBadRequest, response.CodeInvalidStep, "company info required")
		}
	case model.StepIndustries:
		if len(draft.Industries) == 0 {
			return response.NewError(http.StatusBadRequest, response.CodeInvalidStep, "select at least one industry")
		}
	case model.StepPlan:
		if draft.Plan == nil || (draft.Plan.Billing != model.BillingMonthly && draft.Plan.Billing != model.BillingYearly) {
			return response.NewError(http.StatusBadRequest, response.CodeInvalidStep, "select a plan and billing period")
		}
	}
	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stateResponse(record *model.Onboarding, draft model.Draft) *OnboardingStateResponse {
	return &OnboardingStateResponse{
		CurrentStep:    record.CurrentStep,
		MaxStepReached: record.MaxStepReached,
		IsCompleted:    record.IsCompleted,
		Draft:          draft,
	}
}
