package service

import (
	"context"
	"testing"

	"backend/internal/model"
	"backend/pkg/response"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type onboardingFixture struct {
	svc       OnboardingService
	catalog   *stubCatalogRepo
	stores    *stubStoreRepo
	companies *stubCompanyRepo
	billing   *stubBillingRepo
	records   *stubOnboardingRepo
	companyID uuid.UUID
	freePlan  *model.Plan
	paidPlan  *model.Plan
}

func newOnboardingFixture(t *testing.T) *onboardingFixture {
	t.Helper()

	catalog := newStubCatalogRepo()
	freePlan := &model.Plan{ID: uuid.New(), Key: "free", Tier: 0, Currency: "EUR"}
	paidPlan := &model.Plan{
		ID: uuid.New(), Key: "pro", Tier: 2, Currency: "EUR",
		MonthlyAmount: decimal.NewFromInt(49), YearlyAmount: decimal.NewFromInt(490),
	}
	catalog.plans = append(catalog.plans, freePlan, paidPlan)
	catalog.plugins = append(catalog.plugins,
		&model.Plugin{ID: uuid.New(), Key: "loyalty", MinTier: 0, MonthlyAmount: decimal.NewFromInt(5)},
		&model.Plugin{ID: uuid.New(), Key: "kitchen", MinTier: 2, Industries: []string{"restaurant"}, MonthlyAmount: decimal.NewFromInt(9)},
	)

	companies := newStubCompanyRepo()
	company := &model.Company{Name: "placeholder"}
	if err := companies.Create(context.Background(), company); err != nil {
		t.Fatalf("create company: %v", err)
	}

	records := newStubOnboardingRepo()
	record := &model.Onboarding{CompanyID: company.ID, CurrentStep: model.StepCompany, MaxStepReached: model.StepCompany}
	if err := record.EncodeDraft(model.Draft{}); err != nil {
		t.Fatalf("encode draft: %v", err)
	}
	if err := records.Create(context.Background(), record); err != nil {
		t.Fatalf("create onboarding: %v", err)
	}

	stores := newStubStoreRepo()
	billing := newStubBillingRepo()
	svc := NewOnboardingService(records, catalog, stores, companies, billing, stubTx{})

	return &onboardingFixture{
		svc: svc, catalog: catalog, stores: stores, companies: companies,
		billing: billing, records: records, companyID: company.ID,
		freePlan: freePlan, paidPlan: paidPlan,
	}
}

func strSlice(v ...string) *[]string { return &v }

func intPtr(v int) *int { return &v }

func planPatch(id uuid.UUID, billing string) OptionalPlan {
	return OptionalPlan{Present: true, Value: &model.PlanSelection{ID: id, Billing: billing}}
}

func TestNextValidatesStepData(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()

	_, err := f.svc.Next(ctx, f.companyID, DraftUpdates{})
	if got := errCode(t, err); got != response.CodeInvalidStep {
		t.Fatalf("expected %s without company info, got %s", response.CodeInvalidStep, got)
	}

	state, err := f.svc.Next(ctx, f.companyID, DraftUpdates{
		Company: &model.CompanyDraft{Name: "Acme Tavern", Phone: "+301234567"},
	})
	if err != nil {
		t.Fatalf("next from step 1: %v", err)
	}
	if state.CurrentStep != model.StepIndustries {
		t.Fatalf("expected step %d, got %d", model.StepIndustries, state.CurrentStep)
	}
	if state.MaxStepReached != model.StepIndustries {
		t.Fatalf("expected max step %d, got %d", model.StepIndustries, state.MaxStepReached)
	}
}

func TestBackNeverMutatesDraft(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Next(ctx, f.companyID, DraftUpdates{
		Company: &model.CompanyDraft{Name: "Acme Tavern"},
	}); err != nil {
		t.Fatalf("next: %v", err)
	}

	state, err := f.svc.Back(ctx, f.companyID)
	if err != nil {
		t.Fatalf("back: %v", err)
	}
	if state.CurrentStep != model.StepCompany {
		t.Fatalf("expected step %d, got %d", model.StepCompany, state.CurrentStep)
	}
	if state.Draft.Company == nil || state.Draft.Company.Name != "Acme Tavern" {
		t.Fatal("back dropped draft data")
	}
	if state.MaxStepReached != model.StepIndustries {
		t.Fatalf("back must not lower max_step_reached, got %d", state.MaxStepReached)
	}

	// Already at the first step: a no-op, not an error.
	state, err = f.svc.Back(ctx, f.companyID)
	if err != nil {
		t.Fatalf("back at first step: %v", err)
	}
	if state.CurrentStep != model.StepCompany {
		t.Fatalf("expected to stay at step %d, got %d", model.StepCompany, state.CurrentStep)
	}
}

func TestIndustryChangeClearsPlugins(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()

	if _, err := f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{
		Industries: strSlice("restaurant"),
		Plan:       planPatch(f.paidPlan.ID, model.BillingMonthly),
	}); err != nil {
		t.Fatalf("seed draft: %v", err)
	}
	if _, err := f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{
		Plugins: strSlice("kitchen"),
	}); err != nil {
		t.Fatalf("pick plugins: %v", err)
	}

	state, err := f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{
		Industries: strSlice("retail"),
	})
	if err != nil {
		t.Fatalf("change industries: %v", err)
	}
	if len(state.Draft.Plugins) != 0 {
		t.Fatalf("industry change must clear plugins, got %v", state.Draft.Plugins)
	}
}

func TestUnchangedResubmissionClearsNothing(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()

	if _, err := f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{
		Industries: strSlice("restaurant"),
		Plan:       planPatch(f.paidPlan.ID, model.BillingMonthly),
	}); err != nil {
		t.Fatalf("seed draft: %v", err)
	}
	if _, err := f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{
		Plugins: strSlice("kitchen"),
	}); err != nil {
		t.Fatalf("pick plugins: %v", err)
	}

	// Identical values resubmitted: plugins survive.
	state, err := f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{
		Industries: strSlice("restaurant"),
		Plan:       planPatch(f.paidPlan.ID, model.BillingMonthly),
	})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if len(state.Draft.Plugins) != 1 || state.Draft.Plugins[0] != "kitchen" {
		t.Fatalf("unchanged resubmission cleared plugins: %v", state.Draft.Plugins)
	}
}

func TestBillingSwitchKeepsPlugins(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()

	if _, err := f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{
		Industries: strSlice("restaurant"),
		Plan:       planPatch(f.paidPlan.ID, model.BillingMonthly),
		Plugins:    strSlice("kitchen"),
	}); err != nil {
		t.Fatalf("seed draft: %v", err)
	}

	// Same plan, different billing period: plugin validity is unaffected.
	state, err := f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{
		Plan: planPatch(f.paidPlan.ID, model.BillingYearly),
	})
	if err != nil {
		t.Fatalf("switch billing: %v", err)
	}
	if len(state.Draft.Plugins) != 1 {
		t.Fatalf("billing switch cleared plugins: %v", state.Draft.Plugins)
	}

	// Different plan id clears them.
	state, err = f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{
		Plan: planPatch(f.freePlan.ID, model.BillingMonthly),
	})
	if err != nil {
		t.Fatalf("switch plan: %v", err)
	}
	if len(state.Draft.Plugins) != 0 {
		t.Fatalf("plan change must clear plugins, got %v", state.Draft.Plugins)
	}
}

func TestBranchesOutOfRangeRejectedWithoutMutation(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()

	three := 3
	if _, err := f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{Branches: &three}); err != nil {
		t.Fatalf("set branches: %v", err)
	}

	ten := 10
	_, err := f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{Branches: &ten})
	if got := errCode(t, err); got != response.CodeInvalidRange {
		t.Fatalf("expected %s, got %s", response.CodeInvalidRange, got)
	}

	state, err := f.svc.State(ctx, f.companyID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Draft.Branches != 3 {
		t.Fatalf("rejected patch must not mutate the draft, branches = %d", state.Draft.Branches)
	}

	negative := -1
	_, err = f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{Branches: &negative})
	if got := errCode(t, err); got != response.CodeInvalidRange {
		t.Fatalf("expected %s for negative, got %s", response.CodeInvalidRange, got)
	}
}

func completeDraft(t *testing.T, f *onboardingFixture, planID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	two := 2
	if _, err := f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{
		Company:    &model.CompanyDraft{Name: "Acme Tavern", Phone: "+301234567"},
		Industries: strSlice("restaurant"),
		Plan:       planPatch(planID, model.BillingMonthly),
		Branches:   &two,
	}); err != nil {
		t.Fatalf("build draft: %v", err)
	}
	if _, err := f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{
		Plugins: strSlice("loyalty"),
	}); err != nil {
		t.Fatalf("pick plugins: %v", err)
	}
}

func TestCompleteFreePlanProvisionsStores(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()
	completeDraft(t, f, f.freePlan.ID)

	state, err := f.svc.Complete(ctx, f.companyID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !state.IsCompleted {
		t.Fatal("record not marked completed")
	}

	stores, err := f.stores.ListByCompany(ctx, f.companyID)
	if err != nil {
		t.Fatalf("list stores: %v", err)
	}
	if len(stores) != 3 {
		t.Fatalf("expected main + 2 branches, got %d stores", len(stores))
	}
	mains := 0
	for _, s := range stores {
		if s.IsMain {
			mains++
		}
	}
	if mains != 1 {
		t.Fatalf("expected exactly one main store, got %d", mains)
	}

	company, err := f.companies.GetByID(ctx, f.companyID)
	if err != nil {
		t.Fatalf("get company: %v", err)
	}
	if company.Name != "Acme Tavern" {
		t.Fatalf("company name not updated from draft: %q", company.Name)
	}

	sub, err := f.billing.GetSubscriptionByCompany(ctx, f.companyID)
	if err != nil {
		t.Fatalf("expected a local subscription row: %v", err)
	}
	if sub.BillingStatus != model.BillingActive {
		t.Fatalf("free subscription should be active, got %s", sub.BillingStatus)
	}

	// Completion is terminal.
	_, err = f.svc.Complete(ctx, f.companyID)
	if got := errCode(t, err); got != response.CodeOnboardingCompleted {
		t.Fatalf("expected %s on repeat, got %s", response.CodeOnboardingCompleted, got)
	}
	_, err = f.svc.Next(ctx, f.companyID, DraftUpdates{})
	if got := errCode(t, err); got != response.CodeOnboardingCompleted {
		t.Fatalf("expected %s for next after completion, got %s", response.CodeOnboardingCompleted, got)
	}
}

func TestCompletePaidPlanRequiresPayment(t *testing.T) {
	f := newOnboardingFixture(t)
	completeDraft(t, f, f.paidPlan.ID)

	_, err := f.svc.Complete(context.Background(), f.companyID)
	if got := errCode(t, err); got != response.CodePaymentRequired {
		t.Fatalf("expected %s, got %s", response.CodePaymentRequired, got)
	}
}

func TestProvisionRejectsDisallowedPlugin(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()

	// kitchen requires tier 2; the free plan is tier 0.
	if _, err := f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{
		Company:    &model.CompanyDraft{Name: "Acme Tavern"},
		Industries: strSlice("restaurant"),
		Plan:       planPatch(f.freePlan.ID, model.BillingMonthly),
	}); err != nil {
		t.Fatalf("seed draft: %v", err)
	}
	if _, err := f.svc.UpdateDraft(ctx, f.companyID, DraftUpdates{
		Plugins: strSlice("kitchen"),
	}); err != nil {
		t.Fatalf("pick plugins: %v", err)
	}

	err := f.svc.ProvisionResources(ctx, f.companyID)
	if got := errCode(t, err); got != response.CodePluginNotAllowed {
		t.Fatalf("expected %s, got %s", response.CodePluginNotAllowed, got)
	}
}

func TestProvisionRefusesSecondMainStore(t *testing.T) {
	f := newOnboardingFixture(t)
	ctx := context.Background()
	completeDraft(t, f, f.freePlan.ID)

	if err := f.stores.Create(ctx, &model.Store{CompanyID: f.companyID, Name: "existing", IsMain: true}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	err := f.svc.ProvisionResources(ctx, f.companyID)
	if got := errCode(t, err); got != response.CodeOnboardingCompleted {
		t.Fatalf("expected %s, got %s", response.CodeOnboardingCompleted, got)
	}
	// The existing main store stands alone.
	all, listErr := f.stores.ListByCompany(ctx, f.companyID)
	if listErr != nil {
		t.Fatalf("list stores: %v", listErr)
	}
	if len(all) != 1 {
		t.Fatalf("stores = %d, want 1", len(all))
	}
}
