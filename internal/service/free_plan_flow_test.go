package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// The whole free-plan journey through the real service wiring:
// signup, login, company creation, all five wizard steps, completion.
func TestFreePlanSignupThroughCompletion(t *testing.T) {
	ctx := context.Background()

	users := newStubUserRepo()
	companies := newStubCompanyRepo()
	stores := newStubStoreRepo()
	records := newStubOnboardingRepo()
	billing := newStubBillingRepo()
	email := &stubEmailSender{}

	catalog := newStubCatalogRepo()
	freePlan := &model.Plan{ID: uuid.New(), Key: "free", Tier: 0, Currency: "EUR"}
	catalog.plans = append(catalog.plans, freePlan)
	catalog.plugins = append(catalog.plugins,
		&model.Plugin{ID: uuid.New(), Key: "loyalty", MinTier: 0, MonthlyAmount: decimal.NewFromInt(5)})

	authSvc := NewAuthService(
		users, newStubCodeRepo(), newStubSessionRepo(), companies, stores,
		email, []byte("test-secret"), 15*time.Minute, 30,
	)
	companySvc := NewCompanyService(companies, stores, records, newStubInvitationRepo(), users, stubTx{}, email)
	wizard := NewOnboardingService(records, catalog, stores, companies, billing, stubTx{})

	// Signup with the emailed code, then log in.
	if err := authSvc.SendCode(ctx, "founder@acme.test"); err != nil {
		t.Fatalf("send code: %v", err)
	}
	me, err := authSvc.Signup(ctx, SignupRequest{
		Email: "founder@acme.test", Code: email.lastCode, Password: "hunter2-secure",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	pair, err := authSvc.Login(ctx, LoginRequest{
		Email: "founder@acme.test", Password: "hunter2-secure", Fingerprint: "device-a",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken == "" {
		t.Fatal("login returned no access token")
	}

	company, err := companySvc.CreateCompany(ctx, me.ID, CreateCompanyRequest{Name: "Acme"})
	if err != nil {
		t.Fatalf("create company: %v", err)
	}

	// The contextual token proves the owner membership landed.
	if _, err := authSvc.ContextToken(ctx, me.ID, ContextTokenRequest{CompanyID: company.ID.String()}); err != nil {
		t.Fatalf("context token: %v", err)
	}

	// One Next per data step; the finalize step completes via Complete.
	steps := []DraftUpdates{
		{Company: &model.CompanyDraft{Name: "Acme Tavern", Phone: "+301234567"}},
		{Industries: strSlice("restaurant")},
		{Plan: planPatch(freePlan.ID, model.BillingMonthly)},
		{Plugins: strSlice("loyalty"), Branches: intPtr(2)},
	}
	var state *OnboardingStateResponse
	for i, updates := range steps {
		state, err = wizard.Next(ctx, company.ID, updates)
		if err != nil {
			t.Fatalf("next step %d: %v", i+1, err)
		}
	}
	if state.CurrentStep != model.StepFinalize {
		t.Fatalf("current step = %d, want %d", state.CurrentStep, model.StepFinalize)
	}

	state, err = wizard.Complete(ctx, company.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !state.IsCompleted {
		t.Fatal("record not marked completed")
	}

	// Main store plus two branches, exactly one main.
	all, err := stores.ListByCompany(ctx, company.ID)
	if err != nil {
		t.Fatalf("list stores: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("stores = %d, want 3", len(all))
	}
	mains := 0
	for _, st := range all {
		if st.IsMain {
			mains++
		}
	}
	if mains != 1 {
		t.Fatalf("main stores = %d, want 1", mains)
	}

	sub, err := billing.GetSubscriptionByCompany(ctx, company.ID)
	if err != nil {
		t.Fatalf("free subscription missing: %v", err)
	}
	if sub.BillingStatus != model.BillingActive {
		t.Fatalf("status = %s, want %s", sub.BillingStatus, model.BillingActive)
	}
}
