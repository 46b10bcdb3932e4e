package service

import (
	"context"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// In-memory repository stubs shared by the service tests.

type stubTx struct{}

func (stubTx) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type stubUserRepo struct {
	users map[string]*model.User // keyed by email
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: map[string]*model.User{}}
}

func (r *stubUserRepo) Create(_ context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	r.users[user.Email] = user
	return nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	for _, u := range r.users {
		if u.ID.String() == id {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if u, ok := r.users[email]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUserRepo) Update(_ context.Context, user *model.User) error {
	r.users[user.Email] = user
	return nil
}

type stubCodeRepo struct {
	codes map[string]*model.VerificationCode
}

func newStubCodeRepo() *stubCodeRepo {
	return &stubCodeRepo{codes: map[string]*model.VerificationCode{}}
}

func (r *stubCodeRepo) Replace(_ context.Context, code *model.VerificationCode) error {
	r.codes[code.Email] = code
	return nil
}

func (r *stubCodeRepo) GetByEmail(_ context.Context, email string) (*model.VerificationCode, error) {
	code, ok := r.codes[email]
	if !ok || time.Now().UTC().After(code.ExpiresAt) {
		return nil, gorm.ErrRecordNotFound
	}
	return code, nil
}

func (r *stubCodeRepo) DeleteByEmail(_ context.Context, email string) error {
	delete(r.codes, email)
	return nil
}

type stubSessionRepo struct {
	sessions map[uuid.UUID]*model.Session
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: map[uuid.UUID]*model.Session{}}
}

func (r *stubSessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (*model.Session, error) {
	for _, s := range r.sessions {
		if s.TokenHash == tokenHash && !s.Revoked {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubSessionRepo) GetByFingerprint(_ context.Context, fingerprint string) (*model.Session, error) {
	var latest *model.Session
	for _, s := range r.sessions {
		if s.Fingerprint != fingerprint {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (r *stubSessionRepo) Upsert(_ context.Context, session *model.Session) error {
	for _, s := range r.sessions {
		if s.UserID == session.UserID && s.Fingerprint == session.Fingerprint && !s.Revoked {
			s.TokenHash = session.TokenHash
			s.ExpiresAt = session.ExpiresAt
			s.LastActivityAt = session.LastActivityAt
			*session = *s
			return nil
		}
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = time.Now().UTC()
	r.sessions[session.ID] = session
	return nil
}

func (r *stubSessionRepo) RotateToken(_ context.Context, sessionID uuid.UUID, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	s, ok := r.sessions[sessionID]
	if !ok || s.Revoked || s.TokenHash != oldHash {
		return false, nil
	}
	s.TokenHash = newHash
	s.ExpiresAt = expiresAt
	return true, nil
}

func (r *stubSessionRepo) Revoke(_ context.Context, sessionID uuid.UUID) error {
	if s, ok := r.sessions[sessionID]; ok {
		s.Revoked = true
	}
	return nil
}

func (r *stubSessionRepo) RevokeAllForUser(_ context.Context, userID uuid.UUID) error {
	for _, s := range r.sessions {
		if s.UserID == userID {
			s.Revoked = true
		}
	}
	return nil
}

func (r *stubSessionRepo) TouchActivity(_ context.Context, userID uuid.UUID, fingerprint string) error {
	for _, s := range r.sessions {
		if s.UserID == userID && s.Fingerprint == fingerprint && !s.Revoked {
			s.LastActivityAt = time.Now().UTC()
		}
	}
	return nil
}

func (r *stubSessionRepo) activeCount(userID uuid.UUID) int {
	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID && !s.Revoked {
			n++
		}
	}
	return n
}

type stubCompanyRepo struct {
	companies   map[uuid.UUID]*model.Company
	memberships []*model.CompanyUser
}

func newStubCompanyRepo() *stubCompanyRepo {
	return &stubCompanyRepo{companies: map[uuid.UUID]*model.Company{}}
}

func (r *stubCompanyRepo) Create(_ context.Context, company *model.Company) error {
	if company.ID == uuid.Nil {
		company.ID = uuid.New()
	}
	r.companies[company.ID] = company
	return nil
}

func (r *stubCompanyRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Company, error) {
	if c, ok := r.companies[id]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubCompanyRepo) SetStripeCustomer(_ context.Context, id uuid.UUID, stripeCustomerID string) error {
	if c, ok := r.companies[id]; ok {
		c.StripeCustomerID = &stripeCustomerID
	}
	return nil
}

func (r *stubCompanyRepo) Update(_ context.Context, company *model.Company) error {
	r.companies[company.ID] = company
	return nil
}

func (r *stubCompanyRepo) CreateMembership(_ context.Context, membership *model.CompanyUser) error {
	if membership.ID == uuid.Nil {
		membership.ID = uuid.New()
	}
	r.memberships = append(r.memberships, membership)
	return nil
}

func (r *stubCompanyRepo) GetMembership(_ context.Context, companyID, userID uuid.UUID) (*model.CompanyUser, error) {
	for _, m := range r.memberships {
		if m.CompanyID == companyID && m.UserID == userID {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubCompanyRepo) GetOwner(_ context.Context, companyID uuid.UUID) (*model.CompanyUser, error) {
	for _, m := range r.memberships {
		if m.CompanyID == companyID && m.IsOwner {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubCompanyRepo) ListMembershipsForUser(_ context.Context, userID uuid.UUID) ([]model.CompanyUser, error) {
	var out []model.CompanyUser
	for _, m := range r.memberships {
		if m.UserID == userID && m.Status == model.MembershipActive {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *stubCompanyRepo) ListMembers(_ context.Context, companyID uuid.UUID, page, limit int) ([]model.CompanyUser, int64, error) {
	var out []model.CompanyUser
	for _, m := range r.memberships {
		if m.CompanyID == companyID {
			out = append(out, *m)
		}
	}
	return out, int64(len(out)), nil
}

type stubStoreRepo struct {
	stores         []*model.Store
	storePlugins   []*model.StorePlugin
	companyPlugins []*model.CompanyPlugin
}

func newStubStoreRepo() *stubStoreRepo { return &stubStoreRepo{} }

func (r *stubStoreRepo) Create(_ context.Context, store *model.Store) error {
	if store.ID == uuid.Nil {
		store.ID = uuid.New()
	}
	r.stores = append(r.stores, store)
	return nil
}

func (r *stubStoreRepo) ListByCompany(_ context.Context, companyID uuid.UUID) ([]model.Store, error) {
	var out []model.Store
	for _, s := range r.stores {
		if s.CompanyID == companyID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *stubStoreRepo) GetMain(_ context.Context, companyID uuid.UUID) (*model.Store, error) {
	for _, s := range r.stores {
		if s.CompanyID == companyID && s.IsMain {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubStoreRepo) LinkPlugin(_ context.Context, link *model.StorePlugin) error {
	r.storePlugins = append(r.storePlugins, link)
	return nil
}

func (r *stubStoreRepo) ListPluginsForStore(_ context.Context, storeID uuid.UUID) ([]model.StorePlugin, error) {
	var out []model.StorePlugin
	for _, p := range r.storePlugins {
		if p.StoreID == storeID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *stubStoreRepo) CreateCompanyPlugin(_ context.Context, link *model.CompanyPlugin) error {
	r.companyPlugins = append(r.companyPlugins, link)
	return nil
}

type stubCatalogRepo struct {
	plans   []*model.Plan
	plugins []*model.Plugin
}

func newStubCatalogRepo() *stubCatalogRepo { return &stubCatalogRepo{} }

func (r *stubCatalogRepo) ListPlans(_ context.Context) ([]model.Plan, error) {
	var out []model.Plan
	for _, p := range r.plans {
		out = append(out, *p)
	}
	return out, nil
}

func (r *stubCatalogRepo) GetPlan(_ context.Context, id uuid.UUID) (*model.Plan, error) {
	for _, p := range r.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubCatalogRepo) ListPlugins(_ context.Context) ([]model.Plugin, error) {
	var out []model.Plugin
	for _, p := range r.plugins {
		out = append(out, *p)
	}
	return out, nil
}

func (r *stubCatalogRepo) GetPluginsByKeys(_ context.Context, keys []string) ([]model.Plugin, error) {
	var out []model.Plugin
	for _, key := range keys {
		for _, p := range r.plugins {
			if p.Key == key {
				out = append(out, *p)
			}
		}
	}
	return out, nil
}

func (r *stubCatalogRepo) FindPlanByStripePrice(_ context.Context, priceID string) (*model.Plan, string, error) {
	match := func(field *string) bool { return field != nil && *field == priceID }
	for _, p := range r.plans {
		switch {
		case match(p.StripeMonthlyPrice):
			return p, repository.PlanColMonthly, nil
		case match(p.StripeYearlyPrice):
			return p, repository.PlanColYearly, nil
		case match(p.StripeExtraMonthly):
			return p, repository.PlanColExtraMonthly, nil
		case match(p.StripeExtraYearly):
			return p, repository.PlanColExtraYearly, nil
		}
	}
	return nil, "", gorm.ErrRecordNotFound
}

func (r *stubCatalogRepo) FindPluginByStripePrice(_ context.Context, priceID string) (*model.Plugin, string, error) {
	for _, p := range r.plugins {
		if p.StripeMonthlyPrice != nil && *p.StripeMonthlyPrice == priceID {
			return p, repository.PluginColMonthly, nil
		}
		if p.StripeYearlyPrice != nil && *p.StripeYearlyPrice == priceID {
			return p, repository.PluginColYearly, nil
		}
	}
	return nil, "", gorm.ErrRecordNotFound
}

func (r *stubCatalogRepo) UpdatePlanAmount(_ context.Context, planID uuid.UUID, column string, amount decimal.Decimal) error {
	for _, p := range r.plans {
		if p.ID != planID {
			continue
		}
		switch column {
		case repository.PlanColMonthly:
			p.MonthlyAmount = amount
		case repository.PlanColYearly:
			p.YearlyAmount = amount
		case repository.PlanColExtraMonthly:
			p.ExtraStoreMonthly = amount
		case repository.PlanColExtraYearly:
			p.ExtraStoreYearly = amount
		}
	}
	return nil
}

func (r *stubCatalogRepo) UpdatePluginAmount(_ context.Context, pluginID uuid.UUID, column string, amount decimal.Decimal) error {
	for _, p := range r.plugins {
		if p.ID != pluginID {
			continue
		}
		switch column {
		case repository.PluginColMonthly:
			p.MonthlyAmount = amount
		case repository.PluginColYearly:
			p.YearlyAmount = amount
		}
	}
	return nil
}

type stubOnboardingRepo struct {
	records map[uuid.UUID]*model.Onboarding // keyed by company id
}

func newStubOnboardingRepo() *stubOnboardingRepo {
	return &stubOnboardingRepo{records: map[uuid.UUID]*model.Onboarding{}}
}

func (r *stubOnboardingRepo) Create(_ context.Context, onboarding *model.Onboarding) error {
	if onboarding.ID == uuid.Nil {
		onboarding.ID = uuid.New()
	}
	r.records[onboarding.CompanyID] = onboarding
	return nil
}

func (r *stubOnboardingRepo) GetByCompany(_ context.Context, companyID uuid.UUID) (*model.Onboarding, error) {
	if o, ok := r.records[companyID]; ok {
		return o, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubOnboardingRepo) Save(_ context.Context, onboarding *model.Onboarding) error {
	r.records[onboarding.CompanyID] = onboarding
	return nil
}

type stubBillingRepo struct {
	subscriptions map[uuid.UUID]*model.Subscription // keyed by company id
	items         map[uuid.UUID][]model.SubscriptionItem
	payments      map[string]*model.PaymentHistory // keyed by stripe invoice id
}

func newStubBillingRepo() *stubBillingRepo {
	return &stubBillingRepo{
		subscriptions: map[uuid.UUID]*model.Subscription{},
		items:         map[uuid.UUID][]model.SubscriptionItem{},
		payments:      map[string]*model.PaymentHistory{},
	}
}

func (r *stubBillingRepo) CreateSubscription(_ context.Context, sub *model.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	r.subscriptions[sub.CompanyID] = sub
	return nil
}

func (r *stubBillingRepo) GetSubscriptionByCompany(_ context.Context, companyID uuid.UUID) (*model.Subscription, error) {
	if s, ok := r.subscriptions[companyID]; ok {
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) GetSubscriptionByStripeID(_ context.Context, stripeSubID string) (*model.Subscription, error) {
	for _, s := range r.subscriptions {
		if s.StripeSubscriptionID != nil && *s.StripeSubscriptionID == stripeSubID {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) UpdateBillingStatus(_ context.Context, stripeSubID string, update repository.SubscriptionUpdate) error {
	for _, s := range r.subscriptions {
		if s.StripeSubscriptionID == nil || *s.StripeSubscriptionID != stripeSubID {
			continue
		}
		if update.BillingStatus != "" {
			s.BillingStatus = update.BillingStatus
		}
		if update.CurrentPeriodStart != nil {
			s.CurrentPeriodStart = update.CurrentPeriodStart
		}
		if update.CurrentPeriodEnd != nil {
			s.CurrentPeriodEnd = update.CurrentPeriodEnd
		}
		if update.CancelAtPeriodEnd != nil {
			s.CancelAtPeriodEnd = *update.CancelAtPeriodEnd
		}
		if update.CanceledAt != nil {
			s.CanceledAt = update.CanceledAt
		}
	}
	return nil
}

func (r *stubBillingRepo) MarkWelcomeEmailSent(_ context.Context, stripeSubID string) (bool, error) {
	for _, s := range r.subscriptions {
		if s.StripeSubscriptionID != nil && *s.StripeSubscriptionID == stripeSubID {
			if s.WelcomeEmailSent {
				return false, nil
			}
			s.WelcomeEmailSent = true
			return true, nil
		}
	}
	return false, gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) ReplaceItems(_ context.Context, subscriptionID uuid.UUID, items []model.SubscriptionItem) error {
	r.items[subscriptionID] = items
	return nil
}

func (r *stubBillingRepo) ListItems(_ context.Context, subscriptionID uuid.UUID) ([]model.SubscriptionItem, error) {
	return r.items[subscriptionID], nil
}

func (r *stubBillingRepo) UpsertPayment(_ context.Context, payment *model.PaymentHistory) error {
	if existing, ok := r.payments[payment.StripeInvoiceID]; ok {
		existing.Status = payment.Status
		existing.Amount = payment.Amount
		existing.BillingReason = payment.BillingReason
		existing.PaidAt = payment.PaidAt
		return nil
	}
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	r.payments[payment.StripeInvoiceID] = payment
	return nil
}

func (r *stubBillingRepo) ListPayments(_ context.Context, companyID uuid.UUID, page, limit int) ([]model.PaymentHistory, int64, error) {
	var out []model.PaymentHistory
	for _, p := range r.payments {
		if p.CompanyID == companyID {
			out = append(out, *p)
		}
	}
	return out, int64(len(out)), nil
}

type sentEmail struct {
	kind string
	to   string
}

type stubInvitationRepo struct {
	invitations map[uuid.UUID]*model.Invitation
}

func newStubInvitationRepo() *stubInvitationRepo {
	return &stubInvitationRepo{invitations: map[uuid.UUID]*model.Invitation{}}
}

func (r *stubInvitationRepo) Create(_ context.Context, invitation *model.Invitation) error {
	if invitation.ID == uuid.Nil {
		invitation.ID = uuid.New()
	}
	r.invitations[invitation.ID] = invitation
	return nil
}

func (r *stubInvitationRepo) GetByTokenHash(_ context.Context, tokenHash string) (*model.Invitation, error) {
	for _, inv := range r.invitations {
		if inv.TokenHash == tokenHash {
			return inv, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubInvitationRepo) ListByCompany(_ context.Context, companyID uuid.UUID, page, limit int) ([]model.Invitation, int64, error) {
	var out []model.Invitation
	for _, inv := range r.invitations {
		if inv.CompanyID == companyID {
			out = append(out, *inv)
		}
	}
	return out, int64(len(out)), nil
}

func (r *stubInvitationRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	inv, ok := r.invitations[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	inv.Status = status
	return nil
}

type stubEmailSender struct {
	sent []sentEmail

	// raw values from the most recent emails
	lastInviteToken string
	lastCode        string
}

func (s *stubEmailSender) SendVerificationCode(_ context.Context, to, code string) error {
	s.sent = append(s.sent, sentEmail{kind: "code", to: to})
	s.lastCode = code
	return nil
}

func (s *stubEmailSender) SendInvitation(_ context.Context, to, companyName, token string) error {
	s.sent = append(s.sent, sentEmail{kind: "invitation", to: to})
	s.lastInviteToken = token
	return nil
}

func (s *stubEmailSender) SendWelcome(_ context.Context, to, companyName string) error {
	s.sent = append(s.sent, sentEmail{kind: "welcome", to: to})
	return nil
}

func (s *stubEmailSender) SendReceipt(_ context.Context, to, invoiceID, amount string) error {
	s.sent = append(s.sent, sentEmail{kind: "receipt", to: to})
	return nil
}

func (s *stubEmailSender) count(kind string) int {
	n := 0
	for _, e := range s.sent {
		if e.kind == kind {
			n++
		}
	}
	return n
}
