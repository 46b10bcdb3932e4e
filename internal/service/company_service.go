package service

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"backend/internal/auth"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/response"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateCompanyRequest struct {
	Name  string `json:"name" binding:"required,min=2,max=255"`
	Phone string `json:"phone" binding:"omitempty,max=30"`
}

type CompanyResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone string    `json:"phone"`
}

type InviteRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required,oneof=admin manager staff"`
}

type AcceptInviteRequest struct {
	Token string `json:"token" binding:"required"`
}

type InvitationResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

type StoreResponse struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	IsMain bool      `json:"is_main"`
}

type MemberResponse struct {
	UserID  uuid.UUID `json:"user_id"`
	Email   string    `json:"email"`
	Role    string    `json:"role"`
	IsOwner bool      `json:"is_owner"`
	Status  string    `json:"status"`
}

// Default permission snapshots per role, baked into contextual tokens.
var rolePermissions = map[string][]string{
	"owner":   {"company.manage", "billing.manage", "members.manage", "stores.manage"},
	"admin":   {"members.manage", "stores.manage"},
	"manager": {"stores.manage"},
	"staff":   {},
}

// CompanyService owns tenants, memberships and invitations.
type CompanyService interface {
	CreateCompany(ctx context.Context, ownerID uuid.UUID, req CreateCompanyRequest) (*CompanyResponse, error)
	GetCompany(ctx context.Context, companyID uuid.UUID) (*CompanyResponse, error)
	ListStores(ctx context.Context, companyID uuid.UUID) ([]StoreResponse, error)
	ListMembers(ctx context.Context, companyID uuid.UUID, page, limit int) ([]MemberResponse, int64, error)
	ListStorePlugins(ctx context.Context, companyID, storeID uuid.UUID) ([]model.StorePlugin, error)

	Invite(ctx context.Context, companyID uuid.UUID, req InviteRequest) (*InvitationResponse, error)
	ListInvitations(ctx context.Context, companyID uuid.UUID, page, limit int) ([]InvitationResponse, int64, error)
	AcceptInvite(ctx context.Context, userID uuid.UUID, rawToken string) (*MembershipResponse, error)
	RevokeInvite(ctx context.Context, companyID, invitationID uuid.UUID) error
}

type companyService struct {
	companies   repository.CompanyRepository
	stores      repository.StoreRepository
	onboarding  repository.OnboardingRepository
	invitations repository.InvitationRepository
	users       repository.UserRepository
	tx          repository.TransactionManager
	email       EmailSender
}

func NewCompanyService(
	companies repository.CompanyRepository,
	stores repository.StoreRepository,
	onboarding repository.OnboardingRepository,
	invitations repository.InvitationRepository,
	users repository.UserRepository,
	tx repository.TransactionManager,
	email EmailSender,
) CompanyService {
	return &companyService{
		companies:   companies,
		stores:      stores,
		onboarding:  onboarding,
		invitations: invitations,
		users:       users,
		tx:          tx,
		email:       email,
	}
}

// CreateCompany creates the tenant, the owner membership and the
// onboarding row at step 1 in a single transaction so a partial failure
// cannot leave an orphaned company.
func (s *companyService) CreateCompany(ctx context.Context, ownerID uuid.UUID, req CreateCompanyRequest) (*CompanyResponse, error) {
	company := &model.Company{Name: req.Name, Phone: req.Phone}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.companies.Create(txCtx, company); err != nil {
			return response.WrapDB("companies", err)
		}

		membership := &model.CompanyUser{
			CompanyID:   company.ID,
			UserID:      ownerID,
			Role:        "owner",
			Permissions: rolePermissions["owner"],
			IsOwner:     true,
			Status:      model.MembershipActive,
		}
		if err := s.companies.CreateMembership(txCtx, membership); err != nil {
			return response.WrapDB("company_users", err)
		}

		draft := model.Draft{
			Version: model.DraftVersion,
			Company: &model.CompanyDraft{Name: req.Name, Phone: req.Phone},
		}
		raw, err := json.Marshal(draft)
		if err != nil {
			return response.NewError(http.StatusInternalServerError, response.CodeServer, "failed to encode draft")
		}
		record := &model.Onboarding{
			CompanyID:      company.ID,
			CurrentStep:    model.StepCompany,
			MaxStepReached: model.StepCompany,
			Data:           raw,
		}
		if err := s.onboarding.Create(txCtx, record); err != nil {
			return response.WrapDB("onboarding", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &CompanyResponse{ID: company.ID, Name: company.Name, Phone: company.Phone}, nil
}

func (s *companyService) GetCompany(ctx context.Context, companyID uuid.UUID) (*CompanyResponse, error) {
	company, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, response.NewError(http.StatusNotFound, response.CodeCompanyNotFound, "company not found")
	}
	return &CompanyResponse{ID: company.ID, Name: company.Name, Phone: company.Phone}, nil
}

func (s *companyService) ListStores(ctx context.Context, companyID uuid.UUID) ([]StoreResponse, error) {
	stores, err := s.stores.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, response.WrapDB("stores", err)
	}
	out := make([]StoreResponse, 0, len(stores))
	for _, st := range stores {
		out = append(out, StoreResponse{ID: st.ID, Name: st.Name, IsMain: st.IsMain})
	}
	return out, nil
}

// ListStorePlugins lists the plugins enabled on one store. The store must
// belong to the caller's company.
func (s *companyService) ListStorePlugins(ctx context.Context, companyID, storeID uuid.UUID) ([]model.StorePlugin, error) {
	stores, err := s.stores.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, response.WrapDB("stores", err)
	}
	owned := false
	for _, st := range stores {
		if st.ID == storeID {
			owned = true
			break
		}
	}
	if !owned {
		return nil, response.NewError(http.StatusNotFound, response.CodeStoreNotFound, "store not found")
	}
	links, err := s.stores.ListPluginsForStore(ctx, storeID)
	if err != nil {
		return nil, response.WrapDB("store_plugins", err)
	}
	return links, nil
}

func (s *companyService) ListMembers(ctx context.Context, companyID uuid.UUID, page, limit int) ([]MemberResponse, int64, error) {
	members, total, err := s.companies.ListMembers(ctx, companyID, page, limit)
	if err != nil {
		return nil, 0, response.WrapDB("company_users", err)
	}
	out := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		member := MemberResponse{
			UserID:  m.UserID,
			Role:    m.Role,
			IsOwner: m.IsOwner,
			Status:  m.Status,
		}
		if user, err := s.users.GetByID(ctx, m.UserID.String()); err == nil {
			member.Email = user.Email
		}
		out = append(out, member)
	}
	return out, total, nil
}

func (s *companyService) Invite(ctx context.Context, companyID uuid.UUID, req InviteRequest) (*InvitationResponse, error) {
	company, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, response.NewError(http.StatusNotFound, response.CodeCompanyNotFound, "company not found")
	}

	token, err := auth.NewRefreshToken(7) // same opaque-token mechanics, 7-day validity
	if err != nil {
		return nil, response.NewError(http.StatusInternalServerError, response.CodeServer, "failed to generate invitation token")
	}

	invitation := &model.Invitation{
		CompanyID: companyID,
		Email:     req.Email,
		Role:      req.Role,
		TokenHash: auth.HashToken(token.Raw),
		Status:    model.InvitationPending,
		ExpiresAt: token.ExpiresAt,
	}
	if err := s.invitations.Create(ctx, invitation); err != nil {
		return nil, response.WrapDB("invitations", err)
	}

	if err := s.email.SendInvitation(ctx, req.Email, company.Name, token.Raw); err != nil {
		log.Printf("WARNING: invitation email to %s failed: %v", req.Email, err)
	}

	return &InvitationResponse{
		ID:        invitation.ID,
		Email:     invitation.Email,
		Role:      invitation.Role,
		Status:    invitation.Status,
		ExpiresAt: invitation.ExpiresAt,
	}, nil
}

func (s *companyService) ListInvitations(ctx context.Context, companyID uuid.UUID, page, limit int) ([]InvitationResponse, int64, error) {
	invitations, total, err := s.invitations.ListByCompany(ctx, companyID, page, limit)
	if err != nil {
		return nil, 0, response.WrapDB("invitations", err)
	}
	out := make([]InvitationResponse, 0, len(invitations))
	for _, inv := range invitations {
		out = append(out, InvitationResponse{
			ID:        inv.ID,
			Email:     inv.Email,
			Role:      inv.Role,
			Status:    inv.Status,
			ExpiresAt: inv.ExpiresAt,
		})
	}
	return out, total, nil
}

func (s *companyService) AcceptInvite(ctx context.Context, userID uuid.UUID, rawToken string) (*MembershipResponse, error) {
	invitation, err := s.invitations.GetByTokenHash(ctx, auth.HashToken(rawToken))
	if err != nil {
		return nil, response.NewError(http.StatusNotFound, response.CodeInvitationInvalid, "invitation not found")
	}
	if invitation.Status != model.InvitationPending || time.Now().UTC().After(invitation.ExpiresAt) {
		return nil, response.NewError(http.StatusBadRequest, response.CodeInvitationInvalid, "invitation expired or already used")
	}

	user, err := s.users.GetByID(ctx, userID.String())
	if err != nil {
		return nil, response.NewError(http.StatusNotFound, response.CodeUserNotFound, "user not found")
	}
	if user.Email != invitation.Email {
		return nil, response.NewError(http.StatusForbidden, response.CodeInvitationInvalid, "invitation was issued to a different email")
	}

	var membership *model.CompanyUser
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if existing, err := s.companies.GetMembership(txCtx, invitation.CompanyID, userID); err == nil && existing != nil {
			return response.NewError(http.StatusConflict, response.CodeInvitationInvalid, "already a member")
		} else if err != nil && err != gorm.ErrRecordNotFound {
			return response.WrapDB("company_users", err)
		}

		membership = &model.CompanyUser{
			CompanyID:   invitation.CompanyID,
			UserID:      userID,
			Role:        invitation.Role,
			Permissions: rolePermissions[invitation.Role],
			Status:      model.MembershipActive,
		}
		if err := s.companies.CreateMembership(txCtx, membership); err != nil {
			return response.WrapDB("company_users", err)
		}
		if err := s.invitations.UpdateStatus(txCtx, invitation.ID, model.InvitationAccepted); err != nil {
			return response.WrapDB("invitations", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	company, err := s.companies.GetByID(ctx, invitation.CompanyID)
	if err != nil {
		return nil, response.WrapDB("companies", err)
	}
	return &MembershipResponse{
		CompanyID:   membership.CompanyID,
		CompanyName: company.Name,
		Role:        membership.Role,
		IsOwner:     membership.IsOwner,
		Status:      membership.Status,
	}, nil
}

func (s *companyService) RevokeInvite(ctx context.Context, companyID, invitationID uuid.UUID) error {
	invitations, _, err := s.invitations.ListByCompany(ctx, companyID, 1, 1000)
	if err != nil {
		return response.WrapDB("invitations", err)
	}
	for _, inv := range invitations {
		if inv.ID == invitationID {
			if err := s.invitations.UpdateStatus(ctx, invitationID, model.InvitationRevoked); err != nil {
				return response.WrapDB("invitations", err)
			}
			return nil
		}
	}
	return response.NewError(http.StatusNotFound, response.CodeInvitationInvalid, "invitation not found")
}
