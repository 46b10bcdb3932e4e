package service

import (
	"context"
	"crypto/rand"
	"log"
	"math/big"
	"net/http"
	"time"

	"backend/internal/auth"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/response"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// --- DTOs ---

type CheckUserRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type SendCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Code     string `json:"code" binding:"required,len=6"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	Fingerprint string `json:"fingerprint" binding:"required"`
}

type ContextTokenRequest struct {
	CompanyID string  `json:"company_id" binding:"required,uuid"`
	StoreID   *string `json:"store_id" binding:"omitempty,uuid"`
}

// TokenPair is what login/refresh hand back. The refresh raw value goes
// into the cookie, never the JSON body.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

type MembershipResponse struct {
	CompanyID   uuid.UUID `json:"company_id"`
	CompanyName string    `json:"company_name"`
	Role        string    `json:"role"`
	IsOwner     bool      `json:"is_owner"`
	Status      string    `json:"status"`
}

type MeResponse struct {
	ID          uuid.UUID            `json:"id"`
	Email       string               `json:"email"`
	Verified    bool                 `json:"verified"`
	Memberships []MembershipResponse `json:"memberships"`
}

// AuthService owns the signup/login/session lifecycle.
type AuthService interface {
	CheckUser(ctx context.Context, email string) (bool, error)
	SendCode(ctx context.Context, email string) error
	Signup(ctx context.Context, req SignupRequest) (*MeResponse, error)
	Login(ctx context.Context, req LoginRequest) (*TokenPair, error)
	Refresh(ctx context.Context, rawToken, fingerprint string) (*TokenPair, error)
	Logout(ctx context.Context, rawToken string) error
	LogoutAll(ctx context.Context, userID uuid.UUID) error
	Me(ctx context.Context, userID uuid.UUID) (*MeResponse, error)
	ContextToken(ctx context.Context, userID uuid.UUID, req ContextTokenRequest) (*TokenPair, error)
	SessionByToken(ctx context.Context, rawToken string) (*model.Session, error)
	TouchSession(userID uuid.UUID, fingerprint string)
}

type authService struct {
	users     repository.UserRepository
	codes     repository.VerificationCodeRepository
	sessions  repository.SessionRepository
	companies repository.CompanyRepository
	stores    repository.StoreRepository
	email     EmailSender

	secret         []byte
	accessTTL      time.Duration
	refreshTTLDays int
}

// NewAuthService wires the auth service.
func NewAuthService(
	users repository.UserRepository,
	codes repository.VerificationCodeRepository,
	sessions repository.SessionRepository,
	companies repository.CompanyRepository,
	stores repository.StoreRepository,
	email EmailSender,
	secret []byte,
	accessTTL time.Duration,
	refreshTTLDays int,
) AuthService {
	return &authService{
		users:          users,
		codes:          codes,
		sessions:       sessions,
		companies:      companies,
		stores:         stores,
		email:          email,
		secret:         secret,
		accessTTL:      accessTTL,
		refreshTTLDays: refreshTTLDays,
	}
}

func (s *authService) CheckUser(ctx context.Context, email string) (bool, error) {
	_, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, response.WrapDB("users", err)
	}
	return true, nil
}

func (s *authService) SendCode(ctx context.Context, email string) error {
	code, err := randomDigits(6)
	if err != nil {
		return response.NewError(http.StatusInternalServerError, response.CodeServer, "failed to generate code")
	}

	record := &model.VerificationCode{
		Email:     email,
		CodeHash:  auth.HashToken(code),
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
	}
	if err := s.codes.Replace(ctx, record); err != nil {
		return response.WrapDB("verification_codes", err)
	}

	if err := s.email.SendVerificationCode(ctx, email, code); err != nil {
		return response.NewError(http.StatusInternalServerError, response.CodeServer, "failed to send verification email")
	}
	return nil
}

func (s *authService) Signup(ctx context.Context, req SignupRequest) (*MeResponse, error) {
	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, response.NewError(http.StatusConflict, response.CodeEmailTaken, "email already registered")
	}

	record, err := s.codes.GetByEmail(ctx, req.Email)
	if err != nil || record.CodeHash != auth.HashToken(req.Code) {
		return nil, response.NewError(http.StatusBadRequest, response.CodeCodeInvalid, "verification code invalid or expired")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, response.NewError(http.StatusInternalServerError, response.CodeServer, "failed to hash password")
	}

	user := &model.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		Verified:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, response.WrapDB("users", err)
	}

	// Code is single use.
	if err := s.codes.DeleteByEmail(ctx, req.Email); err != nil {
		log.Printf("WARNING: failed to delete used verification code for %s: %v", req.Email, err)
	}

	return &MeResponse{ID: user.ID, Email: user.Email, Verified: user.Verified, Memberships: []MembershipResponse{}}, nil
}

func (s *authService) Login(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, response.NewError(http.StatusNotFound, response.CodeUserNotFound, "no account for that email")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, response.NewError(http.StatusUnauthorized, response.CodeWrongPassword, "wrong password")
	}

	refresh, err := auth.NewRefreshToken(s.refreshTTLDays)
	if err != nil {
		return nil, response.NewError(http.StatusInternalServerError, response.CodeServer, "failed to generate refresh token")
	}

	session := &model.Session{
		UserID:         user.ID,
		Fingerprint:    req.Fingerprint,
		TokenHash:      auth.HashToken(refresh.Raw),
		ExpiresAt:      refresh.ExpiresAt,
		LastActivityAt: time.Now().UTC(),
	}
	if err := s.sessions.Upsert(ctx, session); err != nil {
		return nil, response.WrapDB("user_sessions", err)
	}

	access, exp, err := auth.NewAccessToken(s.secret, s.accessTTL, auth.Claims{UserID: user.ID})
	if err != nil {
		return nil, response.NewError(http.StatusInternalServerError, response.CodeServer, "failed to sign access token")
	}

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  exp,
		RefreshToken:     refresh.Raw,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// Refresh implements single-use rotation with theft detection. The session
// is found by device fingerprint; a presented token that does not hash to
// the stored value, or that loses the conditional-update race, revokes
// every session for the user and fails closed.
func (s *authService) Refresh(ctx context.Context, rawToken, fingerprint string) (*TokenPair, error) {
	session, err := s.sessions.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, response.NewError(http.StatusUnauthorized, response.CodeSessionExpired, "session expired or revoked")
		}
		return nil, response.WrapDB("user_sessions", err)
	}

	if session.Revoked || time.Now().UTC().After(session.ExpiresAt) {
		return nil, response.NewError(http.StatusUnauthorized, response.CodeSessionExpired, "session expired or revoked")
	}

	hash := auth.HashToken(rawToken)
	if session.TokenHash != hash {
		// Stale copy of an already rotated token: theft signal.
		if err := s.sessions.RevokeAllForUser(ctx, session.UserID); err != nil {
			log.Printf("WARNING: failed to revoke sessions for user %s: %v", session.UserID, err)
		}
		return nil, response.NewError(http.StatusUnauthorized, response.CodeRefreshReused, "refresh token reuse detected")
	}

	next, err := auth.NewRefreshToken(s.refreshTTLDays)
	if err != nil {
		return nil, response.NewError(http.StatusInternalServerError, response.CodeServer, "failed to generate refresh token")
	}

	rotated, err := s.sessions.RotateToken(ctx, session.ID, hash, auth.HashToken(next.Raw), next.ExpiresAt)
	if err != nil {
		return nil, response.WrapDB("user_sessions", err)
	}
	if !rotated {
		// Lost a concurrent rotation: the presented token was already
		// consumed. Same signal as reuse, fail closed.
		if err := s.sessions.RevokeAllForUser(ctx, session.UserID); err != nil {
			log.Printf("WARNING: failed to revoke sessions for user %s: %v", session.UserID, err)
		}
		return nil, response.NewError(http.StatusUnauthorized, response.CodeRefreshReused, "refresh token reuse detected")
	}

	access, exp, err := auth.NewAccessToken(s.secret, s.accessTTL, auth.Claims{UserID: session.UserID})
	if err != nil {
		return nil, response.NewError(http.StatusInternalServerError, response.CodeServer, "failed to sign access token")
	}

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  exp,
		RefreshToken:     next.Raw,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

func (s *authService) Logout(ctx context.Context, rawToken string) error {
	session, err := s.sessions.GetByTokenHash(ctx, auth.HashToken(rawToken))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil // already gone; logout is idempotent
		}
		return response.WrapDB("user_sessions", err)
	}
	if err := s.sessions.Revoke(ctx, session.ID); err != nil {
		return response.WrapDB("user_sessions", err)
	}
	return nil
}

func (s *authService) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return response.WrapDB("user_sessions", err)
	}
	return nil
}

func (s *authService) Me(ctx context.Context, userID uuid.UUID) (*MeResponse, error) {
	user, err := s.users.GetByID(ctx, userID.String())
	if err != nil {
		return nil, response.NewError(http.StatusNotFound, response.CodeUserNotFound, "user not found")
	}

	memberships, err := s.companies.ListMembershipsForUser(ctx, userID)
	if err != nil {
		return nil, response.WrapDB("company_users", err)
	}

	out := &MeResponse{ID: user.ID, Email: user.Email, Verified: user.Verified, Memberships: []MembershipResponse{}}
	for _, m := range memberships {
		company, err := s.companies.GetByID(ctx, m.CompanyID)
		if err != nil {
			continue
		}
		out.Memberships = append(out.Memberships, MembershipResponse{
			CompanyID:   m.CompanyID,
			CompanyName: company.Name,
			Role:        m.Role,
			IsOwner:     m.IsOwner,
			Status:      m.Status,
		})
	}
	return out, nil
}

// ContextToken issues a company/store-scoped access token carrying the
// caller's permission snapshot.
func (s *authService) ContextToken(ctx context.Context, userID uuid.UUID, req ContextTokenRequest) (*TokenPair, error) {
	companyID, err := uuid.Parse(req.CompanyID)
	if err != nil {
		return nil, response.NewError(http.StatusBadRequest, response.CodeValidation, "invalid company id")
	}

	membership, err := s.companies.GetMembership(ctx, companyID, userID)
	if err != nil {
		return nil, response.NewError(http.StatusForbidden, response.CodeMembershipNotFound, "not a member of that company")
	}
	if membership.Status != model.MembershipActive {
		return nil, response.NewError(http.StatusForbidden, response.CodeMembershipNotFound, "membership is not active")
	}

	claims := auth.Claims{
		UserID:      userID,
		CompanyID:   &companyID,
		Role:        membership.Role,
		Permissions: membership.Permissions,
	}

	if req.StoreID != nil {
		storeID, err := uuid.Parse(*req.StoreID)
		if err != nil {
			return nil, response.NewError(http.StatusBadRequest, response.CodeValidation, "invalid store id")
		}
		stores, err := s.stores.ListByCompany(ctx, companyID)
		if err != nil {
			return nil, response.WrapDB("stores", err)
		}
		found := false
		for _, st := range stores {
			if st.ID == storeID {
				found = true
				break
			}
		}
		if !found {
			return nil, response.NewError(http.StatusNotFound, response.CodeStoreNotFound, "store does not belong to company")
		}
		claims.StoreID = &storeID
	}

	access, exp, err := auth.NewAccessToken(s.secret, s.accessTTL, claims)
	if err != nil {
		return nil, response.NewError(http.StatusInternalServerError, response.CodeServer, "failed to sign access token")
	}
	return &TokenPair{AccessToken: access, AccessExpiresAt: exp}, nil
}

func (s *authService) SessionByToken(ctx context.Context, rawToken string) (*model.Session, error) {
	return s.sessions.GetByTokenHash(ctx, auth.HashToken(rawToken))
}

// TouchSession updates last_activity_at in the background. It must never
// block or fail the request that triggered it.
func (s *authService) TouchSession(userID uuid.UUID, fingerprint string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.sessions.TouchActivity(ctx, userID, fingerprint); err != nil {
			log.Printf("WARNING: session activity touch failed for %s: %v", userID, err)
		}
	}()
}

func randomDigits(n int) (string, error) {
	out := make([]byte, n)
	for i := range out {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + d.Int64())
	}
	return string(out), nil
}
