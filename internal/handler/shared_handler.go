package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SharedHandler struct {
	companyService    service.CompanyService
	onboardingService service.OnboardingService
	pricingService    service.PricingService
}

// NewSharedHandler sets up the routing dependencies for company-scoped endpoints
func NewSharedHandler(companyService service.CompanyService, onboardingService service.OnboardingService, pricingService service.PricingService) *SharedHandler {
	return &SharedHandler{
		companyService:    companyService,
		onboardingService: onboardingService,
		pricingService:    pricingService,
	}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *SharedHandler) RegisterRoutes(router *gin.RouterGroup, auth gin.HandlerFunc) {
	router.Use(auth)

	// Any authenticated token.
	router.POST("/companies", h.CreateCompany)
	router.GET("/catalog", h.Catalog)
	router.POST("/invitations/accept", h.AcceptInvite)

	// Company-scoped token required.
	scoped := router.Group("", middleware.RequireCompany())
	{
		scoped.GET("/company", h.GetCompany)
		scoped.GET("/members", h.ListMembers)
		scoped.GET("/stores", h.ListStores)
		scoped.GET("/stores/:id/plugins", h.ListStorePlugins)

		onboarding := scoped.Group("/onboarding")
		{
			onboarding.GET("/sync-step", h.SyncStep)
			onboarding.GET("/data", h.OnboardingData)
			onboarding.POST("/next", h.Next)
			onboarding.POST("/back", h.Back)
			onboarding.PUT("/update-draft", h.UpdateDraft)
		}

		invitations := scoped.Group("/invitations")
		{
			invitations.POST("", h.Invite)
			invitations.GET("", h.ListInvitations)
			invitations.DELETE("/:id", h.RevokeInvite)
		}
	}
}

// CreateCompany creates a company with the caller as owner
// @Summary      Create company
// @Description  Creates the company, the owner membership and an onboarding record at step 1
// @Tags         shared
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateCompanyRequest  true  "Company payload"
// @Success      201      {object}  response.Response{data=service.CompanyResponse}
// @Failure      400      {object}  response.Response
// @Router       /shared/companies [post]
func (h *SharedHandler) CreateCompany(c *gin.Context) {
	var req service.CreateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	company, err := h.companyService.CreateCompany(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusCreated, response.Success("company created", company))
}

// Catalog lists plans and plugins with cached amounts
// @Summary      Plan and plugin catalog
// @Tags         shared
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.CatalogResponse}
// @Router       /shared/catalog [get]
func (h *SharedHandler) Catalog(c *gin.Context) {
	catalog, err := h.pricingService.Catalog(c.Request.Context())
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", catalog))
}

// GetCompany returns the active company
// @Summary      Get company
// @Tags         shared
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.CompanyResponse}
// @Failure      404  {object}  response.Response
// @Router       /shared/company [get]
func (h *SharedHandler) GetCompany(c *gin.Context) {
	company, err := h.companyService.GetCompany(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", company))
}

// ListStores lists the company stores
// @Summary      List stores
// @Tags         shared
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.StoreResponse}
// @Router       /shared/stores [get]
func (h *SharedHandler) ListStores(c *gin.Context) {
	stores, err := h.companyService.ListStores(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", stores))
}

// ListStorePlugins lists the plugins enabled on a store
// @Summary      List store plugins
// @Tags         shared
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Store ID"
// @Success      200  {object}  response.Response{data=[]model.StorePlugin}
// @Failure      404  {object}  response.Response
// @Router       /shared/stores/{id}/plugins [get]
func (h *SharedHandler) ListStorePlugins(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid store id"))
		return
	}
	links, err := h.companyService.ListStorePlugins(c.Request.Context(), middleware.CompanyID(c), storeID)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", links))
}

// ListMembers lists the company members
// @Summary      List members
// @Tags         shared
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page"
// @Param        limit  query     int  false  "Limit"
// @Success      200    {object}  response.Response{data=[]service.MemberResponse}
// @Router       /shared/members [get]
func (h *SharedHandler) ListMembers(c *gin.Context) {
	p := pagination.Parse(c)
	members, total, err := h.companyService.ListMembers(c.Request.Context(), middleware.CompanyID(c), p.Page, p.Limit)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", gin.H{
		"items": members,
		"meta":  p.MetaFor(total),
	}))
}

// SyncStep returns the authoritative wizard position
// @Summary      Onboarding position
// @Description  Clients render whatever step the server reports; local state is a mirror
// @Tags         onboarding
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.OnboardingStateResponse}
// @Failure      404  {object}  response.Response
// @Router       /shared/onboarding/sync-step [get]
func (h *SharedHandler) SyncStep(c *gin.Context) {
	state, err := h.onboardingService.State(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", state))
}

// OnboardingData returns the full wizard draft
// @Summary      Onboarding draft
// @Tags         onboarding
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.OnboardingStateResponse}
// @Router       /shared/onboarding/data [get]
func (h *SharedHandler) OnboardingData(c *gin.Context) {
	state, err := h.onboardingService.State(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", state))
}

// Next validates the current step and advances the wizard
// @Summary      Advance onboarding
// @Description  Applies the submitted draft patch, validates the step and moves forward
// @Tags         onboarding
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.DraftUpdates  true  "Draft patch"
// @Success      200      {object}  response.Response{data=service.OnboardingStateResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /shared/onboarding/next [post]
func (h *SharedHandler) Next(c *gin.Context) {
	var updates service.DraftUpdates
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	state, err := h.onboardingService.Next(c.Request.Context(), middleware.CompanyID(c), updates)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("step advanced", state))
}

// Back moves the wizard one step back
// @Summary      Step back
// @Tags         onboarding
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.OnboardingStateResponse}
// @Failure      409  {object}  response.Response
// @Router       /shared/onboarding/back [post]
func (h *SharedHandler) Back(c *gin.Context) {
	state, err := h.onboardingService.Back(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("step reverted", state))
}

// UpdateDraft patches the draft without moving the wizard
// @Summary      Update draft
// @Description  Partial patch; dependent selections reset when their prerequisites change
// @Tags         onboarding
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.DraftUpdates  true  "Draft patch"
// @Success      200      {object}  response.Response{data=service.OnboardingStateResponse}
// @Failure      400      {object}  response.Response
// @Router       /shared/onboarding/update-draft [put]
func (h *SharedHandler) UpdateDraft(c *gin.Context) {
	var updates service.DraftUpdates
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	state, err := h.onboardingService.UpdateDraft(c.Request.Context(), middleware.CompanyID(c), updates)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("draft updated", state))
}

// Invite emails a membership invitation
// @Summary      Invite member
// @Tags         invitations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.InviteRequest  true  "Invite payload"
// @Success      201      {object}  response.Response{data=service.InvitationResponse}
// @Failure      400      {object}  response.Response
// @Router       /shared/invitations [post]
func (h *SharedHandler) Invite(c *gin.Context) {
	var req service.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	invitation, err := h.companyService.Invite(c.Request.Context(), middleware.CompanyID(c), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusCreated, response.Success("invitation sent", invitation))
}

// ListInvitations lists company invitations
// @Summary      List invitations
// @Tags         invitations
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page"
// @Param        limit  query     int  false  "Limit"
// @Success      200    {object}  response.Response{data=[]service.InvitationResponse}
// @Router       /shared/invitations [get]
func (h *SharedHandler) ListInvitations(c *gin.Context) {
	p := pagination.Parse(c)
	invitations, total, err := h.companyService.ListInvitations(c.Request.Context(), middleware.CompanyID(c), p.Page, p.Limit)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", gin.H{
		"items": invitations,
		"meta":  p.MetaFor(total),
	}))
}

// AcceptInvite redeems an invitation token for the caller
// @Summary      Accept invitation
// @Tags         invitations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.AcceptInviteRequest  true  "Invitation token"
// @Success      200      {object}  response.Response{data=service.MembershipResponse}
// @Failure      400      {object}  response.Response
// @Router       /shared/invitations/accept [post]
func (h *SharedHandler) AcceptInvite(c *gin.Context) {
	var req service.AcceptInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	membership, err := h.companyService.AcceptInvite(c.Request.Context(), middleware.UserID(c), req.Token)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("invitation accepted", membership))
}

// RevokeInvite cancels a pending invitation
// @Summary      Revoke invitation
// @Tags         invitations
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Invitation ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /shared/invitations/{id} [delete]
func (h *SharedHandler) RevokeInvite(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid invitation id"))
		return
	}

	if err := h.companyService.RevokeInvite(c.Request.Context(), middleware.CompanyID(c), id); err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("invitation revoked", nil))
}
