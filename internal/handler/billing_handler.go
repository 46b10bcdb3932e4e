package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type BillingHandler struct {
	billingService    service.BillingService
	pricingService    service.PricingService
	onboardingService service.OnboardingService
}

// NewBillingHandler sets up the routing dependencies for billing endpoints
func NewBillingHandler(billingService service.BillingService, pricingService service.PricingService, onboardingService service.OnboardingService) *BillingHandler {
	return &BillingHandler{
		billingService:    billingService,
		pricingService:    pricingService,
		onboardingService: onboardingService,
	}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *BillingHandler) RegisterRoutes(router *gin.RouterGroup, auth gin.HandlerFunc) {
	router.Use(auth, middleware.RequireCompany())

	router.POST("/price-preview", h.PricePreview)
	router.POST("/create-setup-intent", h.CreateSetupIntent)
	router.POST("/create-payment-intent", h.CreatePaymentIntent)
	router.POST("/confirm-and-subscribe", h.ConfirmAndSubscribe)
	router.POST("/onboarding-complete", h.OnboardingComplete)
	router.POST("/check-plan-change", h.CheckPlanChange)
	router.GET("/subscription", h.GetSubscription)
	router.GET("/payments", h.ListPayments)
}

// PricePreview prices a configuration with VAT
// @Summary      Price preview
// @Description  Computes line items, subtotal, 24% VAT and total from cached catalog amounts
// @Tags         billing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.PricePreviewRequest  true  "Configuration"
// @Success      200      {object}  response.Response{data=service.PricePreviewResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /billing/price-preview [post]
func (h *BillingHandler) PricePreview(c *gin.Context) {
	var req service.PricePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	preview, err := h.pricingService.Preview(c.Request.Context(), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", preview))
}

// CreateSetupIntent opens a Stripe SetupIntent for saving a card
// @Summary      Create setup intent
// @Tags         billing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.IntentResult}
// @Failure      502  {object}  response.Response
// @Router       /billing/create-setup-intent [post]
func (h *BillingHandler) CreateSetupIntent(c *gin.Context) {
	intent, err := h.billingService.CreateSetupIntent(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", intent))
}

// CreatePaymentIntent opens a Stripe PaymentIntent for the previewed total
// @Summary      Create payment intent
// @Tags         billing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.PricePreviewRequest  true  "Configuration"
// @Success      200      {object}  response.Response{data=service.IntentResult}
// @Failure      400      {object}  response.Response
// @Router       /billing/create-payment-intent [post]
func (h *BillingHandler) CreatePaymentIntent(c *gin.Context) {
	var req service.PricePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	intent, err := h.billingService.CreatePaymentIntent(c.Request.Context(), middleware.CompanyID(c), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", intent))
}

// ConfirmAndSubscribe creates the Stripe subscription and provisions the company
// @Summary      Confirm and subscribe
// @Description  Creates the subscription from the onboarding draft and finishes provisioning. The local subscription starts as incomplete; billing status is settled by webhooks.
// @Tags         billing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ConfirmAndSubscribeRequest  true  "Payment method"
// @Success      200      {object}  response.Response{data=service.SubscriptionResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /billing/confirm-and-subscribe [post]
func (h *BillingHandler) ConfirmAndSubscribe(c *gin.Context) {
	var req service.ConfirmAndSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	sub, err := h.billingService.ConfirmAndSubscribe(c.Request.Context(), middleware.CompanyID(c), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("subscription created", sub))
}

// OnboardingComplete finishes onboarding on the free plan
// @Summary      Complete onboarding
// @Description  Free-plan path only; a paid draft must go through confirm-and-subscribe
// @Tags         billing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.OnboardingStateResponse}
// @Failure      402  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /billing/onboarding-complete [post]
func (h *BillingHandler) OnboardingComplete(c *gin.Context) {
	state, err := h.onboardingService.Complete(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("onboarding completed", state))
}

// CheckPlanChange reports the impact of switching plans
// @Summary      Check plan change
// @Description  Read-only: lists plugins the new plan would invalidate and the price delta
// @Tags         billing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CheckPlanChangeRequest  true  "Target plan"
// @Success      200      {object}  response.Response{data=service.PlanChangeResponse}
// @Failure      404      {object}  response.Response
// @Router       /billing/check-plan-change [post]
func (h *BillingHandler) CheckPlanChange(c *gin.Context) {
	var req service.CheckPlanChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	result, err := h.billingService.CheckPlanChange(c.Request.Context(), middleware.CompanyID(c), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", result))
}

// GetSubscription returns the company subscription with items and payments
// @Summary      Get subscription
// @Tags         billing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.SubscriptionResponse}
// @Failure      404  {object}  response.Response
// @Router       /billing/subscription [get]
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	sub, err := h.billingService.GetSubscription(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", sub))
}

// ListPayments returns the company's invoice history
// @Summary      List payments
// @Tags         billing
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page"
// @Param        limit  query     int  false  "Limit"
// @Success      200    {object}  response.Response{data=[]service.PaymentResponse}
// @Router       /billing/payments [get]
func (h *BillingHandler) ListPayments(c *gin.Context) {
	p := pagination.Parse(c)
	payments, total, err := h.billingService.ListPayments(c.Request.Context(), middleware.CompanyID(c), p.Page, p.Limit)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", gin.H{
		"items": payments,
		"meta":  p.MetaFor(total),
	}))
}
