package handler

import (
	"errors"
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService service.AuthService
	loginLimit  *middleware.RateLimiter
	refresh     *middleware.RateLimiter

	allowedOrigins []string
	refreshDays    int
}

// NewAuthHandler sets up the routing dependencies for auth endpoints
func NewAuthHandler(authService service.AuthService, allowedOrigins []string, refreshDays int, loginLimit, refreshLimit *middleware.RateLimiter) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		loginLimit:     loginLimit,
		refresh:        refreshLimit,
		allowedOrigins: allowedOrigins,
		refreshDays:    refreshDays,
	}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup, auth gin.HandlerFunc) {
	router.POST("/check-user", h.CheckUser)
	router.POST("/send-code", h.SendCode)
	router.POST("/signup", h.Signup)
	router.POST("/login", h.loginLimit.Middleware(), h.Login)
	router.POST("/refresh", h.refresh.Middleware(), middleware.RequireOrigin(h.allowedOrigins), h.Refresh)
	router.POST("/logout", h.Logout)

	router.POST("/logout-all", auth, h.LogoutAll)
	router.GET("/me", auth, h.Me)
	router.POST("/context", auth, h.ContextToken)
}

// CheckUser reports whether an account exists for the email
// @Summary      Check account existence
// @Description  Returns USER_FOUND or USER_NOT_FOUND for the given email
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CheckUserRequest  true  "Email"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /auth/check-user [post]
func (h *AuthHandler) CheckUser(c *gin.Context) {
	var req service.CheckUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	found, err := h.authService.CheckUser(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	if found {
		c.JSON(http.StatusOK, response.Response{Success: true, Code: response.CodeUserFound, Message: "account exists"})
		return
	}
	c.JSON(http.StatusOK, response.Response{Success: true, Code: response.CodeUserNotFound, Message: "no account for this email"})
}

// SendCode emails a 6-digit verification code
// @Summary      Send verification code
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.SendCodeRequest  true  "Email"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /auth/send-code [post]
func (h *AuthHandler) SendCode(c *gin.Context) {
	var req service.SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	if err := h.authService.SendCode(c.Request.Context(), req.Email); err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("verification code sent", nil))
}

// Signup creates a verified account from email + code + password
// @Summary      Sign up
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.SignupRequest  true  "Signup payload"
// @Success      201      {object}  response.Response{data=service.MeResponse}
// @Failure      400      {object}  response.Response
// @Router       /auth/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	var req service.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	me, err := h.authService.Signup(c.Request.Context(), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusCreated, response.Success("account created", me))
}

// Login authenticates and opens a session for the device fingerprint
// @Summary      Login
// @Description  Returns an access token; the refresh token travels only in an httpOnly cookie
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest  true  "Credentials"
// @Success      200      {object}  response.Response{data=service.TokenPair}
// @Failure      401      {object}  response.Response
// @Failure      429      {object}  response.Response
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	pair, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	middleware.SetRefreshCookie(c, pair.RefreshToken, h.refreshDays)
	c.JSON(http.StatusOK, response.Success("logged in", pair))
}

type refreshRequest struct {
	Fingerprint string `json:"fingerprint" binding:"required"`
}

// Refresh rotates the refresh token and mints a new access token
// @Summary      Refresh session
// @Description  Single-use rotation; reuse of an old token revokes every session of the user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      refreshRequest  true  "Device fingerprint"
// @Success      200      {object}  response.Response{data=service.TokenPair}
// @Failure      401      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	raw, err := c.Cookie(middleware.RefreshCookieName)
	if err != nil || raw == "" {
		c.JSON(http.StatusUnauthorized, response.Error(response.CodeNotAuthenticated, "refresh cookie is missing"))
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), raw, req.Fingerprint)
	if err != nil {
		var app *response.AppError
		if errors.As(err, &app) && app.Status == http.StatusUnauthorized {
			middleware.ClearRefreshCookie(c)
		}
		c.JSON(response.FromError(err))
		return
	}

	middleware.SetRefreshCookie(c, pair.RefreshToken, h.refreshDays)
	c.JSON(http.StatusOK, response.Success("session refreshed", pair))
}

// Logout revokes the current session
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if raw, err := c.Cookie(middleware.RefreshCookieName); err == nil && raw != "" {
		// Best-effort revoke; the cookie is cleared either way.
		_ = h.authService.Logout(c.Request.Context(), raw)
	}
	middleware.ClearRefreshCookie(c)
	c.JSON(http.StatusOK, response.Success("logged out", nil))
}

// LogoutAll revokes every session of the authenticated user
// @Summary      Logout everywhere
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	if err := h.authService.LogoutAll(c.Request.Context(), middleware.UserID(c)); err != nil {
		c.JSON(response.FromError(err))
		return
	}
	middleware.ClearRefreshCookie(c)
	c.JSON(http.StatusOK, response.Success("all sessions revoked", nil))
}

// Me returns the authenticated profile with memberships
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.MeResponse}
// @Failure      401  {object}  response.Response
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	me, err := h.authService.Me(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", me))
}

// ContextToken mints an access token scoped to a company (and store)
// @Summary      Contextual token
// @Description  Exchanges a plain token for one carrying company scope, role and permissions
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ContextTokenRequest  true  "Scope"
// @Success      200      {object}  response.Response{data=service.TokenPair}
// @Failure      403      {object}  response.Response
// @Router       /auth/context [post]
func (h *AuthHandler) ContextToken(c *gin.Context) {
	var req service.ContextTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "invalid request payload"))
		return
	}

	pair, err := h.authService.ContextToken(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("context switched", pair))
}
