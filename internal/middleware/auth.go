package middleware

import (
	"net/http"
	"os"
	"strings"

	"backend/internal/auth"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys set by the auth middleware.
const (
	CtxClaims      = "authClaims"
	CtxUserID      = "userID"
	CtxCompanyID   = "companyID"
	CtxFingerprint = "fingerprint"
)

// RefreshCookieName is the refresh token cookie. The access token is never
// cookied; clients hold it in memory only.
const RefreshCookieName = "refresh_token"

// SetRefreshCookie sets the httpOnly refresh cookie. Secure + SameSite=None
// in release (cross-origin SPA), Lax otherwise.
func SetRefreshCookie(c *gin.Context, token string, lifetimeDays int) {
	sameSite := http.SameSiteLaxMode
	secure := false
	if os.Getenv("GIN_MODE") == "release" {
		sameSite = http.SameSiteNoneMode
		secure = true
	}
	c.SetSameSite(sameSite)
	c.SetCookie(RefreshCookieName, token, 3600*24*lifetimeDays, "/", "", secure, true)
}

// ClearRefreshCookie removes the refresh cookie.
func ClearRefreshCookie(c *gin.Context) {
	sameSite := http.SameSiteLaxMode
	secure := false
	if os.Getenv("GIN_MODE") == "release" {
		sameSite = http.SameSiteNoneMode
		secure = true
	}
	c.SetSameSite(sameSite)
	c.SetCookie(RefreshCookieName, "", -1, "/", "", secure, true)
}

// ActivityToucher is called fire-and-forget on each authenticated request.
type ActivityToucher func(userID uuid.UUID, fingerprint string)

// RequireAuth validates the bearer access token and stores the claims in
// the request context. Any valid token passes; company scope is checked
// separately by RequireCompany.
func RequireAuth(secret []byte, touch ActivityToucher) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				response.Error(response.CodeNotAuthenticated, "authorization is missing"))
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				response.Error(response.CodeNotAuthenticated, "invalid authorization format, expected 'Bearer <token>'"))
			return
		}

		claims, err := auth.ParseAccessToken(secret, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				response.Error(response.CodeAccessTokenInvalid, "access token expired or invalid"))
			return
		}

		c.Set(CtxClaims, claims)
		c.Set(CtxUserID, claims.UserID)
		if claims.CompanyID != nil {
			c.Set(CtxCompanyID, *claims.CompanyID)
		}
		if fingerprint := c.GetHeader("X-Fingerprint"); fingerprint != "" {
			c.Set(CtxFingerprint, fingerprint)
			if touch != nil {
				touch(claims.UserID, fingerprint)
			}
		}

		c.Next()
	}
}

// RequireCompany rejects tokens that carry no company scope. Routes under
// it can read CtxCompanyID unconditionally.
func RequireCompany() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(CtxCompanyID); !ok {
			c.AbortWithStatusJSON(http.StatusForbidden,
				response.Error(response.CodeMembershipNotFound, "a company-scoped token is required"))
			return
		}
		c.Next()
	}
}

// RequireOrigin is the anti-CSRF gate on the refresh endpoint: the Origin
// header must be present and on the allow-list.
func RequireOrigin(allowed []string) gin.HandlerFunc {
	allowedSet := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		allowedSet[origin] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || !allowedSet[origin] {
			c.AbortWithStatusJSON(http.StatusForbidden,
				response.Error(response.CodeOriginNotAllowed, "request origin not allowed"))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id set by RequireAuth.
func UserID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(CtxUserID)
	id, _ := v.(uuid.UUID)
	return id
}

// CompanyID returns the active company scope set by RequireAuth.
func CompanyID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(CtxCompanyID)
	id, _ := v.(uuid.UUID)
	return id
}
