package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mementolink/mementolink-backend/internal/platform/ctxutil"
	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/services"
)

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
	staffAPIKey string
}

func NewAuthMiddleware(baseLog *logger.Logger, authService services.AuthService, staffAPIKey string) *AuthMiddleware {
	return &AuthMiddleware{
		log:         baseLog.With("Middleware", "AuthMiddleware"),
		authService: authService,
		staffAPIKey: staffAPIKey,
	}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}
		ctx, err := am.authService.SetContextFromToken(c.Request.Context(), tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": err.Error(), "code": "unauthorized"},
			})
			return
		}
		c.Request = c.Request.WithContext(ctx)
		rd := ctxutil.GetRequestData(ctx)
		if rd == nil || rd.UserID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"message": "forbidden", "code": "forbidden"},
			})
			return
		}
		c.Next()
	}
}

// RequireStaff gates the staff surface behind the shared API key. The
// X-Staff-Tenant header scopes the request to one tenant; absent means
// super-admin scope across all tenants.
func (am *AuthMiddleware) RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.staffAPIKey == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"message": "staff access not configured", "code": "forbidden"},
			})
			return
		}
		key := strings.TrimSpace(c.GetHeader("X-Staff-Key"))
		if subtle.ConstantTimeCompare([]byte(key), []byte(am.staffAPIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "invalid staff key", "code": "unauthorized"},
			})
			return
		}
		rd := &ctxutil.RequestData{}
		if tenant := strings.TrimSpace(c.GetHeader("X-Staff-Tenant")); tenant != "" {
			rd.StaffTenant = &tenant
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
