package mw

import (
	"strings"

	"github.com/gin-gonic/gin"

	"pickup-push-backend/internal/apperr"
	"pickup-push-backend/internal/auth"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
)

func abortWith(c *gin.Context, e *apperr.AppError) {
	c.AbortWithStatusJSON(e.StatusCode, gin.H{"error": gin.H{"code": e.Code, "message": e.Message}})
}

// Auth enforces bearer JWT authentication and records the caller on both the
// gin context and the request context.
func Auth(jwt *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwt == nil {
			abortWith(c, apperr.ErrUnauthorized)
			return
		}
		token, ok := bearerToken(c)
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			abortWith(c, apperr.ErrUnauthorized)
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			abortWith(c, apperr.ErrUnauthorized)
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Request = c.Request.WithContext(auth.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

// bearerToken reads the Authorization header. Websocket upgrades may carry
// the token as ?access_token= since browsers cannot set headers on them.
func bearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) >= 8 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:]), true
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		if t := c.Query("access_token"); t != "" {
			return t, true
		}
	}
	return "", false
}

// RequireRole allows only tokens carrying one of roles. It must run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(CtxClaimsKey)
		claims, _ := v.(*auth.Claims)
		if !ok || claims == nil {
			abortWith(c, apperr.ErrUnauthorized)
			return
		}
		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}
		abortWith(c, apperr.ErrForbidden)
	}
}
