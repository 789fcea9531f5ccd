package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"bitwise74/accounts-api/internal/model"
	"bitwise74/accounts-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TokenResolver interface {
	UserForToken(ctx context.Context, key string) (*model.User, error)
}

// TokenFromHeader extracts the key from "Token <key>" or "Bearer <key>".
// ok is false when no credentials were sent at all.
func TokenFromHeader(h string) (key string, ok bool) {
	h = strings.TrimSpace(h)
	if h == "" {
		return "", false
	}

	scheme, rest, _ := strings.Cut(h, " ")
	if !strings.EqualFold(scheme, "Token") && !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	return strings.TrimSpace(rest), true
}

func unauthorized(c *gin.Context, detail string) {
	c.Header("WWW-Authenticate", "Token")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": detail})
}

// NewTokenMiddleware resolves the Authorization header to a user and sets
// it as user, along with the raw key as authToken.
func NewTokenMiddleware(r TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.MustGet("requestID").(string)

		key, ok := TokenFromHeader(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "Authentication credentials were not provided.")
			return
		}

		if key == "" || strings.ContainsAny(key, " \t") {
			unauthorized(c, "Invalid token header. No credentials provided.")
			return
		}

		u, err := r.UserForToken(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, service.ErrInvalidToken) {
				unauthorized(c, "Invalid token.")
				return
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to resolve token", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		c.Set("user", u)
		c.Set("authToken", key)
		c.Next()
	}
}

// NewStaffMiddleware must run after NewTokenMiddleware
func NewStaffMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := c.Get("user")
		if !ok || !u.(*model.User).IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"detail": "You do not have permission to perform this action.",
			})
			return
		}

		c.Next()
	}
}
