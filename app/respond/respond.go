// Package respond renders service errors the same way for every handler
package respond

import (
	"errors"
	"net/http"

	"bitwise74/accounts-api/internal/service"
	"bitwise74/accounts-api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Detail(c *gin.Context, status int, detail string) {
	c.JSON(status, gin.H{"detail": detail})
}

// Error maps err to a status code. Validation errors are rendered as their
// field map, anything unexpected is logged and hidden behind a 500.
func Error(c *gin.Context, err error) {
	var verr *service.ValidationError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, verr.Fields)
	case errors.Is(err, service.ErrInvalidOrExpiredKey), errors.Is(err, service.ErrNotFound):
		Detail(c, http.StatusNotFound, "Not found.")
	case errors.Is(err, service.ErrUnauthenticated):
		c.Header("WWW-Authenticate", "Token")
		Detail(c, http.StatusUnauthorized, "Authentication credentials were not provided.")
	case errors.Is(err, service.ErrInvalidToken):
		c.Header("WWW-Authenticate", "Token")
		Detail(c, http.StatusUnauthorized, "Invalid token.")
	case errors.Is(err, service.ErrForbidden):
		Detail(c, http.StatusForbidden, "You do not have permission to perform this action.")
	case errors.Is(err, service.ErrProviderUnavailable):
		Detail(c, http.StatusBadGateway, "The identity provider could not be reached.")
	case errors.Is(err, service.ErrEmailDeliveryFailed):
		Detail(c, http.StatusServiceUnavailable, "The e-mail could not be sent, please try again later.")
	default:
		requestID := c.GetString("requestID")

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Request failed", zap.Error(err), zap.String("requestID", requestID))
	}
}

// BindError answers a body that could not be parsed
func BindError(c *gin.Context, err error) {
	if middleware.IsBodyTooLarge(err) {
		Detail(c, http.StatusRequestEntityTooLarge, "Request body size exceeds limit")
		return
	}

	zap.L().Debug("Can't bind request body", zap.Error(err), zap.String("requestID", c.GetString("requestID")))
	Detail(c, http.StatusBadRequest, "Malformed request body.")
}
