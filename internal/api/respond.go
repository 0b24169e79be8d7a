package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pickup-push-backend/internal/apperr"
)

// writeError renders err as {"error":{"code","message"}}. Internal details
// are logged, never returned.
func (h *Handler) writeError(c *gin.Context, err error) {
	appErr := apperr.FromError(err)
	if appErr.StatusCode >= 500 {
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(appErr.StatusCode, gin.H{"error": gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
	}})
}

func badRequest(msg string, err error) *apperr.AppError {
	return apperr.ErrBadRequest.WithMessage(msg).WithInternal(err)
}

func unavailable(what string) *apperr.AppError {
	return apperr.ErrServiceUnavailable.WithMessage(what + " is not configured")
}
