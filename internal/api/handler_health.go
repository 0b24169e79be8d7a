package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Health reports whether the database answers a ping.
func (h *Handler) Health(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	sqlDB, err := h.store.DB().DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
