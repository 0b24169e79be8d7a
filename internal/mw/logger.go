package mw

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pickup-push-backend/internal/logger"
)

// Logger writes a concise structured access log for each request.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id := c.GetString(CtxUserIDKey); id != "" {
			fields = append(fields, zap.String("user_id", id))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.WithModule("http").Info("request", fields...)
	}
}
