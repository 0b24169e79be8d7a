package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"pickup-push-backend/config"
	"pickup-push-backend/internal/auth"
	"pickup-push-backend/internal/mw"
	"pickup-push-backend/internal/wire"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, jwt *auth.JWTService, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger())

	// Authenticated routes are limited per user, the rest per client IP.
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, mw.ClientKey)
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(ttl, 2*ttl), ttl)
	authn := mw.Auth(jwt)

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/vapid_public_key", rateLimiter, caching, h.GetVAPIDPublicKey)

		user := api.Group("", authn, rateLimiter)
		user.GET("/push/subscriptions", h.GetSubscription)
		user.PUT("/push/subscriptions", h.PutSubscription)
		user.DELETE("/push/subscriptions", h.DeleteSubscription)

		user.GET("/notifications", h.ListNotifications)
		user.POST("/notifications/read-all", h.MarkAllNotificationsRead)
		user.POST("/notifications/:id/read", h.MarkNotificationRead)
		user.GET("/notifications/stream", h.StreamNotifications)

		admin := user.Group("/matches", mw.RequireRole(auth.RoleAdmin))
		admin.POST("/:match_id/notify", h.NotifyMatch)
		admin.POST("/:match_id/participants/:user_id/notify", h.NotifyParticipant)
	}

	r.POST(wire.RelayPath, authn, mw.RequireRole(auth.RoleService, auth.RoleAdmin), h.SendPushNotification)

	return r
}
