package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pickup-push-backend/internal/wire"
)

// SendPushNotification is the push relay function. It renders the envelope
// into a push payload and fans it out to every subscription in the request.
// Expired subscriptions are removed by the pool.
func (h *Handler) SendPushNotification(c *gin.Context) {
	if h.pool == nil {
		h.writeError(c, unavailable("push relay"))
		return
	}

	var req wire.RelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, badRequest("invalid relay request", err))
		return
	}
	if len(req.Subscriptions) == 0 {
		h.writeError(c, badRequest("subscriptions must not be empty", nil))
		return
	}

	payload, err := json.Marshal(req.Notification.Payload())
	if err != nil {
		h.writeError(c, err)
		return
	}

	res, err := h.pool.Deliver(c.Request.Context(), payload, req.Subscriptions)
	if err != nil {
		h.log.Warn("push fan-out had failures",
			zap.String("match_id", req.Notification.MatchID),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, wire.RelayResponse{
		Success: res.Failed == 0,
		Sent:    res.Sent,
		Failed:  res.Failed,
		Expired: res.Expired,
	})
}
