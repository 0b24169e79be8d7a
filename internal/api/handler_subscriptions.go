package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"pickup-push-backend/internal/apperr"
	"pickup-push-backend/internal/capability"
	"pickup-push-backend/internal/mw"
	"pickup-push-backend/internal/store"
	"pickup-push-backend/internal/subscription"
	"pickup-push-backend/internal/wire"
)

func callerID(c *gin.Context) string {
	return c.GetString(mw.CtxUserIDKey)
}

func validateSubscription(rec wire.SubscriptionRecord) error {
	u, err := url.Parse(rec.Subscription.Endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return errors.New("endpoint must be an absolute https URL")
	}
	if rec.Subscription.Keys.P256dh == "" || rec.Subscription.Keys.Auth == "" {
		return errors.New("keys.p256dh and keys.auth are required")
	}
	return nil
}

// PutSubscription stores the caller's push subscription, replacing any
// earlier one. device_info is derived from the User-Agent when omitted.
func (h *Handler) PutSubscription(c *gin.Context) {
	if h.saver == nil {
		h.writeError(c, unavailable("storage"))
		return
	}

	var req wire.SubscriptionRecord
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, badRequest("invalid subscription body", err))
		return
	}
	if err := validateSubscription(req); err != nil {
		h.writeError(c, badRequest(err.Error(), err))
		return
	}

	rec := subscription.Record{UserID: callerID(c), Subscription: req.Subscription}
	if req.DeviceInfo != nil {
		rec.DeviceInfo = *req.DeviceInfo
	} else {
		ua := c.Request.UserAgent()
		rec.DeviceInfo = capability.FromUserAgent(ua).DeviceInfo(ua)
	}

	if err := h.saver.SaveSubscription(c.Request.Context(), rec); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetSubscription returns the caller's stored subscription.
func (h *Handler) GetSubscription(c *gin.Context) {
	if h.store == nil {
		h.writeError(c, unavailable("storage"))
		return
	}

	sub, err := h.store.GetPushSubscription(c.Request.Context(), callerID(c))
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(c, apperr.ErrNotFound.WithMessage("subscription not found"))
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	info := sub.DeviceInfo.Data()
	c.JSON(http.StatusOK, wire.SubscriptionRecord{
		Subscription: sub.Subscription.Data(),
		DeviceInfo:   &info,
	})
}

// DeleteSubscription removes the caller's subscription. Deleting a missing
// subscription succeeds.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	if h.store == nil {
		h.writeError(c, unavailable("storage"))
		return
	}

	if err := h.store.DeletePushSubscription(c.Request.Context(), callerID(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
