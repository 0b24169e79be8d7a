package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pickup-push-backend/internal/apperr"
	"pickup-push-backend/internal/inbox"
	"pickup-push-backend/internal/model"
	"pickup-push-backend/internal/wire"
)

// ListNotifications returns the caller's inbox newest first with its unread count.
func (h *Handler) ListNotifications(c *gin.Context) {
	if h.inbox == nil {
		h.writeError(c, unavailable("inbox"))
		return
	}

	items, err := h.inbox.Load(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(c, badRequest("limit must be a positive integer", err))
			return
		}
		if n < len(items) {
			items = items[:n]
		}
	}

	unread := 0
	for _, n := range items {
		if !n.IsRead {
			unread++
		}
	}
	if items == nil {
		items = []model.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "unread": unread})
}

// MarkNotificationRead marks one of the caller's notifications read.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if h.inbox == nil {
		h.writeError(c, unavailable("inbox"))
		return
	}

	err := h.inbox.MarkRead(c.Request.Context(), callerID(c), c.Param("id"))
	if errors.Is(err, inbox.ErrNotFound) {
		h.writeError(c, apperr.ErrNotFound.WithMessage("notification not found"))
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllNotificationsRead marks every unread notification of the caller read.
func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	if h.inbox == nil {
		h.writeError(c, unavailable("inbox"))
		return
	}

	n, err := h.inbox.MarkAllRead(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// StreamNotifications upgrades to a websocket that carries in-page push
// fallbacks and INBOX_INSERT messages for the caller.
func (h *Handler) StreamNotifications(c *gin.Context) {
	if h.hub == nil || h.inbox == nil {
		h.writeError(c, unavailable("realtime"))
		return
	}

	userID := callerID(c)
	h.hub.Serve(userID, c.Writer, c.Request, func(send func(wire.Message) bool) func() {
		sub := h.inbox.Subscribe(userID, func(n model.Notification) {
			send(wire.Message{Type: wire.MessageInboxInsert, Notification: &n})
		})
		return sub.Close
	})
}
