package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pickup-push-backend/internal/apperr"
	"pickup-push-backend/internal/dispatch"
	"pickup-push-backend/internal/store"
)

type notifyRequest struct {
	Message string `json:"message" binding:"required"`
}

type notifyResponse struct {
	Notified      []string `json:"notified"`
	GuestsSkipped []string `json:"guests_skipped"`
	Written       int      `json:"written"`
	Subscriptions int      `json:"subscriptions"`
	Relayed       bool     `json:"relayed"`
	RelayError    string   `json:"relay_error,omitempty"`
	LocalFallback bool     `json:"local_fallback"`
}

func toNotifyResponse(res dispatch.Result) notifyResponse {
	out := notifyResponse{
		Notified:      res.Notified,
		GuestsSkipped: res.GuestsSkipped,
		Written:       res.Written,
		Subscriptions: res.Subscriptions,
		Relayed:       res.Relayed,
		LocalFallback: res.LocalFallback,
	}
	if out.Notified == nil {
		out.Notified = []string{}
	}
	if out.GuestsSkipped == nil {
		out.GuestsSkipped = []string{}
	}
	if res.RelayErr != nil {
		out.RelayError = res.RelayErr.Error()
	}
	return out
}

// bindNotify reads the message body and checks the match exists.
func (h *Handler) bindNotify(c *gin.Context) (string, bool) {
	if h.dispatcher == nil || h.store == nil {
		h.writeError(c, unavailable("dispatch"))
		return "", false
	}

	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		h.writeError(c, badRequest("message is required", err))
		return "", false
	}

	_, err := h.store.GetMatch(c.Request.Context(), c.Param("match_id"))
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(c, apperr.ErrNotFound.WithMessage("match not found"))
		return "", false
	}
	if err != nil {
		h.writeError(c, err)
		return "", false
	}
	return req.Message, true
}

// NotifyMatch notifies every real participant of a match.
func (h *Handler) NotifyMatch(c *gin.Context) {
	msg, ok := h.bindNotify(c)
	if !ok {
		return
	}

	res, err := h.dispatcher.NotifyMatch(c.Request.Context(), c.Param("match_id"), msg)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toNotifyResponse(res))
}

// NotifyParticipant notifies one participant of a match.
func (h *Handler) NotifyParticipant(c *gin.Context) {
	msg, ok := h.bindNotify(c)
	if !ok {
		return
	}

	res, err := h.dispatcher.NotifySingle(c.Request.Context(), c.Param("match_id"), c.Param("user_id"), msg)
	if errors.Is(err, dispatch.ErrGuestRecipient) {
		h.writeError(c, badRequest("guest participants cannot receive notifications", err))
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toNotifyResponse(res))
}
