package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetVAPIDPublicKey returns the VAPID public key pages subscribe with.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		h.writeError(c, unavailable("vapid key"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
