package wire

import (
	"github.com/SherClockHolmes/webpush-go"

	"pickup-push-backend/internal/model"
)

// Notification actions offered on every match notification.
const (
	ActionOpen    = "open"
	ActionDismiss = "dismiss"
)

// NotificationAction is one button on a system notification.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// NotificationOptions is the option set passed to showNotification.
type NotificationOptions struct {
	Body     string               `json:"body,omitempty"`
	Icon     string               `json:"icon,omitempty"`
	Badge    string               `json:"badge,omitempty"`
	Tag      string               `json:"tag,omitempty"`
	Renotify bool                 `json:"renotify"`
	Data     PayloadData          `json:"data"`
	Actions  []NotificationAction `json:"actions,omitempty"`
}

// Options renders the payload as a system notification.
func (p PushPayload) Options() NotificationOptions {
	return NotificationOptions{
		Body:     p.Body,
		Icon:     p.Icon,
		Badge:    p.Badge,
		Tag:      p.Tag,
		Renotify: p.Renotify,
		Data:     p.Data,
		Actions: []NotificationAction{
			{Action: ActionOpen, Title: "Open"},
			{Action: ActionDismiss, Title: "Dismiss"},
		},
	}
}

// SubscriptionRecord is the body of PUT /api/push/subscriptions. The owner
// comes from the bearer token, never from the body.
type SubscriptionRecord struct {
	Subscription webpush.Subscription `json:"subscription" binding:"required"`
	DeviceInfo   *model.DeviceInfo    `json:"device_info,omitempty"`
}
