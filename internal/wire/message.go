package wire

import (
	"encoding/json"
	"fmt"

	"pickup-push-backend/internal/model"
)

// MessageType is the closed set of messages exchanged between pages and the
// background worker, plus the server-to-page inbox frame.
type MessageType string

const (
	MessagePushNotification        MessageType = "PUSH_NOTIFICATION"
	MessageNotificationClick       MessageType = "NOTIFICATION_CLICK"
	MessagePushSubscriptionChanged MessageType = "PUSH_SUBSCRIPTION_CHANGED"
	MessageInboxInsert             MessageType = "INBOX_INSERT"
)

// Valid reports whether t belongs to the closed set.
func (t MessageType) Valid() bool {
	switch t {
	case MessagePushNotification, MessageNotificationClick, MessagePushSubscriptionChanged, MessageInboxInsert:
		return true
	}
	return false
}

// Message is one cross-context message.
type Message struct {
	Type         MessageType         `json:"type"`
	Payload      *PushPayload        `json:"payload,omitempty"`
	Notification *model.Notification `json:"notification,omitempty"`
}

// DecodeMessage parses and validates a message frame.
func DecodeMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if !m.Type.Valid() {
		return Message{}, fmt.Errorf("decode message: unknown type %q", m.Type)
	}
	if m.Type == MessagePushNotification && m.Payload == nil {
		return Message{}, fmt.Errorf("decode message: %s without payload", m.Type)
	}
	return m, nil
}
