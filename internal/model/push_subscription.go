package model

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/datatypes"
)

// DeviceInfo describes the browser that registered a push subscription.
type DeviceInfo struct {
	IsSafari  bool   `json:"is_safari"`
	IsIOS     bool   `json:"is_ios"`
	UserAgent string `json:"user_agent"`
}

// PushSubscription holds one user's browser push subscription.
// A user owns at most one row; re-subscribing from another device overwrites it.
type PushSubscription struct {
	ID           int64                                    `gorm:"primaryKey" json:"-"`
	UserID       string                                   `gorm:"uniqueIndex;size:128;not null" json:"user_id"`
	Subscription datatypes.JSONType[webpush.Subscription] `gorm:"not null" json:"subscription"`
	DeviceInfo   datatypes.JSONType[DeviceInfo]           `json:"device_info"`
	CreatedAt    time.Time                                `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time                                `gorm:"not null" json:"updated_at"`
}

// Endpoint returns the push service endpoint of the stored subscription.
func (p PushSubscription) Endpoint() string {
	return p.Subscription.Data().Endpoint
}
