package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification is one message addressed to one real user about one match.
// (match_id, user_id) is unique; repeated writes update the row in place.
type Notification struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	MatchID   string    `gorm:"uniqueIndex:idx_notifications_match_user;size:128;not null" json:"match_id"`
	UserID    string    `gorm:"uniqueIndex:idx_notifications_match_user;size:128;not null;index" json:"user_id"`
	Message   string    `gorm:"not null" json:"message"`
	IsRead    bool      `gorm:"not null;default:false" json:"is_read"`
}

// BeforeCreate assigns a UUID when none is set.
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
