package model

import "time"

// Match is a scheduled pickup game. Rows are owned by the match admin screens;
// the notification core only reads them.
type Match struct {
	ID        string    `gorm:"primaryKey;size:128" json:"id"`
	Title     string    `gorm:"size:256;not null" json:"title"`
	Location  string    `gorm:"size:256" json:"location"`
	StartsAt  time.Time `gorm:"not null;index" json:"starts_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Associations
	Participants []Participant `gorm:"foreignKey:MatchID" json:"participants,omitempty"`
}

// Participant is one roster entry. Guest entries carry a synthesized
// user id with the "guest-" prefix.
type Participant struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	MatchID   string    `gorm:"index;size:128;not null" json:"match_id"`
	UserID    string    `gorm:"index;size:128;not null" json:"user_id"`
	Name      string    `gorm:"size:128" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
