package models

import "time"

// Session is a concrete slot of an experience. Date and Time are kept as
// calendar strings (YYYY-MM-DD, HH:MM) in the experience's local time.
type Session struct {
	ID                 string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExperienceID       string        `gorm:"column:experience_id;type:varchar(36);index:idx_session_slot" json:"experience_id"`
	Date               string        `gorm:"column:date;size:10;index:idx_session_slot" json:"date"`
	Time               string        `gorm:"column:time;size:5;index:idx_session_slot" json:"time"`
	SpotsTotal         int           `gorm:"column:spots_total" json:"spots_total"`
	SpotsAvailable     int           `gorm:"column:spots_available" json:"spots_available"`
	MinParticipants    int           `gorm:"column:min_participants;default:0" json:"min_participants"`
	PriceOverrideCents *int64        `gorm:"column:price_override_cents" json:"price_override_cents,omitempty"`
	IsPrivate          bool          `gorm:"column:is_private;default:false" json:"is_private"`
	Status             SessionStatus `gorm:"column:status;size:16;index" json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// HasMinimum reports whether the session only runs once enough guests joined.
func (s Session) HasMinimum() bool {
	return s.MinParticipants > 0
}
