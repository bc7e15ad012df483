package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProposedSlot is an alternative date/time offered by the supplier.
type ProposedSlot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type Reservation struct {
	ID               string                            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExperienceID     string                            `gorm:"column:experience_id;type:varchar(36);index" json:"experience_id"`
	SessionID        *string                           `gorm:"column:session_id;type:varchar(36);index" json:"session_id,omitempty"`
	ChannelID        string                            `gorm:"column:channel_id;type:varchar(36);index" json:"channel_id"`
	Participants     int                               `gorm:"column:participants" json:"participants"`
	Days             int                               `gorm:"column:days;default:1" json:"days"`
	TotalCents       int64                             `gorm:"column:total_cents" json:"total_cents"`
	Currency         string                            `gorm:"size:3" json:"currency"`
	GuestName        string                            `gorm:"column:guest_name;size:255" json:"guest_name"`
	GuestEmail       string                            `gorm:"column:guest_email;size:255" json:"guest_email"`
	GuestPhone       string                            `gorm:"column:guest_phone;size:64" json:"guest_phone,omitempty"`
	RequestedDate    *string                           `gorm:"column:requested_date;size:10" json:"requested_date,omitempty"`
	RequestedTime    *string                           `gorm:"column:requested_time;size:5" json:"requested_time,omitempty"`
	Status           ReservationStatus                 `gorm:"column:status;size:32;index" json:"status"`
	ProposedSlots    datatypes.JSONSlice[ProposedSlot] `gorm:"column:proposed_slots" json:"proposed_slots,omitempty"`
	SupplierMessage  string                            `gorm:"column:supplier_message;type:text" json:"supplier_message,omitempty"`
	ResponseDeadline *time.Time                        `gorm:"column:response_deadline;index" json:"response_deadline,omitempty"`
	PaymentDeadline  *time.Time                        `gorm:"column:payment_deadline;index" json:"payment_deadline,omitempty"`
	PaymentLinkID    string                            `gorm:"column:payment_link_id;size:128" json:"payment_link_id,omitempty"`
	PaymentURL       string                            `gorm:"column:payment_url;size:512" json:"payment_url,omitempty"`
	DecidedAt        *time.Time                        `gorm:"column:decided_at" json:"decided_at,omitempty"`
	CreatedAt        time.Time                         `json:"created_at"`
	UpdatedAt        time.Time                         `json:"updated_at"`
}

// IsCustomRequest is true when the guest asked for a date/time instead of a session.
func (r Reservation) IsCustomRequest() bool {
	return r.SessionID == nil && r.RequestedDate != nil
}
