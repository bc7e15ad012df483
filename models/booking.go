package models

import "time"

// Booking is created once per reservation after the payment provider confirms payment.
type Booking struct {
	ID                    string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ReservationID         string        `gorm:"column:reservation_id;type:varchar(36);uniqueIndex" json:"reservation_id"`
	ExperienceID          string        `gorm:"column:experience_id;type:varchar(36);index" json:"experience_id"`
	SessionID             *string       `gorm:"column:session_id;type:varchar(36)" json:"session_id,omitempty"`
	ChannelID             string        `gorm:"column:channel_id;type:varchar(36);index" json:"channel_id"`
	SupplierID            string        `gorm:"column:supplier_id;type:varchar(36);index" json:"supplier_id"`
	GuestName             string        `gorm:"column:guest_name;size:255" json:"guest_name"`
	GuestEmail            string        `gorm:"column:guest_email;size:255" json:"guest_email"`
	Participants          int           `gorm:"column:participants" json:"participants"`
	ExperienceDate        string        `gorm:"column:experience_date;size:10;index" json:"experience_date"`
	ExperienceTime        string        `gorm:"column:experience_time;size:5" json:"experience_time"`
	TotalAmountCents      int64         `gorm:"column:total_amount_cents" json:"total_amount_cents"`
	SupplierAmountCents   int64         `gorm:"column:supplier_amount_cents" json:"supplier_amount_cents"`
	HotelAmountCents      int64         `gorm:"column:hotel_amount_cents" json:"hotel_amount_cents"`
	PlatformAmountCents   int64         `gorm:"column:platform_amount_cents" json:"platform_amount_cents"`
	Currency              string        `gorm:"size:3" json:"currency"`
	PaymentIntentID       string        `gorm:"column:payment_intent_id;size:128;index" json:"payment_intent_id"`
	ChargeID              string        `gorm:"column:charge_id;size:128" json:"charge_id"`
	TransferID            string        `gorm:"column:transfer_id;size:128" json:"transfer_id,omitempty"`
	Status                BookingStatus `gorm:"column:status;size:16;index" json:"status"`
	CancelledAt           *time.Time    `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CompletedAt           *time.Time    `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CompletionCheckSentAt *time.Time    `gorm:"column:completion_check_sent_at" json:"completion_check_sent_at,omitempty"`
	PayoutID              *string       `gorm:"column:payout_id;type:varchar(36);index" json:"payout_id,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}
