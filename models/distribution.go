package models

import (
	"time"

	"gorm.io/datatypes"
)

// Distribution ties an experience to a reselling channel with a fixed commission split.
type Distribution struct {
	ID                 string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExperienceID       string    `gorm:"column:experience_id;type:varchar(36);index:idx_distribution_pair" json:"experience_id"`
	ChannelID          string    `gorm:"column:channel_id;type:varchar(36);index:idx_distribution_pair" json:"channel_id"`
	CommissionSupplier int       `gorm:"column:commission_supplier" json:"commission_supplier"`
	CommissionHotel    int       `gorm:"column:commission_hotel" json:"commission_hotel"`
	CommissionPlatform int       `gorm:"column:commission_platform" json:"commission_platform"`
	IsSelfOwned        bool      `gorm:"column:is_self_owned;default:false" json:"is_self_owned"`
	IsActive           bool      `gorm:"column:is_active;default:true;index" json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Payout batches the hotel share of completed bookings for one channel and period.
type Payout struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ChannelID    string    `gorm:"column:channel_id;type:varchar(36);index" json:"channel_id"`
	PeriodFrom   string    `gorm:"column:period_from;size:10" json:"period_from"`
	PeriodTo     string    `gorm:"column:period_to;size:10" json:"period_to"`
	AmountCents  int64     `gorm:"column:amount_cents" json:"amount_cents"`
	Currency     string    `gorm:"size:3" json:"currency"`
	BookingCount int       `gorm:"column:booking_count" json:"booking_count"`
	Status       string    `gorm:"column:status;size:16" json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// WebhookEvent is the audit row of a verified payment provider delivery.
type WebhookEvent struct {
	ID         string         `gorm:"primaryKey;type:varchar(128)" json:"id"`
	Type       string         `gorm:"size:64;index" json:"type"`
	Payload    datatypes.JSON `json:"payload"`
	ReceivedAt time.Time      `json:"received_at"`
}
