package models

import (
	"time"

	"gorm.io/datatypes"
)

type PricingModel string

const (
	PricingPerPerson     PricingModel = "per_person"
	PricingFlatRate      PricingModel = "flat_rate"
	PricingBasePlusExtra PricingModel = "base_plus_extra"
	PricingPerDay        PricingModel = "per_day"
)

type CancellationPolicy string

const (
	PolicyFlexible      CancellationPolicy = "flexible"
	PolicyModerate      CancellationPolicy = "moderate"
	PolicyStrict        CancellationPolicy = "strict"
	PolicyNonRefundable CancellationPolicy = "non_refundable"
)

// Supplier runs experiences and receives the supplier share through a connected payment account.
type Supplier struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name             string    `gorm:"size:255" json:"name"`
	Email            string    `gorm:"size:255" json:"email"`
	PaymentAccountID string    `gorm:"column:payment_account_id;size:128;index" json:"payment_account_id,omitempty"`
	PayoutsEnabled   bool      `gorm:"column:payouts_enabled;default:false" json:"payouts_enabled"`
	ChannelID        *string   `gorm:"column:channel_id;type:varchar(36)" json:"channel_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Channel is a reselling partner (usually a hotel) that embeds experiences.
type Channel struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name             string    `gorm:"size:255" json:"name"`
	Email            string    `gorm:"size:255" json:"email"`
	PaymentAccountID string    `gorm:"column:payment_account_id;size:128" json:"payment_account_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Experience struct {
	ID                   string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SupplierID           string             `gorm:"column:supplier_id;type:varchar(36);index" json:"supplier_id"`
	Title                string             `gorm:"size:255" json:"title"`
	PricingModel         PricingModel       `gorm:"column:pricing_model;size:32" json:"pricing_model"`
	PriceCents           int64              `gorm:"column:price_cents" json:"price_cents"`
	ExtraPersonCents     int64              `gorm:"column:extra_person_cents" json:"extra_person_cents"`
	IncludedParticipants int                `gorm:"column:included_participants" json:"included_participants"`
	MinParticipants      int                `gorm:"column:min_participants;default:1" json:"min_participants"`
	MaxParticipants      int                `gorm:"column:max_participants" json:"max_participants"`
	MinDays              int                `gorm:"column:min_days;default:1" json:"min_days"`
	Currency             string             `gorm:"size:3" json:"currency"`
	CancellationPolicy   CancellationPolicy `gorm:"column:cancellation_policy;size:32;default:moderate" json:"cancellation_policy"`
	DurationMinutes      int                `gorm:"column:duration_minutes" json:"duration_minutes"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// AvailabilityRule opens an experience on some weekdays between two times,
// optionally only inside a recurring season given as MM-DD bounds.
type AvailabilityRule struct {
	ID           uint                     `gorm:"primaryKey" json:"id"`
	ExperienceID string                   `gorm:"column:experience_id;type:varchar(36);index" json:"experience_id"`
	Weekdays     datatypes.JSONSlice[int] `gorm:"column:weekdays" json:"weekdays"`
	StartTime    string                   `gorm:"column:start_time;size:5" json:"start_time"`
	EndTime      string                   `gorm:"column:end_time;size:5" json:"end_time"`
	SeasonFrom   *string                  `gorm:"column:season_from;size:5" json:"season_from,omitempty"`
	SeasonUntil  *string                  `gorm:"column:season_until;size:5" json:"season_until,omitempty"`
}
