package config

import (
	"log"

	"gorm.io/gorm"

	"experience-backend/commission"
	"experience-backend/models"
	"experience-backend/utils"
)

const (
	DemoSupplierID   = "00000000-0000-0000-0000-000000000001"
	DemoChannelID    = "00000000-0000-0000-0000-000000000002"
	DemoExperienceID = "00000000-0000-0000-0000-000000000003"
)

// SeedDatabase inserts one supplier, hotel channel and experience with a
// standard distribution, for local runs. Existing rows are left alone.
func SeedDatabase(db *gorm.DB) {
	var count int64
	db.Model(&models.Supplier{}).Count(&count)
	if count > 0 {
		log.Println("Demo data already seeded")
		return
	}

	supplier := models.Supplier{
		ID:               DemoSupplierID,
		Name:             "Demo Kayak Tours",
		Email:            utils.EnvOrDefault("DEMO_SUPPLIER_EMAIL", "supplier@example.com"),
		PaymentAccountID: "acct_demo",
		PayoutsEnabled:   true,
	}
	channel := models.Channel{
		ID:    DemoChannelID,
		Name:  "Demo Hotel",
		Email: utils.EnvOrDefault("DEMO_CHANNEL_EMAIL", "hotel@example.com"),
	}
	experience := models.Experience{
		ID:                 DemoExperienceID,
		SupplierID:         DemoSupplierID,
		Title:              "Sunset kayak tour",
		PricingModel:       models.PricingPerPerson,
		PriceCents:         4500,
		MinParticipants:    1,
		MaxParticipants:    8,
		MinDays:            1,
		Currency:           "EUR",
		CancellationPolicy: models.PolicyModerate,
		DurationMinutes:    120,
	}
	rule := models.AvailabilityRule{
		ExperienceID: DemoExperienceID,
		Weekdays:     []int{1, 2, 3, 4, 5, 6},
		StartTime:    "09:00",
		EndTime:      "19:00",
	}
	rates := commission.Standard
	distribution := models.Distribution{
		ID:                 "00000000-0000-0000-0000-000000000004",
		ExperienceID:       DemoExperienceID,
		ChannelID:          DemoChannelID,
		CommissionSupplier: rates.Supplier,
		CommissionHotel:    rates.Hotel,
		CommissionPlatform: rates.Platform,
		IsActive:           true,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, row := range []interface{}{&supplier, &channel, &experience, &rule, &distribution} {
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("warning: failed to seed demo data: %v", err)
		return
	}
	log.Println("Demo supplier, channel and experience seeded")
}
