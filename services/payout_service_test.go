package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"experience-backend/models"
	"experience-backend/utils"
)

func TestCreatePayoutSumsHotelShareOnce(t *testing.T) {
	f := newFixture(t)
	f.addSession("s1", "2026-06-20", 0)
	f.addSession("s2", "2026-06-21", 0)
	b1 := f.book(t, "s1", 2)
	b2 := f.book(t, "s2", 1)
	f.now = time.Date(2026, 6, 22, 9, 0, 0, 0, time.UTC)
	for _, b := range []models.Booking{b1, b2} {
		if _, err := f.bookings.Complete(context.Background(), b.ID, supplierID); err != nil {
			t.Fatalf("complete %s: %v", b.ID, err)
		}
	}

	payouts, err := f.payouts.CreatePayout(context.Background(), channelID, "2026-06-01", "2026-06-30")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(payouts) != 1 {
		t.Fatalf("expected one payout, got %d", len(payouts))
	}
	if payouts[0].AmountCents != 1800 || payouts[0].BookingCount != 2 || payouts[0].Currency != "EUR" {
		t.Fatalf("unexpected payout %+v", payouts[0])
	}

	again, err := f.payouts.CreatePayout(context.Background(), channelID, "2026-06-01", "2026-06-30")
	if err != nil || len(again) != 0 {
		t.Fatalf("expected nothing left to pay out, got %v (%v)", again, err)
	}
}

func TestCreatePayoutValidatesPeriod(t *testing.T) {
	f := newFixture(t)
	if _, err := f.payouts.CreatePayout(context.Background(), channelID, "2026-06-30", "2026-06-01"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.payouts.CreatePayout(context.Background(), "missing", "2026-06-01", "2026-06-30"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateMonthlyPayoutsCoversPreviousMonth(t *testing.T) {
	f := newFixture(t)
	f.store.PutBooking(models.Booking{ID: "b-may", ReservationID: "r-may", ChannelID: channelID, ExperienceDate: "2026-05-31",
		HotelAmountCents: 500, Currency: "EUR", Status: models.BookingCompleted})
	f.store.PutBooking(models.Booking{ID: "b-jun", ReservationID: "r-jun", ChannelID: channelID, ExperienceDate: "2026-06-01",
		HotelAmountCents: 700, Currency: "EUR", Status: models.BookingCompleted})

	res, err := f.payouts.CreateMonthlyPayouts(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Sent != 1 {
		t.Fatalf("expected one payout, got %+v", res)
	}
	may, _ := f.store.GetBooking(context.Background(), "b-may")
	jun, _ := f.store.GetBooking(context.Background(), "b-jun")
	if may.PayoutID == nil || jun.PayoutID != nil {
		t.Fatalf("expected only the May booking paid out")
	}
}

func TestDistributionPresets(t *testing.T) {
	f := newFixture(t)
	f.store.PutChannel(models.Channel{ID: "own", Name: "Own hotel"})
	f.store.PutSupplier(models.Supplier{ID: supplierID, Email: supplierMail, ChannelID: utils.PtrString("own")})

	d, err := f.distribution.Create(context.Background(), supplierID, experienceID, "own")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !d.IsSelfOwned || d.CommissionSupplier != 92 || d.CommissionHotel != 0 || d.CommissionPlatform != 8 {
		t.Fatalf("expected self-owned 92/0/8, got %+v", d)
	}

	replaced, err := f.distribution.Create(context.Background(), supplierID, experienceID, channelID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if replaced.IsSelfOwned || replaced.CommissionSupplier != 80 || replaced.CommissionHotel != 12 {
		t.Fatalf("expected standard 80/12/8, got %+v", replaced)
	}
	active, _ := f.store.GetActiveDistribution(context.Background(), experienceID, channelID)
	if active.ID != replaced.ID {
		t.Fatalf("expected new distribution active, got %s", active.ID)
	}

	if _, err := f.distribution.Create(context.Background(), "sup-other", experienceID, channelID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
