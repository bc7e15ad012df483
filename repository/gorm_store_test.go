package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"experience-backend/models"
)

func newTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.Supplier{}, &models.Channel{}, &models.Experience{}, &models.AvailabilityRule{},
		&models.Session{}, &models.Reservation{}, &models.Booking{}, &models.Distribution{},
		&models.Payout{}, &models.WebhookEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestGormStoreClaimSession(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t, "claim"))
	if err := store.CreateSession(ctx, &models.Session{ID: "s1", ExperienceID: "e1", Date: "2026-06-01", Time: "10:00", Status: models.SessionAvailable}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TransitionSession(ctx, "s1", []models.SessionStatus{models.SessionAvailable}, models.SessionBooked)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestGormStoreDuplicateBooking(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t, "dupbooking"))
	if err := store.CreateBooking(ctx, &models.Booking{ID: "b1", ReservationID: "r1", Status: models.BookingConfirmed}); err != nil {
		t.Fatalf("create booking: %v", err)
	}
	err := store.CreateBooking(ctx, &models.Booking{ID: "b2", ReservationID: "r1", Status: models.BookingConfirmed})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	exists, err := store.BookingExistsForReservation(ctx, "r1")
	if err != nil || !exists {
		t.Fatalf("expected booking to exist, exists=%v err=%v", exists, err)
	}
}

func TestGormStoreReservationTransition(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t, "restransition"))
	deadline := time.Now().Add(-time.Hour)
	if err := store.CreateReservation(ctx, &models.Reservation{
		ID: "r1", ExperienceID: "e1", ChannelID: "c1", Participants: 2, Status: models.ReservationPending,
		ResponseDeadline: &deadline,
	}); err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	overdue, err := store.ListResponseOverdue(ctx, []models.ReservationStatus{models.ReservationPending}, time.Now())
	if err != nil || len(overdue) != 1 {
		t.Fatalf("expected one overdue reservation, got %d err=%v", len(overdue), err)
	}

	slots := []models.ProposedSlot{{Date: "2026-07-01", Time: "09:00"}}
	ok, err := store.TransitionReservation(ctx, "r1", []models.ReservationStatus{models.ReservationPending},
		ReservationPatch{Status: models.ReservationProposed, ProposedSlots: slots})
	if err != nil || !ok {
		t.Fatalf("expected transition, ok=%v err=%v", ok, err)
	}
	ok, err = store.TransitionReservation(ctx, "r1", []models.ReservationStatus{models.ReservationPending},
		ReservationPatch{Status: models.ReservationDeclined})
	if err != nil || ok {
		t.Fatalf("expected stale transition to be rejected, ok=%v err=%v", ok, err)
	}

	r, err := store.GetReservation(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Status != models.ReservationProposed || len(r.ProposedSlots) != 1 || r.ProposedSlots[0].Time != "09:00" {
		t.Fatalf("unexpected reservation: %+v", r)
	}
}

func TestGormStoreNotFound(t *testing.T) {
	store := NewGormStore(newTestDB(t, "notfound"))
	if _, err := store.GetReservation(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGormStoreDistributionReplace(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t, "distribution"))
	first := &models.Distribution{ID: "d1", ExperienceID: "e1", ChannelID: "c1", CommissionSupplier: 80, CommissionHotel: 12, CommissionPlatform: 8, IsActive: true}
	if err := store.ReplaceDistribution(ctx, first); err != nil {
		t.Fatalf("first: %v", err)
	}
	second := &models.Distribution{ID: "d2", ExperienceID: "e1", ChannelID: "c1", CommissionSupplier: 92, CommissionHotel: 0, CommissionPlatform: 8, IsActive: true}
	if err := store.ReplaceDistribution(ctx, second); err != nil {
		t.Fatalf("second: %v", err)
	}
	active, err := store.GetActiveDistribution(ctx, "e1", "c1")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.ID != "d2" {
		t.Fatalf("expected d2 active, got %s", active.ID)
	}
}

func TestGormStorePayout(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t, "payout"))
	for i, date := range []string{"2026-05-02", "2026-05-20", "2026-06-01"} {
		b := &models.Booking{
			ID: fmt.Sprintf("b%d", i), ReservationID: fmt.Sprintf("r%d", i), ChannelID: "c1",
			Status: models.BookingCompleted, ExperienceDate: date, HotelAmountCents: 1000,
		}
		if err := store.CreateBooking(ctx, b); err != nil {
			t.Fatalf("create booking: %v", err)
		}
	}
	payable, err := store.ListPayableBookings(ctx, "c1", "2026-05-01", "2026-05-31")
	if err != nil || len(payable) != 2 {
		t.Fatalf("expected 2 payable bookings, got %d err=%v", len(payable), err)
	}
	if err := store.CreatePayout(ctx, &models.Payout{ID: "p1", ChannelID: "c1", AmountCents: 2000}, []string{"b0", "b1"}); err != nil {
		t.Fatalf("create payout: %v", err)
	}
	if err := store.CreatePayout(ctx, &models.Payout{ID: "p2", ChannelID: "c1"}, []string{"b1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	b, _ := store.GetBooking(ctx, "b0")
	if b.PayoutID == nil || *b.PayoutID != "p1" {
		t.Fatalf("expected b0 linked to p1, got %v", b.PayoutID)
	}
}

func TestGormStoreTakeSpotsNeverOverbooks(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t, "takespots"))
	if err := store.CreateSession(ctx, &models.Session{ID: "g1", ExperienceID: "e1", Date: "2026-06-01", Time: "10:00",
		SpotsTotal: 8, SpotsAvailable: 8, MinParticipants: 4, Status: models.SessionAvailable}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TakeSpots(ctx, "g1", 2)
			if err != nil {
				t.Errorf("take spots: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 4 {
		t.Fatalf("expected four joins to fit, got %d", wins)
	}
	s, _ := store.GetSession(ctx, "g1")
	if s.SpotsAvailable != 0 {
		t.Fatalf("expected no spots left, got %d", s.SpotsAvailable)
	}

	if err := store.ReturnSpots(ctx, "g1", 10); err != nil {
		t.Fatalf("return spots: %v", err)
	}
	s, _ = store.GetSession(ctx, "g1")
	if s.SpotsAvailable != 8 {
		t.Fatalf("expected spots capped at 8, got %d", s.SpotsAvailable)
	}
}

func TestGormStoreReopenSession(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t, "reopen"))
	if err := store.CreateSession(ctx, &models.Session{ID: "s1", ExperienceID: "e1", Date: "2026-06-01", Time: "10:00",
		SpotsTotal: 6, SpotsAvailable: 2, Status: models.SessionBooked}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	ok, err := store.ReopenSession(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("expected reopen, ok=%v err=%v", ok, err)
	}
	s, _ := store.GetSession(ctx, "s1")
	if s.Status != models.SessionAvailable || s.SpotsAvailable != 6 {
		t.Fatalf("expected available with 6 spots, got %s %d", s.Status, s.SpotsAvailable)
	}
	if ok, _ := store.ReopenSession(ctx, "s1"); ok {
		t.Fatalf("expected second reopen to be a no-op")
	}
}

func TestGormStoreSessionHeld(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t, "held"))
	session := "s1"

	held, err := store.SessionHeld(ctx, session)
	if err != nil || held {
		t.Fatalf("expected free session, held=%v err=%v", held, err)
	}

	// Paid: the approved reservation has a booking, so only the booking status counts.
	store.CreateReservation(ctx, &models.Reservation{ID: "r1", SessionID: &session, Status: models.ReservationApproved})
	store.CreateBooking(ctx, &models.Booking{ID: "b1", ReservationID: "r1", SessionID: &session, Status: models.BookingCancelled})
	if held, _ := store.SessionHeld(ctx, session); held {
		t.Fatalf("expected cancelled booking not to hold the session")
	}

	store.CreateReservation(ctx, &models.Reservation{ID: "r2", SessionID: &session, Status: models.ReservationApproved})
	if held, _ := store.SessionHeld(ctx, session); !held {
		t.Fatalf("expected unpaid approval to hold the session")
	}
}

func TestGormStorePaymentOverdueSkipsPaid(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t, "overdue"))
	deadline := time.Now().Add(-time.Hour)
	for _, id := range []string{"r1", "r2"} {
		if err := store.CreateReservation(ctx, &models.Reservation{ID: id, Status: models.ReservationApproved, PaymentDeadline: &deadline}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	store.CreateBooking(ctx, &models.Booking{ID: "b1", ReservationID: "r1", Status: models.BookingConfirmed})

	overdue, err := store.ListPaymentOverdue(ctx, time.Now())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ID != "r2" {
		t.Fatalf("expected only r2, got %+v", overdue)
	}
}
