package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"experience-backend/models"
	"experience-backend/protocols"
)

func TestCheckCancellationWindows(t *testing.T) {
	cases := []struct {
		policy models.CancellationPolicy
		days   int
		ok     bool
	}{
		{models.PolicyFlexible, 0, false},
		{models.PolicyFlexible, 1, true},
		{models.PolicyModerate, 3, false},
		{models.PolicyModerate, 6, false},
		{models.PolicyModerate, 7, true},
		{models.PolicyModerate, 8, true},
		{models.PolicyStrict, 13, false},
		{models.PolicyStrict, 14, true},
		{models.PolicyNonRefundable, 365, false},
		{"", 30, false},
	}
	for _, tc := range cases {
		err := CheckCancellation(tc.policy, tc.days)
		if tc.ok && err != nil {
			t.Fatalf("%s at %d days: expected allowed, got %v", tc.policy, tc.days, err)
		}
		if !tc.ok && !errors.Is(err, ErrOutsideCancellationWindow) {
			t.Fatalf("%s at %d days: expected outside window, got %v", tc.policy, tc.days, err)
		}
	}
}

func TestDaysUntilCountsCalendarDays(t *testing.T) {
	days, err := DaysUntil("2026-03-28", "2026-04-04")
	if err != nil || days != 7 {
		t.Fatalf("expected 7, got %d (%v)", days, err)
	}
	if _, err := DaysUntil("2026-03-28", "04/04/2026"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestCancelByGuestAppliesPolicy(t *testing.T) {
	cases := []struct {
		today string
		ok    bool
	}{
		{"2026-06-17", false},
		{"2026-06-13", true},
		{"2026-06-12", true},
	}
	for _, tc := range cases {
		f := newFixture(t)
		f.addSession("s1", "2026-06-20", 0)
		b := f.book(t, "s1", 1)
		today, _ := time.Parse("2006-01-02", tc.today)
		f.now = today.Add(9 * time.Hour)

		res, err := f.bookings.CancelByGuest(context.Background(), b.ID)
		if !tc.ok {
			if !errors.Is(err, ErrOutsideCancellationWindow) {
				t.Fatalf("%s: expected outside window, got %v", tc.today, err)
			}
			if len(f.payments.Refunds) != 0 {
				t.Fatalf("%s: expected no refund", tc.today)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: expected cancellation, got %v", tc.today, err)
		}
		if res.Booking.Status != models.BookingCancelled {
			t.Fatalf("%s: expected cancelled, got %s", tc.today, res.Booking.Status)
		}
		if len(f.payments.Refunds) != 1 || f.payments.Refunds[0] != b.ChargeID {
			t.Fatalf("%s: expected refund of %s, got %v", tc.today, b.ChargeID, f.payments.Refunds)
		}
	}
}

func TestCancelToleratesAlreadyRefunded(t *testing.T) {
	f := newFixture(t)
	f.addSession("s1", "2026-06-20", 0)
	b := f.book(t, "s1", 1)
	f.payments.MarkRefunded(b.ChargeID)

	res, err := f.bookings.CancelBySupplier(context.Background(), b.ID, supplierID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Booking.Status != models.BookingCancelled {
		t.Fatalf("expected cancelled, got %s", res.Booking.Status)
	}
	again, err := f.bookings.CancelBySupplier(context.Background(), b.ID, supplierID)
	if err != nil || !again.AlreadyProcessed {
		t.Fatalf("expected already processed, got %+v (%v)", again, err)
	}
}

func TestCancelKeepsBookingWhenRefundFails(t *testing.T) {
	f := newFixture(t)
	f.addSession("s1", "2026-06-20", 0)
	b := f.book(t, "s1", 1)
	f.payments.RefundErr = errBoom

	if _, err := f.bookings.CancelBySupplier(context.Background(), b.ID, supplierID); !errors.Is(err, ErrPaymentProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	stored, _ := f.store.GetBooking(context.Background(), b.ID)
	if stored.Status != models.BookingConfirmed {
		t.Fatalf("expected still confirmed, got %s", stored.Status)
	}
}

func TestCancelPrivateSessionIsDeleted(t *testing.T) {
	f := newFixture(t)
	r, _ := f.reservations.Create(context.Background(), customInput("2026-06-20", "10:00", 2))
	accepted, err := f.reservations.Accept(context.Background(), r.ID, supplierID, nil)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	res, err := f.settlement.HandlePaymentSucceeded(context.Background(), paidEvent("evt_1", accepted.Reservation))
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if _, err := f.bookings.ReportNoExperience(context.Background(), res.Booking.ID, supplierID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := f.store.GetSession(context.Background(), *accepted.Reservation.SessionID); err == nil {
		t.Fatalf("expected private session deleted")
	}
}

func TestCompleteTransfersSupplierShare(t *testing.T) {
	f := newFixture(t)
	f.addSession("s1", "2026-06-20", 0)
	b := f.book(t, "s1", 2)

	if _, err := f.bookings.Complete(context.Background(), b.ID, supplierID); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected future booking rejected, got %v", err)
	}

	f.now = time.Date(2026, 6, 21, 9, 0, 0, 0, time.UTC)
	res, err := f.bookings.Complete(context.Background(), b.ID, supplierID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Booking.Status != models.BookingCompleted {
		t.Fatalf("expected completed, got %s", res.Booking.Status)
	}
	if len(f.payments.Transfers) != 1 {
		t.Fatalf("expected one transfer, got %d", len(f.payments.Transfers))
	}
	tr := f.payments.Transfers[0]
	if tr.AmountCents != 8000 || tr.DestinationAccount != "acct_1" || tr.IdempotencyKey != "transfer-"+b.ID {
		t.Fatalf("unexpected transfer %+v", tr)
	}
	stored, _ := f.store.GetBooking(context.Background(), b.ID)
	if stored.TransferID == "" {
		t.Fatalf("expected transfer id recorded")
	}
}

func TestCompleteSurvivesTransferFailure(t *testing.T) {
	f := newFixture(t)
	f.addSession("s1", "2026-06-20", 0)
	b := f.book(t, "s1", 1)
	f.payments.TransferErr = errBoom
	f.now = time.Date(2026, 6, 21, 9, 0, 0, 0, time.UTC)

	res, err := f.bookings.Complete(context.Background(), b.ID, "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	stored, _ := f.store.GetBooking(context.Background(), b.ID)
	if stored.Status != models.BookingCompleted || res.Booking.TransferID != "" {
		t.Fatalf("expected completed without transfer, got %+v", stored)
	}
}

func TestAutoCompletePast(t *testing.T) {
	f := newFixture(t)
	f.addSession("s1", "2026-06-20", 0)
	f.addSession("s2", "2026-06-25", 0)
	f.book(t, "s1", 1)
	f.book(t, "s2", 1)

	f.now = time.Date(2026, 6, 28, 3, 0, 0, 0, time.UTC)
	res, err := f.bookings.AutoCompletePast(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Completed != 1 {
		t.Fatalf("expected one completed, got %+v", res)
	}
}

func TestSendCompletionChecksOnce(t *testing.T) {
	f := newFixture(t)
	f.addSession("s1", "2026-06-20", 0)
	f.book(t, "s1", 1)
	before := f.mailer.countTo(supplierMail)

	f.now = time.Date(2026, 6, 21, 9, 0, 0, 0, time.UTC)
	res, err := f.bookings.SendCompletionChecks(context.Background())
	if err != nil || res.Sent != 1 {
		t.Fatalf("expected one check sent, got %+v (%v)", res, err)
	}
	res, _ = f.bookings.SendCompletionChecks(context.Background())
	if res.Sent != 0 {
		t.Fatalf("expected no second check, got %d", res.Sent)
	}
	if got := f.mailer.countTo(supplierMail) - before; got != 1 {
		t.Fatalf("expected one supplier email, got %d", got)
	}
}

// bookGroup fills a group session with two guests of two and settles both.
func (f *fixture) bookGroup(t *testing.T, sessionID string) (models.Booking, models.Booking) {
	t.Helper()
	f.addSession(sessionID, "2026-06-20", 4)
	a, err := f.reservations.Create(context.Background(), sessionInput(sessionID, 2))
	if err != nil {
		t.Fatalf("guest a: %v", err)
	}
	b, err := f.reservations.Create(context.Background(), sessionInput(sessionID, 2))
	if err != nil {
		t.Fatalf("guest b: %v", err)
	}
	var bookings []models.Booking
	for _, id := range []string{a.ID, b.ID} {
		r, _ := f.store.GetReservation(context.Background(), id)
		if r.Status != models.ReservationApproved {
			t.Fatalf("expected %s approved, got %s", id, r.Status)
		}
		res, err := f.settlement.HandlePaymentSucceeded(context.Background(), paidEvent("evt_"+id, r))
		if err != nil || res.Booking == nil {
			t.Fatalf("settle %s: %v", id, err)
		}
		bookings = append(bookings, *res.Booking)
	}
	return bookings[0], bookings[1]
}

func TestCancelOneGroupBookingKeepsSession(t *testing.T) {
	f := newFixture(t)
	a, b := f.bookGroup(t, "g1")

	if _, err := f.bookings.CancelByGuest(context.Background(), a.ID); err != nil {
		t.Fatalf("cancel a: %v", err)
	}
	session, _ := f.store.GetSession(context.Background(), "g1")
	if session.Status != models.SessionBooked {
		t.Fatalf("expected session kept for the other guest, got %s", session.Status)
	}
	other, _ := f.store.GetBooking(context.Background(), b.ID)
	if other.Status != models.BookingConfirmed {
		t.Fatalf("expected other booking confirmed, got %s", other.Status)
	}

	if _, err := f.bookings.CancelByGuest(context.Background(), b.ID); err != nil {
		t.Fatalf("cancel b: %v", err)
	}
	session, _ = f.store.GetSession(context.Background(), "g1")
	if session.Status != models.SessionCancelled {
		t.Fatalf("expected session cancelled once orphaned, got %s", session.Status)
	}
}

func TestRefundOfOneGroupBookingKeepsSession(t *testing.T) {
	f := newFixture(t)
	a, _ := f.bookGroup(t, "g1")

	if _, err := f.settlement.HandleRefund(context.Background(), protocols.PaymentEvent{ID: "evt_r", Type: protocols.EventChargeRefunded, ChargeID: a.ChargeID}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	session, _ := f.store.GetSession(context.Background(), "g1")
	if session.Status != models.SessionBooked {
		t.Fatalf("expected session kept, got %s", session.Status)
	}
}

func TestCancelSingleBookingReleasesSession(t *testing.T) {
	f := newFixture(t)
	f.addSession("s1", "2026-06-20", 0)
	b := f.book(t, "s1", 1)

	if _, err := f.bookings.CancelByGuest(context.Background(), b.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	session, _ := f.store.GetSession(context.Background(), "s1")
	if session.Status != models.SessionCancelled {
		t.Fatalf("expected cancelled, got %s", session.Status)
	}
}
