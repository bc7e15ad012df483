package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"experience-backend/models"
)

func TestCreateSessionReservationBooksInstantly(t *testing.T) {
	f := newFixture(t)
	f.addSession("s1", "2026-06-20", 0)

	r, err := f.reservations.Create(context.Background(), sessionInput("s1", 2))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if r.Status != models.ReservationApproved {
		t.Fatalf("expected approved, got %s", r.Status)
	}
	if r.PaymentURL == "" || r.PaymentDeadline == nil {
		t.Fatalf("expected payment link and deadline, got %+v", r)
	}
	if !r.PaymentDeadline.Equal(testNow.Add(24 * time.Hour)) {
		t.Fatalf("expected deadline 24h from now, got %v", r.PaymentDeadline)
	}
	session, _ := f.store.GetSession(context.Background(), "s1")
	if session.Status != models.SessionBooked {
		t.Fatalf("expected session booked, got %s", session.Status)
	}
	if f.mailer.countTo(guestEmail) != 1 {
		t.Fatalf("expected one guest email, got %d", f.mailer.countTo(guestEmail))
	}
}

func TestConcurrentReservationsClaimSessionOnce(t *testing.T) {
	f := newFixture(t)
	f.addSession("s1", "2026-06-20", 0)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.reservations.Create(context.Background(), sessionInput("s1", 1))
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSessionUnavailable):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}
	if len(f.payments.Links) != 1 {
		t.Fatalf("expected one payment link, got %d", len(f.payments.Links))
	}
}

func TestPaymentLinkFailureReopensSession(t *testing.T) {
	f := newFixture(t)
	f.addSession("s1", "2026-06-20", 0)
	f.payments.LinkErr = errBoom

	_, err := f.reservations.Create(context.Background(), sessionInput("s1", 1))
	if !errors.Is(err, ErrPaymentProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	session, _ := f.store.GetSession(context.Background(), "s1")
	if session.Status != models.SessionAvailable {
		t.Fatalf("expected session available again, got %s", session.Status)
	}
}

func TestCreateRejectsPriceMismatch(t *testing.T) {
	f := newFixture(t)
	f.addSession("s1", "2026-06-20", 0)

	in := sessionInput("s1", 2)
	in.TotalCents = 9000
	if _, err := f.reservations.Create(context.Background(), in); !errors.Is(err, ErrPriceMismatch) {
		t.Fatalf("expected price mismatch, got %v", err)
	}
	session, _ := f.store.GetSession(context.Background(), "s1")
	if session.Status != models.SessionAvailable {
		t.Fatalf("expected session untouched, got %s", session.Status)
	}

	in.TotalCents = 10001
	if _, err := f.reservations.Create(context.Background(), in); err != nil {
		t.Fatalf("expected one cent tolerance, got %v", err)
	}
}

func TestCreateRequiresActiveDistribution(t *testing.T) {
	f := newFixture(t)
	f.store.PutChannel(models.Channel{ID: "chan-2", Name: "Other"})
	f.addSession("s1", "2026-06-20", 0)

	in := sessionInput("s1", 1)
	in.ChannelID = "chan-2"
	if _, err := f.reservations.Create(context.Background(), in); !errors.Is(err, ErrNoActiveDistribution) {
		t.Fatalf("expected no active distribution, got %v", err)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	cases := map[string]func(*CreateReservationInput){
		"bad email":     func(in *CreateReservationInput) { in.GuestEmail = "nope" },
		"no name":       func(in *CreateReservationInput) { in.GuestName = " " },
		"no party":      func(in *CreateReservationInput) { in.Participants = 0 },
		"both paths":    func(in *CreateReservationInput) { in.SessionID = "s1" },
		"half a slot":   func(in *CreateReservationInput) { in.RequestedTime = "" },
		"past date":     func(in *CreateReservationInput) { in.RequestedDate = "2026-05-01" },
		"malformed day": func(in *CreateReservationInput) { in.RequestedDate = "20-06-2026" },
	}
	for name, mutate := range cases {
		in := customInput("2026-06-20", "10:00", 2)
		mutate(&in)
		if _, err := f.reservations.Create(context.Background(), in); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestCustomRequestIsPending(t *testing.T) {
	f := newFixture(t)

	r, err := f.reservations.Create(context.Background(), customInput("2026-06-20", "10:00", 2))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if r.Status != models.ReservationPending {
		t.Fatalf("expected pending, got %s", r.Status)
	}
	if r.ResponseDeadline == nil || !r.ResponseDeadline.Equal(testNow.Add(48*time.Hour)) {
		t.Fatalf("expected 48h response deadline, got %v", r.ResponseDeadline)
	}
	if f.mailer.countTo(supplierMail) != 1 {
		t.Fatalf("expected supplier email, got %d", f.mailer.countTo(supplierMail))
	}
}

func TestCustomRequestOutsideAvailability(t *testing.T) {
	f := newFixture(t)

	_, err := f.reservations.Create(context.Background(), customInput("2026-06-20", "20:00", 2))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAcceptRequiresOnboardedSupplier(t *testing.T) {
	f := newFixture(t)
	f.store.PutSupplier(models.Supplier{ID: supplierID, Email: supplierMail, PayoutsEnabled: false})
	r, err := f.reservations.Create(context.Background(), customInput("2026-06-20", "10:00", 2))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.reservations.Accept(context.Background(), r.ID, supplierID, nil); !errors.Is(err, ErrSupplierNotOnboarded) {
		t.Fatalf("expected not onboarded, got %v", err)
	}
	stored, _ := f.store.GetReservation(context.Background(), r.ID)
	if stored.Status != models.ReservationPending {
		t.Fatalf("expected still pending, got %s", stored.Status)
	}
}

func TestAcceptCreatesPrivateSessionOnce(t *testing.T) {
	f := newFixture(t)
	r, err := f.reservations.Create(context.Background(), customInput("2026-06-20", "10:00", 2))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := f.reservations.Accept(context.Background(), r.ID, supplierID, nil)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.AlreadyProcessed || res.Reservation.Status != models.ReservationApproved {
		t.Fatalf("expected fresh approval, got %+v", res)
	}
	if res.Reservation.SessionID == nil {
		t.Fatalf("expected a private session")
	}
	session, err := f.store.GetSession(context.Background(), *res.Reservation.SessionID)
	if err != nil || !session.IsPrivate || session.Status != models.SessionBooked {
		t.Fatalf("expected booked private session, got %+v (%v)", session, err)
	}

	again, err := f.reservations.Accept(context.Background(), r.ID, "", nil)
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if !again.AlreadyProcessed {
		t.Fatalf("expected already processed")
	}
	if len(f.payments.Links) != 1 {
		t.Fatalf("expected one payment link, got %d", len(f.payments.Links))
	}
}

func TestAcceptByOtherSupplierForbidden(t *testing.T) {
	f := newFixture(t)
	r, _ := f.reservations.Create(context.Background(), customInput("2026-06-20", "10:00", 2))

	if _, err := f.reservations.Accept(context.Background(), r.ID, "sup-other", nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestDeclineThenAcceptIsNoop(t *testing.T) {
	f := newFixture(t)
	r, _ := f.reservations.Create(context.Background(), customInput("2026-06-20", "10:00", 2))

	res, err := f.reservations.Decline(context.Background(), r.ID, supplierID, "  fully booked ")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if res.Reservation.Status != models.ReservationDeclined || res.Reservation.SupplierMessage != "fully booked" {
		t.Fatalf("expected declined with message, got %+v", res.Reservation)
	}
	again, err := f.reservations.Accept(context.Background(), r.ID, supplierID, nil)
	if err != nil || !again.AlreadyProcessed {
		t.Fatalf("expected already processed, got %+v (%v)", again, err)
	}
}

func TestProposeAndRespond(t *testing.T) {
	f := newFixture(t)
	r, _ := f.reservations.Create(context.Background(), customInput("2026-06-20", "10:00", 2))
	slots := []models.ProposedSlot{{Date: "2026-06-21", Time: "09:00"}, {Date: "2026-06-22", Time: "11:00"}}

	res, err := f.reservations.Propose(context.Background(), r.ID, supplierID, slots, "how about these?")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if res.Reservation.Status != models.ReservationProposed || len(res.Reservation.ProposedSlots) != 2 {
		t.Fatalf("expected proposed with two slots, got %+v", res.Reservation)
	}

	if _, err := f.reservations.RespondToProposal(context.Background(), r.ID, true, 2); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expected invalid slot, got %v", err)
	}
	if _, err := f.reservations.RespondToProposal(context.Background(), r.ID, true, -1); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expected invalid slot, got %v", err)
	}

	accepted, err := f.reservations.RespondToProposal(context.Background(), r.ID, true, 1)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	session, _ := f.store.GetSession(context.Background(), *accepted.Reservation.SessionID)
	if session.Date != "2026-06-22" || session.Time != "11:00" {
		t.Fatalf("expected chosen slot, got %s %s", session.Date, session.Time)
	}
}

func TestProposeLimitsSlots(t *testing.T) {
	f := newFixture(t)
	r, _ := f.reservations.Create(context.Background(), customInput("2026-06-20", "10:00", 2))

	if _, err := f.reservations.Propose(context.Background(), r.ID, supplierID, nil, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for no slots, got %v", err)
	}
	six := make([]models.ProposedSlot, 6)
	for i := range six {
		six[i] = models.ProposedSlot{Date: "2026-06-21", Time: "09:00"}
	}
	if _, err := f.reservations.Propose(context.Background(), r.ID, supplierID, six, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for six slots, got %v", err)
	}
}

func TestGuestDeclinesProposal(t *testing.T) {
	f := newFixture(t)
	r, _ := f.reservations.Create(context.Background(), customInput("2026-06-20", "10:00", 2))
	f.reservations.Propose(context.Background(), r.ID, supplierID, []models.ProposedSlot{{Date: "2026-06-21", Time: "09:00"}}, "")

	res, err := f.reservations.RespondToProposal(context.Background(), r.ID, false, 0)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if res.Reservation.Status != models.ReservationDeclined {
		t.Fatalf("expected declined, got %s", res.Reservation.Status)
	}
}

func TestGroupSessionApprovesAtMinimum(t *testing.T) {
	f := newFixture(t)
	f.addSession("g1", "2026-06-20", 4)

	first, err := f.reservations.Create(context.Background(), sessionInput("g1", 2))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Status != models.ReservationPendingMinimum {
		t.Fatalf("expected pending_minimum, got %s", first.Status)
	}

	second, err := f.reservations.Create(context.Background(), sessionInput("g1", 2))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Status != models.ReservationApproved {
		t.Fatalf("expected approved, got %s", second.Status)
	}
	stored, _ := f.store.GetReservation(context.Background(), first.ID)
	if stored.Status != models.ReservationApproved {
		t.Fatalf("expected first approved too, got %s", stored.Status)
	}
	session, _ := f.store.GetSession(context.Background(), "g1")
	if session.Status != models.SessionBooked {
		t.Fatalf("expected session booked, got %s", session.Status)
	}
}

func TestGroupSessionRejectsOverCapacity(t *testing.T) {
	f := newFixture(t)
	f.addSession("g1", "2026-06-20", 6)

	if _, err := f.reservations.Create(context.Background(), sessionInput("g1", 5)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := f.reservations.Create(context.Background(), sessionInput("g1", 4)); !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestConcurrentGroupJoinsRespectCapacity(t *testing.T) {
	f := newFixture(t)
	f.addSession("g1", "2026-06-20", 8)

	var wg sync.WaitGroup
	var mu sync.Mutex
	joined, rejected := 0, 0
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reservations.Create(context.Background(), sessionInput("g1", 2))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case errors.Is(err, ErrSessionUnavailable):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if joined != 4 || rejected != 2 {
		t.Fatalf("expected 4 joined and 2 rejected, got %d and %d", joined, rejected)
	}
	session, _ := f.store.GetSession(context.Background(), "g1")
	if session.SpotsAvailable != 0 {
		t.Fatalf("expected no spots left, got %d", session.SpotsAvailable)
	}
}

func TestQuoteUsesSessionOverride(t *testing.T) {
	f := newFixture(t)
	override := int64(4000)
	f.store.PutSession(models.Session{ID: "s1", ExperienceID: experienceID, Date: "2026-06-20", Time: "10:00",
		SpotsTotal: 8, SpotsAvailable: 8, PriceOverrideCents: &override, Status: models.SessionAvailable})

	q, err := f.reservations.Quote(context.Background(), experienceID, "s1", 3, 0)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.TotalCents != 12000 {
		t.Fatalf("expected 12000, got %d", q.TotalCents)
	}
}
