package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"experience-backend/gateways"
	"experience-backend/models"
	"experience-backend/protocols"
	"experience-backend/repository"
	"experience-backend/utils"
)

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type sentMail struct {
	To, Subject, HTML string
}

type mockMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *mockMailer) Send(_ context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, HTML: html})
	return nil
}

func (m *mockMailer) countTo(to string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.To == to {
			n++
		}
	}
	return n
}

type mockPublisher struct {
	mu     sync.Mutex
	events []protocols.DomainEvent
}

func (p *mockPublisher) Publish(_ context.Context, ev protocols.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *mockPublisher) count(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	store        *repository.MemoryStore
	payments     *gateways.MemoryPaymentGateway
	mailer       *mockMailer
	events       *mockPublisher
	notifier     *Notifier
	sessions     *SessionService
	approvals    *AutoApprovalService
	reservations *ReservationService
	settlement   *SettlementService
	expiration   *ExpirationService
	bookings     *BookingService
	payouts      *PayoutService
	distribution *DistributionService
	now          time.Time
}

const (
	supplierID   = "sup-1"
	channelID    = "chan-1"
	experienceID = "exp-1"
	guestEmail   = "guest@example.com"
	supplierMail = "supplier@example.com"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    repository.NewMemoryStore(),
		payments: gateways.NewMemoryPaymentGateway("whsec"),
		mailer:   &mockMailer{},
		events:   &mockPublisher{},
		now:      testNow,
	}
	clock := WithClock(func() time.Time { return f.now })
	signer, err := utils.NewActionSigner("secret", time.Hour)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	f.notifier = NewNotifier(f.mailer, f.events, signer, "https://app.local", clock)
	f.sessions = NewSessionService(f.store, clock)
	f.approvals = NewAutoApprovalService(f.store, f.payments, f.notifier, clock)
	f.reservations = NewReservationService(f.store, f.sessions, f.approvals, f.payments, f.notifier, clock)
	f.settlement = NewSettlementService(f.store, f.sessions, f.payments, f.notifier, clock)
	f.expiration = NewExpirationService(f.store, f.sessions, f.notifier, clock)
	f.bookings = NewBookingService(f.store, f.sessions, f.payments, f.notifier, clock)
	f.payouts = NewPayoutService(f.store, f.notifier, clock)
	f.distribution = NewDistributionService(f.store)

	f.store.PutSupplier(models.Supplier{ID: supplierID, Name: "Kayak Co", Email: supplierMail, PaymentAccountID: "acct_1", PayoutsEnabled: true})
	f.store.PutChannel(models.Channel{ID: channelID, Name: "Hotel Mar", Email: "hotel@example.com"})
	f.store.PutExperience(models.Experience{
		ID: experienceID, SupplierID: supplierID, Title: "Sunset kayak",
		PricingModel: models.PricingPerPerson, PriceCents: 5000, MinParticipants: 1, MaxParticipants: 8,
		Currency: "EUR", CancellationPolicy: models.PolicyModerate,
	}, models.AvailabilityRule{Weekdays: []int{0, 1, 2, 3, 4, 5, 6}, StartTime: "08:00", EndTime: "18:00"})
	f.store.PutDistribution(models.Distribution{
		ID: "dist-1", ExperienceID: experienceID, ChannelID: channelID,
		CommissionSupplier: 80, CommissionHotel: 12, CommissionPlatform: 8, IsActive: true,
	})
	return f
}

func (f *fixture) addSession(id, date string, minParticipants int) models.Session {
	s := models.Session{
		ID: id, ExperienceID: experienceID, Date: date, Time: "10:00",
		SpotsTotal: 8, SpotsAvailable: 8, MinParticipants: minParticipants, Status: models.SessionAvailable,
	}
	f.store.PutSession(s)
	return s
}

func sessionInput(sessionID string, participants int) CreateReservationInput {
	return CreateReservationInput{
		ExperienceID: experienceID, ChannelID: channelID, SessionID: sessionID,
		Participants: participants, TotalCents: int64(participants) * 5000,
		GuestName: "Ana", GuestEmail: guestEmail,
	}
}

func customInput(date, hhmm string, participants int) CreateReservationInput {
	return CreateReservationInput{
		ExperienceID: experienceID, ChannelID: channelID, RequestedDate: date, RequestedTime: hhmm,
		Participants: participants, TotalCents: int64(participants) * 5000,
		GuestName: "Ana", GuestEmail: guestEmail,
	}
}

// paidEvent builds the provider event for a reservation.
func paidEvent(eventID string, r models.Reservation) protocols.PaymentEvent {
	return protocols.PaymentEvent{
		ID: eventID, Type: protocols.EventPaymentSucceeded, ReservationID: r.ID,
		AmountCents: r.TotalCents, Currency: r.Currency, PaymentIntentID: "pi_" + r.ID, ChargeID: "ch_" + r.ID,
	}
}

func (f *fixture) book(t *testing.T, sessionID string, participants int) models.Booking {
	t.Helper()
	r, err := f.reservations.Create(context.Background(), sessionInput(sessionID, participants))
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	res, err := f.settlement.HandlePaymentSucceeded(context.Background(), paidEvent("evt_"+r.ID, r))
	if err != nil || res.Booking == nil {
		t.Fatalf("settle: %v", err)
	}
	return *res.Booking
}

var errBoom = errors.New("boom")
