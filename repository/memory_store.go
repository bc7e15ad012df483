package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"experience-backend/models"
)

// MemoryStore keeps every entity in maps behind one mutex. Conditional writes
// are atomic under the lock, which gives it the same claim semantics as the SQL store.
type MemoryStore struct {
	mu            sync.Mutex
	now           func() time.Time
	experiences   map[string]models.Experience
	rules         map[string][]models.AvailabilityRule
	suppliers     map[string]models.Supplier
	channels      map[string]models.Channel
	sessions      map[string]models.Session
	reservations  map[string]models.Reservation
	bookings      map[string]models.Booking
	distributions map[string]models.Distribution
	payouts       map[string]models.Payout
	events        map[string]models.WebhookEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           time.Now,
		experiences:   map[string]models.Experience{},
		rules:         map[string][]models.AvailabilityRule{},
		suppliers:     map[string]models.Supplier{},
		channels:      map[string]models.Channel{},
		sessions:      map[string]models.Session{},
		reservations:  map[string]models.Reservation{},
		bookings:      map[string]models.Booking{},
		distributions: map[string]models.Distribution{},
		payouts:       map[string]models.Payout{},
		events:        map[string]models.WebhookEvent{},
	}
}

// Seeding helpers, used by tests and local runs.

func (m *MemoryStore) PutExperience(e models.Experience, rules ...models.AvailabilityRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.experiences[e.ID] = e
	m.rules[e.ID] = append([]models.AvailabilityRule(nil), rules...)
}

func (m *MemoryStore) PutSupplier(s models.Supplier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppliers[s.ID] = s
}

func (m *MemoryStore) PutChannel(c models.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[c.ID] = c
}

func (m *MemoryStore) PutSession(s models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *MemoryStore) PutReservation(r models.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[r.ID] = r
}

func (m *MemoryStore) PutBooking(b models.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b
}

func (m *MemoryStore) PutDistribution(d models.Distribution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.distributions[d.ID] = d
}

// CountBookings is a test helper.
func (m *MemoryStore) CountBookings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

// ----- experiences -----

func (m *MemoryStore) GetExperience(_ context.Context, id string) (models.Experience, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiences[id]
	if !ok {
		return models.Experience{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryStore) ListAvailabilityRules(_ context.Context, experienceID string) ([]models.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AvailabilityRule(nil), m.rules[experienceID]...), nil
}

func (m *MemoryStore) GetSupplier(_ context.Context, id string) (models.Supplier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.suppliers[id]
	if !ok {
		return models.Supplier{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) GetSupplierByPaymentAccount(_ context.Context, accountID string) (models.Supplier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.suppliers {
		if s.PaymentAccountID == accountID {
			return s, nil
		}
	}
	return models.Supplier{}, ErrNotFound
}

func (m *MemoryStore) SetSupplierPayoutsEnabled(_ context.Context, supplierID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.suppliers[supplierID]
	if !ok {
		return ErrNotFound
	}
	s.PayoutsEnabled = enabled
	s.UpdatedAt = m.now()
	m.suppliers[supplierID] = s
	return nil
}

func (m *MemoryStore) GetChannel(_ context.Context, id string) (models.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[id]
	if !ok {
		return models.Channel{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) ListChannels(_ context.Context) ([]models.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Channel, 0, len(m.channels))
	for _, c := range m.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ----- sessions -----

func (m *MemoryStore) GetSession(_ context.Context, id string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return ErrDuplicate
	}
	now := m.now()
	s.CreatedAt, s.UpdatedAt = now, now
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) TransitionSession(_ context.Context, id string, from []models.SessionStatus, to models.SessionStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !containsSession(from, s.Status) {
		return false, nil
	}
	s.Status = to
	s.UpdatedAt = m.now()
	m.sessions[id] = s
	return true, nil
}

func (m *MemoryStore) ReopenSession(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != models.SessionBooked {
		return false, nil
	}
	s.Status = models.SessionAvailable
	s.SpotsAvailable = s.SpotsTotal
	s.UpdatedAt = m.now()
	m.sessions[id] = s
	return true, nil
}

func (m *MemoryStore) TakeSpots(_ context.Context, id string, n int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != models.SessionAvailable || s.SpotsAvailable < n {
		return false, nil
	}
	s.SpotsAvailable -= n
	s.UpdatedAt = m.now()
	m.sessions[id] = s
	return true, nil
}

func (m *MemoryStore) ReturnSpots(_ context.Context, id string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	s.SpotsAvailable += n
	if s.SpotsAvailable > s.SpotsTotal {
		s.SpotsAvailable = s.SpotsTotal
	}
	m.sessions[id] = s
	return nil
}

func (m *MemoryStore) SessionHeld(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.SessionID != nil && *b.SessionID == id && b.Status == models.BookingConfirmed {
			return true, nil
		}
	}
	for _, r := range m.reservations {
		if r.SessionID != nil && *r.SessionID == id && r.Status == models.ReservationApproved && !m.hasBookingLocked(r.ID) {
			return true, nil
		}
	}
	return false, nil
}

// hasBookingLocked expects m.mu to be held.
func (m *MemoryStore) hasBookingLocked(reservationID string) bool {
	for _, b := range m.bookings {
		if b.ReservationID == reservationID {
			return true
		}
	}
	return false
}

func (m *MemoryStore) ListSessions(_ context.Context, experienceID, fromDate string, status models.SessionStatus) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.sessions {
		if s.ExperienceID == experienceID && s.Date >= fromDate && s.Status == status {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

// ----- reservations -----

func (m *MemoryStore) CreateReservation(_ context.Context, r *models.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reservations[r.ID]; ok {
		return ErrDuplicate
	}
	now := m.now()
	r.CreatedAt, r.UpdatedAt = now, now
	m.reservations[r.ID] = *r
	return nil
}

func (m *MemoryStore) GetReservation(_ context.Context, id string) (models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return models.Reservation{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) TransitionReservation(_ context.Context, id string, from []models.ReservationStatus, patch ReservationPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok || !containsReservation(from, r.Status) {
		return false, nil
	}
	patch.apply(&r)
	r.UpdatedAt = m.now()
	m.reservations[id] = r
	return true, nil
}

func (m *MemoryStore) ListReservationsBySession(_ context.Context, sessionID string, statuses []models.ReservationStatus) ([]models.Reservation, error) {
	return m.filterReservations(func(r models.Reservation) bool {
		return r.SessionID != nil && *r.SessionID == sessionID && containsReservation(statuses, r.Status)
	}), nil
}

func (m *MemoryStore) ListResponseOverdue(_ context.Context, statuses []models.ReservationStatus, now time.Time) ([]models.Reservation, error) {
	return m.filterReservations(func(r models.Reservation) bool {
		return containsReservation(statuses, r.Status) && r.ResponseDeadline != nil && r.ResponseDeadline.Before(now)
	}), nil
}

func (m *MemoryStore) ListPaymentOverdue(_ context.Context, now time.Time) ([]models.Reservation, error) {
	return m.filterReservations(func(r models.Reservation) bool {
		return r.Status == models.ReservationApproved && r.PaymentDeadline != nil && r.PaymentDeadline.Before(now) &&
			!m.hasBookingLocked(r.ID)
	}), nil
}

func (m *MemoryStore) ListByStatus(_ context.Context, status models.ReservationStatus) ([]models.Reservation, error) {
	return m.filterReservations(func(r models.Reservation) bool { return r.Status == status }), nil
}

func (m *MemoryStore) filterReservations(keep func(models.Reservation) bool) []models.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reservation
	for _, r := range m.reservations {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ----- bookings -----

func (m *MemoryStore) CreateBooking(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range m.bookings {
		if existing.ReservationID == b.ReservationID {
			return ErrDuplicate
		}
	}
	now := m.now()
	b.CreatedAt, b.UpdatedAt = now, now
	m.bookings[b.ID] = *b
	return nil
}

func (m *MemoryStore) GetBooking(_ context.Context, id string) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return models.Booking{}, ErrNotFound
	}
	return b, nil
}

func (m *MemoryStore) BookingExistsForReservation(_ context.Context, reservationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasBookingLocked(reservationID), nil
}

func (m *MemoryStore) GetBookingByCharge(_ context.Context, chargeID string) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ChargeID == chargeID || b.PaymentIntentID == chargeID {
			return b, nil
		}
	}
	return models.Booking{}, ErrNotFound
}

func (m *MemoryStore) TransitionBooking(_ context.Context, id string, from models.BookingStatus, patch BookingPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	patch.apply(&b)
	b.UpdatedAt = m.now()
	m.bookings[id] = b
	return true, nil
}

func (m *MemoryStore) SetBookingTransfer(_ context.Context, id, transferID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.TransferID = transferID
	m.bookings[id] = b
	return nil
}

func (m *MemoryStore) MarkCompletionCheckSent(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.CompletionCheckSentAt != nil {
		return false, nil
	}
	b.CompletionCheckSentAt = &at
	m.bookings[id] = b
	return true, nil
}

func (m *MemoryStore) ListBookingsOnOrBefore(_ context.Context, status models.BookingStatus, date string) ([]models.Booking, error) {
	return m.filterBookings(func(b models.Booking) bool {
		return b.Status == status && b.ExperienceDate <= date
	}), nil
}

func (m *MemoryStore) ListBookingsAwaitingCompletionCheck(_ context.Context, beforeDate string) ([]models.Booking, error) {
	return m.filterBookings(func(b models.Booking) bool {
		return b.Status == models.BookingConfirmed && b.ExperienceDate < beforeDate && b.CompletionCheckSentAt == nil
	}), nil
}

func (m *MemoryStore) filterBookings(keep func(models.Booking) bool) []models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExperienceDate != out[j].ExperienceDate {
			return out[i].ExperienceDate < out[j].ExperienceDate
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ----- distributions -----

func (m *MemoryStore) GetActiveDistribution(_ context.Context, experienceID, channelID string) (models.Distribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.distributions {
		if d.ExperienceID == experienceID && d.ChannelID == channelID && d.IsActive {
			return d, nil
		}
	}
	return models.Distribution{}, ErrNotFound
}

func (m *MemoryStore) ReplaceDistribution(_ context.Context, d *models.Distribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.distributions[d.ID]; ok {
		return ErrDuplicate
	}
	for id, existing := range m.distributions {
		if existing.ExperienceID == d.ExperienceID && existing.ChannelID == d.ChannelID && existing.IsActive {
			existing.IsActive = false
			m.distributions[id] = existing
		}
	}
	now := m.now()
	d.CreatedAt, d.UpdatedAt = now, now
	m.distributions[d.ID] = *d
	return nil
}

// ----- payouts -----

func (m *MemoryStore) ListPayableBookings(_ context.Context, channelID, from, to string) ([]models.Booking, error) {
	return m.filterBookings(func(b models.Booking) bool {
		return b.ChannelID == channelID && b.Status == models.BookingCompleted && b.PayoutID == nil &&
			b.ExperienceDate >= from && b.ExperienceDate <= to
	}), nil
}

func (m *MemoryStore) CreatePayout(_ context.Context, p *models.Payout, bookingIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payouts[p.ID]; ok {
		return ErrDuplicate
	}
	for _, id := range bookingIDs {
		b, ok := m.bookings[id]
		if !ok || b.PayoutID != nil {
			return ErrConflict
		}
	}
	for _, id := range bookingIDs {
		b := m.bookings[id]
		pid := p.ID
		b.PayoutID = &pid
		m.bookings[id] = b
	}
	p.CreatedAt = m.now()
	m.payouts[p.ID] = *p
	return nil
}

// ----- webhook events -----

func (m *MemoryStore) RecordWebhookEvent(_ context.Context, e *models.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; ok {
		return ErrDuplicate
	}
	m.events[e.ID] = *e
	return nil
}

func containsSession(list []models.SessionStatus, s models.SessionStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsReservation(list []models.ReservationStatus, s models.ReservationStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*GormStore)(nil)
