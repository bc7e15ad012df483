// Package repository holds the typed persistence ports and their gorm and in-memory implementations.
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"

	"experience-backend/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	ErrConflict  = errors.New("concurrent update")
)

type ExperienceRepository interface {
	GetExperience(ctx context.Context, id string) (models.Experience, error)
	ListAvailabilityRules(ctx context.Context, experienceID string) ([]models.AvailabilityRule, error)
	GetSupplier(ctx context.Context, id string) (models.Supplier, error)
	GetSupplierByPaymentAccount(ctx context.Context, accountID string) (models.Supplier, error)
	SetSupplierPayoutsEnabled(ctx context.Context, supplierID string, enabled bool) error
	GetChannel(ctx context.Context, id string) (models.Channel, error)
	ListChannels(ctx context.Context) ([]models.Channel, error)
}

type SessionRepository interface {
	GetSession(ctx context.Context, id string) (models.Session, error)
	CreateSession(ctx context.Context, s *models.Session) error
	DeleteSession(ctx context.Context, id string) error
	// TransitionSession moves the session to `to` only if its status is one of from.
	TransitionSession(ctx context.Context, id string, from []models.SessionStatus, to models.SessionStatus) (bool, error)
	// ListSessions returns sessions of an experience on or after fromDate with the given status.
	ListSessions(ctx context.Context, experienceID, fromDate string, status models.SessionStatus) ([]models.Session, error)
	// ReopenSession moves a booked session back to available with its full capacity.
	ReopenSession(ctx context.Context, id string) (bool, error)
	// TakeSpots lowers spots_available by n only while the session is available and has room.
	TakeSpots(ctx context.Context, id string, n int) (bool, error)
	// ReturnSpots gives n spots back, capped at spots_total.
	ReturnSpots(ctx context.Context, id string, n int) error
	// SessionHeld reports whether a confirmed booking or an approved reservation
	// still waiting for payment points at the session.
	SessionHeld(ctx context.Context, id string) (bool, error)
}

// ReservationPatch lists the columns a transition writes besides the status.
type ReservationPatch struct {
	Status           models.ReservationStatus
	SessionID        *string
	ResponseDeadline *time.Time
	PaymentDeadline  *time.Time
	PaymentLinkID    *string
	PaymentURL       *string
	ProposedSlots    []models.ProposedSlot
	SupplierMessage  *string
	DecidedAt        *time.Time
}

func (p ReservationPatch) columns() map[string]interface{} {
	cols := map[string]interface{}{"status": p.Status}
	if p.SessionID != nil {
		cols["session_id"] = *p.SessionID
	}
	if p.ResponseDeadline != nil {
		cols["response_deadline"] = *p.ResponseDeadline
	}
	if p.PaymentDeadline != nil {
		cols["payment_deadline"] = *p.PaymentDeadline
	}
	if p.PaymentLinkID != nil {
		cols["payment_link_id"] = *p.PaymentLinkID
	}
	if p.PaymentURL != nil {
		cols["payment_url"] = *p.PaymentURL
	}
	if p.ProposedSlots != nil {
		cols["proposed_slots"] = datatypes.JSONSlice[models.ProposedSlot](p.ProposedSlots)
	}
	if p.SupplierMessage != nil {
		cols["supplier_message"] = *p.SupplierMessage
	}
	if p.DecidedAt != nil {
		cols["decided_at"] = *p.DecidedAt
	}
	return cols
}

func (p ReservationPatch) apply(r *models.Reservation) {
	r.Status = p.Status
	if p.SessionID != nil {
		id := *p.SessionID
		r.SessionID = &id
	}
	if p.ResponseDeadline != nil {
		t := *p.ResponseDeadline
		r.ResponseDeadline = &t
	}
	if p.PaymentDeadline != nil {
		t := *p.PaymentDeadline
		r.PaymentDeadline = &t
	}
	if p.PaymentLinkID != nil {
		r.PaymentLinkID = *p.PaymentLinkID
	}
	if p.PaymentURL != nil {
		r.PaymentURL = *p.PaymentURL
	}
	if p.ProposedSlots != nil {
		r.ProposedSlots = append(datatypes.JSONSlice[models.ProposedSlot]{}, p.ProposedSlots...)
	}
	if p.SupplierMessage != nil {
		r.SupplierMessage = *p.SupplierMessage
	}
	if p.DecidedAt != nil {
		t := *p.DecidedAt
		r.DecidedAt = &t
	}
}

type ReservationRepository interface {
	CreateReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id string) (models.Reservation, error)
	// TransitionReservation applies patch only if the current status is one of from.
	TransitionReservation(ctx context.Context, id string, from []models.ReservationStatus, patch ReservationPatch) (bool, error)
	ListReservationsBySession(ctx context.Context, sessionID string, statuses []models.ReservationStatus) ([]models.Reservation, error)
	ListResponseOverdue(ctx context.Context, statuses []models.ReservationStatus, now time.Time) ([]models.Reservation, error)
	// ListPaymentOverdue returns approved reservations past their payment deadline that have no booking.
	ListPaymentOverdue(ctx context.Context, now time.Time) ([]models.Reservation, error)
	ListByStatus(ctx context.Context, status models.ReservationStatus) ([]models.Reservation, error)
}

type BookingPatch struct {
	Status      models.BookingStatus
	CancelledAt *time.Time
	CompletedAt *time.Time
}

func (p BookingPatch) columns() map[string]interface{} {
	cols := map[string]interface{}{"status": p.Status}
	if p.CancelledAt != nil {
		cols["cancelled_at"] = *p.CancelledAt
	}
	if p.CompletedAt != nil {
		cols["completed_at"] = *p.CompletedAt
	}
	return cols
}

func (p BookingPatch) apply(b *models.Booking) {
	b.Status = p.Status
	if p.CancelledAt != nil {
		t := *p.CancelledAt
		b.CancelledAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		b.CompletedAt = &t
	}
}

type BookingRepository interface {
	// CreateBooking returns ErrDuplicate when the reservation already has a booking.
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (models.Booking, error)
	BookingExistsForReservation(ctx context.Context, reservationID string) (bool, error)
	GetBookingByCharge(ctx context.Context, chargeID string) (models.Booking, error)
	TransitionBooking(ctx context.Context, id string, from models.BookingStatus, patch BookingPatch) (bool, error)
	SetBookingTransfer(ctx context.Context, id, transferID string) error
	// MarkCompletionCheckSent stamps the booking once; false if already stamped.
	MarkCompletionCheckSent(ctx context.Context, id string, at time.Time) (bool, error)
	// ListBookingsOnOrBefore returns bookings with the status whose experience date is <= date.
	ListBookingsOnOrBefore(ctx context.Context, status models.BookingStatus, date string) ([]models.Booking, error)
	ListBookingsAwaitingCompletionCheck(ctx context.Context, beforeDate string) ([]models.Booking, error)
}

type DistributionRepository interface {
	GetActiveDistribution(ctx context.Context, experienceID, channelID string) (models.Distribution, error)
	// ReplaceDistribution deactivates the pair's active rows and inserts d.
	ReplaceDistribution(ctx context.Context, d *models.Distribution) error
}

type PayoutRepository interface {
	ListPayableBookings(ctx context.Context, channelID, from, to string) ([]models.Booking, error)
	// CreatePayout inserts p and links the bookings; ErrConflict if any was already linked.
	CreatePayout(ctx context.Context, p *models.Payout, bookingIDs []string) error
}

type WebhookEventRepository interface {
	// RecordWebhookEvent returns ErrDuplicate for an already recorded event id.
	RecordWebhookEvent(ctx context.Context, e *models.WebhookEvent) error
}

// Store is everything the services need.
type Store interface {
	ExperienceRepository
	SessionRepository
	ReservationRepository
	BookingRepository
	DistributionRepository
	PayoutRepository
	WebhookEventRepository
}
