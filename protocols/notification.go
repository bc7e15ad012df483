package protocols

import (
	"context"
	"time"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Domain event types.
const (
	EventReservationCreated  = "reservation.created"
	EventReservationApproved = "reservation.approved"
	EventReservationDeclined = "reservation.declined"
	EventReservationProposed = "reservation.proposed"
	EventReservationExpired  = "reservation.expired"
	EventPaymentRefunded     = "payment.refunded"
	EventBookingConfirmed    = "booking.confirmed"
	EventBookingCancelled    = "booking.cancelled"
	EventBookingCompleted    = "booking.completed"
	EventPayoutCreated       = "payout.created"
)

type DomainEvent struct {
	Type       string                 `json:"type"`
	EntityID   string                 `json:"entity_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}
