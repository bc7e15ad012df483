package models

import "fmt"

type ReservationStatus string

const (
	ReservationPending        ReservationStatus = "pending"
	ReservationPendingMinimum ReservationStatus = "pending_minimum"
	ReservationProposed       ReservationStatus = "proposed"
	ReservationApproved       ReservationStatus = "approved"
	ReservationDeclined       ReservationStatus = "declined"
	ReservationExpired        ReservationStatus = "expired"
)

// reservationTransitions is the forward-only lifecycle of a reservation.
// Payment does not move the reservation: the Booking row takes over.
var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending:        {ReservationApproved, ReservationProposed, ReservationDeclined, ReservationExpired},
	ReservationPendingMinimum: {ReservationApproved, ReservationExpired},
	ReservationProposed:       {ReservationApproved, ReservationDeclined, ReservationExpired},
	ReservationApproved:       {ReservationExpired},
	ReservationDeclined:       {},
	ReservationExpired:        {},
}

func (s ReservationStatus) IsValid() bool {
	_, ok := reservationTransitions[s]
	return ok
}

// CanTransitionTo reports whether target is a legal next state.
func (s ReservationStatus) CanTransitionTo(target ReservationStatus) bool {
	for _, t := range reservationTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s ReservationStatus) IsTerminal() bool {
	return len(reservationTransitions[s]) == 0
}

// AwaitsDecision is true while the supplier or guest still has to answer.
func (s ReservationStatus) AwaitsDecision() bool {
	return s == ReservationPending || s == ReservationProposed
}

func ParseReservationStatus(s string) (ReservationStatus, error) {
	status := ReservationStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid reservation status: %s", s)
	}
	return status, nil
}

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingConfirmed: {BookingCompleted, BookingCancelled},
	BookingCompleted: {},
	BookingCancelled: {},
}

func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range bookingTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

type SessionStatus string

const (
	SessionAvailable SessionStatus = "available"
	SessionBooked    SessionStatus = "booked"
	SessionFull      SessionStatus = "full"
	SessionCancelled SessionStatus = "cancelled"
)
