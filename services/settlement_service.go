package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"experience-backend/commission"
	"experience-backend/models"
	"experience-backend/protocols"
	"experience-backend/repository"
	"experience-backend/utils"
)

type SettlementResult struct {
	Booking          *models.Booking `json:"booking,omitempty"`
	AlreadyProcessed bool            `json:"already_processed"`
	Ignored          bool            `json:"ignored,omitempty"`
	Refunded         bool            `json:"refunded,omitempty"`
}

// SettlementService turns verified payment provider events into bookings and
// keeps bookings and suppliers in step with the provider.
type SettlementService struct {
	store    repository.Store
	sessions *SessionService
	payments protocols.PaymentGateway
	notifier *Notifier
	options
}

func NewSettlementService(store repository.Store, sessions *SessionService, payments protocols.PaymentGateway, notifier *Notifier, opts ...Option) *SettlementService {
	return &SettlementService{store: store, sessions: sessions, payments: payments, notifier: notifier, options: newOptions(opts)}
}

// Dispatch routes an event by type. Unknown types are acknowledged and ignored.
func (s *SettlementService) Dispatch(ctx context.Context, ev protocols.PaymentEvent) (SettlementResult, error) {
	switch ev.Type {
	case protocols.EventPaymentSucceeded, protocols.EventCheckoutCompleted:
		return s.HandlePaymentSucceeded(ctx, ev)
	case protocols.EventPaymentFailed:
		return SettlementResult{}, s.HandlePaymentFailed(ctx, ev)
	case protocols.EventChargeRefunded:
		return s.HandleRefund(ctx, ev)
	case protocols.EventAccountUpdated:
		return SettlementResult{}, s.HandleAccountUpdated(ctx, ev)
	case protocols.EventTransferCreated:
		return SettlementResult{}, s.HandleTransferCreated(ctx, ev)
	}
	return SettlementResult{Ignored: true}, nil
}

// HandlePaymentSucceeded creates the booking for a paid reservation. The
// existence check and the unique reservation_id index make re-deliveries no-ops.
func (s *SettlementService) HandlePaymentSucceeded(ctx context.Context, ev protocols.PaymentEvent) (SettlementResult, error) {
	if ev.ReservationID == "" {
		return SettlementResult{}, validationf("payment event %s has no reservation_id", ev.ID)
	}
	exists, err := s.store.BookingExistsForReservation(ctx, ev.ReservationID)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("check booking: %w", err)
	}
	if exists {
		return SettlementResult{AlreadyProcessed: true}, nil
	}

	r, err := s.store.GetReservation(ctx, ev.ReservationID)
	if err != nil {
		return SettlementResult{}, notFound("reservation", err)
	}
	exp, err := s.store.GetExperience(ctx, r.ExperienceID)
	if err != nil {
		return SettlementResult{}, notFound("experience", err)
	}
	dist, err := s.store.GetActiveDistribution(ctx, r.ExperienceID, r.ChannelID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Printf("settlement: reservation %s paid but no active distribution for experience %s channel %s", r.ID, r.ExperienceID, r.ChannelID)
		return SettlementResult{}, ErrNoActiveDistribution
	}
	if err != nil {
		return SettlementResult{}, fmt.Errorf("load distribution: %w", err)
	}
	if r.Status == models.ReservationExpired && r.SessionID != nil {
		kept, err := s.reclaim(ctx, *r.SessionID)
		if err != nil {
			return SettlementResult{}, err
		}
		if !kept {
			return s.refundLatePayment(ctx, r, exp, ev)
		}
		log.Printf("settlement: reservation %s paid after expiry; session %s taken back", r.ID, *r.SessionID)
	} else if r.Status != models.ReservationApproved {
		log.Printf("settlement: reservation %s paid while %s; booking anyway", r.ID, r.Status)
	}

	total := ev.AmountCents
	if total <= 0 {
		total = r.TotalCents
	}
	if total != r.TotalCents {
		log.Printf("settlement: reservation %s paid %d, expected %d", r.ID, total, r.TotalCents)
	}
	shares, err := commission.Split(total, commission.Rates{
		Supplier: dist.CommissionSupplier,
		Hotel:    dist.CommissionHotel,
		Platform: dist.CommissionPlatform,
	})
	if err != nil {
		return SettlementResult{}, fmt.Errorf("split reservation %s: %w", r.ID, err)
	}

	b := models.Booking{
		ID:                  uuid.NewString(),
		ReservationID:       r.ID,
		ExperienceID:        r.ExperienceID,
		SessionID:           r.SessionID,
		ChannelID:           r.ChannelID,
		SupplierID:          exp.SupplierID,
		GuestName:           r.GuestName,
		GuestEmail:          r.GuestEmail,
		Participants:        r.Participants,
		TotalAmountCents:    total,
		SupplierAmountCents: shares.Supplier,
		HotelAmountCents:    shares.Hotel,
		PlatformAmountCents: shares.Platform,
		Currency:            r.Currency,
		PaymentIntentID:     ev.PaymentIntentID,
		ChargeID:            ev.ChargeID,
		Status:              models.BookingConfirmed,
	}
	if ev.Currency != "" {
		b.Currency = ev.Currency
	}
	if err := s.fillSlot(ctx, r, &b); err != nil {
		return SettlementResult{}, err
	}

	if err := s.store.CreateBooking(ctx, &b); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return SettlementResult{AlreadyProcessed: true}, nil
		}
		return SettlementResult{}, fmt.Errorf("create booking: %w", err)
	}
	bookingsCreated.Inc()

	if sup, err := s.store.GetSupplier(ctx, exp.SupplierID); err != nil {
		log.Printf("settlement: booking %s: load supplier %s: %v", b.ID, exp.SupplierID, err)
	} else {
		s.notifier.BookingConfirmed(ctx, b, exp, sup)
	}
	return SettlementResult{Booking: &b}, nil
}

// reclaim takes the session of an expired reservation back for a late payment.
// It reports false when the slot was deleted, cancelled or claimed by someone else.
func (s *SettlementService) reclaim(ctx context.Context, sessionID string) (bool, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	switch session.Status {
	case models.SessionAvailable:
		err := s.sessions.Claim(ctx, sessionID)
		if errors.Is(err, ErrSessionUnavailable) {
			return false, nil
		}
		return err == nil, err
	case models.SessionBooked:
		// Still booked with nobody holding it: an earlier delivery already took it back.
		held, err := s.store.SessionHeld(ctx, sessionID)
		if err != nil {
			return false, fmt.Errorf("check session: %w", err)
		}
		return !held, nil
	}
	return false, nil
}

func (s *SettlementService) refundLatePayment(ctx context.Context, r models.Reservation, exp models.Experience, ev protocols.PaymentEvent) (SettlementResult, error) {
	charge := ev.ChargeID
	if charge == "" {
		charge = ev.PaymentIntentID
	}
	if charge == "" {
		log.Printf("settlement: late payment for reservation %s has no charge to refund", r.ID)
		return SettlementResult{Ignored: true}, nil
	}
	if err := s.payments.CreateRefund(ctx, charge); err != nil && !errors.Is(err, protocols.ErrAlreadyRefunded) {
		return SettlementResult{}, providerErr("refund late payment "+r.ID, err)
	}
	log.Printf("settlement: reservation %s paid after its slot was released; refunded %s", r.ID, charge)
	s.notifier.LatePaymentRefunded(ctx, r, exp)
	return SettlementResult{Refunded: true}, nil
}

func (s *SettlementService) fillSlot(ctx context.Context, r models.Reservation, b *models.Booking) error {
	if r.SessionID != nil {
		session, err := s.store.GetSession(ctx, *r.SessionID)
		if err == nil {
			b.ExperienceDate, b.ExperienceTime = session.Date, session.Time
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("load session: %w", err)
		}
	}
	if r.RequestedDate != nil {
		b.ExperienceDate = *r.RequestedDate
	}
	if r.RequestedTime != nil {
		b.ExperienceTime = *r.RequestedTime
	}
	return nil
}

func (s *SettlementService) HandlePaymentFailed(ctx context.Context, ev protocols.PaymentEvent) error {
	if ev.ReservationID == "" {
		log.Printf("settlement: payment failure %s without reservation", ev.ID)
		return nil
	}
	r, err := s.store.GetReservation(ctx, ev.ReservationID)
	if err != nil {
		return notFound("reservation", err)
	}
	log.Printf("settlement: payment failed for reservation %s: %s", r.ID, ev.FailureMessage)
	s.notifier.PaymentFailed(ctx, r, ev.FailureMessage)
	return nil
}

// HandleRefund cancels a confirmed booking refunded outside our own flows.
func (s *SettlementService) HandleRefund(ctx context.Context, ev protocols.PaymentEvent) (SettlementResult, error) {
	key := ev.ChargeID
	if key == "" {
		key = ev.PaymentIntentID
	}
	b, err := s.store.GetBookingByCharge(ctx, key)
	if errors.Is(err, repository.ErrNotFound) && ev.PaymentIntentID != "" && ev.PaymentIntentID != key {
		b, err = s.store.GetBookingByCharge(ctx, ev.PaymentIntentID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return SettlementResult{Ignored: true}, nil
	}
	if err != nil {
		return SettlementResult{}, fmt.Errorf("load booking: %w", err)
	}
	if b.Status != models.BookingConfirmed {
		return SettlementResult{Booking: &b, AlreadyProcessed: true}, nil
	}
	now := s.now()
	ok, err := s.store.TransitionBooking(ctx, b.ID, models.BookingConfirmed, repository.BookingPatch{
		Status: models.BookingCancelled, CancelledAt: utils.PtrTime(now),
	})
	if err != nil {
		return SettlementResult{}, fmt.Errorf("cancel booking: %w", err)
	}
	if !ok {
		return SettlementResult{Booking: &b, AlreadyProcessed: true}, nil
	}
	b.Status, b.CancelledAt = models.BookingCancelled, &now
	if b.SessionID != nil {
		if err := s.sessions.ReleaseIfOrphaned(ctx, *b.SessionID); err != nil {
			log.Printf("settlement: release session %s of refunded booking %s: %v", *b.SessionID, b.ID, err)
		}
	}
	exp, expErr := s.store.GetExperience(ctx, b.ExperienceID)
	sup, supErr := s.store.GetSupplier(ctx, b.SupplierID)
	if expErr == nil && supErr == nil {
		s.notifier.BookingCancelled(ctx, b, exp, sup, "refunded")
	}
	return SettlementResult{Booking: &b}, nil
}

func (s *SettlementService) HandleAccountUpdated(ctx context.Context, ev protocols.PaymentEvent) error {
	sup, err := s.store.GetSupplierByPaymentAccount(ctx, ev.AccountID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Printf("settlement: account.updated for unknown account %s", ev.AccountID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load supplier: %w", err)
	}
	if sup.PayoutsEnabled == ev.PayoutsEnabled {
		return nil
	}
	log.Printf("settlement: supplier %s payouts_enabled=%v", sup.ID, ev.PayoutsEnabled)
	return s.store.SetSupplierPayoutsEnabled(ctx, sup.ID, ev.PayoutsEnabled)
}

func (s *SettlementService) HandleTransferCreated(ctx context.Context, ev protocols.PaymentEvent) error {
	if ev.BookingID == "" || ev.TransferID == "" {
		return nil
	}
	err := s.store.SetBookingTransfer(ctx, ev.BookingID, ev.TransferID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}
