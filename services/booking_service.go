package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"experience-backend/availability"
	"experience-backend/models"
	"experience-backend/protocols"
	"experience-backend/repository"
	"experience-backend/utils"
)

type BookingResult struct {
	Booking          models.Booking `json:"booking"`
	AlreadyProcessed bool           `json:"already_processed"`
}

// BookingService closes bookings: cancellations with refunds, completions with
// transfers, and the cron jobs around them.
type BookingService struct {
	store    repository.Store
	sessions *SessionService
	payments protocols.PaymentGateway
	notifier *Notifier
	options
}

func NewBookingService(store repository.Store, sessions *SessionService, payments protocols.PaymentGateway, notifier *Notifier, opts ...Option) *BookingService {
	return &BookingService{store: store, sessions: sessions, payments: payments, notifier: notifier, options: newOptions(opts)}
}

func (s *BookingService) load(ctx context.Context, id, supplierID string) (models.Booking, models.Experience, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return models.Booking{}, models.Experience{}, notFound("booking", err)
	}
	if supplierID != "" && b.SupplierID != supplierID {
		return models.Booking{}, models.Experience{}, ErrForbidden
	}
	exp, err := s.store.GetExperience(ctx, b.ExperienceID)
	if err != nil {
		return models.Booking{}, models.Experience{}, notFound("experience", err)
	}
	return b, exp, nil
}

func (s *BookingService) already(ctx context.Context, id string) (BookingResult, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return BookingResult{}, notFound("booking", err)
	}
	return BookingResult{Booking: b, AlreadyProcessed: true}, nil
}

// CancelByGuest applies the experience's cancellation policy on calendar days.
func (s *BookingService) CancelByGuest(ctx context.Context, id string) (BookingResult, error) {
	b, exp, err := s.load(ctx, id, "")
	if err != nil {
		return BookingResult{}, err
	}
	if b.Status != models.BookingConfirmed {
		return BookingResult{Booking: b, AlreadyProcessed: true}, nil
	}
	days, err := DaysUntil(s.today(), b.ExperienceDate)
	if err != nil {
		return BookingResult{}, fmt.Errorf("booking %s has a malformed date: %w", b.ID, err)
	}
	if err := CheckCancellation(exp.CancellationPolicy, days); err != nil {
		return BookingResult{}, err
	}
	return s.refundAndCancel(ctx, b, exp, "cancelled by guest")
}

// CancelBySupplier refunds in full regardless of policy.
func (s *BookingService) CancelBySupplier(ctx context.Context, id, supplierID string) (BookingResult, error) {
	b, exp, err := s.load(ctx, id, supplierID)
	if err != nil {
		return BookingResult{}, err
	}
	if b.Status != models.BookingConfirmed {
		return BookingResult{Booking: b, AlreadyProcessed: true}, nil
	}
	return s.refundAndCancel(ctx, b, exp, "cancelled by organiser")
}

// ReportNoExperience refunds the guest when the experience did not take place.
func (s *BookingService) ReportNoExperience(ctx context.Context, id, supplierID string) (BookingResult, error) {
	b, exp, err := s.load(ctx, id, supplierID)
	if err != nil {
		return BookingResult{}, err
	}
	if b.Status != models.BookingConfirmed {
		return BookingResult{Booking: b, AlreadyProcessed: true}, nil
	}
	return s.refundAndCancel(ctx, b, exp, "experience did not take place")
}

func (s *BookingService) refundAndCancel(ctx context.Context, b models.Booking, exp models.Experience, reason string) (BookingResult, error) {
	charge := b.ChargeID
	if charge == "" {
		charge = b.PaymentIntentID
	}
	if charge != "" {
		if err := s.payments.CreateRefund(ctx, charge); err != nil && !errors.Is(err, protocols.ErrAlreadyRefunded) {
			return BookingResult{}, providerErr("refund booking "+b.ID, err)
		}
	} else {
		log.Printf("booking %s: no charge to refund", b.ID)
	}

	now := s.now()
	ok, err := s.store.TransitionBooking(ctx, b.ID, models.BookingConfirmed, repository.BookingPatch{
		Status: models.BookingCancelled, CancelledAt: utils.PtrTime(now),
	})
	if err != nil {
		return BookingResult{}, fmt.Errorf("cancel booking: %w", err)
	}
	if !ok {
		return s.already(ctx, b.ID)
	}
	b.Status, b.CancelledAt = models.BookingCancelled, &now

	if b.SessionID != nil {
		if err := s.sessions.ReleaseIfOrphaned(ctx, *b.SessionID); err != nil {
			log.Printf("booking %s: release session %s: %v", b.ID, *b.SessionID, err)
		}
	}
	if sup, err := s.store.GetSupplier(ctx, b.SupplierID); err != nil {
		log.Printf("booking %s: load supplier for notification: %v", b.ID, err)
	} else {
		s.notifier.BookingCancelled(ctx, b, exp, sup, reason)
	}
	return BookingResult{Booking: b}, nil
}

// Complete marks the booking completed, then transfers the supplier share.
// A failed transfer is logged; the booking stays completed.
func (s *BookingService) Complete(ctx context.Context, id, supplierID string) (BookingResult, error) {
	b, _, err := s.load(ctx, id, supplierID)
	if err != nil {
		return BookingResult{}, err
	}
	if b.Status != models.BookingConfirmed {
		return BookingResult{Booking: b, AlreadyProcessed: true}, nil
	}
	if b.ExperienceDate > s.today() {
		return BookingResult{}, validationf("the experience has not taken place yet")
	}
	return s.complete(ctx, b)
}

func (s *BookingService) complete(ctx context.Context, b models.Booking) (BookingResult, error) {
	now := s.now()
	ok, err := s.store.TransitionBooking(ctx, b.ID, models.BookingConfirmed, repository.BookingPatch{
		Status: models.BookingCompleted, CompletedAt: utils.PtrTime(now),
	})
	if err != nil {
		return BookingResult{}, fmt.Errorf("complete booking: %w", err)
	}
	if !ok {
		return s.already(ctx, b.ID)
	}
	b.Status, b.CompletedAt = models.BookingCompleted, &now
	b.TransferID = s.transfer(ctx, b)
	s.notifier.BookingCompleted(ctx, b)
	return BookingResult{Booking: b}, nil
}

func (s *BookingService) transfer(ctx context.Context, b models.Booking) string {
	if b.SupplierAmountCents <= 0 {
		return ""
	}
	sup, err := s.store.GetSupplier(ctx, b.SupplierID)
	if err != nil {
		log.Printf("booking %s: transfer skipped, load supplier: %v", b.ID, err)
		return ""
	}
	if sup.PaymentAccountID == "" {
		log.Printf("booking %s: transfer skipped, supplier %s has no payment account", b.ID, sup.ID)
		return ""
	}
	transferID, err := s.payments.CreateTransfer(ctx, protocols.TransferRequest{
		AmountCents:        b.SupplierAmountCents,
		Currency:           b.Currency,
		DestinationAccount: sup.PaymentAccountID,
		IdempotencyKey:     "transfer-" + b.ID,
		BookingID:          b.ID,
	})
	if err != nil {
		log.Printf("booking %s: transfer of %d to %s failed: %v", b.ID, b.SupplierAmountCents, sup.PaymentAccountID, err)
		return ""
	}
	if err := s.store.SetBookingTransfer(ctx, b.ID, transferID); err != nil {
		log.Printf("booking %s: record transfer %s: %v", b.ID, transferID, err)
	}
	return transferID
}

// AutoCompletePast completes confirmed bookings whose experience is at least
// autoCompleteAfter in the past.
func (s *BookingService) AutoCompletePast(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	cutoff := s.now().UTC().Add(-s.autoCompleteAfter).Format(availability.DateLayout)
	due, err := s.store.ListBookingsOnOrBefore(ctx, models.BookingConfirmed, cutoff)
	if err != nil {
		return res, fmt.Errorf("list bookings to complete: %w", err)
	}
	for _, b := range due {
		res.Processed++
		out, err := s.complete(ctx, b)
		switch {
		case err != nil:
			res.Failed++
			log.Printf("auto-complete %s: %v", b.ID, err)
		case out.AlreadyProcessed:
			res.Skipped++
		default:
			res.Completed++
		}
	}
	res.record("auto_complete")
	return res, nil
}

// SendCompletionChecks emails the supplier once per booking whose date has passed.
func (s *BookingService) SendCompletionChecks(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	due, err := s.store.ListBookingsAwaitingCompletionCheck(ctx, s.today())
	if err != nil {
		return res, fmt.Errorf("list bookings for completion check: %w", err)
	}
	for _, b := range due {
		res.Processed++
		ok, err := s.store.MarkCompletionCheckSent(ctx, b.ID, s.now())
		if err != nil {
			res.Failed++
			log.Printf("completion check %s: %v", b.ID, err)
			continue
		}
		if !ok {
			res.Skipped++
			continue
		}
		exp, expErr := s.store.GetExperience(ctx, b.ExperienceID)
		sup, supErr := s.store.GetSupplier(ctx, b.SupplierID)
		if expErr != nil || supErr != nil {
			res.Failed++
			log.Printf("completion check %s: load experience/supplier: %v %v", b.ID, expErr, supErr)
			continue
		}
		s.notifier.CompletionCheck(ctx, b, exp, sup)
		res.Sent++
	}
	res.record("completion_check")
	return res, nil
}
