package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"experience-backend/models"
	"experience-backend/repository"
)

// ExpirationService runs the cron sweeps that close reservations nobody acted on.
// Each row is guarded on its own, so overlapping runs are safe.
type ExpirationService struct {
	store    repository.Store
	sessions *SessionService
	notifier *Notifier
	options
}

func NewExpirationService(store repository.Store, sessions *SessionService, notifier *Notifier, opts ...Option) *ExpirationService {
	return &ExpirationService{store: store, sessions: sessions, notifier: notifier, options: newOptions(opts)}
}

var awaitingDecision = []models.ReservationStatus{models.ReservationPending, models.ReservationProposed}

// ExpirePendingRequests expires requests and proposals past their response
// deadline, and group reservations whose session date has passed.
func (s *ExpirationService) ExpirePendingRequests(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	overdue, err := s.store.ListResponseOverdue(ctx, awaitingDecision, s.now())
	if err != nil {
		return res, fmt.Errorf("list overdue requests: %w", err)
	}
	for _, r := range overdue {
		s.expireOne(ctx, &res, r, awaitingDecision, false)
	}

	waiting, err := s.store.ListByStatus(ctx, models.ReservationPendingMinimum)
	if err != nil {
		return res, fmt.Errorf("list group reservations: %w", err)
	}
	today := s.today()
	for _, r := range waiting {
		if r.SessionID == nil {
			continue
		}
		session, err := s.store.GetSession(ctx, *r.SessionID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			res.Processed++
			res.Failed++
			log.Printf("expire pending: load session of %s: %v", r.ID, err)
			continue
		}
		if err == nil && session.Date >= today && session.Status != models.SessionCancelled {
			continue
		}
		s.expireOne(ctx, &res, r, []models.ReservationStatus{models.ReservationPendingMinimum}, false)
	}
	res.record("expire_pending_requests")
	return res, nil
}

// ExpireUnpaidApprovals expires approved reservations past their payment
// deadline that have no booking, and puts their session back on sale.
func (s *ExpirationService) ExpireUnpaidApprovals(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	overdue, err := s.store.ListPaymentOverdue(ctx, s.now())
	if err != nil {
		return res, fmt.Errorf("list unpaid approvals: %w", err)
	}
	for _, r := range overdue {
		s.expireOne(ctx, &res, r, []models.ReservationStatus{models.ReservationApproved}, true)
	}
	res.record("expire_unpaid_approvals")
	return res, nil
}

func (s *ExpirationService) expireOne(ctx context.Context, res *SweepResult, r models.Reservation, from []models.ReservationStatus, unpaid bool) {
	res.Processed++
	hasBooking, err := s.store.BookingExistsForReservation(ctx, r.ID)
	if err != nil {
		res.Failed++
		log.Printf("expire %s: check booking: %v", r.ID, err)
		return
	}
	if hasBooking {
		res.Skipped++
		return
	}
	ok, err := s.store.TransitionReservation(ctx, r.ID, from, repository.ReservationPatch{Status: models.ReservationExpired})
	if err != nil {
		res.Failed++
		log.Printf("expire %s: %v", r.ID, err)
		return
	}
	if !ok {
		res.Skipped++
		return
	}
	res.Expired++

	if unpaid && r.SessionID != nil {
		if err := s.sessions.UnclaimIfOrphaned(ctx, *r.SessionID); err != nil {
			log.Printf("expire %s: release session %s: %v", r.ID, *r.SessionID, err)
		}
	}

	exp, err := s.store.GetExperience(ctx, r.ExperienceID)
	if err != nil {
		log.Printf("expire %s: load experience for notification: %v", r.ID, err)
		return
	}
	var sup *models.Supplier
	if unpaid {
		if loaded, err := s.store.GetSupplier(ctx, exp.SupplierID); err == nil {
			sup = &loaded
		}
	}
	r.Status = models.ReservationExpired
	s.notifier.ReservationExpired(ctx, r, exp, sup)
}
