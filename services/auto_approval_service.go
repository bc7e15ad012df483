package services

import (
	"context"
	"fmt"

	"experience-backend/models"
	"experience-backend/protocols"
	"experience-backend/repository"
	"experience-backend/utils"
)

type ApprovalError struct {
	ReservationID string `json:"reservation_id"`
	Message       string `json:"message"`
}

type ApprovalResult struct {
	ApprovedCount int             `json:"approved_count"`
	Errors        []ApprovalError `json:"errors"`
}

// AutoApprovalService approves every pending_minimum reservation of a group
// session once the minimum is reached, or when the supplier forces it.
type AutoApprovalService struct {
	store    repository.Store
	payments protocols.PaymentGateway
	notifier *Notifier
	options
}

func NewAutoApprovalService(store repository.Store, payments protocols.PaymentGateway, notifier *Notifier, opts ...Option) *AutoApprovalService {
	return &AutoApprovalService{store: store, payments: payments, notifier: notifier, options: newOptions(opts)}
}

// ApproveSession processes each waiting reservation on its own; one failure is
// recorded and does not stop the others. supplierID, when set, must own the session.
func (s *AutoApprovalService) ApproveSession(ctx context.Context, sessionID, supplierID string, forced bool) (ApprovalResult, error) {
	result := ApprovalResult{Errors: []ApprovalError{}}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return result, notFound("session", err)
	}
	exp, err := s.store.GetExperience(ctx, session.ExperienceID)
	if err != nil {
		return result, notFound("experience", err)
	}
	if supplierID != "" && exp.SupplierID != supplierID {
		return result, ErrForbidden
	}
	if session.Status == models.SessionCancelled {
		return result, ErrSessionUnavailable
	}

	waiting, err := s.store.ListReservationsBySession(ctx, sessionID, []models.ReservationStatus{models.ReservationPendingMinimum})
	if err != nil {
		return result, fmt.Errorf("list waiting reservations: %w", err)
	}
	participants := 0
	for _, r := range waiting {
		participants += r.Participants
	}
	if len(waiting) == 0 || (!forced && participants < session.MinParticipants) {
		return result, nil
	}

	for _, r := range waiting {
		approved, err := s.approve(ctx, exp, r)
		if err != nil {
			result.Errors = append(result.Errors, ApprovalError{ReservationID: r.ID, Message: err.Error()})
			continue
		}
		if approved {
			result.ApprovedCount++
		}
	}

	if result.ApprovedCount > 0 {
		// A group that already took the session keeps it; losing this write is fine.
		if _, err := s.store.TransitionSession(ctx, sessionID, []models.SessionStatus{models.SessionAvailable}, models.SessionBooked); err != nil {
			return result, fmt.Errorf("mark session booked: %w", err)
		}
	}
	return result, nil
}

func (s *AutoApprovalService) approve(ctx context.Context, exp models.Experience, r models.Reservation) (bool, error) {
	link, err := s.payments.CreatePaymentLink(ctx, paymentLinkRequest(s.frontendURL, exp, r))
	if err != nil {
		return false, providerErr("create payment link", err)
	}
	now := s.now()
	ok, err := s.store.TransitionReservation(ctx, r.ID, []models.ReservationStatus{models.ReservationPendingMinimum}, repository.ReservationPatch{
		Status:          models.ReservationApproved,
		PaymentDeadline: utils.PtrTime(now.Add(s.paymentWindow)),
		PaymentLinkID:   &link.ID,
		PaymentURL:      &link.URL,
		DecidedAt:       utils.PtrTime(now),
	})
	if err != nil || !ok {
		return false, err
	}
	r.Status = models.ReservationApproved
	r.PaymentLinkID = link.ID
	r.PaymentURL = link.URL
	r.PaymentDeadline = utils.PtrTime(now.Add(s.paymentWindow))
	s.notifier.ReservationApproved(ctx, r, exp)
	return true, nil
}
