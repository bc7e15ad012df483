package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"experience-backend/availability"
	"experience-backend/models"
	"experience-backend/pricing"
	"experience-backend/protocols"
	"experience-backend/repository"
	"experience-backend/utils"
)

const maxProposedSlots = 5

// ReservationResult carries the reservation after an operation. AlreadyProcessed
// is set when the reservation had left the expected state; nothing was changed.
type ReservationResult struct {
	Reservation      models.Reservation `json:"reservation"`
	AlreadyProcessed bool               `json:"already_processed"`
}

type ReservationService struct {
	store     repository.Store
	sessions  *SessionService
	approvals *AutoApprovalService
	payments  protocols.PaymentGateway
	notifier  *Notifier
	options
}

func NewReservationService(store repository.Store, sessions *SessionService, approvals *AutoApprovalService,
	payments protocols.PaymentGateway, notifier *Notifier, opts ...Option) *ReservationService {
	return &ReservationService{
		store:     store,
		sessions:  sessions,
		approvals: approvals,
		payments:  payments,
		notifier:  notifier,
		options:   newOptions(opts),
	}
}

type CreateReservationInput struct {
	ExperienceID  string `json:"experience_id" binding:"required"`
	ChannelID     string `json:"channel_id" binding:"required"`
	SessionID     string `json:"session_id"`
	RequestedDate string `json:"requested_date"`
	RequestedTime string `json:"requested_time"`
	Participants  int    `json:"participants" binding:"required"`
	Days          int    `json:"days"`
	TotalCents    int64  `json:"total_cents" binding:"required"`
	GuestName     string `json:"guest_name" binding:"required"`
	GuestEmail    string `json:"guest_email" binding:"required"`
	GuestPhone    string `json:"guest_phone"`
}

func (in CreateReservationInput) validate() error {
	if strings.TrimSpace(in.GuestName) == "" {
		return validationf("guest_name is required")
	}
	if _, err := mail.ParseAddress(in.GuestEmail); err != nil {
		return validationf("guest_email is invalid")
	}
	if in.Participants < 1 {
		return validationf("participants must be at least 1")
	}
	hasSession := in.SessionID != ""
	hasRequest := in.RequestedDate != "" || in.RequestedTime != ""
	if hasSession == hasRequest {
		return validationf("exactly one of session_id or requested_date/requested_time is required")
	}
	if hasRequest && (in.RequestedDate == "" || in.RequestedTime == "") {
		return validationf("requested_date and requested_time are both required")
	}
	return nil
}

// Quote prices a party for an experience, using the session's override when given.
func (s *ReservationService) Quote(ctx context.Context, experienceID, sessionID string, participants, days int) (pricing.Quote, error) {
	exp, err := s.store.GetExperience(ctx, experienceID)
	if err != nil {
		return pricing.Quote{}, notFound("experience", err)
	}
	var override *int64
	if sessionID != "" {
		session, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			return pricing.Quote{}, notFound("session", err)
		}
		if session.ExperienceID != exp.ID {
			return pricing.Quote{}, validationf("session does not belong to experience")
		}
		override = session.PriceOverrideCents
	}
	return s.quote(exp, participants, days, override)
}

func (s *ReservationService) quote(exp models.Experience, participants, days int, override *int64) (pricing.Quote, error) {
	q, err := pricing.Calculate(pricing.ConfigFromExperience(exp), participants, days, override)
	if err != nil {
		return pricing.Quote{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return q, nil
}

func checkPrice(submitted int64, q pricing.Quote) error {
	if !pricing.WithinTolerance(submitted, q.TotalCents) {
		return fmt.Errorf("%w: submitted %d, computed %d", ErrPriceMismatch, submitted, q.TotalCents)
	}
	return nil
}

// Create validates a guest request and routes it to the session or custom-request path.
func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (models.Reservation, error) {
	if err := in.validate(); err != nil {
		return models.Reservation{}, err
	}
	exp, err := s.store.GetExperience(ctx, in.ExperienceID)
	if err != nil {
		return models.Reservation{}, notFound("experience", err)
	}
	if _, err := s.store.GetChannel(ctx, in.ChannelID); err != nil {
		return models.Reservation{}, notFound("channel", err)
	}
	if _, err := s.store.GetActiveDistribution(ctx, exp.ID, in.ChannelID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Reservation{}, ErrNoActiveDistribution
		}
		return models.Reservation{}, err
	}
	if in.SessionID != "" {
		return s.CreateSessionReservation(ctx, exp, in)
	}
	return s.CreateCustomRequest(ctx, exp, in)
}

func (s *ReservationService) newReservation(exp models.Experience, in CreateReservationInput, q pricing.Quote) models.Reservation {
	return models.Reservation{
		ID:           uuid.NewString(),
		ExperienceID: exp.ID,
		ChannelID:    in.ChannelID,
		Participants: q.Participants,
		Days:         q.Days,
		TotalCents:   q.TotalCents,
		Currency:     q.Currency,
		GuestName:    strings.TrimSpace(in.GuestName),
		GuestEmail:   strings.TrimSpace(in.GuestEmail),
		GuestPhone:   strings.TrimSpace(in.GuestPhone),
	}
}

// CreateCustomRequest stores a request for a date and time the supplier has to approve.
func (s *ReservationService) CreateCustomRequest(ctx context.Context, exp models.Experience, in CreateReservationInput) (models.Reservation, error) {
	date, err := availability.ParseDate(in.RequestedDate)
	if err != nil {
		return models.Reservation{}, validationf("requested_date must be YYYY-MM-DD")
	}
	if !availability.ValidTime(in.RequestedTime) {
		return models.Reservation{}, validationf("requested_time must be HH:MM")
	}
	if in.RequestedDate < s.today() {
		return models.Reservation{}, validationf("requested_date is in the past")
	}
	rules, err := s.store.ListAvailabilityRules(ctx, exp.ID)
	if err != nil {
		return models.Reservation{}, fmt.Errorf("load availability: %w", err)
	}
	if !availability.IsTimeAvailable(date, in.RequestedTime, rules) {
		return models.Reservation{}, validationf("requested time is outside the experience's availability")
	}
	q, err := s.quote(exp, in.Participants, in.Days, nil)
	if err != nil {
		return models.Reservation{}, err
	}
	if err := checkPrice(in.TotalCents, q); err != nil {
		return models.Reservation{}, err
	}

	r := s.newReservation(exp, in, q)
	r.RequestedDate = utils.PtrString(in.RequestedDate)
	r.RequestedTime = utils.PtrString(in.RequestedTime)
	r.Status = models.ReservationPending
	r.ResponseDeadline = utils.PtrTime(s.now().Add(s.responseWindow))
	if err := s.store.CreateReservation(ctx, &r); err != nil {
		return models.Reservation{}, fmt.Errorf("create reservation: %w", err)
	}
	reservationsCreated.WithLabelValues(string(r.Status)).Inc()

	if sup, err := s.store.GetSupplier(ctx, exp.SupplierID); err != nil {
		log.Printf("reservation %s: load supplier %s for notification: %v", r.ID, exp.SupplierID, err)
	} else {
		s.notifier.ReservationRequested(ctx, r, exp, sup)
	}
	return r, nil
}

// CreateSessionReservation books a published session. Sessions without a
// minimum are claimed and approved at once; group sessions collect
// pending_minimum reservations until the minimum is reached.
func (s *ReservationService) CreateSessionReservation(ctx context.Context, exp models.Experience, in CreateReservationInput) (models.Reservation, error) {
	session, err := s.store.GetSession(ctx, in.SessionID)
	if err != nil {
		return models.Reservation{}, notFound("session", err)
	}
	if session.ExperienceID != exp.ID {
		return models.Reservation{}, validationf("session does not belong to experience")
	}
	if session.Status != models.SessionAvailable || session.Date < s.today() {
		return models.Reservation{}, ErrSessionUnavailable
	}
	q, err := s.quote(exp, in.Participants, in.Days, session.PriceOverrideCents)
	if err != nil {
		return models.Reservation{}, err
	}
	if err := checkPrice(in.TotalCents, q); err != nil {
		return models.Reservation{}, err
	}
	if q.Participants > session.SpotsTotal {
		return models.Reservation{}, validationf("session holds at most %d participants", session.SpotsTotal)
	}

	r := s.newReservation(exp, in, q)
	r.SessionID = utils.PtrString(session.ID)

	if session.HasMinimum() {
		return s.joinGroup(ctx, exp, session, r)
	}
	return s.bookInstantly(ctx, exp, session, r)
}

func (s *ReservationService) joinGroup(ctx context.Context, exp models.Experience, session models.Session, r models.Reservation) (models.Reservation, error) {
	taken, err := s.store.TakeSpots(ctx, session.ID, r.Participants)
	if err != nil {
		return models.Reservation{}, fmt.Errorf("take spots: %w", err)
	}
	if !taken {
		sessionClaimConflicts.Inc()
		return models.Reservation{}, ErrSessionUnavailable
	}

	r.Status = models.ReservationPendingMinimum
	if err := s.store.CreateReservation(ctx, &r); err != nil {
		if rerr := s.store.ReturnSpots(ctx, session.ID, r.Participants); rerr != nil {
			log.Printf("return %d spots to session %s: %v", r.Participants, session.ID, rerr)
		}
		return models.Reservation{}, fmt.Errorf("create reservation: %w", err)
	}
	reservationsCreated.WithLabelValues(string(r.Status)).Inc()

	waiting, err := s.store.ListReservationsBySession(ctx, session.ID, []models.ReservationStatus{models.ReservationPendingMinimum})
	if err != nil {
		log.Printf("reservation %s: load group of session %s: %v", r.ID, session.ID, err)
		return r, nil
	}
	total := 0
	for _, w := range waiting {
		total += w.Participants
	}
	if total < session.MinParticipants {
		s.notifier.ReservationPending(ctx, r, exp)
		return r, nil
	}
	res, err := s.approvals.ApproveSession(ctx, session.ID, "", false)
	if err != nil {
		log.Printf("reservation %s: auto-approve session %s: %v", r.ID, session.ID, err)
	}
	for _, e := range res.Errors {
		log.Printf("reservation %s: auto-approve %s failed: %s", r.ID, e.ReservationID, e.Message)
	}
	if updated, err := s.store.GetReservation(ctx, r.ID); err == nil {
		r = updated
	}
	return r, nil
}

func (s *ReservationService) bookInstantly(ctx context.Context, exp models.Experience, session models.Session, r models.Reservation) (models.Reservation, error) {
	if err := s.sessions.Claim(ctx, session.ID); err != nil {
		return models.Reservation{}, err
	}
	link, err := s.paymentLink(ctx, exp, r)
	if err != nil {
		s.reopen(ctx, session.ID)
		return models.Reservation{}, err
	}
	now := s.now()
	r.Status = models.ReservationApproved
	r.PaymentLinkID = link.ID
	r.PaymentURL = link.URL
	r.PaymentDeadline = utils.PtrTime(now.Add(s.paymentWindow))
	r.DecidedAt = utils.PtrTime(now)
	if err := s.store.CreateReservation(ctx, &r); err != nil {
		s.reopen(ctx, session.ID)
		return models.Reservation{}, fmt.Errorf("create reservation: %w", err)
	}
	reservationsCreated.WithLabelValues(string(r.Status)).Inc()
	s.notifier.ReservationApproved(ctx, r, exp)
	return r, nil
}

func (s *ReservationService) reopen(ctx context.Context, sessionID string) {
	if err := s.sessions.Reopen(ctx, sessionID); err != nil {
		log.Printf("reopen session %s after failed booking: %v", sessionID, err)
	}
}

func (s *ReservationService) paymentLink(ctx context.Context, exp models.Experience, r models.Reservation) (protocols.PaymentLink, error) {
	link, err := s.payments.CreatePaymentLink(ctx, paymentLinkRequest(s.frontendURL, exp, r))
	if err != nil {
		return protocols.PaymentLink{}, providerErr("create payment link", err)
	}
	return link, nil
}

func paymentLinkRequest(frontendURL string, exp models.Experience, r models.Reservation) protocols.PaymentLinkRequest {
	base := strings.TrimRight(frontendURL, "/")
	return protocols.PaymentLinkRequest{
		ReservationID: r.ID,
		AmountCents:   r.TotalCents,
		Currency:      r.Currency,
		Description:   exp.Title,
		SuccessURL:    base + "/reservations/" + r.ID + "?paid=1",
		CancelURL:     base + "/reservations/" + r.ID,
	}
}

func (s *ReservationService) Get(ctx context.Context, id string) (models.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return models.Reservation{}, notFound("reservation", err)
	}
	return r, nil
}

// load returns the reservation and its experience. A non-empty supplierID
// must own the experience; an empty one means an action token authorized the call.
func (s *ReservationService) load(ctx context.Context, id, supplierID string) (models.Reservation, models.Experience, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return models.Reservation{}, models.Experience{}, notFound("reservation", err)
	}
	exp, err := s.store.GetExperience(ctx, r.ExperienceID)
	if err != nil {
		return models.Reservation{}, models.Experience{}, notFound("experience", err)
	}
	if supplierID != "" && exp.SupplierID != supplierID {
		return models.Reservation{}, models.Experience{}, ErrForbidden
	}
	return r, exp, nil
}

func (s *ReservationService) already(ctx context.Context, id string) (ReservationResult, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return ReservationResult{}, notFound("reservation", err)
	}
	return ReservationResult{Reservation: r, AlreadyProcessed: true}, nil
}

// Accept approves a pending request, or a proposed one at slotIndex.
func (s *ReservationService) Accept(ctx context.Context, id, supplierID string, slotIndex *int) (ReservationResult, error) {
	r, exp, err := s.load(ctx, id, supplierID)
	if err != nil {
		return ReservationResult{}, err
	}
	if !r.Status.AwaitsDecision() {
		return ReservationResult{Reservation: r, AlreadyProcessed: true}, nil
	}
	var slot models.ProposedSlot
	switch r.Status {
	case models.ReservationPending:
		if r.RequestedDate == nil || r.RequestedTime == nil {
			return ReservationResult{}, validationf("reservation has no requested slot")
		}
		slot = models.ProposedSlot{Date: *r.RequestedDate, Time: *r.RequestedTime}
	case models.ReservationProposed:
		if slotIndex == nil {
			return ReservationResult{}, ErrInvalidSlot
		}
		if slot, err = pickSlot(r, *slotIndex); err != nil {
			return ReservationResult{}, err
		}
	}
	return s.approveWithSlot(ctx, r, exp, slot)
}

func pickSlot(r models.Reservation, index int) (models.ProposedSlot, error) {
	if index < 0 || index >= len(r.ProposedSlots) {
		return models.ProposedSlot{}, fmt.Errorf("%w: index %d of %d", ErrInvalidSlot, index, len(r.ProposedSlots))
	}
	return r.ProposedSlots[index], nil
}

// approveWithSlot creates the private session for the chosen slot, the payment
// link, then approves. Losing the status race undoes the session.
func (s *ReservationService) approveWithSlot(ctx context.Context, r models.Reservation, exp models.Experience, slot models.ProposedSlot) (ReservationResult, error) {
	if slot.Date < s.today() {
		return ReservationResult{}, validationf("slot %s is in the past", slot.Date)
	}
	sup, err := s.store.GetSupplier(ctx, exp.SupplierID)
	if err != nil {
		return ReservationResult{}, notFound("supplier", err)
	}
	if !sup.PayoutsEnabled {
		return ReservationResult{}, ErrSupplierNotOnboarded
	}
	session, err := s.sessions.CreatePrivateSession(ctx, exp.ID, slot.Date, slot.Time, r.Participants)
	if err != nil {
		return ReservationResult{}, err
	}
	link, err := s.paymentLink(ctx, exp, r)
	if err != nil {
		s.dropSession(ctx, session)
		return ReservationResult{}, err
	}
	now := s.now()
	ok, err := s.store.TransitionReservation(ctx, r.ID, []models.ReservationStatus{r.Status}, repository.ReservationPatch{
		Status:          models.ReservationApproved,
		SessionID:       &session.ID,
		PaymentDeadline: utils.PtrTime(now.Add(s.paymentWindow)),
		PaymentLinkID:   &link.ID,
		PaymentURL:      &link.URL,
		DecidedAt:       utils.PtrTime(now),
	})
	if err != nil {
		s.dropSession(ctx, session)
		return ReservationResult{}, fmt.Errorf("approve reservation: %w", err)
	}
	if !ok {
		s.dropSession(ctx, session)
		return s.already(ctx, r.ID)
	}
	updated, err := s.store.GetReservation(ctx, r.ID)
	if err != nil {
		return ReservationResult{}, notFound("reservation", err)
	}
	s.notifier.ReservationApproved(ctx, updated, exp)
	return ReservationResult{Reservation: updated}, nil
}

func (s *ReservationService) dropSession(ctx context.Context, session models.Session) {
	if err := s.sessions.Release(ctx, session); err != nil {
		log.Printf("drop private session %s: %v", session.ID, err)
	}
}

// Decline rejects a pending or proposed reservation with an optional message.
func (s *ReservationService) Decline(ctx context.Context, id, supplierID, message string) (ReservationResult, error) {
	r, exp, err := s.load(ctx, id, supplierID)
	if err != nil {
		return ReservationResult{}, err
	}
	return s.decline(ctx, r, exp, message)
}

func (s *ReservationService) decline(ctx context.Context, r models.Reservation, exp models.Experience, message string) (ReservationResult, error) {
	if !r.Status.AwaitsDecision() {
		return ReservationResult{Reservation: r, AlreadyProcessed: true}, nil
	}
	message = strings.TrimSpace(message)
	patch := repository.ReservationPatch{Status: models.ReservationDeclined, DecidedAt: utils.PtrTime(s.now())}
	if message != "" {
		patch.SupplierMessage = &message
	}
	ok, err := s.store.TransitionReservation(ctx, r.ID, []models.ReservationStatus{models.ReservationPending, models.ReservationProposed}, patch)
	if err != nil {
		return ReservationResult{}, fmt.Errorf("decline reservation: %w", err)
	}
	if !ok {
		return s.already(ctx, r.ID)
	}
	updated, err := s.store.GetReservation(ctx, r.ID)
	if err != nil {
		return ReservationResult{}, notFound("reservation", err)
	}
	s.notifier.ReservationDeclined(ctx, updated, exp)
	return ReservationResult{Reservation: updated}, nil
}

// Propose counters a pending request with alternative slots and restarts the response window.
func (s *ReservationService) Propose(ctx context.Context, id, supplierID string, slots []models.ProposedSlot, message string) (ReservationResult, error) {
	if len(slots) == 0 || len(slots) > maxProposedSlots {
		return ReservationResult{}, validationf("propose between 1 and %d slots", maxProposedSlots)
	}
	today := s.today()
	for _, slot := range slots {
		if _, err := availability.ParseDate(slot.Date); err != nil || !availability.ValidTime(slot.Time) {
			return ReservationResult{}, validationf("slot %s %s is malformed", slot.Date, slot.Time)
		}
		if slot.Date < today {
			return ReservationResult{}, validationf("slot %s is in the past", slot.Date)
		}
	}
	r, exp, err := s.load(ctx, id, supplierID)
	if err != nil {
		return ReservationResult{}, err
	}
	if r.Status != models.ReservationPending {
		return ReservationResult{Reservation: r, AlreadyProcessed: true}, nil
	}
	message = strings.TrimSpace(message)
	ok, err := s.store.TransitionReservation(ctx, r.ID, []models.ReservationStatus{models.ReservationPending}, repository.ReservationPatch{
		Status:           models.ReservationProposed,
		ProposedSlots:    slots,
		SupplierMessage:  &message,
		ResponseDeadline: utils.PtrTime(s.now().Add(s.responseWindow)),
	})
	if err != nil {
		return ReservationResult{}, fmt.Errorf("propose: %w", err)
	}
	if !ok {
		return s.already(ctx, r.ID)
	}
	updated, err := s.store.GetReservation(ctx, r.ID)
	if err != nil {
		return ReservationResult{}, notFound("reservation", err)
	}
	s.notifier.ReservationProposed(ctx, updated, exp)
	return ReservationResult{Reservation: updated}, nil
}

// RespondToProposal is the guest's answer to a proposal: accept a slot or decline all.
func (s *ReservationService) RespondToProposal(ctx context.Context, id string, accept bool, slotIndex int) (ReservationResult, error) {
	r, exp, err := s.load(ctx, id, "")
	if err != nil {
		return ReservationResult{}, err
	}
	if r.Status != models.ReservationProposed {
		return ReservationResult{Reservation: r, AlreadyProcessed: true}, nil
	}
	if !accept {
		return s.decline(ctx, r, exp, "Declined by guest")
	}
	slot, err := pickSlot(r, slotIndex)
	if err != nil {
		return ReservationResult{}, err
	}
	return s.approveWithSlot(ctx, r, exp, slot)
}
