package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"experience-backend/availability"
	"experience-backend/models"
	"experience-backend/repository"
)

// SessionService owns session capacity. A claim is a single conditional
// write: available -> booked, so two racing claims cannot both win.
type SessionService struct {
	store repository.Store
	options
}

func NewSessionService(store repository.Store, opts ...Option) *SessionService {
	return &SessionService{store: store, options: newOptions(opts)}
}

func (s *SessionService) Claim(ctx context.Context, sessionID string) error {
	ok, err := s.store.TransitionSession(ctx, sessionID, []models.SessionStatus{models.SessionAvailable}, models.SessionBooked)
	if err != nil {
		return fmt.Errorf("claim session %s: %w", sessionID, err)
	}
	if !ok {
		sessionClaimConflicts.Inc()
		return ErrSessionUnavailable
	}
	return nil
}

// Reopen undoes a claim: the session is available again with its full capacity.
func (s *SessionService) Reopen(ctx context.Context, sessionID string) error {
	_, err := s.store.ReopenSession(ctx, sessionID)
	return err
}

// Release takes a session out of circulation. Private sessions are deleted,
// public ones are marked cancelled; neither can be booked again.
func (s *SessionService) Release(ctx context.Context, session models.Session) error {
	if session.IsPrivate {
		return s.store.DeleteSession(ctx, session.ID)
	}
	_, err := s.store.TransitionSession(ctx, session.ID,
		[]models.SessionStatus{models.SessionAvailable, models.SessionBooked, models.SessionFull},
		models.SessionCancelled)
	return err
}

// orphaned loads the session and reports whether nothing holds it anymore.
// A missing session is never orphaned.
func (s *SessionService) orphaned(ctx context.Context, sessionID string) (models.Session, bool, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return session, false, nil
	}
	if err != nil {
		return session, false, err
	}
	held, err := s.store.SessionHeld(ctx, sessionID)
	if err != nil {
		return session, false, fmt.Errorf("check session %s: %w", sessionID, err)
	}
	return session, !held, nil
}

// ReleaseIfOrphaned releases the session of a cancelled booking once no other
// confirmed booking or unpaid approval is left on it.
func (s *SessionService) ReleaseIfOrphaned(ctx context.Context, sessionID string) error {
	session, ok, err := s.orphaned(ctx, sessionID)
	if err != nil || !ok {
		return err
	}
	return s.Release(ctx, session)
}

// UnclaimIfOrphaned undoes the claim of an abandoned checkout. A private
// session is deleted; a public one goes back on sale.
func (s *SessionService) UnclaimIfOrphaned(ctx context.Context, sessionID string) error {
	session, ok, err := s.orphaned(ctx, sessionID)
	if err != nil || !ok {
		return err
	}
	if session.IsPrivate {
		return s.store.DeleteSession(ctx, session.ID)
	}
	return s.Reopen(ctx, session.ID)
}

type CreateSessionInput struct {
	ExperienceID       string `json:"experience_id" binding:"required"`
	Date               string `json:"date" binding:"required"`
	Time               string `json:"time" binding:"required"`
	SpotsTotal         int    `json:"spots_total"`
	MinParticipants    int    `json:"min_participants"`
	PriceOverrideCents *int64 `json:"price_override_cents"`
}

func (s *SessionService) ownedExperience(ctx context.Context, supplierID, experienceID string) (models.Experience, error) {
	exp, err := s.store.GetExperience(ctx, experienceID)
	if err != nil {
		return models.Experience{}, notFound("experience", err)
	}
	if exp.SupplierID != supplierID {
		return models.Experience{}, ErrForbidden
	}
	return exp, nil
}

func (s *SessionService) validateSlot(date, hhmm string) error {
	if _, err := availability.ParseDate(date); err != nil {
		return validationf("date must be YYYY-MM-DD")
	}
	if !availability.ValidTime(hhmm) {
		return validationf("time must be HH:MM")
	}
	if date < s.today() {
		return validationf("date is in the past")
	}
	return nil
}

// CreateSession publishes a bookable slot for the supplier's experience.
func (s *SessionService) CreateSession(ctx context.Context, supplierID string, in CreateSessionInput) (models.Session, error) {
	exp, err := s.ownedExperience(ctx, supplierID, in.ExperienceID)
	if err != nil {
		return models.Session{}, err
	}
	if err := s.validateSlot(in.Date, in.Time); err != nil {
		return models.Session{}, err
	}
	spots := in.SpotsTotal
	if spots <= 0 {
		spots = exp.MaxParticipants
	}
	if spots <= 0 {
		return models.Session{}, validationf("spots_total must be positive")
	}
	if in.MinParticipants < 0 || in.MinParticipants > spots {
		return models.Session{}, validationf("min_participants must be between 0 and spots_total")
	}
	if in.PriceOverrideCents != nil && *in.PriceOverrideCents <= 0 {
		return models.Session{}, validationf("price_override_cents must be positive")
	}
	session := models.Session{
		ID:                 uuid.NewString(),
		ExperienceID:       exp.ID,
		Date:               in.Date,
		Time:               in.Time,
		SpotsTotal:         spots,
		SpotsAvailable:     spots,
		MinParticipants:    in.MinParticipants,
		PriceOverrideCents: in.PriceOverrideCents,
		Status:             models.SessionAvailable,
	}
	if err := s.store.CreateSession(ctx, &session); err != nil {
		return models.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// CancelSession withdraws an unbooked session. Guests waiting for the group
// minimum on it are expired.
func (s *SessionService) CancelSession(ctx context.Context, supplierID, sessionID string) error {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return notFound("session", err)
	}
	if _, err := s.ownedExperience(ctx, supplierID, session.ExperienceID); err != nil {
		return err
	}
	if session.Status == models.SessionCancelled {
		return nil
	}
	if session.Status == models.SessionBooked {
		return validationf("session is booked; cancel the booking instead")
	}
	if err := s.Release(ctx, session); err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}

	waiting, err := s.store.ListReservationsBySession(ctx, sessionID, []models.ReservationStatus{models.ReservationPendingMinimum})
	if err != nil {
		return fmt.Errorf("list waiting reservations: %w", err)
	}
	for _, r := range waiting {
		if _, err := s.store.TransitionReservation(ctx, r.ID, []models.ReservationStatus{models.ReservationPendingMinimum},
			repository.ReservationPatch{Status: models.ReservationExpired}); err != nil {
			log.Printf("cancel session %s: expire reservation %s: %v", sessionID, r.ID, err)
		}
	}
	return nil
}

// CreatePrivateSession creates the slot for an approved custom request. It is
// born booked so nobody else can claim it.
func (s *SessionService) CreatePrivateSession(ctx context.Context, experienceID, date, hhmm string, participants int) (models.Session, error) {
	session := models.Session{
		ID:             uuid.NewString(),
		ExperienceID:   experienceID,
		Date:           date,
		Time:           hhmm,
		SpotsTotal:     participants,
		SpotsAvailable: 0,
		IsPrivate:      true,
		Status:         models.SessionBooked,
	}
	if err := s.store.CreateSession(ctx, &session); err != nil {
		return models.Session{}, fmt.Errorf("create private session: %w", err)
	}
	return session, nil
}

// GetAvailableSessions lists future sessions that can still be claimed.
func (s *SessionService) GetAvailableSessions(ctx context.Context, experienceID string) ([]models.Session, error) {
	if _, err := s.store.GetExperience(ctx, experienceID); err != nil {
		return nil, notFound("experience", err)
	}
	now := s.now().UTC()
	today := now.Format(availability.DateLayout)
	clock := now.Format(availability.TimeLayout)
	sessions, err := s.store.ListSessions(ctx, experienceID, today, models.SessionAvailable)
	if err != nil {
		return nil, err
	}
	out := make([]models.Session, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Date == today && sess.Time <= clock {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}
