package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"experience-backend/models"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicateKey(err):
		return ErrDuplicate
	}
	return err
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func (s *GormStore) first(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return translate(s.db.WithContext(ctx).Where(query, args...).First(dest).Error)
}

// ----- experiences -----

func (s *GormStore) GetExperience(ctx context.Context, id string) (models.Experience, error) {
	var e models.Experience
	err := s.first(ctx, &e, "id = ?", id)
	return e, err
}

func (s *GormStore) ListAvailabilityRules(ctx context.Context, experienceID string) ([]models.AvailabilityRule, error) {
	var rules []models.AvailabilityRule
	err := s.db.WithContext(ctx).Where("experience_id = ?", experienceID).Order("id").Find(&rules).Error
	return rules, err
}

func (s *GormStore) GetSupplier(ctx context.Context, id string) (models.Supplier, error) {
	var sup models.Supplier
	err := s.first(ctx, &sup, "id = ?", id)
	return sup, err
}

func (s *GormStore) GetSupplierByPaymentAccount(ctx context.Context, accountID string) (models.Supplier, error) {
	var sup models.Supplier
	err := s.first(ctx, &sup, "payment_account_id = ?", accountID)
	return sup, err
}

func (s *GormStore) SetSupplierPayoutsEnabled(ctx context.Context, supplierID string, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&models.Supplier{}).Where("id = ?", supplierID).Update("payouts_enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetChannel(ctx context.Context, id string) (models.Channel, error) {
	var ch models.Channel
	err := s.first(ctx, &ch, "id = ?", id)
	return ch, err
}

func (s *GormStore) ListChannels(ctx context.Context) ([]models.Channel, error) {
	var chans []models.Channel
	err := s.db.WithContext(ctx).Order("id").Find(&chans).Error
	return chans, err
}

// ----- sessions -----

func (s *GormStore) GetSession(ctx context.Context, id string) (models.Session, error) {
	var sess models.Session
	err := s.first(ctx, &sess, "id = ?", id)
	return sess, err
}

func (s *GormStore) CreateSession(ctx context.Context, sess *models.Session) error {
	return translate(s.db.WithContext(ctx).Create(sess).Error)
}

func (s *GormStore) DeleteSession(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{}).Error
}

func (s *GormStore) TransitionSession(ctx context.Context, id string, from []models.SessionStatus, to models.SessionStatus) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) ListSessions(ctx context.Context, experienceID, fromDate string, status models.SessionStatus) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("experience_id = ? AND date >= ? AND status = ?", experienceID, fromDate, status).
		Order("date, time").
		Find(&sessions).Error
	return sessions, err
}

func (s *GormStore) ReopenSession(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND status = ?", id, models.SessionBooked).
		Updates(map[string]interface{}{
			"status":          models.SessionAvailable,
			"spots_available": gorm.Expr("spots_total"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) TakeSpots(ctx context.Context, id string, n int) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND status = ? AND spots_available >= ?", id, models.SessionAvailable, n).
		Update("spots_available", gorm.Expr("spots_available - ?", n))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) ReturnSpots(ctx context.Context, id string, n int) error {
	return s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Update("spots_available", gorm.Expr("CASE WHEN spots_available + ? > spots_total THEN spots_total ELSE spots_available + ? END", n, n)).
		Error
}

func (s *GormStore) SessionHeld(ctx context.Context, id string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("session_id = ? AND status = ?", id, models.BookingConfirmed).
		Count(&n).Error
	if err != nil || n > 0 {
		return n > 0, err
	}
	err = s.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("session_id = ? AND status = ?", id, models.ReservationApproved).
		Where("NOT EXISTS (SELECT 1 FROM bookings b WHERE b.reservation_id = reservations.id)").
		Count(&n).Error
	return n > 0, err
}

// ----- reservations -----

func (s *GormStore) CreateReservation(ctx context.Context, r *models.Reservation) error {
	return translate(s.db.WithContext(ctx).Create(r).Error)
}

func (s *GormStore) GetReservation(ctx context.Context, id string) (models.Reservation, error) {
	var r models.Reservation
	err := s.first(ctx, &r, "id = ?", id)
	return r, err
}

func (s *GormStore) TransitionReservation(ctx context.Context, id string, from []models.ReservationStatus, patch ReservationPatch) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(patch.columns())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) ListReservationsBySession(ctx context.Context, sessionID string, statuses []models.ReservationStatus) ([]models.Reservation, error) {
	var out []models.Reservation
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND status IN ?", sessionID, statuses).
		Order("created_at").
		Find(&out).Error
	return out, err
}

func (s *GormStore) ListResponseOverdue(ctx context.Context, statuses []models.ReservationStatus, now time.Time) ([]models.Reservation, error) {
	var out []models.Reservation
	err := s.db.WithContext(ctx).
		Where("status IN ? AND response_deadline IS NOT NULL AND response_deadline < ?", statuses, now).
		Find(&out).Error
	return out, err
}

func (s *GormStore) ListPaymentOverdue(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	var out []models.Reservation
	err := s.db.WithContext(ctx).
		Where("status = ? AND payment_deadline IS NOT NULL AND payment_deadline < ?", models.ReservationApproved, now).
		Where("NOT EXISTS (SELECT 1 FROM bookings b WHERE b.reservation_id = reservations.id)").
		Find(&out).Error
	return out, err
}

func (s *GormStore) ListByStatus(ctx context.Context, status models.ReservationStatus) ([]models.Reservation, error) {
	var out []models.Reservation
	err := s.db.WithContext(ctx).Where("status = ?", status).Find(&out).Error
	return out, err
}

// ----- bookings -----

func (s *GormStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	return translate(s.db.WithContext(ctx).Create(b).Error)
}

func (s *GormStore) GetBooking(ctx context.Context, id string) (models.Booking, error) {
	var b models.Booking
	err := s.first(ctx, &b, "id = ?", id)
	return b, err
}

func (s *GormStore) BookingExistsForReservation(ctx context.Context, reservationID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Booking{}).Where("reservation_id = ?", reservationID).Count(&count).Error
	return count > 0, err
}

func (s *GormStore) GetBookingByCharge(ctx context.Context, chargeID string) (models.Booking, error) {
	var b models.Booking
	err := s.first(ctx, &b, "charge_id = ? OR payment_intent_id = ?", chargeID, chargeID)
	return b, err
}

func (s *GormStore) TransitionBooking(ctx context.Context, id string, from models.BookingStatus, patch BookingPatch) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(patch.columns())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) SetBookingTransfer(ctx context.Context, id, transferID string) error {
	return s.db.WithContext(ctx).Model(&models.Booking{}).Where("id = ?", id).Update("transfer_id", transferID).Error
}

func (s *GormStore) MarkCompletionCheckSent(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND completion_check_sent_at IS NULL", id).
		Update("completion_check_sent_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) ListBookingsOnOrBefore(ctx context.Context, status models.BookingStatus, date string) ([]models.Booking, error) {
	var out []models.Booking
	err := s.db.WithContext(ctx).
		Where("status = ? AND experience_date <= ?", status, date).
		Order("experience_date").
		Find(&out).Error
	return out, err
}

func (s *GormStore) ListBookingsAwaitingCompletionCheck(ctx context.Context, beforeDate string) ([]models.Booking, error) {
	var out []models.Booking
	err := s.db.WithContext(ctx).
		Where("status = ? AND experience_date < ? AND completion_check_sent_at IS NULL", models.BookingConfirmed, beforeDate).
		Order("experience_date").
		Find(&out).Error
	return out, err
}

// ----- distributions -----

func (s *GormStore) GetActiveDistribution(ctx context.Context, experienceID, channelID string) (models.Distribution, error) {
	var d models.Distribution
	err := s.first(ctx, &d, "experience_id = ? AND channel_id = ? AND is_active = ?", experienceID, channelID, true)
	return d, err
}

func (s *GormStore) ReplaceDistribution(ctx context.Context, d *models.Distribution) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Distribution{}).
			Where("experience_id = ? AND channel_id = ? AND is_active = ?", d.ExperienceID, d.ChannelID, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return translate(tx.Create(d).Error)
	})
}

// ----- payouts -----

func (s *GormStore) ListPayableBookings(ctx context.Context, channelID, from, to string) ([]models.Booking, error) {
	var out []models.Booking
	err := s.db.WithContext(ctx).
		Where("channel_id = ? AND status = ? AND payout_id IS NULL AND experience_date >= ? AND experience_date <= ?",
			channelID, models.BookingCompleted, from, to).
		Order("experience_date").
		Find(&out).Error
	return out, err
}

func (s *GormStore) CreatePayout(ctx context.Context, p *models.Payout, bookingIDs []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return translate(err)
		}
		res := tx.Model(&models.Booking{}).
			Where("id IN ? AND payout_id IS NULL", bookingIDs).
			Update("payout_id", p.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(bookingIDs)) {
			return ErrConflict
		}
		return nil
	})
}

// ----- webhook events -----

func (s *GormStore) RecordWebhookEvent(ctx context.Context, e *models.WebhookEvent) error {
	return translate(s.db.WithContext(ctx).Create(e).Error)
}
