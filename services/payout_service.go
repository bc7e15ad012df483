package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"

	"experience-backend/availability"
	"experience-backend/models"
	"experience-backend/repository"
)

// PayoutService batches the hotel share of completed bookings per channel.
type PayoutService struct {
	store    repository.Store
	notifier *Notifier
	options
}

func NewPayoutService(store repository.Store, notifier *Notifier, opts ...Option) *PayoutService {
	return &PayoutService{store: store, notifier: notifier, options: newOptions(opts)}
}

// CreatePayout creates one payout per currency for the channel's completed,
// unpaid bookings dated between from and to (inclusive).
func (s *PayoutService) CreatePayout(ctx context.Context, channelID, from, to string) ([]models.Payout, error) {
	if _, err := availability.ParseDate(from); err != nil {
		return nil, validationf("from must be YYYY-MM-DD")
	}
	if _, err := availability.ParseDate(to); err != nil {
		return nil, validationf("to must be YYYY-MM-DD")
	}
	if from > to {
		return nil, validationf("from is after to")
	}
	ch, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, notFound("channel", err)
	}
	bookings, err := s.store.ListPayableBookings(ctx, channelID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list payable bookings: %w", err)
	}

	byCurrency := map[string][]models.Booking{}
	for _, b := range bookings {
		byCurrency[b.Currency] = append(byCurrency[b.Currency], b)
	}
	currencies := make([]string, 0, len(byCurrency))
	for c := range byCurrency {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	var payouts []models.Payout
	for _, currency := range currencies {
		group := byCurrency[currency]
		p := models.Payout{
			ID:         uuid.NewString(),
			ChannelID:  channelID,
			PeriodFrom: from,
			PeriodTo:   to,
			Currency:   currency,
			Status:     "pending",
		}
		ids := make([]string, 0, len(group))
		for _, b := range group {
			p.AmountCents += b.HotelAmountCents
			ids = append(ids, b.ID)
		}
		p.BookingCount = len(ids)
		if err := s.store.CreatePayout(ctx, &p, ids); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				log.Printf("payout: channel %s %s: bookings were paid out concurrently", channelID, currency)
				continue
			}
			return payouts, fmt.Errorf("create payout: %w", err)
		}
		payouts = append(payouts, p)
		s.notifier.PayoutCreated(ctx, p, ch)
	}
	return payouts, nil
}

// CreateMonthlyPayouts runs CreatePayout for every channel over the previous calendar month.
func (s *PayoutService) CreateMonthlyPayouts(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now().UTC()
	firstOfMonth := now.AddDate(0, 0, -now.Day()+1)
	from := firstOfMonth.AddDate(0, -1, 0).Format(availability.DateLayout)
	to := firstOfMonth.AddDate(0, 0, -1).Format(availability.DateLayout)

	channels, err := s.store.ListChannels(ctx)
	if err != nil {
		return res, fmt.Errorf("list channels: %w", err)
	}
	for _, ch := range channels {
		res.Processed++
		payouts, err := s.CreatePayout(ctx, ch.ID, from, to)
		if err != nil {
			res.Failed++
			log.Printf("payout: channel %s: %v", ch.ID, err)
			continue
		}
		if len(payouts) == 0 {
			res.Skipped++
			continue
		}
		res.Sent += len(payouts)
	}
	res.record("create_payouts")
	return res, nil
}
