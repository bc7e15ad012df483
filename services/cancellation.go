package services

import (
	"fmt"
	"time"

	"experience-backend/availability"
	"experience-backend/models"
)

// cancellationWindowDays is how many calendar days before the experience a
// guest may still cancel. Missing policies never allow it.
var cancellationWindowDays = map[models.CancellationPolicy]int{
	models.PolicyFlexible: 1,
	models.PolicyModerate: 7,
	models.PolicyStrict:   14,
}

// DaysUntil counts calendar days from today to date, ignoring the time of day.
func DaysUntil(today, date string) (int, error) {
	from, err := availability.ParseDate(today)
	if err != nil {
		return 0, err
	}
	to, err := availability.ParseDate(date)
	if err != nil {
		return 0, err
	}
	return int(to.Sub(from) / (24 * time.Hour)), nil
}

// CheckCancellation accepts when daysUntil is at least the policy window.
func CheckCancellation(policy models.CancellationPolicy, daysUntil int) error {
	window, ok := cancellationWindowDays[policy]
	if !ok {
		return fmt.Errorf("%w: this booking is non-refundable", ErrOutsideCancellationWindow)
	}
	if daysUntil < window {
		return fmt.Errorf("%w: %s bookings can be cancelled up to %d day(s) before the experience", ErrOutsideCancellationWindow, policy, window)
	}
	return nil
}
