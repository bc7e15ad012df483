package services

import (
	"errors"
	"fmt"

	"experience-backend/repository"
)

var (
	ErrNotFound                  = errors.New("not found")
	ErrValidation                = errors.New("validation failed")
	ErrPriceMismatch             = errors.New("submitted price does not match the computed price")
	ErrSessionUnavailable        = errors.New("session is no longer available")
	ErrSupplierNotOnboarded      = errors.New("supplier has not completed payment onboarding")
	ErrForbidden                 = errors.New("forbidden")
	ErrOutsideCancellationWindow = errors.New("cancellation is outside the policy window")
	ErrInvalidSlot               = errors.New("invalid proposed slot")
	ErrNoActiveDistribution      = errors.New("no active distribution for experience and channel")
	ErrPaymentProvider           = errors.New("payment provider error")
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// notFound maps repository.ErrNotFound to ErrNotFound and keeps other errors.
func notFound(what string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func providerErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrPaymentProvider, err)
}
