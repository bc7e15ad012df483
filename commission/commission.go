// Package commission splits a paid amount between supplier, hotel and platform.
package commission

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRates  = errors.New("commission rates must be non-negative and sum to 100")
	ErrNegativeTotal = errors.New("total must not be negative")
)

// Rates are whole percentages.
type Rates struct {
	Supplier int `json:"supplier"`
	Hotel    int `json:"hotel"`
	Platform int `json:"platform"`
}

var (
	// Standard applies when the reselling channel is not the supplier's own.
	Standard = Rates{Supplier: 80, Hotel: 12, Platform: 8}
	// SelfOwned applies when the supplier resells through its own channel; the hotel share folds into the supplier's.
	SelfOwned = Rates{Supplier: 92, Hotel: 0, Platform: 8}
)

func (r Rates) Validate() error {
	if r.Supplier < 0 || r.Hotel < 0 || r.Platform < 0 || r.Supplier+r.Hotel+r.Platform != 100 {
		return fmt.Errorf("%w: %d/%d/%d", ErrInvalidRates, r.Supplier, r.Hotel, r.Platform)
	}
	return nil
}

// PresetFor picks the preset by comparing the experience's owning channel with the reselling one.
func PresetFor(ownerChannelID *string, resellingChannelID string) (Rates, bool) {
	if ownerChannelID != nil && *ownerChannelID != "" && *ownerChannelID == resellingChannelID {
		return SelfOwned, true
	}
	return Standard, false
}

type Shares struct {
	Supplier int64 `json:"supplier_amount_cents"`
	Hotel    int64 `json:"hotel_amount_cents"`
	Platform int64 `json:"platform_amount_cents"`
}

func (s Shares) Sum() int64 {
	return s.Supplier + s.Hotel + s.Platform
}

// Split floors the supplier and hotel shares and gives the remainder to the platform,
// so the three shares always add up to total.
func Split(total int64, rates Rates) (Shares, error) {
	if err := rates.Validate(); err != nil {
		return Shares{}, err
	}
	if total < 0 {
		return Shares{}, ErrNegativeTotal
	}
	supplier := total/100*int64(rates.Supplier) + total%100*int64(rates.Supplier)/100
	hotel := total/100*int64(rates.Hotel) + total%100*int64(rates.Hotel)/100
	return Shares{
		Supplier: supplier,
		Hotel:    hotel,
		Platform: total - supplier - hotel,
	}, nil
}
