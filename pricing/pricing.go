// Package pricing computes reservation totals in minor currency units.
package pricing

import (
	"errors"
	"fmt"

	"experience-backend/models"
	"experience-backend/utils"
)

var (
	ErrNonPositiveTotal    = errors.New("computed total must be positive")
	ErrTooManyParticipants = errors.New("participant count above maximum")
	ErrUnknownModel        = errors.New("unknown pricing model")
)

// Config is the pricing part of an experience.
type Config struct {
	Model                models.PricingModel
	UnitCents            int64
	ExtraPersonCents     int64
	IncludedParticipants int
	MinParticipants      int
	MaxParticipants      int
	MinDays              int
	Currency             string
}

// ConfigFromExperience copies the pricing fields of an experience.
func ConfigFromExperience(exp models.Experience) Config {
	return Config{
		Model:                exp.PricingModel,
		UnitCents:            exp.PriceCents,
		ExtraPersonCents:     exp.ExtraPersonCents,
		IncludedParticipants: exp.IncludedParticipants,
		MinParticipants:      exp.MinParticipants,
		MaxParticipants:      exp.MaxParticipants,
		MinDays:              exp.MinDays,
		Currency:             exp.Currency,
	}
}

type Quote struct {
	TotalCents   int64  `json:"total_cents"`
	UnitCents    int64  `json:"unit_cents"`
	Participants int    `json:"participants"`
	Days         int    `json:"days"`
	Currency     string `json:"currency"`
	Breakdown    string `json:"breakdown"`
}

// Calculate prices a reservation. overrideCents is the session-level unit price, if any.
func Calculate(cfg Config, participants, days int, overrideCents *int64) (Quote, error) {
	if participants < cfg.MinParticipants {
		participants = cfg.MinParticipants
	}
	if participants < 1 {
		participants = 1
	}
	if cfg.MaxParticipants > 0 && participants > cfg.MaxParticipants {
		return Quote{}, fmt.Errorf("%w: %d > %d", ErrTooManyParticipants, participants, cfg.MaxParticipants)
	}

	unit := cfg.UnitCents
	if overrideCents != nil {
		unit = *overrideCents
	}
	money := func(v int64) string { return utils.FormatCents(v, cfg.Currency) }

	q := Quote{UnitCents: unit, Participants: participants, Days: 1, Currency: cfg.Currency}

	switch cfg.Model {
	case models.PricingPerPerson:
		q.TotalCents = unit * int64(participants)
		q.Breakdown = fmt.Sprintf("%d × %s", participants, money(unit))

	case models.PricingFlatRate:
		q.TotalCents = unit
		q.Breakdown = fmt.Sprintf("flat rate %s", money(unit))

	case models.PricingBasePlusExtra:
		extra := participants - cfg.IncludedParticipants
		if extra < 0 {
			extra = 0
		}
		q.TotalCents = unit + cfg.ExtraPersonCents*int64(extra)
		if extra > 0 {
			q.Breakdown = fmt.Sprintf("%s + %d × %s", money(unit), extra, money(cfg.ExtraPersonCents))
		} else {
			q.Breakdown = fmt.Sprintf("%s (up to %d)", money(unit), cfg.IncludedParticipants)
		}

	case models.PricingPerDay:
		effectiveDays := days
		if effectiveDays < cfg.MinDays {
			effectiveDays = cfg.MinDays
		}
		if effectiveDays < 1 {
			effectiveDays = 1
		}
		q.Days = effectiveDays
		q.TotalCents = unit * int64(effectiveDays) * int64(participants)
		q.Breakdown = fmt.Sprintf("%d × %d days × %s", participants, effectiveDays, money(unit))

	default:
		return Quote{}, fmt.Errorf("%w: %q", ErrUnknownModel, cfg.Model)
	}

	if q.TotalCents <= 0 {
		return Quote{}, ErrNonPositiveTotal
	}
	return q, nil
}

// WithinTolerance reports whether a client-sent total matches the computed one within one cent.
func WithinTolerance(submitted, computed int64) bool {
	diff := submitted - computed
	return diff >= -1 && diff <= 1
}
