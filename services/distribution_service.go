package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"experience-backend/commission"
	"experience-backend/models"
	"experience-backend/repository"
)

type DistributionService struct {
	store repository.Store
}

func NewDistributionService(store repository.Store) *DistributionService {
	return &DistributionService{store: store}
}

// Create lists the supplier's experience on a channel. The split preset is
// fixed here: self-owned when the channel is the supplier's own.
func (s *DistributionService) Create(ctx context.Context, supplierID, experienceID, channelID string) (models.Distribution, error) {
	exp, err := s.store.GetExperience(ctx, experienceID)
	if err != nil {
		return models.Distribution{}, notFound("experience", err)
	}
	if exp.SupplierID != supplierID {
		return models.Distribution{}, ErrForbidden
	}
	if _, err := s.store.GetChannel(ctx, channelID); err != nil {
		return models.Distribution{}, notFound("channel", err)
	}
	sup, err := s.store.GetSupplier(ctx, supplierID)
	if err != nil {
		return models.Distribution{}, notFound("supplier", err)
	}
	rates, selfOwned := commission.PresetFor(sup.ChannelID, channelID)
	if err := rates.Validate(); err != nil {
		return models.Distribution{}, err
	}
	d := models.Distribution{
		ID:                 uuid.NewString(),
		ExperienceID:       experienceID,
		ChannelID:          channelID,
		CommissionSupplier: rates.Supplier,
		CommissionHotel:    rates.Hotel,
		CommissionPlatform: rates.Platform,
		IsSelfOwned:        selfOwned,
		IsActive:           true,
	}
	if err := s.store.ReplaceDistribution(ctx, &d); err != nil {
		return models.Distribution{}, fmt.Errorf("create distribution: %w", err)
	}
	return d, nil
}
