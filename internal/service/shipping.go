package service

import (
	"context"
	"fmt"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/validator"
)

// RatesInput describes the parcel to quote. Weight is in grams and the
// declared value in paise.
type RatesInput struct {
	DeliveryPostcode string `json:"delivery_postcode" validate:"required,len=6,numeric"`
	WeightGrams      int    `json:"weight_grams" validate:"required,gt=0,lte=100000"`
	COD              bool   `json:"cod"`
	DeclaredValue    int64  `json:"declared_value" validate:"gte=0"`
}

// ShippingService quotes delivery rates.
type ShippingService struct {
	quoter RateQuoter
}

// NewShippingService creates a new shipping service.
func NewShippingService(quoter RateQuoter) *ShippingService {
	return &ShippingService{quoter: quoter}
}

// Rates returns courier rates to the delivery postcode, cheapest first.
func (s *ShippingService) Rates(ctx context.Context, input RatesInput) ([]domain.ShippingRate, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	rates, err := s.quoter.Rates(ctx, domain.RateQuery{
		DeliveryPostcode: input.DeliveryPostcode,
		WeightGrams:      input.WeightGrams,
		COD:              input.COD,
		DeclaredValue:    input.DeclaredValue,
	})
	if err != nil {
		return nil, fmt.Errorf("shipping rates: %w", err)
	}
	return rates, nil
}
