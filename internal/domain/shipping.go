package domain

import "sort"

// ShippingRate is one courier quote for a delivery.
type ShippingRate struct {
	CourierID     int    `json:"courier_id"`
	CourierName   string `json:"courier_name"`
	Rate          int64  `json:"rate"`
	EstimatedDays int    `json:"estimated_days"`
	ETD           string `json:"etd,omitempty"`
	COD           bool   `json:"cod"`
}

// RateQuery describes the parcel to quote.
type RateQuery struct {
	DeliveryPostcode string
	WeightGrams      int
	COD              bool
	DeclaredValue    int64
}

// SortRates orders rates by price, cheapest first, then by delivery time.
func SortRates(rates []ShippingRate) {
	sort.SliceStable(rates, func(i, j int) bool {
		if rates[i].Rate != rates[j].Rate {
			return rates[i].Rate < rates[j].Rate
		}
		return rates[i].EstimatedDays < rates[j].EstimatedDays
	})
}
