package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
)

// ShippingHandler handles HTTP requests for delivery rates.
type ShippingHandler struct {
	service *service.ShippingService
	logger  *slog.Logger
}

// NewShippingHandler creates a new shipping HTTP handler.
func NewShippingHandler(svc *service.ShippingService, logger *slog.Logger) *ShippingHandler {
	return &ShippingHandler{service: svc, logger: logger}
}

// RatesResponse lists courier quotes, cheapest first.
type RatesResponse struct {
	Items []domain.ShippingRate `json:"items"`
}

// Rates handles POST /api/v1/shipping/rates
func (h *ShippingHandler) Rates(w http.ResponseWriter, r *http.Request) {
	var req service.RatesInput
	if !decode(w, r, &req) {
		return
	}

	rates, err := h.service.Rates(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RatesResponse{Items: rates})
}
