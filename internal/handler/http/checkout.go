package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
)

// CheckoutHandler handles HTTP requests for checkout endpoints.
type CheckoutHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Response DTOs ---

// OrderPlacedResponse is returned once the platform order exists.
type OrderPlacedResponse struct {
	Message     string `json:"message"`
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// OrderPendingResponse is returned while the order is still being created.
type OrderPendingResponse struct {
	Message   string `json:"message"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

// CheckoutStatusResponse describes the progress of a captured payment.
type CheckoutStatusResponse struct {
	PaymentID   string    `json:"payment_id"`
	Status      string    `json:"status"`
	OrderID     string    `json:"order_id,omitempty"`
	OrderNumber string    `json:"order_number,omitempty"`
	Attempts    int       `json:"attempts"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// --- Handlers ---

// CreateSession handles POST /api/v1/checkout/session
func (h *CheckoutHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}
	var req service.CreatePaymentInput
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	order, err := h.service.CreatePaymentOrder(r.Context(), o, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

// PlaceOrder handles POST /api/v1/checkout/orders
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutOrder
	if !decodeOnly(w, r, &req) {
		return
	}
	req.Owner = middleware.OwnerFromContext(r.Context())

	res, err := h.service.PlaceOrder(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if res.Completed() {
		status := http.StatusCreated
		if res.Replayed {
			status = http.StatusOK
		}
		httputil.WriteJSON(w, status, OrderPlacedResponse{
			Message:     "order placed",
			OrderID:     res.Order.ID,
			OrderNumber: res.Order.OrderNumber,
		})
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, OrderPendingResponse{
		Message:   "payment received, your order is being finalised",
		PaymentID: res.PaymentID,
		Status:    "pending",
	})
}

// GetStatus handles GET /api/v1/checkout/orders/{paymentId}
func (h *CheckoutHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.CheckoutStatus(r.Context(), pathParam(r, "paymentId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	resp := CheckoutStatusResponse{
		PaymentID: rec.PaymentID,
		Status:    rec.Status,
		Attempts:  rec.Attempts,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.IsCompleted() {
		resp.OrderID = rec.PlatformOrderID
		resp.OrderNumber = rec.OrderNumber
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
