package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/pagination"
)

// AccountHandler handles login, registration and the customer account pages.
type AccountHandler struct {
	accounts *service.AccountService
	orders   *service.OrderService
	logger   *slog.Logger
}

// NewAccountHandler creates a new account HTTP handler.
func NewAccountHandler(accounts *service.AccountService, orders *service.OrderService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		orders:   orders,
		logger:   logger,
	}
}

// --- Request/Response DTOs ---

// RecoverRequest is the body of a password reset request.
type RecoverRequest struct {
	Email string `json:"email"`
}

// SessionResponse carries a freshly issued session.
type SessionResponse struct {
	Message string `json:"message"`
	*domain.Session
}

// AddressesResponse lists saved addresses.
type AddressesResponse struct {
	Items []domain.Address `json:"items"`
}

// --- Auth ---

// Login handles POST /api/v1/auth/login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginInput
	if !decodeOnly(w, r, &req) {
		return
	}

	sess, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SessionResponse{Message: "logged in", Session: sess})
}

// Register handles POST /api/v1/auth/register
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if !decodeOnly(w, r, &req) {
		return
	}

	sess, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, SessionResponse{Message: "account created", Session: sess})
}

// Logout handles POST /api/v1/auth/logout
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), accessToken(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "logged out")
}

// RecoverPassword handles POST /api/v1/auth/recover
func (h *AccountHandler) RecoverPassword(w http.ResponseWriter, r *http.Request) {
	var req RecoverRequest
	if !decodeOnly(w, r, &req) {
		return
	}

	if err := h.accounts.RecoverPassword(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "if an account exists for this email, a reset link has been sent")
}

// --- Profile ---

// GetProfile handles GET /api/v1/account
func (h *AccountHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	customer, err := h.accounts.Profile(r.Context(), accessToken(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, customer)
}

// UpdateProfile handles PATCH /api/v1/account
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateProfileInput
	if !decode(w, r, &req) {
		return
	}

	customer, err := h.accounts.UpdateProfile(r.Context(), accessToken(r), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, customer)
}

// UpdatePassword handles PUT /api/v1/account/password
func (h *AccountHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req service.UpdatePasswordInput
	if !decode(w, r, &req) {
		return
	}

	sess, err := h.accounts.UpdatePassword(r.Context(), accessToken(r), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SessionResponse{Message: "password updated", Session: sess})
}

// --- Addresses ---

// ListAddresses handles GET /api/v1/account/addresses
func (h *AccountHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.accounts.ListAddresses(r.Context(), accessToken(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AddressesResponse{Items: addrs})
}

// CreateAddress handles POST /api/v1/account/addresses
func (h *AccountHandler) CreateAddress(w http.ResponseWriter, r *http.Request) {
	var req domain.Address
	if !decode(w, r, &req) {
		return
	}

	addr, err := h.accounts.CreateAddress(r.Context(), accessToken(r), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, addr)
}

// UpdateAddress handles PUT /api/v1/account/addresses/{id}
func (h *AccountHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req domain.Address
	if !decode(w, r, &req) {
		return
	}

	addr, err := h.accounts.UpdateAddress(r.Context(), accessToken(r), pathParam(r, "id"), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, addr)
}

// DeleteAddress handles DELETE /api/v1/account/addresses/{id}
func (h *AccountHandler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteAddress(r.Context(), accessToken(r), pathParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "address deleted")
}

// SetDefaultAddress handles PUT /api/v1/account/addresses/{id}/default
func (h *AccountHandler) SetDefaultAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.SetDefaultAddress(r.Context(), accessToken(r), pathParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "default address updated")
}

// --- Orders ---

// ListOrders handles GET /api/v1/account/orders?first=&after=
func (h *AccountHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	res, err := h.orders.ListOrders(r.Context(), accessToken(r), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// GetOrder handles GET /api/v1/account/orders/{id}
func (h *AccountHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	var email string
	if c := middleware.ClaimsFromContext(r.Context()); c != nil {
		email = c.Email
	}
	h.writeOrder(w, r, email)
}

// LookupOrder handles GET /api/v1/orders/{id}?email=
// A logged-in customer may omit email.
func (h *AccountHandler) LookupOrder(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if c := middleware.ClaimsFromContext(r.Context()); email == "" && c != nil {
		email = c.Email
	}
	h.writeOrder(w, r, email)
}

func (h *AccountHandler) writeOrder(w http.ResponseWriter, r *http.Request, email string) {
	order, err := h.orders.GetOrder(r.Context(), pathParam(r, "id"), email)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}
