package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

// CreatePaymentInput holds the options of a new payment order. The lines
// always come from the owner's stored cart.
type CreatePaymentInput struct {
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

// PlaceOrderResult is the outcome of PlaceOrder. Status is completed when
// the platform order exists, otherwise the order is still being finalised.
type PlaceOrderResult struct {
	PaymentID string
	Status    string
	Order     domain.PlacedOrder
	Replayed  bool
}

// Completed reports whether the platform order exists.
func (r *PlaceOrderResult) Completed() bool {
	return r.Status == domain.OutboxCompleted
}

// CheckoutService orchestrates a purchase: gateway order, payment signature
// verification, then platform order creation through the outbox.
type CheckoutService struct {
	gateway    PaymentGateway
	carts      repository.CartRepository
	payments   repository.PaymentOrderRepository
	outbox     repository.OutboxRepository
	reconciler *Reconciler
	events     EventPublisher
	currency   string
	lease      time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(gateway PaymentGateway, carts repository.CartRepository, payments repository.PaymentOrderRepository, outbox repository.OutboxRepository, reconciler *Reconciler, events EventPublisher, currency string, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		gateway:    gateway,
		carts:      carts,
		payments:   payments,
		outbox:     outbox,
		reconciler: reconciler,
		events:     events,
		currency:   currency,
		lease:      reconciler.cfg.Lease,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreatePaymentOrder creates a gateway order for the total of the owner's
// cart and records the cart snapshot it charges for. An empty cart or a
// zero total is rejected before the gateway is called.
func (s *CheckoutService) CreatePaymentOrder(ctx context.Context, owner string, input CreatePaymentInput) (*domain.PaymentOrder, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	cart, err := s.carts.Get(ctx, owner)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return nil, apperrors.InvalidInput("cart is empty")
	case err != nil:
		return nil, fmt.Errorf("load cart: %w", err)
	}
	lines := cart.OrderLines()
	if len(lines) == 0 {
		return nil, apperrors.InvalidInput("cart is empty")
	}

	total := domain.LinesTotal(lines)
	if total <= 0 {
		return nil, apperrors.InvalidInput("cart total must be greater than zero")
	}

	currency := s.currencyOr(input.Currency)
	if cart.Currency != "" {
		currency = strings.ToUpper(cart.Currency)
	}
	order, err := s.gateway.CreateOrder(ctx, total, currency)
	if err != nil {
		return nil, fmt.Errorf("create payment order: %w", err)
	}

	err = s.payments.Save(ctx, &domain.PendingPayment{
		GatewayOrderID: order.ID,
		Owner:          owner,
		Amount:         total,
		Currency:       currency,
		Items:          lines,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("record payment order: %w", err)
	}

	s.logger.InfoContext(ctx, "payment order created",
		slog.String("gateway_order_id", order.ID),
		slog.Int64("amount", total),
		slog.String("currency", currency),
	)
	return order, nil
}

// PlaceOrder turns a captured payment into a platform order. The signature
// is checked before anything else, and the order is built from the cart
// snapshot of its payment order. The call is idempotent per payment id:
// a repeat returns the stored order, and a failed attempt is left to the
// reconciler while the caller is told the order is pending.
func (s *CheckoutService) PlaceOrder(ctx context.Context, order domain.CheckoutOrder) (*PlaceOrderResult, error) {
	if !s.gateway.VerifySignature(order.GatewayOrderID, order.PaymentID, order.Signature) {
		s.logger.WarnContext(ctx, "payment signature mismatch",
			slog.String("payment_id", order.PaymentID),
			slog.String("gateway_order_id", order.GatewayOrderID),
		)
		return nil, apperrors.InvalidSignature()
	}

	ctx = logger.WithPaymentID(ctx, order.PaymentID)
	log := logger.WithContext(ctx, s.logger)

	paid, err := s.payments.Get(ctx, order.GatewayOrderID)
	if errors.Is(err, apperrors.ErrNotFound) {
		// The snapshot has expired: only an already recorded checkout can go on.
		existing, gerr := s.outbox.Get(ctx, order.PaymentID)
		switch {
		case errors.Is(gerr, apperrors.ErrNotFound):
			return nil, apperrors.InvalidInput("unknown payment order")
		case gerr != nil:
			return nil, fmt.Errorf("load checkout: %w", gerr)
		case existing.GatewayOrderID != order.GatewayOrderID:
			return nil, apperrors.InvalidInput("unknown payment order")
		}
		return s.resume(ctx, existing, log)
	}
	if err != nil {
		return nil, fmt.Errorf("load payment order: %w", err)
	}

	if err := bindPayment(&order, paid); err != nil {
		log.WarnContext(ctx, "checkout total does not match payment order",
			slog.Int64("paid", paid.Amount),
			slog.Int64("requested", order.Total()),
		)
		return nil, err
	}

	order.Email = strings.TrimSpace(order.Email)
	if err := validator.Validate(order); err != nil {
		return nil, err
	}
	order.Signature = ""

	rec := domain.NewOutboxRecord(order)
	// The sweep only sees the record once this request has had its chance.
	rec.NextAttemptAt = s.now().Add(s.lease)
	created, err := s.outbox.Insert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("record checkout: %w", err)
	}

	if !created {
		existing, err := s.outbox.Get(ctx, order.PaymentID)
		if err != nil {
			return nil, fmt.Errorf("load checkout: %w", err)
		}
		return s.resume(ctx, existing, log)
	}
	return s.resume(ctx, rec, log)
}

// resume replays a finished record or claims it and makes one attempt.
func (s *CheckoutService) resume(ctx context.Context, rec *domain.OutboxRecord, log *slog.Logger) (*PlaceOrderResult, error) {
	if rec.IsTerminal() {
		log.InfoContext(ctx, "checkout replayed", slog.String("status", rec.Status))
		return resultOf(rec, true), nil
	}

	claimed, err := s.outbox.Claim(ctx, rec.PaymentID, s.lease)
	if err != nil {
		return nil, fmt.Errorf("claim checkout: %w", err)
	}
	if claimed == nil {
		log.InfoContext(ctx, "checkout is being processed by another request")
		return &PlaceOrderResult{PaymentID: rec.PaymentID, Status: domain.OutboxProcessing}, nil
	}

	out := s.reconciler.process(ctx, claimed)
	switch out.status {
	case domain.OutboxCompleted:
		return &PlaceOrderResult{PaymentID: rec.PaymentID, Status: out.status, Order: out.placed}, nil
	case domain.OutboxFailed:
		if err := s.events.PublishReconcile(ctx, claimed.PaymentID, claimed.Attempts, claimed.LastError); err != nil {
			log.ErrorContext(ctx, "failed to publish checkout.reconcile event", slog.String("error", err.Error()))
		}
	}
	return &PlaceOrderResult{PaymentID: rec.PaymentID, Status: out.status}, nil
}

// bindPayment replaces the requested lines with the ones that were paid
// for. Lines sent by the client must add up to the amount paid.
func bindPayment(order *domain.CheckoutOrder, paid *domain.PendingPayment) error {
	if len(order.Items) > 0 && order.Total() != paid.Amount {
		return apperrors.AmountMismatch()
	}
	if order.Currency != "" && !strings.EqualFold(order.Currency, paid.Currency) {
		return apperrors.AmountMismatch()
	}
	order.Items = paid.Items
	order.Currency = paid.Currency
	if paid.Owner != "" {
		order.Owner = paid.Owner
	}
	return nil
}

// CheckoutStatus returns the outbox record of paymentID.
func (s *CheckoutService) CheckoutStatus(ctx context.Context, paymentID string) (*domain.OutboxRecord, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, apperrors.InvalidInput("payment id is required")
	}

	rec, err := s.outbox.Get(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("checkout status: %w", err)
	}
	return rec, nil
}

func (s *CheckoutService) currencyOr(c string) string {
	if c == "" {
		return s.currency
	}
	return strings.ToUpper(c)
}

func resultOf(rec *domain.OutboxRecord, replayed bool) *PlaceOrderResult {
	res := &PlaceOrderResult{PaymentID: rec.PaymentID, Status: rec.Status, Replayed: replayed}
	if rec.IsCompleted() {
		res.Order = rec.Placed()
	}
	return res
}
