package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/commerce"
	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
)

// OrderService reads placed orders.
type OrderService struct {
	customers CustomerPlatform
	orders    OrderPlatform
	logger    *slog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(customers CustomerPlatform, orders OrderPlatform, logger *slog.Logger) *OrderService {
	return &OrderService{
		customers: customers,
		orders:    orders,
		logger:    logger,
	}
}

// ListOrders returns the session customer's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, accessToken string, page pagination.Params) (pagination.Result[domain.Order], error) {
	res, err := s.customers.CustomerOrders(ctx, accessToken, page)
	if err != nil {
		return pagination.Result[domain.Order]{}, fmt.Errorf("list orders: %w", err)
	}
	return res, nil
}

// GetOrder returns the order with id when it was placed with email. Orders
// of anyone else are reported as not found, the same as missing ones.
func (s *OrderService) GetOrder(ctx context.Context, id, email string) (*domain.Order, error) {
	gid, ok := commerce.OrderGID(id)
	if !ok {
		return nil, apperrors.NotFound("order", id)
	}
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}

	order, err := s.orders.Order(ctx, gid)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !order.BelongsTo(email) {
		s.logger.WarnContext(ctx, "order lookup with mismatched email", slog.String("order_id", gid))
		return nil, apperrors.NotFound("order", id)
	}
	return order, nil
}
