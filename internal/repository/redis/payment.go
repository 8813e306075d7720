package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const paymentOrderKeyPrefix = "payment_order:"

// PaymentOrderRepository implements repository.PaymentOrderRepository using Redis.
type PaymentOrderRepository struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ repository.PaymentOrderRepository = (*PaymentOrderRepository)(nil)

// NewPaymentOrderRepository creates a repository whose snapshots expire after ttl.
func NewPaymentOrderRepository(client redis.Cmdable, ttl time.Duration) *PaymentOrderRepository {
	return &PaymentOrderRepository{client: client, ttl: ttl}
}

func paymentOrderKey(id string) string { return paymentOrderKeyPrefix + id }

// Save stores p under its gateway order id.
func (r *PaymentOrderRepository) Save(ctx context.Context, p *domain.PendingPayment) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payment order: %w", err)
	}
	if err := r.client.Set(ctx, paymentOrderKey(p.GatewayOrderID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set payment order: %w", err)
	}
	return nil
}

// Get returns the snapshot for gatewayOrderID.
func (r *PaymentOrderRepository) Get(ctx context.Context, gatewayOrderID string) (*domain.PendingPayment, error) {
	data, err := r.client.Get(ctx, paymentOrderKey(gatewayOrderID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("payment order", gatewayOrderID)
		}
		return nil, fmt.Errorf("redis get payment order: %w", err)
	}

	var p domain.PendingPayment
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payment order: %w", err)
	}
	return &p, nil
}
