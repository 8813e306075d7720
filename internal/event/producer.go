package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Kafka topics for storefront checkout events.
var (
	TopicOrderCreated      = pkgkafka.Topic("order", "created")
	TopicCheckoutReconcile = pkgkafka.Topic("checkout", "reconcile")
	TopicCheckoutAbandoned = pkgkafka.Topic("checkout", "abandoned")
)

// Source identifies events originating from this service.
const Source = "storefront"

// OrderCreatedData is the payload for an order.created event.
type OrderCreatedData struct {
	PaymentID      string `json:"payment_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	OrderID        string `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	Email          string `json:"email"`
	Owner          string `json:"owner,omitempty"`
	TotalAmount    int64  `json:"total_amount"`
	Currency       string `json:"currency"`
	Attempts       int    `json:"attempts"`
}

// ReconcileData is the payload for a checkout.reconcile event.
type ReconcileData struct {
	PaymentID string `json:"payment_id"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

// CheckoutAbandonedData is the payload for a checkout.abandoned event.
type CheckoutAbandonedData struct {
	PaymentID      string `json:"payment_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Email          string `json:"email"`
	TotalAmount    int64  `json:"total_amount"`
	Currency       string `json:"currency"`
	Attempts       int    `json:"attempts"`
	LastError      string `json:"last_error"`
}

// Producer publishes storefront checkout events.
type Producer struct {
	publisher pkgkafka.Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer. A pkgkafka.NopPublisher turns
// every publish into a no-op.
func NewProducer(publisher pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishOrderCreated publishes an order.created event for a completed checkout.
func (p *Producer) PublishOrderCreated(ctx context.Context, rec *domain.OutboxRecord, placed domain.PlacedOrder) error {
	data := OrderCreatedData{
		PaymentID:      rec.PaymentID,
		GatewayOrderID: rec.GatewayOrderID,
		OrderID:        placed.ID,
		OrderNumber:    placed.OrderNumber,
		Email:          rec.Payload.Email,
		Owner:          rec.Payload.Owner,
		TotalAmount:    rec.Payload.Total(),
		Currency:       rec.Payload.Currency,
		Attempts:       rec.Attempts,
	}
	if err := p.publish(ctx, TopicOrderCreated, rec.PaymentID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published order.created event",
		slog.String("payment_id", rec.PaymentID),
		slog.String("order_id", placed.ID),
	)
	return nil
}

// PublishReconcile asks the reconciler to retry paymentID.
func (p *Producer) PublishReconcile(ctx context.Context, paymentID string, attempts int, lastErr string) error {
	data := ReconcileData{PaymentID: paymentID, Attempts: attempts, LastError: lastErr}
	if err := p.publish(ctx, TopicCheckoutReconcile, paymentID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published checkout.reconcile event",
		slog.String("payment_id", paymentID),
		slog.Int("attempts", attempts),
	)
	return nil
}

// PublishAbandoned publishes a checkout.abandoned event. The record needs
// manual attention from here on.
func (p *Producer) PublishAbandoned(ctx context.Context, rec *domain.OutboxRecord) error {
	data := CheckoutAbandonedData{
		PaymentID:      rec.PaymentID,
		GatewayOrderID: rec.GatewayOrderID,
		Email:          rec.Payload.Email,
		TotalAmount:    rec.Payload.Total(),
		Currency:       rec.Payload.Currency,
		Attempts:       rec.Attempts,
		LastError:      rec.LastError,
	}
	if err := p.publish(ctx, TopicCheckoutAbandoned, rec.PaymentID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published checkout.abandoned event",
		slog.String("payment_id", rec.PaymentID),
		slog.Int("attempts", rec.Attempts),
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, key string, data any) error {
	ev, err := pkgkafka.NewEvent(topic, key, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		ev.WithCorrelationID(id)
	}
	if owner := logger.OwnerFromContext(ctx); owner != "" {
		ev.WithMetadata("owner", owner)
	}

	if err := p.publisher.Publish(ctx, topic, ev); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}
