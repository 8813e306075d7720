package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Reconciler retries the platform order creation of one checkout.
type Reconciler interface {
	Reconcile(ctx context.Context, paymentID string) error
}

// Consumer processes checkout.reconcile events.
type Consumer struct {
	reconciler Reconciler
	logger     *slog.Logger
}

// NewConsumer creates a new reconcile event consumer.
func NewConsumer(reconciler Reconciler, logger *slog.Logger) *Consumer {
	return &Consumer{
		reconciler: reconciler,
		logger:     logger,
	}
}

// HandleReconcile processes a checkout.reconcile event. A returned error
// makes the consumer retry the message and finally dead-letter it.
func (c *Consumer) HandleReconcile(ctx context.Context, ev *pkgkafka.Event) error {
	var data ReconcileData
	if err := ev.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal checkout.reconcile data: %w", err)
	}
	if data.PaymentID == "" {
		return fmt.Errorf("checkout.reconcile event %s has no payment id", ev.EventID)
	}

	if ev.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, ev.CorrelationID)
	}
	ctx = logger.WithPaymentID(ctx, data.PaymentID)

	logger.WithContext(ctx, c.logger).InfoContext(ctx, "processing checkout.reconcile event",
		slog.String("event_id", ev.EventID),
		slog.Int("attempts", data.Attempts),
	)

	if err := c.reconciler.Reconcile(ctx, data.PaymentID); err != nil {
		return fmt.Errorf("reconcile payment %s: %w", data.PaymentID, err)
	}
	return nil
}
