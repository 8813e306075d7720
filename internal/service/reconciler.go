package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

// ReconcileTotal counts order creation attempts by outcome: completed,
// failed or abandoned.
var ReconcileTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_checkout_reconcile_total",
		Help: "Platform order creation attempts for captured payments, by result",
	},
	[]string{"result"},
)

// ReconcileConfig controls retries of the checkout outbox.
type ReconcileConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Lease       time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Reconciler drives outbox records to a platform order. Every attempt first
// looks for an order already tagged with the payment id, so a retry after a
// lost response never creates a second order.
type Reconciler struct {
	orders OrderPlatform
	outbox repository.OutboxRepository
	carts  repository.CartRepository
	events EventPublisher
	cfg    ReconcileConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates a new reconciler.
func NewReconciler(orders OrderPlatform, outbox repository.OutboxRepository, carts repository.CartRepository, events EventPublisher, cfg ReconcileConfig, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		orders: orders,
		outbox: outbox,
		carts:  carts,
		events: events,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// attempt is the outcome of one order creation attempt.
type attempt struct {
	status string
	placed domain.PlacedOrder
	err    error
}

// Reconcile retries the checkout of paymentID. Unknown, completed and
// abandoned records, and records leased by another worker, are left alone.
func (r *Reconciler) Reconcile(ctx context.Context, paymentID string) error {
	ctx = logger.WithPaymentID(ctx, paymentID)
	log := logger.WithContext(ctx, r.logger)

	rec, err := r.outbox.Get(ctx, paymentID)
	if errors.Is(err, apperrors.ErrNotFound) {
		log.WarnContext(ctx, "reconcile requested for unknown checkout")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get checkout: %w", err)
	}
	if rec.IsTerminal() {
		log.DebugContext(ctx, "checkout already settled", slog.String("status", rec.Status))
		return nil
	}

	claimed, err := r.outbox.Claim(ctx, paymentID, r.cfg.Lease)
	if err != nil {
		return fmt.Errorf("claim checkout: %w", err)
	}
	if claimed == nil {
		log.DebugContext(ctx, "checkout is being processed elsewhere")
		return nil
	}

	r.process(ctx, claimed)
	return nil
}

// Sweep claims due records and reconciles each. It returns how many records
// were processed.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	recs, err := r.outbox.ClaimDue(ctx, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		return 0, fmt.Errorf("claim due checkouts: %w", err)
	}

	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		r.process(logger.WithPaymentID(ctx, rec.PaymentID), rec)
	}

	if len(recs) > 0 {
		r.logger.InfoContext(ctx, "checkout sweep finished", slog.Int("processed", len(recs)))
	}
	return len(recs), nil
}

// Run sweeps every cfg.Interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("checkout reconciler started", slog.Duration("interval", r.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("checkout reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("checkout sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// process makes one attempt for a claimed record and records the outcome.
// Outbox write failures are logged only: the lease expires and a later
// sweep picks the record up again.
func (r *Reconciler) process(ctx context.Context, rec *domain.OutboxRecord) attempt {
	log := logger.WithContext(ctx, r.logger)

	placed, err := r.placeOrder(ctx, rec)
	if err == nil {
		r.complete(ctx, rec, placed)
		return attempt{status: domain.OutboxCompleted, placed: placed}
	}

	rec.Attempts++
	rec.LastError = err.Error()

	if apperrors.IsPermanent(err) || rec.Attempts >= r.cfg.MaxAttempts {
		rec.Status = domain.OutboxAbandoned
		if merr := r.outbox.MarkAbandoned(ctx, rec.PaymentID, rec.Attempts, rec.LastError); merr != nil {
			log.ErrorContext(ctx, "failed to mark checkout abandoned", slog.String("error", merr.Error()))
		}
		ReconcileTotal.WithLabelValues(domain.OutboxAbandoned).Inc()
		log.ErrorContext(ctx, "checkout abandoned, payment captured without order",
			slog.String("gateway_order_id", rec.GatewayOrderID),
			slog.Int("attempts", rec.Attempts),
			slog.String("error", rec.LastError),
		)
		if perr := r.events.PublishAbandoned(ctx, rec); perr != nil {
			log.ErrorContext(ctx, "failed to publish checkout.abandoned event", slog.String("error", perr.Error()))
		}
		return attempt{status: domain.OutboxAbandoned, err: err}
	}

	rec.Status = domain.OutboxFailed
	rec.NextAttemptAt = r.now().Add(domain.Backoff(rec.Attempts, r.cfg.BackoffBase, r.cfg.BackoffMax))
	if merr := r.outbox.MarkFailed(ctx, rec.PaymentID, rec.Attempts, rec.LastError, rec.NextAttemptAt); merr != nil {
		log.ErrorContext(ctx, "failed to mark checkout failed", slog.String("error", merr.Error()))
	}
	ReconcileTotal.WithLabelValues(domain.OutboxFailed).Inc()
	log.WarnContext(ctx, "order creation failed, will retry",
		slog.Int("attempts", rec.Attempts),
		slog.Time("next_attempt_at", rec.NextAttemptAt),
		slog.String("error", rec.LastError),
	)
	return attempt{status: domain.OutboxFailed, err: err}
}

// placeOrder returns the platform order for rec, creating it only when no
// order tagged with the payment id exists yet.
func (r *Reconciler) placeOrder(ctx context.Context, rec *domain.OutboxRecord) (domain.PlacedOrder, error) {
	existing, err := r.orders.FindOrderByPaymentID(ctx, rec.PaymentID)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("look up order by payment: %w", err)
	}
	if existing != nil {
		logger.WithContext(ctx, r.logger).InfoContext(ctx, "found existing order for payment",
			slog.String("order_id", existing.ID),
		)
		return *existing, nil
	}

	placed, err := r.orders.CreateOrder(ctx, rec.Payload)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("create order: %w", err)
	}
	return placed, nil
}

func (r *Reconciler) complete(ctx context.Context, rec *domain.OutboxRecord, placed domain.PlacedOrder) {
	log := logger.WithContext(ctx, r.logger)

	if err := r.outbox.MarkCompleted(ctx, rec.PaymentID, placed); err != nil {
		log.ErrorContext(ctx, "failed to mark checkout completed",
			slog.String("order_id", placed.ID),
			slog.String("error", err.Error()),
		)
	}
	rec.Status = domain.OutboxCompleted
	rec.PlatformOrderID = placed.ID
	rec.OrderNumber = placed.OrderNumber
	ReconcileTotal.WithLabelValues(domain.OutboxCompleted).Inc()

	log.InfoContext(ctx, "order created for payment",
		slog.String("order_id", placed.ID),
		slog.String("order_number", placed.OrderNumber),
		slog.Int("attempts", rec.Attempts+1),
	)

	if err := r.events.PublishOrderCreated(ctx, rec, placed); err != nil {
		log.ErrorContext(ctx, "failed to publish order.created event", slog.String("error", err.Error()))
	}

	if owner := rec.Payload.Owner; owner != "" {
		if err := r.carts.Delete(ctx, owner); err != nil {
			log.WarnContext(ctx, "failed to clear cart after checkout",
				slog.String("owner", owner),
				slog.String("error", err.Error()),
			)
		}
	}
}
