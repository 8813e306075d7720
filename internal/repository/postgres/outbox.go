package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

// Migrations returns the outbox schema migrations for database.RunMigrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(fmt.Sprintf("embedded migrations: %v", err))
	}
	return sub
}

const outboxColumns = `payment_id, gateway_order_id, status, payload,
	platform_order_id, order_number, attempts, last_error,
	next_attempt_at, locked_until, created_at, updated_at`

const (
	insertOutboxSQL = `
		INSERT INTO checkout_outbox (
			payment_id, gateway_order_id, status, payload,
			attempts, next_attempt_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (payment_id) DO NOTHING`

	getOutboxSQL = `SELECT ` + outboxColumns + ` FROM checkout_outbox WHERE payment_id = $1`

	claimOutboxSQL = `
		UPDATE checkout_outbox
		SET status = 'processing',
			locked_until = NOW() + make_interval(secs => $2),
			updated_at = NOW()
		WHERE payment_id = $1
			AND (status IN ('pending', 'failed')
				OR (status = 'processing' AND locked_until < NOW()))
		RETURNING ` + outboxColumns

	claimDueOutboxSQL = `
		WITH due AS (
			SELECT payment_id FROM checkout_outbox
			WHERE (status IN ('pending', 'failed') AND next_attempt_at <= NOW())
				OR (status = 'processing' AND locked_until < NOW())
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE checkout_outbox o
		SET status = 'processing',
			locked_until = NOW() + make_interval(secs => $2),
			updated_at = NOW()
		FROM due
		WHERE o.payment_id = due.payment_id
		RETURNING o.payment_id, o.gateway_order_id, o.status, o.payload,
			o.platform_order_id, o.order_number, o.attempts, o.last_error,
			o.next_attempt_at, o.locked_until, o.created_at, o.updated_at`

	completeOutboxSQL = `
		UPDATE checkout_outbox
		SET status = 'completed', platform_order_id = $2, order_number = $3,
			last_error = NULL, locked_until = NULL, updated_at = NOW()
		WHERE payment_id = $1`

	failOutboxSQL = `
		UPDATE checkout_outbox
		SET status = 'failed', attempts = $2, last_error = $3,
			next_attempt_at = $4, locked_until = NULL, updated_at = NOW()
		WHERE payment_id = $1`

	abandonOutboxSQL = `
		UPDATE checkout_outbox
		SET status = 'abandoned', attempts = $2, last_error = $3,
			locked_until = NULL, updated_at = NOW()
		WHERE payment_id = $1`
)

// OutboxRepository implements repository.OutboxRepository using PostgreSQL.
type OutboxRepository struct {
	db database.DBTX
}

var _ repository.OutboxRepository = (*OutboxRepository)(nil)

func paymentAttr(id string) attribute.KeyValue {
	return attribute.String("checkout.payment_id", id)
}

// NewOutboxRepository creates a new PostgreSQL-backed outbox repository.
func NewOutboxRepository(db database.DBTX) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Insert stores rec unless a record for the same payment already exists.
func (r *OutboxRepository) Insert(ctx context.Context, rec *domain.OutboxRecord) (created bool, err error) {
	ctx, end := database.TraceQuery(ctx, "InsertOutbox", insertOutboxSQL, paymentAttr(rec.PaymentID))
	defer func() { end(err) }()

	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return false, fmt.Errorf("marshal outbox payload: %w", err)
	}

	ct, err := r.db.Exec(ctx, insertOutboxSQL,
		rec.PaymentID,
		rec.GatewayOrderID,
		rec.Status,
		payload,
		rec.Attempts,
		rec.NextAttemptAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert outbox record: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Get returns the record for paymentID.
func (r *OutboxRepository) Get(ctx context.Context, paymentID string) (rec *domain.OutboxRecord, err error) {
	ctx, end := database.TraceQuery(ctx, "GetOutbox", getOutboxSQL, paymentAttr(paymentID))
	defer func() { end(err) }()

	rec, err = scanOutbox(r.db.QueryRow(ctx, getOutboxSQL, paymentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("checkout", paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox record: %w", err)
	}
	return rec, nil
}

// Claim leases the record for paymentID. It returns nil when another worker
// holds the lease or the record is already terminal.
func (r *OutboxRepository) Claim(ctx context.Context, paymentID string, lease time.Duration) (rec *domain.OutboxRecord, err error) {
	ctx, end := database.TraceQuery(ctx, "ClaimOutbox", claimOutboxSQL, paymentAttr(paymentID))
	defer func() { end(err) }()

	rec, err = scanOutbox(r.db.QueryRow(ctx, claimOutboxSQL, paymentID, lease.Seconds()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim outbox record: %w", err)
	}
	return rec, nil
}

// ClaimDue leases up to limit due records. Rows locked by a concurrent
// sweep are skipped.
func (r *OutboxRepository) ClaimDue(ctx context.Context, limit int, lease time.Duration) (recs []*domain.OutboxRecord, err error) {
	ctx, end := database.TraceQuery(ctx, "ClaimDueOutbox", claimDueOutboxSQL, attribute.Int("outbox.batch_size", limit))
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, claimDueOutboxSQL, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim due outbox records: %w", err)
	}
	defer rows.Close()

	recs = []*domain.OutboxRecord{}
	for rows.Next() {
		rec, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due outbox record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due outbox records: %w", err)
	}
	return recs, nil
}

// MarkCompleted stores the platform order and releases the lease.
func (r *OutboxRepository) MarkCompleted(ctx context.Context, paymentID string, placed domain.PlacedOrder) (err error) {
	ctx, end := database.TraceQuery(ctx, "CompleteOutbox", completeOutboxSQL, paymentAttr(paymentID))
	defer func() { end(err) }()

	return r.update(ctx, "complete", completeOutboxSQL, paymentID, placed.ID, placed.OrderNumber)
}

// MarkFailed records a failed attempt and when to try again.
func (r *OutboxRepository) MarkFailed(ctx context.Context, paymentID string, attempts int, lastErr string, next time.Time) (err error) {
	ctx, end := database.TraceQuery(ctx, "FailOutbox", failOutboxSQL, paymentAttr(paymentID))
	defer func() { end(err) }()

	return r.update(ctx, "fail", failOutboxSQL, paymentID, attempts, lastErr, next)
}

// MarkAbandoned takes the record out of automatic retry.
func (r *OutboxRepository) MarkAbandoned(ctx context.Context, paymentID string, attempts int, lastErr string) (err error) {
	ctx, end := database.TraceQuery(ctx, "AbandonOutbox", abandonOutboxSQL, paymentAttr(paymentID))
	defer func() { end(err) }()

	return r.update(ctx, "abandon", abandonOutboxSQL, paymentID, attempts, lastErr)
}

func (r *OutboxRepository) update(ctx context.Context, op, query, paymentID string, args ...any) error {
	ct, err := r.db.Exec(ctx, query, append([]any{paymentID}, args...)...)
	if err != nil {
		return fmt.Errorf("%s outbox record: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("checkout", paymentID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutbox(row rowScanner) (*domain.OutboxRecord, error) {
	var (
		rec             domain.OutboxRecord
		payload         []byte
		platformOrderID *string
		orderNumber     *string
		lastError       *string
	)

	if err := row.Scan(
		&rec.PaymentID,
		&rec.GatewayOrderID,
		&rec.Status,
		&payload,
		&platformOrderID,
		&orderNumber,
		&rec.Attempts,
		&lastError,
		&rec.NextAttemptAt,
		&rec.LockedUntil,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal outbox payload: %w", err)
	}
	if platformOrderID != nil {
		rec.PlatformOrderID = *platformOrderID
	}
	if orderNumber != nil {
		rec.OrderNumber = *orderNumber
	}
	if lastError != nil {
		rec.LastError = *lastError
	}
	return &rec, nil
}
