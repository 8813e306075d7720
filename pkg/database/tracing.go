package database

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/utafrali/storefront/pkg/database"

// slowQueries holds the process-wide slow query threshold. The outbox
// repository is built before the logger is final, so this is set late.
var slowQueries struct {
	mu        sync.RWMutex
	threshold time.Duration
	logger    *slog.Logger
}

// SetSlowQueryLogging logs queries that take at least threshold as
// warnings. A zero threshold turns it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	slowQueries.mu.Lock()
	defer slowQueries.mu.Unlock()
	slowQueries.threshold = threshold
	slowQueries.logger = logger
}

func slowQueryLogger() (time.Duration, *slog.Logger) {
	slowQueries.mu.RLock()
	defer slowQueries.mu.RUnlock()
	return slowQueries.threshold, slowQueries.logger
}

// TraceQuery starts a client span named "db.<operation>" and returns the
// function that ends it with the query's error:
//
//	ctx, end := database.TraceQuery(ctx, "ClaimOutbox", claimSQL, attribute.String("checkout.payment_id", id))
//	defer func() { end(err) }()
//
// attrs are added to the span and to the slow query warning.
func TraceQuery(ctx context.Context, operation, statement string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", compactSQL(statement)),
		),
		trace.WithAttributes(attrs...),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		threshold, logger := slowQueryLogger()
		if threshold <= 0 || logger == nil {
			return
		}
		elapsed := time.Since(start)
		if elapsed < threshold {
			return
		}

		fields := []any{
			slog.String("operation", operation),
			slog.String("statement", compactSQL(statement)),
			slog.Duration("duration", elapsed),
		}
		for _, kv := range attrs {
			fields = append(fields, slog.String(string(kv.Key), kv.Value.Emit()))
		}
		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
		}
		logger.WarnContext(ctx, "slow query detected", fields...)
	}
}

// compactSQL folds a multi-line query constant onto one line.
func compactSQL(statement string) string {
	return strings.Join(strings.Fields(statement), " ")
}
