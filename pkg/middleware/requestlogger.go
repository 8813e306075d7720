package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/pkg/logger"
)

// RequestLogger builds a request-scoped logger carrying correlation_id, owner,
// trace_id and span_id and stores it with logger.NewContext. Mount it after
// RequestLogging and Tracing. Routes that resolve an owner mount it again
// after RequireOwner so the owner is picked up.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if owner := OwnerFromContext(ctx); owner != "" {
				ctx = logger.WithOwner(ctx, owner)
			} else if c := ClaimsFromContext(ctx); c != nil {
				ctx = logger.WithOwner(ctx, "customer:"+c.CustomerID)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
