package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront/pkg/httputil"
)

type contextKeyType string

const (
	claimsKey contextKeyType = "session_claims"
	ownerKey  contextKeyType = "owner"
)

// GuestHeader carries the anonymous session id of a shopper who is not
// logged in. Its value must be a UUID.
const GuestHeader = "X-Session-ID"

// Claims is the verified content of a session token.
type Claims struct {
	CustomerID  string    `json:"customer_id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenValidator validates a session token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

// Auth requires a valid bearer session token and stores its claims in context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, msg := bearerToken(r)
			if token == "" {
				writeAuthError(w, msg)
				return
			}

			claims, err := validate(token)
			if err != nil {
				writeAuthError(w, "invalid or expired session")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches session claims when an Authorization header is
// present. A present but invalid token is still rejected so that an expired
// session is never silently downgraded to a guest.
func OptionalAuth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			Auth(validate)(next).ServeHTTP(w, r)
		})
	}
}

// RequireOwner resolves who owns the cart and wishlist for this request:
// "customer:<id>" for a session, otherwise "guest:<uuid>" from GuestHeader.
// Mount after OptionalAuth.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var owner string
		if c := ClaimsFromContext(r.Context()); c != nil {
			owner = "customer:" + c.CustomerID
		} else if guest := r.Header.Get(GuestHeader); guest != "" {
			id, ok := httputil.ParseUUID(w, GuestHeader, guest)
			if !ok {
				return
			}
			owner = "guest:" + id.String()
		} else {
			writeAuthError(w, "a session or "+GuestHeader+" header is required")
			return
		}

		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("storefront.owner", owner))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFromContext returns the session claims, or nil for a guest.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// OwnerFromContext returns the owner key resolved by RequireOwner.
func OwnerFromContext(ctx context.Context) string {
	if o, ok := ctx.Value(ownerKey).(string); ok {
		return o
	}
	return ""
}

// WithOwner stores an owner key in ctx. Used by tests and background jobs.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

func bearerToken(r *http.Request) (token, problem string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "missing authorization header"
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", "invalid authorization header format"
	}
	return parts[1], ""
}

func writeAuthError(w http.ResponseWriter, message string) {
	httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
		Error: message,
		Code:  "UNAUTHORIZED",
	})
}
