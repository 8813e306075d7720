package middleware

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures Tracing.
type TracingConfig struct {
	ServiceName string
	// Proxies are the peers whose forwarded headers name the shopper's
	// address and scheme. The rate limiter uses the same list.
	Proxies TrustedProxies
}

// spanStatusWriter remembers the first status written for the span.
type spanStatusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *spanStatusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *spanStatusWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.status = http.StatusOK
		w.wrote = true
	}
	return w.ResponseWriter.Write(b)
}

// Tracing starts a server span per request, continuing any W3C trace context
// sent by the storefront frontend. The span is renamed to the chi route
// pattern once routing is done.
func Tracing(cfg TracingConfig) func(http.Handler) http.Handler {
	tracer := otel.Tracer("github.com/utafrali/storefront/" + cfg.ServiceName)
	propagator := otel.GetTextMapPropagator()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPMethod(r.Method),
					semconv.HTTPTarget(r.URL.RequestURI()),
					semconv.HTTPScheme(cfg.Proxies.scheme(r)),
					semconv.UserAgentOriginal(r.UserAgent()),
					attribute.String("http.client_ip", cfg.Proxies.ClientIP(r)),
					attribute.Bool("storefront.signed_in", r.Header.Get("Authorization") != ""),
				),
			)
			defer span.End()

			sw := &spanStatusWriter{ResponseWriter: w, status: http.StatusOK}
			// The frontend joins its own spans to ours from the response.
			propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			next.ServeHTTP(sw, r.WithContext(ctx))

			// chi fills the pattern in while routing, on the original context.
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if pattern := rc.RoutePattern(); pattern != "" {
					span.SetName(r.Method + " " + pattern)
					span.SetAttributes(attribute.String("http.route", pattern))
				}
			}

			span.SetAttributes(semconv.HTTPStatusCode(sw.status))
			switch {
			case sw.status == http.StatusTooManyRequests:
				span.AddEvent("rate limited")
			case sw.status >= 500:
				span.SetStatus(codes.Error, http.StatusText(sw.status))
			}
		})
	}
}

// scheme is "https" for TLS. X-Forwarded-Proto counts only from a trusted
// peer, since anyone can send it.
func (p TrustedProxies) scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if ip := net.ParseIP(ClientIP(r)); ip != nil && p.trusts(ip) {
		switch proto := r.Header.Get("X-Forwarded-Proto"); proto {
		case "http", "https":
			return proto
		}
	}
	return "http"
}
