package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func tracedRouter(status int) *chi.Mux {
	r := chi.NewRouter()
	r.Use(Tracing(TracingConfig{ServiceName: "storefront"}))
	r.Get("/api/v1/collections/{handle}/products", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	return r
}

func spanAttr(s tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, kv := range s.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_NamesSpanByRoute(t *testing.T) {
	exporter := setupTestTracer(t)

	tracedRouter(http.StatusOK).ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/api/v1/collections/summer/products", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/collections/{handle}/products", spans[0].Name)

	route, ok := spanAttr(spans[0], "http.route")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/collections/{handle}/products", route.AsString())

	status, ok := spanAttr(spans[0], "http.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(200), status.AsInt64())
	assert.NotEqual(t, codes.Error, spans[0].Status.Code)
}

func TestTracing_ServerErrorMarksSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	tracedRouter(http.StatusBadGateway).ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/api/v1/collections/summer/products", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestTracing_ContinuesIncomingTrace(t *testing.T) {
	exporter := setupTestTracer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/collections/summer/products", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	tracedRouter(http.StatusOK).ServeHTTP(rec, req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent.SpanID().String())
	assert.Contains(t, rec.Header().Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestTracing_OwnerAttribute(t *testing.T) {
	exporter := setupTestTracer(t)

	r := chi.NewRouter()
	r.Use(Tracing(TracingConfig{ServiceName: "storefront"}))
	r.With(RequireOwner).Get("/api/v1/cart", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(GuestHeader, "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	r.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	owner, ok := spanAttr(spans[0], "storefront.owner")
	require.True(t, ok)
	assert.Equal(t, "guest:1b4e28ba-2fa1-11d2-883f-0016d3cca427", owner.AsString())
}

func TestTracing_ClientAddressFollowsTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		remoteAddr string
		wantIP     string
		wantScheme string
	}{
		{name: "via load balancer", remoteAddr: "10.1.2.3:4000", wantIP: "203.0.113.7", wantScheme: "https"},
		{name: "direct client", remoteAddr: "198.51.100.9:4000", wantIP: "198.51.100.9", wantScheme: "http"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := setupTestTracer(t)
			r := chi.NewRouter()
			r.Use(Tracing(TracingConfig{ServiceName: "storefront", Proxies: proxies}))
			r.Get("/api/v1/cart", func(w http.ResponseWriter, r *http.Request) {})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
			req.RemoteAddr = tt.remoteAddr
			req.Header.Set("X-Forwarded-For", "203.0.113.7")
			req.Header.Set("X-Forwarded-Proto", "https")
			r.ServeHTTP(httptest.NewRecorder(), req)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			ip, ok := spanAttr(spans[0], "http.client_ip")
			require.True(t, ok)
			assert.Equal(t, tt.wantIP, ip.AsString())
			scheme, ok := spanAttr(spans[0], "http.scheme")
			require.True(t, ok)
			assert.Equal(t, tt.wantScheme, scheme.AsString())
		})
	}
}

func TestTracing_RateLimitedEvent(t *testing.T) {
	exporter := setupTestTracer(t)

	tracedRouter(http.StatusTooManyRequests).ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/api/v1/collections/summer/products", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "rate limited", spans[0].Events[0].Name)
	assert.NotEqual(t, codes.Error, spans[0].Status.Code)
}
