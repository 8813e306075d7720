package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func metricsRouter(service string, status int) *chi.Mux {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics(service))
	r.Get("/api/v1/products/{handle}", func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
		}
		_, _ = w.Write([]byte("{}"))
	})
	return r
}

func TestPrometheusMetrics_LabelsByRoutePattern(t *testing.T) {
	r := metricsRouter("metrics-pattern", http.StatusOK)
	for _, handle := range []string{"linen-kurta", "silk-saree"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/products/"+handle, nil))
	}

	c := httpRequestsTotal.WithLabelValues("metrics-pattern", "GET", "/api/v1/products/{handle}", "200")
	assert.Equal(t, float64(2), testutil.ToFloat64(c))
}

func TestPrometheusMetrics_CapturesStatus(t *testing.T) {
	r := metricsRouter("metrics-status", http.StatusNotFound)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/products/gone", nil))

	c := httpRequestsTotal.WithLabelValues("metrics-status", "GET", "/api/v1/products/{handle}", "404")
	assert.Equal(t, float64(1), testutil.ToFloat64(c))

	obs := httpRequestDuration.WithLabelValues("metrics-status", "GET", "/api/v1/products/{handle}", "404")
	assert.Equal(t, 1, testutil.CollectAndCount(obs.(prometheus.Collector)))
}

func TestPrometheusMetrics_UnmatchedRoute(t *testing.T) {
	r := metricsRouter("metrics-unmatched", http.StatusOK)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-admin/install.php", nil))

	c := httpRequestsTotal.WithLabelValues("metrics-unmatched", "GET", "unmatched", "404")
	assert.Equal(t, float64(1), testutil.ToFloat64(c))
}

func TestPrometheusMetrics_InFlightReturnsToZero(t *testing.T) {
	var during float64
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("metrics-inflight"))
	r.Get("/x", func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(httpRequestsInFlight.WithLabelValues("metrics-inflight"))
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, float64(1), during)
	assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsInFlight.WithLabelValues("metrics-inflight")))
}
