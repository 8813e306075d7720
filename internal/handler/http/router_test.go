package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
)

func TestContentTypeJSON_RejectsOtherMediaTypes(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader("variant_id=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Session-ID", guestID)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", decodeError(t, rec).Code)
}

func TestShippingRates(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/shipping/rates", map[string]any{
		"delivery_postcode": "560001",
		"weight_grams":      500,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON[RatesResponse](t, rec)
	require.Len(t, body.Items, 2)
	assert.Equal(t, "Delhivery", body.Items[0].CourierName)
}

func TestShippingRates_Validation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"short postcode", map[string]any{"delivery_postcode": "5600", "weight_grams": 500}, "delivery_postcode"},
		{"letters in postcode", map[string]any{"delivery_postcode": "56000A", "weight_grams": 500}, "delivery_postcode"},
		{"zero weight", map[string]any{"delivery_postcode": "560001", "weight_grams": 0}, "weight_grams"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/v1/shipping/rates", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeError(t, rec).Fields, tt.field)
		})
	}
}

func TestOperationalEndpoints(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health/ready", nil).Code)

	rec := ts.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestCORS_Preflight(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cart", nil)
	req.Header.Set("Origin", "https://shop.example.in")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://shop.example.in", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPathParam_UnescapesPlatformIDs(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/v1/cart/items", addShirt(1, 3), guest()...).Code)

	rec := ts.do(http.MethodPut, itemPath(), map[string]any{"quantity": 2}, guest()...)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cart := decodeJSON[domain.Cart](t, rec)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, variantGID, cart.Items[0].VariantID)
}
