package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticValidator(valid string, claims *Claims) TokenValidator {
	return func(token string) (*Claims, error) {
		if token != valid {
			return nil, errors.New("bad token")
		}
		return claims, nil
	}
}

func echoOwner() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(OwnerFromContext(r.Context())))
	})
}

func TestAuth(t *testing.T) {
	claims := &Claims{CustomerID: "gid://shop/Customer/7", Email: "a@b.in", AccessToken: "cat"}
	mw := Auth(staticValidator("good", claims))

	var got *Claims
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClaimsFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"invalid", "Bearer bad", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
		{"case insensitive scheme", "bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/account", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				require.NotNil(t, got)
				assert.Equal(t, "gid://shop/Customer/7", got.CustomerID)
			} else {
				var body map[string]string
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, "UNAUTHORIZED", body["code"])
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestOptionalAuth_NoHeaderPassesThrough(t *testing.T) {
	h := OptionalAuth(staticValidator("good", &Claims{}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Nil(t, ClaimsFromContext(r.Context()))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOptionalAuth_InvalidTokenRejected(t *testing.T) {
	h := OptionalAuth(staticValidator("good", &Claims{}))(echoOwner())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireOwner(t *testing.T) {
	validate := staticValidator("good", &Claims{CustomerID: "42"})
	h := OptionalAuth(validate)(RequireOwner(echoOwner()))

	t.Run("customer session wins over guest header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set("Authorization", "Bearer good")
		req.Header.Set(GuestHeader, "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "customer:42", rec.Body.String())
	})

	t.Run("guest header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set(GuestHeader, "1B4E28BA-2FA1-11D2-883F-0016D3CCA427")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "guest:1b4e28ba-2fa1-11d2-883f-0016d3cca427", rec.Body.String())
	})

	t.Run("malformed guest id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set(GuestHeader, "not-a-uuid")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestNoStoreAndCacheControl(t *testing.T) {
	rec := httptest.NewRecorder()
	NoStore(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Header().Values("Vary"), GuestHeader)

	rec = httptest.NewRecorder()
	CacheControl(90e9)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	assert.Equal(t, "public, max-age=90", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	CacheControl(90e9)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/products", nil))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}
