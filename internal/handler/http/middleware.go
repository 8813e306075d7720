package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/validator"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.ErrorResponse{
					Error: "Content-Type must be application/json",
					Code:  "UNSUPPORTED_MEDIA_TYPE",
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// decode reads a JSON body into dst and validates it. On failure it writes
// a 400 and returns false.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := validator.DecodeAndValidate(r, dst); err != nil {
		var valErr *validator.ValidationError
		if errors.As(err, &valErr) {
			httputil.WriteValidationError(w, err)
			return false
		}
		httputil.WriteValidationError(w, errors.New("invalid request body"))
		return false
	}
	return true
}

// decodeOnly reads a JSON body into dst without validating it, for handlers
// whose service must run its own checks first.
func decodeOnly(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.WriteValidationError(w, errors.New("invalid request body"))
		return false
	}
	return true
}

// pathParam returns the unescaped URL parameter. Platform ids such as
// gid://shop/ProductVariant/1 arrive percent-encoded.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// accessToken returns the platform access token of the session. Routes
// using it are mounted behind middleware.Auth.
func accessToken(r *http.Request) string {
	if c := middleware.ClaimsFromContext(r.Context()); c != nil {
		return c.AccessToken
	}
	return ""
}

// owner returns the cart and wishlist owner resolved by middleware.RequireOwner.
func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	o := middleware.OwnerFromContext(r.Context())
	if o == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("a session or guest id is required"), nil)
		return "", false
	}
	return o, true
}
