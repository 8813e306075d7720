package logistics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
)

const upstream = "logistics"

const (
	// tokenRefreshMargin is how long before expiry a cached token is replaced.
	tokenRefreshMargin = 5 * time.Minute
	// defaultTokenTTL applies when the login token carries no exp claim.
	defaultTokenTTL = 24 * time.Hour
)

// Doer sends an HTTP request. *httpclient.CircuitBreakerClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds the logistics API account.
type Config struct {
	BaseURL        string
	Email          string
	Password       string
	PickupPostcode string
}

// Client quotes courier rates. It logs in with the account credentials and
// reuses the bearer token until shortly before it expires.
type Client struct {
	http   Doer
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient creates a logistics API client.
func NewClient(doer Doer, cfg Config, logger *slog.Logger) *Client {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{http: doer, cfg: cfg, logger: logger, now: time.Now}
}

type loginResponse struct {
	Token string `json:"token"`
}

// bearer returns a valid token, logging in when none is cached.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt.Add(-tokenRefreshMargin)) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{"email": c.cfg.Email, "password": c.cfg.Password})
	if err != nil {
		return "", fmt.Errorf("marshal login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/external/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return "", httpclient.MapTransportError(err, upstream)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Login failures always surface as 502.
		perr := httpclient.ParseResponseError(resp, upstream)
		return "", apperrors.BadGateway(upstream, "login failed", perr)
	}
	defer resp.Body.Close()

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.BadGateway(upstream, "malformed login response", err)
	}
	if out.Token == "" {
		return "", apperrors.BadGateway(upstream, "login response has no token", nil)
	}

	c.token = out.Token
	c.expiresAt = c.tokenExpiry(out.Token)
	c.logger.InfoContext(ctx, "logistics token refreshed", slog.Time("expires_at", c.expiresAt))
	return c.token, nil
}

// tokenExpiry reads the exp claim of a JWT bearer token without verifying
// it. Opaque tokens get defaultTokenTTL.
func (c *Client) tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return c.now().Add(defaultTokenTTL)
}

func (c *Client) invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
	}
}

type serviceabilityResponse struct {
	Status int `json:"status"`
	Data   struct {
		Couriers []courier `json:"available_courier_companies"`
	} `json:"data"`
	Message string `json:"message"`
}

type courier struct {
	ID            int        `json:"courier_company_id"`
	Name          string     `json:"courier_name"`
	Rate          flexNumber `json:"rate"`
	EstimatedDays flexNumber `json:"estimated_delivery_days"`
	ETD           string     `json:"etd"`
	COD           int        `json:"cod"`
}

// flexNumber accepts a JSON number or a numeric string. Non-numeric strings
// such as "3-5" decode without error and read as zero.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	*n = flexNumber(strings.Trim(string(b), `"`))
	return nil
}

func (n flexNumber) float() float64 {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return f
}

func (c courier) toDomain() domain.ShippingRate {
	rate := domain.ShippingRate{
		CourierID:   c.ID,
		CourierName: c.Name,
		ETD:         c.ETD,
		COD:         c.COD == 1,
	}
	rate.Rate = int64(math.Round(c.Rate.float() * 100))
	rate.EstimatedDays = int(c.EstimatedDays.float())
	return rate
}

// Rates returns the courier quotes from the pickup postcode to
// q.DeliveryPostcode, cheapest first.
func (c *Client) Rates(ctx context.Context, q domain.RateQuery) ([]domain.ShippingRate, error) {
	couriers, err := c.serviceability(ctx, q)

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == "TOKEN_EXPIRED" {
		couriers, err = c.serviceability(ctx, q)
	}
	if err != nil {
		return nil, err
	}

	if len(couriers) == 0 {
		e := apperrors.NotFound("courier", q.DeliveryPostcode)
		e.Message = "no courier serves this postcode"
		return nil, e
	}

	rates := make([]domain.ShippingRate, 0, len(couriers))
	for _, cr := range couriers {
		rates = append(rates, cr.toDomain())
	}
	domain.SortRates(rates)
	return rates, nil
}

func (c *Client) serviceability(ctx context.Context, q domain.RateQuery) ([]courier, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("pickup_postcode", c.cfg.PickupPostcode)
	params.Set("delivery_postcode", q.DeliveryPostcode)
	params.Set("weight", strconv.FormatFloat(float64(q.WeightGrams)/1000, 'f', 3, 64))
	params.Set("cod", boolParam(q.COD))
	if q.DeclaredValue > 0 {
		params.Set("declared_value", domain.FormatAmount(q.DeclaredValue))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/v1/external/courier/serviceability?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create serviceability request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, httpclient.MapTransportError(err, upstream)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.invalidate(token)
		return nil, &apperrors.AppError{
			Code:    "TOKEN_EXPIRED",
			Message: "logistics token rejected",
			Status:  http.StatusBadGateway,
			Err:     apperrors.ErrUpstream,
		}
	}
	// The API answers an unserviceable pincode with 404.
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, upstream)
	}
	defer resp.Body.Close()

	var out serviceabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.BadGateway(upstream, "malformed serviceability response", err)
	}
	return out.Data.Couriers, nil
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
