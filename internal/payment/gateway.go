package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
)

const upstream = "payment-gateway"

// Doer sends an HTTP request. *httpclient.CircuitBreakerClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Provider creates gateway orders and verifies the signed callback the
// payment widget hands back to the client.
type Provider interface {
	// Name is the gateway name recorded on platform order transactions.
	Name() string

	// CreateOrder opens a gateway order for amount minor units.
	CreateOrder(ctx context.Context, amount int64, currency string) (*domain.PaymentOrder, error)

	// VerifySignature reports whether signature authenticates the pair
	// (orderID, paymentID).
	VerifySignature(orderID, paymentID, signature string) bool
}

// Config holds the gateway credentials.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Name      string
}

// Gateway is a Provider backed by the gateway's orders API.
type Gateway struct {
	http   Doer
	cfg    Config
	logger *slog.Logger
}

var _ Provider = (*Gateway)(nil)

// NewGateway creates a gateway client.
func NewGateway(doer Doer, cfg Config, logger *slog.Logger) *Gateway {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Gateway{http: doer, cfg: cfg, logger: logger}
}

// Name returns the configured gateway name.
func (g *Gateway) Name() string {
	return g.cfg.Name
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// CreateOrder calls POST /v1/orders with a fresh receipt id. The request is
// sent once: a retried create could open a second order.
func (g *Gateway) CreateOrder(ctx context.Context, amount int64, currency string) (*domain.PaymentOrder, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal gateway order: %w", err)
	}

	ctx = httpclient.NoRetry(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.cfg.KeyID, g.cfg.KeySecret)

	resp, err := g.http.Do(ctx, req)
	if err != nil {
		return nil, httpclient.MapTransportError(err, upstream)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, upstream)
	}
	defer resp.Body.Close()

	var out orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.BadGateway(upstream, "malformed order response", err)
	}
	if out.ID == "" {
		return nil, apperrors.BadGateway(upstream, "order response has no id", nil)
	}

	g.logger.InfoContext(ctx, "gateway order created",
		slog.String("gateway_order_id", out.ID),
		slog.Int64("amount", out.Amount),
		slog.String("currency", out.Currency),
	)

	return &domain.PaymentOrder{
		ID:       out.ID,
		Amount:   out.Amount,
		Currency: out.Currency,
		Receipt:  out.Receipt,
		Status:   out.Status,
		KeyID:    g.cfg.KeyID,
	}, nil
}

// VerifySignature recomputes hex(HMAC-SHA256(secret, orderID|paymentID)) and
// compares it in constant time.
func (g *Gateway) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifySignature(g.cfg.KeySecret, orderID, paymentID, signature)
}

// Sign returns the callback signature for (orderID, paymentID).
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the callback signature for
// (orderID, paymentID) under secret.
func VerifySignature(secret, orderID, paymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
