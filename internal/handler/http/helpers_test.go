package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/auth"
	"github.com/utafrali/storefront/internal/commerce"
	"github.com/utafrali/storefront/internal/domain"
	redisrepo "github.com/utafrali/storefront/internal/repository/redis"
	"github.com/utafrali/storefront/internal/service"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/pagination"
)

const (
	guestID     = "2b7c1f3e-0f7a-4c55-9a53-0d9c7c2b1a11"
	validSig    = "valid-signature"
	customerGID = "gid://shopify/Customer/7"
	variantGID  = "gid://shopify/ProductVariant/11"
)

// ============================================================================
// Catalog
// ============================================================================

type stubCatalog struct {
	mu       sync.Mutex
	products map[string]*domain.Product
	stock    map[string]domain.VariantStock
	calls    int
}

func (c *stubCatalog) Products(_ context.Context, q commerce.ProductQuery) (pagination.Result[domain.Product], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	var items []domain.Product
	for _, p := range c.products {
		if q.Search == "" || strings.Contains(strings.ToLower(p.Title), strings.ToLower(q.Search)) {
			items = append(items, *p)
		}
	}
	return pagination.NewResult(items, pagination.PageInfo{}), nil
}

func (c *stubCatalog) CollectionProducts(ctx context.Context, handle string, page pagination.Params) (pagination.Result[domain.Product], error) {
	if handle != "summer" {
		return pagination.Result[domain.Product]{}, apperrors.NotFound("collection", handle)
	}
	return c.Products(ctx, commerce.ProductQuery{Page: page})
}

func (c *stubCatalog) ProductByHandle(_ context.Context, handle string) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	p, ok := c.products[handle]
	if !ok {
		return nil, apperrors.NotFound("product", handle)
	}
	return p, nil
}

func (c *stubCatalog) VariantStock(_ context.Context, variantID string) (*domain.VariantStock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stock[variantID]
	if !ok {
		return nil, apperrors.NotFound("variant", variantID)
	}
	return &s, nil
}

// ============================================================================
// Checkout
// ============================================================================

type stubGateway struct{}

func (stubGateway) Name() string { return "razorpay" }

func (stubGateway) CreateOrder(_ context.Context, amount int64, currency string) (*domain.PaymentOrder, error) {
	return &domain.PaymentOrder{
		ID:       "order_N1",
		Amount:   amount,
		Currency: currency,
		Status:   "created",
		KeyID:    "rzp_test_key",
	}, nil
}

func (stubGateway) VerifySignature(_, _, signature string) bool {
	return signature == validSig
}

// memOutbox is an in-memory outbox with the same claim semantics as the
// Postgres repository.
type memOutbox struct {
	mu   sync.Mutex
	recs map[string]*domain.OutboxRecord
}

func newMemOutbox() *memOutbox {
	return &memOutbox{recs: make(map[string]*domain.OutboxRecord)}
}

func (o *memOutbox) Insert(_ context.Context, rec *domain.OutboxRecord) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.recs[rec.PaymentID]; ok {
		return false, nil
	}
	cp := *rec
	o.recs[rec.PaymentID] = &cp
	return true, nil
}

func (o *memOutbox) Get(_ context.Context, paymentID string) (*domain.OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.recs[paymentID]
	if !ok {
		return nil, apperrors.NotFound("checkout", paymentID)
	}
	cp := *rec
	return &cp, nil
}

func (o *memOutbox) Claim(_ context.Context, paymentID string, lease time.Duration) (*domain.OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.recs[paymentID]
	if !ok || rec.IsTerminal() {
		return nil, nil
	}
	now := time.Now()
	if rec.Status == domain.OutboxProcessing && rec.LockedUntil != nil && rec.LockedUntil.After(now) {
		return nil, nil
	}
	until := now.Add(lease)
	rec.Status = domain.OutboxProcessing
	rec.LockedUntil = &until
	cp := *rec
	return &cp, nil
}

func (o *memOutbox) ClaimDue(context.Context, int, time.Duration) ([]*domain.OutboxRecord, error) {
	return nil, nil
}

func (o *memOutbox) MarkCompleted(_ context.Context, paymentID string, placed domain.PlacedOrder) error {
	return o.update(paymentID, func(r *domain.OutboxRecord) {
		r.Status = domain.OutboxCompleted
		r.PlatformOrderID = placed.ID
		r.OrderNumber = placed.OrderNumber
	})
}

func (o *memOutbox) MarkFailed(_ context.Context, paymentID string, attempts int, lastErr string, next time.Time) error {
	return o.update(paymentID, func(r *domain.OutboxRecord) {
		r.Status = domain.OutboxFailed
		r.Attempts = attempts
		r.LastError = lastErr
		r.NextAttemptAt = next
	})
}

func (o *memOutbox) MarkAbandoned(_ context.Context, paymentID string, attempts int, lastErr string) error {
	return o.update(paymentID, func(r *domain.OutboxRecord) {
		r.Status = domain.OutboxAbandoned
		r.Attempts = attempts
		r.LastError = lastErr
	})
}

func (o *memOutbox) update(paymentID string, fn func(*domain.OutboxRecord)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.recs[paymentID]
	if !ok {
		return apperrors.NotFound("checkout", paymentID)
	}
	fn(rec)
	rec.LockedUntil = nil
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

type stubOrders struct {
	mu       sync.Mutex
	createFn func(domain.CheckoutOrder) (domain.PlacedOrder, error)
	orders   map[string]*domain.Order
	created  int
}

func (s *stubOrders) CreateOrder(_ context.Context, order domain.CheckoutOrder) (domain.PlacedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	if s.createFn != nil {
		return s.createFn(order)
	}
	return domain.PlacedOrder{ID: "gid://shopify/Order/1042", OrderNumber: "#1042"}, nil
}

func (s *stubOrders) FindOrderByPaymentID(context.Context, string) (*domain.PlacedOrder, error) {
	return nil, nil
}

func (s *stubOrders) Order(_ context.Context, id string) (*domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order", id)
	}
	return o, nil
}

type nopEvents struct{}

func (nopEvents) PublishOrderCreated(context.Context, *domain.OutboxRecord, domain.PlacedOrder) error {
	return nil
}

func (nopEvents) PublishReconcile(context.Context, string, int, string) error { return nil }

func (nopEvents) PublishAbandoned(context.Context, *domain.OutboxRecord) error { return nil }

// ============================================================================
// Account
// ============================================================================

type stubCustomers struct {
	customer *domain.Customer
	revoked  []string
}

func (c *stubCustomers) CreateAccessToken(_ context.Context, email, password string) (*domain.AccessToken, error) {
	if email != c.customer.Email || password != "correct-horse" {
		return nil, apperrors.Unauthorized("invalid email or password")
	}
	return &domain.AccessToken{Token: "platform-token", ExpiresAt: time.Now().Add(24 * time.Hour)}, nil
}

func (c *stubCustomers) DeleteAccessToken(_ context.Context, token string) error {
	c.revoked = append(c.revoked, token)
	return nil
}

func (c *stubCustomers) CreateCustomer(_ context.Context, in domain.NewCustomer) (string, error) {
	if in.Email == c.customer.Email {
		taken := apperrors.Conflict("ALREADY_EXISTS", "has already been taken")
		taken.Fields = map[string]string{"email": "has already been taken"}
		return "", taken
	}
	return "gid://shopify/Customer/8", nil
}

func (c *stubCustomers) Recover(context.Context, string) error { return nil }

func (c *stubCustomers) Customer(_ context.Context, token string) (*domain.Customer, error) {
	if token != "platform-token" {
		return nil, apperrors.Unauthorized("invalid access token")
	}
	return c.customer, nil
}

func (c *stubCustomers) UpdateCustomer(_ context.Context, _ string, upd domain.CustomerUpdate) (*domain.Customer, *domain.AccessToken, error) {
	updated := *c.customer
	if upd.FirstName != nil {
		updated.FirstName = *upd.FirstName
	}
	return &updated, nil, nil
}

func (c *stubCustomers) CreateAddress(_ context.Context, _ string, addr domain.Address) (*domain.Address, error) {
	addr.ID = "gid://shopify/MailingAddress/1"
	return &addr, nil
}

func (c *stubCustomers) UpdateAddress(_ context.Context, _, id string, addr domain.Address) (*domain.Address, error) {
	addr.ID = id
	return &addr, nil
}

func (c *stubCustomers) DeleteAddress(context.Context, string, string) error { return nil }

func (c *stubCustomers) SetDefaultAddress(context.Context, string, string) error { return nil }

func (c *stubCustomers) CustomerOrders(context.Context, string, pagination.Params) (pagination.Result[domain.Order], error) {
	return pagination.NewResult([]domain.Order{{ID: "gid://shopify/Order/1042", Name: "#1042"}}, pagination.PageInfo{}), nil
}

// ============================================================================
// Shipping
// ============================================================================

type stubQuoter struct{}

func (stubQuoter) Rates(context.Context, domain.RateQuery) ([]domain.ShippingRate, error) {
	return []domain.ShippingRate{
		{CourierName: "Delhivery", Rate: 7900, EstimatedDays: 4},
		{CourierName: "Blue Dart", Rate: 12900, EstimatedDays: 2},
	}, nil
}

// ============================================================================
// Server
// ============================================================================

type testServer struct {
	handler   http.Handler
	mr        *miniredis.Miniredis
	catalog   *stubCatalog
	outbox    *memOutbox
	orders    *stubOrders
	customers *stubCustomers
	sessions  *auth.SessionManager
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := testLogger()
	ts := &testServer{
		mr: mr,
		catalog: &stubCatalog{
			products: map[string]*domain.Product{
				"linen-shirt": {
					ID:     "gid://shopify/Product/1",
					Handle: "linen-shirt",
					Title:  "Linen Shirt",
					Variants: []domain.Variant{
						{ID: variantGID, Title: "M", Price: 129900, Available: true, QuantityAvailable: 3},
					},
					Currency:  "INR",
					Available: true,
				},
			},
			stock: map[string]domain.VariantStock{
				variantGID: {VariantID: variantGID, Available: true, QuantityAvailable: 3},
			},
		},
		outbox: newMemOutbox(),
		orders: &stubOrders{orders: map[string]*domain.Order{
			"gid://shopify/Order/1042": {ID: "gid://shopify/Order/1042", Name: "#1042", Email: "asha@example.in"},
		}},
		customers: &stubCustomers{customer: &domain.Customer{
			ID:        customerGID,
			FirstName: "Asha",
			LastName:  "Rao",
			Email:     "asha@example.in",
		}},
		sessions: auth.NewSessionManager("test-session-secret-0123456789abcdef", time.Hour),
	}

	carts := redisrepo.NewCartRepository(client, time.Hour)
	reconciler := service.NewReconciler(ts.orders, ts.outbox, carts, nopEvents{}, service.ReconcileConfig{
		Interval:    time.Minute,
		BatchSize:   10,
		MaxAttempts: 5,
		Lease:       30 * time.Second,
		BackoffBase: time.Second,
		BackoffMax:  time.Minute,
	}, logger)

	svc := Services{
		Catalog:  service.NewCatalogService(ts.catalog, redisrepo.NewCatalogCache(client, time.Minute), 4, logger),
		Cart:     service.NewCartService(carts, ts.catalog, "INR", 4, logger),
		Wishlist: service.NewWishlistService(redisrepo.NewWishlistRepository(client, time.Hour), logger),
		Checkout: service.NewCheckoutService(stubGateway{}, carts, redisrepo.NewPaymentOrderRepository(client, time.Hour), ts.outbox, reconciler, nopEvents{}, "INR", logger),
		Account:  service.NewAccountService(ts.customers, ts.sessions, logger),
		Orders:   service.NewOrderService(ts.customers, ts.orders, logger),
		Shipping: service.NewShippingService(stubQuoter{}),
	}

	ts.handler = NewRouter(svc, RouterConfig{
		ServiceName:   "storefront-test",
		Sessions:      ts.sessions.Validator(),
		Health:        health.NewHandler(),
		CORSOrigins:   []string{"https://shop.example.in"},
		CatalogMaxAge: time.Minute,
	}, logger)
	return ts
}

// do sends a request through the router. headers are given as key/value pairs.
func (ts *testServer) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

// login returns a session token for the stub customer.
func (ts *testServer) login(t *testing.T) string {
	t.Helper()
	sess, err := ts.sessions.Issue(ts.customers.customer, &domain.AccessToken{
		Token:     "platform-token",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return sess.Token
}

func guest() []string {
	return []string{middleware.GuestHeader, guestID}
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	return decodeJSON[httputil.ErrorResponse](t, rec)
}
