package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/utafrali/storefront/internal/commerce"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/pagination"
)

// --- Mock Outbox Repository ---

type mockOutbox struct {
	mock.Mock
}

func (m *mockOutbox) Insert(ctx context.Context, rec *domain.OutboxRecord) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}

func (m *mockOutbox) Get(ctx context.Context, paymentID string) (*domain.OutboxRecord, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxRecord), args.Error(1)
}

func (m *mockOutbox) Claim(ctx context.Context, paymentID string, lease time.Duration) (*domain.OutboxRecord, error) {
	args := m.Called(ctx, paymentID, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxRecord), args.Error(1)
}

func (m *mockOutbox) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxRecord, error) {
	args := m.Called(ctx, limit, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxRecord), args.Error(1)
}

func (m *mockOutbox) MarkCompleted(ctx context.Context, paymentID string, placed domain.PlacedOrder) error {
	return m.Called(ctx, paymentID, placed).Error(0)
}

func (m *mockOutbox) MarkFailed(ctx context.Context, paymentID string, attempts int, lastErr string, next time.Time) error {
	return m.Called(ctx, paymentID, attempts, lastErr, next).Error(0)
}

func (m *mockOutbox) MarkAbandoned(ctx context.Context, paymentID string, attempts int, lastErr string) error {
	return m.Called(ctx, paymentID, attempts, lastErr).Error(0)
}

// --- Mock Order Platform ---

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) CreateOrder(ctx context.Context, order domain.CheckoutOrder) (domain.PlacedOrder, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(domain.PlacedOrder), args.Error(1)
}

func (m *mockOrders) FindOrderByPaymentID(ctx context.Context, paymentID string) (*domain.PlacedOrder, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PlacedOrder), args.Error(1)
}

func (m *mockOrders) Order(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

// --- Mock Payment Gateway ---

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "razorpay" }

func (m *mockGateway) CreateOrder(ctx context.Context, amount int64, currency string) (*domain.PaymentOrder, error) {
	args := m.Called(ctx, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentOrder), args.Error(1)
}

func (m *mockGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return m.Called(orderID, paymentID, signature).Bool(0)
}

// --- Mock Event Publisher ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishOrderCreated(ctx context.Context, rec *domain.OutboxRecord, placed domain.PlacedOrder) error {
	return m.Called(ctx, rec, placed).Error(0)
}

func (m *mockEvents) PublishReconcile(ctx context.Context, paymentID string, attempts int, lastErr string) error {
	return m.Called(ctx, paymentID, attempts, lastErr).Error(0)
}

func (m *mockEvents) PublishAbandoned(ctx context.Context, rec *domain.OutboxRecord) error {
	return m.Called(ctx, rec).Error(0)
}

// --- Mock Customer Platform ---

type mockCustomers struct {
	mock.Mock
}

func (m *mockCustomers) CreateAccessToken(ctx context.Context, email, password string) (*domain.AccessToken, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AccessToken), args.Error(1)
}

func (m *mockCustomers) DeleteAccessToken(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockCustomers) CreateCustomer(ctx context.Context, in domain.NewCustomer) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *mockCustomers) Recover(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockCustomers) Customer(ctx context.Context, token string) (*domain.Customer, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Customer), args.Error(1)
}

func (m *mockCustomers) UpdateCustomer(ctx context.Context, token string, upd domain.CustomerUpdate) (*domain.Customer, *domain.AccessToken, error) {
	args := m.Called(ctx, token, upd)
	var c *domain.Customer
	if v := args.Get(0); v != nil {
		c = v.(*domain.Customer)
	}
	var a *domain.AccessToken
	if v := args.Get(1); v != nil {
		a = v.(*domain.AccessToken)
	}
	return c, a, args.Error(2)
}

func (m *mockCustomers) CreateAddress(ctx context.Context, token string, addr domain.Address) (*domain.Address, error) {
	args := m.Called(ctx, token, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Address), args.Error(1)
}

func (m *mockCustomers) UpdateAddress(ctx context.Context, token, id string, addr domain.Address) (*domain.Address, error) {
	args := m.Called(ctx, token, id, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Address), args.Error(1)
}

func (m *mockCustomers) DeleteAddress(ctx context.Context, token, id string) error {
	return m.Called(ctx, token, id).Error(0)
}

func (m *mockCustomers) SetDefaultAddress(ctx context.Context, token, id string) error {
	return m.Called(ctx, token, id).Error(0)
}

func (m *mockCustomers) CustomerOrders(ctx context.Context, token string, page pagination.Params) (pagination.Result[domain.Order], error) {
	args := m.Called(ctx, token, page)
	return args.Get(0).(pagination.Result[domain.Order]), args.Error(1)
}

// --- Mock Session Issuer ---

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Issue(customer *domain.Customer, access *domain.AccessToken) (*domain.Session, error) {
	args := m.Called(customer, access)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

// --- Mock Catalog ---

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Products(ctx context.Context, q commerce.ProductQuery) (pagination.Result[domain.Product], error) {
	args := m.Called(ctx, q)
	return args.Get(0).(pagination.Result[domain.Product]), args.Error(1)
}

func (m *mockCatalog) CollectionProducts(ctx context.Context, handle string, page pagination.Params) (pagination.Result[domain.Product], error) {
	args := m.Called(ctx, handle, page)
	return args.Get(0).(pagination.Result[domain.Product]), args.Error(1)
}

func (m *mockCatalog) ProductByHandle(ctx context.Context, handle string) (*domain.Product, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockCatalog) VariantStock(ctx context.Context, variantID string) (*domain.VariantStock, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VariantStock), args.Error(1)
}

// --- Mock Rate Quoter ---

type mockQuoter struct {
	mock.Mock
}

func (m *mockQuoter) Rates(ctx context.Context, q domain.RateQuery) ([]domain.ShippingRate, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ShippingRate), args.Error(1)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}
