package service

import (
	"context"

	"github.com/utafrali/storefront/internal/commerce"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/pagination"
)

// Catalog reads products and stock from the commerce platform.
type Catalog interface {
	Products(ctx context.Context, q commerce.ProductQuery) (pagination.Result[domain.Product], error)
	CollectionProducts(ctx context.Context, handle string, page pagination.Params) (pagination.Result[domain.Product], error)
	ProductByHandle(ctx context.Context, handle string) (*domain.Product, error)
	VariantStock(ctx context.Context, variantID string) (*domain.VariantStock, error)
}

// StockReader returns the live availability of a variant.
type StockReader interface {
	VariantStock(ctx context.Context, variantID string) (*domain.VariantStock, error)
}

// CustomerPlatform forwards account operations to the commerce platform.
// Every call after login carries the customer's platform access token.
type CustomerPlatform interface {
	CreateAccessToken(ctx context.Context, email, password string) (*domain.AccessToken, error)
	DeleteAccessToken(ctx context.Context, token string) error
	CreateCustomer(ctx context.Context, in domain.NewCustomer) (string, error)
	Recover(ctx context.Context, email string) error
	Customer(ctx context.Context, token string) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, token string, upd domain.CustomerUpdate) (*domain.Customer, *domain.AccessToken, error)
	CreateAddress(ctx context.Context, token string, addr domain.Address) (*domain.Address, error)
	UpdateAddress(ctx context.Context, token, id string, addr domain.Address) (*domain.Address, error)
	DeleteAddress(ctx context.Context, token, id string) error
	SetDefaultAddress(ctx context.Context, token, id string) error
	CustomerOrders(ctx context.Context, token string, page pagination.Params) (pagination.Result[domain.Order], error)
}

// OrderPlatform creates and reads orders through the platform admin API.
type OrderPlatform interface {
	CreateOrder(ctx context.Context, order domain.CheckoutOrder) (domain.PlacedOrder, error)
	FindOrderByPaymentID(ctx context.Context, paymentID string) (*domain.PlacedOrder, error)
	Order(ctx context.Context, id string) (*domain.Order, error)
}

// PaymentGateway creates gateway orders and verifies payment callbacks.
type PaymentGateway interface {
	Name() string
	CreateOrder(ctx context.Context, amount int64, currency string) (*domain.PaymentOrder, error)
	VerifySignature(orderID, paymentID, signature string) bool
}

// SessionIssuer signs session tokens.
type SessionIssuer interface {
	Issue(customer *domain.Customer, access *domain.AccessToken) (*domain.Session, error)
}

// RateQuoter quotes courier rates.
type RateQuoter interface {
	Rates(ctx context.Context, q domain.RateQuery) ([]domain.ShippingRate, error)
}

// EventPublisher publishes checkout events.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, rec *domain.OutboxRecord, placed domain.PlacedOrder) error
	PublishReconcile(ctx context.Context, paymentID string, attempts int, lastErr string) error
	PublishAbandoned(ctx context.Context, rec *domain.OutboxRecord) error
}
