package repository

import (
	"context"
	"time"

	"github.com/utafrali/storefront/internal/domain"
)

// CartMutation changes a cart in place. Returning an error aborts the
// update and leaves the stored cart untouched.
type CartMutation func(cart *domain.Cart) error

// CartRepository defines the interface for cart persistence operations.
type CartRepository interface {
	// Get retrieves the cart of owner. A missing cart is ErrNotFound.
	Get(ctx context.Context, owner string) (*domain.Cart, error)

	// Update applies fn to the current cart (an empty one if none exists)
	// and stores the result atomically. A cart left with no items is deleted.
	Update(ctx context.Context, owner string, fn CartMutation) (*domain.Cart, error)

	// Delete removes the cart of owner.
	Delete(ctx context.Context, owner string) error
}

// WishlistRepository defines the interface for wishlist persistence.
type WishlistRepository interface {
	// List returns all saved items of owner in no particular order.
	List(ctx context.Context, owner string) ([]domain.WishlistItem, error)

	// Add saves item unless its product is already saved. It reports
	// whether the item was added.
	Add(ctx context.Context, owner string, item domain.WishlistItem) (bool, error)

	// Remove deletes productID. It reports whether anything was removed.
	Remove(ctx context.Context, owner, productID string) (bool, error)

	// Contains reports whether productID is saved.
	Contains(ctx context.Context, owner, productID string) (bool, error)
}

// CatalogCache is a short-lived read-through cache for catalog responses.
type CatalogCache interface {
	// Get decodes the cached value for key into dst. It reports whether
	// there was a hit.
	Get(ctx context.Context, key string, dst any) (bool, error)

	// Set stores v under key with the cache TTL.
	Set(ctx context.Context, key string, v any) error
}

// PaymentOrderRepository keeps the cart snapshot of each gateway order
// until the payment is placed or the snapshot expires.
type PaymentOrderRepository interface {
	// Save stores p under its gateway order id.
	Save(ctx context.Context, p *domain.PendingPayment) error

	// Get returns the snapshot for gatewayOrderID or ErrNotFound.
	Get(ctx context.Context, gatewayOrderID string) (*domain.PendingPayment, error)
}

// OutboxRepository persists checkout outbox records.
type OutboxRepository interface {
	// Insert stores a new record. An existing record with the same payment
	// id is left untouched and created is false.
	Insert(ctx context.Context, rec *domain.OutboxRecord) (created bool, err error)

	// Get returns the record for paymentID or ErrNotFound.
	Get(ctx context.Context, paymentID string) (*domain.OutboxRecord, error)

	// Claim moves a pending or failed record, or a processing record whose
	// lease has expired, to processing for lease. It returns nil and no
	// error when the record cannot be claimed.
	Claim(ctx context.Context, paymentID string, lease time.Duration) (*domain.OutboxRecord, error)

	// ClaimDue claims up to limit records that are due for a retry.
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxRecord, error)

	// MarkCompleted records the platform order and releases the lease.
	MarkCompleted(ctx context.Context, paymentID string, placed domain.PlacedOrder) error

	// MarkFailed records a failed attempt and schedules the next one.
	MarkFailed(ctx context.Context, paymentID string, attempts int, lastErr string, next time.Time) error

	// MarkAbandoned stops automatic retries for the record.
	MarkAbandoned(ctx context.Context, paymentID string, attempts int, lastErr string) error
}
