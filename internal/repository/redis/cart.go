package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const (
	cartKeyPrefix = "cart:"

	// maxTxRetries bounds optimistic retries when a concurrent writer
	// touches the cart between WATCH and EXEC.
	maxTxRetries = 3
)

// CartRepository implements repository.CartRepository using Redis.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

var _ repository.CartRepository = (*CartRepository)(nil)

// NewCartRepository creates a new Redis-backed cart repository. Every write
// slides the key's expiry forward by ttl.
func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func cartKey(owner string) string { return cartKeyPrefix + owner }

// Get retrieves the cart of owner from Redis.
func (r *CartRepository) Get(ctx context.Context, owner string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(owner)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart", owner)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}
	return decodeCart(data)
}

// Update runs fn inside WATCH/MULTI on the cart key and retries when a
// concurrent writer wins the race.
func (r *CartRepository) Update(ctx context.Context, owner string, fn repository.CartMutation) (*domain.Cart, error) {
	key := cartKey(owner)
	var result *domain.Cart

	txf := func(tx *redis.Tx) error {
		cart := domain.NewCart(owner, "")
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("redis get cart: %w", err)
		default:
			if cart, err = decodeCart(data); err != nil {
				return err
			}
		}

		if err := fn(cart); err != nil {
			return err
		}
		cart.UpdatedAt = r.now()

		payload, err := json.Marshal(cart)
		if err != nil {
			return fmt.Errorf("marshal cart: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(cart.Items) == 0 {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = cart
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}

	return nil, apperrors.Conflict("CART_CONFLICT", "cart was modified concurrently, please retry")
}

// Delete removes the cart of owner.
func (r *CartRepository) Delete(ctx context.Context, owner string) error {
	if err := r.client.Del(ctx, cartKey(owner)).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}
	return nil
}

func decodeCart(data []byte) (*domain.Cart, error) {
	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return &cart, nil
}
