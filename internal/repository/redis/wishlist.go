package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
)

const wishlistKeyPrefix = "wishlist:"

// WishlistRepository stores each wishlist as a Redis hash keyed by product id.
type WishlistRepository struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ repository.WishlistRepository = (*WishlistRepository)(nil)

// NewWishlistRepository creates a new Redis-backed wishlist repository.
func NewWishlistRepository(client redis.Cmdable, ttl time.Duration) *WishlistRepository {
	return &WishlistRepository{client: client, ttl: ttl}
}

func wishlistKey(owner string) string { return wishlistKeyPrefix + owner }

// List returns every saved item of owner.
func (r *WishlistRepository) List(ctx context.Context, owner string) ([]domain.WishlistItem, error) {
	fields, err := r.client.HGetAll(ctx, wishlistKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall wishlist: %w", err)
	}

	items := make([]domain.WishlistItem, 0, len(fields))
	for productID, raw := range fields {
		var item domain.WishlistItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("unmarshal wishlist item %s: %w", productID, err)
		}
		item.ProductID = productID
		items = append(items, item)
	}
	return items, nil
}

// Add stores item with HSETNX, so an existing entry keeps its original
// AddedAt. The hash expiry slides on every add.
func (r *WishlistRepository) Add(ctx context.Context, owner string, item domain.WishlistItem) (bool, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("marshal wishlist item: %w", err)
	}

	key := wishlistKey(owner)
	var added *redis.BoolCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.HSetNX(ctx, key, item.ProductID, payload)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis hsetnx wishlist: %w", err)
	}
	return added.Val(), nil
}

// Remove deletes productID from the wishlist of owner.
func (r *WishlistRepository) Remove(ctx context.Context, owner, productID string) (bool, error) {
	n, err := r.client.HDel(ctx, wishlistKey(owner), productID).Result()
	if err != nil {
		return false, fmt.Errorf("redis hdel wishlist: %w", err)
	}
	return n > 0, nil
}

// Contains reports whether productID is saved by owner.
func (r *WishlistRepository) Contains(ctx context.Context, owner, productID string) (bool, error) {
	ok, err := r.client.HExists(ctx, wishlistKey(owner), productID).Result()
	if err != nil {
		return false, fmt.Errorf("redis hexists wishlist: %w", err)
	}
	return ok, nil
}
