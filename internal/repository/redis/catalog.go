package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/repository"
)

const catalogKeyPrefix = "catalog:"

// CatalogCache caches catalog query results as JSON. Keys are hashed so
// that arbitrary search queries map to bounded Redis keys.
type CatalogCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ repository.CatalogCache = (*CatalogCache)(nil)

// NewCatalogCache creates a cache whose entries live for ttl. A zero ttl
// disables caching.
func NewCatalogCache(client redis.Cmdable, ttl time.Duration) *CatalogCache {
	return &CatalogCache{client: client, ttl: ttl}
}

func catalogKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return catalogKeyPrefix + hex.EncodeToString(sum[:16])
}

// Get decodes the cached value for key into dst.
func (c *CatalogCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c.ttl <= 0 {
		return false, nil
	}
	data, err := c.client.Get(ctx, catalogKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get catalog: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("unmarshal catalog entry: %w", err)
	}
	return true, nil
}

// Set stores v under key.
func (c *CatalogCache) Set(ctx context.Context, key string, v any) error {
	if c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal catalog entry: %w", err)
	}
	if err := c.client.Set(ctx, catalogKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set catalog: %w", err)
	}
	return nil
}
