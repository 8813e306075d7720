package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/utafrali/storefront/internal/commerce"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/pkg/slug"
)

// MaxStockLookup is the most variant ids a single stock request may name.
const MaxStockLookup = 50

// CatalogService serves product reads from the commerce platform through a
// short-lived cache.
type CatalogService struct {
	catalog     Catalog
	cache       repository.CatalogCache
	concurrency int
	logger      *slog.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(catalog Catalog, cache repository.CatalogCache, concurrency int, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		catalog:     catalog,
		cache:       cache,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ListProducts lists products, optionally filtered by a search query.
func (s *CatalogService) ListProducts(ctx context.Context, q commerce.ProductQuery) (pagination.Result[domain.Product], error) {
	if _, ok := domain.ProductSort[q.Sort]; !ok {
		return pagination.Result[domain.Product]{}, apperrors.InvalidFields("invalid sort", map[string]string{
			"sort": "must be one of relevance, newest, price_asc, price_desc, title, bestseller",
		})
	}
	q.Search = strings.TrimSpace(q.Search)

	key := fmt.Sprintf("products|%d|%s|%s|%s", q.Page.First, q.Page.After, q.Sort, q.Search)
	return cached(ctx, s, key, func() (pagination.Result[domain.Product], error) {
		return s.catalog.Products(ctx, q)
	})
}

// CollectionProducts lists the products of a collection.
func (s *CatalogService) CollectionProducts(ctx context.Context, handle string, page pagination.Params) (pagination.Result[domain.Product], error) {
	if !slug.IsValid(handle) {
		return pagination.Result[domain.Product]{}, apperrors.InvalidInput("invalid collection handle")
	}

	key := fmt.Sprintf("collection|%s|%d|%s", handle, page.First, page.After)
	return cached(ctx, s, key, func() (pagination.Result[domain.Product], error) {
		return s.catalog.CollectionProducts(ctx, handle, page)
	})
}

// ProductByHandle returns one product.
func (s *CatalogService) ProductByHandle(ctx context.Context, handle string) (*domain.Product, error) {
	if !slug.IsValid(handle) {
		return nil, apperrors.InvalidInput("invalid product handle")
	}

	return cached(ctx, s, "product|"+handle, func() (*domain.Product, error) {
		return s.catalog.ProductByHandle(ctx, handle)
	})
}

// VariantStock returns the live availability of each variant, in the order
// given. Stock is never cached.
func (s *CatalogService) VariantStock(ctx context.Context, ids []string) ([]domain.VariantStock, error) {
	if len(ids) == 0 {
		return nil, apperrors.InvalidInput("at least one variant id is required")
	}
	if len(ids) > MaxStockLookup {
		return nil, apperrors.InvalidInput(fmt.Sprintf("at most %d variant ids are allowed", MaxStockLookup))
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, apperrors.InvalidInput("variant ids must not be empty")
		}
	}

	stock, err := fetchStock(ctx, s.catalog, ids, s.concurrency)
	if err != nil {
		return nil, fmt.Errorf("variant stock: %w", err)
	}
	return stock, nil
}

// cached is a read-through helper. Cache failures are logged and the
// platform is asked directly.
func cached[T any](ctx context.Context, s *CatalogService, key string, load func() (T, error)) (T, error) {
	var v T
	hit, err := s.cache.Get(ctx, key, &v)
	if err != nil {
		s.logger.WarnContext(ctx, "catalog cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	if hit {
		return v, nil
	}

	v, err = load()
	if err != nil {
		return v, err
	}

	if err := s.cache.Set(ctx, key, v); err != nil {
		s.logger.WarnContext(ctx, "catalog cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return v, nil
}

// fetchStock looks up every id concurrently, at most limit at a time. A
// variant the platform reports as missing reads as unavailable; any other
// failure aborts the whole lookup.
func fetchStock(ctx context.Context, reader StockReader, ids []string, limit int) ([]domain.VariantStock, error) {
	out := make([]domain.VariantStock, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, id := range ids {
		g.Go(func() error {
			st, err := reader.VariantStock(gctx, id)
			switch {
			case errors.Is(err, apperrors.ErrNotFound):
				out[i] = domain.VariantStock{VariantID: id}
			case err != nil:
				return err
			default:
				out[i] = *st
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
