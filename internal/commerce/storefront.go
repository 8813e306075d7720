package commerce

import (
	"context"
	"log/slog"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
)

// StorefrontTokenHeader authenticates Storefront API calls.
const StorefrontTokenHeader = "X-Shopify-Storefront-Access-Token"

// StorefrontPath returns the Storefront GraphQL path for an API version.
func StorefrontPath(version string) string {
	return "/api/" + version + "/graphql.json"
}

const productFields = `
fragment ProductFields on Product {
  id handle title description vendor productType tags availableForSale
  priceRange {
    minVariantPrice { amount currencyCode }
    maxVariantPrice { amount currencyCode }
  }
  images(first: 10) { nodes { url altText } }
  options { name values }
  variants(first: 100) {
    nodes {
      id title sku availableForSale quantityAvailable
      price { amount currencyCode }
      compareAtPrice { amount currencyCode }
      selectedOptions { name value }
      image { url }
    }
  }
}`

const (
	productsQuery = `
query Products($first: Int!, $after: String, $query: String, $sortKey: ProductSortKeys, $reverse: Boolean) {
  products(first: $first, after: $after, query: $query, sortKey: $sortKey, reverse: $reverse) {
    nodes { ...ProductFields }
    pageInfo { hasNextPage endCursor }
  }
}` + productFields

	collectionProductsQuery = `
query CollectionProducts($handle: String!, $first: Int!, $after: String) {
  collection(handle: $handle) {
    products(first: $first, after: $after) {
      nodes { ...ProductFields }
      pageInfo { hasNextPage endCursor }
    }
  }
}` + productFields

	productByHandleQuery = `
query ProductByHandle($handle: String!) {
  product(handle: $handle) { ...ProductFields }
}` + productFields

	variantStockQuery = `
query VariantStock($id: ID!) {
  node(id: $id) {
    ... on ProductVariant { id availableForSale quantityAvailable }
  }
}`
)

// Storefront is the catalog and customer side of the commerce platform.
type Storefront struct {
	gql *GraphQLClient
}

// NewStorefront creates a Storefront API client.
func NewStorefront(doer Doer, storeDomain, apiVersion, token string, logger *slog.Logger) *Storefront {
	endpoint := Endpoint(storeDomain, StorefrontPath(apiVersion))
	return &Storefront{
		gql: NewGraphQLClient(doer, endpoint, StorefrontTokenHeader, token, "commerce-storefront", logger),
	}
}

// ProductQuery filters and orders a product listing.
type ProductQuery struct {
	Page   pagination.Params
	Search string
	Sort   string
}

// Products lists catalog products.
func (s *Storefront) Products(ctx context.Context, q ProductQuery) (pagination.Result[domain.Product], error) {
	vars := map[string]any{"first": q.Page.First}
	if q.Page.After != "" {
		vars["after"] = q.Page.After
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		vars["query"] = search
	}
	key, ok := domain.ProductSort[q.Sort]
	if !ok {
		return pagination.Result[domain.Product]{}, apperrors.InvalidFields("invalid sort", map[string]string{
			"sort": "must be one of relevance, newest, price_asc, price_desc, title, bestseller",
		})
	}
	vars["sortKey"] = key
	vars["reverse"] = q.Sort == "newest" || q.Sort == "price_desc"

	var out struct {
		Products productConnection `json:"products"`
	}
	if err := s.gql.Query(ctx, "Products", productsQuery, vars, &out); err != nil {
		return pagination.Result[domain.Product]{}, err
	}
	return out.Products.toDomain(), nil
}

// CollectionProducts lists the products of the collection with handle.
func (s *Storefront) CollectionProducts(ctx context.Context, handle string, page pagination.Params) (pagination.Result[domain.Product], error) {
	vars := map[string]any{"handle": handle, "first": page.First}
	if page.After != "" {
		vars["after"] = page.After
	}

	var out struct {
		Collection *struct {
			Products productConnection `json:"products"`
		} `json:"collection"`
	}
	if err := s.gql.Query(ctx, "CollectionProducts", collectionProductsQuery, vars, &out); err != nil {
		return pagination.Result[domain.Product]{}, err
	}
	if out.Collection == nil {
		return pagination.Result[domain.Product]{}, apperrors.NotFound("collection", handle)
	}
	return out.Collection.Products.toDomain(), nil
}

// ProductByHandle returns one product.
func (s *Storefront) ProductByHandle(ctx context.Context, handle string) (*domain.Product, error) {
	var out struct {
		Product *gqlProduct `json:"product"`
	}
	if err := s.gql.Query(ctx, "ProductByHandle", productByHandleQuery, map[string]any{"handle": handle}, &out); err != nil {
		return nil, err
	}
	if out.Product == nil {
		return nil, apperrors.NotFound("product", handle)
	}
	p := out.Product.toDomain()
	return &p, nil
}

// VariantStock returns the live availability of one variant.
func (s *Storefront) VariantStock(ctx context.Context, variantID string) (*domain.VariantStock, error) {
	var out struct {
		Node *struct {
			ID                string `json:"id"`
			AvailableForSale  bool   `json:"availableForSale"`
			QuantityAvailable *int   `json:"quantityAvailable"`
		} `json:"node"`
	}
	if err := s.gql.Query(ctx, "VariantStock", variantStockQuery, map[string]any{"id": variantID}, &out); err != nil {
		return nil, err
	}
	if out.Node == nil || out.Node.ID == "" {
		return nil, apperrors.NotFound("variant", variantID)
	}

	stock := &domain.VariantStock{VariantID: out.Node.ID, Available: out.Node.AvailableForSale}
	if out.Node.QuantityAvailable != nil {
		stock.QuantityAvailable = max(*out.Node.QuantityAvailable, 0)
	}
	return stock, nil
}
