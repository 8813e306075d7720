package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/internal/commerce"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/pagination"
)

// CatalogHandler handles HTTP requests for product endpoints.
type CatalogHandler struct {
	service *service.CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog HTTP handler.
func NewCatalogHandler(svc *service.CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{service: svc, logger: logger}
}

// ListProducts handles GET /api/v1/products?first=&after=&query=&sort=
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.service.ListProducts(r.Context(), commerce.ProductQuery{
		Page:   pagination.FromRequest(r),
		Search: q.Get("query"),
		Sort:   q.Get("sort"),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// GetProduct handles GET /api/v1/products/{handle}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.ProductByHandle(r.Context(), pathParam(r, "handle"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, product)
}

// CollectionProducts handles GET /api/v1/collections/{handle}/products
func (h *CatalogHandler) CollectionProducts(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.CollectionProducts(r.Context(), pathParam(r, "handle"), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// VariantStock handles GET /api/v1/variants/stock?ids=a,b
// Repeated ids parameters are accepted too.
func (h *CatalogHandler) VariantStock(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, v := range r.URL.Query()["ids"] {
		for _, id := range strings.Split(v, ",") {
			ids = append(ids, strings.TrimSpace(id))
		}
	}

	stock, err := h.service.VariantStock(r.Context(), ids)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": stock})
}
