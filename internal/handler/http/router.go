package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

// Services groups the application services exposed over HTTP.
type Services struct {
	Catalog  *service.CatalogService
	Cart     *service.CartService
	Wishlist *service.WishlistService
	Checkout *service.CheckoutService
	Account  *service.AccountService
	Orders   *service.OrderService
	Shipping *service.ShippingService
}

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	ServiceName    string
	Sessions       middleware.TokenValidator
	RateLimiter    *middleware.RateLimiter
	TrustedProxies middleware.TrustedProxies
	Health         *health.Handler
	CORSOrigins    []string
	CatalogMaxAge  time.Duration
	RequestTimeout time.Duration
	PprofCIDRs     []string
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(svc Services, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(middleware.TracingConfig{ServiceName: cfg.ServiceName, Proxies: cfg.TrustedProxies}))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.LivenessHandler())
		r.Get("/health/ready", cfg.Health.ReadinessHandler())
	}
	r.Handle("/metrics", promhttp.Handler())

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	catalogHandler := NewCatalogHandler(svc.Catalog, logger)
	cartHandler := NewCartHandler(svc.Cart, logger)
	wishlistHandler := NewWishlistHandler(svc.Wishlist, logger)
	checkoutHandler := NewCheckoutHandler(svc.Checkout, logger)
	accountHandler := NewAccountHandler(svc.Account, svc.Orders, logger)
	shippingHandler := NewShippingHandler(svc.Shipping, logger)

	limited := func(h http.HandlerFunc) http.Handler {
		if cfg.RateLimiter == nil {
			return h
		}
		return cfg.RateLimiter.Middleware(h)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// Catalog
		r.Group(func(r chi.Router) {
			r.Use(middleware.CacheControl(cfg.CatalogMaxAge))

			r.Get("/products", catalogHandler.ListProducts)
			r.Get("/products/{handle}", catalogHandler.GetProduct)
			r.Get("/collections/{handle}/products", catalogHandler.CollectionProducts)
		})
		r.With(middleware.NoStore).Get("/variants/stock", catalogHandler.VariantStock)

		// Auth
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.NoStore)

			r.Method(http.MethodPost, "/login", limited(accountHandler.Login))
			r.Method(http.MethodPost, "/register", limited(accountHandler.Register))
			r.Method(http.MethodPost, "/recover", limited(accountHandler.RecoverPassword))
			r.With(middleware.Auth(cfg.Sessions)).Post("/logout", accountHandler.Logout)
		})

		// Account
		r.Route("/account", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Sessions))
			r.Use(middleware.RequestLogger(logger))
			r.Use(middleware.NoStore)

			r.Get("/", accountHandler.GetProfile)
			r.Patch("/", accountHandler.UpdateProfile)
			r.Put("/password", accountHandler.UpdatePassword)

			r.Get("/addresses", accountHandler.ListAddresses)
			r.Post("/addresses", accountHandler.CreateAddress)
			r.Put("/addresses/{id}", accountHandler.UpdateAddress)
			r.Delete("/addresses/{id}", accountHandler.DeleteAddress)
			r.Put("/addresses/{id}/default", accountHandler.SetDefaultAddress)

			r.Get("/orders", accountHandler.ListOrders)
			r.Get("/orders/{id}", accountHandler.GetOrder)
		})

		r.With(middleware.OptionalAuth(cfg.Sessions), middleware.NoStore).
			Get("/orders/{id}", accountHandler.LookupOrder)

		// Owner scoped: cart, wishlist and checkout
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.Sessions))
			r.Use(middleware.RequireOwner)
			r.Use(middleware.RequestLogger(logger))
			r.Use(middleware.NoStore)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Get("/stock", cartHandler.GetCartStock)

				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{variantId}", cartHandler.SetQuantity)
				r.Delete("/items/{variantId}", cartHandler.RemoveItem)
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", wishlistHandler.List)
				r.Post("/items", wishlistHandler.Add)
				r.Delete("/items/{productId}", wishlistHandler.Remove)
			})

			r.Method(http.MethodPost, "/checkout/session", limited(checkoutHandler.CreateSession))
			r.Method(http.MethodPost, "/checkout/orders", limited(checkoutHandler.PlaceOrder))
		})

		r.With(middleware.NoStore).Get("/checkout/orders/{paymentId}", checkoutHandler.GetStatus)
		r.Post("/shipping/rates", shippingHandler.Rates)
	})

	return r
}
