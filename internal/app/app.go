package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/auth"
	"github.com/utafrali/storefront/internal/commerce"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/logistics"
	"github.com/utafrali/storefront/internal/payment"
	"github.com/utafrali/storefront/internal/repository/postgres"
	redisrepo "github.com/utafrali/storefront/internal/repository/redis"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
)

// idempotencyTTL bounds how long consumed reconcile event ids are remembered.
const idempotencyTTL = 24 * time.Hour

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumer       *pkgkafka.Consumer
	reconciler     *service.Reconciler
	rateLimiter    *middleware.RateLimiter
	httpServer     *http.Server
	shutdownTracer func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.closeStores()
		}
	}()

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.shutdownTracer = shutdownTracer

	// Initialize Redis client.
	a.rdb, err = database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("addr", cfg.Redis().Addr()),
		slog.Int("db", cfg.RedisDB),
	)

	// Initialize PostgreSQL connection pool and apply migrations.
	pgCfg := cfg.Postgres()
	a.pool, err = database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RunMigrations(ctx, a.pool, postgres.Migrations(), logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	database.SetSlowQueryLogging(time.Duration(cfg.LogSlowQueryMS)*time.Millisecond, logger)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, a.pool, cfg.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Initialize Kafka. Without brokers events are dropped and only the
	// sweep retries failed checkouts.
	var publisher pkgkafka.Publisher = pkgkafka.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Warn("KAFKA_BROKERS is empty, checkout events are disabled")
	}

	// Upstream clients, one circuit breaker each.
	storefrontHTTP := a.upstream("commerce-storefront", httpclient.DefaultConfig())
	adminHTTP := a.upstream("commerce-admin", httpclient.DefaultConfig())
	gatewayCfg := httpclient.DefaultConfig()
	gatewayCfg.MaxRetries = 0
	gatewayHTTP := a.upstream("payment-gateway", gatewayCfg)
	logisticsHTTP := a.upstream("logistics", httpclient.DefaultConfig())

	storefront := commerce.NewStorefront(storefrontHTTP, cfg.CommerceStoreDomain, cfg.CommerceAPIVersion, cfg.CommerceStorefrontToken, logger)
	admin := commerce.NewAdmin(adminHTTP, cfg.CommerceStoreDomain, cfg.CommerceAPIVersion, cfg.CommerceAdminToken, cfg.PaymentGatewayName, logger)
	gateway := payment.NewGateway(gatewayHTTP, payment.Config{
		BaseURL:   cfg.PaymentBaseURL,
		KeyID:     cfg.PaymentKeyID,
		KeySecret: cfg.PaymentKeySecret,
		Name:      cfg.PaymentGatewayName,
	}, logger)
	courier := logistics.NewClient(logisticsHTTP, logistics.Config{
		BaseURL:        cfg.LogisticsBaseURL,
		Email:          cfg.LogisticsEmail,
		Password:       cfg.LogisticsPassword,
		PickupPostcode: cfg.LogisticsPickupPostcode,
	}, logger)

	// Build the dependency graph.
	carts := redisrepo.NewCartRepository(a.rdb, cfg.CartTTL)
	wishlists := redisrepo.NewWishlistRepository(a.rdb, cfg.WishlistTTL)
	payments := redisrepo.NewPaymentOrderRepository(a.rdb, cfg.PaymentOrderTTL)
	catalogCache := redisrepo.NewCatalogCache(a.rdb, cfg.CatalogCacheTTL)
	outbox := postgres.NewOutboxRepository(a.pool)
	events := event.NewProducer(publisher, logger)
	sessions := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL)

	a.reconciler = service.NewReconciler(admin, outbox, carts, events, service.ReconcileConfig{
		Interval:    cfg.ReconcileInterval,
		BatchSize:   cfg.ReconcileBatchSize,
		MaxAttempts: cfg.ReconcileMaxAttempts,
		Lease:       cfg.ReconcileLease,
		BackoffBase: cfg.ReconcileBackoffBase,
		BackoffMax:  cfg.ReconcileBackoffMax,
	}, logger)

	services := handler.Services{
		Catalog:  service.NewCatalogService(storefront, catalogCache, cfg.CatalogStockConcurrency, logger),
		Cart:     service.NewCartService(carts, storefront, cfg.Currency, cfg.CatalogStockConcurrency, logger),
		Wishlist: service.NewWishlistService(wishlists, logger),
		Checkout: service.NewCheckoutService(gateway, carts, payments, outbox, a.reconciler, events, cfg.Currency, logger),
		Account:  service.NewAccountService(storefront, sessions, logger),
		Orders:   service.NewOrderService(storefront, admin, logger),
		Shipping: service.NewShippingService(courier),
	}

	// Reconcile consumer: the fast path for failed checkouts.
	if len(cfg.KafkaBrokers) > 0 {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		reconcileHandler := event.NewConsumer(a.reconciler, logger)
		a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaConsumerGroup,
			Topic:   event.TopicCheckoutReconcile,
		}, pkgkafka.IdempotentHandler(
			pkgkafka.NewRedisIdempotencyStore(a.rdb, idempotencyTTL),
			reconcileHandler.HandleReconcile,
			logger,
		), a.dlq, logger)
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return a.rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return a.pool.Ping(ctx)
	})
	if a.producer != nil {
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, err
	}
	a.rateLimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger).
		WithTrustedProxies(proxies)

	// HTTP router.
	router := handler.NewRouter(services, handler.RouterConfig{
		ServiceName:    cfg.ServiceName,
		Sessions:       sessions.Validator(),
		RateLimiter:    a.rateLimiter,
		TrustedProxies: proxies,
		Health:         healthHandler,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		CatalogMaxAge:  cfg.CatalogCacheTTL,
		RequestTimeout: cfg.HTTPRequestTimeout,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.HTTPRequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ok = true
	return a, nil
}

func (a *App) upstream(name string, cfg httpclient.Config) *httpclient.CircuitBreakerClient {
	return httpclient.NewCircuitBreakerClient(httpclient.New(cfg), a.cfg.CircuitBreaker(name), a.logger).
		WithFallback(httpclient.UnavailableFallback(name))
}

// Run starts the HTTP server and the background workers and blocks until
// the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	workers, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.reconciler.Run(workers)
	}()
	go func() {
		defer wg.Done()
		a.rateLimiter.Run(workers)
	}()
	if a.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.consumer.Start(workers); err != nil {
				errCh <- fmt.Errorf("reconcile consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	// Drain HTTP before stopping the workers so in-flight checkouts finish.
	err := a.shutdownHTTP()
	stopWorkers()
	wg.Wait()

	return errors.Join(runErr, err, a.Shutdown())
}

func (a *App) shutdownHTTP() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// Shutdown releases Kafka, the stores and the tracer. The HTTP server and
// the workers must already be stopped.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// The consumer closes its reader when Start returns.
	var errs []error
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka dlq close: %w", err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka producer close: %w", err))
		}
	}

	errs = append(errs, a.closeStores())

	if a.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		a.logger.Error("application shutdown finished with errors", slog.String("error", err.Error()))
		return err
	}
	a.logger.Info("application shutdown complete")
	return nil
}

func (a *App) closeStores() error {
	var err error
	if a.rdb != nil {
		if cerr := a.rdb.Close(); cerr != nil {
			err = fmt.Errorf("redis close: %w", cerr)
		}
		a.rdb = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return err
}
