package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/tracing"
)

// Config holds all configuration for the storefront service.
type Config struct {
	ServiceName        string        `env:"SERVICE_NAME" envDefault:"storefront"`
	Environment        string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort           int           `env:"HTTP_PORT" envDefault:"8080"`
	HTTPRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`

	// PostgreSQL (checkout outbox)
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:""`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"storefront"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	PostgresMaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	LogSlowQueryMS   int    `env:"LOG_SLOW_QUERY_MS" envDefault:"200"`

	// Redis (cart, wishlist, catalog cache, event idempotency)
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka. Empty brokers disables publishing and the reconcile consumer.
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"storefront-reconciler"`

	// Commerce platform
	CommerceStoreDomain     string `env:"COMMERCE_STORE_DOMAIN"`
	CommerceAPIVersion      string `env:"COMMERCE_API_VERSION" envDefault:"2024-10"`
	CommerceStorefrontToken string `env:"COMMERCE_STOREFRONT_TOKEN"`
	CommerceAdminToken      string `env:"COMMERCE_ADMIN_TOKEN"`

	// Payment gateway
	PaymentBaseURL     string `env:"PAYMENT_BASE_URL" envDefault:"https://api.razorpay.com"`
	PaymentKeyID       string `env:"PAYMENT_KEY_ID"`
	PaymentKeySecret   string `env:"PAYMENT_KEY_SECRET"`
	PaymentGatewayName string `env:"PAYMENT_GATEWAY_NAME" envDefault:"razorpay"`
	Currency           string `env:"STORE_CURRENCY" envDefault:"INR"`

	// PaymentOrderTTL is how long a payment order's cart snapshot is kept
	// for the checkout that pays it.
	PaymentOrderTTL time.Duration `env:"PAYMENT_ORDER_TTL" envDefault:"24h"`

	// Logistics
	LogisticsBaseURL        string `env:"LOGISTICS_BASE_URL" envDefault:"https://apiv2.shiprocket.in"`
	LogisticsEmail          string `env:"LOGISTICS_EMAIL"`
	LogisticsPassword       string `env:"LOGISTICS_PASSWORD"`
	LogisticsPickupPostcode string `env:"LOGISTICS_PICKUP_POSTCODE"`

	// Sessions
	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"720h"`

	// Cart, wishlist and catalog
	CartTTL                 time.Duration `env:"CART_TTL" envDefault:"720h"`
	WishlistTTL             time.Duration `env:"WISHLIST_TTL" envDefault:"2160h"`
	CatalogCacheTTL         time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"60s"`
	CatalogStockConcurrency int           `env:"CATALOG_STOCK_CONCURRENCY" envDefault:"8"`

	// Checkout reconciliation
	ReconcileInterval    time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`
	ReconcileBatchSize   int           `env:"RECONCILE_BATCH_SIZE" envDefault:"20"`
	ReconcileMaxAttempts int           `env:"RECONCILE_MAX_ATTEMPTS" envDefault:"10"`
	ReconcileLease       time.Duration `env:"RECONCILE_LEASE" envDefault:"2m"`
	ReconcileBackoffBase time.Duration `env:"RECONCILE_BACKOFF_BASE" envDefault:"10s"`
	ReconcileBackoffMax  time.Duration `env:"RECONCILE_BACKOFF_MAX" envDefault:"30m"`

	// Rate limiting for auth and checkout endpoints
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`

	// TrustedProxyCIDRs lists the load balancers whose X-Forwarded-For
	// header names the client. Empty means the peer address is the client.
	TrustedProxyCIDRs []string `env:"TRUSTED_PROXY_CIDRS" envSeparator:","`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Circuit breakers, shared by all upstreams
	CBMaxRequests  uint32        `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     time.Duration `env:"CB_INTERVAL" envDefault:"60s"`
	CBTimeout      time.Duration `env:"CB_TIMEOUT" envDefault:"30s"`
	CBFailureRatio float64       `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32        `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELInsecure   bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants. Every missing secret is
// reported at once.
func (c *Config) Validate() error {
	var errs []error

	required := []struct{ name, value string }{
		{"COMMERCE_STORE_DOMAIN", c.CommerceStoreDomain},
		{"COMMERCE_STOREFRONT_TOKEN", c.CommerceStorefrontToken},
		{"COMMERCE_ADMIN_TOKEN", c.CommerceAdminToken},
		{"PAYMENT_KEY_ID", c.PaymentKeyID},
		{"PAYMENT_KEY_SECRET", c.PaymentKeySecret},
		{"LOGISTICS_EMAIL", c.LogisticsEmail},
		{"LOGISTICS_PASSWORD", c.LogisticsPassword},
		{"SESSION_SECRET", c.SessionSecret},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if c.SessionSecret != "" && len(c.SessionSecret) < 32 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 32 bytes"))
	}
	if len(c.LogisticsPickupPostcode) != 6 {
		errs = append(errs, fmt.Errorf("LOGISTICS_PICKUP_POSTCODE must be 6 digits, got %q", c.LogisticsPickupPostcode))
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATE must be between 0.0 and 1.0"))
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1 {
		errs = append(errs, errors.New("CB_FAILURE_RATIO must be in (0, 1]"))
	}
	if c.CatalogStockConcurrency < 1 {
		errs = append(errs, errors.New("CATALOG_STOCK_CONCURRENCY must be positive"))
	}
	if c.ReconcileMaxAttempts < 1 || c.ReconcileBatchSize < 1 {
		errs = append(errs, errors.New("RECONCILE_MAX_ATTEMPTS and RECONCILE_BATCH_SIZE must be positive"))
	}
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"HTTP_REQUEST_TIMEOUT", c.HTTPRequestTimeout},
		{"RECONCILE_INTERVAL", c.ReconcileInterval},
		{"RECONCILE_LEASE", c.ReconcileLease},
		{"SESSION_TTL", c.SessionTTL},
		{"CART_TTL", c.CartTTL},
		{"WISHLIST_TTL", c.WishlistTTL},
		{"PAYMENT_ORDER_TTL", c.PaymentOrderTTL},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", d.name))
		}
	}
	// A checkout attempt runs inside the request, so its lease must outlast it.
	if c.HTTPRequestTimeout > 0 && c.ReconcileLease > 0 && c.ReconcileLease <= c.HTTPRequestTimeout {
		errs = append(errs, errors.New("RECONCILE_LEASE must be longer than HTTP_REQUEST_TIMEOUT"))
	}
	if c.ReconcileBackoffBase <= 0 || c.ReconcileBackoffMax < c.ReconcileBackoffBase {
		errs = append(errs, errors.New("RECONCILE_BACKOFF_MAX must be at least RECONCILE_BACKOFF_BASE"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	for _, cidr := range c.PprofAllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, fmt.Errorf("invalid PPROF_ALLOWED_CIDRS entry %q", cidr))
		}
	}
	for _, cidr := range c.TrustedProxyCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, fmt.Errorf("invalid TRUSTED_PROXY_CIDRS entry %q", cidr))
		}
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Postgres returns the connection settings for the outbox database.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPassword
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSLMode
	pg.MaxConns = c.PostgresMaxConns
	return pg
}

// Redis returns the Redis connection settings.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

// CircuitBreaker returns breaker settings for the named upstream.
func (c *Config) CircuitBreaker(upstream string) httpclient.CircuitBreakerConfig {
	cb := httpclient.DefaultCircuitBreakerConfig(upstream)
	if c.CBMaxRequests > 0 {
		cb.MaxRequests = c.CBMaxRequests
	}
	if c.CBInterval > 0 {
		cb.Interval = c.CBInterval
	}
	if c.CBTimeout > 0 {
		cb.Timeout = c.CBTimeout
	}
	if c.CBMinRequests > 0 {
		cb.MinRequests = c.CBMinRequests
	}
	cb.FailureRatio = c.CBFailureRatio
	return cb
}

// Tracing returns the OpenTelemetry exporter settings.
func (c *Config) Tracing() tracing.Config {
	tc := tracing.DefaultConfig(c.ServiceName)
	tc.Environment = c.Environment
	tc.Enabled = c.OTELEnabled
	tc.OTLPEndpoint = c.OTELEndpoint
	tc.Insecure = c.OTELInsecure
	tc.SampleRate = c.OTELSampleRate
	return tc
}
