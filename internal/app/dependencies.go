// Package app wires configuration into the services shared by the API and
// the worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/catalog"
	"github.com/noah-isme/toko-storefront/internal/checkout"
	"github.com/noah-isme/toko-storefront/internal/config"
	"github.com/noah-isme/toko-storefront/internal/health"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/orders"
	"github.com/noah-isme/toko-storefront/internal/ratelimit"
	"github.com/noah-isme/toko-storefront/internal/resilience"
	"github.com/noah-isme/toko-storefront/internal/session"
	"github.com/noah-isme/toko-storefront/internal/wallet"
)

// Dependencies enumerates the services shared across modules. Redis, DB and
// TaskClient are nil under the memory storage driver.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger

	DB         *pgxpool.Pool
	Redis      *redis.Client
	RedisOpt   asynq.RedisClientOpt
	TaskClient *asynq.Client

	Catalog         *catalog.Service
	Carts           *cart.Service
	Orders          orders.Repository
	Checkout        *checkout.Service
	Crediter        *wallet.Crediter
	CartLimiter     ratelimit.Checker
	CheckoutLimiter ratelimit.Checker
	Probes          []health.Probe

	closers []func()
}

// Options adjust how Build connects. HTTPTransport replaces the outbound
// transport, which tests use to reach httptest servers.
type Options struct {
	HTTPTransport http.RoundTripper
	SkipMigrate   bool
}

// Build connects to the configured backing stores and assembles the services.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	d := &Dependencies{Config: cfg, Logger: logger}

	var (
		storage      cart.Storage
		locker       cart.Locker
		catalogCache *catalog.Cache
		cashback     checkout.CashbackQueue
	)
	if cfg.UsesRedis() {
		if err := d.connectRedis(ctx); err != nil {
			d.Close()
			return nil, err
		}
		if err := d.connectDB(ctx, opts.SkipMigrate); err != nil {
			d.Close()
			return nil, err
		}
		storage = session.RedisStore{Client: d.Redis, TTL: cfg.CartSessionTTL}
		locker = lock.Locker{R: d.Redis, RetryBackoff: cfg.LockRetry}
		catalogCache = catalog.NewCache(d.Redis, cfg.CatalogCacheTTL)
		d.Orders = orders.NewPostgres(d.DB)

		d.TaskClient = asynq.NewClient(d.RedisOpt)
		d.closers = append(d.closers, func() { _ = d.TaskClient.Close() })
		cashback = wallet.Enqueuer{Client: d.TaskClient, MaxRetry: 10}

		d.CartLimiter = ratelimit.Sliding{Client: d.Redis, Prefix: "rl:cart", Window: time.Minute, Max: cfg.RateLimitCartPerMinute}
		fixed, err := ratelimit.NewFixed(d.Redis, "rl:checkout", cfg.RateLimitCheckout)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.CheckoutLimiter = fixed
	} else {
		storage = session.NewMemoryStore(cfg.CartSessionTTL)
		locker = &lock.Local{}
		d.Orders = orders.NewMemoryRepository()

		cartLimiter, err := ratelimit.NewFixedInMemory("rl:cart", strconv.Itoa(cfg.RateLimitCartPerMinute)+"-M")
		if err != nil {
			return nil, err
		}
		checkoutLimiter, err := ratelimit.NewFixedInMemory("rl:checkout", cfg.RateLimitCheckout)
		if err != nil {
			return nil, err
		}
		d.CartLimiter, d.CheckoutLimiter = cartLimiter, checkoutLimiter
	}

	transport := opts.HTTPTransport
	if transport == nil {
		transport = http.DefaultTransport
	}
	outbound := &http.Client{Transport: otelhttp.NewTransport(transport)}

	d.Catalog = &catalog.Service{
		Upstream: catalog.Client{HTTP: d.outboundClient(outbound, "catalog"), BaseURL: cfg.CatalogBaseURL},
		Cache:    catalogCache,
		Logger:   logger.With().Str("component", "catalog").Logger(),
	}
	d.Carts = &cart.Service{
		Storage:  storage,
		Locker:   locker,
		Catalog:  d.Catalog,
		Shipping: cfg.ShippingCost,
		LockTTL:  cfg.LockTTL,
		Logger:   logger.With().Str("component", "cart").Logger(),
	}
	d.Crediter = &wallet.Crediter{
		Wallet: wallet.Client{HTTP: d.outboundClient(outbound, "wallet"), BaseURL: cfg.WalletBaseURL},
		Orders: d.Orders,
		Logger: logger.With().Str("component", "wallet").Logger(),
	}
	if cashback == nil {
		cashback = wallet.Inline{Crediter: d.Crediter, Logger: logger}
	}
	d.Checkout = &checkout.Service{
		Carts:    d.Carts,
		Orders:   d.Orders,
		Cashback: cashback,
		Shipping: cfg.ShippingCost,
		Currency: cfg.CurrencyCode,
		Logger:   logger.With().Str("component", "checkout").Logger(),
	}
	d.Probes = d.readinessProbes()
	return d, nil
}

func (d *Dependencies) outboundClient(client *http.Client, target string) resilience.HTTPClient {
	cfg := d.Config
	return resilience.HTTPClient{
		Client: client,
		Breaker: resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRatio, cfg.CircuitOpenFor).
			WithTarget(target).
			WithLogger(d.Logger),
		Target:      target,
		Logger:      d.Logger,
		BaseBackoff: cfg.RetryBase,
		MaxAttempts: cfg.RetryMaxAttempts,
		Jitter:      cfg.RetryJitter,
		Timeout:     cfg.OutboundTimeout,
	}
}

func (d *Dependencies) connectRedis(ctx context.Context) error {
	redisOpts, err := redis.ParseURL(d.Config.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	d.Redis = redis.NewClient(redisOpts)
	d.closers = append(d.closers, func() {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	})
	if err := redisotel.InstrumentTracing(d.Redis); err != nil {
		d.Logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if d.Config.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(d.Redis); err != nil {
			d.Logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.Redis.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	d.RedisOpt = asynq.RedisClientOpt{
		Addr:      redisOpts.Addr,
		Username:  redisOpts.Username,
		Password:  redisOpts.Password,
		DB:        redisOpts.DB,
		TLSConfig: redisOpts.TLSConfig,
	}
	return nil
}

func (d *Dependencies) connectDB(ctx context.Context, skipMigrate bool) error {
	if !skipMigrate {
		if err := orders.Migrate(d.Config.DatabaseURL); err != nil {
			return err
		}
	}
	poolConfig, err := pgxpool.ParseConfig(d.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "toko-storefront"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	d.DB = pool
	d.closers = append(d.closers, pool.Close)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func (d *Dependencies) readinessProbes() []health.Probe {
	var probes []health.Probe
	if d.DB != nil {
		probes = append(probes, health.Probe{Name: "postgres", Timeout: 500 * time.Millisecond, Check: d.DB.Ping})
	}
	if d.Redis != nil {
		probes = append(probes, health.Probe{Name: "redis", Timeout: 300 * time.Millisecond, Check: func(ctx context.Context) error {
			return d.Redis.Ping(ctx).Err()
		}})
	}
	return probes
}

// Close releases connections in reverse order of acquisition.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
