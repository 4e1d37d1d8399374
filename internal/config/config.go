package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-storefront/internal/obs"
)

// Storage drivers.
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv        string
	Port          string
	StorageDriver string
	DatabaseURL   string
	RedisURL      string

	CatalogBaseURL  string
	WalletBaseURL   string
	CurrencyCode    string
	ShippingCost    decimal.Decimal
	CartSessionTTL  time.Duration
	CatalogCacheTTL time.Duration
	IdempotencyTTL  time.Duration
	LockTTL         time.Duration
	LockRetry       time.Duration

	OutboundTimeout     time.Duration
	RetryMaxAttempts    int
	RetryBase           time.Duration
	RetryJitter         float64
	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration

	RateLimitCartPerMinute int
	RateLimitCheckout      string
	CORSAllowedOrigins     []string
	BodyLimitBytes         int64
	SecurityHeaders        bool
	CSRFEnabled            bool
	CookieDomain           string
	CookieSecure           bool
	CookieSameSite         http.SameSite
	WorkerConcurrency      int

	LogFormat          string
	LogLevel           string
	MetricsEnabled     bool
	MetricsNamespace   string
	MetricsBuckets     []float64
	TracingEnabled     bool
	TracingExporter    string
	TracingEndpoint    string
	TracingSampleRatio float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	shipping, err := parseMoney(k.String("SHIPPING_FLAT_COST"), "0")
	if err != nil {
		return nil, fmt.Errorf("SHIPPING_FLAT_COST: %w", err)
	}

	cfg := &Config{
		AppEnv:        valueOrDefault(k.String("APP_ENV"), "development"),
		Port:          valueOrDefault(k.String("PORT"), "8080"),
		StorageDriver: strings.ToLower(valueOrDefault(k.String("STORAGE_DRIVER"), DriverRedis)),
		DatabaseURL:   k.String("DATABASE_URL"),
		RedisURL:      k.String("REDIS_URL"),

		CatalogBaseURL:  strings.TrimRight(strings.TrimSpace(k.String("CATALOG_BASE_URL")), "/"),
		WalletBaseURL:   strings.TrimRight(strings.TrimSpace(k.String("WALLET_BASE_URL")), "/"),
		CurrencyCode:    strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "MXN")),
		ShippingCost:    shipping,
		CartSessionTTL:  parseDuration(k.String("CART_SESSION_TTL"), "72h"),
		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		LockTTL:         parseDuration(k.String("LOCK_TTL"), "5s"),
		LockRetry:       parseDuration(k.String("LOCK_RETRY_BACKOFF"), "25ms"),

		OutboundTimeout:     parseDuration(k.String("OUTBOUND_TIMEOUT"), "3s"),
		RetryMaxAttempts:    parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBase:           parseDuration(k.String("RETRY_BASE"), "100ms"),
		RetryJitter:         float64(parseInt(k.String("RETRY_JITTER_PERCENT"), 20)) / 100,
		CircuitMinRequests:  parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRatio: parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:      parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		RateLimitCartPerMinute: parseInt(k.String("RATE_LIMIT_CART_PER_MINUTE"), 120),
		RateLimitCheckout:      valueOrDefault(k.String("RATE_LIMIT_CHECKOUT"), "10-M"),
		CORSAllowedOrigins:     splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:         int64(parseInt(k.String("BODY_LIMIT_BYTES"), 64*1024)),
		SecurityHeaders:        parseBoolDefault(k.String("SECURITY_HEADERS"), true),
		CSRFEnabled:            parseBoolDefault(k.String("CSRF_ENABLED"), true),
		CookieDomain:           strings.TrimSpace(k.String("COOKIE_DOMAIN")),
		CookieSecure:           parseBool(k.String("COOKIE_SECURE")),
		CookieSameSite:         parseSameSite(k.String("COOKIE_SAMESITE")),
		WorkerConcurrency:      parseInt(k.String("WORKER_CONCURRENCY"), 5),

		LogFormat:          valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:     parseBoolDefault(k.String("OBS_METRICS_ENABLED"), true),
		MetricsNamespace:   valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko"),
		MetricsBuckets:     obs.ParseBucketsCSV(k.String("OBS_METRICS_BUCKETS_MS")),
		TracingEnabled:     parseBool(k.String("OBS_TRACING_ENABLED")),
		TracingExporter:    valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		TracingEndpoint:    k.String("OBS_TRACING_ENDPOINT"),
		TracingSampleRatio: parseFloat(k.String("OBS_TRACING_SAMPLE_RATIO"), 1),
	}

	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	if cfg.WalletBaseURL == "" {
		cfg.WalletBaseURL = cfg.CatalogBaseURL
	}

	if cfg.CatalogBaseURL == "" {
		return nil, errors.New("CATALOG_BASE_URL is required")
	}
	if cfg.ShippingCost.IsNegative() {
		return nil, errors.New("SHIPPING_FLAT_COST must not be negative")
	}
	switch cfg.StorageDriver {
	case DriverRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required")
		}
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required")
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER %q is not supported", cfg.StorageDriver)
	}

	return cfg, nil
}

// UsesRedis reports whether sessions, locks and the task queue live in Redis.
func (c *Config) UsesRedis() bool { return c.StorageDriver == DriverRedis }

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseMoney(value, fallback string) (decimal.Decimal, error) {
	return decimal.NewFromString(valueOrDefault(value, fallback))
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
