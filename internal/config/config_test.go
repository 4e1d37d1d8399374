package config_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"STORAGE_DRIVER":     "memory",
		"CATALOG_BASE_URL":   "http://catalog.local/api/",
		"WALLET_BASE_URL":    "",
		"SHIPPING_FLAT_COST": "",
		"CART_SESSION_TTL":   "",
		"CURRENCY_CODE":      "",
		"COOKIE_SAMESITE":    "",
		"REDIS_URL":          "",
		"DATABASE_URL":       "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, config.DriverMemory, cfg.StorageDriver)
	require.False(t, cfg.UsesRedis())
	require.Equal(t, "http://catalog.local/api", cfg.CatalogBaseURL)
	require.Equal(t, cfg.CatalogBaseURL, cfg.WalletBaseURL)
	require.Equal(t, "MXN", cfg.CurrencyCode)
	require.True(t, cfg.ShippingCost.IsZero())
	require.Equal(t, 72*time.Hour, cfg.CartSessionTTL)
	require.Equal(t, "10-M", cfg.RateLimitCheckout)
	require.Equal(t, http.SameSiteLaxMode, cfg.CookieSameSite)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["SHIPPING_FLAT_COST"] = "99.50"
	env["CART_SESSION_TTL"] = "24h"
	env["CURRENCY_CODE"] = "usd"
	env["RETRY_JITTER_PERCENT"] = "10"
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)

	require.Equal(t, "99.5", cfg.ShippingCost.String())
	require.Equal(t, 24*time.Hour, cfg.CartSessionTTL)
	require.Equal(t, "USD", cfg.CurrencyCode)
	require.InDelta(t, 0.1, cfg.RetryJitter, 1e-9)
}

func TestLoadValidation(t *testing.T) {
	env := baseEnv()
	env["CATALOG_BASE_URL"] = ""
	_, err := config.LoadForTests(env)
	require.ErrorContains(t, err, "CATALOG_BASE_URL")

	env = baseEnv()
	env["SHIPPING_FLAT_COST"] = "-1"
	_, err = config.LoadForTests(env)
	require.Error(t, err)

	env = baseEnv()
	env["SHIPPING_FLAT_COST"] = "free"
	_, err = config.LoadForTests(env)
	require.ErrorContains(t, err, "SHIPPING_FLAT_COST")

	env = baseEnv()
	env["STORAGE_DRIVER"] = "redis"
	_, err = config.LoadForTests(env)
	require.ErrorContains(t, err, "REDIS_URL")

	env = baseEnv()
	env["STORAGE_DRIVER"] = "sqlite"
	_, err = config.LoadForTests(env)
	require.Error(t, err)
}
