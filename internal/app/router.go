package app

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/catalog"
	"github.com/noah-isme/toko-storefront/internal/checkout"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/health"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/orders"
	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/ratelimit"
	"github.com/noah-isme/toko-storefront/internal/security"
)

// RouterOptions carries the observability hooks owned by the binary.
type RouterOptions struct {
	Metrics *obs.HTTPMetrics
	Tracing bool
	Extra   func(chi.Router)
}

// NewRouter mounts the storefront API on a chi router.
func NewRouter(d *Dependencies, opts RouterOptions) http.Handler {
	cfg := d.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(security.CORS(allowedOrigins(cfg.CORSAllowedOrigins)))
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.CookieSecure, HSTSMaxAge: 31536000}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	healthHandler := health.Handler{Probes: d.Probes}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	if opts.Extra != nil {
		opts.Extra(r)
	}

	catalogHandler := &catalog.Handler{Service: d.Catalog, Currency: cfg.CurrencyCode}
	quoteHandler := &pricing.Handler{Shipping: cfg.ShippingCost, Currency: cfg.CurrencyCode}
	cartHandler := &cart.Handler{
		Svc:      d.Carts,
		Currency: cfg.CurrencyCode,
		Cookies: cart.CookieOptions{
			Domain:   cfg.CookieDomain,
			Secure:   cfg.CookieSecure,
			SameSite: cfg.CookieSameSite,
			TTL:      cfg.CartSessionTTL,
		},
	}
	checkoutHandler := &checkout.Handler{Svc: d.Checkout}
	orderHandler := &orders.Handler{Repo: d.Orders}

	onLimiterError := func(err error) {
		d.Logger.Warn().Err(err).Msg("rate limiter unavailable")
	}
	cartLimit := ratelimit.Handler{Checker: d.CartLimiter, Key: ratelimit.BySession, OnError: onLimiterError}
	checkoutLimit := ratelimit.Handler{Checker: d.CheckoutLimiter, Key: ratelimit.ByClientIP, OnError: onLimiterError}
	idem := common.Idem{R: d.Redis, TTL: cfg.IdempotencyTTL}

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{id}", catalogHandler.ProductDetail)
		v.Get("/categories", catalogHandler.Categories)
		v.Get("/categories/{id}/subcategories", catalogHandler.Subcategories)

		v.Post("/pricing/quote", quoteHandler.Quote)
		v.Post("/cart/session", cartHandler.NewSession)

		v.Group(func(s chi.Router) {
			s.Use(cart.RequireSession)
			if cfg.CSRFEnabled {
				s.Use(security.CSRF{Header: cart.CSRFCookie}.Middleware)
			}

			s.Get("/cart", cartHandler.Get)
			s.Group(func(w chi.Router) {
				w.Use(cartLimit.Middleware)
				w.Post("/cart/items", cartHandler.AddItem)
				w.Patch("/cart/items/{productId}", cartHandler.UpdateItem)
				w.Delete("/cart/items/{productId}", cartHandler.RemoveItem)
				w.Delete("/cart", cartHandler.Clear)
			})

			s.With(checkoutLimit.Middleware, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)
			s.Get("/orders/{ref}", orderHandler.Get)
		})
	})
	return r
}

func allowedOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ",")
}
