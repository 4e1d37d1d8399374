package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/catalog"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/pricing"
)

// Locker serialises work on one key. lock.Locker and lock.Local satisfy it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// ProductSource resolves catalog products for new lines.
type ProductSource interface {
	Product(ctx context.Context, id int) (catalog.Product, error)
}

// View is the cart as returned to the storefront. Totals is nil for an empty cart.
type View struct {
	Session  string               `json:"session"`
	Lines    []Item               `json:"lines"`
	Totals   *pricing.OrderTotals `json:"totals"`
	Warnings []string             `json:"warnings,omitempty"`
}

// Service applies cart operations for a session while holding its lock.
type Service struct {
	Storage  Storage
	Locker   Locker
	Catalog  ProductSource
	Shipping pricing.Money
	LockTTL  time.Duration
	Logger   zerolog.Logger
}

func lockKey(session string) string { return "lock:cart:" + session }

// WithCart opens the session's cart under its lock and runs fn against it.
// Entries dropped on load are logged and the cleaned cart is written back,
// so the report describes each problem once. The report is returned for
// callers that surface warnings.
func (s *Service) WithCart(ctx context.Context, session string, fn func(context.Context, *Store) error) (LoadReport, error) {
	if s == nil || s.Storage == nil || s.Locker == nil {
		return LoadReport{}, errors.New("cart service not configured")
	}
	if session == "" {
		return LoadReport{}, errors.New("cart: session required")
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	var report LoadReport
	err := s.Locker.WithLock(ctx, lockKey(session), ttl, func(ctx context.Context) error {
		store, rep, err := Open(ctx, s.Storage, session)
		if err != nil {
			return err
		}
		report = rep
		if n := len(rep.Dropped); n > 0 {
			obs.ObserveCartDropped(n)
			s.Logger.Warn().
				Str("session", session).
				Int("dropped", n).
				Strs("reasons", rep.Warnings()).
				Msg("cart_entries_dropped")
			if err := store.commit(ctx, store.Lines()); err != nil {
				return err
			}
		}
		return fn(ctx, store)
	})
	return report, err
}

// View returns the cart with derived unit prices and a totals preview.
func (s *Service) View(ctx context.Context, session string) (View, error) {
	var view View
	report, err := s.WithCart(ctx, session, func(_ context.Context, store *Store) error {
		var err error
		view, err = s.render(session, store)
		return err
	})
	if err != nil {
		return View{}, err
	}
	view.Warnings = report.Warnings()
	return view, nil
}

// Add puts quantity units of productID in the cart, copying the product's
// current tiers and rates from the catalog.
func (s *Service) Add(ctx context.Context, session string, productID, quantity int) (View, error) {
	if err := checkQuantity(quantity); err != nil {
		s.observe("add", err)
		return View{}, err
	}
	if s == nil || s.Catalog == nil {
		return View{}, errors.New("cart service not configured")
	}
	product, err := s.Catalog.Product(ctx, productID)
	if err != nil {
		s.observe("add", err)
		return View{}, err
	}
	return s.mutate(ctx, session, "add", func(ctx context.Context, store *Store) error {
		return store.Add(ctx, product.ID, quantity, product.Tiers, product.VATRate, product.CashbackPercent)
	})
}

// SetQuantity replaces a line's quantity. A quantity below one leaves the
// line as it was.
func (s *Service) SetQuantity(ctx context.Context, session string, productID, quantity int) (View, error) {
	return s.mutate(ctx, session, "set_quantity", func(ctx context.Context, store *Store) error {
		return store.SetQuantity(ctx, productID, quantity)
	})
}

// Remove drops a line from the cart.
func (s *Service) Remove(ctx context.Context, session string, productID int) (View, error) {
	return s.mutate(ctx, session, "remove", func(ctx context.Context, store *Store) error {
		return store.Remove(ctx, productID)
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, session string) error {
	_, err := s.WithCart(ctx, session, func(ctx context.Context, store *Store) error {
		return store.Clear(ctx)
	})
	s.observe("clear", err)
	return err
}

func (s *Service) mutate(ctx context.Context, session, op string, fn func(context.Context, *Store) error) (View, error) {
	var view View
	report, err := s.WithCart(ctx, session, func(ctx context.Context, store *Store) error {
		if err := fn(ctx, store); err != nil {
			return err
		}
		var err error
		view, err = s.render(session, store)
		return err
	})
	s.observe(op, err)
	if err != nil {
		return View{}, err
	}
	view.Warnings = report.Warnings()
	s.Logger.Debug().Str("session", session).Str("op", op).Int("lines", len(view.Lines)).Msg("cart_mutated")
	return view, nil
}

func (s *Service) render(session string, store *Store) (View, error) {
	items, err := store.Snapshot()
	if err != nil {
		return View{}, err
	}
	view := View{Session: session, Lines: items}
	if store.Empty() {
		return view, nil
	}
	totals, err := store.Totals(s.Shipping)
	if err != nil {
		return View{}, fmt.Errorf("cart totals: %w", err)
	}
	view.Totals = &totals
	return view, nil
}

func (s *Service) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	obs.ObserveCartMutation(op, result)
}
