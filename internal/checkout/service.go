package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/orders"
	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/wallet"
)

// CartAccess runs fn against a session's cart under its lock. cart.Service
// implements it.
type CartAccess interface {
	WithCart(ctx context.Context, session string, fn func(context.Context, *cart.Store) error) (cart.LoadReport, error)
}

// CashbackQueue schedules the cashback credit of a placed order.
type CashbackQueue interface {
	EnqueueCashback(ctx context.Context, p wallet.CreditPayload) error
}

// Input is the customer data collected at checkout.
type Input struct {
	Customer orders.Customer
	Address  orders.Address
}

// Output describes a placed order.
type Output struct {
	OrderRef       string              `json:"orderRef"`
	Currency       string              `json:"currency"`
	Totals         pricing.OrderTotals `json:"totals"`
	CashbackQueued bool                `json:"cashbackQueued"`
	CartCleared    bool                `json:"cartCleared"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// Service turns a session cart into a recorded order.
type Service struct {
	Carts    CartAccess
	Orders   orders.Repository
	Cashback CashbackQueue
	Shipping pricing.Money
	Currency string
	Now      func() time.Time
	NewRef   func() string
	Logger   zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) newRef() string {
	if s.NewRef != nil {
		return s.NewRef()
	}
	return ulid.Make().String()
}

// Place prices the session's cart, records the order, schedules its
// cashback and empties the cart. The cart is left untouched when the order
// cannot be recorded.
func (s *Service) Place(ctx context.Context, session string, in Input) (Output, error) {
	if s == nil || s.Carts == nil || s.Orders == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	var out Output
	_, err := s.Carts.WithCart(ctx, session, func(ctx context.Context, store *cart.Store) error {
		if store.Empty() {
			return pricing.ErrEmptyCart
		}
		totals, err := store.Totals(s.Shipping)
		if err != nil {
			return err
		}
		order := orders.FromTotals(totals)
		order.Ref = s.newRef()
		order.SessionID = session
		order.Customer = normaliseCustomer(in.Customer)
		order.Address = in.Address
		order.Currency = s.Currency
		order.CreatedAt = s.now()
		if err := s.Orders.Create(ctx, order); err != nil {
			return fmt.Errorf("record order: %w", err)
		}
		log := s.Logger.With().Str("session", session).Str("order_ref", order.Ref).Logger()
		out = Output{OrderRef: order.Ref, Currency: order.Currency, Totals: totals, CreatedAt: order.CreatedAt}

		if totals.CashbackTotal.IsPositive() && s.Cashback != nil {
			err := s.Cashback.EnqueueCashback(ctx, wallet.CreditPayload{
				OrderRef:      order.Ref,
				CustomerEmail: order.Customer.Email,
				Amount:        totals.CashbackTotal,
			})
			if err != nil {
				log.Error().Err(err).Msg("cashback_enqueue_failed")
			} else {
				out.CashbackQueued = true
			}
		}
		out.CartCleared = s.clearCart(ctx, store, log)
		log.Info().Str("total", totals.Total.String()).Int("lines", len(totals.Lines)).Msg("order_placed")
		return nil
	})
	result := "ok"
	switch {
	case errors.Is(err, pricing.ErrEmptyCart):
		result = "empty"
	case err != nil:
		result = "error"
	}
	obs.ObserveCheckout(result)
	if err != nil {
		return Output{}, err
	}
	return out, nil
}

// clearAttempts bounds how often an emptied cart write is tried once the
// order is recorded.
const clearAttempts = 3

// clearCart empties the cart while the session lock is still held. A cart
// that stays populated is reported, not failed: the order already exists.
func (s *Service) clearCart(ctx context.Context, store *cart.Store, log zerolog.Logger) bool {
	var err error
	for attempt := 1; attempt <= clearAttempts; attempt++ {
		if err = store.Clear(ctx); err == nil {
			return true
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("cart_clear_retry")
		if ctx.Err() != nil {
			break
		}
	}
	log.Error().Err(err).Msg("cart_clear_after_checkout_failed")
	return false
}

func normaliseCustomer(c orders.Customer) orders.Customer {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
	return c
}
