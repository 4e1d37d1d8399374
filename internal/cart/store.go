package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

// ErrLineNotFound is returned when a mutation names a product that is not in the cart.
var ErrLineNotFound = errors.New("cart: line not found")

// Storage persists the serialized cart of one session under a single key.
// Load returns nil data and no error when nothing is stored.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Line is one product in the cart. Tiers and rates are copied from the
// catalog when the product is added so later catalog edits do not reprice it.
type Line struct {
	ProductID       int                 `json:"productId"`
	Quantity        int                 `json:"quantity"`
	Tiers           []pricing.PriceTier `json:"tiers"`
	VATRate         pricing.Money       `json:"vatRate"`
	CashbackPercent pricing.Money       `json:"cashbackPercent"`
}

// Pricing converts the line for the totals engine.
func (l Line) Pricing() pricing.Line {
	return pricing.Line{
		ProductID:       l.ProductID,
		Quantity:        l.Quantity,
		Tiers:           l.Tiers,
		VATRate:         l.VATRate,
		CashbackPercent: l.CashbackPercent,
	}
}

func (l Line) clone() Line {
	l.Tiers = pricing.CloneTiers(l.Tiers)
	return l
}

// Item is a line with its unit price resolved for the current quantity.
type Item struct {
	Line
	UnitPrice pricing.Money `json:"unitPrice"`
}

// Store holds one session's lines. It is not safe for concurrent use; the
// service serialises access per session.
type Store struct {
	storage Storage
	key     string
	lines   []Line
}

// Open loads the cart stored under key. Malformed entries are dropped and
// listed in the report instead of failing the load.
func Open(ctx context.Context, storage Storage, key string) (*Store, LoadReport, error) {
	if storage == nil {
		return nil, LoadReport{}, errors.New("cart: storage not configured")
	}
	data, err := storage.Load(ctx, key)
	if err != nil {
		return nil, LoadReport{}, fmt.Errorf("load cart: %w", err)
	}
	lines, report := Decode(data)
	return &Store{storage: storage, key: key, lines: lines}, report, nil
}

// Len returns the number of lines.
func (s *Store) Len() int { return len(s.lines) }

// Empty reports whether the cart has no lines.
func (s *Store) Empty() bool { return len(s.lines) == 0 }

// Lines returns a deep copy of the lines in insertion order.
func (s *Store) Lines() []Line {
	out := make([]Line, len(s.lines))
	for i, l := range s.lines {
		out[i] = l.clone()
	}
	return out
}

// Add appends a line, or increases the quantity of an existing one. Adding a
// product already in the cart also refreshes its tiers and rates. A merged
// quantity above MaxLineQuantity is rejected and the line is left as it was.
func (s *Store) Add(ctx context.Context, productID, quantity int, tiers []pricing.PriceTier, vatRate, cashbackPercent pricing.Money) error {
	line := Line{
		ProductID:       productID,
		Quantity:        quantity,
		Tiers:           pricing.CloneTiers(tiers),
		VATRate:         vatRate,
		CashbackPercent: cashbackPercent,
	}
	if err := validateLine(line); err != nil {
		return err
	}
	next := s.Lines()
	if i := s.index(productID); i >= 0 {
		line.Quantity += next[i].Quantity
		if err := checkQuantity(line.Quantity); err != nil {
			return fmt.Errorf("product %d: %w", productID, err)
		}
		next[i] = line
	} else {
		next = append(next, line)
	}
	return s.commit(ctx, next)
}

// SetQuantity replaces the quantity of a line. A quantity below one keeps
// the prior quantity and writes nothing; one above MaxLineQuantity is
// rejected.
func (s *Store) SetQuantity(ctx context.Context, productID, quantity int) error {
	i := s.index(productID)
	if i < 0 {
		return fmt.Errorf("product %d: %w", productID, ErrLineNotFound)
	}
	if quantity < 1 {
		return nil
	}
	if err := checkQuantity(quantity); err != nil {
		return fmt.Errorf("product %d: %w", productID, err)
	}
	next := s.Lines()
	next[i].Quantity = quantity
	return s.commit(ctx, next)
}

// Remove deletes the line for productID. Removing an absent line is a no-op.
func (s *Store) Remove(ctx context.Context, productID int) error {
	i := s.index(productID)
	if i < 0 {
		return nil
	}
	next := s.Lines()
	next = append(next[:i], next[i+1:]...)
	return s.commit(ctx, next)
}

// Clear empties the cart and removes its persisted form.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.storage.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.lines = nil
	return nil
}

// Snapshot returns the current lines with unit prices resolved from their
// tiers. Prices are derived on every call and never stored.
func (s *Store) Snapshot() ([]Item, error) {
	items := make([]Item, 0, len(s.lines))
	for _, l := range s.lines {
		price, err := pricing.ResolveUnitPrice(l.Tiers, l.Quantity)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", l.ProductID, err)
		}
		items = append(items, Item{Line: l.clone(), UnitPrice: price})
	}
	return items, nil
}

// Totals prices the cart with the given flat shipping cost. An empty cart
// yields pricing.ErrEmptyCart.
func (s *Store) Totals(shipping pricing.Money) (pricing.OrderTotals, error) {
	lines := make([]pricing.Line, 0, len(s.lines))
	for _, l := range s.lines {
		lines = append(lines, l.Pricing())
	}
	return pricing.Aggregate(lines, shipping)
}

func (s *Store) index(productID int) int {
	for i, l := range s.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// commit writes next through to storage and only then adopts it, so a failed
// write leaves the in-memory cart equal to what is stored.
func (s *Store) commit(ctx context.Context, next []Line) error {
	data, err := Encode(next)
	if err != nil {
		return err
	}
	if err := s.storage.Save(ctx, s.key, data); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	s.lines = next
	return nil
}
