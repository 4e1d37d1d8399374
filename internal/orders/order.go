// Package orders records placed orders and their cashback state.
package orders

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

var (
	// ErrNotFound is returned when no order has the requested reference.
	ErrNotFound = errors.New("orders: not found")
	// ErrDuplicate is returned when an order reference is recorded twice.
	ErrDuplicate = errors.New("orders: duplicate reference")
	// ErrStoreUnavailable indicates the repository dependency is not configured.
	ErrStoreUnavailable = errors.New("orders: store unavailable")
)

// Customer identifies who placed the order.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Address is the delivery address as entered at checkout.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country,omitempty"`
}

// Line is one priced product of a recorded order.
type Line struct {
	ProductID       int           `json:"productId"`
	Quantity        int           `json:"quantity"`
	UnitPrice       pricing.Money `json:"unitPrice"`
	PriceExclVAT    pricing.Money `json:"priceExclVat"`
	SubtotalExclVAT pricing.Money `json:"subtotalExclVat"`
	VAT             pricing.Money `json:"vat"`
	Cashback        pricing.Money `json:"cashback"`
}

// Order is the immutable record of a checkout, plus when its cashback was credited.
type Order struct {
	Ref                string        `json:"ref"`
	SessionID          string        `json:"-"`
	Customer           Customer      `json:"customer"`
	Address            Address       `json:"address"`
	Currency           string        `json:"currency"`
	Lines              []Line        `json:"lines"`
	SubtotalExclVAT    pricing.Money `json:"subtotalExclVat"`
	VATAmount          pricing.Money `json:"vatAmount"`
	ShippingCost       pricing.Money `json:"shippingCost"`
	Total              pricing.Money `json:"total"`
	CashbackTotal      pricing.Money `json:"cashbackTotal"`
	CashbackCreditedAt *time.Time    `json:"cashbackCreditedAt,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
}

// FromTotals builds an order's lines and amounts from computed totals. The
// caller fills in the reference, customer and address.
func FromTotals(totals pricing.OrderTotals) Order {
	lines := make([]Line, 0, len(totals.Lines))
	for _, l := range totals.Lines {
		lines = append(lines, Line{
			ProductID:       l.ProductID,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			PriceExclVAT:    l.PriceExclVAT,
			SubtotalExclVAT: l.SubtotalExclVAT,
			VAT:             l.VAT,
			Cashback:        l.Cashback,
		})
	}
	return Order{
		Lines:           lines,
		SubtotalExclVAT: totals.SubtotalExclVAT,
		VATAmount:       totals.VATAmount,
		ShippingCost:    totals.ShippingCost,
		Total:           totals.Total,
		CashbackTotal:   totals.CashbackTotal,
	}
}

// Repository stores orders. MarkCashbackCredited reports false when the
// order had already been credited.
type Repository interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, ref string) (Order, error)
	MarkCashbackCredited(ctx context.Context, ref string, at time.Time) (bool, error)
}
