package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

const uniqueViolation = "23505"

// NewPostgres constructs a Repository backed by a pgx connection pool.
func NewPostgres(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// Create inserts the order header and its lines in one transaction.
func (r *pgRepository) Create(ctx context.Context, o Order) error {
	if r == nil || r.pool == nil {
		return ErrStoreUnavailable
	}
	address, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `INSERT INTO orders (ref, session_id, customer_name, customer_email, customer_phone, address,
currency, subtotal_excl_vat, vat_amount, shipping_cost, total, cashback_total, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.Ref, o.SessionID, o.Customer.Name, o.Customer.Email, o.Customer.Phone, address,
		o.Currency, o.SubtotalExclVAT.String(), o.VATAmount.String(), o.ShippingCost.String(),
		o.Total.String(), o.CashbackTotal.String(), o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("order %s: %w", o.Ref, ErrDuplicate)
		}
		return fmt.Errorf("insert order %s: %w", o.Ref, err)
	}

	batch := &pgx.Batch{}
	for i, l := range o.Lines {
		batch.Queue(`INSERT INTO order_lines (order_ref, position, product_id, quantity, unit_price, price_excl_vat,
subtotal_excl_vat, vat, cashback) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			o.Ref, i, l.ProductID, l.Quantity, l.UnitPrice.String(), l.PriceExclVAT.String(),
			l.SubtotalExclVAT.String(), l.VAT.String(), l.Cashback.String())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order lines %s: %w", o.Ref, err)
	}
	return tx.Commit(ctx)
}

// Get fetches an order and its lines by reference.
func (r *pgRepository) Get(ctx context.Context, ref string) (Order, error) {
	if r == nil || r.pool == nil {
		return Order{}, ErrStoreUnavailable
	}
	var (
		o       Order
		address []byte
		amounts [5]string
	)
	err := r.pool.QueryRow(ctx, `SELECT ref, session_id, customer_name, customer_email, customer_phone, address, currency,
subtotal_excl_vat::text, vat_amount::text, shipping_cost::text, total::text, cashback_total::text,
cashback_credited_at, created_at FROM orders WHERE ref = $1`, ref).Scan(
		&o.Ref, &o.SessionID, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone, &address, &o.Currency,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4],
		&o.CashbackCreditedAt, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("order %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(address, &o.Address); err != nil {
		return Order{}, fmt.Errorf("decode address of %s: %w", ref, err)
	}
	if err := parseAmounts(amounts[:], &o.SubtotalExclVAT, &o.VATAmount, &o.ShippingCost, &o.Total, &o.CashbackTotal); err != nil {
		return Order{}, fmt.Errorf("order %s: %w", ref, err)
	}

	rows, err := r.pool.Query(ctx, `SELECT product_id, quantity, unit_price::text, price_excl_vat::text,
subtotal_excl_vat::text, vat::text, cashback::text FROM order_lines WHERE order_ref = $1 ORDER BY position`, ref)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l    Line
			cols [5]string
		)
		if err := rows.Scan(&l.ProductID, &l.Quantity, &cols[0], &cols[1], &cols[2], &cols[3], &cols[4]); err != nil {
			return Order{}, err
		}
		if err := parseAmounts(cols[:], &l.UnitPrice, &l.PriceExclVAT, &l.SubtotalExclVAT, &l.VAT, &l.Cashback); err != nil {
			return Order{}, fmt.Errorf("order %s line: %w", ref, err)
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

// MarkCashbackCredited stamps the order once; later calls report false.
func (r *pgRepository) MarkCashbackCredited(ctx context.Context, ref string, at time.Time) (bool, error) {
	if r == nil || r.pool == nil {
		return false, ErrStoreUnavailable
	}
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET cashback_credited_at = $2 WHERE ref = $1 AND cashback_credited_at IS NULL`, ref, at)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE ref = $1)`, ref).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("order %s: %w", ref, ErrNotFound)
	}
	return false, nil
}

func parseAmounts(raw []string, dst ...*pricing.Money) error {
	for i, text := range raw {
		m, err := pricing.ParseMoney(text)
		if err != nil {
			return err
		}
		*dst[i] = m
	}
	return nil
}
