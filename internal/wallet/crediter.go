package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/orders"
)

// Wallet is the upstream the credit is posted to. Client implements it.
type Wallet interface {
	Credit(ctx context.Context, p CreditPayload) error
}

// Crediter applies cashback credits recorded in the order ledger.
type Crediter struct {
	Wallet Wallet
	Orders orders.Repository
	Now    func() time.Time
	Logger zerolog.Logger
}

func (c *Crediter) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// Credit posts the order's cashback once. The ledger amount wins over the
// payload when they disagree, and credited orders are acknowledged without
// posting again.
func (c *Crediter) Credit(ctx context.Context, p CreditPayload) error {
	if c == nil || c.Wallet == nil || c.Orders == nil {
		return errors.New("wallet: crediter not configured")
	}
	log := c.Logger.With().Str("order_ref", p.OrderRef).Logger()
	order, err := c.Orders.Get(ctx, p.OrderRef)
	if err != nil {
		obs.ObserveCashbackCredit("error")
		return fmt.Errorf("load order: %w", err)
	}
	if order.CashbackCreditedAt != nil {
		obs.ObserveCashbackCredit("skipped")
		log.Info().Time("credited_at", *order.CashbackCreditedAt).Msg("cashback_already_credited")
		return nil
	}
	if !order.CashbackTotal.IsPositive() {
		obs.ObserveCashbackCredit("skipped")
		return nil
	}
	if !order.CashbackTotal.Equal(p.Amount) {
		log.Warn().Str("payload_amount", p.Amount.String()).Str("ledger_amount", order.CashbackTotal.String()).Msg("cashback_amount_mismatch")
	}
	credit := CreditPayload{OrderRef: order.Ref, CustomerEmail: order.Customer.Email, Amount: order.CashbackTotal}
	if err := c.Wallet.Credit(ctx, credit); err != nil {
		obs.ObserveCashbackCredit("error")
		return err
	}
	if _, err := c.Orders.MarkCashbackCredited(ctx, order.Ref, c.now()); err != nil {
		obs.ObserveCashbackCredit("error")
		return fmt.Errorf("mark credited: %w", err)
	}
	obs.ObserveCashbackCredit("ok")
	log.Info().Str("amount", credit.Amount.String()).Msg("cashback_credited")
	return nil
}

// ProcessTask implements asynq.Handler. Payloads that cannot be decoded,
// unknown orders and rejected credits are not retried.
func (c *Crediter) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p CreditPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TypeCashbackCredit, err, asynq.SkipRetry)
	}
	err := c.Credit(ctx, p)
	if errors.Is(err, orders.ErrNotFound) || errors.Is(err, ErrRejected) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
