// Package wallet credits order cashback to the customer's upstream wallet.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

// TypeCashbackCredit is the asynq task type for crediting one order's cashback.
const TypeCashbackCredit = "cashback:credit"

// QueueCashback is the queue credit tasks are placed on unless overridden.
const QueueCashback = "cashback"

// CreditPayload is the task body.
type CreditPayload struct {
	OrderRef      string        `json:"orderRef"`
	CustomerEmail string        `json:"customerEmail"`
	Amount        pricing.Money `json:"amount"`
}

// NewCreditTask builds the task. The task id is derived from the order so
// an order is queued at most once while its task is retained.
func NewCreditTask(p CreditPayload, maxRetry int) (*asynq.Task, error) {
	if p.OrderRef == "" {
		return nil, errors.New("wallet: order reference required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{
		asynq.TaskID("cashback:" + p.OrderRef),
		asynq.Retention(24 * time.Hour),
		asynq.Timeout(30 * time.Second),
	}
	if maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(maxRetry))
	}
	return asynq.NewTask(TypeCashbackCredit, data, opts...), nil
}

// Enqueuer places credit tasks on the asynq queue.
type Enqueuer struct {
	Client   *asynq.Client
	Queue    string
	MaxRetry int
}

// EnqueueCashback schedules the credit. A task already queued for the same
// order counts as success.
func (e Enqueuer) EnqueueCashback(ctx context.Context, p CreditPayload) error {
	if e.Client == nil {
		return errors.New("wallet: task client not configured")
	}
	task, err := NewCreditTask(p, e.MaxRetry)
	if err != nil {
		return err
	}
	queue := e.Queue
	if queue == "" {
		queue = QueueCashback
	}
	if _, err := e.Client.EnqueueContext(ctx, task, asynq.Queue(queue)); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue cashback %s: %w", p.OrderRef, err)
	}
	return nil
}

// Inline credits in a background goroutine instead of a queue. It serves
// the memory storage driver, which runs without Redis.
type Inline struct {
	Crediter *Crediter
	Logger   zerolog.Logger
}

// EnqueueCashback starts the credit and returns immediately.
func (i Inline) EnqueueCashback(ctx context.Context, p CreditPayload) error {
	if i.Crediter == nil {
		return errors.New("wallet: crediter not configured")
	}
	go func() {
		if err := i.Crediter.Credit(context.WithoutCancel(ctx), p); err != nil {
			i.Logger.Error().Err(err).Str("order_ref", p.OrderRef).Msg("cashback_credit_failed")
		}
	}()
	return nil
}
