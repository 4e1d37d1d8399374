package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/orders"
	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/resilience"
)

type walletServer struct {
	mu       sync.Mutex
	received []CreditPayload
	keys     []string
	status   int
}

func (ws *walletServer) payloads() ([]CreditPayload, []string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return append([]CreditPayload(nil), ws.received...), append([]string(nil), ws.keys...)
}

func newWalletServer(t *testing.T, status int) (*walletServer, Client) {
	t.Helper()
	ws := &walletServer{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/wallet/credits" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var p CreditPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		ws.mu.Lock()
		ws.received = append(ws.received, p)
		ws.keys = append(ws.keys, r.Header.Get("Idempotency-Key"))
		ws.mu.Unlock()
		w.WriteHeader(ws.status)
	}))
	t.Cleanup(srv.Close)
	return ws, Client{
		HTTP:    resilience.HTTPClient{Client: srv.Client(), Target: "wallet", MaxAttempts: 1},
		BaseURL: srv.URL,
	}
}

func seedOrder(t *testing.T, repo *orders.MemoryRepository, cashback string) orders.Order {
	t.Helper()
	o := orders.Order{
		Ref:           "01HZX3J8Q5W1V8KZ7T6M2N4P0R",
		SessionID:     "s",
		Customer:      orders.Customer{Name: "Ana", Email: "ana@example.com"},
		Currency:      "MXN",
		Total:         pricing.MustMoney("300"),
		CashbackTotal: pricing.MustMoney(cashback),
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), o))
	return o
}

func TestCreditPostsOnceAndMarksLedger(t *testing.T) {
	ws, client := newWalletServer(t, http.StatusCreated)
	repo := orders.NewMemoryRepository()
	o := seedOrder(t, repo, "12.93")
	at := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	c := &Crediter{Wallet: client, Orders: repo, Now: func() time.Time { return at }, Logger: zerolog.Nop()}

	payload := CreditPayload{OrderRef: o.Ref, CustomerEmail: "ana@example.com", Amount: pricing.MustMoney("12.93")}
	require.NoError(t, c.Credit(context.Background(), payload))
	require.NoError(t, c.Credit(context.Background(), payload))

	received, keys := ws.payloads()
	require.Len(t, received, 1)
	require.True(t, pricing.MustMoney("12.93").Equal(received[0].Amount))
	require.Equal(t, "cashback-"+o.Ref, keys[0])

	got, err := repo.Get(context.Background(), o.Ref)
	require.NoError(t, err)
	require.Equal(t, at, *got.CashbackCreditedAt)
}

func TestCreditUsesLedgerAmount(t *testing.T) {
	ws, client := newWalletServer(t, http.StatusOK)
	repo := orders.NewMemoryRepository()
	o := seedOrder(t, repo, "12.93")
	c := &Crediter{Wallet: client, Orders: repo, Logger: zerolog.Nop()}

	require.NoError(t, c.Credit(context.Background(), CreditPayload{OrderRef: o.Ref, Amount: pricing.MustMoney("999")}))
	received, _ := ws.payloads()
	require.True(t, pricing.MustMoney("12.93").Equal(received[0].Amount))
	require.Equal(t, "ana@example.com", received[0].CustomerEmail)
}

func TestCreditTreatsConflictAsDone(t *testing.T) {
	_, client := newWalletServer(t, http.StatusConflict)
	repo := orders.NewMemoryRepository()
	o := seedOrder(t, repo, "5")
	c := &Crediter{Wallet: client, Orders: repo, Logger: zerolog.Nop()}
	require.NoError(t, c.Credit(context.Background(), CreditPayload{OrderRef: o.Ref, Amount: pricing.MustMoney("5")}))

	got, err := repo.Get(context.Background(), o.Ref)
	require.NoError(t, err)
	require.NotNil(t, got.CashbackCreditedAt)
}

func TestProcessTaskRetrySemantics(t *testing.T) {
	repo := orders.NewMemoryRepository()
	o := seedOrder(t, repo, "5")

	_, rejecting := newWalletServer(t, http.StatusUnprocessableEntity)
	c := &Crediter{Wallet: rejecting, Orders: repo, Logger: zerolog.Nop()}
	task, err := NewCreditTask(CreditPayload{OrderRef: o.Ref, Amount: pricing.MustMoney("5")}, 5)
	require.NoError(t, err)
	require.Equal(t, TypeCashbackCredit, task.Type())

	err = c.ProcessTask(context.Background(), task)
	require.ErrorIs(t, err, ErrRejected)
	require.ErrorIs(t, err, asynq.SkipRetry)

	_, failing := newWalletServer(t, http.StatusBadGateway)
	c.Wallet = failing
	err = c.ProcessTask(context.Background(), task)
	require.ErrorIs(t, err, ErrUnavailable)
	require.False(t, errors.Is(err, asynq.SkipRetry), "upstream outages are retried")

	missing, err := NewCreditTask(CreditPayload{OrderRef: "UNKNOWN"}, 0)
	require.NoError(t, err)
	require.ErrorIs(t, c.ProcessTask(context.Background(), missing), asynq.SkipRetry)

	require.ErrorIs(t, c.ProcessTask(context.Background(), asynq.NewTask(TypeCashbackCredit, []byte("{"))), asynq.SkipRetry)
}

func TestNewCreditTaskRequiresRef(t *testing.T) {
	_, err := NewCreditTask(CreditPayload{}, 0)
	require.Error(t, err)
}

func TestInlineCreditsInBackground(t *testing.T) {
	ws, client := newWalletServer(t, http.StatusOK)
	repo := orders.NewMemoryRepository()
	o := seedOrder(t, repo, "5")
	inline := Inline{Crediter: &Crediter{Wallet: client, Orders: repo, Logger: zerolog.Nop()}, Logger: zerolog.Nop()}

	require.NoError(t, inline.EnqueueCashback(context.Background(), CreditPayload{OrderRef: o.Ref, Amount: pricing.MustMoney("5")}))
	require.Eventually(t, func() bool {
		got, err := repo.Get(context.Background(), o.Ref)
		return err == nil && got.CashbackCreditedAt != nil
	}, 2*time.Second, 10*time.Millisecond)
	received, _ := ws.payloads()
	require.Len(t, received, 1)
}

func TestEnqueuerDeduplicatesByOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	e := Enqueuer{Client: client, MaxRetry: 3}
	p := CreditPayload{OrderRef: "ORD1", CustomerEmail: "ana@example.com", Amount: pricing.MustMoney("12.93")}
	require.NoError(t, e.EnqueueCashback(context.Background(), p))
	require.NoError(t, e.EnqueueCashback(context.Background(), p))
	require.True(t, mr.Exists("asynq:{"+QueueCashback+"}:t:cashback:ORD1"))

	require.Error(t, Enqueuer{}.EnqueueCashback(context.Background(), p))
}
