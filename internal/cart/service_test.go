package cart_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/catalog"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/session"
)

type fakeCatalog struct {
	mu       sync.Mutex
	products map[int]catalog.Product
	calls    int
}

func (f *fakeCatalog) Product(_ context.Context, id int) (catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, fmt.Errorf("product %d: %w", id, catalog.ErrProductNotFound)
	}
	return p, nil
}

func tieredProduct(id int) catalog.Product {
	return catalog.Product{
		ID:   id,
		Name: fmt.Sprintf("producto %d", id),
		Tiers: []pricing.PriceTier{
			{MinQuantity: 1, MaxQuantity: pricing.Bounded(3), UnitPrice: pricing.MustMoney("100.00")},
			{MinQuantity: 4, MaxQuantity: pricing.Bounded(11), UnitPrice: pricing.MustMoney("90.00")},
			{MinQuantity: 12, UnitPrice: pricing.MustMoney("80.00")},
		},
		VATRate:         pricing.MustMoney("0.16"),
		CashbackPercent: pricing.MustMoney("5"),
	}
}

func newService(storage cart.Storage, locker cart.Locker) (*cart.Service, *fakeCatalog) {
	cat := &fakeCatalog{products: map[int]catalog.Product{1: tieredProduct(1), 2: tieredProduct(2)}}
	return &cart.Service{
		Storage:  storage,
		Locker:   locker,
		Catalog:  cat,
		Shipping: pricing.MustMoney("99"),
		LockTTL:  time.Second,
		Logger:   zerolog.Nop(),
	}, cat
}

func TestServiceLifecycle(t *testing.T) {
	svc, _ := newService(session.NewMemoryStore(time.Hour), &lock.Local{})
	ctx := context.Background()

	view, err := svc.View(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, view.Lines)
	require.Nil(t, view.Totals)

	view, err = svc.Add(ctx, "s1", 1, 3)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	require.NotNil(t, view.Totals)
	require.Equal(t, "258.62", view.Totals.SubtotalExclVAT.StringFixed(2))
	require.Equal(t, "399", view.Totals.Total.String())

	view, err = svc.Add(ctx, "s1", 1, 1)
	require.NoError(t, err)
	require.Equal(t, 4, view.Lines[0].Quantity)
	require.True(t, pricing.MustMoney("90").Equal(view.Lines[0].UnitPrice))

	view, err = svc.SetQuantity(ctx, "s1", 1, 0)
	require.NoError(t, err)
	require.Equal(t, 4, view.Lines[0].Quantity)

	_, err = svc.SetQuantity(ctx, "s1", 2, 5)
	require.ErrorIs(t, err, cart.ErrLineNotFound)

	view, err = svc.Remove(ctx, "s1", 1)
	require.NoError(t, err)
	require.Empty(t, view.Lines)

	_, err = svc.Add(ctx, "s1", 2, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, "s1"))
	view, err = svc.View(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, view.Lines)
}

func TestServiceAddValidatesBeforeCatalog(t *testing.T) {
	svc, cat := newService(session.NewMemoryStore(time.Hour), &lock.Local{})
	ctx := context.Background()

	_, err := svc.Add(ctx, "s1", 1, 0)
	require.ErrorIs(t, err, pricing.ErrInvalidRange)
	require.Zero(t, cat.calls)

	_, err = svc.Add(ctx, "s1", 404, 1)
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestServiceReportsAndCleansDroppedEntries(t *testing.T) {
	storage := session.NewMemoryStore(time.Hour)
	ctx := context.Background()
	require.NoError(t, storage.Save(ctx, "s1", []byte(`[{"productId":"x","quantity":1}]`)))
	svc, _ := newService(storage, &lock.Local{})

	view, err := svc.View(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, view.Warnings, 1)

	view, err = svc.View(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, view.Warnings, "cleaned cart was written back")
}

func TestServiceSerialisesConcurrentAdds(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, _ := newService(
		session.RedisStore{Client: client, TTL: time.Hour},
		lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond},
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errs := make(chan error, 10)
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Add(ctx, "shared", 1, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	view, err := svc.View(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	require.Equal(t, 10, view.Lines[0].Quantity)
	require.True(t, pricing.MustMoney("90").Equal(view.Lines[0].UnitPrice))
}

func TestServiceBusyCart(t *testing.T) {
	local := &lock.Local{}
	svc, _ := newService(session.NewMemoryStore(time.Hour), local)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = local.WithLock(context.Background(), "lock:cart:s1", time.Second, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Add(ctx, "s1", 1, 1)
	require.ErrorIs(t, err, lock.ErrNotAcquired)
}
