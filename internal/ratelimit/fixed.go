package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Fixed is a fixed-window limiter built on ulule/limiter with a Redis store.
// It guards checkout, where a coarse per-client budget is enough.
type Fixed struct {
	limiter *limiter.Limiter
}

// NewFixed parses a formatted rate such as "10-M" and binds it to Redis.
func NewFixed(client *redis.Client, prefix, formatted string) (*Fixed, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", formatted, err)
	}
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   prefix,
		MaxRetry: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: redis store: %w", err)
	}
	return &Fixed{limiter: limiter.New(store, rate)}, nil
}

// NewFixedInMemory uses ulule's in-process store, for the memory driver.
func NewFixedInMemory(prefix, formatted string) (*Fixed, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", formatted, err)
	}
	return &Fixed{limiter: limiter.New(memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix}), rate)}, nil
}

// Check consumes one unit of the key's budget.
func (f *Fixed) Check(ctx context.Context, key string) (Decision, error) {
	lctx, err := f.limiter.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lctx.Reached,
		Limit:     int(lctx.Limit),
		Remaining: int(lctx.Remaining),
		Reset:     time.Unix(lctx.Reset, 0),
	}, nil
}
