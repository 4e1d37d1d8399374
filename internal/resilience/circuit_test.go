package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(minRequests int, ratio float64, openFor time.Duration) (*Breaker, *clock) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	b := NewBreaker(minRequests, ratio, openFor)
	b.now = c.now
	return b, c
}

func TestNewBreakerDefaults(t *testing.T) {
	b := NewBreaker(0, 0, 0)
	require.Equal(t, 1, b.minRequests)
	require.Equal(t, 0.5, b.failureRatio)
	require.Equal(t, 30*time.Second, b.openFor)
	require.Equal(t, Closed, b.State())
	require.Equal(t, "default", b.label())

	require.Equal(t, 1.0, NewBreaker(1, 3, time.Second).failureRatio)
}

func TestBreakerOpensOnFailureRatio(t *testing.T) {
	cases := []struct {
		name     string
		min      int
		ratio    float64
		outcomes []bool
		want     State
	}{
		{"below minimum requests", 3, 0.5, []bool{false, false}, Closed},
		{"ratio reached", 2, 0.5, []bool{true, false}, Open},
		{"ratio not reached", 4, 0.5, []bool{true, true, true, false}, Closed},
		{"all failures", 2, 1, []bool{false, false}, Open},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, _ := newTestBreaker(tc.min, tc.ratio, time.Minute)
			ctx := context.Background()
			for _, ok := range tc.outcomes {
				require.True(t, b.Allow(ctx))
				b.Report(ctx, ok)
			}
			require.Equal(t, tc.want, b.State())
		})
	}
}

func TestBreakerCoolOffAndRecovery(t *testing.T) {
	b, c := newTestBreaker(2, 0.5, time.Minute)
	ctx := context.Background()

	b.Report(ctx, false)
	b.Report(ctx, false)
	require.Equal(t, Open, b.State())
	require.False(t, b.Allow(ctx))

	c.advance(59 * time.Second)
	require.False(t, b.Allow(ctx))

	c.advance(time.Second)
	require.True(t, b.Allow(ctx))
	require.Equal(t, HalfOpen, b.State())

	b.Report(ctx, false)
	require.Equal(t, Open, b.State())
	require.False(t, b.Allow(ctx), "failed trial restarts the cool-off")

	c.advance(time.Minute)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, true)
	require.Equal(t, Closed, b.State())
	require.True(t, b.Allow(ctx))
}

func TestBreakerIgnoresReportsWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(1, 0.5, time.Minute)
	ctx := context.Background()
	b.Report(ctx, false)
	require.Equal(t, Open, b.State())

	b.Report(ctx, true)
	require.Equal(t, Open, b.State())
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestBreakerLogsTransitionsForTarget(t *testing.T) {
	var buf bytes.Buffer
	b, c := newTestBreaker(1, 0.5, time.Second)
	b.WithTarget(" catalog ").WithLogger(zerolog.New(&buf))
	ctx := context.Background()

	b.Report(ctx, false)
	c.advance(time.Second)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, true)

	events := decodeLines(t, &buf)
	require.Len(t, events, 3)
	want := [][2]string{{"closed", "open"}, {"open", "half_open"}, {"half_open", "closed"}}
	for i, e := range events {
		require.Equal(t, "breaker_transition", e["message"])
		require.Equal(t, "catalog", e["target"])
		require.Equal(t, want[i][0], e["from_state"])
		require.Equal(t, want[i][1], e["to_state"])
	}
}

func TestBreakerPrefersRequestLogger(t *testing.T) {
	var fallback, scoped bytes.Buffer
	b, _ := newTestBreaker(1, 0.5, time.Second)
	b.WithTarget("wallet").WithLogger(zerolog.New(&fallback))

	ctx := zerolog.New(&scoped).WithContext(context.Background())
	b.Report(ctx, false)

	require.Empty(t, fallback.String())
	events := decodeLines(t, &scoped)
	require.Len(t, events, 1)
	require.Equal(t, "wallet", events[0]["target"])
	require.Equal(t, "open", events[0]["to_state"])
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, Backoff(base, 1, 0))
	require.Equal(t, base, Backoff(base, 0, 0))
	require.Equal(t, base*4, Backoff(base, 3, 0))
	require.Equal(t, 200*time.Millisecond, Backoff(0, 2, 0))

	for range 20 {
		d := Backoff(base, 2, 0.2)
		require.GreaterOrEqual(t, d, 160*time.Millisecond)
		require.LessOrEqual(t, d, 240*time.Millisecond)
	}
}
