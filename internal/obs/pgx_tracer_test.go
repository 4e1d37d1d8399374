package obs

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestPGXTracerSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var tr PGXTracer
	ctx := tr.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "  insert INTO orders (ref) VALUES ($1)", Args: []any{"R1"}})
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("boom")})

	batch := &pgx.Batch{}
	batch.Queue("INSERT INTO order_lines VALUES ($1)", 1)
	ctx = tr.TraceBatchStart(context.Background(), nil, pgx.TraceBatchStartData{Batch: batch})
	tr.TraceBatchQuery(ctx, nil, pgx.TraceBatchQueryData{SQL: "INSERT INTO order_lines VALUES ($1)"})
	tr.TraceBatchEnd(ctx, nil, pgx.TraceBatchEndData{})

	spans := rec.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "pgx INSERT", spans[0].Name())
	require.Len(t, spans[0].Events(), 1)
	require.Equal(t, "pgx batch", spans[1].Name())
	require.Len(t, spans[1].Events(), 1)
}

func TestTruncateSQL(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}
	require.Len(t, truncateSQL(string(long)), maxStatementLen+3)
	require.Equal(t, "UNKNOWN", sqlOperation("   "))
}
