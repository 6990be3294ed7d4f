package storage

import (
	"context"
	"time"

	"github.com/address-vault/internal/circuitbreaker"
	"github.com/address-vault/internal/retry"
)

// ResilientEventSink wraps an AccessEventSink with a circuit breaker and
// a short retry. Analytics writes happen on the request path, so a
// flapping ClickHouse gets one quick retry and a persistently down one
// is fast-failed by the breaker instead of costing a dial timeout on
// every access.
type ResilientEventSink struct {
	sink    *AccessEventSink
	breaker *circuitbreaker.CircuitBreaker
	retry   *retry.Config
}

// NewResilientEventSink wraps the given sink.
func NewResilientEventSink(sink *AccessEventSink) *ResilientEventSink {
	return &ResilientEventSink{
		sink:    sink,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("clickhouse-analytics")),
		retry: &retry.Config{
			MaxAttempts:  2,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     100 * time.Millisecond,
			Multiplier:   1.0,
		},
	}
}

// Record writes one access event, retrying a transient failure once and
// tripping the breaker on sustained failures.
func (s *ResilientEventSink) Record(ctx context.Context, event *AccessEvent) error {
	return s.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, s.retry, func(ctx context.Context, attempt int) error {
			return s.sink.Record(ctx, event)
		})
	})
}

// UsageSummary reads per-app access counts. Reads go straight to the
// sink: a failed dashboard query should not trip the breaker that
// protects the write path.
func (s *ResilientEventSink) UsageSummary(ctx context.Context, from, to time.Time) (map[string]uint64, error) {
	return s.sink.UsageSummary(ctx, from, to)
}
