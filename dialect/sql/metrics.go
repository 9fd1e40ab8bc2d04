package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quarryorm/quarry/dialect"
)

// DriverMetrics counts the statements a driver runs. Backing stores render
// each statement text once and run it many times, so per-statement counts
// and timing are the cheapest view into which store operations dominate.
type DriverMetrics struct {
	queries  atomic.Int64
	execs    atomic.Int64
	errors   atomic.Int64
	slow     atomic.Int64
	busyNano atomic.Int64
}

// Snapshot returns a point-in-time copy of the counters.
func (m *DriverMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Queries: m.queries.Load(),
		Execs:   m.execs.Load(),
		Errors:  m.errors.Load(),
		Slow:    m.slow.Load(),
		Busy:    time.Duration(m.busyNano.Load()),
	}
}

// Reset zeroes all counters.
func (m *DriverMetrics) Reset() {
	m.queries.Store(0)
	m.execs.Store(0)
	m.errors.Store(0)
	m.slow.Store(0)
	m.busyNano.Store(0)
}

// MetricsSnapshot is one reading of a driver's counters.
type MetricsSnapshot struct {
	// Queries counts SELECT round-trips.
	Queries int64
	// Execs counts DML round-trips.
	Execs int64
	// Errors counts statements the driver returned an error for.
	Errors int64
	// Slow counts statements that exceeded the slow threshold.
	Slow int64
	// Busy is the total wall time spent inside driver calls.
	Busy time.Duration
}

// PerStatement returns the average time one statement took.
func (s MetricsSnapshot) PerStatement() time.Duration {
	total := s.Queries + s.Execs
	if total == 0 {
		return 0
	}
	return s.Busy / time.Duration(total)
}

func (s MetricsSnapshot) String() string {
	return fmt.Sprintf("queries=%d execs=%d busy=%s avg=%s slow=%d errors=%d",
		s.Queries, s.Execs, s.Busy, s.PerStatement(), s.Slow, s.Errors)
}

// SlowStatementFunc is called with every statement that exceeded the slow
// threshold, after the statement has completed.
type SlowStatementFunc func(ctx context.Context, text string, args []any, took time.Duration)

// InstrumentedDriver wraps any driver with statement counting and slow
// statement detection. The zero threshold counts nothing as slow; use
// SlowAfter to enable it.
type InstrumentedDriver struct {
	dialect.Driver
	metrics   *DriverMetrics
	threshold atomic.Int64 // nanoseconds
	onSlow    SlowStatementFunc
}

// InstrumentOption configures an InstrumentedDriver.
type InstrumentOption func(*InstrumentedDriver)

// SlowAfter marks statements taking longer than d as slow.
func SlowAfter(d time.Duration) InstrumentOption {
	return func(id *InstrumentedDriver) {
		id.threshold.Store(int64(d))
	}
}

// OnSlowStatement installs a callback for slow statements.
func OnSlowStatement(fn SlowStatementFunc) InstrumentOption {
	return func(id *InstrumentedDriver) {
		id.onSlow = fn
	}
}

// LogSlowStatements logs slow statements through the given logger, or
// slog.Default when nil.
func LogSlowStatements(logger *slog.Logger) InstrumentOption {
	return OnSlowStatement(func(ctx context.Context, text string, args []any, took time.Duration) {
		l := logger
		if l == nil {
			l = slog.Default()
		}
		l.WarnContext(ctx, "slow statement", "took", took, "text", text, "args", args)
	})
}

// Instrument wraps drv so every statement it runs is counted and timed.
// Transactions started through the wrapper are instrumented as well.
func Instrument(drv dialect.Driver, opts ...InstrumentOption) *InstrumentedDriver {
	id := &InstrumentedDriver{
		Driver:  drv,
		metrics: &DriverMetrics{},
	}
	for _, opt := range opts {
		opt(id)
	}
	return id
}

// Metrics returns the driver's counters.
func (d *InstrumentedDriver) Metrics() *DriverMetrics {
	return d.metrics
}

// SetSlowAfter updates the slow threshold at runtime.
func (d *InstrumentedDriver) SetSlowAfter(t time.Duration) {
	d.threshold.Store(int64(t))
}

// Query runs a SELECT and records it.
func (d *InstrumentedDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.observe(ctx, query, args, start, err, true)
	return err
}

// Exec runs a DML statement and records it.
func (d *InstrumentedDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.observe(ctx, query, args, start, err, false)
	return err
}

// Tx starts a transaction whose statements feed the same counters.
func (d *InstrumentedDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &instrumentedTx{Tx: tx, driver: d}, nil
}

func (d *InstrumentedDriver) observe(ctx context.Context, text string, args any, start time.Time, err error, isQuery bool) {
	took := time.Since(start)
	if isQuery {
		d.metrics.queries.Add(1)
	} else {
		d.metrics.execs.Add(1)
	}
	d.metrics.busyNano.Add(int64(took))
	if err != nil {
		d.metrics.errors.Add(1)
	}
	threshold := time.Duration(d.threshold.Load())
	if threshold <= 0 || took < threshold {
		return
	}
	d.metrics.slow.Add(1)
	if d.onSlow != nil {
		argv, _ := args.([]any)
		d.onSlow(ctx, text, argv, took)
	}
}

type instrumentedTx struct {
	dialect.Tx
	driver *InstrumentedDriver
}

func (tx *instrumentedTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.driver.observe(ctx, query, args, start, err, true)
	return err
}

func (tx *instrumentedTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.driver.observe(ctx, query, args, start, err, false)
	return err
}

var (
	_ dialect.Driver = (*InstrumentedDriver)(nil)
	_ dialect.Tx     = (*instrumentedTx)(nil)
)
