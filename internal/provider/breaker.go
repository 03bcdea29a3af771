package provider

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
)

// BreakerSettings configures the circuit breaker wrapping a provider, per
// spec.md §4.4: F consecutive monitored failures trip the breaker open;
// after Timeout it half-opens and allows MaxRequests (K) probe calls.
type BreakerSettings struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerSettings trips after 3 consecutive monitored failures (F=3),
// probes again with 2 requests (K=2) after a minute open.
var DefaultBreakerSettings = BreakerSettings{
	MaxRequests:         2,
	Interval:            time.Minute,
	Timeout:             time.Minute,
	ConsecutiveFailures: 3,
}

// BreakerProvider wraps a DataProvider with a per-provider circuit breaker.
// FetchBars calls that fail with a monitored error (errs.IsMonitored) count
// against the breaker; Authentication/Config/DataNotFound/LowData errors do
// not, so a provider serving a normal "no data" response never trips open.
type BreakerProvider struct {
	inner       DataProvider
	breaker     *gobreaker.CircuitBreaker
	openedCount uint32
}

// NewBreakerProvider wraps inner with DefaultBreakerSettings.
func NewBreakerProvider(inner DataProvider) *BreakerProvider {
	return NewBreakerProviderWithSettings(inner, DefaultBreakerSettings)
}

// NewBreakerProviderWithSettings wraps inner with explicit settings.
func NewBreakerProviderWithSettings(inner DataProvider, settings BreakerSettings) *BreakerProvider {
	bp := &BreakerProvider{inner: inner}
	st := gobreaker.Settings{
		Name:        "provider:" + inner.Name(),
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				atomic.AddUint32(&bp.openedCount, 1)
			}
		},
	}
	bp.breaker = gobreaker.NewCircuitBreaker(st)
	return bp
}

// Name implements DataProvider.
func (b *BreakerProvider) Name() string { return b.inner.Name() }

// Login implements DataProvider. Login is not run through the breaker:
// authentication failures are not monitored failures (spec.md §4.4).
func (b *BreakerProvider) Login(ctx context.Context) error { return b.inner.Login(ctx) }

// Logout implements DataProvider.
func (b *BreakerProvider) Logout(ctx context.Context) error { return b.inner.Logout(ctx) }

// SupportedPeriods implements DataProvider.
func (b *BreakerProvider) SupportedPeriods() []domain.Period { return b.inner.SupportedPeriods() }

// MaxWindow implements DataProvider.
func (b *BreakerProvider) MaxWindow(period domain.Period) time.Duration {
	return b.inner.MaxWindow(period)
}

// MinStart implements DataProvider.
func (b *BreakerProvider) MinStart(instrument domain.Instrument, period domain.Period) time.Time {
	return b.inner.MinStart(instrument, period)
}

// State exposes the breaker's current state for health reporting.
func (b *BreakerProvider) State() gobreaker.State { return b.breaker.State() }

// Counts exposes the breaker's rolling counters for health reporting.
func (b *BreakerProvider) Counts() gobreaker.Counts { return b.breaker.Counts() }

// OpenedCount returns how many times the breaker has transitioned into the
// open state over its lifetime, for health reporting.
func (b *BreakerProvider) OpenedCount() uint32 { return atomic.LoadUint32(&b.openedCount) }

// FetchBars implements DataProvider. A call made while the breaker is open
// never reaches inner; it fails immediately with KindCircuitOpen.
func (b *BreakerProvider) FetchBars(ctx context.Context, req FetchRequest) (domain.PriceSeries, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		series, err := b.inner.FetchBars(ctx, req)
		if err != nil && errs.IsMonitored(err) {
			return domain.PriceSeries{}, err
		}
		if err != nil {
			// Non-monitored failures still propagate to the caller but must
			// not count as a breaker failure, so wrap them in a sentinel the
			// Execute call treats as success and unwrap afterward.
			return passthroughErr{err}, nil
		}
		return series, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return domain.PriceSeries{}, errs.New(errs.KindCircuitOpen, "fetch_bars",
				"circuit open for provider %s: %v", b.inner.Name(), err)
		}
		return domain.PriceSeries{}, err
	}
	if pt, ok := result.(passthroughErr); ok {
		return domain.PriceSeries{}, pt.err
	}
	return result.(domain.PriceSeries), nil
}

type passthroughErr struct{ err error }

func (passthroughErr) Error() string { return "passthrough" }
