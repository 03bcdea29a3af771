package provider

import (
	"context"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
)

type fakeProvider struct {
	name      string
	fail      bool
	failKind  errs.Kind
	callCount int
}

func (f *fakeProvider) Name() string                     { return f.name }
func (f *fakeProvider) Login(ctx context.Context) error   { return nil }
func (f *fakeProvider) Logout(ctx context.Context) error  { return nil }
func (f *fakeProvider) SupportedPeriods() []domain.Period { return []domain.Period{domain.Period1Day} }
func (f *fakeProvider) MaxWindow(domain.Period) time.Duration { return 0 }
func (f *fakeProvider) MinStart(domain.Instrument, domain.Period) time.Time {
	return time.Time{}
}

func (f *fakeProvider) FetchBars(ctx context.Context, req FetchRequest) (domain.PriceSeries, error) {
	f.callCount++
	if f.fail {
		return domain.PriceSeries{}, errs.New(f.failKind, "fetch_bars", "simulated failure")
	}
	return domain.PriceSeries{}, nil
}

func TestBreakerProvider_TripsOnThreeConsecutiveMonitoredFailures(t *testing.T) {
	fp := &fakeProvider{name: "fake", fail: true, failKind: errs.KindConnection}
	settings := BreakerSettings{MaxRequests: 1, Interval: 10 * time.Millisecond, Timeout: 20 * time.Millisecond, ConsecutiveFailures: 3}
	bp := NewBreakerProviderWithSettings(fp, settings)

	for i := 0; i < 2; i++ {
		_, _ = bp.FetchBars(context.Background(), FetchRequest{})
	}
	require.Equal(t, gobreaker.StateClosed, bp.State(), "two consecutive failures must not trip F=3")

	_, _ = bp.FetchBars(context.Background(), FetchRequest{})
	assert.Equal(t, gobreaker.StateOpen, bp.State(), "third consecutive monitored failure must trip the breaker")
	assert.Equal(t, uint32(1), bp.OpenedCount())
}

func TestBreakerProvider_NonMonitoredFailuresDoNotTrip(t *testing.T) {
	fp := &fakeProvider{name: "fake", fail: true, failKind: errs.KindDataNotFound}
	settings := BreakerSettings{MaxRequests: 1, Interval: 10 * time.Millisecond, Timeout: 20 * time.Millisecond, ConsecutiveFailures: 3}
	bp := NewBreakerProviderWithSettings(fp, settings)

	for i := 0; i < 5; i++ {
		_, err := bp.FetchBars(context.Background(), FetchRequest{})
		require.Error(t, err)
		assert.Equal(t, errs.KindDataNotFound, errs.KindOf(err))
	}

	assert.Equal(t, gobreaker.StateClosed, bp.State())
	assert.Equal(t, uint32(0), bp.OpenedCount())
}

func TestBreakerProvider_OpenRejectsImmediately(t *testing.T) {
	fp := &fakeProvider{name: "fake", fail: true, failKind: errs.KindConnection}
	settings := BreakerSettings{MaxRequests: 1, Interval: 10 * time.Millisecond, Timeout: time.Minute, ConsecutiveFailures: 3}
	bp := NewBreakerProviderWithSettings(fp, settings)

	for i := 0; i < 3; i++ {
		_, _ = bp.FetchBars(context.Background(), FetchRequest{})
	}
	require.Equal(t, gobreaker.StateOpen, bp.State())

	callsBefore := fp.callCount
	_, err := bp.FetchBars(context.Background(), FetchRequest{})
	require.Error(t, err)
	assert.Equal(t, errs.KindCircuitOpen, errs.KindOf(err))
	assert.Equal(t, callsBefore, fp.callCount, "open breaker must not invoke the inner provider")
}

func TestBreakerProvider_RecoversAfterTimeout(t *testing.T) {
	fp := &fakeProvider{name: "fake", fail: true, failKind: errs.KindConnection}
	settings := BreakerSettings{MaxRequests: 2, Interval: 5 * time.Millisecond, Timeout: 15 * time.Millisecond, ConsecutiveFailures: 3}
	bp := NewBreakerProviderWithSettings(fp, settings)

	for i := 0; i < 3; i++ {
		_, _ = bp.FetchBars(context.Background(), FetchRequest{})
	}
	require.Equal(t, gobreaker.StateOpen, bp.State())

	fp.fail = false
	deadline := time.After(200 * time.Millisecond)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for bp.State() != gobreaker.StateHalfOpen {
		select {
		case <-deadline:
			t.Fatal("breaker never transitioned to half-open")
		case <-ticker.C:
		}
	}

	_, err := bp.FetchBars(context.Background(), FetchRequest{})
	assert.NoError(t, err)
}
