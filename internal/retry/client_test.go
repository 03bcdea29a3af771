package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
	"github.com/makutaku/vortex-go/internal/provider"
)

type stubProvider struct {
	failTimes int
	failKind  errs.Kind
	calls     int
}

func (s *stubProvider) Name() string                   { return "stub" }
func (s *stubProvider) Login(context.Context) error     { return nil }
func (s *stubProvider) Logout(context.Context) error    { return nil }
func (s *stubProvider) SupportedPeriods() []domain.Period {
	return []domain.Period{domain.Period1Day}
}
func (s *stubProvider) MaxWindow(domain.Period) time.Duration { return 0 }
func (s *stubProvider) MinStart(domain.Instrument, domain.Period) time.Time {
	return time.Time{}
}

func (s *stubProvider) FetchBars(ctx context.Context, req provider.FetchRequest) (domain.PriceSeries, error) {
	s.calls++
	if s.calls <= s.failTimes {
		return domain.PriceSeries{}, errs.New(s.failKind, "fetch_bars", "stub failure")
	}
	return domain.NewPriceSeries(req.Instrument.ID(), req.Period, "stub", req.Start, req.End, nil), nil
}

func fastConfig() Config {
	return Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: time.Second}
}

func TestClient_SucceedsAfterTransientFailures(t *testing.T) {
	sp := &stubProvider{failTimes: 2, failKind: errs.KindConnection}
	c := NewClient(sp, nil, fastConfig())

	_, err := c.FetchBarsWithRetry(context.Background(), provider.FetchRequest{
		Instrument: domain.Stock{InstID: "AAPL", Ticker: "AAPL"},
		Period:     domain.Period1Day,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sp.calls)
}

func TestClient_DoesNotRetryNonRetryableErrors(t *testing.T) {
	sp := &stubProvider{failTimes: 99, failKind: errs.KindValidation}
	c := NewClient(sp, nil, fastConfig())

	_, err := c.FetchBarsWithRetry(context.Background(), provider.FetchRequest{
		Instrument: domain.Stock{InstID: "AAPL", Ticker: "AAPL"},
		Period:     domain.Period1Day,
	})
	require.Error(t, err)
	assert.Equal(t, 1, sp.calls, "non-retryable errors must not be retried")
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	sp := &stubProvider{failTimes: 99, failKind: errs.KindConnection}
	cfg := fastConfig()
	c := NewClient(sp, nil, cfg)

	_, err := c.FetchBarsWithRetry(context.Background(), provider.FetchRequest{
		Instrument: domain.Stock{InstID: "AAPL", Ticker: "AAPL"},
		Period:     domain.Period1Day,
	})
	require.Error(t, err)
	assert.Equal(t, cfg.MaxRetries+1, sp.calls)
}

func TestClient_SanitizesInvalidConfig(t *testing.T) {
	c := NewClient(&stubProvider{}, nil, Config{MaxRetries: -1, InitialBackoff: 0, MaxBackoff: 0, Timeout: 0})
	assert.Equal(t, DefaultConfig.MaxRetries, c.config.MaxRetries)
	assert.Equal(t, DefaultConfig.InitialBackoff, c.config.InitialBackoff)
	assert.Equal(t, DefaultConfig.MaxBackoff, c.config.MaxBackoff)
	assert.Equal(t, DefaultConfig.Timeout, c.config.Timeout)
}
