package freecsv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
	"github.com/makutaku/vortex-go/internal/provider"
)

func TestProvider_SupportedPeriodsAndCapabilities(t *testing.T) {
	p := New(nil)
	assert.Equal(t, "freecsv", p.Name())
	assert.Contains(t, p.SupportedPeriods(), domain.Period1Day)
	assert.True(t, p.MaxWindow(domain.Period1Min) < p.MaxWindow(domain.Period1Day))
	assert.NoError(t, p.Login(context.Background()))
	assert.NoError(t, p.Logout(context.Background()))
}

func TestProvider_RejectsUnsupportedPeriod(t *testing.T) {
	p := New(nil)
	_, err := p.FetchBars(context.Background(), provider.FetchRequest{
		Instrument: domain.Stock{InstID: "AAPL", Ticker: "AAPL"},
		Period:     domain.Period3Month,
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestProvider_FetchBars_SkipsNullRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := `{"chart":{"result":[{"timestamp":[1700000000,1700086400],` +
			`"indicators":{"quote":[{` +
			`"open":[100,0],"high":[101,0],"low":[99,0],"close":[100.5,0],"volume":[1000,0]` +
			`}]}}],"error":null}}`
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	origBaseURL := baseURL
	baseURL = srv.URL + "/"
	defer func() { baseURL = origBaseURL }()

	p := New(nil)
	p.client = srv.Client()

	series, err := p.FetchBars(context.Background(), provider.FetchRequest{
		Instrument: domain.Stock{InstID: "AAPL", Ticker: "AAPL"},
		Period:     domain.Period1Day,
		Start:      time.Unix(1700000000, 0),
		End:        time.Unix(1700086400, 0),
	})
	require.NoError(t, err)
	require.Len(t, series.Bars, 1)
	assert.Equal(t, 100.0, series.Bars[0].Open)
}

func TestProvider_FetchBars_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	origBaseURL := baseURL
	baseURL = srv.URL + "/"
	defer func() { baseURL = origBaseURL }()

	p := New(nil)
	p.client = srv.Client()

	_, err := p.FetchBars(context.Background(), provider.FetchRequest{
		Instrument: domain.Stock{InstID: "AAPL", Ticker: "AAPL"},
		Period:     domain.Period1Day,
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindRateLimit, errs.KindOf(err))
	assert.True(t, errs.IsRetryable(err))
}
