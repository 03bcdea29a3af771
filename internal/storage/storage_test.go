package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makutaku/vortex-go/internal/domain"
)

func sampleBars() []domain.Bar {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Bar{
		{Timestamp: base, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000},
		{Timestamp: base.AddDate(0, 0, 1), Open: 100.5, High: 102, Low: 100, Close: 101.5, Volume: 1100},
		{Timestamp: base.AddDate(0, 0, 2), Open: 101.5, High: 103, Low: 101, Close: 102.5, Volume: 1200},
	}
}

func TestFileStorage_RoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		new  func(dir string, dryRun bool) *FileStorage
	}{
		{"csv", NewCSVStorage},
		{"columnar", NewColumnarStorage},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			fs := tc.new(dir, false)

			inst := domain.Stock{InstID: "AAPL", Ticker: "AAPL"}
			series := domain.NewPriceSeries("AAPL", domain.Period1Day, "freecsv",
				sampleBars()[0].Timestamp, sampleBars()[2].Timestamp, sampleBars())

			require.NoError(t, fs.Persist(series, inst, domain.Period1Day))

			got, err := fs.Load(inst, domain.Period1Day)
			require.NoError(t, err)

			require.Len(t, got.Bars, len(series.Bars))
			for i, b := range series.Bars {
				assert.True(t, b.Timestamp.Equal(got.Bars[i].Timestamp))
				assert.InDelta(t, b.Open, got.Bars[i].Open, 1e-9)
				assert.InDelta(t, b.High, got.Bars[i].High, 1e-9)
				assert.InDelta(t, b.Low, got.Bars[i].Low, 1e-9)
				assert.InDelta(t, b.Close, got.Bars[i].Close, 1e-9)
				assert.InDelta(t, b.Volume, got.Bars[i].Volume, 1e-9)
			}

			assert.Equal(t, series.Metadata.Symbol, got.Metadata.Symbol)
			assert.Equal(t, series.Metadata.Provider, got.Metadata.Provider)
			assert.True(t, series.Metadata.FirstRowTs.Equal(got.Metadata.FirstRowTs))
			assert.True(t, series.Metadata.LastRowTs.Equal(got.Metadata.LastRowTs))
		})
	}
}

func TestFileStorage_LoadMissing(t *testing.T) {
	dir := t.TempDir()
	fs := NewCSVStorage(dir, false)
	inst := domain.Stock{InstID: "MSFT", Ticker: "MSFT"}

	_, err := fs.Load(inst, domain.Period1Day)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStorage_DryRunSkipsWrite(t *testing.T) {
	dir := t.TempDir()
	fs := NewCSVStorage(dir, true)
	inst := domain.Stock{InstID: "TSLA", Ticker: "TSLA"}
	series := domain.NewPriceSeries("TSLA", domain.Period1Day, "freecsv",
		sampleBars()[0].Timestamp, sampleBars()[2].Timestamp, sampleBars())

	require.NoError(t, fs.Persist(series, inst, domain.Period1Day))

	_, err := fs.Load(inst, domain.Period1Day)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBarPath_FutureConvention(t *testing.T) {
	fut := domain.Future{InstID: "GCJ24", Root: "GC", Year: 2024, MonthCode: domain.MonthJ, DaysCount: 180}
	got := barPath("/data", fut, domain.Period1Day, "csv")
	assert.Equal(t, "/data/futures/1d/GCJ24/GCJ24_20240400.csv", got)
}

func TestBarPath_StockConvention(t *testing.T) {
	s := domain.Stock{InstID: "AAPL", Ticker: "AAPL"}
	got := barPath("/data", s, domain.Period1Day, "csv")
	assert.Equal(t, "/data/stocks/1d/AAPL.csv", got)
}

func TestBarPath_ForexConvention(t *testing.T) {
	fx := domain.Forex{InstID: "EURUSD", Pair: "EURUSD"}
	got := barPath("/data", fx, domain.Period1Hour, "vtx")
	assert.Equal(t, "/data/forex/1h/EURUSD.vtx", got)
}
