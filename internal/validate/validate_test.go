package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
)

func TestSeries_EmptyIsDataNotFound(t *testing.T) {
	_, err := Series(nil, "AAPL", domain.PriceSeries{})
	require.Error(t, err)
	assert.Equal(t, errs.KindDataNotFound, errs.KindOf(err))
}

func TestSeries_NegativeValuesLoggedNotFatal(t *testing.T) {
	bars := []domain.Bar{{Timestamp: time.Now(), Open: -1, High: 1, Low: -2, Close: 1, Volume: -5}}
	series := domain.NewPriceSeries("AAPL", domain.Period1Day, "stub", time.Time{}, time.Time{}, bars)

	out, err := Series(nil, "AAPL", series)
	require.NoError(t, err)
	assert.Len(t, out.Bars, 1)
}

func TestSeries_IncoherentRowKept(t *testing.T) {
	bars := []domain.Bar{{Timestamp: time.Now(), Open: 10, High: 5, Low: 1, Close: 8, Volume: 100}}
	series := domain.NewPriceSeries("AAPL", domain.Period1Day, "stub", time.Time{}, time.Time{}, bars)

	out, err := Series(nil, "AAPL", series)
	require.NoError(t, err)
	require.Len(t, out.Bars, 1)
	assert.False(t, out.Bars[0].Coherent())
}
