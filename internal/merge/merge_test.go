package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/makutaku/vortex-go/internal/domain"
)

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func barAt(n int, close float64) domain.Bar {
	return domain.Bar{Timestamp: day(n), Open: close, High: close, Low: close, Close: close, Volume: 100}
}

func seriesOf(bars ...domain.Bar) domain.PriceSeries {
	return domain.NewPriceSeries("AAPL", domain.Period1Day, "stub", bars[0].Timestamp, bars[len(bars)-1].Timestamp, bars)
}

func TestSeries_NoOverlapConcatenates(t *testing.T) {
	existing := seriesOf(barAt(1, 1), barAt(2, 2), barAt(3, 3), barAt(4, 4), barAt(5, 5))
	fresh := seriesOf(barAt(6, 6), barAt(7, 7), barAt(8, 8), barAt(9, 9), barAt(10, 10))

	merged := merged(existing, fresh)
	assert.Len(t, merged.Bars, 10)
}

func TestSeries_FullOverlapFreshWins(t *testing.T) {
	existing := seriesOf(barAt(1, 1), barAt(2, 2), barAt(3, 3))
	fresh := seriesOf(barAt(1, 100), barAt(2, 200), barAt(3, 300))

	merged := merged(existing, fresh)
	assert := assert.New(t)
	assert.Len(merged.Bars, 3)
	for _, b := range merged.Bars {
		assert.GreaterOrEqual(b.Close, 100.0)
	}
}

func TestSeries_PartialOverlapNewWinsOnConflict(t *testing.T) {
	existing := seriesOf(barAt(1, 1), barAt(2, 2), barAt(3, 3), barAt(4, 4))
	fresh := seriesOf(barAt(3, 300), barAt(4, 400), barAt(5, 500), barAt(6, 600))

	merged := merged(existing, fresh)
	assert := assert.New(t)
	assert.Len(merged.Bars, 6)

	byDay := map[int]float64{}
	for _, b := range merged.Bars {
		byDay[b.Timestamp.Day()] = b.Close
	}
	assert.Equal(1.0, byDay[1])
	assert.Equal(2.0, byDay[2])
	assert.Equal(300.0, byDay[3])
	assert.Equal(400.0, byDay[4])
	assert.Equal(500.0, byDay[5])
	assert.Equal(600.0, byDay[6])
}

func TestSeries_IdempotentOnSecondMerge(t *testing.T) {
	existing := seriesOf(barAt(1, 1), barAt(2, 2), barAt(3, 3))
	fresh := seriesOf(barAt(2, 200), barAt(3, 300), barAt(4, 400))

	once := merged(existing, fresh)
	twice := merged(once, fresh)

	assert.Equal(t, once.Bars, twice.Bars)
}

func TestSeries_EmptyInputsReturnOther(t *testing.T) {
	existing := seriesOf(barAt(1, 1))
	empty := domain.PriceSeries{}

	assert.Equal(t, existing.Bars, merged(existing, empty).Bars)
	assert.Equal(t, existing.Bars, merged(empty, existing).Bars)
}

func merged(existing, fresh domain.PriceSeries) domain.PriceSeries {
	return Series(existing, fresh)
}
