package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makutaku/vortex-go/internal/catalog"
	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/provider"
)

type stubProvider struct {
	maxWindow time.Duration
	minStart  time.Time
	periods   []domain.Period
}

func (s stubProvider) Name() string                  { return "stub" }
func (s stubProvider) Login(context.Context) error    { return nil }
func (s stubProvider) Logout(context.Context) error   { return nil }
func (s stubProvider) SupportedPeriods() []domain.Period {
	if s.periods != nil {
		return s.periods
	}
	return []domain.Period{domain.Period1Day}
}
func (s stubProvider) MaxWindow(domain.Period) time.Duration { return s.maxWindow }
func (s stubProvider) MinStart(domain.Instrument, domain.Period) time.Time {
	return s.minStart
}
func (s stubProvider) FetchBars(context.Context, provider.FetchRequest) (domain.PriceSeries, error) {
	return domain.PriceSeries{}, nil
}

func strPtr(s string) *string { return &s }

func TestPlan_FutureCycleEmitsOneJobPerContract(t *testing.T) {
	cat := &catalog.Catalog{Entries: map[string]catalog.InstrumentConfig{
		"GC": {ID: "GC", Code: "GC", AssetClass: "future", Cycle: strPtr("H"), DaysCount: 90, TZ: "UTC"},
	}}

	pl := New(stubProvider{}, "stub", 2020, 2023)
	pl.Now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	jobs, err := pl.Plan(cat)
	require.NoError(t, err)
	assert.Len(t, jobs, 3, "one March contract per year across 2020-2022")
}

func TestPlan_StockUnboundedMaxWindowOneJobPerPeriod(t *testing.T) {
	cat := &catalog.Catalog{Entries: map[string]catalog.InstrumentConfig{
		"AAPL": {ID: "AAPL", Code: "AAPL", AssetClass: "stock"},
	}}

	pl := New(stubProvider{maxWindow: 0}, "stub", 2020, 2021)
	pl.Now = time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

	jobs, err := pl.Plan(cat)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.Period1Day, jobs[0].Period)
}

func TestPlan_ChunksRespectMaxWindow(t *testing.T) {
	cat := &catalog.Catalog{Entries: map[string]catalog.InstrumentConfig{
		"AAPL": {ID: "AAPL", Code: "AAPL", AssetClass: "stock"},
	}}

	maxWindow := 30 * 24 * time.Hour
	pl := New(stubProvider{maxWindow: maxWindow}, "stub", 2020, 2021)
	pl.Now = time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)

	jobs, err := pl.Plan(cat)
	require.NoError(t, err)
	require.NotEmpty(t, jobs)
	for _, j := range jobs {
		assert.True(t, j.End.Sub(j.Start) <= maxWindow)
	}
}

func TestPlan_DropsJobsBeforeMinStart(t *testing.T) {
	cat := &catalog.Catalog{Entries: map[string]catalog.InstrumentConfig{
		"AAPL": {ID: "AAPL", Code: "AAPL", AssetClass: "stock"},
	}}

	minStart := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	pl := New(stubProvider{minStart: minStart}, "stub", 2015, 2021)
	pl.Now = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	jobs, err := pl.Plan(cat)
	require.NoError(t, err)
	for _, j := range jobs {
		assert.False(t, j.Start.Before(minStart))
	}
}

func TestPlan_DisabledInstrumentSkipped(t *testing.T) {
	cat := &catalog.Catalog{Entries: map[string]catalog.InstrumentConfig{
		"GC": {ID: "GC", Code: "GC", AssetClass: "future", Cycle: strPtr(""), DaysCount: 90},
	}}
	pl := New(stubProvider{}, "stub", 2020, 2023)
	jobs, err := pl.Plan(cat)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
