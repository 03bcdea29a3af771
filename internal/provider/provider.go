// Package provider defines the DataProvider contract every upstream OHLCV
// source implements, plus a circuit-breaker wrapper any provider can be
// dressed in. Concrete providers live in subpackages (freecsv, barchart).
package provider

import (
	"context"
	"time"

	"github.com/makutaku/vortex-go/internal/domain"
)

// FetchRequest bounds a single fetch call to one instrument, one period,
// and one time window. The planner has already split the job to fit
// MaxWindow; providers send the window as given and do not split it
// further.
type FetchRequest struct {
	Instrument domain.Instrument
	Period     domain.Period
	Start      time.Time
	End        time.Time
}

// DataProvider is the contract every upstream OHLCV source implements, per
// spec.md §4.3.
type DataProvider interface {
	// Name identifies the provider in logs, metadata, and config keys.
	Name() string
	// Login establishes a session, if the provider requires one. Providers
	// that don't need auth return nil immediately.
	Login(ctx context.Context) error
	// Logout tears down any session state. Safe to call even if Login was
	// never called or failed.
	Logout(ctx context.Context) error
	// SupportedPeriods lists the Periods this provider can fetch.
	SupportedPeriods() []domain.Period
	// MaxWindow returns the largest [Start,End] span a single fetch call may
	// cover for period, per provider-imposed limits.
	MaxWindow(period domain.Period) time.Duration
	// MinStart returns the earliest Start this provider will serve for
	// instrument/period; a zero time means unbounded.
	MinStart(instrument domain.Instrument, period domain.Period) time.Time
	// FetchBars retrieves bars for req. Errors are always *errs.Error so
	// callers can classify them without type assertions on provider
	// internals.
	FetchBars(ctx context.Context, req FetchRequest) (domain.PriceSeries, error)
}
