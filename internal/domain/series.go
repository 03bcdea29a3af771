package domain

import (
	"sort"
	"time"
)

// Bar is a single OHLCV record at a given timestamp. Timestamp is always
// UTC once it crosses a provider boundary.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Coherent reports whether the bar satisfies Low <= min(Open,Close) <=
// max(Open,Close) <= High. Violations are logged by callers, never fatal.
func (b Bar) Coherent() bool {
	lo := b.Open
	if b.Close < lo {
		lo = b.Close
	}
	hi := b.Open
	if b.Close > hi {
		hi = b.Close
	}
	return b.Low <= lo && hi <= b.High
}

// Metadata is the sidecar record persisted alongside a bar file.
type Metadata struct {
	Symbol         string
	Period         Period
	RequestedStart time.Time
	RequestedEnd   time.Time
	FirstRowTs     time.Time
	LastRowTs      time.Time
	Provider       string
	// ExpirationTs is set iff the last persisted bar has volume 0, signaling
	// a dated contract past its expiry (spec.md §3).
	ExpirationTs *time.Time
	CreatedTs    time.Time
}

// PriceSeries is a time-indexed OHLCV table plus its metadata. Bars is kept
// sorted ascending by Timestamp once the series has been through Merge or
// NewPriceSeries; callers must not rely on any other ordering.
type PriceSeries struct {
	Bars     []Bar
	Metadata Metadata
}

// NewPriceSeries builds a series from unsorted bars and the request window
// that produced them, sorting bars and deriving FirstRowTs/LastRowTs/
// ExpirationTs. An empty bar slice yields an empty series with zero-value
// row timestamps; callers treat that as DataNotFound, not as an error here.
func NewPriceSeries(symbol string, period Period, provider string, reqStart, reqEnd time.Time, bars []Bar) PriceSeries {
	sorted := sortBars(bars)
	md := Metadata{
		Symbol:         symbol,
		Period:         period,
		RequestedStart: reqStart,
		RequestedEnd:   reqEnd,
		Provider:       provider,
	}
	if len(sorted) > 0 {
		md.FirstRowTs = sorted[0].Timestamp
		md.LastRowTs = sorted[len(sorted)-1].Timestamp
		last := sorted[len(sorted)-1]
		if last.Volume == 0 {
			ts := last.Timestamp
			md.ExpirationTs = &ts
		}
	}
	return PriceSeries{Bars: sorted, Metadata: md}
}

// IsEmpty reports whether the series carries no bars.
func (s PriceSeries) IsEmpty() bool { return len(s.Bars) == 0 }

func sortBars(bars []Bar) []Bar {
	out := make([]Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
