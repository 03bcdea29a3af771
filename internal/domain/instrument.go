package domain

import (
	"fmt"
	"time"
)

// MonthCode is one of the twelve CME futures delivery-month letters.
type MonthCode byte

// Standard futures delivery-month codes.
const (
	MonthF MonthCode = 'F' // January
	MonthG MonthCode = 'G' // February
	MonthH MonthCode = 'H' // March
	MonthJ MonthCode = 'J' // April
	MonthK MonthCode = 'K' // May
	MonthM MonthCode = 'M' // June
	MonthN MonthCode = 'N' // July
	MonthQ MonthCode = 'Q' // August
	MonthU MonthCode = 'U' // September
	MonthV MonthCode = 'V' // October
	MonthX MonthCode = 'X' // November
	MonthZ MonthCode = 'Z' // December
)

var monthCodeToMonth = map[MonthCode]time.Month{
	MonthF: time.January, MonthG: time.February, MonthH: time.March,
	MonthJ: time.April, MonthK: time.May, MonthM: time.June,
	MonthN: time.July, MonthQ: time.August, MonthU: time.September,
	MonthV: time.October, MonthX: time.November, MonthZ: time.December,
}

// Month returns the calendar month a delivery code refers to, or false if c
// is not one of the twelve standard codes.
func (c MonthCode) Month() (time.Month, bool) {
	m, ok := monthCodeToMonth[c]
	return m, ok
}

func (c MonthCode) String() string { return string(rune(c)) }

// Instrument is the sum type over tradable instruments the planner and
// providers operate on. Every variant shares an ID and exposes Symbol,
// Code, and IsDated so callers can switch on a small exhaustive interface
// instead of a concrete type.
type Instrument interface {
	ID() string
	Symbol() string
	Code() string
	IsDated() bool
}

// Stock is an undated equity instrument.
type Stock struct {
	InstID string
	Ticker string
}

// ID implements Instrument.
func (s Stock) ID() string { return s.InstID }

// Symbol implements Instrument.
func (s Stock) Symbol() string { return s.Ticker }

// Code implements Instrument.
func (s Stock) Code() string { return s.Ticker }

// IsDated implements Instrument.
func (s Stock) IsDated() bool { return false }

// Forex is an undated currency-pair instrument.
type Forex struct {
	InstID string
	Pair   string
}

// ID implements Instrument.
func (f Forex) ID() string { return f.InstID }

// Symbol implements Instrument.
func (f Forex) Symbol() string { return f.Pair }

// Code implements Instrument.
func (f Forex) Code() string { return f.Pair }

// IsDated implements Instrument.
func (f Forex) IsDated() bool { return false }

// Future is a dated futures contract for a single delivery month.
type Future struct {
	InstID    string
	Root      string
	Year      int
	MonthCode MonthCode
	// TickDate is the earliest date intraday bars are available for this
	// instrument's exchange; zero means unknown/unbounded.
	TickDate time.Time
	// DaysCount is the historical lookback window (in days) used to derive
	// the contract's trading window from its expiry.
	DaysCount int
}

// ID implements Instrument.
func (f Future) ID() string { return f.InstID }

// Symbol implements Instrument.
func (f Future) Symbol() string {
	return fmt.Sprintf("%s%s%02d", f.Root, f.MonthCode.String(), f.Year%100)
}

// Code implements Instrument.
func (f Future) Code() string { return f.Root }

// IsDated implements Instrument.
func (f Future) IsDated() bool { return true }

// ContractWindow returns the [start, end] trading window for the contract,
// localized to tz. end is midnight on the last calendar day of the
// delivery month; start is end minus DaysCount days. Per spec.md §4.1,
// last-day-of-month tie-breaks (e.g. February across leap years) use the
// calendar's own canonical rule via time.Date's normalization.
func (f Future) ContractWindow(tz *time.Location) (start, end time.Time) {
	month, ok := f.MonthCode.Month()
	if !ok {
		// Unknown month code: degenerate to a zero-width window so callers
		// that forget to validate the catalog see an obviously-wrong range
		// rather than a silently-shifted one.
		return time.Time{}, time.Time{}
	}
	// First day of the following month, then step back one day, gives the
	// last calendar day of the delivery month regardless of its length.
	firstOfNext := time.Date(f.Year, month+1, 1, 0, 0, 0, 0, tz)
	end = firstOfNext.AddDate(0, 0, -1)
	start = end.AddDate(0, 0, -f.DaysCount)
	return start, end
}
