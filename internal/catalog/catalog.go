// Package catalog loads the instrument catalog, a YAML document mapping
// instrument id to InstrumentConfig, the same gopkg.in/yaml.v3 approach the
// teacher's config loader uses for its own YAML document.
package catalog

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
)

// InstrumentConfig is one catalog entry, per spec.md §3.
type InstrumentConfig struct {
	ID         string   `yaml:"-"`
	Code       string   `yaml:"code"`
	AssetClass string   `yaml:"assetClass"`
	Periods    []string `yaml:"periods,omitempty"`
	Cycle      *string  `yaml:"cycle,omitempty"`
	TickDate   string   `yaml:"tickDate,omitempty"`
	StartDate  string   `yaml:"startDate,omitempty"`
	DaysCount  int      `yaml:"daysCount,omitempty"`
	TZ         string   `yaml:"tz,omitempty"`
}

// Catalog is the read-only, once-loaded set of configured instruments.
type Catalog struct {
	Entries map[string]InstrumentConfig
}

// Load reads and parses a catalog file at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "load_catalog", err, "reading catalog file %s", path)
	}

	var raw map[string]InstrumentConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "load_catalog", err, "parsing catalog file %s", path)
	}

	entries := make(map[string]InstrumentConfig, len(raw))
	for id, cfg := range raw {
		cfg.ID = id
		if cfg.AssetClass == "future" && cfg.Cycle == nil {
			return nil, errs.New(errs.KindConfig, "load_catalog",
				"instrument %s is a future but declares no cycle (cycle=null is a config error)", id)
		}
		entries[id] = cfg
	}
	return &Catalog{Entries: entries}, nil
}

// Disabled reports whether cfg's cycle is the empty string, which per
// spec.md §4.7 disables the instrument entirely.
func (c InstrumentConfig) Disabled() bool {
	return c.Cycle != nil && strings.TrimSpace(*c.Cycle) == ""
}

// MonthCodes parses the cycle string into the set of delivery months this
// futures root trades, e.g. "GJMQVZ" -> {G,J,M,Q,V,Z}.
func (c InstrumentConfig) MonthCodes() (map[domain.MonthCode]struct{}, error) {
	set := make(map[domain.MonthCode]struct{})
	if c.Cycle == nil {
		return set, nil
	}
	for _, r := range strings.TrimSpace(*c.Cycle) {
		code := domain.MonthCode(r)
		if _, ok := code.Month(); !ok {
			return nil, errs.New(errs.KindConfig, "parse_cycle", "invalid month code %q in cycle %q", string(r), *c.Cycle)
		}
		set[code] = struct{}{}
	}
	return set, nil
}

// ResolvePeriods resolves the catalog's period list into domain.Period values.
func (c InstrumentConfig) ResolvePeriods() ([]domain.Period, error) {
	if len(c.Periods) == 0 {
		return nil, nil
	}
	out := make([]domain.Period, 0, len(c.Periods))
	for _, code := range c.Periods {
		p, ok := domain.ParsePeriod(code)
		if !ok {
			return nil, errs.New(errs.KindConfig, "parse_periods", "unknown period code %q for instrument %s", code, c.ID)
		}
		out = append(out, p)
	}
	return out, nil
}

// Location resolves the instrument's timezone, defaulting to UTC.
func (c InstrumentConfig) Location() (*time.Location, error) {
	if c.TZ == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "load_location", err, "loading timezone %q for instrument %s", c.TZ, c.ID)
	}
	return loc, nil
}

// ParsedStartDate parses StartDate (YYYY-MM-DD) in loc, or returns zero if unset.
func (c InstrumentConfig) ParsedStartDate(loc *time.Location) (time.Time, error) {
	if c.StartDate == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", c.StartDate, loc)
	if err != nil {
		return time.Time{}, errs.Wrap(errs.KindConfig, "parse_start_date", err,
			"parsing startDate %q for instrument %s", c.StartDate, c.ID)
	}
	return t, nil
}

// ParsedTickDate parses TickDate (YYYY-MM-DD) in loc, or returns zero if unset.
func (c InstrumentConfig) ParsedTickDate(loc *time.Location) (time.Time, error) {
	if c.TickDate == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", c.TickDate, loc)
	if err != nil {
		return time.Time{}, errs.Wrap(errs.KindConfig, "parse_tick_date", err,
			"parsing tickDate %q for instrument %s", c.TickDate, c.ID)
	}
	return t, nil
}

// ToInstrument builds the non-dated domain.Instrument for an undated catalog
// entry (stock/forex). Futures are synthesized per contract by the planner.
func (c InstrumentConfig) ToInstrument() (domain.Instrument, error) {
	switch c.AssetClass {
	case "stock":
		return domain.Stock{InstID: c.ID, Ticker: c.Code}, nil
	case "forex":
		return domain.Forex{InstID: c.ID, Pair: c.Code}, nil
	default:
		return nil, fmt.Errorf("asset class %q is not an undated instrument", c.AssetClass)
	}
}
