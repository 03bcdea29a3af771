// Package planner expands an instrument catalog into a list of bounded
// DownloadJobs, enforcing each provider's capability limits, per spec.md
// §4.7.
package planner

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/makutaku/vortex-go/internal/catalog"
	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
	"github.com/makutaku/vortex-go/internal/provider"
)

// LowDataThreshold is the minimum contract-window intersection duration
// worth fetching, fixed at the planner layer per spec.md §9's open
// question, with an escape hatch for callers that want to override it.
const LowDataThreshold = 3 * 24 * time.Hour

// Planner expands a Catalog into DownloadJobs against one active provider.
type Planner struct {
	Provider         provider.DataProvider
	ProviderName     string
	StartYear        int
	EndYear          int
	Now              time.Time
	LowDataThreshold time.Duration
	Logger           *logrus.Entry
}

// New builds a Planner with LowDataThreshold defaulted to LowDataThreshold
// and Now defaulted to the current time if left zero.
func New(p provider.DataProvider, providerName string, startYear, endYear int) *Planner {
	return &Planner{
		Provider:         p,
		ProviderName:     providerName,
		StartYear:        startYear,
		EndYear:          endYear,
		LowDataThreshold: LowDataThreshold,
	}
}

func (pl *Planner) logger() *logrus.Entry {
	if pl.Logger != nil {
		return pl.Logger
	}
	return logrus.NewEntry(logrus.New())
}

func (pl *Planner) now() time.Time {
	if !pl.Now.IsZero() {
		return pl.Now
	}
	return time.Now().UTC()
}

// Plan expands every enabled entry in cat into DownloadJobs.
func (pl *Planner) Plan(cat *catalog.Catalog) ([]domain.DownloadJob, error) {
	var jobs []domain.DownloadJob
	for id, entry := range cat.Entries {
		if entry.Disabled() {
			pl.logger().WithField("instrument", id).Debug("instrument disabled by empty cycle")
			continue
		}

		entryJobs, err := pl.planInstrument(entry)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, entryJobs...)
	}
	return jobs, nil
}

func (pl *Planner) planInstrument(entry catalog.InstrumentConfig) ([]domain.DownloadJob, error) {
	loc, err := entry.Location()
	if err != nil {
		return nil, err
	}

	globalStart := time.Date(pl.StartYear, 1, 1, 0, 0, 0, 0, loc)
	globalEnd := pl.now()
	if pl.EndYear != 0 {
		candidateEnd := time.Date(pl.EndYear, 1, 1, 0, 0, 0, 0, loc)
		if candidateEnd.Before(globalEnd) {
			globalEnd = candidateEnd
		}
	}

	instStart, err := entry.ParsedStartDate(loc)
	if err != nil {
		return nil, err
	}
	start := globalStart
	if instStart.After(start) {
		start = instStart
	}
	end := globalEnd
	if start.After(end) {
		return nil, nil
	}

	periods, err := pl.resolvePeriods(entry)
	if err != nil {
		return nil, err
	}

	switch entry.AssetClass {
	case "future":
		return pl.planFuture(entry, loc, start, end, periods)
	default:
		return pl.planUndated(entry, loc, start, end, periods)
	}
}

func (pl *Planner) resolvePeriods(entry catalog.InstrumentConfig) ([]domain.Period, error) {
	periods, err := entry.ResolvePeriods()
	if err != nil {
		return nil, err
	}
	if len(periods) == 0 {
		periods = pl.Provider.SupportedPeriods()
	}

	supported := make(map[domain.Period]struct{})
	for _, p := range pl.Provider.SupportedPeriods() {
		supported[p] = struct{}{}
	}

	filtered := make([]domain.Period, 0, len(periods))
	for _, p := range periods {
		if _, ok := supported[p]; ok {
			filtered = append(filtered, p)
		} else {
			pl.logger().WithFields(logrus.Fields{"instrument": entry.ID, "period": p}).
				Debug("dropping period unsupported by provider")
		}
	}
	return filtered, nil
}

func (pl *Planner) planUndated(entry catalog.InstrumentConfig, loc *time.Location, start, end time.Time, periods []domain.Period) ([]domain.DownloadJob, error) {
	inst, err := entry.ToInstrument()
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "plan_instrument", err, "instrument %s", entry.ID)
	}

	tickDate, err := entry.ParsedTickDate(loc)
	if err != nil {
		return nil, err
	}

	var jobs []domain.DownloadJob
	for _, p := range periods {
		minStart := pl.Provider.MinStart(inst, p)
		if !minStart.IsZero() && minStart.After(end) {
			continue
		}

		effStart := start
		if minStart.After(effStart) {
			effStart = minStart
		}
		if p.IsIntraday() && !tickDate.IsZero() && tickDate.After(effStart) {
			effStart = tickDate
		}
		if effStart.After(end) {
			continue
		}

		jobs = append(jobs, pl.chunk(inst, p, effStart, end)...)
	}
	return jobs, nil
}

// chunk splits [start,end] into sub-ranges no longer than the provider's
// MaxWindow(p); a zero MaxWindow means unbounded, yielding one range.
func (pl *Planner) chunk(inst domain.Instrument, p domain.Period, start, end time.Time) []domain.DownloadJob {
	maxWindow := pl.Provider.MaxWindow(p)
	if maxWindow <= 0 {
		return []domain.DownloadJob{{Provider: pl.ProviderName, Instrument: inst, Period: p, Start: start, End: end}}
	}

	var jobs []domain.DownloadJob
	for cur := start; !cur.After(end); {
		chunkEnd := cur.Add(maxWindow)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		jobs = append(jobs, domain.DownloadJob{Provider: pl.ProviderName, Instrument: inst, Period: p, Start: cur, End: chunkEnd})
		if !chunkEnd.Before(end) {
			break
		}
		if !chunkEnd.After(cur) {
			break
		}
		cur = chunkEnd
	}
	return jobs
}

func (pl *Planner) planFuture(entry catalog.InstrumentConfig, loc *time.Location, start, end time.Time, periods []domain.Period) ([]domain.DownloadJob, error) {
	cycle, err := entry.MonthCodes()
	if err != nil {
		return nil, err
	}
	tickDate, err := entry.ParsedTickDate(loc)
	if err != nil {
		return nil, err
	}

	lowData := pl.LowDataThreshold
	if lowData <= 0 {
		lowData = LowDataThreshold
	}

	var jobs []domain.DownloadJob
	iterEnd := end.AddDate(0, 0, entry.DaysCount)
	for y := start.Year(); time.Date(y, 1, 1, 0, 0, 0, 0, loc).Before(iterEnd) || time.Date(y, 1, 1, 0, 0, 0, 0, loc).Equal(iterEnd); y++ {
		for month := time.January; month <= time.December; month++ {
			code := monthToCode(month)
			if _, ok := cycle[code]; !ok {
				continue
			}

			fut := domain.Future{InstID: entry.ID, Root: entry.Code, Year: y, MonthCode: code, TickDate: tickDate, DaysCount: entry.DaysCount}
			cs, ce := fut.ContractWindow(loc)
			if cs.IsZero() {
				continue
			}
			if cs.After(iterEnd) {
				continue
			}

			winStart, winEnd := intersect(cs, ce, start, end)
			if winStart.After(winEnd) || winEnd.Sub(winStart) < lowData {
				pl.logger().WithFields(logrus.Fields{"instrument": entry.ID, "year": y, "month": string(code)}).
					Debug("skipping contract, intersection below low-data threshold")
				continue
			}

			for _, p := range periods {
				if p.IsIntraday() && !tickDate.IsZero() && cs.Before(tickDate) {
					continue
				}
				minStart := pl.Provider.MinStart(fut, p)
				if !minStart.IsZero() && minStart.After(cs) {
					continue
				}
				jobs = append(jobs, domain.DownloadJob{
					Provider: pl.ProviderName, Instrument: fut, Period: p, Start: winStart, End: winEnd,
				})
			}
		}
	}
	return jobs, nil
}

func intersect(aStart, aEnd, bStart, bEnd time.Time) (time.Time, time.Time) {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	return start, end
}

func monthToCode(m time.Month) domain.MonthCode {
	codes := []domain.MonthCode{
		domain.MonthF, domain.MonthG, domain.MonthH, domain.MonthJ, domain.MonthK, domain.MonthM,
		domain.MonthN, domain.MonthQ, domain.MonthU, domain.MonthV, domain.MonthX, domain.MonthZ,
	}
	return codes[m-1]
}
