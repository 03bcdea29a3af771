// Package merge implements the incremental merge core of spec.md §4.9 step
// 6: combining an existing persisted series with a freshly fetched one,
// deduplicating by timestamp with the new fetch winning on conflict.
package merge

import (
	"sort"

	"github.com/makutaku/vortex-go/internal/domain"
)

// Series combines existing and fresh into one sorted, deduplicated series.
// The single most load-bearing invariant: when both carry a bar at the same
// timestamp, fresh's bar wins. Implemented as a stable sort by timestamp
// followed by a reverse-scan dedup, never relying on map iteration order.
func Series(existing, fresh domain.PriceSeries) domain.PriceSeries {
	if existing.IsEmpty() {
		return fresh
	}
	if fresh.IsEmpty() {
		return existing
	}

	if disjoint(existing, fresh) {
		return fresh
	}

	combined := make([]domain.Bar, 0, len(existing.Bars)+len(fresh.Bars))
	combined = append(combined, existing.Bars...)
	combined = append(combined, fresh.Bars...)

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Timestamp.Before(combined[j].Timestamp)
	})

	deduped := dedupLastWins(combined)

	md := fresh.Metadata
	md.Symbol = existing.Metadata.Symbol
	md.Period = existing.Metadata.Period
	md.Provider = fresh.Metadata.Provider
	if existing.Metadata.RequestedStart.Before(fresh.Metadata.RequestedStart) {
		md.RequestedStart = existing.Metadata.RequestedStart
	}
	if existing.Metadata.RequestedEnd.After(fresh.Metadata.RequestedEnd) {
		md.RequestedEnd = existing.Metadata.RequestedEnd
	}
	if len(deduped) > 0 {
		md.FirstRowTs = deduped[0].Timestamp
		md.LastRowTs = deduped[len(deduped)-1].Timestamp
	}
	md.ExpirationTs = fresh.Metadata.ExpirationTs

	return domain.PriceSeries{Bars: deduped, Metadata: md}
}

// disjoint reports whether fresh's requested window falls entirely outside
// existing's requested window, allowing one bar duration of slack so a
// window that starts right after existing's end counts as adjacent, per
// spec.md §4.9: the downloader treats a disjoint fresh result as replacing
// existing outright rather than splicing in a sparse island.
func disjoint(existing, fresh domain.PriceSeries) bool {
	if len(existing.Bars) == 0 || len(fresh.Bars) == 0 {
		return false
	}
	ex, fr := existing.Metadata, fresh.Metadata
	tolerance := ex.Period.BarDuration()
	return fr.RequestedEnd.Add(tolerance).Before(ex.RequestedStart) ||
		fr.RequestedStart.After(ex.RequestedEnd.Add(tolerance))
}

// dedupLastWins scans combined (already sorted ascending by timestamp,
// stable so later-appended duplicates retain their relative order) from
// the end, keeping only the last bar seen at each timestamp.
func dedupLastWins(combined []domain.Bar) []domain.Bar {
	seen := make(map[int64]struct{}, len(combined))
	out := make([]domain.Bar, 0, len(combined))
	for i := len(combined) - 1; i >= 0; i-- {
		key := combined[i].Timestamp.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, combined[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
