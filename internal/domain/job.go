package domain

import (
	"fmt"
	"time"
)

// DownloadJob is one bounded fetch request produced by the planner. It is
// immutable once planned; it owns no mutable state of its own.
type DownloadJob struct {
	Provider   string
	Instrument Instrument
	Period     Period
	Start      time.Time
	End        time.Time
	// Backup, when non-empty, names a secondary storage backend for the
	// job. The planner leaves it empty and the downloader does not read it;
	// backup persistence goes through downloader.Downloader.Backup.
	Backup string
}

// Validate checks the job's own invariant (Start <= End). Provider
// capability constraints are enforced by the planner before a job is ever
// constructed; this is a last defensive check.
func (j DownloadJob) Validate() error {
	if j.Start.After(j.End) {
		return fmt.Errorf("invalid job for %s/%s: start %s after end %s",
			j.Instrument.ID(), j.Period, j.Start, j.End)
	}
	return nil
}

// Outcome classifies how a scheduler drive step resolved a single job.
type Outcome string

// Job outcomes, per spec.md §4.8/§4.9.
const (
	OutcomeOK       Outcome = "ok"
	OutcomeExists   Outcome = "exists"
	OutcomeNone     Outcome = "none"
	OutcomeNotFound Outcome = "not_found"
	OutcomeLowData  Outcome = "low_data"
)
