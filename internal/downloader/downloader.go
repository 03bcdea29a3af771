// Package downloader executes a single domain.DownloadJob end to end: load
// existing coverage, decide whether a fetch is even needed, fetch through
// retry+breaker, validate, merge, and persist. This is the incremental
// merge core of spec.md §4.9, with a simpler backfill variant (§4.10) that
// skips the coverage check and the merge step entirely.
package downloader

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
	"github.com/makutaku/vortex-go/internal/merge"
	"github.com/makutaku/vortex-go/internal/planner"
	"github.com/makutaku/vortex-go/internal/provider"
	"github.com/makutaku/vortex-go/internal/retry"
	"github.com/makutaku/vortex-go/internal/storage"
	"github.com/makutaku/vortex-go/internal/validate"
)

// ExpirationThreshold is how stale the gap between an existing series' end
// and its last real bar must be before the downloader assumes the
// instrument is dormant/expired and stops re-fetching it, per spec.md §4.9
// step 2.
const ExpirationThreshold = 7 * 24 * time.Hour

// LowDataThreshold mirrors planner.LowDataThreshold: how far back of the
// last known bar the narrowed request window reaches, to guarantee overlap
// with existing data for the merge step to dedupe against.
const LowDataThreshold = planner.LowDataThreshold

// Downloader runs jobs against one provider+storage pair.
type Downloader struct {
	Retry          *retry.Client
	Primary        storage.Storage
	Backup         storage.Storage
	DryRun         bool
	ForceBackup    bool
	RandomSleepMax int
	Logger         *logrus.Entry
}

func (d *Downloader) logger() *logrus.Entry {
	if d.Logger != nil {
		return d.Logger
	}
	return logrus.NewEntry(logrus.New())
}

// Run executes job as an updating download: it loads existing coverage,
// skips the fetch when existing already covers the request, narrows the
// request window otherwise, fetches, validates, merges, and persists.
func (d *Downloader) Run(ctx context.Context, job domain.DownloadJob) (domain.Outcome, error) {
	if err := job.Validate(); err != nil {
		return "", errs.Wrap(errs.KindValidation, "run_job", err, "invalid job")
	}

	log := d.logger().WithFields(logrus.Fields{
		"instrument": job.Instrument.ID(), "period": job.Period,
	})

	existing, existingErr := d.loadExisting(job)
	if existingErr != nil {
		return "", existingErr
	}

	reqStart, reqEnd := job.Start, job.End
	if !existing.IsEmpty() {
		if d.sufficient(existing, reqStart, reqEnd, job.Period) {
			if d.ForceBackup && d.Backup != nil {
				if err := d.Backup.Persist(existing, job.Instrument, job.Period); err != nil {
					return "", err
				}
			}
			return domain.OutcomeExists, nil
		}
		reqStart, reqEnd = d.narrow(existing, reqStart, reqEnd, job.Period)
	}

	if err := d.sleep(ctx); err != nil {
		return "", err
	}

	fresh, err := d.Retry.FetchBarsWithRetry(ctx, providerRequest(job, reqStart, reqEnd))
	if err != nil {
		if errs.KindOf(err) == errs.KindDataNotFound {
			log.Debug("provider reported no data for narrowed window")
			return domain.OutcomeNotFound, nil
		}
		return "", err
	}
	if fresh.IsEmpty() {
		return domain.OutcomeNone, nil
	}

	fresh, err = validate.Series(log, job.Instrument.ID(), fresh)
	if err != nil {
		if errs.KindOf(err) == errs.KindDataNotFound {
			return domain.OutcomeNone, nil
		}
		return "", err
	}

	merged := merge.Series(existing, fresh)
	if err := d.persist(merged, job); err != nil {
		return "", err
	}
	return domain.OutcomeOK, nil
}

// Backfill fetches job's full window unconditionally and persists without
// merging against any existing series, per spec.md §4.10.
func (d *Downloader) Backfill(ctx context.Context, job domain.DownloadJob) (domain.Outcome, error) {
	if err := job.Validate(); err != nil {
		return "", errs.Wrap(errs.KindValidation, "run_backfill", err, "invalid job")
	}

	log := d.logger().WithFields(logrus.Fields{"instrument": job.Instrument.ID(), "period": job.Period})

	fresh, err := d.Retry.FetchBarsWithRetry(ctx, providerRequest(job, job.Start, job.End))
	if err != nil {
		if errs.KindOf(err) == errs.KindDataNotFound {
			return domain.OutcomeNotFound, nil
		}
		return "", err
	}
	if fresh.IsEmpty() {
		return domain.OutcomeNone, nil
	}

	fresh, err = validate.Series(log, job.Instrument.ID(), fresh)
	if err != nil {
		if errs.KindOf(err) == errs.KindDataNotFound {
			return domain.OutcomeNone, nil
		}
		return "", err
	}

	if err := d.persist(fresh, job); err != nil {
		return "", err
	}
	return domain.OutcomeOK, nil
}

func (d *Downloader) loadExisting(job domain.DownloadJob) (domain.PriceSeries, error) {
	series, err := d.Primary.Load(job.Instrument, job.Period)
	if err == nil {
		return series, nil
	}
	if err == storage.ErrNotFound {
		return domain.PriceSeries{}, nil
	}
	if d.Backup == nil {
		return domain.PriceSeries{}, err
	}
	series, err = d.Backup.Load(job.Instrument, job.Period)
	if err == nil {
		return series, nil
	}
	if err == storage.ErrNotFound {
		return domain.PriceSeries{}, nil
	}
	return domain.PriceSeries{}, err
}

// sufficient implements spec.md §4.9 step 2's two coverage tests.
func (d *Downloader) sufficient(existing domain.PriceSeries, reqStart, reqEnd time.Time, period domain.Period) bool {
	md := existing.Metadata
	if md.RequestedEnd.Sub(md.LastRowTs) > ExpirationThreshold {
		return true
	}
	tolerance := period.BarDuration()
	lowerOK := !md.RequestedStart.Add(-tolerance).After(reqStart)
	upperOK := !reqEnd.After(md.RequestedEnd.Add(tolerance))
	return lowerOK && upperOK
}

// narrow implements spec.md §4.9 step 3.
func (d *Downloader) narrow(existing domain.PriceSeries, reqStart, reqEnd time.Time, _ domain.Period) (time.Time, time.Time) {
	md := existing.Metadata
	if !reqStart.Before(md.RequestedStart) {
		reqStart = md.LastRowTs.Add(-LowDataThreshold)
	}
	if reqEnd.Before(md.RequestedStart) {
		reqEnd = md.RequestedStart
	}
	return reqStart, reqEnd
}

func (d *Downloader) sleep(ctx context.Context) error {
	if d.RandomSleepMax <= 0 {
		return nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(d.RandomSleepMax)))
	if err != nil {
		return nil
	}
	dur := time.Duration(n.Int64()+1) * time.Second
	select {
	case <-time.After(dur):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func providerRequest(job domain.DownloadJob, start, end time.Time) provider.FetchRequest {
	return provider.FetchRequest{Instrument: job.Instrument, Period: job.Period, Start: start, End: end}
}

func (d *Downloader) persist(series domain.PriceSeries, job domain.DownloadJob) error {
	if d.DryRun {
		return nil
	}
	if err := d.Primary.Persist(series, job.Instrument, job.Period); err != nil {
		return err
	}
	if d.Backup != nil {
		if err := d.Backup.Persist(series, job.Instrument, job.Period); err != nil {
			return err
		}
	}
	return nil
}
