// Package scheduler drives a planned list of DownloadJobs against a
// JobRunner, grouping by instrument into per-instrument queues and
// round-robining across them so one symbol never monopolizes a provider's
// quota, per spec.md §4.8.
package scheduler

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
)

// JobRunner executes a single job and reports its outcome. downloader.Downloader
// satisfies this via its Run or Backfill method.
type JobRunner interface {
	Run(ctx context.Context, job domain.DownloadJob) (domain.Outcome, error)
}

// RunnerFunc adapts a function to JobRunner, letting callers pass
// downloader.Backfill without a wrapper type.
type RunnerFunc func(ctx context.Context, job domain.DownloadJob) (domain.Outcome, error)

// Run implements JobRunner.
func (f RunnerFunc) Run(ctx context.Context, job domain.DownloadJob) (domain.Outcome, error) {
	return f(ctx, job)
}

// Result records one job's resolution, tagged with a per-job correlation
// id for log correlation across providers and retries.
type Result struct {
	RunID   string
	Job     domain.DownloadJob
	Outcome domain.Outcome
	Err     error
}

// Report summarizes a full drive.
type Report struct {
	Planned  int
	Results  []Result
	Stopped  bool      // true if drive halted early, on AllowanceExceeded or cancellation
	StopKind errs.Kind // KindAllowanceExceeded when that stopped the drive; unset on cancellation
}

// Scheduler drives jobs grouped by instrument, round-robin, against one
// runner per provider name.
type Scheduler struct {
	// Runners maps a provider name to the JobRunner that executes its jobs.
	// A single-provider run populates one entry.
	Runners map[string]JobRunner
	// ParallelProviders enables one concurrent in-flight job per distinct
	// provider name via an errgroup-backed semaphore. Off by default: the
	// scheduler drives one job at a time across the whole run.
	ParallelProviders bool
	Logger            *logrus.Entry
}

func (s *Scheduler) logger() *logrus.Entry {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.NewEntry(logrus.New())
}

// instrumentQueue holds one instrument's pending jobs in planned order.
type instrumentQueue struct {
	id   string
	jobs []domain.DownloadJob
}

// Drive groups jobs by instrument id, then round-robins across the
// resulting queues, draining visitSize(queue) jobs per visit, until every
// queue is empty or the run is cancelled or stopped on AllowanceExceeded.
func (s *Scheduler) Drive(ctx context.Context, jobs []domain.DownloadJob) Report {
	queues := groupByInstrument(jobs)
	report := Report{Planned: len(jobs)}

	if s.ParallelProviders {
		return s.driveParallel(ctx, queues, report)
	}
	return s.driveSerial(ctx, queues, report)
}

func (s *Scheduler) driveSerial(ctx context.Context, queues []*instrumentQueue, report Report) Report {
	for len(queues) > 0 {
		var next []*instrumentQueue
		for _, q := range queues {
			if ctx.Err() != nil {
				report.Stopped = true
				return report
			}
			n := visitSize(q)
			if n > len(q.jobs) {
				n = len(q.jobs)
			}
			for i := 0; i < n; i++ {
				res := s.runOne(ctx, q.jobs[i])
				report.Results = append(report.Results, res)
				if res.Err != nil && errs.KindOf(res.Err) == errs.KindAllowanceExceeded {
					report.Stopped = true
					report.StopKind = errs.KindAllowanceExceeded
					return report
				}
			}
			if rest := q.jobs[n:]; len(rest) > 0 {
				next = append(next, &instrumentQueue{id: q.id, jobs: rest})
			}
		}
		queues = next
	}
	return report
}

// driveParallel runs each instrument queue to completion independently,
// bounding in-flight jobs to one per distinct provider name via an
// errgroup-backed semaphore, per spec.md §5's provider-keyed parallelism
// requirement.
func (s *Scheduler) driveParallel(ctx context.Context, queues []*instrumentQueue, report Report) Report {
	sems := make(map[string]chan struct{})
	for name := range s.Runners {
		sems[name] = make(chan struct{}, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan Result, len(report.Results)+1)
	stopCh := make(chan errs.Kind, 1)

	for _, q := range queues {
		q := q
		g.Go(func() error {
			for _, job := range q.jobs {
				if len(stopCh) > 0 {
					return nil
				}
				select {
				case <-gctx.Done():
					return nil
				default:
				}
				sem := sems[job.Provider]
				if sem != nil {
					sem <- struct{}{}
				}
				res := s.runOne(gctx, job)
				if sem != nil {
					<-sem
				}
				results <- res
				if res.Err != nil && errs.KindOf(res.Err) == errs.KindAllowanceExceeded {
					select {
					case stopCh <- errs.KindAllowanceExceeded:
					default:
					}
					return nil
				}
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()

	for res := range results {
		report.Results = append(report.Results, res)
	}
	select {
	case kind := <-stopCh:
		report.Stopped = true
		report.StopKind = kind
	default:
	}
	return report
}

func (s *Scheduler) runOne(ctx context.Context, job domain.DownloadJob) Result {
	runner := s.Runners[job.Provider]
	runID := uuid.NewString()
	log := s.logger().WithFields(logrus.Fields{
		"run_id": runID, "instrument": job.Instrument.ID(), "period": job.Period, "provider": job.Provider,
	})

	if runner == nil {
		err := errs.New(errs.KindConfig, "drive_job", "no runner registered for provider %s", job.Provider)
		log.WithError(err).Error("job failed")
		return Result{RunID: runID, Job: job, Err: err}
	}

	outcome, err := runner.Run(ctx, job)
	if err != nil {
		kind := errs.KindOf(err)
		switch kind {
		case errs.KindDataNotFound:
			log.WithError(err).Info("no data for job")
			return Result{RunID: runID, Job: job, Outcome: domain.OutcomeNotFound}
		case errs.KindLowData:
			log.WithError(err).Info("low data for job")
			return Result{RunID: runID, Job: job, Outcome: domain.OutcomeLowData}
		case errs.KindAllowanceExceeded:
			log.WithError(err).Warn("allowance exceeded, stopping run")
			return Result{RunID: runID, Job: job, Err: err}
		default:
			log.WithError(err).Error("job failed")
			return Result{RunID: runID, Job: job, Err: err}
		}
	}
	log.WithField("outcome", outcome).Debug("job complete")
	return Result{RunID: runID, Job: job, Outcome: outcome}
}

func groupByInstrument(jobs []domain.DownloadJob) []*instrumentQueue {
	byID := make(map[string]*instrumentQueue)
	var order []string
	for _, j := range jobs {
		id := j.Instrument.ID()
		q, ok := byID[id]
		if !ok {
			q = &instrumentQueue{id: id}
			byID[id] = q
			order = append(order, id)
		}
		q.jobs = append(q.jobs, j)
	}
	sort.Strings(order)
	queues := make([]*instrumentQueue, 0, len(order))
	for _, id := range order {
		queues = append(queues, byID[id])
	}
	return queues
}

// visitSize returns how many jobs to drain from an instrument's queue per
// round-robin visit. Futures get a batch sized off the number of distinct
// delivery months still queued (a proxy for the catalog's cycle length),
// bounded to [1,3]; everything else gets 1, per spec.md §4.8.
func visitSize(q *instrumentQueue) int {
	months := make(map[domain.MonthCode]struct{})
	for _, j := range q.jobs {
		fut, ok := j.Instrument.(domain.Future)
		if !ok {
			return 1
		}
		months[fut.MonthCode] = struct{}{}
	}
	switch {
	case len(months) >= 6:
		return 3
	case len(months) >= 3:
		return 2
	default:
		return 1
	}
}
