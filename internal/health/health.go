// Package health assembles an in-process snapshot of circuit-breaker
// state, quota usage, and per-run job counters for the CLI to dump at the
// end of a run, per spec.md §1's explicit exclusion of a Prometheus
// endpoint: this stays a plain JSON-serializable struct.
package health

import (
	"sync"

	"github.com/sony/gobreaker"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/provider"
)

// BreakerStats is one provider's circuit-breaker snapshot.
type BreakerStats struct {
	Provider     string  `json:"provider"`
	State        string  `json:"state"`
	TotalCalls   uint32  `json:"totalCalls"`
	FailureRatio float64 `json:"failureRatio"`
	OpenedCount  uint32  `json:"openedCount"`
}

// QuotaStats is one provider's download-allowance snapshot, populated for
// providers that expose a pre-flight allowance check (spec.md §4.3).
type QuotaStats struct {
	Provider  string `json:"provider"`
	Remaining int    `json:"remaining"`
	Checked   bool   `json:"checked"`
}

// RunCounters tallies how the planned jobs resolved.
type RunCounters struct {
	Planned  int `json:"planned"`
	OK       int `json:"ok"`
	Exists   int `json:"exists"`
	None     int `json:"none"`
	NotFound int `json:"notFound"`
	LowData  int `json:"lowData"`
	Failed   int `json:"failed"`
}

// Report is the full health snapshot.
type Report struct {
	Breakers []BreakerStats `json:"breakers"`
	Quotas   []QuotaStats   `json:"quotas"`
	Counters RunCounters    `json:"counters"`
}

// Registry is a process-wide, mutex-guarded table of per-provider circuit
// breakers and quota trackers, injected into the scheduler/CLI rather than
// held as a package-level global, so tests can instantiate isolated
// registries, per spec.md §5's "Global state" note.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*provider.BreakerProvider
	quotas   map[string]QuotaStats
	counters RunCounters
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		breakers: make(map[string]*provider.BreakerProvider),
		quotas:   make(map[string]QuotaStats),
	}
}

// RegisterBreaker associates a provider name with its BreakerProvider so
// the registry can report its live state/counts.
func (r *Registry) RegisterBreaker(name string, bp *provider.BreakerProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers[name] = bp
}

// RecordQuota stores the most recently observed allowance for name.
func (r *Registry) RecordQuota(name string, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotas[name] = QuotaStats{Provider: name, Remaining: remaining, Checked: true}
}

// RecordOutcome tallies one job resolution into the run counters.
func (r *Registry) RecordOutcome(outcome domain.Outcome, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.Planned++
	if failed {
		r.counters.Failed++
		return
	}
	switch outcome {
	case domain.OutcomeOK:
		r.counters.OK++
	case domain.OutcomeExists:
		r.counters.Exists++
	case domain.OutcomeNone:
		r.counters.None++
	case domain.OutcomeNotFound:
		r.counters.NotFound++
	case domain.OutcomeLowData:
		r.counters.LowData++
	}
}

// Snapshot takes a short lock and copies out a point-in-time Report.
func (r *Registry) Snapshot() Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := Report{Counters: r.counters}
	for name, bp := range r.breakers {
		counts := bp.Counts()
		report.Breakers = append(report.Breakers, BreakerStats{
			Provider:     name,
			State:        stateString(bp.State()),
			TotalCalls:   counts.Requests,
			FailureRatio: failureRatio(counts),
			OpenedCount:  bp.OpenedCount(),
		})
	}
	for _, q := range r.quotas {
		report.Quotas = append(report.Quotas, q)
	}
	return report
}

func stateString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func failureRatio(counts gobreaker.Counts) float64 {
	if counts.Requests == 0 {
		return 0
	}
	return float64(counts.TotalFailures) / float64(counts.Requests)
}
