// Package selector ranks benchmark results and caches the current best
// outproxy, re-benchmarking when the cache goes stale.
package selector

import (
	"context"
	"sort"
	"sync"
	"time"

	"i2prelay/internal/shared/logger"
	"i2prelay/outproxy/model"
)

// Prober re-benchmarks candidate records when the cache expires.
type Prober interface {
	ProbeAll(ctx context.Context, records []model.Record, maxConcurrent int) []model.Result
}

// Selector owns the selection cache. It is the only component allowed to
// mutate it; the router and API only read through the accessors.
type Selector struct {
	prober         Prober
	retestInterval time.Duration

	mu         sync.RWMutex
	current    *model.Candidate
	lastRetest time.Time
}

// New creates a selector with the given retest interval.
func New(prober Prober, retestInterval time.Duration) *Selector {
	l := logger.WithComponent("Outproxy/Selector")
	l.Info().
		Str("retest_interval", retestInterval.String()).
		Msg("Selector initialized.")
	return &Selector{
		prober:         prober,
		retestInterval: retestInterval,
		lastRetest:     time.Now(),
	}
}

// SelectBest picks the successful result with maximum throughput, caches it
// and returns it. Returns nil when no result succeeded.
func (s *Selector) SelectBest(results []model.Result) *model.Candidate {
	top := s.SelectTopN(results, 1)
	if len(top) == 0 {
		return nil
	}
	return &top[0]
}

// SelectTopN ranks the successful results by descending throughput and
// returns up to n candidates. The fastest one is cached as the current best.
// The sort is stable, so equal throughputs keep their input order.
func (s *Selector) SelectTopN(results []model.Result, n int) []model.Candidate {
	l := logger.WithComponent("Outproxy/Selector")

	successful := make([]model.Result, 0, len(results))
	for _, r := range results {
		if r.Success {
			successful = append(successful, r)
		}
	}
	if len(successful) == 0 {
		l.Warn().Int("results", len(results)).Msg("No successful probe results to select from.")
		return []model.Candidate{}
	}

	sort.SliceStable(successful, func(i, j int) bool {
		return successful[i].BytesPerSec > successful[j].BytesPerSec
	})
	if len(successful) > n {
		successful = successful[:n]
	}

	now := time.Now()
	selected := make([]model.Candidate, 0, len(successful))
	for _, r := range successful {
		selected = append(selected, model.Candidate{
			Record:      r.Record,
			BytesPerSec: r.BytesPerSec,
			SelectedAt:  now,
		})
	}

	l.Info().
		Int("selected", len(selected)).
		Str("fastest", selected[0].Record.URL()).
		Float64("fastest_kbps", selected[0].BytesPerSec/1024).
		Msg("Selection complete.")

	s.mu.Lock()
	best := selected[0]
	s.current = &best
	s.mu.Unlock()

	return selected
}

// Cached returns a copy of the current best candidate, or nil when the cache
// is empty.
func (s *Selector) Cached() *model.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	c := *s.current
	return &c
}

// EnsureFresh returns the current best candidate, re-benchmarking the given
// records first when the retest interval has elapsed or no cache exists yet.
func (s *Selector) EnsureFresh(ctx context.Context, records []model.Record) *model.Candidate {
	candidates := s.EnsureFreshN(ctx, records, 1)
	if len(candidates) == 0 {
		return nil
	}
	return &candidates[0]
}

// EnsureFreshN is EnsureFresh for up to n ranked candidates.
func (s *Selector) EnsureFreshN(ctx context.Context, records []model.Record, n int) []model.Candidate {
	l := logger.WithComponent("Outproxy/Selector")

	s.mu.Lock()
	stale := time.Since(s.lastRetest) >= s.retestInterval
	if stale {
		s.lastRetest = time.Now()
	}
	s.mu.Unlock()

	if stale {
		l.Info().Msg("Retest interval reached, re-benchmarking candidates.")
		return s.SelectTopN(s.probe(ctx, records), n)
	}

	if cached := s.Cached(); cached != nil && n == 1 {
		l.Debug().Str("proxy", cached.Record.URL()).Msg("Using cached best proxy.")
		return []model.Candidate{*cached}
	}

	// Either nothing is cached yet, or the caller wants more candidates than
	// the cache holds. Benchmark now.
	return s.SelectTopN(s.probe(ctx, records), n)
}

func (s *Selector) probe(ctx context.Context, records []model.Record) []model.Result {
	maxConcurrent := len(records)
	if maxConcurrent > 10 {
		maxConcurrent = 10
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return s.prober.ProbeAll(ctx, records, maxConcurrent)
}

// ReportFailure evicts the cached best candidate, but only when the failing
// record is the cached one; failures of other candidates must not clear an
// unrelated cache entry. Reporting an already-evicted record is a no-op.
func (s *Selector) ReportFailure(rec model.Record) {
	l := logger.WithComponent("Outproxy/Selector")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.Record.Key() == rec.Key() {
		l.Info().Str("proxy", rec.URL()).Msg("Failed proxy is the cached best, clearing selection.")
		s.current = nil
	}
}
