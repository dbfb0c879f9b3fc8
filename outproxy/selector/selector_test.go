package selector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"i2prelay/outproxy/model"
)

type fakeProber struct {
	results []model.Result
	calls   int
	lastMax int
}

func (f *fakeProber) ProbeAll(ctx context.Context, records []model.Record, maxConcurrent int) []model.Result {
	f.calls++
	f.lastMax = maxConcurrent
	return f.results
}

func rec(host string) model.Record {
	return model.Record{Host: host, Port: 443, Kind: model.KindEncrypted}
}

func TestSelectBestPicksMaxThroughput(t *testing.T) {
	s := New(&fakeProber{}, 300*time.Second)

	results := []model.Result{
		model.Succeeded(rec("proxy1.i2p"), 1000, 100),
		model.Succeeded(rec("proxy2.i2p"), 5000, 50),
		model.Succeeded(rec("proxy3.i2p"), 2000, 150),
	}

	best := s.SelectBest(results)
	require.NotNil(t, best)
	require.Equal(t, "proxy2.i2p", best.Record.Host)
	require.Equal(t, 5000.0, best.BytesPerSec)

	cached := s.Cached()
	require.NotNil(t, cached)
	require.Equal(t, "proxy2.i2p", cached.Record.Host)
}

func TestSelectBestNoSuccesses(t *testing.T) {
	s := New(&fakeProber{}, 300*time.Second)

	results := []model.Result{
		model.Failed(rec("proxy1.i2p"), "connection failed"),
	}

	require.Nil(t, s.SelectBest(results))
	require.Nil(t, s.Cached())
}

func TestSelectBestEmptyResults(t *testing.T) {
	s := New(&fakeProber{}, 300*time.Second)
	require.Nil(t, s.SelectBest(nil))
}

func TestSelectTopNSortsDescending(t *testing.T) {
	s := New(&fakeProber{}, 300*time.Second)

	results := []model.Result{
		model.Succeeded(rec("proxy1.i2p"), 1000, 100),
		model.Succeeded(rec("proxy2.i2p"), 5000, 50),
		model.Succeeded(rec("proxy3.i2p"), 2000, 150),
		model.Succeeded(rec("proxy4.i2p"), 3000, 120),
	}

	top := s.SelectTopN(results, 3)
	require.Len(t, top, 3)
	require.Equal(t, 5000.0, top[0].BytesPerSec)
	require.Equal(t, 3000.0, top[1].BytesPerSec)
	require.Equal(t, 2000.0, top[2].BytesPerSec)
}

func TestSelectTopNMoreThanAvailable(t *testing.T) {
	s := New(&fakeProber{}, 300*time.Second)

	results := []model.Result{
		model.Succeeded(rec("proxy1.i2p"), 1000, 100),
		model.Succeeded(rec("proxy2.i2p"), 2000, 100),
		model.Failed(rec("proxy3.i2p"), "nope"),
	}

	top := s.SelectTopN(results, 10)
	require.Len(t, top, 2)
}

func TestSelectTopNStableOnTies(t *testing.T) {
	s := New(&fakeProber{}, 300*time.Second)

	results := []model.Result{
		model.Succeeded(rec("proxy1.i2p"), 1000, 100),
		model.Succeeded(rec("proxy2.i2p"), 1000, 100),
	}

	top := s.SelectTopN(results, 2)
	require.Equal(t, "proxy1.i2p", top[0].Record.Host)
	require.Equal(t, "proxy2.i2p", top[1].Record.Host)
}

func TestReportFailureClearsOnlyMatchingCache(t *testing.T) {
	s := New(&fakeProber{}, 300*time.Second)

	s.SelectBest([]model.Result{model.Succeeded(rec("proxy1.i2p"), 1000, 100)})
	require.NotNil(t, s.Cached())

	// Failure of an unrelated candidate leaves the cache alone.
	s.ReportFailure(rec("proxy2.i2p"))
	require.NotNil(t, s.Cached())

	// Failure of the cached candidate evicts it.
	s.ReportFailure(rec("proxy1.i2p"))
	require.Nil(t, s.Cached())

	// Reporting an already-evicted candidate is a no-op.
	s.ReportFailure(rec("proxy1.i2p"))
	require.Nil(t, s.Cached())
}

func TestEnsureFreshUsesCacheInsideInterval(t *testing.T) {
	prober := &fakeProber{results: []model.Result{
		model.Succeeded(rec("proxy1.i2p"), 1000, 100),
	}}
	s := New(prober, time.Hour)

	// No cache yet: the first call benchmarks.
	best := s.EnsureFresh(context.Background(), []model.Record{rec("proxy1.i2p")})
	require.NotNil(t, best)
	require.Equal(t, 1, prober.calls)

	// Second call inside the interval returns the cache without probing.
	best = s.EnsureFresh(context.Background(), []model.Record{rec("proxy1.i2p")})
	require.NotNil(t, best)
	require.Equal(t, 1, prober.calls)
}

func TestEnsureFreshRetestsAfterInterval(t *testing.T) {
	prober := &fakeProber{results: []model.Result{
		model.Succeeded(rec("proxy1.i2p"), 1000, 100),
	}}
	s := New(prober, time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	best := s.EnsureFresh(context.Background(), []model.Record{rec("proxy1.i2p")})
	require.NotNil(t, best)
	require.Equal(t, 1, prober.calls)

	time.Sleep(5 * time.Millisecond)
	s.EnsureFresh(context.Background(), []model.Record{rec("proxy1.i2p")})
	require.Equal(t, 2, prober.calls)
}

func TestEnsureFreshNBenchmarksForMultipleCandidates(t *testing.T) {
	prober := &fakeProber{results: []model.Result{
		model.Succeeded(rec("proxy1.i2p"), 1000, 100),
		model.Succeeded(rec("proxy2.i2p"), 3000, 100),
	}}
	s := New(prober, time.Hour)

	candidates := s.EnsureFreshN(context.Background(), []model.Record{rec("proxy1.i2p"), rec("proxy2.i2p")}, 2)
	require.Len(t, candidates, 2)
	require.Equal(t, "proxy2.i2p", candidates[0].Record.Host)

	// Even with a warm cache, asking for several candidates re-benchmarks.
	candidates = s.EnsureFreshN(context.Background(), []model.Record{rec("proxy1.i2p"), rec("proxy2.i2p")}, 2)
	require.Len(t, candidates, 2)
	require.Equal(t, 2, prober.calls)
}

func TestEnsureFreshEmptyRecords(t *testing.T) {
	prober := &fakeProber{}
	s := New(prober, time.Hour)

	require.Nil(t, s.EnsureFresh(context.Background(), nil))
	require.Empty(t, s.EnsureFreshN(context.Background(), nil, 5))
}

func TestProbeConcurrencyBound(t *testing.T) {
	prober := &fakeProber{}
	s := New(prober, time.Hour)

	records := make([]model.Record, 25)
	for i := range records {
		records[i] = rec("proxy.i2p")
	}
	s.EnsureFreshN(context.Background(), records, 3)
	require.Equal(t, 10, prober.lastMax)

	s.EnsureFreshN(context.Background(), nil, 3)
	require.Equal(t, 1, prober.lastMax)
}
