// Package bench probes outproxy candidates for latency and throughput
// against a fixed reference payload.
package bench

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"i2prelay/internal/shared/logger"
	"i2prelay/internal/shared/types"
	"i2prelay/outproxy/model"
	"i2prelay/outproxy/transport"
)

// Prober measures a candidate's latency (timed HEAD) and throughput
// (timed GET of a fixed-size payload).
type Prober struct {
	testURL string
	timeout time.Duration

	// Placeholder values reported for overlay-only proxies that cannot be
	// dialed from outside the overlay. Configurable because their calibration
	// affects ranking fairness against directly-probed proxies.
	i2pSpeed   float64
	i2pLatency float64
}

// New creates a Prober from the outproxy configuration.
func New(cfg types.OutproxyConf) *Prober {
	return &Prober{
		testURL:    cfg.TestURL,
		timeout:    time.Duration(cfg.ProbeTimeoutSeconds) * time.Second,
		i2pSpeed:   cfg.I2PDefaultSpeed,
		i2pLatency: cfg.I2PDefaultLatency,
	}
}

// Probe measures a single candidate and returns its result. Failures are
// always folded into the result, never returned as an error.
func (p *Prober) Probe(ctx context.Context, rec model.Record) model.Result {
	l := logger.WithComponent("Outproxy/Bench")

	// Overlay-hosted proxies only resolve through the i2pd router, so they
	// are never dialed; report the neutral baseline so they stay eligible.
	if rec.IsI2P() {
		l.Debug().Str("proxy", rec.URL()).Msg("Overlay-only proxy, reporting baseline without dialing.")
		return model.Succeeded(rec, p.i2pSpeed, p.i2pLatency)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var lastErr error
	for _, attempt := range transport.Attempts(rec, p.timeout) {
		result, err := p.measure(ctx, attempt.Client, rec)
		if err == nil {
			return result
		}
		lastErr = err
		l.Debug().Err(err).Str("proxy", rec.URL()).Str("scheme", attempt.Scheme).Msg("Probe attempt failed.")
	}

	return model.Failed(rec, lastErr.Error())
}

func (p *Prober) measure(ctx context.Context, client *http.Client, rec model.Record) (model.Result, error) {
	// Latency: lightweight HEAD. A failure here is not fatal on its own; the
	// GET below decides whether the proxy works at all.
	latencyStart := time.Now()
	if req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.testURL, nil); err == nil {
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
		}
	}
	latencyMS := float64(time.Since(latencyStart).Microseconds()) / 1000.0

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.testURL, nil)
	if err != nil {
		return model.Result{}, fmt.Errorf("build probe request: %w", err)
	}

	downloadStart := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return model.Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Result{}, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Result{}, fmt.Errorf("failed to read body: %w", err)
	}

	elapsed := time.Since(downloadStart).Seconds()
	if elapsed <= 0 {
		return model.Result{}, fmt.Errorf("download time was zero")
	}

	return model.Succeeded(rec, float64(len(body))/elapsed, latencyMS), nil
}

// ProbeAll probes every record under a bounded concurrency limit. Results
// come back one per input record, in no particular order.
func (p *Prober) ProbeAll(ctx context.Context, records []model.Record, maxConcurrent int) []model.Result {
	l := logger.WithComponent("Outproxy/Bench")
	if len(records) == 0 {
		return []model.Result{}
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	l.Info().Int("count", len(records)).Int("concurrency", maxConcurrent).Msg("Starting probe batch...")

	var wg sync.WaitGroup
	resultsChan := make(chan model.Result, len(records))
	semaphore := make(chan struct{}, maxConcurrent)

	for _, rec := range records {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(rec model.Record) {
			defer wg.Done()
			defer func() { <-semaphore }()

			resultsChan <- p.Probe(ctx, rec)
		}(rec)
	}

	wg.Wait()
	close(resultsChan)

	results := make([]model.Result, 0, len(records))
	speeds := make([]float64, 0, len(records))
	for r := range resultsChan {
		results = append(results, r)
		if r.Success {
			speeds = append(speeds, r.BytesPerSec)
		}
	}

	summary := l.Info().Int("successful", len(speeds)).Int("failed", len(results)-len(speeds))
	if len(speeds) > 0 {
		mean, _ := stats.Mean(speeds)
		median, _ := stats.Median(speeds)
		summary = summary.
			Float64("mean_kbps", mean/1024).
			Float64("median_kbps", median/1024)
	}
	summary.Msg("Probe batch finished.")

	return results
}
