// Package discovery fetches outproxy directory pages through the overlay
// and extracts candidate records from them.
package discovery

import (
	"context"
	"sync"

	"i2prelay/internal/shared/logger"
	"i2prelay/outproxy/model"
	"i2prelay/outproxy/storage"
)

// Source fetches one directory page and extracts candidate records from it.
// A page with no recognizable proxies is an empty result, not an error;
// errors are reserved for fetch and parse infrastructure failures.
type Source interface {
	Fetch(ctx context.Context) ([]model.Record, error)

	// Name returns the source's name, used for logging.
	Name() string
}

// Manager runs the configured sources, merges their results and keeps the
// latest known record list, optionally persisted across restarts.
type Manager struct {
	sources []Source
	store   storage.Store // may be nil

	mu      sync.RWMutex
	records []model.Record
}

// NewManager creates a discovery manager. store may be nil to disable
// persistence.
func NewManager(store storage.Store, sources ...Source) *Manager {
	return &Manager{sources: sources, store: store}
}

// LoadPersisted seeds the record list from storage. Called once at startup,
// before the first Refresh.
func (m *Manager) LoadPersisted() error {
	if m.store == nil {
		return nil
	}
	records, err := m.store.Load()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.records = records
	m.mu.Unlock()
	return nil
}

// Refresh fetches every source in order and merges their records,
// deduplicated by (host, port) with the first occurrence winning. An error is
// returned only when every source failed and nothing was produced.
func (m *Manager) Refresh(ctx context.Context) ([]model.Record, error) {
	l := logger.WithComponent("Outproxy/Discovery")

	merged := make([]model.Record, 0)
	seen := make(map[string]struct{})
	var firstErr error
	okSources := 0

	for _, s := range m.sources {
		records, err := s.Fetch(ctx)
		if err != nil {
			l.Warn().Err(err).Str("source", s.Name()).Msg("Source fetch failed.")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		okSources++
		for _, rec := range records {
			if _, dup := seen[rec.Key()]; dup {
				continue
			}
			seen[rec.Key()] = struct{}{}
			merged = append(merged, rec)
		}
	}

	if okSources == 0 && firstErr != nil {
		return nil, firstErr
	}

	l.Info().Int("count", len(merged)).Int("sources_ok", okSources).Msg("Discovery refresh finished.")

	m.mu.Lock()
	m.records = merged
	m.mu.Unlock()

	if m.store != nil && len(merged) > 0 {
		if err := m.store.Save(merged); err != nil {
			l.Error().Err(err).Msg("Failed to persist discovered records.")
		}
	}

	return merged, nil
}

// Records returns a snapshot of the last known record list.
func (m *Manager) Records() []model.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Record, len(m.records))
	copy(out, m.records)
	return out
}
