package runstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-process tools.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (s *MemoryStore) Save(_ context.Context, record Record) error {
	id := strings.TrimSpace(record.ID)
	if id == "" {
		return ErrRunIDRequired
	}
	record.ID = id
	record.Config = cloneConfig(record.Config)

	s.mu.Lock()
	s.records[id] = record
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	record, ok := s.records[strings.TrimSpace(id)]
	s.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	record.Config = cloneConfig(record.Config)
	return record, nil
}

func (s *MemoryStore) List(_ context.Context, experiment string, limit int) ([]Record, error) {
	experiment = strings.TrimSpace(experiment)

	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		if experiment != "" && record.Experiment != experiment {
			continue
		}
		record.Config = cloneConfig(record.Config)
		out = append(out, record)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
