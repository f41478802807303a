// Package runstore keeps a queryable history of experiment runs. Records are
// built from run lifecycle events, so any activity emitter can feed a store.
package runstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a run id.
	ErrNotFound = errors.New("runstore: run not found")
	// ErrRunIDRequired is returned when saving a record without an id.
	ErrRunIDRequired = errors.New("runstore: run id is required")
)

// Record is the persisted view of one run. Saving the same ID again replaces
// the previous record, so the last lifecycle event wins.
type Record struct {
	ID          string         `json:"id"`
	Experiment  string         `json:"experiment"`
	Main        string         `json:"main"`
	Status      string         `json:"status"`
	Config      map[string]any `json:"config,omitempty"`
	Fingerprint string         `json:"config_fingerprint,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Duration returns the wall time of a finished run, zero otherwise.
func (r Record) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Store persists run records.
type Store interface {
	Save(ctx context.Context, record Record) error
	Get(ctx context.Context, id string) (Record, error)
	// List returns runs newest first. An empty experiment lists every run;
	// a non-positive limit means no limit.
	List(ctx context.Context, experiment string, limit int) ([]Record, error)
}

func cloneConfig(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
