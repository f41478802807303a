// Package artifact receives the result of completed runs. A sink is handed
// each completed run exactly once; failed and interrupted runs never reach it.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Artifact is the record of one completed run.
type Artifact struct {
	RunID       string         `json:"run_id"`
	Experiment  string         `json:"experiment"`
	Main        string         `json:"main"`
	Config      map[string]any `json:"config"`
	Fingerprint string         `json:"config_fingerprint,omitempty"`
	Result      any            `json:"result"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
}

// Encode renders the artifact as indented JSON.
func (a Artifact) Encode() ([]byte, error) {
	payload, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("artifact: encode run %s: %w", a.RunID, err)
	}
	return append(payload, '\n'), nil
}

// Sink stores completed run artifacts.
type Sink interface {
	Store(ctx context.Context, artifact Artifact) error
}

// SinkFunc allows plain functions to satisfy Sink.
type SinkFunc func(ctx context.Context, artifact Artifact) error

func (fn SinkFunc) Store(ctx context.Context, artifact Artifact) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, artifact)
}

// MultiSink hands the artifact to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Store(ctx context.Context, artifact Artifact) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Store(ctx, artifact); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var errRunIDRequired = errors.New("artifact: run id is required")
