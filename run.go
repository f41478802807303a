package experiment

import (
	"time"

	"github.com/goliatone/go-experiment/layering"
)

// RunState is a step of the run lifecycle.
type RunState string

const (
	StateCreated        RunState = "created"
	StateConfigResolved RunState = "config_resolved"
	StateExecuting      RunState = "executing"
	StateCompleted      RunState = "completed"
	StateFailed         RunState = "failed"
	StateInterrupted    RunState = "interrupted"
)

var runTransitions = map[RunState][]RunState{
	StateCreated:        {StateConfigResolved, StateFailed},
	StateConfigResolved: {StateExecuting, StateInterrupted},
	StateExecuting:      {StateCompleted, StateFailed, StateInterrupted},
}

// Terminal reports whether the state ends the lifecycle.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateInterrupted
}

// CanTransition reports whether the lifecycle allows moving from one state to
// another. Transitions only ever move forward.
func CanTransition(from, to RunState) bool {
	for _, next := range runTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Run records one execution of an experiment's main function.
type Run struct {
	ID          string         `json:"id"`
	Experiment  string         `json:"experiment"`
	Main        string         `json:"main"`
	State       RunState       `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at,omitempty"`
	Overrides   map[string]any `json:"overrides,omitempty"`
	Snapshot    *Snapshot      `json:"config,omitempty"`
	Fingerprint string         `json:"config_fingerprint,omitempty"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`

	// Err is the error that ended a failed or interrupted run.
	Err error `json:"-"`
}

// Duration is the wall time between start and end, zero while running.
func (r Run) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

func (r Run) clone() Run {
	out := r
	out.Overrides = layering.CloneMap(r.Overrides)
	return out
}
