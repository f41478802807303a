package experiment

import (
	"testing"
	"time"
)

func TestRunTransitions(t *testing.T) {
	allowed := []struct{ from, to RunState }{
		{StateCreated, StateConfigResolved},
		{StateCreated, StateFailed},
		{StateConfigResolved, StateExecuting},
		{StateConfigResolved, StateInterrupted},
		{StateExecuting, StateCompleted},
		{StateExecuting, StateFailed},
		{StateExecuting, StateInterrupted},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	rejected := []struct{ from, to RunState }{
		{StateCreated, StateExecuting},
		{StateConfigResolved, StateCompleted},
		{StateCompleted, StateFailed},
		{StateFailed, StateExecuting},
		{StateInterrupted, StateCompleted},
		{StateExecuting, StateCreated},
	}
	for _, tc := range rejected {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}

	for _, state := range []RunState{StateCompleted, StateFailed, StateInterrupted} {
		if !state.Terminal() {
			t.Fatalf("expected %s to be terminal", state)
		}
	}
	for _, state := range []RunState{StateCreated, StateConfigResolved, StateExecuting} {
		if state.Terminal() {
			t.Fatalf("expected %s not to be terminal", state)
		}
	}
}

func TestRunDuration(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	run := Run{StartedAt: start}
	if run.Duration() != 0 {
		t.Fatalf("expected zero duration while running")
	}
	run.EndedAt = start.Add(3 * time.Second)
	if run.Duration() != 3*time.Second {
		t.Fatalf("unexpected duration %v", run.Duration())
	}
}
