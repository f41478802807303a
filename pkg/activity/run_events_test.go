package activity

import (
	"testing"
	"time"
)

func TestBuildRunCompletedEventIncludesRunMetadata(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ended := started.Add(1500 * time.Millisecond)
	meta := map[string]any{"custom": "value"}
	config := map[string]any{"a": 4}
	input := RunEventInput{
		ActorID:        " actor ",
		RunID:          " run-1 ",
		Experiment:     "hello_config",
		Main:           "main",
		Status:         "completed",
		Metadata:       meta,
		Config:         config,
		Fingerprint:    "abc",
		StartedAt:      started,
		EndedAt:        ended,
		DefinitionCode: "experiment:run",
		Recipients:     []string{"ops@example.com"},
	}

	event := BuildRunCompletedEvent(input)

	if event.Verb != VerbRunCompleted {
		t.Fatalf("expected verb %s got %s", VerbRunCompleted, event.Verb)
	}
	if event.ObjectType != ObjectTypeRun || event.ObjectID != "run-1" {
		t.Fatalf("unexpected object fields: %+v", event)
	}
	if event.ActorID != "actor" {
		t.Fatalf("expected trimmed actor, got %q", event.ActorID)
	}
	if event.Metadata[MetaExperiment] != "hello_config" || event.Metadata[MetaMain] != "main" {
		t.Fatalf("expected experiment metadata, got %+v", event.Metadata)
	}
	if event.Metadata[MetaStatus] != "completed" || event.Metadata[MetaFingerprint] != "abc" {
		t.Fatalf("expected status and fingerprint, got %+v", event.Metadata)
	}
	if event.Metadata[MetaDurationMS] != int64(1500) {
		t.Fatalf("expected duration 1500ms, got %v", event.Metadata[MetaDurationMS])
	}
	if !event.OccurredAt.Equal(ended) {
		t.Fatalf("expected occurred at end time, got %v", event.OccurredAt)
	}
	cfg, ok := event.Metadata[MetaConfig].(map[string]any)
	if !ok || cfg["a"] != 4 {
		t.Fatalf("expected config metadata, got %v", event.Metadata[MetaConfig])
	}
	cfg["a"] = 5
	if config["a"] != 4 {
		t.Fatalf("expected input config untouched")
	}
	event.Recipients[0] = "changed"
	if input.Recipients[0] != "ops@example.com" {
		t.Fatalf("expected input recipients untouched, got %v", input.Recipients)
	}
	if _, ok := meta[MetaStatus]; ok {
		t.Fatalf("expected input metadata untouched")
	}
}

func TestBuildRunEventFallsBackToExperimentObjectID(t *testing.T) {
	event := BuildRunFailedEvent(RunEventInput{Experiment: "demo", Error: "boom"})
	if event.ObjectID != "demo" {
		t.Fatalf("expected experiment fallback object ID, got %q", event.ObjectID)
	}
	if event.Metadata[MetaError] != "boom" {
		t.Fatalf("expected error metadata, got %+v", event.Metadata)
	}

	event = BuildRunInterruptedEvent(RunEventInput{})
	if event.ObjectID != ObjectTypeRun {
		t.Fatalf("expected fallback object ID %q, got %q", ObjectTypeRun, event.ObjectID)
	}
	if event.Metadata != nil {
		t.Fatalf("expected nil metadata for empty input, got %+v", event.Metadata)
	}
}

func TestBuildRunStartedEventOmitsEndFields(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	event := BuildRunStartedEvent(RunEventInput{RunID: "r", StartedAt: started})
	if _, ok := event.Metadata[MetaEndedAt]; ok {
		t.Fatalf("expected no ended_at on start event")
	}
	if !event.OccurredAt.Equal(started) {
		t.Fatalf("expected occurred at start time, got %v", event.OccurredAt)
	}
}
