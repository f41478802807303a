package activity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNormalizeEventTrimsAndDetaches(t *testing.T) {
	config := map[string]any{"a": 4, "nested": map[string]any{"k": "v"}}
	recipients := []string{"ops@example.com"}
	event := Event{
		Verb:           " run.started ",
		ActorID:        " actor ",
		UserID:         " user ",
		TenantID:       " tenant ",
		ObjectType:     " experiment.run ",
		ObjectID:       " 42 ",
		Channel:        " experiments ",
		DefinitionCode: " def ",
		Recipients:     recipients,
		Metadata:       map[string]any{MetaConfig: config},
	}

	got := NormalizeEvent(event)
	if got.Verb != VerbRunStarted || got.ObjectType != ObjectTypeRun || got.ObjectID != "42" {
		t.Fatalf("unexpected normalized fields: %+v", got)
	}
	if got.ActorID != "actor" || got.UserID != "user" || got.TenantID != "tenant" || got.Channel != "experiments" || got.DefinitionCode != "def" {
		t.Fatalf("unexpected trimming: %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be stamped")
	}

	nested := got.Metadata[MetaConfig].(map[string]any)["nested"].(map[string]any)
	nested["k"] = "changed"
	if config["nested"].(map[string]any)["k"] != "v" {
		t.Fatalf("expected nested config detached from the caller")
	}
	got.Recipients[0] = "changed"
	if recipients[0] != "ops@example.com" {
		t.Fatalf("expected recipients detached from the caller")
	}
}

func TestEventAccessors(t *testing.T) {
	event := BuildRunFailedEvent(RunEventInput{RunID: "run-1", Experiment: "demo", Error: "boom"})
	if !event.IsRun() {
		t.Fatalf("expected run event")
	}
	if event.MetaString(MetaError) != "boom" || event.MetaString(MetaExperiment) != "demo" {
		t.Fatalf("unexpected metadata %v", event.Metadata)
	}
	if _, ok := event.Meta(MetaEndedAt); ok {
		t.Fatalf("expected no end time on an input without one")
	}
	if (Event{ObjectType: "option", ObjectID: "1"}).IsRun() {
		t.Fatalf("expected non-run object to be rejected")
	}
	if (Event{}).MetaString(MetaStatus) != "" {
		t.Fatalf("expected empty metadata lookup on zero event")
	}
}

func TestHooksNotifyDropsUnroutableEvents(t *testing.T) {
	capture := &CaptureHook{}
	if err := (Hooks{capture}).Notify(context.Background(), Event{Verb: VerbRunStarted}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events captured, got %d", len(capture.Events))
	}
}

func TestHooksNotifyFansOutAndJoinsErrors(t *testing.T) {
	errFirst := errors.New("first down")
	errSecond := errors.New("second down")
	capture := &CaptureHook{}
	var ctxSeen bool
	hooks := Hooks{
		HookFunc(func(ctx context.Context, event Event) error {
			ctxSeen = ctx != nil
			event.Metadata[MetaStatus] = "tampered"
			return nil
		}),
		HookFunc(func(context.Context, Event) error { return errFirst }),
		nil,
		capture,
		HookFunc(func(context.Context, Event) error { return errSecond }),
	}

	event := Event{
		Verb:       VerbRunFailed,
		ObjectType: ObjectTypeRun,
		ObjectID:   "1",
		Metadata:   map[string]any{MetaStatus: "failed"},
	}
	err := hooks.Notify(nil, event)
	if !errors.Is(err, errFirst) || !errors.Is(err, errSecond) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !strings.Contains(err.Error(), "run.failed hook 1") || !strings.Contains(err.Error(), "run.failed hook 4") {
		t.Fatalf("expected hook positions in error, got %q", err.Error())
	}
	if !ctxSeen {
		t.Fatalf("expected a non-nil context")
	}
	if got := capture.Verbs(); len(got) != 1 || got[0] != VerbRunFailed {
		t.Fatalf("expected one captured event, got %v", got)
	}
	if last, _ := capture.Last(); last.MetaString(MetaStatus) != "failed" {
		t.Fatalf("expected each hook to receive its own metadata, got %v", last.Metadata)
	}
}

func TestEmitterDefaults(t *testing.T) {
	capture := &CaptureHook{}

	disabled := NewEmitter(Hooks{capture}, Config{Enabled: false})
	if disabled.Enabled() {
		t.Fatalf("expected emitter to be disabled")
	}
	if err := disabled.Emit(context.Background(), BuildRunStartedEvent(RunEventInput{RunID: "1"})); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if NewEmitter(Hooks{nil}, Config{Enabled: true}).Enabled() {
		t.Fatalf("expected emitter without real hooks to be disabled")
	}

	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	enabled := NewEmitter(Hooks{capture}, Config{Enabled: true, Now: func() time.Time { return stamp }})
	if err := enabled.Emit(context.Background(), Event{Verb: VerbRunStarted, ObjectType: ObjectTypeRun, ObjectID: "1"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	last, ok := capture.Last()
	if !ok || last.Channel != DefaultChannel || !last.OccurredAt.Equal(stamp) {
		t.Fatalf("expected default channel and clock, got %+v", last)
	}
}

func TestEmitterPreservesExplicitFields(t *testing.T) {
	capture := &CaptureHook{}
	emitter := NewEmitter(Hooks{capture}, Config{Enabled: true, Channel: "default"})
	occurred := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := emitter.Emit(context.Background(), Event{
		Verb:       VerbRunStarted,
		ObjectType: ObjectTypeRun,
		ObjectID:   "1",
		Channel:    "custom",
		OccurredAt: occurred,
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	last, _ := capture.Last()
	if last.Channel != "custom" || !last.OccurredAt.Equal(occurred) {
		t.Fatalf("expected explicit channel and time preserved, got %+v", last)
	}
}
