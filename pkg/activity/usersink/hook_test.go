package usersink_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-experiment/pkg/activity"
	"github.com/goliatone/go-experiment/pkg/activity/usersink"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

type recordingSink struct {
	records []usertypes.ActivityRecord
	err     error
}

func (s *recordingSink) Log(_ context.Context, record usertypes.ActivityRecord) error {
	s.records = append(s.records, record)
	return s.err
}

func TestHookNotifyMapsRunEvent(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ended := started.Add(2 * time.Second)
	actorID := uuid.New()
	tenantID := uuid.New()
	runID := uuid.New().String()

	event := activity.BuildRunCompletedEvent(activity.RunEventInput{
		ActorID:        actorID.String(),
		TenantID:       tenantID.String(),
		RunID:          runID,
		Experiment:     "hello_config",
		Main:           "main",
		Status:         "completed",
		Channel:        "experiments",
		DefinitionCode: "experiment:run",
		Recipients:     []string{"recipient@example.com"},
		StartedAt:      started,
		EndedAt:        ended,
	})

	if err := hook.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	record := sink.records[0]
	if record.ActorID != actorID {
		t.Fatalf("expected actor %s got %s", actorID, record.ActorID)
	}
	if record.TenantID != tenantID {
		t.Fatalf("expected tenant %s got %s", tenantID, record.TenantID)
	}
	if record.Verb != activity.VerbRunCompleted || record.ObjectType != activity.ObjectTypeRun || record.ObjectID != runID {
		t.Fatalf("unexpected record payload: %+v", record)
	}
	if record.Channel != "experiments" {
		t.Fatalf("expected channel experiments got %q", record.Channel)
	}
	if !record.OccurredAt.Equal(ended) {
		t.Fatalf("expected occurred_at %v got %v", ended, record.OccurredAt)
	}
	if record.Data["definition_code"] != "experiment:run" {
		t.Fatalf("expected definition_code metadata got %v", record.Data["definition_code"])
	}
	if record.Data[activity.MetaExperiment] != "hello_config" {
		t.Fatalf("expected metadata passthrough got %v", record.Data[activity.MetaExperiment])
	}
	if record.Data[activity.MetaStartedAt] != "2024-05-01T12:00:00Z" {
		t.Fatalf("expected rendered start timestamp got %v", record.Data[activity.MetaStartedAt])
	}
	recipients, ok := record.Data["recipients"].([]string)
	if !ok || len(recipients) != 1 || recipients[0] != "recipient@example.com" {
		t.Fatalf("expected recipients metadata got %v", record.Data["recipients"])
	}
}

func TestHookNotifyUsesDefaultActor(t *testing.T) {
	sink := &recordingSink{}
	actor := uuid.New()
	hook := usersink.Hook{Sink: sink, Actor: actor}

	err := hook.Notify(context.Background(), activity.BuildRunStartedEvent(activity.RunEventInput{RunID: "r1"}))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sink.records) != 1 || sink.records[0].ActorID != actor {
		t.Fatalf("expected default actor %s, got %+v", actor, sink.records)
	}
}

func TestHookNotifyRunsOnlyFiltersOtherEvents(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink, RunsOnly: true}

	_ = hook.Notify(context.Background(), activity.Event{Verb: "create", ObjectType: "user", ObjectID: "1"})
	if len(sink.records) != 0 {
		t.Fatalf("expected non-run event dropped, got %d", len(sink.records))
	}
}

func TestHookNotifySkipsMissingVerb(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	_ = hook.Notify(context.Background(), activity.Event{})

	if len(sink.records) != 0 {
		t.Fatalf("expected no records for empty event, got %d", len(sink.records))
	}
}

func TestHookNotifyDefaultsTimestamp(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	err := hook.Notify(context.Background(), activity.Event{
		Verb:       activity.VerbRunStarted,
		ObjectType: activity.ObjectTypeRun,
		ObjectID:   "1",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	if sink.records[0].OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be defaulted")
	}
}
