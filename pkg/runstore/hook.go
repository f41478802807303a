package runstore

import (
	"context"
	"time"

	"github.com/goliatone/go-experiment/pkg/activity"
)

// Hook saves every run lifecycle event it receives into Store.
type Hook struct {
	Store Store
	// Now stamps UpdatedAt. Defaults to time.Now.
	Now func() time.Time
}

// Notify implements activity.ActivityHook. Events for other object types are
// ignored.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Store == nil {
		return nil
	}
	record, ok := RecordFromEvent(event)
	if !ok {
		return nil
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	record.UpdatedAt = now().UTC()
	return h.Store.Save(ctx, record)
}

// RecordFromEvent extracts a Record from a run lifecycle event. It reports
// false for events that do not describe a run.
func RecordFromEvent(event activity.Event) (Record, bool) {
	event = activity.NormalizeEvent(event)
	if !event.IsRun() {
		return Record{}, false
	}
	started, _ := event.Meta(activity.MetaStartedAt)
	ended, _ := event.Meta(activity.MetaEndedAt)
	record := Record{
		ID:          event.ObjectID,
		Experiment:  event.MetaString(activity.MetaExperiment),
		Main:        event.MetaString(activity.MetaMain),
		Status:      event.MetaString(activity.MetaStatus),
		Fingerprint: event.MetaString(activity.MetaFingerprint),
		Error:       event.MetaString(activity.MetaError),
		StartedAt:   timeValue(started),
		EndedAt:     timeValue(ended),
	}
	if config, ok := event.Meta(activity.MetaConfig); ok {
		if values, ok := config.(map[string]any); ok {
			record.Config = cloneConfig(values)
		}
	}
	if record.Status == "" {
		record.Status = statusForVerb(event.Verb)
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = event.OccurredAt.UTC()
	}
	return record, true
}

func statusForVerb(verb string) string {
	switch verb {
	case activity.VerbRunStarted:
		return "executing"
	case activity.VerbRunCompleted:
		return "completed"
	case activity.VerbRunFailed:
		return "failed"
	case activity.VerbRunInterrupted:
		return "interrupted"
	}
	return ""
}

func timeValue(v any) time.Time {
	switch ts := v.(type) {
	case time.Time:
		return ts.UTC()
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
