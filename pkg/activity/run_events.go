package activity

import (
	"strings"
	"time"
)

// ObjectTypeRun is the object type stamped on run lifecycle events.
const ObjectTypeRun = "experiment.run"

// Run lifecycle verbs.
const (
	VerbRunStarted     = "run.started"
	VerbRunCompleted   = "run.completed"
	VerbRunFailed      = "run.failed"
	VerbRunInterrupted = "run.interrupted"
)

// Metadata keys populated by BuildRun*Event.
const (
	MetaExperiment  = "experiment"
	MetaMain        = "main"
	MetaStatus      = "status"
	MetaConfig      = "config"
	MetaFingerprint = "config_fingerprint"
	MetaError       = "error"
	MetaStartedAt   = "started_at"
	MetaEndedAt     = "ended_at"
	MetaDurationMS  = "duration_ms"
)

// RunEventInput describes the common fields for run lifecycle events.
type RunEventInput struct {
	ActorID        string
	UserID         string
	TenantID       string
	RunID          string
	Experiment     string
	Main           string
	Status         string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	Config         map[string]any
	Fingerprint    string
	Error          string
	StartedAt      time.Time
	EndedAt        time.Time
	OccurredAt     time.Time
}

// BuildRunStartedEvent constructs the event emitted when a run starts executing.
func BuildRunStartedEvent(input RunEventInput) Event {
	return buildRunEvent(VerbRunStarted, input)
}

// BuildRunCompletedEvent constructs the event emitted for a completed run.
func BuildRunCompletedEvent(input RunEventInput) Event {
	return buildRunEvent(VerbRunCompleted, input)
}

// BuildRunFailedEvent constructs the event emitted for a failed run.
func BuildRunFailedEvent(input RunEventInput) Event {
	return buildRunEvent(VerbRunFailed, input)
}

// BuildRunInterruptedEvent constructs the event emitted for an interrupted run.
func BuildRunInterruptedEvent(input RunEventInput) Event {
	return buildRunEvent(VerbRunInterrupted, input)
}

func buildRunEvent(verb string, input RunEventInput) Event {
	metadata := cloneMap(input.Metadata)
	set := func(key string, value any) {
		metadata = ensureMetadata(metadata)
		metadata[key] = value
	}
	if experiment := strings.TrimSpace(input.Experiment); experiment != "" {
		set(MetaExperiment, experiment)
	}
	if main := strings.TrimSpace(input.Main); main != "" {
		set(MetaMain, main)
	}
	if input.Status != "" {
		set(MetaStatus, input.Status)
	}
	if len(input.Config) > 0 {
		set(MetaConfig, cloneMap(input.Config))
	}
	if input.Fingerprint != "" {
		set(MetaFingerprint, input.Fingerprint)
	}
	if input.Error != "" {
		set(MetaError, input.Error)
	}
	if !input.StartedAt.IsZero() {
		set(MetaStartedAt, input.StartedAt.UTC())
	}
	if !input.EndedAt.IsZero() {
		set(MetaEndedAt, input.EndedAt.UTC())
		if !input.StartedAt.IsZero() {
			set(MetaDurationMS, input.EndedAt.Sub(input.StartedAt).Milliseconds())
		}
	}

	recipients := input.Recipients
	if len(recipients) > 0 {
		recipients = append([]string{}, input.Recipients...)
	}

	objectID := strings.TrimSpace(input.RunID)
	if objectID == "" {
		objectID = strings.TrimSpace(input.Experiment)
	}
	if objectID == "" {
		objectID = ObjectTypeRun
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = input.EndedAt
	}
	if occurredAt.IsZero() {
		occurredAt = input.StartedAt
	}

	return Event{
		Verb:           verb,
		ActorID:        strings.TrimSpace(input.ActorID),
		UserID:         strings.TrimSpace(input.UserID),
		TenantID:       strings.TrimSpace(input.TenantID),
		ObjectType:     ObjectTypeRun,
		ObjectID:       objectID,
		Channel:        strings.TrimSpace(input.Channel),
		DefinitionCode: strings.TrimSpace(input.DefinitionCode),
		Recipients:     recipients,
		Metadata:       metadata,
		OccurredAt:     occurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
