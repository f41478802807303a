// Package activity carries run lifecycle events from the run controller to
// observers: audit sinks, run stores, test captures.
package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-experiment/layering"
)

// Event is one activity occurrence. Identifiers are plain strings so run ids,
// user ids and tenant ids do not force a uuid type on callers.
type Event struct {
	Verb           string
	ActorID        string
	UserID         string
	TenantID       string
	ObjectType     string
	ObjectID       string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	OccurredAt     time.Time
}

// IsRun reports whether the event describes an experiment run.
func (e Event) IsRun() bool {
	return strings.TrimSpace(e.ObjectType) == ObjectTypeRun && strings.TrimSpace(e.ObjectID) != ""
}

// Meta returns the metadata value stored under key.
func (e Event) Meta(key string) (any, bool) {
	if e.Metadata == nil {
		return nil, false
	}
	value, ok := e.Metadata[key]
	return value, ok
}

// MetaString returns the metadata value under key when it is a string.
func (e Event) MetaString(key string) string {
	value, _ := e.Meta(key)
	s, _ := value.(string)
	return s
}

func (e Event) routable() bool {
	return e.Verb != "" && e.ObjectType != "" && e.ObjectID != ""
}

// ActivityHook receives normalized events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc adapts a function to ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans one event out to every hook in order.
type Hooks []ActivityHook

func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify normalizes event and hands each hook its own copy. Events missing a
// verb or an object are dropped. Every hook runs even when an earlier one
// fails; failures come back joined, each tagged with the verb and position.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}
	normalized := NormalizeEvent(event)
	if !normalized.routable() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for i, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, copyEvent(normalized)); err != nil {
			errs = append(errs, fmt.Errorf("activity: %s hook %d: %w", normalized.Verb, i, err))
		}
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims identifiers, detaches metadata and recipients from
// the caller and stamps OccurredAt when missing.
func NormalizeEvent(event Event) Event {
	out := copyEvent(event)
	for _, field := range []*string{
		&out.Verb, &out.ActorID, &out.UserID, &out.TenantID,
		&out.ObjectType, &out.ObjectID, &out.Channel, &out.DefinitionCode,
	} {
		*field = strings.TrimSpace(*field)
	}
	if out.OccurredAt.IsZero() {
		out.OccurredAt = time.Now()
	}
	return out
}

// copyEvent deep copies metadata so run configuration maps handed to one
// hook cannot be changed under another.
func copyEvent(event Event) Event {
	out := event
	out.Metadata = cloneMap(event.Metadata)
	out.Recipients = nil
	if len(event.Recipients) > 0 {
		out.Recipients = append([]string{}, event.Recipients...)
	}
	return out
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	return layering.CloneMap(src)
}
