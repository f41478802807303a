package experiment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/goliatone/go-experiment/layering"
)

// Entry is one resolved configuration value together with the layer that
// supplied it.
type Entry struct {
	Key        string     `json:"key"`
	Value      any        `json:"value"`
	Provenance Provenance `json:"provenance"`
	Source     string     `json:"source"`
}

// Snapshot is an immutable resolved view of a ConfigStore. Reads hand out
// copies; later store mutations never reach an existing snapshot.
type Snapshot struct {
	entries map[string]Entry
	keys    []string
}

func newSnapshot(entries map[string]Entry) *Snapshot {
	snap := &Snapshot{
		entries: make(map[string]Entry, len(entries)),
		keys:    make([]string, 0, len(entries)),
	}
	for key, entry := range entries {
		entry.Value = layering.Clone(entry.Value)
		snap.entries[key] = entry
		snap.keys = append(snap.keys, key)
	}
	sort.Strings(snap.keys)
	return snap
}

// SnapshotFromValues builds a snapshot whose entries all carry the given
// provenance and source. Keys are validated and nil values dropped.
func SnapshotFromValues(values map[string]any, provenance Provenance, source string) (*Snapshot, error) {
	if err := validateKeys(values); err != nil {
		return nil, err
	}
	entries := make(map[string]Entry, len(values))
	for key, value := range values {
		if value == nil {
			continue
		}
		entries[key] = Entry{Key: key, Value: value, Provenance: provenance, Source: source}
	}
	return newSnapshot(entries), nil
}

// Get returns a copy of the value resolved for key.
func (s *Snapshot) Get(key string) (any, bool) {
	entry, ok := s.Lookup(key)
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// Lookup returns the resolved entry for key, value copied.
func (s *Snapshot) Lookup(key string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	entry.Value = layering.Clone(entry.Value)
	return entry, true
}

// Has reports whether key resolved to a value.
func (s *Snapshot) Has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.entries[key]
	return ok
}

// Keys returns the resolved keys in sorted order.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.keys...)
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Values returns a detached key/value map of the snapshot.
func (s *Snapshot) Values() map[string]any {
	out := make(map[string]any, s.Len())
	if s == nil {
		return out
	}
	for key, entry := range s.entries {
		out[key] = layering.Clone(entry.Value)
	}
	return out
}

// Entries returns every entry sorted by key.
func (s *Snapshot) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, 0, len(s.keys))
	for _, key := range s.keys {
		entry := s.entries[key]
		entry.Value = layering.Clone(entry.Value)
		out = append(out, entry)
	}
	return out
}

// Equal compares resolved contents. Provenance is ignored.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, key := range s.Keys() {
		theirs, ok := other.entries[key]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(s.entries[key].Value, theirs.Value) {
			return false
		}
	}
	return true
}

// Fingerprint hashes the canonical JSON encoding of the resolved values.
// Two snapshots with equal contents share a fingerprint.
func (s *Snapshot) Fingerprint() (string, error) {
	payload, err := json.Marshal(s.Values())
	if err != nil {
		return "", fmt.Errorf("experiment: fingerprint snapshot: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// MarshalJSON encodes the snapshot as its flat key/value map.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}
