package experiment

import (
	"fmt"
	"sort"
	"strings"
)

// FieldDescriptor describes a resolved configuration path, the inferred type
// of its value and the layer it came from.
type FieldDescriptor struct {
	Path       string     `json:"path"`
	Type       string     `json:"type"`
	Provenance Provenance `json:"provenance"`
	Source     string     `json:"source"`
}

// Describe flattens the snapshot into field descriptors. Nested maps expand
// into dotted paths below their top-level key.
func (s *Snapshot) Describe() []FieldDescriptor {
	var fields []FieldDescriptor
	for _, entry := range s.Entries() {
		for _, field := range deriveFieldDescriptors(entry.Value, entry.Key) {
			field.Provenance = entry.Provenance
			field.Source = entry.Source
			fields = append(fields, field)
		}
	}
	if fields == nil {
		fields = []FieldDescriptor{}
	}
	return fields
}

func deriveFieldDescriptors(value any, prefix string) []FieldDescriptor {
	if value == nil {
		return nil
	}

	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			return []FieldDescriptor{{
				Path: prefix,
				Type: "map[string]any",
			}}
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var fields []FieldDescriptor
		for _, key := range keys {
			fields = append(fields, deriveFieldDescriptors(typed[key], joinPath(prefix, key))...)
		}
		return fields
	case []any:
		elementType := "any"
		if len(typed) > 0 {
			elementType = typeName(typed[0])
		}
		return []FieldDescriptor{{
			Path: prefix,
			Type: "[]" + elementType,
		}}
	default:
		if prefix == "" {
			return nil
		}
		return []FieldDescriptor{{
			Path: prefix,
			Type: typeName(typed),
		}}
	}
}

func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", value)
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}
