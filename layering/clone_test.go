package layering

import (
	"reflect"
	"testing"
	"time"
)

func TestCloneDetachesNestedValues(t *testing.T) {
	original := map[string]any{
		"points": []any{1, 2, 3},
		"line": map[string]any{
			"slope": 4,
			"tags":  []string{"a", "b"},
		},
	}

	cloned := Clone(original)
	if !reflect.DeepEqual(original, cloned) {
		t.Fatalf("clone mismatch:\nwant: %#v\n got: %#v", original, cloned)
	}

	cloned["points"].([]any)[0] = 99
	cloned["line"].(map[string]any)["slope"] = 0
	cloned["line"].(map[string]any)["tags"].([]string)[1] = "z"

	if original["points"].([]any)[0] != 1 {
		t.Fatalf("expected original slice untouched, got %v", original["points"])
	}
	if original["line"].(map[string]any)["slope"] != 4 {
		t.Fatalf("expected original nested map untouched")
	}
	if original["line"].(map[string]any)["tags"].([]string)[1] != "b" {
		t.Fatalf("expected original typed slice untouched")
	}
}

func TestCloneNilAndScalars(t *testing.T) {
	var empty any
	if got := Clone(empty); got != nil {
		t.Fatalf("expected nil clone, got %#v", got)
	}
	if got := Clone[any]("hello"); got != "hello" {
		t.Fatalf("expected string to round trip, got %#v", got)
	}
	if got := Clone(42); got != 42 {
		t.Fatalf("expected int to round trip, got %#v", got)
	}
}

func TestCloneKeepsOpaqueStructs(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got := Clone[any](ts)
	if !got.(time.Time).Equal(ts) {
		t.Fatalf("expected time value preserved, got %v", got)
	}
}

func TestCloneMap(t *testing.T) {
	if CloneMap(nil) != nil {
		t.Fatalf("expected nil map to stay nil")
	}
	src := map[string]any{"a": []any{"x"}}
	dst := CloneMap(src)
	dst["a"].([]any)[0] = "y"
	dst["b"] = 1
	if src["a"].([]any)[0] != "x" {
		t.Fatalf("expected source slice untouched")
	}
	if _, ok := src["b"]; ok {
		t.Fatalf("expected source keys untouched")
	}
}
