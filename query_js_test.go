//go:build js_eval

package experiment

import (
	"fmt"
	"testing"
)

func TestJSEvaluatorQueriesSnapshots(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("double", doubleFunction); err != nil {
		t.Fatalf("register: %v", err)
	}
	evaluator, err := NewEvaluator("js", &MemoryProgramCache{}, registry)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	cases := map[string]string{
		"a * 2":                "8",
		`name === "beta"`:      "true",
		`provenance.a`:         "default",
		`call("double", a)`:    "8",
		`double(a) + config.a`: "12",
	}
	for expr, want := range cases {
		got, err := evaluator.Evaluate(EvalContext{Snapshot: querySnapshot(t)}, expr)
		if err != nil {
			t.Fatalf("%s: %v", expr, err)
		}
		if fmt.Sprint(got) != want {
			t.Fatalf("%s: expected %s, got %v", expr, want, got)
		}
	}
}
