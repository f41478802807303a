package experiment

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

var evaluatorFactories = []struct {
	name string
	new  func(opts ...EngineOption) Evaluator
}{
	{name: "expr", new: NewExprEvaluator},
	{name: "cel", new: NewCELEvaluator},
}

func querySnapshot(t *testing.T) *Snapshot {
	t.Helper()
	store := NewConfigStore()
	if err := store.RegisterDefaults("config", map[string]any{"a": 4, "name": "alpha"}); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if err := store.ApplyRuntimeOverrides(map[string]any{"name": "beta"}); err != nil {
		t.Fatalf("override: %v", err)
	}
	return store.Resolve()
}

func doubleFunction(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("double takes one argument")
	}
	switch v := args[0].(type) {
	case int:
		return v * 2, nil
	case int64:
		return v * 2, nil
	default:
		return nil, fmt.Errorf("double: unsupported %T", v)
	}
}

func TestEvaluatorsQuerySnapshots(t *testing.T) {
	cases := []struct {
		expr string
		want string
	}{
		{expr: "a * 2", want: "8"},
		{expr: `name == "beta"`, want: "true"},
		{expr: "config.a > 3", want: "true"},
		{expr: `provenance.name == "override"`, want: "true"},
		{expr: `provenance.a == "default"`, want: "true"},
		{expr: `run.id == "run-7"`, want: "true"},
	}
	for _, factory := range evaluatorFactories {
		factory := factory
		t.Run(factory.name, func(t *testing.T) {
			for _, cache := range []ProgramCache{nil, &MemoryProgramCache{}} {
				evaluator := factory.new(EngineCache(cache))
				for _, tc := range cases {
					got, err := evaluator.Evaluate(EvalContext{Snapshot: querySnapshot(t), RunID: "run-7"}, tc.expr)
					if err != nil {
						t.Fatalf("%s: unexpected error: %v", tc.expr, err)
					}
					if fmt.Sprint(got) != tc.want {
						t.Fatalf("%s: expected %s, got %v", tc.expr, tc.want, got)
					}
				}
			}
		})
	}
}

func TestEvaluatorsCallRegisteredFunctions(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("double", doubleFunction); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, factory := range evaluatorFactories {
		factory := factory
		t.Run(factory.name, func(t *testing.T) {
			evaluator := factory.new(EngineFunctions(registry))
			got, err := evaluator.Evaluate(EvalContext{Snapshot: querySnapshot(t)}, `call("double", a)`)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if fmt.Sprint(got) != "8" {
				t.Fatalf("expected 8, got %v", got)
			}

			_, err = evaluator.Evaluate(EvalContext{Snapshot: querySnapshot(t)}, `call("missing", a)`)
			if err == nil {
				t.Fatalf("expected unknown function to fail")
			}
		})
	}
}

func TestExprCachesCompiledPrograms(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("double", doubleFunction); err != nil {
		t.Fatalf("register: %v", err)
	}
	cache := &MemoryProgramCache{}
	evaluator := NewExprEvaluator(EngineCache(cache), EngineFunctions(registry))

	for i := 0; i < 2; i++ {
		got, err := evaluator.Evaluate(EvalContext{Snapshot: querySnapshot(t)}, "double(a) + 1")
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if got != 9 {
			t.Fatalf("expected 9, got %v", got)
		}
	}
	if _, ok := cache.Get("expr:double(a) + 1"); !ok {
		t.Fatalf("expected compiled program in cache")
	}

	rule, err := evaluator.Compile("a > 1")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	got, err := rule.Evaluate(EvalContext{Snapshot: querySnapshot(t)})
	if err != nil || got != true {
		t.Fatalf("expected compiled rule to pass, got %v %v", got, err)
	}
}

func TestEvaluatorsWrapErrors(t *testing.T) {
	for _, factory := range evaluatorFactories {
		factory := factory
		t.Run(factory.name, func(t *testing.T) {
			evaluator := factory.new()
			_, err := evaluator.Evaluate(EvalContext{Snapshot: querySnapshot(t), RunID: "run-7"}, "a +")
			var evalErr *EvaluationError
			if !errors.As(err, &evalErr) {
				t.Fatalf("expected EvaluationError, got %T %v", err, err)
			}
			if evalErr.Engine != factory.name || evalErr.Expr != "a +" {
				t.Fatalf("unexpected metadata %+v", evalErr)
			}

			if _, err := evaluator.Evaluate(EvalContext{}, ""); err == nil {
				t.Fatalf("expected empty expression to fail")
			}
		})
	}
}

func TestNewEvaluatorByName(t *testing.T) {
	for _, engine := range []string{"", "expr", "EXPR", "cel"} {
		evaluator, err := NewEvaluator(engine, &MemoryProgramCache{}, NewFunctionRegistry())
		if err != nil || evaluator == nil {
			t.Fatalf("%q: expected evaluator, got %v", engine, err)
		}
	}
	if _, err := NewEvaluator("lua", nil, nil); !errors.Is(err, ErrNoEvaluator) {
		t.Fatalf("expected ErrNoEvaluator, got %v", err)
	}
	if got := evaluatorEngineName(NewCELEvaluator()); got != "cel" {
		t.Fatalf("expected cel engine name, got %q", got)
	}
}

func TestExperimentEvaluate(t *testing.T) {
	var logged []EvaluatorLogEvent
	exp := New("query",
		WithCustomFunction("double", doubleFunction),
		WithEvaluatorLogger(EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
			logged = append(logged, event)
		})),
	)
	if err := exp.AddConfig("config", map[string]any{"a": 3}); err != nil {
		t.Fatalf("config: %v", err)
	}

	got, err := exp.Evaluate(nil, `double(a)`)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got != 6 {
		t.Fatalf("expected 6, got %v", got)
	}
	if len(logged) != 1 || logged[0].Engine != "expr" || logged[0].Target != "query" {
		t.Fatalf("unexpected log events %+v", logged)
	}

	run := Run{ID: "run-9", Snapshot: querySnapshot(t)}
	got, err = exp.EvaluateRun(run, `run.id + ":" + name`)
	if err != nil {
		t.Fatalf("evaluate run: %v", err)
	}
	if got != "run-9:beta" {
		t.Fatalf("unexpected run query result %v", got)
	}

	if _, err := exp.Evaluate(nil, "  "); err == nil {
		t.Fatalf("expected empty expression to fail")
	}
	if _, err := exp.Evaluate(nil, "a +"); err == nil || logged[len(logged)-1].Err == nil {
		t.Fatalf("expected failed query to be logged with its error")
	}
}

func TestExperimentEvaluateWithCEL(t *testing.T) {
	exp := New("query", WithEvaluator(NewCELEvaluator()))
	if err := exp.AddConfig("config", map[string]any{"a": 3}); err != nil {
		t.Fatalf("config: %v", err)
	}
	got, err := exp.Evaluate(nil, "a * 2")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got != int64(6) {
		t.Fatalf("expected int64 6, got %#v", got)
	}
}

func TestFunctionRegistry(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("Double", doubleFunction); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register("double", doubleFunction); err == nil {
		t.Fatalf("expected case-insensitive duplicate to fail")
	}
	for _, name := range []string{"", "config", "call", "two words", "9lives"} {
		if err := registry.Register(name, doubleFunction); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
	if err := registry.Register("nilfn", nil); err == nil {
		t.Fatalf("expected nil function to be rejected")
	}

	got, err := registry.Call("DOUBLE", 21)
	if err != nil || got != 42 {
		t.Fatalf("expected 42, got %v %v", got, err)
	}
	if _, err := registry.Call("missing"); err == nil {
		t.Fatalf("expected unknown function to fail")
	}

	clone := registry.Clone()
	if err := clone.Register("triple", doubleFunction); err != nil {
		t.Fatalf("register on clone: %v", err)
	}
	if names := registry.Names(); len(names) != 1 || names[0] != "double" {
		t.Fatalf("expected clone to be independent, got %v", names)
	}
}

func TestCELCallErrorKeepsMessage(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("fail", func(...any) (any, error) {
		return nil, errors.New("100% broken")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	evaluator := NewCELEvaluator(EngineFunctions(registry))
	_, err := evaluator.Evaluate(EvalContext{Snapshot: querySnapshot(t)}, `call("fail")`)
	if err == nil || !strings.Contains(err.Error(), "100% broken") {
		t.Fatalf("expected registry error text to survive, got %v", err)
	}
}

func TestEngineOptions(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("double", doubleFunction); err != nil {
		t.Fatalf("register: %v", err)
	}
	evaluator := NewExprEvaluator(EngineFunctions(registry), nil)
	if err := registry.Register("late", doubleFunction); err != nil {
		t.Fatalf("register late: %v", err)
	}
	if _, err := evaluator.Evaluate(EvalContext{Snapshot: querySnapshot(t)}, "late(a)"); err == nil {
		t.Fatalf("expected engine to keep its own copy of the registry")
	}

	for name, want := range map[string]string{"expr": "expr", "cel": "cel"} {
		evaluator, err := NewEvaluator(name, nil, nil)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got := evaluatorEngineName(evaluator); got != want {
			t.Fatalf("expected engine %s, got %s", want, got)
		}
	}
	if got := evaluatorEngineName(stubEvaluator{}); got != "custom" {
		t.Fatalf("expected custom engine name, got %s", got)
	}
}

type stubEvaluator struct{}

func (stubEvaluator) Evaluate(EvalContext, string) (any, error) { return nil, nil }

func (stubEvaluator) Compile(string, ...CompileOption) (CompiledRule, error) { return nil, nil }
