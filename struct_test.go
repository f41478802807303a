package experiment

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type greetParams struct {
	Message string `param:"message" json:"message"`
	Times   int    `param:"times,required" json:"times"`
	Loud    bool   `param:"loud"`
	Note    string
	hidden  string `param:"hidden"`
}

func TestParamsFromStruct(t *testing.T) {
	spec, err := ParamsFromStruct("greet", greetParams{Message: "hi"})
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	var names []string
	for _, param := range spec.Params() {
		names = append(names, param.Name)
	}
	if !reflect.DeepEqual(names, []string{"message", "times", "loud"}) {
		t.Fatalf("unexpected params %v", names)
	}
	if !reflect.DeepEqual(spec.Defaults(), map[string]any{"message": "hi", "loud": false}) {
		t.Fatalf("unexpected defaults %v", spec.Defaults())
	}
	if !reflect.DeepEqual(spec.Required(), []string{"times"}) {
		t.Fatalf("unexpected required %v", spec.Required())
	}

	if _, err := ParamsFromStruct("bad", 5); err == nil {
		t.Fatalf("expected non-struct to be rejected")
	}
	if _, err := ParamsFromStruct[*greetParams]("pointer", nil); err != nil {
		t.Fatalf("expected nil pointer to describe the zero struct, got %v", err)
	}
}

func TestCaptureStructBindsConfiguration(t *testing.T) {
	exp := New("structs")
	if err := exp.AddConfig("config", map[string]any{"times": 2}); err != nil {
		t.Fatalf("config: %v", err)
	}
	greet, err := CaptureStruct(exp, "greet", greetParams{Message: "hi"}, func(_ context.Context, p greetParams) (any, error) {
		return p, nil
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	got, err := greet.Invoke(context.Background())
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got != (greetParams{Message: "hi", Times: 2}) {
		t.Fatalf("unexpected params %+v", got)
	}

	got, err = greet.Call(context.Background(), nil, map[string]any{"loud": true, "message": "yo"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != (greetParams{Message: "yo", Times: 2, Loud: true}) {
		t.Fatalf("unexpected params %+v", got)
	}

	_, err = greet.Call(context.Background(), nil, map[string]any{"times": "many"})
	var argErr *ArgumentError
	if !errors.As(err, &argErr) || argErr.Function != "greet" {
		t.Fatalf("expected ArgumentError for undecodable value, got %v", err)
	}
}

func TestMainStructRuns(t *testing.T) {
	exp := New("structs")
	_, err := MainStruct(exp, "main", greetParams{Message: "hi", Times: 1}, func(_ context.Context, p greetParams) (any, error) {
		return p.Message + "!", nil
	})
	if err != nil {
		t.Fatalf("main: %v", err)
	}
	run, err := exp.Run(context.Background(), map[string]any{"times": 3, "message": "hey"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Result != "hey!" {
		t.Fatalf("unexpected result %v", run.Result)
	}

	if _, err := MainStruct[greetParams](exp, "other", greetParams{}, nil); !errors.Is(err, ErrFunctionRequired) {
		t.Fatalf("expected ErrFunctionRequired, got %v", err)
	}
}
