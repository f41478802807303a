//go:build !js_eval

package experiment

import (
	"errors"
	"testing"
)

func TestJSEngineNeedsBuildTag(t *testing.T) {
	if _, err := NewEvaluator("js", nil, nil); !errors.Is(err, ErrNoEvaluator) {
		t.Fatalf("expected ErrNoEvaluator, got %v", err)
	}
	if NewJSEvaluator() != nil {
		t.Fatalf("expected nil evaluator without js_eval")
	}
}
