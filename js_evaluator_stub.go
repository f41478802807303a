//go:build !js_eval

package experiment

// NewJSEvaluator is unavailable without the js_eval build tag.
func NewJSEvaluator(...EngineOption) Evaluator {
	return nil
}

func jsEvaluatorAvailable() bool {
	return false
}
