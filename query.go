package experiment

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNoEvaluator = errors.New("experiment: evaluator not configured")

// Evaluate runs a query expression against snapshot, or against a fresh
// resolve when snapshot is nil.
func (e *Experiment) Evaluate(snapshot *Snapshot, expr string) (any, error) {
	return e.EvaluateWith(EvalContext{Snapshot: snapshot}, expr)
}

// EvaluateRun runs a query expression against the configuration of run.
func (e *Experiment) EvaluateRun(run Run, expr string) (any, error) {
	return e.EvaluateWith(EvalContext{Snapshot: run.Snapshot, RunID: run.ID}, expr)
}

// EvaluateWith runs a query expression using ctx, resolving the store when
// ctx.Snapshot is nil.
func (e *Experiment) EvaluateWith(ctx EvalContext, expr string) (any, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("experiment: expression must not be empty")
	}
	evaluator, err := e.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	if ctx.Snapshot == nil {
		ctx.Snapshot = e.store.Resolve()
	}
	if ctx.Experiment == "" {
		ctx.Experiment = e.name
	}
	ctx = ctx.withDefaults()
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, expr)
	duration := time.Since(start)
	evalErr = wrapEvaluationError(evaluatorEngineName(evaluator), expr, ctx.label(), evalErr)
	e.cfg.evalLogger.LogEvaluation(EvaluatorLogEvent{
		Engine:   evaluatorEngineName(evaluator),
		Expr:     expr,
		Target:   ctx.label(),
		Duration: duration,
		Err:      evalErr,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return value, nil
}

func (e *Experiment) resolveEvaluator() (Evaluator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evaluator != nil {
		return e.evaluator, nil
	}
	if e.cfg.evaluator != nil {
		e.evaluator = e.cfg.evaluator
		return e.evaluator, nil
	}
	evaluator, err := NewEvaluator("expr", e.cfg.programCache, e.cfg.functions)
	if err != nil {
		return nil, err
	}
	e.evaluator = evaluator
	return evaluator, nil
}

// NewEvaluator builds a query engine by name: expr, cel or js. The js engine
// requires the js_eval build tag.
func NewEvaluator(name string, cache ProgramCache, functions *FunctionRegistry) (Evaluator, error) {
	opts := []EngineOption{EngineCache(cache), EngineFunctions(functions)}
	var evaluator Evaluator
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "expr":
		evaluator = NewExprEvaluator(opts...)
	case "cel":
		evaluator = NewCELEvaluator(opts...)
	case "js", "javascript":
		if !jsEvaluatorAvailable() {
			return nil, fmt.Errorf("%w: js engine needs the js_eval build tag", ErrNoEvaluator)
		}
		evaluator = NewJSEvaluator(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrNoEvaluator, name)
	}
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}
	return evaluator, nil
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	if named, ok := e.(interface{ engineName() string }); ok {
		return named.engineName()
	}
	return "custom"
}
