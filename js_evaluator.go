//go:build js_eval

package experiment

import (
	"fmt"

	"github.com/dop251/goja"
)

// jsEvaluator answers snapshot queries with goja. Every evaluation gets a
// fresh runtime.
type jsEvaluator struct {
	engine
}

// NewJSEvaluator builds a query engine backed by goja.
func NewJSEvaluator(opts ...EngineOption) Evaluator {
	return &jsEvaluator{engine: newEngine("js", opts)}
}

func (e *jsEvaluator) Evaluate(ctx EvalContext, expression string) (any, error) {
	if expression == "" {
		return nil, e.emptyExpression()
	}
	ctx = ctx.withDefaults()
	program, err := e.compile(expression)
	if err != nil {
		return nil, e.failed(expression, ctx, err)
	}
	return e.run(ctx, expression, program)
}

func (e *jsEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, e.emptyExpression()
	}
	program, err := e.compile(expression)
	if err != nil {
		return nil, wrapEvaluationError(e.name, expression, "", err)
	}
	return compiledQuery(func(ctx EvalContext) (any, error) {
		return e.run(ctx.withDefaults(), expression, program)
	}), nil
}

func (e *jsEvaluator) compile(expression string) (*goja.Program, error) {
	return cachedProgram(e.engine, expression, func() (*goja.Program, error) {
		return goja.Compile("", fmt.Sprintf("(function(){ return (%s); })()", expression), false)
	})
}

func (e *jsEvaluator) run(ctx EvalContext, expression string, program *goja.Program) (any, error) {
	vm := goja.New()
	for name, value := range ctx.bindings() {
		if err := vm.Set(name, value); err != nil {
			return nil, e.failed(expression, ctx, err)
		}
	}
	for name, fn := range e.functionBindings() {
		if err := vm.Set(name, fn); err != nil {
			return nil, e.failed(expression, ctx, err)
		}
	}
	value, err := vm.RunProgram(program)
	if err != nil {
		return nil, e.failed(expression, ctx, err)
	}
	return value.Export(), nil
}

func jsEvaluatorAvailable() bool {
	return true
}
