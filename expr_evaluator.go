package experiment

import (
	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// exprEvaluator answers snapshot queries with github.com/expr-lang/expr.
// Snapshot keys are undeclared at compile time, so one program serves any
// snapshot.
type exprEvaluator struct {
	engine
}

// NewExprEvaluator builds the default query engine.
func NewExprEvaluator(opts ...EngineOption) Evaluator {
	return &exprEvaluator{engine: newEngine("expr", opts)}
}

func (e *exprEvaluator) Evaluate(ctx EvalContext, expression string) (any, error) {
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

func (e *exprEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, e.emptyExpression()
	}
	program, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	return compiledQuery(func(ctx EvalContext) (any, error) {
		return e.run(ctx.withDefaults(), expression, program)
	}), nil
}

func (e *exprEvaluator) compile(expression string) (*exprvm.Program, error) {
	return cachedProgram(e.engine, expression, func() (*exprvm.Program, error) {
		options := []exprlang.Option{
			exprlang.Env(map[string]any{}),
			exprlang.AllowUndefinedVariables(),
		}
		for _, name := range e.functions.Names() {
			options = append(options, exprlang.Function(name, e.functions.bound(name)))
		}
		program, err := exprlang.Compile(expression, options...)
		if err != nil {
			return nil, wrapEvaluationError(e.name, expression, "", err)
		}
		return program, nil
	})
}

func (e *exprEvaluator) run(ctx EvalContext, expression string, program *exprvm.Program) (any, error) {
	env := ctx.bindings()
	for name, fn := range e.functionBindings() {
		env[name] = fn
	}
	result, err := exprlang.Run(program, env)
	if err != nil {
		return nil, e.failed(expression, ctx, err)
	}
	return result, nil
}
