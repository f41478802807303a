package experiment

import (
	"strings"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

type celProgram struct {
	env     *celgo.Env
	program celgo.Program
}

// celEvaluator answers snapshot queries with cel-go. CEL needs every
// variable declared, so programs are keyed by the snapshot's key set too.
type celEvaluator struct {
	engine
}

// NewCELEvaluator builds a query engine backed by cel-go.
func NewCELEvaluator(opts ...EngineOption) Evaluator {
	return &celEvaluator{engine: newEngine("cel", opts)}
}

func (e *celEvaluator) Evaluate(ctx EvalContext, expression string) (any, error) {
	if expression == "" {
		return nil, e.emptyExpression()
	}
	ctx = ctx.withDefaults()
	program, err := e.loadOrCompile(expression, ctx.identifierKeys())
	if err != nil {
		return nil, e.failed(expression, ctx, err)
	}
	out, _, err := program.program.Eval(ctx.bindings())
	if err != nil {
		return nil, e.failed(expression, ctx, err)
	}
	return out.Value(), nil
}

// Compile defers type checking to the first evaluation since CEL needs the
// snapshot keys declared up front.
func (e *celEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, e.emptyExpression()
	}
	return compiledQuery(func(ctx EvalContext) (any, error) {
		return e.Evaluate(ctx, expression)
	}), nil
}

func (e *celEvaluator) loadOrCompile(expression string, keys []string) (*celProgram, error) {
	key := strings.Join(keys, ",") + "\x00" + expression
	return cachedProgram(e.engine, key, func() (*celProgram, error) {
		env, err := e.buildEnv(keys)
		if err != nil {
			return nil, err
		}
		ast, issues := env.Compile(expression)
		if issues != nil && issues.Err() != nil {
			return nil, issues.Err()
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, err
		}
		return &celProgram{env: env, program: prg}, nil
	})
}

func (e *celEvaluator) buildEnv(keys []string) (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("now", celgo.TimestampType),
		celgo.Variable("args", celgo.DynType),
		celgo.Variable("metadata", celgo.DynType),
		celgo.Variable("config", celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Variable("provenance", celgo.MapType(celgo.StringType, celgo.StringType)),
		celgo.Variable("run", celgo.MapType(celgo.StringType, celgo.StringType)),
	}
	if e.functions != nil {
		binding := celgo.FunctionBinding(e.callBinding())
		opts = append(opts, celgo.Function("call",
			celgo.Overload("call_string", []*celgo.Type{celgo.StringType}, celgo.DynType, binding),
			celgo.Overload("call_string_dyn", []*celgo.Type{celgo.StringType, celgo.DynType}, celgo.DynType, binding),
			celgo.Overload("call_string_dyn_dyn", []*celgo.Type{celgo.StringType, celgo.DynType, celgo.DynType}, celgo.DynType, binding),
			celgo.Overload("call_string_dyn_dyn_dyn", []*celgo.Type{celgo.StringType, celgo.DynType, celgo.DynType, celgo.DynType}, celgo.DynType, binding),
		))
	}
	for _, key := range keys {
		opts = append(opts, celgo.Variable(key, celgo.DynType))
	}
	return celgo.NewEnv(opts...)
}

// callBinding exposes the function registry as call(name, args...), up to
// three arguments.
func (e *celEvaluator) callBinding() func(...ref.Val) ref.Val {
	return func(values ...ref.Val) ref.Val {
		if e.functions == nil {
			return types.NewErr("experiment: function registry not configured")
		}
		if len(values) == 0 {
			return types.NewErr("experiment: call requires function name")
		}
		name, ok := values[0].Value().(string)
		if !ok {
			return types.NewErr("experiment: call name must be string")
		}
		args := make([]any, 0, len(values)-1)
		for _, val := range values[1:] {
			args = append(args, val.Value())
		}
		result, err := e.functions.Call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}
