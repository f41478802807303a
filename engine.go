package experiment

import "fmt"

// EngineOption configures a query engine.
type EngineOption func(*engine)

// EngineCache stores compiled programs in cache, keyed by engine and
// expression.
func EngineCache(cache ProgramCache) EngineOption {
	return func(e *engine) {
		e.cache = cache
	}
}

// EngineFunctions exposes a copy of registry to queries, both as call(name,
// args...) and as top-level functions.
func EngineFunctions(registry *FunctionRegistry) EngineOption {
	return func(e *engine) {
		if registry != nil {
			e.functions = registry.Clone()
		}
	}
}

// engine is the state every query engine shares.
type engine struct {
	name      string
	cache     ProgramCache
	functions *FunctionRegistry
}

func newEngine(name string, opts []EngineOption) engine {
	e := engine{name: name}
	for _, opt := range opts {
		if opt != nil {
			opt(&e)
		}
	}
	return e
}

func (e engine) engineName() string {
	return e.name
}

func (e engine) emptyExpression() error {
	return wrapEvaluatorError(e.name, fmt.Errorf("expression must not be empty"))
}

func (e engine) failed(expression string, ctx EvalContext, err error) error {
	return wrapEvaluationError(e.name, expression, ctx.label(), err)
}

// functionBindings returns call and every registered function, or nil
// without a registry.
func (e engine) functionBindings() map[string]any {
	if e.functions == nil {
		return nil
	}
	functions := e.functions
	out := map[string]any{
		"call": func(name string, arguments ...any) (any, error) {
			return functions.Call(name, arguments...)
		},
	}
	for _, name := range functions.Names() {
		out[name] = functions.bound(name)
	}
	return out
}

// cachedProgram returns the program cached under key for e, compiling and
// storing it on a miss.
func cachedProgram[P any](e engine, key string, compile func() (P, error)) (P, error) {
	key = e.name + ":" + key
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(P); ok {
				return program, nil
			}
		}
	}
	program, err := compile()
	if err != nil {
		return program, err
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}
