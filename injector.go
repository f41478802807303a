package experiment

import (
	"fmt"
	"sort"

	"github.com/goliatone/go-experiment/layering"
)

// Injector binds call arguments for captured functions. The zero value is
// ready to use.
type Injector struct{}

// ResolveArguments binds every parameter of spec. Positional args bind left
// to right, then keyword args, then snapshot values, then function-local
// defaults. Values are passed through without coercion.
func (Injector) ResolveArguments(spec FunctionSpec, args []any, kwargs map[string]any, snapshot *Snapshot) (Args, error) {
	if len(args) > len(spec.params) {
		return nil, &ArgumentError{
			Function: spec.name,
			Reason:   fmt.Sprintf("takes %d positional arguments but %d were given", len(spec.params), len(args)),
		}
	}

	bound := make(Args, len(spec.params))
	for i, value := range args {
		bound[spec.params[i].Name] = value
	}

	names := make([]string, 0, len(kwargs))
	for name := range kwargs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := spec.index[name]; !ok {
			return nil, &ArgumentError{Function: spec.name, Reason: fmt.Sprintf("unexpected keyword argument %q", name)}
		}
		if _, ok := bound[name]; ok {
			return nil, &ArgumentError{Function: spec.name, Reason: fmt.Sprintf("multiple values for argument %q", name)}
		}
		bound[name] = kwargs[name]
	}

	var missing []string
	for _, param := range spec.params {
		if _, ok := bound[param.Name]; ok {
			continue
		}
		if value, ok := snapshot.Get(param.Name); ok {
			bound[param.Name] = value
			continue
		}
		if param.HasDefault {
			bound[param.Name] = layering.Clone(param.Default)
			continue
		}
		missing = append(missing, param.Name)
	}
	if len(missing) > 0 {
		return nil, &MissingParameterError{Function: spec.name, Parameter: missing[0], Missing: missing}
	}
	return bound, nil
}

// ResolveArguments binds arguments with a zero Injector.
func ResolveArguments(spec FunctionSpec, args []any, kwargs map[string]any, snapshot *Snapshot) (Args, error) {
	return Injector{}.ResolveArguments(spec, args, kwargs, snapshot)
}
