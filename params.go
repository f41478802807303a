package experiment

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/goliatone/go-experiment/layering"
)

// ParamSpec describes one declared parameter of a captured function.
type ParamSpec struct {
	Name       string
	Default    any
	HasDefault bool
}

// ParamOption configures a ParamSpec.
type ParamOption func(*ParamSpec)

// Default gives the parameter a function-local default.
func Default(value any) ParamOption {
	return func(p *ParamSpec) {
		p.Default = value
		p.HasDefault = true
	}
}

// Param declares a parameter.
func Param(name string, opts ...ParamOption) ParamSpec {
	spec := ParamSpec{Name: strings.TrimSpace(name)}
	for _, opt := range opts {
		if opt != nil {
			opt(&spec)
		}
	}
	return spec
}

// FunctionSpec is the static descriptor of a captured function: its name and
// ordered parameters.
type FunctionSpec struct {
	name   string
	params []ParamSpec
	index  map[string]int
}

// NewFunctionSpec validates and builds a descriptor. Parameter names follow
// configuration key rules and must be unique.
func NewFunctionSpec(name string, params ...ParamSpec) (FunctionSpec, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return FunctionSpec{}, ErrNameRequired
	}
	spec := FunctionSpec{
		name:   name,
		params: make([]ParamSpec, 0, len(params)),
		index:  make(map[string]int, len(params)),
	}
	for _, param := range params {
		if err := validateKey(param.Name); err != nil {
			return FunctionSpec{}, fmt.Errorf("experiment: function %s: %w", name, err)
		}
		if _, exists := spec.index[param.Name]; exists {
			return FunctionSpec{}, fmt.Errorf("%w: %s.%s", ErrDuplicateParameter, name, param.Name)
		}
		param.Default = layering.Clone(param.Default)
		spec.index[param.Name] = len(spec.params)
		spec.params = append(spec.params, param)
	}
	return spec, nil
}

// MustFunctionSpec is NewFunctionSpec that panics on error.
func MustFunctionSpec(name string, params ...ParamSpec) FunctionSpec {
	spec, err := NewFunctionSpec(name, params...)
	if err != nil {
		panic(err)
	}
	return spec
}

func (s FunctionSpec) Name() string {
	return s.name
}

// Params returns the parameters in declaration order.
func (s FunctionSpec) Params() []ParamSpec {
	out := make([]ParamSpec, len(s.params))
	for i, param := range s.params {
		param.Default = layering.Clone(param.Default)
		out[i] = param
	}
	return out
}

// Param looks a parameter up by name.
func (s FunctionSpec) Param(name string) (ParamSpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return ParamSpec{}, false
	}
	param := s.params[i]
	param.Default = layering.Clone(param.Default)
	return param, true
}

// Defaults returns the function-local defaults keyed by parameter name.
func (s FunctionSpec) Defaults() map[string]any {
	out := make(map[string]any)
	for _, param := range s.params {
		if param.HasDefault {
			out[param.Name] = layering.Clone(param.Default)
		}
	}
	return out
}

// Required lists the parameters without a local default.
func (s FunctionSpec) Required() []string {
	var out []string
	for _, param := range s.params {
		if !param.HasDefault {
			out = append(out, param.Name)
		}
	}
	return out
}

func (s FunctionSpec) isZero() bool {
	return s.name == ""
}

// Args holds the fully bound arguments of one call.
type Args map[string]any

// Get returns the bound value for name.
func (a Args) Get(name string) (any, bool) {
	value, ok := a[name]
	return value, ok
}

// Arg returns the bound value for name as T. Numeric values convert between
// numeric kinds; anything else must already be a T.
func Arg[T any](args Args, name string) (T, error) {
	var zero T
	value, ok := args[name]
	if !ok {
		return zero, fmt.Errorf("experiment: argument %q not bound", name)
	}
	if typed, ok := value.(T); ok {
		return typed, nil
	}
	if value == nil {
		return zero, nil
	}
	target := reflect.TypeOf((*T)(nil)).Elem()
	source := reflect.ValueOf(value)
	if isNumeric(source.Kind()) && isNumeric(target.Kind()) {
		return source.Convert(target).Interface().(T), nil
	}
	return zero, fmt.Errorf("experiment: argument %q is %T, not %s", name, value, target)
}

// MustArg is Arg that panics on error.
func MustArg[T any](args Args, name string) T {
	value, err := Arg[T](args, name)
	if err != nil {
		panic(err)
	}
	return value
}

func isNumeric(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
