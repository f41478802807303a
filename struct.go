package experiment

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/goliatone/go-experiment/internal/hydrate"
)

// structBinding maps parameter names onto the JSON field names of a struct.
type structBinding struct {
	spec   FunctionSpec
	fields map[string]string
}

// ParamsFromStruct derives a FunctionSpec from the exported fields of T that
// carry a `param` tag. The tag value names the parameter (falling back to the
// json name, then the field name); a ",required" suffix drops the default,
// otherwise the field's value in defaults becomes the function-local default.
//
//	type mainParams struct {
//		Message string `param:"message"`
//		A       int    `param:"a,required"`
//	}
func ParamsFromStruct[T any](name string, defaults T) (FunctionSpec, error) {
	binding, err := bindStruct(name, defaults)
	if err != nil {
		return FunctionSpec{}, err
	}
	return binding.spec, nil
}

func bindStruct[T any](name string, defaults T) (structBinding, error) {
	value := reflect.ValueOf(defaults)
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			value = reflect.New(value.Type().Elem()).Elem()
			break
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return structBinding{}, fmt.Errorf("experiment: %s: parameters must come from a struct, got %s", name, value.Kind())
	}

	typ := value.Type()
	params := make([]ParamSpec, 0, typ.NumField())
	fields := make(map[string]string, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag, ok := field.Tag.Lookup("param")
		if !ok || !field.IsExported() || tag == "-" {
			continue
		}
		paramName, flags, _ := strings.Cut(tag, ",")
		jsonName := jsonFieldName(field)
		if paramName == "" {
			paramName = jsonName
		}
		var opts []ParamOption
		if strings.TrimSpace(flags) != "required" {
			opts = append(opts, Default(value.Field(i).Interface()))
		}
		params = append(params, Param(paramName, opts...))
		fields[paramName] = jsonName
	}

	spec, err := NewFunctionSpec(name, params...)
	if err != nil {
		return structBinding{}, err
	}
	return structBinding{spec: spec, fields: fields}, nil
}

func jsonFieldName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}

func structBody[T any](experiment string, binding structBinding, fn func(context.Context, T) (any, error)) Func {
	decoder := hydrate.NewDecoder[T](
		hydrate.WithPreHook[T](hydrate.RenameKeys(binding.fields)),
		hydrate.WithDisallowUnknownFields[T](),
	)
	return func(ctx context.Context, args Args) (any, error) {
		params, err := decoder.Decode(hydrate.Context{Function: binding.spec.Name(), Experiment: experiment}, args)
		if err != nil {
			return nil, &ArgumentError{Function: binding.spec.Name(), Reason: err.Error()}
		}
		return fn(ctx, params)
	}
}

// CaptureStruct captures fn with parameters described by the tagged fields of
// T. Bound arguments are decoded into a T before each call.
func CaptureStruct[T any](e *Experiment, name string, defaults T, fn func(context.Context, T) (any, error)) (*Captured, error) {
	return registerStruct(e, name, defaults, fn, false)
}

// MainStruct is CaptureStruct for the experiment's main function.
func MainStruct[T any](e *Experiment, name string, defaults T, fn func(context.Context, T) (any, error)) (*Captured, error) {
	return registerStruct(e, name, defaults, fn, true)
}

func registerStruct[T any](e *Experiment, name string, defaults T, fn func(context.Context, T) (any, error), isMain bool) (*Captured, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrFunctionRequired, name)
	}
	binding, err := bindStruct(name, defaults)
	if err != nil {
		return nil, err
	}
	return e.registry.Register(binding.spec, structBody(e.name, binding, fn), isMain)
}
