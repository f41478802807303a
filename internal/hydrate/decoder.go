// Package hydrate turns bound call arguments into typed parameter structs.
// Arguments travel through JSON, so any struct with json tags can receive
// them; hooks run on either side of the decode.
package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Context names the captured function being hydrated.
type Context struct {
	Function   string
	Experiment string
}

// PreHook rewrites the argument payload before it is decoded.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook inspects or adjusts the decoded struct.
type PostHook[T any] func(Context, *T) error

// CustomDecoder bypasses JSON decoding entirely.
type CustomDecoder[T any] func(Context, map[string]any) (T, error)

type DecoderOption[T any] func(*Decoder[T])

// Decoder hydrates argument maps into T.
type Decoder[T any] struct {
	pre       []PreHook
	post      []PostHook[T]
	configure []func(*json.Decoder)
	custom    CustomDecoder[T]
}

func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.pre = append(d.pre, hook)
		}
	}
}

func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.post = append(d.post, hook)
		}
	}
}

// WithUseNumber keeps numbers landing in interface fields as json.Number.
func WithUseNumber[T any]() DecoderOption[T] {
	return WithDecoderConfig[T](func(dec *json.Decoder) { dec.UseNumber() })
}

// WithDisallowUnknownFields rejects arguments T has no field for.
func WithDisallowUnknownFields[T any]() DecoderOption[T] {
	return WithDecoderConfig[T](func(dec *json.Decoder) { dec.DisallowUnknownFields() })
}

func WithDecoderConfig[T any](configure func(*json.Decoder)) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if configure != nil {
			d.configure = append(d.configure, configure)
		}
	}
}

func WithCustomDecoder[T any](decoder CustomDecoder[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.custom = decoder
	}
}

// RenameKeys returns a PreHook moving each payload key found in names to its
// mapped name. Keys without a mapping pass through.
func RenameKeys(names map[string]string) PreHook {
	return func(_ Context, payload map[string]any) (map[string]any, error) {
		out := make(map[string]any, len(payload))
		for key, value := range payload {
			if renamed, ok := names[key]; ok && renamed != "" {
				key = renamed
			}
			if _, taken := out[key]; taken {
				return nil, fmt.Errorf("argument %q bound twice after renaming", key)
			}
			out[key] = value
		}
		return out, nil
	}
}

func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode hydrates payload into a T. The caller's map is never modified.
func (d *Decoder[T]) Decode(ctx Context, payload map[string]any) (T, error) {
	var zero T
	if payload == nil {
		return zero, fmt.Errorf("hydrate: payload is nil for function %q", ctx.Function)
	}
	current, err := detach(payload)
	if err != nil {
		return zero, fmt.Errorf("hydrate: clone payload for function %q: %w", ctx.Function, err)
	}
	for _, hook := range d.pre {
		next, err := hook(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: pre-hook for function %q failed: %w", ctx.Function, err)
		}
		if next != nil {
			current = next
		}
	}

	result, err := d.decode(ctx, current)
	if err != nil {
		return zero, err
	}
	for _, hook := range d.post {
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for function %q failed: %w", ctx.Function, err)
		}
	}
	return result, nil
}

func (d *Decoder[T]) decode(ctx Context, payload map[string]any) (T, error) {
	var result T
	if d.custom != nil {
		result, err := d.custom(ctx, payload)
		if err != nil {
			return result, fmt.Errorf("hydrate: custom decoder for function %q failed: %w", ctx.Function, err)
		}
		return result, nil
	}
	buffer, err := json.Marshal(payload)
	if err != nil {
		return result, fmt.Errorf("hydrate: marshal payload for function %q: %w", ctx.Function, err)
	}
	dec := json.NewDecoder(bytes.NewReader(buffer))
	for _, configure := range d.configure {
		configure(dec)
	}
	if err := dec.Decode(&result); err != nil {
		return result, fmt.Errorf("hydrate: decode function %q: %w", ctx.Function, err)
	}
	return result, nil
}

func detach(payload map[string]any) (map[string]any, error) {
	buffer, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(buffer, &out); err != nil {
		return nil, err
	}
	return out, nil
}
