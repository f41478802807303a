package experiment

import (
	"sort"
	"time"
)

// EvalContext carries the inputs of a snapshot query.
type EvalContext struct {
	Snapshot   *Snapshot
	Now        *time.Time
	Args       map[string]any
	Metadata   map[string]any
	RunID      string
	Experiment string
}

func (ctx EvalContext) withDefaults() EvalContext {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx EvalContext) timestamp() time.Time {
	if ctx.Now == nil {
		return time.Now()
	}
	return *ctx.Now
}

func (ctx EvalContext) label() string {
	switch {
	case ctx.RunID != "":
		return "run:" + ctx.RunID
	case ctx.Experiment != "":
		return ctx.Experiment
	default:
		return "snapshot"
	}
}

// bindings returns the variables every engine exposes: now, args, metadata,
// config (the whole snapshot), provenance, run, and each snapshot key that
// is a valid identifier.
func (ctx EvalContext) bindings() map[string]any {
	values := ctx.Snapshot.Values()
	provenance := make(map[string]any, len(values))
	for _, entry := range ctx.Snapshot.Entries() {
		provenance[entry.Key] = string(entry.Provenance)
	}
	env := map[string]any{
		"now":        ctx.timestamp(),
		"args":       ctx.Args,
		"metadata":   ctx.Metadata,
		"config":     values,
		"provenance": provenance,
		"run": map[string]any{
			"id":         ctx.RunID,
			"experiment": ctx.Experiment,
		},
	}
	for key, value := range values {
		if reservedBinding(key) || !isIdentifier(key) {
			continue
		}
		env[key] = value
	}
	return env
}

// identifierKeys lists the snapshot keys bound as top-level variables.
func (ctx EvalContext) identifierKeys() []string {
	var keys []string
	for _, key := range ctx.Snapshot.Keys() {
		if isIdentifier(key) && !reservedBinding(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func reservedBinding(name string) bool {
	switch name {
	case "now", "args", "metadata", "config", "provenance", "run", "call":
		return true
	}
	return false
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Evaluator executes query expressions against a snapshot.
type Evaluator interface {
	Evaluate(ctx EvalContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx EvalContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

// compiledQuery adapts a closure over a compiled program to CompiledRule.
type compiledQuery func(ctx EvalContext) (any, error)

func (q compiledQuery) Evaluate(ctx EvalContext) (any, error) {
	return q(ctx)
}
