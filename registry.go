package experiment

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Func is the body of a captured function. It receives fully bound arguments.
type Func func(ctx context.Context, args Args) (any, error)

// SnapshotSource supplies the snapshot of the run active for ctx, or nil.
type SnapshotSource interface {
	SnapshotFor(ctx context.Context) *Snapshot
}

// CaptureRegistry records captured functions and at most one main.
type CaptureRegistry struct {
	mu        sync.RWMutex
	store     *ConfigStore
	source    SnapshotSource
	injector  Injector
	functions map[string]*Captured
	main      *Captured
}

// NewCaptureRegistry builds a registry feeding function defaults into store.
// source may be nil.
func NewCaptureRegistry(store *ConfigStore, source SnapshotSource) *CaptureRegistry {
	if store == nil {
		store = NewConfigStore()
	}
	return &CaptureRegistry{
		store:     store,
		source:    source,
		functions: map[string]*Captured{},
	}
}

// Register captures body under spec. A second main is rejected with a
// DuplicateMainError and the first one stays designated.
func (r *CaptureRegistry) Register(spec FunctionSpec, body Func, isMain bool) (*Captured, error) {
	if spec.isZero() {
		return nil, ErrNameRequired
	}
	if body == nil {
		return nil, fmt.Errorf("%w: %s", ErrFunctionRequired, spec.name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if isMain && r.main != nil {
		return nil, &DuplicateMainError{Existing: r.main.spec.name, Rejected: spec.name}
	}
	if _, exists := r.functions[spec.name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateFunction, spec.name)
	}

	captured := &Captured{spec: spec, body: body, main: isMain, registry: r}
	r.functions[spec.name] = captured
	if isMain {
		r.main = captured
	}
	r.store.registerFunction(spec)
	return captured, nil
}

// Lookup returns the captured function registered under name.
func (r *CaptureRegistry) Lookup(name string) (*Captured, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	captured, ok := r.functions[name]
	return captured, ok
}

// Main returns the designated main function.
func (r *CaptureRegistry) Main() (*Captured, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.main, r.main != nil
}

// Functions returns every captured function sorted by name.
func (r *CaptureRegistry) Functions() []*Captured {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Captured, 0, len(r.functions))
	for _, captured := range r.functions {
		out = append(out, captured)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].spec.name < out[j].spec.name })
	return out
}

// Collision describes a parameter name declared by several captured functions.
type Collision struct {
	Key       string
	Functions []string
	// Defaults holds the local default of each function that declares one.
	Defaults map[string]any
	// Contested is set when the local defaults disagree, in which case the
	// key stays out of resolved snapshots unless a higher layer sets it.
	Contested bool
}

// Collisions reports parameter names shared between captured functions.
func (r *CaptureRegistry) Collisions() []Collision {
	functions := r.Functions()
	byKey := map[string]*Collision{}
	for _, captured := range functions {
		for _, param := range captured.spec.params {
			c, ok := byKey[param.Name]
			if !ok {
				c = &Collision{Key: param.Name, Defaults: map[string]any{}}
				byKey[param.Name] = c
			}
			c.Functions = append(c.Functions, captured.spec.name)
			if param.HasDefault {
				c.Defaults[captured.spec.name] = param.Default
			}
		}
	}

	var out []Collision
	for _, c := range byKey {
		if len(c.Functions) < 2 {
			continue
		}
		var first any
		seen := false
		for _, value := range c.Defaults {
			if seen && !reflect.DeepEqual(first, value) {
				c.Contested = true
				break
			}
			first, seen = value, true
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (r *CaptureRegistry) snapshotFor(ctx context.Context) *Snapshot {
	if snapshot := SnapshotFromContext(ctx); snapshot != nil {
		return snapshot
	}
	if r.source != nil {
		if snapshot := r.source.SnapshotFor(ctx); snapshot != nil {
			return snapshot
		}
	}
	return r.store.Resolve()
}

// Captured is the callable proxy returned by registration. Calling it binds
// any parameters the caller left out from the active configuration.
type Captured struct {
	spec     FunctionSpec
	body     Func
	main     bool
	registry *CaptureRegistry
}

func (c *Captured) Spec() FunctionSpec {
	return c.spec
}

func (c *Captured) Name() string {
	return c.spec.name
}

func (c *Captured) IsMain() bool {
	return c.main
}

// Invoke calls the function with positional arguments.
func (c *Captured) Invoke(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, args, nil)
}

// Call binds args, kwargs and the active snapshot, then runs the body. The
// snapshot is the one attached to ctx, else the owning experiment's active
// run, else a fresh resolve of the store.
func (c *Captured) Call(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	bound, err := c.registry.injector.ResolveArguments(c.spec, args, kwargs, c.registry.snapshotFor(ctx))
	if err != nil {
		return nil, err
	}
	return c.body(ctx, bound)
}
