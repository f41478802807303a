package experiment

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Function is a helper exposed to snapshot queries.
type Function func(args ...any) (any, error)

// FunctionRegistry holds query helpers. Lookups ignore case; a helper is
// bound under its lower-cased name.
type FunctionRegistry struct {
	mu    sync.RWMutex
	byKey map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{byKey: map[string]Function{}}
}

func functionKey(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("experiment: function name must not be empty")
	}
	key := strings.ToLower(name)
	if !isIdentifier(name) || reservedBinding(key) {
		return "", fmt.Errorf("experiment: function name %q cannot be bound in queries", name)
	}
	return key, nil
}

// Register adds fn under name. Names must be identifiers that do not shadow
// a query binding such as config or run.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("experiment: function %q is nil", name)
	}
	key, err := functionKey(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byKey[key]; taken {
		return fmt.Errorf("experiment: function %q already registered", name)
	}
	if r.byKey == nil {
		r.byKey = map[string]Function{}
	}
	r.byKey[key] = fn
	return nil
}

// Clone copies the registry so later registrations on either side stay
// local.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := &FunctionRegistry{byKey: make(map[string]Function, len(r.byKey))}
	for key, fn := range r.byKey {
		out.byKey[key] = fn
	}
	return out
}

// Call runs the helper registered under name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	fn, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("experiment: function %q not registered", name)
	}
	return fn(args...)
}

func (r *FunctionRegistry) lookup(name string) (Function, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.byKey[strings.ToLower(name)]
	return fn, ok
}

// bound returns a plain closure over name, the shape expr and goja bind.
func (r *FunctionRegistry) bound(name string) func(...any) (any, error) {
	return func(args ...any) (any, error) {
		return r.Call(name, args...)
	}
}

// Names lists the bound names in order.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.byKey))
	for key := range r.byKey {
		names = append(names, key)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// WithFunctionRegistry exposes a copy of registry to snapshot queries.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *experimentConfig) {
		if registry != nil {
			cfg.functions = registry.Clone()
		}
	}
}

// WithCustomFunction adds one query helper. Invalid names are dropped.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *experimentConfig) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		_ = cfg.functions.Register(name, fn)
	}
}
