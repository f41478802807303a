package experiment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-experiment/layering"
)

// DefaultName is used when New receives an empty experiment name.
const DefaultName = "experiment"

// Experiment owns one configuration store, its captured functions and the
// controller that runs its main function. Experiments share no state.
type Experiment struct {
	name       string
	cfg        experimentConfig
	store      *ConfigStore
	registry   *CaptureRegistry
	controller *RunController

	mu        sync.RWMutex
	named     map[string]map[string]any
	evaluator Evaluator
}

// New builds an empty experiment.
func New(name string, opts ...Option) *Experiment {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	cfg := applyOptions(opts)
	e := &Experiment{
		name:  name,
		cfg:   cfg,
		named: map[string]map[string]any{},
	}
	e.store = NewConfigStore(WithStoreLogger(cfg.logger), WithStorePolicy(cfg.policy))
	e.registry = NewCaptureRegistry(e.store, e)
	e.controller = NewRunController(e.store, e.registry, ControllerConfig{
		Experiment: name,
		Sink:       cfg.sink,
		Hooks:      cfg.activityHooks,
		Channel:    cfg.activityChannel,
		Logger:     cfg.logger,
		Clock:      cfg.clock,
		NewID:      cfg.newID,
	})
	return e
}

func (e *Experiment) Name() string {
	return e.name
}

// Capture registers fn as an injectable function.
func (e *Experiment) Capture(spec FunctionSpec, fn Func) (*Captured, error) {
	return e.registry.Register(spec, fn, false)
}

// Main registers fn and designates it as the experiment's entry point.
func (e *Experiment) Main(spec FunctionSpec, fn Func) (*Captured, error) {
	return e.registry.Register(spec, fn, true)
}

// MustCapture is Capture that panics on error.
func (e *Experiment) MustCapture(spec FunctionSpec, fn Func) *Captured {
	captured, err := e.Capture(spec, fn)
	if err != nil {
		panic(err)
	}
	return captured
}

// MustMain is Main that panics on error.
func (e *Experiment) MustMain(spec FunctionSpec, fn Func) *Captured {
	captured, err := e.Main(spec, fn)
	if err != nil {
		panic(err)
	}
	return captured
}

// AddConfig registers experiment-level defaults under sourceID.
func (e *Experiment) AddConfig(sourceID string, values map[string]any, opts ...DefaultsOption) error {
	return e.store.RegisterDefaults(sourceID, values, opts...)
}

// DefineNamedConfig records a named config without applying it. It takes
// effect once UseNamedConfig selects it.
func (e *Experiment) DefineNamedConfig(name string, values map[string]any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if err := validateKeys(values); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.named[name] = layering.CloneMap(values)
	return nil
}

// NamedConfigs lists the defined named configs.
func (e *Experiment) NamedConfigs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.named))
	for name := range e.named {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UseNamedConfig applies a defined named config.
func (e *Experiment) UseNamedConfig(name string) error {
	e.mu.RLock()
	values, ok := e.named[strings.TrimSpace(name)]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNamedConfig, name)
	}
	return e.store.ApplyNamedConfig(name, values)
}

// NamedConfig applies values as the named config layer name.
func (e *Experiment) NamedConfig(name string, values map[string]any) error {
	return e.store.ApplyNamedConfig(name, values)
}

// Override applies runtime overrides to the store. They persist for every
// later run; use Run's overrides for a single run.
func (e *Experiment) Override(values map[string]any) error {
	return e.store.ApplyRuntimeOverrides(values)
}

// Run executes the main function with run-scoped overrides.
func (e *Experiment) Run(ctx context.Context, overrides map[string]any, opts ...RunOption) (Run, error) {
	return e.controller.Execute(ctx, overrides, opts...)
}

// Resolve returns the current configuration snapshot.
func (e *Experiment) Resolve() *Snapshot {
	return e.store.Resolve()
}

// Trace reports how each layer contributes to key.
func (e *Experiment) Trace(key string) Trace {
	return e.store.Trace(key)
}

// SnapshotFor returns the snapshot of the run in progress, or nil.
func (e *Experiment) SnapshotFor(context.Context) *Snapshot {
	return e.controller.ActiveSnapshot()
}

func (e *Experiment) Store() *ConfigStore {
	return e.store
}

func (e *Experiment) Registry() *CaptureRegistry {
	return e.registry
}

func (e *Experiment) Controller() *RunController {
	return e.controller
}
