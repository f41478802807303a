package experiment

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-experiment/layering"
)

// DeadOverridePolicy decides what happens when an override names a key that
// no function, default or named config declared.
type DeadOverridePolicy string

const (
	DeadOverrideWarn   DeadOverridePolicy = "warn"
	DeadOverrideIgnore DeadOverridePolicy = "ignore"
	DeadOverrideError  DeadOverridePolicy = "error"
)

// ParseDeadOverridePolicy maps a string onto a policy, defaulting to warn.
func ParseDeadOverridePolicy(value string) DeadOverridePolicy {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(DeadOverrideIgnore):
		return DeadOverrideIgnore
	case string(DeadOverrideError):
		return DeadOverrideError
	default:
		return DeadOverrideWarn
	}
}

// DefaultsOption configures a RegisterDefaults call.
type DefaultsOption func(*defaultsConfig)

type defaultsConfig struct {
	label        string
	overrides    map[string]struct{}
	overridesAll bool
}

// Overrides marks the registering source as allowed to shadow the defaults
// of the named sources instead of conflicting with them.
func Overrides(sources ...string) DefaultsOption {
	return func(cfg *defaultsConfig) {
		if cfg.overrides == nil {
			cfg.overrides = make(map[string]struct{}, len(sources))
		}
		for _, source := range sources {
			if source = strings.TrimSpace(source); source != "" {
				cfg.overrides[source] = struct{}{}
			}
		}
	}
}

// OverridesAll marks the registering source as allowed to shadow every other
// defaults source.
func OverridesAll() DefaultsOption {
	return func(cfg *defaultsConfig) {
		cfg.overridesAll = true
	}
}

// WithDefaultsLabel sets the display label of the defaults layer.
func WithDefaultsLabel(label string) DefaultsOption {
	return func(cfg *defaultsConfig) {
		cfg.label = label
	}
}

// StoreOption configures a ConfigStore.
type StoreOption func(*ConfigStore)

// WithStoreLogger sets the logger used for dead override warnings.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *ConfigStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStorePolicy sets the dead override policy.
func WithStorePolicy(policy DeadOverridePolicy) StoreOption {
	return func(s *ConfigStore) {
		s.policy = ParseDeadOverridePolicy(string(policy))
	}
}

// ConfigStore is the layered key/value register of one experiment. Layers
// resolve in increasing precedence: function defaults, experiment defaults,
// named configs (registration order), runtime overrides.
type ConfigStore struct {
	mu        sync.RWMutex
	sequence  uint64
	functions map[string]*layer
	defaults  map[string]*layer
	named     map[string]*layer
	overrides []*layer
	declared  map[string]map[string]struct{}
	policy    DeadOverridePolicy
	logger    Logger
}

// NewConfigStore constructs an empty store.
func NewConfigStore(opts ...StoreOption) *ConfigStore {
	s := &ConfigStore{
		functions: map[string]*layer{},
		defaults:  map[string]*layer{},
		named:     map[string]*layer{},
		declared:  map[string]map[string]struct{}{},
		policy:    DeadOverrideWarn,
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RegisterDefaults adds or replaces the experiment-level defaults of sourceID.
// A key already defaulted to a different value by another source fails with
// a ConflictError unless one side marked itself as overriding the other.
func (s *ConfigStore) RegisterDefaults(sourceID string, values map[string]any, opts ...DefaultsOption) error {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return ErrSourceRequired
	}
	if err := validateKeys(values); err != nil {
		return err
	}
	cfg := defaultsConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	label := cfg.label
	if label == "" {
		label = "defaults " + sourceID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	incoming := newLayer(NewScope(sourceID, PriorityExperimentDefaults, WithScopeLabel(label)), sourceID, 0, values)
	incoming.overrides = cfg.overrides
	incoming.overridesAll = cfg.overridesAll
	if err := s.checkConflictsLocked(incoming); err != nil {
		return err
	}
	if existing, ok := s.defaults[sourceID]; ok {
		incoming.sequence = existing.sequence
	} else {
		incoming.sequence = s.nextLocked()
	}
	s.defaults[sourceID] = incoming
	s.redeclareLocked(sourceID, values)
	s.logger.Debug("defaults registered", "source", sourceID, "keys", len(values))
	return nil
}

// ApplyNamedConfig adds the named layer, or replaces its values when the name
// was applied before. The layer keeps its original precedence position.
func (s *ConfigStore) ApplyNamedConfig(name string, values map[string]any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if err := validateKeys(values); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	source := namedSource(name)
	scope := NewScope(name, PriorityNamedConfig, WithScopeLabel("named config "+name))
	if existing, ok := s.named[name]; ok {
		s.named[name] = newLayer(scope, source, existing.sequence, values)
	} else {
		s.named[name] = newLayer(scope, source, s.nextLocked(), values)
	}
	s.redeclareLocked(source, values)
	s.logger.Debug("named config applied", "name", name, "keys", len(values))
	return nil
}

// ApplyRuntimeOverrides appends the strongest layer. Keys nothing declared
// are accepted, warned about, ignored or rejected per the store policy.
func (s *ConfigStore) ApplyRuntimeOverrides(values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	if err := validateKeys(values); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUndeclaredLocked(values); err != nil {
		return err
	}
	name := fmt.Sprintf("override-%d", len(s.overrides)+1)
	scope := NewScope(name, PriorityOverride, WithScopeLabel("runtime override"))
	s.overrides = append(s.overrides, newLayer(scope, name, s.nextLocked(), values))
	return nil
}

// Resolve flattens every layer into an immutable snapshot. It never fails;
// keys without a non-nil value in any layer are simply absent.
func (s *ConfigStore) Resolve() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(nil)
}

// ResolveWith resolves the store with one extra override layer on top,
// leaving the store untouched. Used for run-scoped overrides.
func (s *ConfigStore) ResolveWith(overrides map[string]any) (*Snapshot, error) {
	if err := validateKeys(overrides); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(overrides) == 0 {
		return s.resolveLocked(nil), nil
	}
	if err := s.checkUndeclaredLocked(overrides); err != nil {
		return nil, err
	}
	scope := NewScope("run-override", PriorityOverride, WithScopeLabel("run override"))
	extra := newLayer(scope, "run-override", s.sequence+1, overrides)
	return s.resolveLocked(extra), nil
}

// Declared reports whether any function, defaults source or named config
// declared key.
func (s *ConfigStore) Declared(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.declared[key]) > 0
}

// DeclaredKeys returns every declared key, sorted.
func (s *ConfigStore) DeclaredKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.declared))
	for key, sources := range s.declared {
		if len(sources) > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Layers describes the current layers, strongest first.
func (s *ConfigStore) Layers() []LayerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ordered := s.layersLocked()
	out := make([]LayerInfo, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		out = append(out, ordered[i].info())
	}
	return out
}

// Trace reports how every layer contributes to key, strongest first.
func (s *ConfigStore) Trace(key string) Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ordered := s.layersLocked()
	trace := Trace{Key: key, Layers: make([]LayerProvenance, 0, len(ordered))}
	for i := len(ordered) - 1; i >= 0; i-- {
		l := ordered[i]
		value, found := l.values[key]
		trace.Layers = append(trace.Layers, LayerProvenance{
			Scope:  l.scope.clone(),
			Source: l.source,
			Key:    key,
			Value:  layering.Clone(value),
			Found:  found && value != nil,
		})
	}
	return trace
}

func (s *ConfigStore) registerFunction(spec FunctionSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()

	source := spec.Name()
	scope := NewScope(source, PriorityFunctionDefaults, WithScopeLabel("function "+source))
	s.functions[source] = newLayer(scope, source, s.nextLocked(), spec.Defaults())
	for _, param := range spec.params {
		s.declareLocked(param.Name, source)
	}
}

func (s *ConfigStore) resolveLocked(extra *layer) *Snapshot {
	entries := make(map[string]Entry)
	put := func(l *layer, key string, value any) {
		if value == nil {
			return
		}
		entries[key] = Entry{
			Key:        key,
			Value:      value,
			Provenance: l.scope.Provenance,
			Source:     l.source,
		}
	}

	// Function defaults are source scoped: only keys every declaring function
	// agrees on are flattened. Contested keys fall back per callable.
	// A nil local default still takes part in the vote.
	functions := sortedLayers(s.functions)
	agreed := map[string]any{}
	contested := map[string]bool{}
	for _, l := range functions {
		for key, value := range l.values {
			if contested[key] {
				continue
			}
			if current, ok := agreed[key]; ok {
				if !reflect.DeepEqual(current, value) {
					contested[key] = true
					delete(agreed, key)
					delete(entries, key)
				}
				continue
			}
			agreed[key] = value
			put(l, key, value)
		}
	}

	winners := map[string]*layer{}
	for _, l := range sortedLayers(s.defaults) {
		for key, value := range l.values {
			if value == nil {
				continue
			}
			if winner, ok := winners[key]; ok && winner.shadows(l) && !l.shadows(winner) {
				continue
			}
			winners[key] = l
			put(l, key, value)
		}
	}

	strongest := sortedLayers(s.named)
	strongest = append(strongest, s.overrides...)
	if extra != nil {
		strongest = append(strongest, extra)
	}
	for _, l := range strongest {
		for key, value := range l.values {
			put(l, key, value)
		}
	}
	return newSnapshot(entries)
}

func (s *ConfigStore) checkConflictsLocked(incoming *layer) error {
	existing := sortedLayers(s.defaults)
	for _, key := range sortedKeys(incoming.values) {
		value := incoming.values[key]
		if value == nil {
			continue
		}
		for _, l := range existing {
			if l.source == incoming.source {
				continue
			}
			current, ok := l.values[key]
			if !ok || current == nil || reflect.DeepEqual(current, value) {
				continue
			}
			if incoming.shadows(l) || l.shadows(incoming) {
				continue
			}
			return &ConflictError{
				Key:      key,
				Sources:  [2]string{l.source, incoming.source},
				Existing: layering.Clone(current),
				Incoming: layering.Clone(value),
			}
		}
	}
	return nil
}

func (s *ConfigStore) checkUndeclaredLocked(values map[string]any) error {
	var undeclared []string
	for key := range values {
		if len(s.declared[key]) == 0 {
			undeclared = append(undeclared, key)
		}
	}
	if len(undeclared) == 0 {
		return nil
	}
	sort.Strings(undeclared)
	switch s.policy {
	case DeadOverrideIgnore:
		return nil
	case DeadOverrideError:
		return &UndeclaredKeyError{Keys: undeclared}
	default:
		s.logger.Warn("override targets undeclared configuration keys", "keys", undeclared)
		return nil
	}
}

func (s *ConfigStore) layersLocked() []*layer {
	ordered := make([]*layer, 0, len(s.functions)+len(s.defaults)+len(s.named)+len(s.overrides))
	for _, l := range s.functions {
		ordered = append(ordered, l)
	}
	for _, l := range s.defaults {
		ordered = append(ordered, l)
	}
	for _, l := range s.named {
		ordered = append(ordered, l)
	}
	ordered = append(ordered, s.overrides...)
	sortWeakestFirst(ordered)
	return ordered
}

func (s *ConfigStore) nextLocked() uint64 {
	s.sequence++
	return s.sequence
}

func (s *ConfigStore) declareLocked(key, source string) {
	sources, ok := s.declared[key]
	if !ok {
		sources = map[string]struct{}{}
		s.declared[key] = sources
	}
	sources[source] = struct{}{}
}

func (s *ConfigStore) redeclareLocked(source string, values map[string]any) {
	for _, sources := range s.declared {
		delete(sources, source)
	}
	for key := range values {
		s.declareLocked(key, source)
	}
}

func namedSource(name string) string {
	return "named:" + name
}

func sortedLayers(layers map[string]*layer) []*layer {
	out := make([]*layer, 0, len(layers))
	for _, l := range layers {
		out = append(out, l)
	}
	sortWeakestFirst(out)
	return out
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func validateKeys(values map[string]any) error {
	for key := range values {
		if err := validateKey(key); err != nil {
			return err
		}
	}
	return nil
}
