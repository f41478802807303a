package experiment

import (
	"sort"

	"github.com/goliatone/go-experiment/layering"
)

// Provenance tags the kind of layer a configuration value came from.
type Provenance string

const (
	ProvenanceDefault     Provenance = "default"
	ProvenanceNamedConfig Provenance = "named-config"
	ProvenanceOverride    Provenance = "override"
)

const (
	// Precedence tiers. Higher numbers win; inside a tier the later
	// registration wins.
	PriorityFunctionDefaults   = 100
	PriorityExperimentDefaults = 200
	PriorityNamedConfig        = 300
	PriorityOverride           = 400
)

// Scope names a configuration layer and its precedence tier.
type Scope struct {
	Name       string
	Label      string
	Provenance Provenance
	Priority   int
	Metadata   map[string]any
}

// ScopeOption configures metadata on Scope creation.
type ScopeOption func(*scopeConfig)

type scopeConfig struct {
	label    string
	metadata map[string]any
}

// WithScopeLabel sets a human-friendly label on the scope.
func WithScopeLabel(label string) ScopeOption {
	return func(cfg *scopeConfig) {
		cfg.label = label
	}
}

// WithScopeMetadata attaches arbitrary metadata to the scope. The map is copied
// so the resulting Scope stays immutable if the caller mutates their reference.
func WithScopeMetadata(metadata map[string]any) ScopeOption {
	return func(cfg *scopeConfig) {
		if len(metadata) == 0 {
			return
		}
		cfg.metadata = copyMetadata(metadata)
	}
}

// NewScope builds a Scope for the given tier. The provenance tag is derived
// from the priority.
func NewScope(name string, priority int, opts ...ScopeOption) Scope {
	cfg := scopeConfig{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	return Scope{
		Name:       name,
		Label:      cfg.label,
		Provenance: provenanceFor(priority),
		Priority:   priority,
		Metadata:   copyMetadata(cfg.metadata),
	}
}

func provenanceFor(priority int) Provenance {
	switch {
	case priority >= PriorityOverride:
		return ProvenanceOverride
	case priority >= PriorityNamedConfig:
		return ProvenanceNamedConfig
	default:
		return ProvenanceDefault
	}
}

func (s Scope) clone() Scope {
	out := s
	out.Metadata = copyMetadata(s.Metadata)
	return out
}

// layer is one ordered source of key/value pairs inside a ConfigStore.
type layer struct {
	scope    Scope
	source   string
	sequence uint64
	values   map[string]any

	// experiment defaults only: sources this layer is allowed to shadow.
	overrides    map[string]struct{}
	overridesAll bool
}

func newLayer(scope Scope, source string, sequence uint64, values map[string]any) *layer {
	return &layer{
		scope:    scope.clone(),
		source:   source,
		sequence: sequence,
		values:   layering.CloneMap(values),
	}
}

// shadows reports whether l was explicitly allowed to win over other.
func (l *layer) shadows(other *layer) bool {
	if l.overridesAll {
		return true
	}
	_, ok := l.overrides[other.source]
	return ok
}

// LayerInfo is a read-only description of a configuration layer, strongest
// first when returned from ConfigStore.Layers.
type LayerInfo struct {
	Scope    Scope
	Source   string
	Sequence uint64
	Keys     []string
}

func (l *layer) info() LayerInfo {
	keys := make([]string, 0, len(l.values))
	for key := range l.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return LayerInfo{
		Scope:    l.scope.clone(),
		Source:   l.source,
		Sequence: l.sequence,
		Keys:     keys,
	}
}

// sortWeakestFirst orders layers by tier then registration sequence.
func sortWeakestFirst(layers []*layer) {
	sort.SliceStable(layers, func(i, j int) bool {
		if layers[i].scope.Priority == layers[j].scope.Priority {
			return layers[i].sequence < layers[j].sequence
		}
		return layers[i].scope.Priority < layers[j].scope.Priority
	})
}

func copyMetadata(origin map[string]any) map[string]any {
	if len(origin) == 0 {
		return nil
	}
	out := make(map[string]any, len(origin))
	for key, value := range origin {
		out[key] = value
	}
	return out
}
