package experiment

import (
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-experiment/pkg/activity"
	"github.com/goliatone/go-experiment/pkg/artifact"
)

// Option configures an Experiment.
type Option func(*experimentConfig)

type experimentConfig struct {
	logger          Logger
	evaluator       Evaluator
	programCache    ProgramCache
	functions       *FunctionRegistry
	evalLogger      EvaluatorLogger
	activityHooks   activity.Hooks
	activityChannel string
	sink            artifact.Sink
	policy          DeadOverridePolicy
	clock           func() time.Time
	newID           func() string
}

func applyOptions(opts []Option) experimentConfig {
	cfg := experimentConfig{
		logger:     noopLogger{},
		evalLogger: noopEvaluatorLogger{},
		policy:     DeadOverrideWarn,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithLogger sets the engine logger. *slog.Logger satisfies Logger.
func WithLogger(logger Logger) Option {
	return func(cfg *experimentConfig) {
		if logger == nil {
			cfg.logger = noopLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithEvaluator sets the snapshot query engine. The default is expr.
func WithEvaluator(evaluator Evaluator) Option {
	return func(cfg *experimentConfig) {
		cfg.evaluator = evaluator
	}
}

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MemoryProgramCache is a concurrency safe in-memory ProgramCache.
type MemoryProgramCache struct {
	programs sync.Map
}

func (c *MemoryProgramCache) Get(key string) (any, bool) {
	return c.programs.Load(key)
}

func (c *MemoryProgramCache) Set(key string, value any) {
	c.programs.Store(key, value)
}

// WithProgramCache registers a program cache used by the default evaluator.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *experimentConfig) {
		cfg.programCache = cache
	}
}

// WithActivityHooks attaches run lifecycle hooks. Hooks are cloned and nil
// entries dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *experimentConfig) {
		cfg.activityHooks = append(cfg.activityHooks, normalized...)
	}
}

// WithActivityChannel overrides the channel stamped on run events.
func WithActivityChannel(channel string) Option {
	return func(cfg *experimentConfig) {
		cfg.activityChannel = strings.TrimSpace(channel)
	}
}

// WithSink sets where completed run results are handed off.
func WithSink(sink artifact.Sink) Option {
	return func(cfg *experimentConfig) {
		cfg.sink = sink
	}
}

// WithDeadOverridePolicy decides how overrides of undeclared keys are handled.
func WithDeadOverridePolicy(policy DeadOverridePolicy) Option {
	return func(cfg *experimentConfig) {
		cfg.policy = ParseDeadOverridePolicy(string(policy))
	}
}

// WithClock replaces time.Now for run timestamps.
func WithClock(clock func() time.Time) Option {
	return func(cfg *experimentConfig) {
		cfg.clock = clock
	}
}

// WithRunIDGenerator replaces the uuid based run id generator.
func WithRunIDGenerator(newID func() string) Option {
	return func(cfg *experimentConfig) {
		cfg.newID = newID
	}
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}
