package experiment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-experiment/layering"
	"github.com/goliatone/go-experiment/pkg/activity"
	"github.com/goliatone/go-experiment/pkg/artifact"
	"github.com/google/uuid"
)

// ControllerConfig wires a RunController's collaborators.
type ControllerConfig struct {
	Experiment string
	Sink       artifact.Sink
	Hooks      activity.Hooks
	Channel    string
	Logger     Logger
	Clock      func() time.Time
	NewID      func() string
}

// RunController executes the main function of one experiment, one run at a
// time, and drives every run to a terminal state.
type RunController struct {
	experiment string
	store      *ConfigStore
	registry   *CaptureRegistry
	sink       artifact.Sink
	emitter    *activity.Emitter
	logger     Logger
	now        func() time.Time
	newID      func() string

	mu       sync.Mutex
	running  bool
	snapshot *Snapshot
}

func NewRunController(store *ConfigStore, registry *CaptureRegistry, cfg ControllerConfig) *RunController {
	c := &RunController{
		experiment: cfg.Experiment,
		store:      store,
		registry:   registry,
		sink:       cfg.Sink,
		emitter:    activity.NewEmitter(cfg.Hooks, activity.Config{Enabled: true, Channel: cfg.Channel, Now: cfg.Clock}),
		logger:     cfg.Logger,
		now:        cfg.Clock,
		newID:      cfg.NewID,
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// RunOption configures a single Execute call.
type RunOption func(*runConfig)

type runConfig struct {
	args    []any
	kwargs  map[string]any
	actorID string
}

// WithArgs passes explicit positional arguments to the main function.
func WithArgs(args ...any) RunOption {
	return func(cfg *runConfig) {
		cfg.args = append(cfg.args, args...)
	}
}

// WithKwargs passes explicit named arguments to the main function.
func WithKwargs(kwargs map[string]any) RunOption {
	return func(cfg *runConfig) {
		if cfg.kwargs == nil {
			cfg.kwargs = map[string]any{}
		}
		for key, value := range kwargs {
			cfg.kwargs[key] = value
		}
	}
}

// WithActor records who started the run on lifecycle events.
func WithActor(actorID string) RunOption {
	return func(cfg *runConfig) {
		cfg.actorID = strings.TrimSpace(actorID)
	}
}

// Running reports whether a run is in progress.
func (c *RunController) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ActiveSnapshot returns the snapshot of the run in progress, or nil.
func (c *RunController) ActiveSnapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	return c.snapshot
}

// Execute resolves configuration, applies run-scoped overrides on top of it
// without touching the store, and calls the main function. The returned Run
// is always in a terminal state when Execute started one.
//
// Errors returned by the main function come back unchanged. Cancellation
// observed before dispatch or after the body returns, and body errors wrapping
// context cancellation, end the run as interrupted with an error matching
// ErrInterrupted. A sink failure after a completed run is reported as an
// ArtifactError and leaves the run completed.
func (c *RunController) Execute(ctx context.Context, overrides map[string]any, opts ...RunOption) (Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := runConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	main, ok := c.registry.Main()
	if !ok {
		return Run{}, ErrNoMain
	}
	if !c.begin() {
		return Run{}, ErrRunInProgress
	}
	defer c.end()

	run := &Run{
		ID:         c.newID(),
		Experiment: c.experiment,
		Main:       main.Name(),
		State:      StateCreated,
		StartedAt:  c.now(),
		Overrides:  layering.CloneMap(overrides),
	}

	snapshot, err := c.store.ResolveWith(overrides)
	if err != nil {
		c.finish(ctx, run, cfg, StateFailed, err)
		return run.clone(), err
	}
	run.Snapshot = snapshot
	if fingerprint, ferr := snapshot.Fingerprint(); ferr == nil {
		run.Fingerprint = fingerprint
	} else {
		c.logger.Debug("snapshot fingerprint unavailable", "run_id", run.ID, "error", ferr)
	}
	c.advance(run, StateConfigResolved)
	c.setSnapshot(snapshot)

	if cause := ctx.Err(); cause != nil {
		err := fmt.Errorf("%w: %w", ErrInterrupted, cause)
		c.finish(ctx, run, cfg, StateInterrupted, err)
		return run.clone(), err
	}

	c.advance(run, StateExecuting)
	c.emit(ctx, activity.BuildRunStartedEvent, run, cfg)
	c.logger.Info("run started", "run_id", run.ID, "experiment", run.Experiment, "main", run.Main)

	defer func() {
		if recovered := recover(); recovered != nil {
			c.finish(ctx, run, cfg, StateFailed, fmt.Errorf("experiment: panic in %s: %v", run.Main, recovered))
			panic(recovered)
		}
	}()

	runCtx := ContextWithRunID(ContextWithSnapshot(ctx, snapshot), run.ID)
	result, err := main.Call(runCtx, cfg.args, cfg.kwargs)
	switch {
	case err != nil && isCancellation(err):
		if !errors.Is(err, ErrInterrupted) {
			err = fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		c.finish(ctx, run, cfg, StateInterrupted, err)
		return run.clone(), err
	case err != nil:
		c.finish(ctx, run, cfg, StateFailed, err)
		return run.clone(), err
	case ctx.Err() != nil:
		err := fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		c.finish(ctx, run, cfg, StateInterrupted, err)
		return run.clone(), err
	}

	run.Result = result
	c.finish(ctx, run, cfg, StateCompleted, nil)

	if c.sink == nil {
		return run.clone(), nil
	}
	handoff := artifact.Artifact{
		RunID:       run.ID,
		Experiment:  run.Experiment,
		Main:        run.Main,
		Config:      snapshot.Values(),
		Fingerprint: run.Fingerprint,
		Result:      result,
		StartedAt:   run.StartedAt,
		EndedAt:     run.EndedAt,
	}
	if err := c.sink.Store(ctx, handoff); err != nil {
		c.logger.Error("artifact handoff failed", "run_id", run.ID, "error", err)
		return run.clone(), &ArtifactError{RunID: run.ID, Err: err}
	}
	return run.clone(), nil
}

func (c *RunController) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}
	c.running = true
	c.snapshot = nil
	return true
}

func (c *RunController) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.snapshot = nil
}

func (c *RunController) setSnapshot(snapshot *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = snapshot
}

func (c *RunController) advance(run *Run, to RunState) {
	if !CanTransition(run.State, to) {
		c.logger.Error("invalid run transition", "run_id", run.ID, "from", run.State, "to", to)
		return
	}
	run.State = to
}

func (c *RunController) finish(ctx context.Context, run *Run, cfg runConfig, state RunState, err error) {
	c.advance(run, state)
	run.EndedAt = c.now()
	if err != nil {
		run.Err = err
		run.Error = err.Error()
	}

	switch state {
	case StateCompleted:
		c.logger.Info("run completed", "run_id", run.ID, "duration", run.Duration())
		c.emit(ctx, activity.BuildRunCompletedEvent, run, cfg)
	case StateInterrupted:
		c.logger.Warn("run interrupted", "run_id", run.ID, "error", err)
		c.emit(ctx, activity.BuildRunInterruptedEvent, run, cfg)
	default:
		c.logger.Error("run failed", "run_id", run.ID, "error", err)
		c.emit(ctx, activity.BuildRunFailedEvent, run, cfg)
	}
}

func (c *RunController) emit(ctx context.Context, build func(activity.RunEventInput) activity.Event, run *Run, cfg runConfig) {
	if !c.emitter.Enabled() {
		return
	}
	event := build(activity.RunEventInput{
		ActorID:     cfg.actorID,
		RunID:       run.ID,
		Experiment:  run.Experiment,
		Main:        run.Main,
		Status:      string(run.State),
		Config:      run.Snapshot.Values(),
		Fingerprint: run.Fingerprint,
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		EndedAt:     run.EndedAt,
	})
	// Hooks observe runs; their failures never change a run's outcome.
	if err := c.emitter.Emit(context.WithoutCancel(ctx), event); err != nil {
		c.logger.Warn("run event hook failed", "run_id", run.ID, "verb", event.Verb, "error", err)
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
