package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	experiment "github.com/goliatone/go-experiment"
	"github.com/goliatone/go-experiment/pkg/activity"
	"github.com/goliatone/go-experiment/pkg/artifact"
	"github.com/goliatone/go-experiment/pkg/configfile"
	"github.com/goliatone/go-experiment/pkg/logging"
	"github.com/goliatone/go-experiment/pkg/objectstore"
	"github.com/goliatone/go-experiment/pkg/runstore"
	"github.com/goliatone/go-experiment/pkg/runstore/postgres"
)

// Builder constructs the experiment, applying the runner's options to New.
type Builder func(opts ...experiment.Option) (*experiment.Experiment, error)

// Runner executes one parsed command line.
type Runner struct {
	Config *Config
	Build  Builder
	Stdout io.Writer
	Stderr io.Writer
	// RunStore, when set, replaces the store selected by Config.RunStore.
	RunStore runstore.Store
	// Options are appended after the options derived from Config.
	Options []experiment.Option
}

// Main parses args, runs the command and returns the process exit code.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer, build Builder) int {
	cfg, exit, err := Parse(args, stderr)
	if err != nil {
		return report(stderr, err)
	}
	if exit {
		return 0
	}
	runner := &Runner{Config: cfg, Build: build, Stdout: stdout, Stderr: stderr}
	if err := runner.Execute(ctx); err != nil {
		return report(stderr, err)
	}
	return 0
}

func report(w io.Writer, err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(w, exitErr.Message)
		return exitErr.Code
	}
	fmt.Fprintln(w, err)
	return 1
}

// Execute builds the experiment, applies config updates and runs the command.
func (r *Runner) Execute(ctx context.Context) error {
	if r.Config == nil || r.Build == nil {
		return &ExitError{Code: 2, Message: "cli: runner needs a config and a builder"}
	}
	stdout := r.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := r.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	logger := logging.New(stderr, r.Config.Logging)
	store, closeStore, err := r.openRunStore(ctx)
	if err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}
	defer closeStore()

	if r.Config.Command == CommandRuns {
		return r.listRuns(ctx, store, stdout)
	}

	opts, err := r.options(ctx, logger, store)
	if err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}
	exp, err := r.Build(opts...)
	if err != nil {
		return &ExitError{Code: 1, Message: fmt.Sprintf("build experiment: %v", err)}
	}
	if err := r.applyConfigs(exp); err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	switch r.Config.Command {
	case CommandPrintConfig:
		return r.printConfig(exp, stdout)
	default:
		return r.run(ctx, exp, logger, stdout)
	}
}

func (r *Runner) options(ctx context.Context, logger *logging.Adapter, store runstore.Store) ([]experiment.Option, error) {
	opts := []experiment.Option{
		experiment.WithLogger(logger),
		experiment.WithEvaluatorLogger(logger),
		experiment.WithDeadOverridePolicy(r.Config.Policy),
	}

	cache := &experiment.MemoryProgramCache{}
	evaluator, err := experiment.NewEvaluator(r.Config.Engine, cache, nil)
	if err != nil {
		return nil, err
	}
	opts = append(opts, experiment.WithEvaluator(evaluator))

	var sinks artifact.MultiSink
	if r.Config.FileSinkDir != "" {
		sinks = append(sinks, artifact.FileSink{Dir: r.Config.FileSinkDir})
	}
	if r.Config.ObjectSink {
		objCfg, err := objectstore.ConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("object sink: %w", err)
		}
		objects, err := objectstore.Open(ctx, objCfg)
		if err != nil {
			return nil, fmt.Errorf("object sink: %w", err)
		}
		sinks = append(sinks, artifact.ObjectSink{
			Objects: objects,
			Prefix:  objCfg.Prefix,
			OnStored: func(key, sum string) {
				logger.Info("artifact uploaded", "bucket", objCfg.Bucket, "key", key, "sha256", sum)
			},
		})
	}
	if len(sinks) > 0 {
		opts = append(opts, experiment.WithSink(sinks))
	}

	if store != nil {
		opts = append(opts, experiment.WithActivityHooks(activity.Hooks{runstore.Hook{Store: store}}))
	}
	return append(opts, r.Options...), nil
}

func (r *Runner) openRunStore(ctx context.Context) (runstore.Store, func(), error) {
	noop := func() {}
	if r.RunStore != nil {
		return r.RunStore, noop, nil
	}
	switch r.Config.RunStore {
	case RunStoreMemory:
		return runstore.NewMemoryStore(), noop, nil
	case RunStorePostgres:
		dbCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			return nil, noop, fmt.Errorf("runstore: %w", err)
		}
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			return nil, noop, fmt.Errorf("runstore: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		return postgres.NewRunStore(db), closeDB(db), nil
	default:
		if r.Config.Command == CommandRuns {
			return nil, noop, errors.New("runs command needs -runstore")
		}
		return nil, noop, nil
	}
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

// applyConfigs defines named configs from the named-configs file, then
// applies every `with` name or file in order.
func (r *Runner) applyConfigs(exp *experiment.Experiment) error {
	if r.Config.NamedConfigsFile != "" {
		named, err := configfile.LoadNamed(r.Config.NamedConfigsFile)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(named))
		for name := range named {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := exp.DefineNamedConfig(name, named[name]); err != nil {
				return fmt.Errorf("named config %q: %w", name, err)
			}
		}
	}
	for _, token := range r.Config.Configs {
		if isConfigFile(token) {
			values, err := configfile.Load(token)
			if err != nil {
				return err
			}
			if err := exp.NamedConfig(token, values); err != nil {
				return err
			}
			continue
		}
		if err := exp.UseNamedConfig(token); err != nil {
			return err
		}
	}
	return nil
}

type configOutput struct {
	Experiment string                       `json:"experiment"`
	Config     []experiment.Entry           `json:"config"`
	Fields     []experiment.FieldDescriptor `json:"fields,omitempty"`
	Query      *queryOutput                 `json:"query,omitempty"`
}

type queryOutput struct {
	Expr   string `json:"expr"`
	Result any    `json:"result"`
}

func (r *Runner) printConfig(exp *experiment.Experiment, w io.Writer) error {
	snapshot, err := exp.Store().ResolveWith(r.Config.Overrides)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	var query *queryOutput
	if r.Config.Query != "" {
		value, err := exp.Evaluate(snapshot, r.Config.Query)
		if err != nil {
			return &ExitError{Code: 1, Message: err.Error()}
		}
		query = &queryOutput{Expr: r.Config.Query, Result: value}
	}

	if r.Config.JSON {
		return writeJSON(w, configOutput{
			Experiment: exp.Name(),
			Config:     snapshot.Entries(),
			Fields:     snapshot.Describe(),
			Query:      query,
		})
	}

	fmt.Fprintf(w, "Configuration (%s):\n", exp.Name())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, entry := range snapshot.Entries() {
		fmt.Fprintf(tw, "  %s\t= %s\t[%s %s]\n", entry.Key, formatValue(entry.Value), entry.Provenance, entry.Source)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if query != nil {
		fmt.Fprintf(w, "%s => %s\n", query.Expr, formatValue(query.Result))
	}
	return nil
}

type runOutput struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	Fingerprint string        `json:"config_fingerprint,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
	Result      any           `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	Query       *queryOutput  `json:"query,omitempty"`
}

func (r *Runner) run(ctx context.Context, exp *experiment.Experiment, logger *logging.Adapter, w io.Writer) error {
	run, runErr := exp.Run(ctx, r.Config.Overrides)

	var artifactErr *experiment.ArtifactError
	if runErr != nil && !errors.As(runErr, &artifactErr) {
		logger.Error("run did not complete", "run_id", run.ID, "status", run.State, "error", runErr)
		if r.Config.JSON && run.ID != "" {
			_ = writeJSON(w, runOutput{ID: run.ID, Status: string(run.State), Duration: run.Duration(), Error: runErr.Error()})
		}
		if errors.Is(runErr, experiment.ErrInterrupted) {
			return &ExitError{Code: 130, Message: runErr.Error()}
		}
		return &ExitError{Code: 1, Message: runErr.Error()}
	}
	logger.Info("run completed", "run_id", run.ID, "duration", run.Duration(), "config_fingerprint", run.Fingerprint)

	out := runOutput{
		ID:          run.ID,
		Status:      string(run.State),
		Fingerprint: run.Fingerprint,
		Duration:    run.Duration(),
		Result:      run.Result,
	}
	if r.Config.Query != "" {
		value, err := exp.EvaluateRun(run, r.Config.Query)
		if err != nil {
			return &ExitError{Code: 1, Message: err.Error()}
		}
		out.Query = &queryOutput{Expr: r.Config.Query, Result: value}
	}

	if r.Config.JSON {
		if err := writeJSON(w, out); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "Result: %s\n", formatValue(run.Result))
		if out.Query != nil {
			fmt.Fprintf(w, "%s => %s\n", out.Query.Expr, formatValue(out.Query.Result))
		}
	}

	if artifactErr != nil {
		return &ExitError{Code: 1, Message: artifactErr.Error()}
	}
	return nil
}

func (r *Runner) listRuns(ctx context.Context, store runstore.Store, w io.Writer) error {
	records, err := store.List(ctx, "", r.Config.Limit)
	if err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}
	if r.Config.JSON {
		return writeJSON(w, records)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEXPERIMENT\tSTATUS\tSTARTED\tDURATION")
	for _, record := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			record.ID,
			record.Experiment,
			record.Status,
			record.StartedAt.Format(time.RFC3339),
			record.Duration(),
		)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func formatValue(value any) string {
	if value == nil {
		return "null"
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(encoded)
}
