package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	experiment "github.com/goliatone/go-experiment"
	"github.com/goliatone/go-experiment/pkg/configfile"
	"github.com/goliatone/go-experiment/pkg/logging"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Command selects what the runner does once the experiment is built.
type Command string

const (
	CommandRun         Command = "run"
	CommandPrintConfig Command = "print_config"
	CommandRuns        Command = "runs"
)

// Run store backends accepted by -runstore.
const (
	RunStoreNone     = ""
	RunStoreMemory   = "memory"
	RunStorePostgres = "postgres"
)

// Config is the parsed command line.
type Config struct {
	Command Command
	// Overrides holds key=value tokens, later tokens winning.
	Overrides map[string]any
	// Configs lists named configs and config files in the order given.
	Configs []string
	// NamedConfigsFile defines named configs before Configs are applied.
	NamedConfigsFile string

	Query       string
	Engine      string
	JSON        bool
	FileSinkDir string
	ObjectSink  bool
	RunStore    string
	Limit       int
	Policy      experiment.DeadOverridePolicy
	Logging     logging.Config
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Config, bool, error) {
	flagSet := flag.NewFlagSet("experiment", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
Run a configured experiment.

Usage:
  experiment [options] [run|print_config|runs] [with UPDATE...]

Updates:
  key=value     override a configuration value (value is a literal: 4, 1.5, "s", true, [1, 2], {"k": 1})
  NAME          apply the named config NAME
  FILE.yaml     apply a YAML or JSON config file

Options:
`)
		flagSet.PrintDefaults()
	}

	logCfg := logging.DefaultConfig()
	logging.ApplyEnv(&logCfg)

	printConfigFlag := flagSet.Bool("print-config", false, "Print the resolved configuration instead of running.")
	queryFlag := flagSet.String("query", "", "Evaluate an expression against the configuration (after the run when running).")
	engineFlag := flagSet.String("engine", "expr", "Query engine. Options: 'expr', 'cel', 'js'.")
	jsonFlag := flagSet.Bool("json", false, "Write output as JSON.")
	fileSinkFlag := flagSet.String("file-sink", "", "Directory receiving <run id>/output.json for completed runs.")
	objectSinkFlag := flagSet.Bool("object-sink", false, "Upload completed runs to object storage (EXPERIMENT_MINIO_* settings).")
	runStoreFlag := flagSet.String("runstore", "", "Record runs. Options: 'memory', 'postgres' (EXPERIMENT_DATABASE_* settings).")
	limitFlag := flagSet.Int("limit", 20, "Number of runs listed by the runs command.")
	namedFlag := flagSet.String("named-configs", "", "YAML or JSON file whose top-level keys define named configs.")
	policyFlag := flagSet.String("policy", string(experiment.DeadOverrideWarn), "Overrides of undeclared keys. Options: 'warn', 'ignore', 'error'.")
	logLevelFlag := flagSet.String("log-level", logCfg.Level.String(), "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	logFormatFlag := flagSet.String("log-format", string(logCfg.Format), "Log output format. Options: 'console' or 'json'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	cfg := &Config{
		Command:          CommandRun,
		Overrides:        map[string]any{},
		NamedConfigsFile: strings.TrimSpace(*namedFlag),
		Query:            strings.TrimSpace(*queryFlag),
		Engine:           strings.ToLower(strings.TrimSpace(*engineFlag)),
		JSON:             *jsonFlag,
		FileSinkDir:      strings.TrimSpace(*fileSinkFlag),
		ObjectSink:       *objectSinkFlag,
		RunStore:         strings.ToLower(strings.TrimSpace(*runStoreFlag)),
		Limit:            *limitFlag,
		Logging:          logCfg,
	}
	if *printConfigFlag {
		cfg.Command = CommandPrintConfig
	}

	switch cfg.Engine {
	case "expr", "cel", "js":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid engine: must be 'expr', 'cel' or 'js'"}
	}

	switch cfg.RunStore {
	case RunStoreNone, RunStoreMemory, RunStorePostgres:
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid runstore: must be 'memory' or 'postgres'"}
	}

	policy := strings.ToLower(strings.TrimSpace(*policyFlag))
	switch experiment.DeadOverridePolicy(policy) {
	case experiment.DeadOverrideWarn, experiment.DeadOverrideIgnore, experiment.DeadOverrideError:
		cfg.Policy = experiment.DeadOverridePolicy(policy)
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid policy: must be 'warn', 'ignore' or 'error'"}
	}

	level, ok := logging.ParseLevel(*logLevelFlag)
	if !ok {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	cfg.Logging.Level = level

	switch format := logging.Format(strings.ToLower(*logFormatFlag)); format {
	case logging.FormatConsole, logging.FormatJSON:
		cfg.Logging.Format = format
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'console' or 'json'"}
	}

	if err := parseUpdates(cfg, flagSet.Args()); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// parseUpdates reads `[command] [with token...]`.
func parseUpdates(cfg *Config, rest []string) error {
	if len(rest) > 0 {
		switch Command(strings.ReplaceAll(rest[0], "-", "_")) {
		case CommandRun:
			rest = rest[1:]
		case CommandPrintConfig:
			cfg.Command = CommandPrintConfig
			rest = rest[1:]
		case CommandRuns:
			cfg.Command = CommandRuns
			rest = rest[1:]
		}
	}
	if len(rest) == 0 {
		return nil
	}
	if rest[0] != "with" {
		return &ExitError{Code: 2, Message: fmt.Sprintf("unexpected argument %q: updates follow 'with'", rest[0])}
	}
	if cfg.Command == CommandRuns {
		return &ExitError{Code: 2, Message: "the runs command takes no updates"}
	}
	for _, token := range rest[1:] {
		token = strings.TrimSpace(token)
		switch {
		case token == "":
			continue
		case strings.Contains(token, "="):
			key, value, err := experiment.ParseOverride(token)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			cfg.Overrides[key] = value
		default:
			cfg.Configs = append(cfg.Configs, token)
		}
	}
	return nil
}

// isConfigFile reports whether a `with` token names a file rather than a
// named config.
func isConfigFile(token string) bool {
	return configfile.IsConfigFile(token)
}
