// Package logging builds the zerolog logger used by the experiment runner and
// adapts it to the engine's key/value Logger interface.
package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	experiment "github.com/goliatone/go-experiment"
	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "EXPERIMENT_LOG_LEVEL"
	EnvLogFormat  = "EXPERIMENT_LOG_FORMAT"
	EnvLogNoColor = "EXPERIMENT_LOG_NOCOLOR"
)

type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

type Config struct {
	Level   zerolog.Level
	Format  Format
	NoColor bool
	App     string
}

func DefaultConfig() Config {
	return Config{
		Level:  zerolog.InfoLevel,
		Format: FormatConsole,
		App:    "experiment",
	}
}

// ApplyEnv overrides cfg from EXPERIMENT_LOG_* variables. Unparseable values
// are ignored.
func ApplyEnv(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if format, ok := parseFormat(os.Getenv(EnvLogFormat)); ok {
		cfg.Format = format
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseFormat(raw string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "json":
		return FormatJSON, true
	case "console", "text", "pretty":
		return FormatConsole, true
	default:
		return "", false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// NewZerolog builds a zerolog logger writing to w.
func NewZerolog(w io.Writer, cfg Config) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if cfg.Format != FormatJSON {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor,
		}
	}
	ctx := zerolog.New(w).Level(cfg.Level).With().Timestamp()
	if cfg.App != "" {
		ctx = ctx.Str("app", cfg.App)
	}
	return ctx.Logger()
}

// Adapter satisfies experiment.Logger and experiment.EvaluatorLogger on top
// of zerolog.
type Adapter struct {
	logger zerolog.Logger
}

func New(w io.Writer, cfg Config) *Adapter {
	return NewAdapter(NewZerolog(w, cfg))
}

func NewAdapter(logger zerolog.Logger) *Adapter {
	return &Adapter{logger: logger}
}

func (a *Adapter) Zerolog() zerolog.Logger {
	return a.logger
}

func (a *Adapter) Debug(msg string, args ...any) { a.write(a.logger.Debug(), msg, args) }
func (a *Adapter) Info(msg string, args ...any)  { a.write(a.logger.Info(), msg, args) }
func (a *Adapter) Warn(msg string, args ...any)  { a.write(a.logger.Warn(), msg, args) }
func (a *Adapter) Error(msg string, args ...any) { a.write(a.logger.Error(), msg, args) }

// LogEvaluation records snapshot queries at debug level, failures at warn.
func (a *Adapter) LogEvaluation(event experiment.EvaluatorLogEvent) {
	e := a.logger.Debug()
	if event.Err != nil {
		e = a.logger.Warn().Err(event.Err)
	}
	e.Str("engine", event.Engine).
		Str("expr", event.Expr).
		Str("target", event.Target).
		Dur("duration", event.Duration).
		Msg("snapshot query")
}

func (a *Adapter) write(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			e = e.Interface("!BADKEY", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		switch value := args[i+1].(type) {
		case error:
			e = e.AnErr(key, value)
		case time.Duration:
			e = e.Dur(key, value)
		case string:
			e = e.Str(key, value)
		default:
			e = e.Interface(key, value)
		}
	}
	e.Msg(msg)
}

var (
	_ experiment.Logger          = (*Adapter)(nil)
	_ experiment.EvaluatorLogger = (*Adapter)(nil)
)
