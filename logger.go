package experiment

// Logger receives structured engine messages as alternating key/value pairs.
// *slog.Logger satisfies it directly; pkg/logging adapts zerolog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LoggerFunc adapts a single function to Logger. The level is passed as the
// first argument.
type LoggerFunc func(level, msg string, args ...any)

func (f LoggerFunc) Debug(msg string, args ...any) { f.log("debug", msg, args) }
func (f LoggerFunc) Info(msg string, args ...any)  { f.log("info", msg, args) }
func (f LoggerFunc) Warn(msg string, args ...any)  { f.log("warn", msg, args) }
func (f LoggerFunc) Error(msg string, args ...any) { f.log("error", msg, args) }

func (f LoggerFunc) log(level, msg string, args []any) {
	if f != nil {
		f(level, msg, args...)
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
