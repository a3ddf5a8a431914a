package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/ecoguard/internal/errors"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var log zerolog.Logger = zerolog.Nop()

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// zlog adapts a zerolog.Logger to the Logger interface
type zlog struct {
	l zerolog.Logger
}

// Init initializes the package logger with the given level name
func Init(level string, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		NoColor:    isService,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()

	SetLogLevel(ParseLevel(level))
}

// New returns a Logger writing JSON lines to w. Tests pass
// zerolog.NewTestWriter(t) to route output through t.Log.
func New(w io.Writer) Logger {
	return &zlog{l: zerolog.New(w).With().Timestamp().Logger()}
}

// Nop returns a Logger that discards everything
func Nop() Logger {
	return &zlog{l: zerolog.Nop()}
}

// Default returns the package logger as a Logger value
func Default() Logger {
	return &zlog{l: log}
}

// ParseLevel maps a config level name onto LogLevel. Unknown names map to
// InfoLevel; config validation rejects them before they reach here.
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if os.Getenv("INVOCATION_ID") != "" || os.Getenv("SERVICE_NAME") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Coded) *LogEvent {
	return withCode(log.Error(), err)
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Coded) *LogEvent {
	return withCode(log.Fatal(), err)
}

func withCode(e *zerolog.Event, err errors.Coded) *LogEvent {
	return &LogEvent{e.
		Str("error_code", string(err.Code())).
		AnErr("error", err)}
}

func (z *zlog) Debug() *LogEvent { return &LogEvent{z.l.Debug()} }
func (z *zlog) Info() *LogEvent  { return &LogEvent{z.l.Info()} }
func (z *zlog) Warn() *LogEvent  { return &LogEvent{z.l.Warn()} }
func (z *zlog) Error() *LogEvent { return &LogEvent{z.l.Error()} }

func (z *zlog) ErrorWithCode(err errors.Coded) *LogEvent {
	return withCode(z.l.Error(), err)
}

func (z *zlog) With(component string) Logger {
	return &zlog{l: z.l.With().Str("component", component).Logger()}
}
