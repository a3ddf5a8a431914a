package logger

import "codeberg.org/mutker/ecoguard/internal/errors"

// Logger defines the interface for logging operations. Components that emit
// diagnostics take a Logger instead of reaching for the package-level one.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	ErrorWithCode(err errors.Coded) *LogEvent
	With(component string) Logger
}
