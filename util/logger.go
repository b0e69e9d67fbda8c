// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Logger writes levelled messages to stderr through zerolog.  The
// console format prints "[INF] message key=value"; JSON mode emits one
// zerolog object per line.
type Logger struct {
	mu         sync.Mutex
	level      LogLevel
	output     io.Writer
	timestamps bool // if true, prepend timestamps
	json       bool
	fields     []field
	zl         zerolog.Logger
}

type field struct {
	key   string
	value interface{}
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = on
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.rebuild()
}

// SetJSON switches between the console format and JSON lines.
func (l *Logger) SetJSON(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.json = on
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that attaches key=value to every message.
// The child shares the parent's output and level.
func (l *Logger) With(key string, value interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	child := &Logger{
		level:      l.level,
		output:     l.output,
		timestamps: l.timestamps,
		json:       l.json,
		fields:     append(append([]field(nil), l.fields...), field{key, value}),
	}
	child.rebuild()
	return child
}

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write(zerolog.InfoLevel, format, args...)
	}
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write(zerolog.WarnLevel, format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.write(zerolog.DebugLevel, format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.write(zerolog.TraceLevel, format, args...)
	}
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(zerolog.ErrorLevel, format, args...)
}

func (l *Logger) write(level zerolog.Level, format string, args ...interface{}) {
	l.mu.Lock()
	zl := l.zl
	l.mu.Unlock()
	zl.WithLevel(level).Msgf(format, args...)
}

// rebuild recreates the zerolog backend; callers hold l.mu (or own l
// exclusively during construction).
func (l *Logger) rebuild() {
	out := zerolog.SyncWriter(l.output)

	var zl zerolog.Logger
	if l.json {
		zl = zerolog.New(out)
	} else {
		cw := zerolog.ConsoleWriter{
			Out:         out,
			NoColor:     true,
			TimeFormat:  "15:04:05.000",
			FormatLevel: formatLevel,
		}
		if !l.timestamps {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		zl = zerolog.New(cw)
	}

	zc := zl.Level(zerolog.TraceLevel).With()
	if l.timestamps {
		zc = zc.Timestamp()
	}
	for _, f := range l.fields {
		zc = zc.Interface(f.key, f.value)
	}
	l.zl = zc.Logger()
}

// formatLevel renders zerolog levels with the short tags used by the
// CLI.  Debug and trace map to the Verbose and Debug methods.
func formatLevel(i interface{}) string {
	switch fmt.Sprint(i) {
	case zerolog.LevelTraceValue:
		return "[DBG]"
	case zerolog.LevelDebugValue:
		return "[VRB]"
	case zerolog.LevelInfoValue:
		return "[INF]"
	case zerolog.LevelWarnValue:
		return "[WRN]"
	case zerolog.LevelErrorValue:
		return "[ERR]"
	default:
		return "[???]"
	}
}
