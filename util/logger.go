// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// zap has no level between Debug and Info, so Verbose takes zap's Debug
// slot and Debug sits one below it.
const (
	zapVerbose = zapcore.DebugLevel
	zapDebug   = zapcore.DebugLevel - 1
)

// Logger writes levelled messages to stderr with optional timestamps
// and level prefixes.  It is a thin printf-style front over a zap core
// so that an optional rotating log file can be teed in.
type Logger struct {
	level      LogLevel
	mu         sync.Mutex
	output     io.Writer
	file       *lumberjack.Logger
	timestamps bool // if true, prepend HH:MM:SS.mmm timestamps
	z          *zap.Logger
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

// SetFile additionally writes every enabled message to a size-rotated
// log file.  An empty path disables file output.
func (l *Logger) SetFile(path string, maxSizeMB, maxBackups int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close() //nolint:errcheck
		l.file = nil
	}
	if path != "" {
		l.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxInt(maxSizeMB, 1),
			MaxBackups: maxInt(maxBackups, 1),
		}
	}
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(zapcore.InfoLevel, format, args...)
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(zapcore.WarnLevel, format, args...)
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.write(zapVerbose, format, args...)
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(zapDebug, format, args...)
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(zapcore.ErrorLevel, format, args...)
}

// Close flushes buffered output and releases the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.z.Sync()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.rebuild()
		return err
	}
	return nil
}

func (l *Logger) write(lvl zapcore.Level, format string, args ...interface{}) {
	l.mu.Lock()
	z := l.z
	l.mu.Unlock()

	if !z.Core().Enabled(lvl) {
		return
	}
	if ce := z.Check(lvl, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

// rebuild recreates the zap core.  Callers hold l.mu.
func (l *Logger) rebuild() {
	enabled := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= minZapLevel(l.level)
	})

	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(l.timestamps), zapcore.Lock(zapcore.AddSync(l.output)), enabled),
	}
	if l.file != nil {
		cores = append(cores, zapcore.NewCore(newEncoder(true), zapcore.AddSync(l.file), enabled))
	}
	l.z = zap.New(zapcore.NewTee(cores...))
}

func minZapLevel(level LogLevel) zapcore.Level {
	switch {
	case level <= LogQuiet:
		return zapcore.ErrorLevel
	case level == LogNormal:
		return zapcore.InfoLevel
	case level == LogVerbose:
		return zapVerbose
	default:
		return zapDebug
	}
}

func newEncoder(timestamps bool) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		EncodeLevel:      encodeTag,
		EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05.000"),
		ConsoleSeparator: " ",
		LineEnding:       zapcore.DefaultLineEnding,
	}
	if timestamps {
		cfg.TimeKey = "ts"
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func encodeTag(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch {
	case lvl < zapVerbose:
		enc.AppendString("[DBG]")
	case lvl == zapVerbose:
		enc.AppendString("[VRB]")
	case lvl == zapcore.InfoLevel:
		enc.AppendString("[INF]")
	case lvl == zapcore.WarnLevel:
		enc.AppendString("[WRN]")
	default:
		enc.AppendString("[ERR]")
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
