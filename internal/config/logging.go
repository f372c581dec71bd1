package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jrick/logrotate/rotator"
	"github.com/rs/zerolog"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelDebug
)

// ParseLogLevel parses a log level string.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogLevelOff
	case "error":
		return LogLevelError
	case "info":
		return LogLevelInfo
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelOff:
		return "off"
	case LogLevelError:
		return "error"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	default:
		return "error"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelOff:
		return zerolog.Disabled
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.ErrorLevel
	}
}

// RotateOptions bounds the log file. MaxSizeKB of 0 disables rotation.
type RotateOptions struct {
	MaxSizeKB int64
	MaxFiles  int
}

// logSink is shared by a logger and its component loggers.
type logSink struct {
	mu     sync.RWMutex
	level  LogLevel
	closer io.Closer
	path   string
}

// Logger writes JSON lines through zerolog.
type Logger struct {
	zl   zerolog.Logger
	sink *logSink
}

// NewLogger creates a logger appending to filePath without rotation.
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	return NewRotatingLogger(level, filePath, RotateOptions{})
}

// NewRotatingLogger creates a logger writing to filePath, rolling the file
// over once it reaches opts.MaxSizeKB.
func NewRotatingLogger(level LogLevel, filePath string, opts RotateOptions) (*Logger, error) {
	if level == LogLevelOff || filePath == "" {
		return &Logger{zl: zerolog.Nop(), sink: &logSink{level: level}}, nil
	}

	filePath = ExpandPath(filePath)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return nil, err
	}

	var out io.WriteCloser
	if opts.MaxSizeKB > 0 {
		r, err := rotator.New(filePath, opts.MaxSizeKB, false, opts.MaxFiles)
		if err != nil {
			return nil, fmt.Errorf("creating log rotator: %w", err)
		}
		out = r
	} else {
		// #nosec G304 -- log file path is from validated config
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, err
		}
		out = f
	}

	l := newWriterLogger(level, out)
	l.sink.closer = out
	l.sink.path = filePath
	return l, nil
}

// NewWriterLogger creates a logger writing to w.
func NewWriterLogger(level LogLevel, w io.Writer) *Logger {
	return newWriterLogger(level, w)
}

func newWriterLogger(level LogLevel, w io.Writer) *Logger {
	zl := zerolog.New(zerolog.SyncWriter(w)).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Logger()
	return &Logger{zl: zl, sink: &logSink{level: level}}
}

// Component returns a logger tagging every line with component. It shares
// the level and file of l.
func (l *Logger) Component(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger(), sink: l.sink}
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.closer == nil {
		return nil
	}
	err := l.sink.closer.Close()
	l.sink.closer = nil
	return err
}

// Path returns the log file path, or "" when not logging to a file.
func (l *Logger) Path() string {
	return l.sink.path
}

// SetLevel changes the log level.
func (l *Logger) SetLevel(level LogLevel) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	return l.sink.level
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LogLevelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.log(LogLevelInfo, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LogLevelError, format, args...)
}

// Writer returns an io.Writer that writes to the logger at the specified level.
func (l *Logger) Writer(level LogLevel) io.Writer {
	return &logWriter{logger: l, level: level}
}

// log writes a log message if the level is appropriate.
func (l *Logger) log(level LogLevel, format string, args ...any) {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()

	if l.sink.level == LogLevelOff || level > l.sink.level {
		return
	}
	l.zl.WithLevel(level.zerolog()).Msgf(format, args...)
}

// logWriter implements io.Writer for the logger.
type logWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.logger.log(w.level, "%s", strings.TrimSpace(string(p)))
	return len(p), nil
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return &Logger{zl: zerolog.Nop(), sink: &logSink{level: LogLevelOff}}
}
