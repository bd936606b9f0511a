package logging

// Leveled logging for cipengine, backed by logrus.

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

// ParseLevel maps a config or flag value to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent", "quiet", "off":
		return LogLevelSilent, nil
	case "error":
		return LogLevelError, nil
	case "", "info":
		return LogLevelInfo, nil
	case "verbose":
		return LogLevelVerbose, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l LogLevel) String() string {
	switch l {
	case LogLevelSilent:
		return "silent"
	case LogLevelError:
		return "error"
	case LogLevelInfo:
		return "info"
	case LogLevelVerbose:
		return "verbose"
	case LogLevelDebug:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Logger writes leveled messages to the console and, optionally, a file.
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	format   string
	logEvery int
	counter  int
	file     *os.File
	fileLog  *logrus.Logger
	stdout   *logrus.Logger
	stderr   *logrus.Logger
}

// NewLogger creates a text logger that logs every message.
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	return NewLoggerWithOptions(level, logFile, "text", 1)
}

// NewLoggerWithOptions creates a logger. format is "text" or "json"; with
// logEvery > 1 only every Nth message reaches the console. The file, when
// present, receives every message.
func NewLoggerWithOptions(level LogLevel, logFile, format string, logEvery int) (*Logger, error) {
	if format == "" {
		format = "text"
	}
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
	if logEvery <= 0 {
		logEvery = 1
	}
	l := &Logger{
		level:    level,
		format:   format,
		logEvery: logEvery,
		stdout:   newBackend(os.Stdout, format, false),
		stderr:   newBackend(os.Stderr, format, false),
	}

	if logFile != "" {
		file, err := os.Create(logFile)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		l.file = file
		l.fileLog = newBackend(file, format, true)
	}

	return l, nil
}

// NewWriterLogger logs everything at or above level to w. Used for tests and
// for embedding the client in other programs.
func NewWriterLogger(level LogLevel, w io.Writer, format string) *Logger {
	if format == "" {
		format = "text"
	}
	return &Logger{
		level:    level,
		format:   format,
		logEvery: 1,
		fileLog:  newBackend(w, format, true),
		stdout:   newBackend(io.Discard, format, false),
		stderr:   newBackend(io.Discard, format, false),
	}
}

func newBackend(w io.Writer, format string, timestamps bool) *logrus.Logger {
	backend := logrus.New()
	backend.SetOutput(w)
	backend.SetLevel(logrus.TraceLevel)
	if format == "json" {
		backend.SetFormatter(&logrus.JSONFormatter{
			DisableTimestamp: !timestamps,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg: "message",
			},
		})
	} else {
		backend.SetFormatter(&logrus.TextFormatter{
			DisableColors:    true,
			DisableTimestamp: !timestamps,
			FullTimestamp:    timestamps,
		})
	}
	return backend
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.log(LogLevelError, nil, format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.log(LogLevelInfo, nil, format, v...)
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	l.log(LogLevelVerbose, nil, format, v...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log(LogLevelDebug, nil, format, v...)
}

// Fields is a set of structured key/value pairs attached to one message.
type Fields = logrus.Fields

// WithFields logs msg at level with structured fields.
func (l *Logger) WithFields(level LogLevel, fields Fields, format string, v ...interface{}) {
	l.log(level, fields, format, v...)
}

func (l *Logger) log(level LogLevel, fields Fields, format string, v ...interface{}) {
	if l == nil || level == LogLevelSilent {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level < level {
		return
	}
	msg := fmt.Sprintf(format, v...)
	isError := level == LogLevelError

	if l.fileLog != nil {
		l.fileLog.WithFields(fields).Log(backendLevel(level), msg)
	}

	// Errors always reach stderr; other levels reach stdout only when
	// verbose and only every logEvery-th message.
	if isError {
		l.stderr.WithFields(fields).Log(backendLevel(level), msg)
		return
	}
	if l.level < LogLevelVerbose {
		return
	}
	l.counter++
	if l.counter%l.logEvery != 0 {
		return
	}
	l.stdout.WithFields(fields).Log(backendLevel(level), msg)
}

func backendLevel(level LogLevel) logrus.Level {
	switch level {
	case LogLevelError:
		return logrus.ErrorLevel
	case LogLevelInfo:
		return logrus.InfoLevel
	case LogLevelVerbose:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	if l == nil {
		return LogLevelSilent
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// LogOperation logs one request/reply exchange. Failures are logged at Info,
// successes at Verbose.
func (l *Logger) LogOperation(operation, target, service string, success bool, rttMs float64, status uint8, err error) {
	if l == nil {
		return
	}
	fields := Fields{
		"op":      operation,
		"target":  target,
		"service": service,
		"status":  fmt.Sprintf("0x%02X", status),
		"rtt_ms":  fmt.Sprintf("%.3f", rttMs),
	}
	result := "SUCCESS"
	level := LogLevelVerbose
	if !success {
		result = "FAILED"
		level = LogLevelInfo
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.log(level, fields, "%s %s on %s (%.3fms)", result, operation, target, rttMs)
}

// LogStartup logs the resolved target and config at startup.
func (l *Logger) LogStartup(command, target string, timeoutMs int, configPath string) {
	l.Info("Starting cipengine %s", command)
	l.Verbose("  Target: %s", target)
	l.Verbose("  Timeout: %d ms", timeoutMs)
	if configPath != "" {
		l.Verbose("  Config: %s", configPath)
	}
}

// LogHex logs data as space separated hex bytes at Debug level.
func (l *Logger) LogHex(label string, data []byte) {
	if l.GetLevel() < LogLevelDebug {
		return
	}
	l.Debug("%s: % x", label, data)
}
