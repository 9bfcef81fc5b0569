package logger

import (
	"io"
	"os"
	"syscall"
	"time"

	"codeberg.org/mutker/envirod/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stdout).With().Timestamp().Logger()

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

// Init initializes the logger for the given level name
func Init(level string, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
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

// ParseLevel maps a configured level name to a LogLevel, defaulting to info
func ParseLevel(level string) LogLevel {
	switch level {
	case "debug":
		return DebugLevel
	case "warning", "warn":
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
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
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

// ErrorWithCode logs an error message with its error code, if any
func ErrorWithCode(err error) *LogEvent {
	return withCode(log.Error(), err)
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with its error code and exits the program
func FatalWithCode(err error) *LogEvent {
	return withCode(log.Fatal(), err)
}

func withCode(e *zerolog.Event, err error) *LogEvent {
	return &LogEvent{e.
		Str("error_code", string(errors.CodeOf(err))).
		Err(err)}
}

// zlogger adapts a zerolog.Logger to the Logger interface
type zlogger struct {
	zl zerolog.Logger
}

// Default returns a Logger bound to the package-level logger configured by Init
func Default() Logger {
	return &zlogger{zl: log}
}

// New returns a Logger writing JSON lines to w
func New(w io.Writer) Logger {
	return &zlogger{zl: zerolog.New(w).With().Timestamp().Logger()}
}

// Nop returns a Logger that discards everything
func Nop() Logger {
	return &zlogger{zl: zerolog.Nop()}
}

func (l *zlogger) Debug() *LogEvent { return &LogEvent{l.zl.Debug()} }
func (l *zlogger) Info() *LogEvent  { return &LogEvent{l.zl.Info()} }
func (l *zlogger) Warn() *LogEvent  { return &LogEvent{l.zl.Warn()} }
func (l *zlogger) Error() *LogEvent { return &LogEvent{l.zl.Error()} }

func (l *zlogger) ErrorWithCode(err error) *LogEvent {
	return withCode(l.zl.Error(), err)
}

func (l *zlogger) With(component string) Logger {
	return &zlogger{zl: l.zl.With().Str("component", component).Logger()}
}
