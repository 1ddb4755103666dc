// Package logging wraps zerolog with the small surface the agent needs:
// leveled key-value logging plus a hook that mirrors entries into
// out-of-band sinks.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ParseLevel converts a string to a zerolog level. Unknown strings fall back
// to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Hook receives every emitted entry at or above the logger level.
type Hook func(level, event string, fields map[string]interface{})

// Logger is the agent's structured logger. Derived loggers share the hook,
// so installing it once on the root covers every component.
type Logger struct {
	zl        zerolog.Logger
	component string
	fields    map[string]interface{}
	hook      *Hook
}

// Config holds logger configuration
type Config struct {
	Level      string
	Output     string // "stdout", "stderr", or file path
	Component  string
	JSONFormat bool
}

// New creates a new logger with the given configuration
func New(cfg *Config) *Logger {
	var output io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		output = os.Stderr
	} else if cfg.Output != "" && cfg.Output != "stdout" {
		if file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			output = file
		}
	}
	if !cfg.JSONFormat {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}
	zl := zerolog.New(output).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	return &Logger{
		zl:        zl,
		component: cfg.Component,
		fields:    make(map[string]interface{}),
		hook:      new(Hook),
	}
}

// SetHook installs the entry hook. Call once at startup before the scheduler
// runs; derived loggers see it through the shared pointer.
func (l *Logger) SetHook(h Hook) {
	*l.hook = h
}

// WithComponent returns a new logger with the specified component
func (l *Logger) WithComponent(component string) *Logger {
	n := l.clone()
	n.component = component
	return n
}

// WithField returns a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	n := l.clone()
	n.fields[key] = value
	return n
}

// WithError returns a new logger with an error field
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	n := l.clone()
	n.fields["error"] = err.Error()
	return n
}

func (l *Logger) clone() *Logger {
	fields := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	return &Logger{
		zl:        l.zl,
		component: l.component,
		fields:    fields,
		hook:      l.hook,
	}
}

// log emits one entry. Variadic args are key-value pairs; error values are
// flattened to their message.
func (l *Logger) log(level zerolog.Level, msg string, args ...interface{}) {
	if level < l.zl.GetLevel() {
		return
	}

	fields := make(map[string]interface{}, len(l.fields)+len(args)/2)
	for k, v := range l.fields {
		fields[k] = v
	}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		if err, isErr := args[i+1].(error); isErr {
			if err != nil {
				fields[key] = err.Error()
			}
			continue
		}
		fields[key] = args[i+1]
	}

	ev := l.zl.WithLevel(level)
	if l.component != "" {
		ev = ev.Str("component", l.component)
	}
	ev.Fields(fields).Msg(msg)

	if hook := *l.hook; hook != nil {
		hook(strings.ToUpper(level.String()), msg, fields)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) { l.log(zerolog.DebugLevel, msg, args...) }

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) { l.log(zerolog.InfoLevel, msg, args...) }

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) { l.log(zerolog.WarnLevel, msg, args...) }

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) { l.log(zerolog.ErrorLevel, msg, args...) }
