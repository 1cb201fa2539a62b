package logging

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.Mutex
	logger zerolog.Logger
	inited bool
)

// Init configures the global logger. Level is one of debug, info, warn,
// error. Format "json" emits structured JSON; anything else uses the
// human-readable console writer.
func Init(level, format string) {
	mu.Lock()
	defer mu.Unlock()

	lvl := parseLevel(level)

	var out = zerolog.New(os.Stderr)
	if format != "json" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger = out.Level(lvl).With().Timestamp().Logger()
	inited = true
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// L returns the global logger, initializing it with defaults on first use.
func L() zerolog.Logger {
	mu.Lock()
	ok := inited
	mu.Unlock()
	if !ok {
		Init("info", "console")
	}
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Debug logs a debug message with alternating key/value fields.
func Debug(msg string, kv ...any) {
	l := L()
	emit(l.Debug(), msg, kv)
}

// Info logs an info message with alternating key/value fields.
func Info(msg string, kv ...any) {
	l := L()
	emit(l.Info(), msg, kv)
}

// Warn logs a warning with alternating key/value fields.
func Warn(msg string, kv ...any) {
	l := L()
	emit(l.Warn(), msg, kv)
}

// Error logs an error message with alternating key/value fields.
func Error(msg string, kv ...any) {
	l := L()
	emit(l.Error(), msg, kv)
}

func emit(ev *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}
