package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "angple-chat"

var zlog = newLogger(os.Stdout, zerolog.InfoLevel)

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Setup configures the process logger. Local environments write a console
// format, everything else writes JSON lines to stdout. level is a zerolog
// level name; empty or unknown falls back to info.
func Setup(env, level string) {
	// message timestamps are epoch millis, keep log lines comparable
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	var w io.Writer = os.Stdout
	switch env {
	case "local", "dev", "development", "test":
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	}
	zlog = newLogger(w, ParseLevel(level))
}

// ParseLevel maps LOG_LEVEL values to a zerolog level
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// GetLogger returns the process logger
func GetLogger() *zerolog.Logger {
	return &zlog
}

// ForRequest derives the logger attached to one HTTP request or WebSocket session
func ForRequest(requestID string) zerolog.Logger {
	return zlog.With().Str("request_id", requestID).Logger()
}

// WithContext stores l on ctx for FromContext
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// FromContext returns the request logger on ctx, or the process logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &zlog
}

// ForUser tags the context logger with the identity a session belongs to
func ForUser(ctx context.Context, userID string) zerolog.Logger {
	return FromContext(ctx).With().Str("user_id", userID).Logger()
}
