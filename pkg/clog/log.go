// Package clog configures concache's default logger and exposes the
// invariant-violation helper every other package uses to flag impossible
// internal states without crashing the process.
package clog

import (
	"flag"
	"log/slog"
	"os"
	"strings"
)

type HandlerType string

const (
	HandlerTypeText HandlerType = "text"
	HandlerTypeJSON HandlerType = "json"
)

type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

var (
	handlerTypeFlag = flag.String("log_handler_type", string(HandlerTypeJSON), "Log handler type: json/text")
	logLevelFlag    = flag.String("log_level", string(LevelInfo), "Log level: debug/info/warn/error")
)

// InitWith configures the default slog logger with explicit settings. Exposed separately from Init
// so embedders that don't want concache registering its own flags can still opt in to its log shape.
func InitWith(handlerType HandlerType, level Level) {
	slogLevel := slog.LevelInfo
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		RaiseInvariant("clog", "unsupported_log_level", "Got an unsupported log level.", "level", level)
	}

	opts := slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	switch handlerType {
	case HandlerTypeJSON:
		handler = slog.NewJSONHandler(os.Stdout, &opts)
	case HandlerTypeText:
		handler = slog.NewTextHandler(os.Stdout, &opts)
	default:
		RaiseInvariant("clog", "unsupported_handler_type", "Got an unsupported handler type.", "handlerType", handlerType)
		handler = slog.NewJSONHandler(os.Stdout, &opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Debug("Log handler configured.", "type", handlerType, "level", level)
}

// Init configures the default logger from the -log_handler_type/-log_level flags.
// Must be called after flag.Parse().
func Init() {
	InitWith(HandlerType(strings.ToLower(*handlerTypeFlag)), Level(strings.ToLower(*logLevelFlag)))
}

// ForCache returns a logger that tags every record with cache_id, so log lines from a single cache
// instance can be isolated in a process running more than one (e.g. via pkg/registry). Cache and its
// owner loop do not call it; their cache-scoped reports go through RaiseCacheInvariant.
func ForCache(cacheID string) *slog.Logger {
	return slog.Default().With("cache_id", cacheID)
}
