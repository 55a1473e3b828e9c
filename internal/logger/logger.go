// Package logger configures the process-wide structured log output.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/config"
)

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New builds the root JSON logger for a coordinator process. Every
// record carries the service name so output from multiple coordinators
// aggregates cleanly; per-request correlation attributes are added by
// the HTTP middleware, not here.
func New(cfg config.Logging) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level(cfg.Level),
	})
	return slog.New(handler).With("service", cfg.Service)
}

// level maps a config string to a slog.Level, defaulting to info.
func level(s string) slog.Level {
	if l, ok := levels[strings.ToLower(s)]; ok {
		return l
	}
	return slog.LevelInfo
}
