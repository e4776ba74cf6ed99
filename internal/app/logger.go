package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a configured slog.Logger based on configuration.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelInfo}
	if cfg != nil {
		opts.Level = parseLevel(cfg.LogLevel)
	}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
