package audit

import (
	"context"
	"log/slog"
)

// LogSink writes entries to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Write logs entry at warn level for failures and info level otherwise.
func (s LogSink) Write(ctx context.Context, entry Entry) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if !entry.Success {
		level = slog.LevelWarn
	}
	logger.LogAttrs(ctx, level, "security audit",
		slog.String("audit_id", entry.ID),
		slog.String("action", entry.Action),
		slog.String("resource", entry.Resource),
		slog.String("user_id", entry.UserID),
		slog.String("ip", entry.IP),
		slog.String("user_agent", entry.UserAgent),
		slog.Bool("success", entry.Success),
		slog.Any("details", entry.Details),
	)
	return nil
}
