package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithJob returns a logger with job context fields attached. Use this for all
// logging within a lane handler.
func WithJob(lane, jobID string) *slog.Logger {
	return slog.With(
		"lane", lane,
		"job_id", jobID,
	)
}

// WithPseudonym returns a logger scoped to a user. Only the pseudonym is ever
// attached; raw ids must never reach the log stream.
func WithPseudonym(logger *slog.Logger, pseudonymID string) *slog.Logger {
	return logger.With("pseudonym", pseudonymID)
}
