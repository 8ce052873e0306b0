package sfmgo

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with pipeline-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithView adds a view field to the logger.
func (l *Logger) WithView(view int) *Logger {
	return &Logger{
		Logger: l.Logger.With("view", view),
	}
}

// WithPair adds the two view ids of a pair to the logger.
func (l *Logger) WithPair(view1, view2 int) *Logger {
	return &Logger{
		Logger: l.Logger.With("view1", view1, "view2", view2),
	}
}

// LogMatching logs the outcome of the pairwise matching stage.
func (l *Logger) LogMatching(ctx context.Context, numViews, numPairs int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "pairwise matching failed",
			"views", numViews,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "pairwise matching completed",
			"views", numViews,
			"verifiedPairs", numPairs,
			"duration", duration,
		)
	}
}

// LogTrackBuilding logs the outcome of the track building stage.
func (l *Logger) LogTrackBuilding(ctx context.Context, numTracks int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "track building failed", "error", err)
	} else {
		l.InfoContext(ctx, "track building completed",
			"tracks", numTracks,
			"duration", duration,
		)
	}
}

// LogReconstruction logs the outcome of the incremental reconstruction stage.
func (l *Logger) LogReconstruction(ctx context.Context, numCameras, numPoints int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "reconstruction failed", "error", err)
	} else {
		l.InfoContext(ctx, "reconstruction completed",
			"cameras", numCameras,
			"points", numPoints,
			"duration", duration,
		)
	}
}
