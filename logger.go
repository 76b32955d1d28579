package vecpq

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with quantizer-specific context.
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
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithKind adds the quantizer kind to the logger.
func (l *Logger) WithKind(kind Kind) *Logger {
	return &Logger{
		Logger: l.Logger.With("kind", kind.String()),
	}
}

// WithSubquantizer adds a subquantizer index field to the logger.
func (l *Logger) WithSubquantizer(idx int) *Logger {
	return &Logger{
		Logger: l.Logger.With("subquantizer", idx),
	}
}

// LogProjection logs the creation of a projection matrix.
func (l *Logger) LogProjection(instances, dimensions, subquantizers int, err error) {
	if err != nil {
		l.Error("projection matrix failed",
			"instances", instances,
			"dimensions", dimensions,
			"subquantizers", subquantizers,
			"error", err,
		)
		return
	}
	l.Info("projection matrix created",
		"instances", instances,
		"dimensions", dimensions,
		"subquantizers", subquantizers,
	)
}

// LogAttempt logs a single k-means attempt of a subquantizer.
func (l *Logger) LogAttempt(attempt int, loss float64) {
	l.Debug("subquantizer attempt finished",
		"attempt", attempt,
		"loss", loss,
	)
}

// LogSubquantizer logs the selected codebook of a subquantizer.
func (l *Logger) LogSubquantizer(attempts, best int, loss float64) {
	l.Info("subquantizer trained",
		"attempts", attempts,
		"best_attempt", best,
		"loss", loss,
	)
}

// LogTraining logs the outcome of a training run.
func (l *Logger) LogTraining(subquantizers, bits int, err error) {
	if err != nil {
		l.Error("training failed",
			"subquantizers", subquantizers,
			"bits", bits,
			"error", err,
		)
		return
	}
	l.Info("training completed",
		"subquantizers", subquantizers,
		"bits", bits,
	)
}
