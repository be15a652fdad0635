// Package telemetry configures the process-wide structured logger and
// carries a job-scoped logger through a request's lifecycle via context.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// levelByName maps LOG_LEVEL's accepted values to their slog.Level. Anything
// else, including an unset variable, resolves to slog.LevelInfo.
var levelByName = map[string]slog.Level{
	"DEBUG": slog.LevelDebug,
	"WARN":  slog.LevelWarn,
	"ERROR": slog.LevelError,
}

func resolveLevel() slog.Level {
	if lvl, ok := levelByName[os.Getenv("LOG_LEVEL")]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// newJSONHandler and newTextHandler share a signature so Setup can pick
// between them by swapping one function variable instead of a format switch.
func newJSONHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewJSONHandler(w, opts)
}

func newTextHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewTextHandler(w, opts)
}

// Setup builds and installs the process default logger, then returns it.
//
// LOG_LEVEL selects the minimum level (DEBUG, INFO, WARN, ERROR; default
// INFO). LOG_FORMAT selects the handler: "text" for local development,
// anything else (default) for JSON, the shape a log aggregator expects in
// production.
func Setup() *slog.Logger {
	level := resolveLevel()
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	newHandler := newJSONHandler
	if os.Getenv("LOG_FORMAT") == "text" {
		newHandler = newTextHandler
	}

	logger := slog.New(newHandler(os.Stdout, opts))
	slog.SetDefault(logger)
	return logger
}

type ctxKey struct{}

// WithLogger attaches logger to ctx, so it can ride along a job from the
// executor to the reporter without being threaded through every function
// signature.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger attached to ctx by WithLogger, or the
// process default if ctx carries none.
func FromContext(ctx context.Context) *slog.Logger {
	return FromContextOr(ctx, slog.Default())
}

// FromContextOr returns the logger attached to ctx by WithLogger, or
// fallback if ctx carries none. Useful for a component with its own
// constructor-supplied logger that should still pick up job-scoped fields
// a caller attached to ctx upstream.
func FromContextOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return fallback
}

// ForJob returns a logger annotated with the job and target host a work
// item carries through its whole lifecycle: pulled from the coordinator,
// rate-limited, executed, and reported, always as the same (job_id, host)
// pair, unlike independent per-entity IDs that travel separately.
func ForJob(logger *slog.Logger, jobID, host string) *slog.Logger {
	return logger.With("job_id", jobID, "host", host)
}
