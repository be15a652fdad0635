// Command ezworker runs a single worker: it polls Clockwork for HTTP jobs,
// rate-limits per target host, executes them, and reports results back.
// Workers scale horizontally; each one is independent and stateless beyond
// its in-memory rate limiter and queue.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ezworker/ezworker"
	"github.com/ezworker/ezworker/internal/config"
	"github.com/ezworker/ezworker/internal/telemetry"
)

func main() {
	logger := telemetry.Setup()
	logger.Info("starting ezworker")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.LoadFromEnv()
	logger.Info("loaded config",
		"coordinator_url", cfg.CoordinatorURL,
		"worker_id", cfg.WorkerID,
		"region", cfg.Region,
		"executor_count", cfg.ExecutorCount,
		"queue_size", cfg.QueueSize,
	)

	orch, err := ezworker.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	if err := orch.Run(ctx); err != nil {
		logger.Error("orchestrator exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("ezworker stopped")
}
