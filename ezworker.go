// Package ezworker wires up a job-execution worker: it polls a coordinator
// for HTTP jobs, rate-limits per target host, executes them, and reports
// results back, all behind a single Orchestrator entry point.
package ezworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ezworker/ezworker/internal/config"
	"github.com/ezworker/ezworker/internal/executor"
	"github.com/ezworker/ezworker/internal/health"
	"github.com/ezworker/ezworker/internal/httpclient"
	"github.com/ezworker/ezworker/internal/poller"
	"github.com/ezworker/ezworker/internal/queue"
	"github.com/ezworker/ezworker/internal/ratelimit"
	"github.com/ezworker/ezworker/internal/reporter"
)

// ErrAlreadyRunning is returned by Run if the orchestrator has already been
// started.
var ErrAlreadyRunning = errors.New("orchestrator already running")

// ErrNotRunning is returned by Stop if the orchestrator was never started.
var ErrNotRunning = errors.New("orchestrator not running")

// state values for Orchestrator.state.
const (
	stateInit = iota
	stateRunning
	stateStopping
	stateStopped
)

// Orchestrator owns every long-lived component of the worker and drives
// their startup and shutdown as one unit.
type Orchestrator struct {
	cfg *config.Config

	queue    *queue.Queue
	limiter  *ratelimit.Limiter
	http     *httpclient.Client
	poller   *poller.Poller
	pool     *executor.Pool
	reporter *reporter.Reporter
	metrics  *health.Metrics
	health   *health.Server
	logger   *slog.Logger

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates cfg, applies defaults, and wires every component together.
// It does not start anything; call Run for that.
func New(cfg *config.Config, logger *slog.Logger) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := httpclient.New(httpclient.DefaultTransportConfig())

	limiter := ratelimit.New(ratelimit.Config{
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		Logger:             logger,
	})

	q := queue.New(cfg.QueueSize)

	rep := reporter.New(httpClient.Raw(), cfg.CoordinatorURL, logger)

	metrics := health.NewMetrics()

	pollr := poller.New(httpClient.Raw(), q, poller.Config{
		BaseURL:             cfg.CoordinatorURL,
		WorkerID:            cfg.WorkerID,
		Region:              cfg.Region,
		IntervalSeconds:     cfg.PollIntervalSeconds,
		MaxJitter:           cfg.PollJitter(),
		PullLimit:           cfg.PullLimit,
		AllowHTTPSDowngrade: !cfg.ProductionMode,
	}, logger)

	pool := executor.New(executor.Config{
		Count:    cfg.ExecutorCount,
		Queue:    q,
		HTTP:     httpClient,
		Limiter:  limiter,
		Reporter: rep,
		Metrics:  metrics,
		Logger:   logger,
	})

	healthSrv := health.NewServer(cfg.MetricsAddr, metrics)

	return &Orchestrator{
		cfg:      cfg,
		queue:    q,
		limiter:  limiter,
		http:     httpClient,
		poller:   pollr,
		pool:     pool,
		reporter: rep,
		metrics:  metrics,
		health:   healthSrv,
		logger:   logger,
	}, nil
}

// Run starts the poller, executor pool, and health server, and blocks until
// ctx is cancelled. It returns once shutdown has completed.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.state.CompareAndSwap(stateInit, stateRunning) {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	// The executor pool gets a context detached from runCtx: shutdown is
	// driven by queue.Stop()+pool.Wait() in shutdown() below, not by
	// cancelling the jobs' parent context, so an in-flight request is left
	// to finish (or hit its own per-job timeout) instead of being aborted
	// the instant Stop/signal fires.
	o.pool.Start(context.Background())

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.poller.Run(runCtx)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.health.SetReady(true)
		if err := o.health.ListenAndServe(); err != nil {
			o.logger.Error("health server stopped", "error", err)
		}
	}()

	<-runCtx.Done()
	o.shutdown()
	return nil
}

// shutdown drains the pipeline: stop accepting new polls, let in-flight
// jobs finish draining from the queue, then close shared resources.
func (o *Orchestrator) shutdown() {
	o.state.Store(stateStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	o.health.SetReady(false)
	if err := o.health.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("health server shutdown error", "error", err)
	}

	o.queue.Stop()
	o.pool.Wait()
	o.limiter.Close()
	o.wg.Wait()

	o.state.Store(stateStopped)
}

// Stop cancels the run loop started by Run. It does not wait for shutdown to
// finish; Run returns once it has.
func (o *Orchestrator) Stop() error {
	if o.state.Load() == stateInit {
		return ErrNotRunning
	}
	if o.cancel != nil {
		o.cancel()
	}
	return nil
}

// Stats describes the orchestrator's current queue depth and lifecycle
// state, for diagnostics and tests.
type Stats struct {
	QueueDepth int
	State      string
}

// Stats returns a snapshot of the orchestrator's current state.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		QueueDepth: o.queue.Len(),
		State:      o.stateString(),
	}
}

func (o *Orchestrator) stateString() string {
	switch o.state.Load() {
	case stateInit:
		return "init"
	case stateRunning:
		return "running"
	case stateStopping:
		return "stopping"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
