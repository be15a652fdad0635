// Package executor runs a fixed pool of goroutines that drain the job
// queue, gate on the per-host rate limiter, execute the outbound HTTP
// request, and report the outcome.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ezworker/ezworker/internal/httpclient"
	"github.com/ezworker/ezworker/internal/job"
	"github.com/ezworker/ezworker/internal/queue"
	"github.com/ezworker/ezworker/internal/ratelimit"
	"github.com/ezworker/ezworker/internal/reporter"
	"github.com/ezworker/ezworker/internal/telemetry"
)

// Metrics is the narrow interface executors use to record outcomes,
// satisfied by internal/health's Prometheus collectors. Defined here so the
// executor package does not need to import prometheus directly.
type Metrics interface {
	ObserveJob(success bool, errorKind string, elapsed time.Duration)
	SetQueueDepth(depth int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveJob(bool, string, time.Duration) {}
func (noopMetrics) SetQueueDepth(int)                      {}

// Pool runs Count long-lived goroutines draining q.
type Pool struct {
	count    int
	q        *queue.Queue
	http     *httpclient.Client
	limiter  *ratelimit.Limiter
	reporter *reporter.Reporter
	metrics  Metrics
	logger   *slog.Logger

	wg sync.WaitGroup
}

// Config wires a Pool's dependencies.
type Config struct {
	Count    int
	Queue    *queue.Queue
	HTTP     *httpclient.Client
	Limiter  *ratelimit.Limiter
	Reporter *reporter.Reporter
	Metrics  Metrics
	Logger   *slog.Logger
}

// New creates a Pool. Count defaults to 8 if not positive.
func New(cfg Config) *Pool {
	count := cfg.Count
	if count <= 0 {
		count = 8
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		count:    count,
		q:        cfg.Queue,
		http:     cfg.HTTP,
		limiter:  cfg.Limiter,
		reporter: cfg.Reporter,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start spawns the executor goroutines. ctx governs the per-job HTTP
// timeout context's parent; shutdown is driven by the queue being stopped,
// not by cancelling ctx.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every executor goroutine has exited, which happens once
// the queue reports closed and drained.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		item, ok := p.q.Pop()
		if !ok {
			return
		}
		p.metrics.SetQueueDepth(p.q.Len())
		p.process(ctx, item.Job)
	}
}

func (p *Pool) process(ctx context.Context, j job.Job) {
	host, err := httpclient.ExtractHost(j.URL)
	if err != nil {
		telemetry.ForJob(p.logger, j.ID, "").Warn("failed to extract host from job url", "error", err)
		p.reportFailure(ctx, j.ID, "InvalidUrl", 0)
		return
	}

	logger := telemetry.ForJob(p.logger, j.ID, host)
	ctx = telemetry.WithLogger(ctx, logger)

	if err := p.limiter.WaitForHost(ctx, host); err != nil {
		logger.Warn("rate limiter wait failed", "error", err)
		p.reportFailure(ctx, j.ID, classifyErrorKind(err), 0)
		return
	}
	defer p.limiter.RecordSend(host)

	resp, err := p.http.Request(ctx, j.Method, j.URL, j.Headers, j.Body, j.Timeout)

	if err != nil {
		logger.Warn("request failed", "error", err)
		p.reportFailure(ctx, j.ID, classifyErrorKind(err), resp.Elapsed)
		return
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	statusCode := resp.StatusCode
	result := job.Result{
		JobID:      j.ID,
		Success:    success,
		StatusCode: &statusCode,
		Body:       resp.Body,
		ElapsedMs:  resp.Elapsed.Milliseconds(),
	}

	logger.Debug("job completed", "status", statusCode, "elapsed_ms", result.ElapsedMs)
	p.metrics.ObserveJob(success, "", resp.Elapsed)
	p.reporter.Report(ctx, result)
}

func (p *Pool) reportFailure(ctx context.Context, jobID, errorKind string, elapsed time.Duration) {
	p.metrics.ObserveJob(false, errorKind, elapsed)
	p.reporter.Report(ctx, job.Result{
		JobID:     jobID,
		Success:   false,
		ErrorKind: &errorKind,
		ElapsedMs: elapsed.Milliseconds(),
	})
}

// classifyErrorKind maps a httpclient/ratelimit error to the taxonomy's
// string name, for inclusion in the reported JobResult.
func classifyErrorKind(err error) string {
	switch {
	case errors.Is(err, httpclient.ErrInvalidURL):
		return "InvalidUrl"
	case errors.Is(err, httpclient.ErrNoHost):
		return "NoHost"
	case errors.Is(err, httpclient.ErrRequestFailed):
		return "RequestFailed"
	case errors.Is(err, httpclient.ErrSendFailed):
		return "SendFailed"
	case errors.Is(err, httpclient.ErrReceiveFailed):
		return "ReceiveFailed"
	case errors.Is(err, httpclient.ErrReadFailed):
		return "ReadFailed"
	case errors.Is(err, httpclient.ErrTimeout):
		return "Timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	default:
		return "RequestFailed"
	}
}
