// Package poller continuously pulls pending jobs from the coordinator and
// hands them to the job queue.
package poller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ezworker/ezworker/internal/job"
	"github.com/ezworker/ezworker/internal/queue"
)

// minSleep floors the sleep between polls, guarding against a
// misconfigured near-zero interval turning the poller into a busy loop.
const minSleep = 100 * time.Millisecond

// Config controls Poller behavior.
type Config struct {
	BaseURL         string
	WorkerID        string
	Region          string
	IntervalSeconds int
	MaxJitter       time.Duration
	PullLimit       int
	// AllowHTTPSDowngrade, when true, rewrites https:// target URLs to
	// http:// for local testing against plaintext targets. Intended to be
	// false whenever FLY_APP_NAME is set (i.e. in production).
	AllowHTTPSDowngrade bool
}

// Poller pulls job descriptors from the coordinator on a jittered,
// wall-clock-aligned cadence and pushes them to a queue.
type Poller struct {
	http   *http.Client
	cfg    Config
	q      *queue.Queue
	logger *slog.Logger
}

// New creates a Poller.
func New(client *http.Client, q *queue.Queue, cfg Config, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IntervalSeconds <= 0 {
		cfg.IntervalSeconds = 5
	}
	if cfg.PullLimit <= 0 {
		cfg.PullLimit = 10
	}
	return &Poller{http: client, cfg: cfg, q: q, logger: logger}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		p.pollOnce(ctx)

		if ctx.Err() != nil {
			return
		}

		sleepUntilNextPollInstant(ctx, p.cfg.IntervalSeconds, p.cfg.MaxJitter)
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	pullURL := fmt.Sprintf("%s/worker/jobs?worker_id=%s&region=%s&limit=%d",
		p.cfg.BaseURL,
		url.QueryEscape(p.cfg.WorkerID),
		url.QueryEscape(p.cfg.Region),
		p.cfg.PullLimit,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pullURL, nil)
	if err != nil {
		p.logger.Warn("failed to build poll request", "error", err)
		return
	}

	resp, err := p.http.Do(req)
	if err != nil {
		p.logger.Warn("poll request failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		p.logger.Debug("poll returned empty batch")
		return
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("poll returned unexpected status", "status", resp.StatusCode)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.logger.Warn("failed to read poll response", "error", err)
		return
	}

	pulled, err := job.DecodePullResponse(body)
	if err != nil {
		p.logger.Warn("failed to parse poll response", "error", err)
		return
	}
	if pulled == nil {
		p.logger.Debug("poll returned no job")
		return
	}

	if !job.ValidMethod(pulled.Method) {
		p.logger.Warn("dropping pulled job with unrecognized method", "job_id", pulled.ID, "method", pulled.Method)
		return
	}

	if p.cfg.AllowHTTPSDowngrade && strings.HasPrefix(pulled.URL, "https://") {
		p.logger.Warn("downgrading https target to http for local testing", "job_id", pulled.ID, "url", pulled.URL)
		pulled.URL = "http://" + strings.TrimPrefix(pulled.URL, "https://")
	}

	item := job.WorkItem{Job: *pulled}
	if err := p.q.PushWait(item); err != nil {
		p.logger.Warn("failed to enqueue pulled job", "job_id", pulled.ID, "error", err)
	}
}

// sleepUntilNextPollInstant sleeps until the next wall-clock-aligned poll
// instant: the next multiple of intervalSeconds, plus a uniform jitter in
// [0, maxJitter). The sleep is floored at minSleep.
func sleepUntilNextPollInstant(ctx context.Context, intervalSeconds int, maxJitter time.Duration) {
	now := time.Now()
	interval := time.Duration(intervalSeconds) * time.Second
	next := now.Truncate(interval).Add(interval)

	if maxJitter > 0 {
		next = next.Add(time.Duration(rand.Int64N(int64(maxJitter))))
	}

	sleep := time.Until(next)
	if sleep < minSleep {
		sleep = minSleep
	}

	timer := time.NewTimer(sleep)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
