// Package reporter POSTs job outcomes back to the coordinator.
package reporter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ezworker/ezworker/internal/job"
	"github.com/ezworker/ezworker/internal/telemetry"
)

// Reporter owns no job state; a failed report is logged and swallowed, since
// the coordinator is responsible for idempotently re-offering work it never
// heard back about.
type Reporter struct {
	http    *http.Client
	baseURL string
	logger  *slog.Logger
}

// New creates a Reporter that POSTs results to baseURL using client.
func New(client *http.Client, baseURL string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{http: client, baseURL: baseURL, logger: logger}
}

// Report serializes result and POSTs it to {baseURL}/worker/jobs/{job_id}/result.
// Network and coordinator-side failures are logged, not returned, matching
// the spec's "log and return" propagation policy for reporter failures.
func (r *Reporter) Report(ctx context.Context, result job.Result) {
	logger := telemetry.FromContextOr(ctx, r.logger)

	body, err := job.EncodeResult(result)
	if err != nil {
		logger.Error("failed to encode job result", "job_id", result.JobID, "error", err)
		return
	}

	url := fmt.Sprintf("%s/worker/jobs/%s/result", r.baseURL, result.JobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		logger.Error("failed to build report request", "job_id", result.JobID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		logger.Error("failed to report job result", "job_id", result.JobID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		logger.Error("coordinator rejected job result", "job_id", result.JobID, "status", resp.StatusCode)
	}
}
