package executor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ezworker/ezworker/internal/httpclient"
	"github.com/ezworker/ezworker/internal/job"
	"github.com/ezworker/ezworker/internal/queue"
	"github.com/ezworker/ezworker/internal/ratelimit"
	"github.com/ezworker/ezworker/internal/reporter"
)

type recordedReport struct {
	jobID      string
	success    bool
	statusCode *int
	errorKind  *string
}

// newRecordingCoordinator returns a coordinator-mock server and a slice that
// accumulates every report it receives, guarded by a mutex.
func newRecordingCoordinator(t *testing.T) (*httptest.Server, *sync.Mutex, *[]recordedReport) {
	t.Helper()
	var mu sync.Mutex
	var reports []recordedReport

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			JobID      string  `json:"id"`
			Success    bool    `json:"success"`
			StatusCode *int    `json:"status_code"`
			ErrorKind  *string `json:"error_kind"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		mu.Lock()
		reports = append(reports, recordedReport{
			jobID:      body.JobID,
			success:    body.Success,
			statusCode: body.StatusCode,
			errorKind:  body.ErrorKind,
		})
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))

	return server, &mu, &reports
}

func newTestPool(t *testing.T, coordinatorURL string) (*Pool, *queue.Queue) {
	t.Helper()
	q := queue.New(0)
	httpClient := httpclient.New(httpclient.DefaultTransportConfig())
	limiter := ratelimit.New(ratelimit.Config{RateLimitPerSecond: 1000})
	t.Cleanup(limiter.Close)
	rep := reporter.New(httpClient.Raw(), coordinatorURL, nil)

	pool := New(Config{
		Count:    2,
		Queue:    q,
		HTTP:     httpClient,
		Limiter:  limiter,
		Reporter: rep,
	})
	return pool, q
}

func TestProcessSuccessfulJobReportsSuccess(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer target.Close()

	coordinator, mu, reports := newRecordingCoordinator(t)
	defer coordinator.Close()

	pool, q := newTestPool(t, coordinator.URL)
	pool.Start(t.Context())

	q.Push(job.WorkItem{Job: job.Job{ID: "ok-1", URL: target.URL, Method: "GET"}})
	q.Stop()
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(*reports) != 1 {
		t.Fatalf("expected exactly one report, got %d", len(*reports))
	}
	r := (*reports)[0]
	if r.jobID != "ok-1" || !r.success || r.statusCode == nil || *r.statusCode != 200 {
		t.Errorf("unexpected report: %+v", r)
	}
}

func TestProcessTargetErrorReportsFailure(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer target.Close()

	coordinator, mu, reports := newRecordingCoordinator(t)
	defer coordinator.Close()

	pool, q := newTestPool(t, coordinator.URL)
	pool.Start(t.Context())

	q.Push(job.WorkItem{Job: job.Job{ID: "err-1", URL: target.URL, Method: "GET"}})
	q.Stop()
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(*reports) != 1 {
		t.Fatalf("expected exactly one report, got %d", len(*reports))
	}
	r := (*reports)[0]
	if r.success || r.statusCode == nil || *r.statusCode != 500 {
		t.Errorf("expected a reported 500 failure, got %+v", r)
	}
}

func TestProcessInvalidURLReportsFailureWithoutContactingLimiter(t *testing.T) {
	coordinator, mu, reports := newRecordingCoordinator(t)
	defer coordinator.Close()

	pool, q := newTestPool(t, coordinator.URL)
	pool.Start(t.Context())

	q.Push(job.WorkItem{Job: job.Job{ID: "bad-url", URL: "not-a-url", Method: "GET"}})
	q.Stop()
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(*reports) != 1 {
		t.Fatalf("expected exactly one report, got %d", len(*reports))
	}
	r := (*reports)[0]
	if r.success || r.errorKind == nil {
		t.Errorf("expected a reported failure with an error kind, got %+v", r)
	}
}

func TestExecutorsRateLimitRequestsToSameHost(t *testing.T) {
	var hits atomic.Int64
	var firstHit, secondHit time.Time
	var mu sync.Mutex

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		mu.Lock()
		if n == 1 {
			firstHit = time.Now()
		} else if n == 2 {
			secondHit = time.Now()
		}
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	coordinator, _, _ := newRecordingCoordinator(t)
	defer coordinator.Close()

	q := queue.New(0)
	httpClient := httpclient.New(httpclient.DefaultTransportConfig())
	limiter := ratelimit.New(ratelimit.Config{RateLimitPerSecond: 10}) // 100ms floor
	t.Cleanup(limiter.Close)
	rep := reporter.New(httpClient.Raw(), coordinator.URL, nil)

	pool := New(Config{Count: 4, Queue: q, HTTP: httpClient, Limiter: limiter, Reporter: rep})
	pool.Start(t.Context())

	q.Push(job.WorkItem{Job: job.Job{ID: "rl-1", URL: target.URL, Method: "GET"}})
	q.Push(job.WorkItem{Job: job.Job{ID: "rl-2", URL: target.URL, Method: "GET"}})
	q.Stop()
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if hits.Load() != 2 {
		t.Fatalf("expected both jobs to eventually execute, got %d hits", hits.Load())
	}
	if secondHit.Sub(firstHit) < 90*time.Millisecond {
		t.Errorf("expected requests to the same host to be spaced by ~100ms, got %v", secondHit.Sub(firstHit))
	}
}

func TestQueueDrainsAndPoolExitsOnStop(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	coordinator, _, _ := newRecordingCoordinator(t)
	defer coordinator.Close()

	pool, q := newTestPool(t, coordinator.URL)
	pool.Start(t.Context())

	for i := 0; i < 20; i++ {
		q.Push(job.WorkItem{Job: job.Job{ID: "drain", URL: target.URL, Method: "GET"}})
	}
	q.Stop()

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not exit after queue stopped and drained")
	}
}
