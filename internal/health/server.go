package health

import (
	"context"
	"net/http"
	"sync/atomic"
)

// Server exposes /healthz and /metrics.
type Server struct {
	http    *http.Server
	ready   atomic.Bool
	metrics *Metrics
}

// NewServer builds a Server listening on addr, grounded on the
// /healthz + /metrics mux the teacher's worker entrypoint wires up.
func NewServer(addr string, metrics *Metrics) *Server {
	s := &Server{metrics: metrics}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", metrics.Handler())

	s.http = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("starting"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// SetReady marks the server healthy (or, if false, back into startup /
// shutdown state).
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// ListenAndServe blocks serving HTTP until the server is shut down. Returns
// http.ErrServerClosed on a clean Shutdown.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
