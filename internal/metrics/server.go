// Package metrics implements the pipeline status server.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jalas-labs/ripflow/internal/supervisor"
)

// StatusDoc is the top-level JSON body the status endpoint serves.
type StatusDoc struct {
	Counters  Snapshot                   `json:"counters"`
	Processes []supervisor.ProcessRecord `json:"processes"`
}

// Server is the HTTP server exposing /status as JSON, the reference
// deployment's substitute for a Prometheus /metrics scrape target.
type Server struct {
	addr      string
	path      string
	counters  *Counters
	processes func() []supervisor.ProcessRecord
	server    *http.Server
}

// NewServer creates a status server. processes is called fresh on
// every request, so it should be cheap — supervisor.Snapshot is.
func NewServer(addr, path string, counters *Counters, processes func() []supervisor.ProcessRecord) *Server {
	if path == "" {
		path = "/status"
	}
	return &Server{addr: addr, path: path, counters: counters, processes: processes}
}

// Start starts the status HTTP server in the background.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleStatus)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting status server", "addr", s.addr, "path", s.path)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("status server error", "error", err)
		}
	}()

	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	doc := StatusDoc{Counters: s.counters.Snapshot()}
	if s.processes != nil {
		doc.Processes = s.processes()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		slog.Error("status encode failed", "error", err)
	}
}

// Stop gracefully stops the status server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	slog.Info("stopping status server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown failed: %w", err)
	}

	slog.Info("status server stopped")
	return nil
}
