// Package health serves liveness/readiness probes and the Prometheus
// scrape endpoint.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes /live, /ready and /metrics. Readiness tracks whether
// the most recent cycle completed without error.
type Server struct {
	ready  atomic.Bool
	server *http.Server
	logger zerolog.Logger
}

// NewServer constructs the probe server; it starts not-ready.
func NewServer(addr string, logger zerolog.Logger) *Server {
	s := &Server{logger: logger.With().Str("component", "health").Logger()}

	mux := http.NewServeMux()
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetReady flips the readiness signal; wired to the cycle outcome.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

// Start serves until the listener fails; run it in its own goroutine.
func (s *Server) Start() {
	s.logger.Info().Str("addr", s.server.Addr).Msg("health server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error().Err(err).Msg("health server stopped")
	}
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "Not Ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
