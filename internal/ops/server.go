// Package ops serves the moderator's health and metrics endpoints.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/whisper/modbot/internal/metrics"
)

// Check reports whether a dependency is usable.
type Check func() bool

// Server is the ops HTTP server.
type Server struct {
	addr      string
	log       logrus.FieldLogger
	startedAt time.Time

	mu     sync.RWMutex
	checks map[string]Check

	httpServer *http.Server
}

// NewServer returns a server for addr. Nothing listens until Start.
func NewServer(addr string, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		addr:      addr,
		log:       log.WithField("component", "ops"),
		startedAt: time.Now(),
		checks:    make(map[string]Check),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// AddCheck registers a named dependency shown in /health. A failing check
// turns the response into 503.
func (s *Server) AddCheck(name string, c Check) {
	s.mu.Lock()
	s.checks[name] = c
	s.mu.Unlock()
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("ops: listen %s: %w", s.addr, err)
	}
	s.log.WithField("addr", ln.Addr().String()).Info("ops server listening")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("ops server stopped")
		}
	}()
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status string          `json:"status"`
	Uptime string          `json:"uptime"`
	Checks map[string]bool `json:"checks,omitempty"`
}

// handleHealth responds with status, uptime and dependency checks as JSON.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	}

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		resp.Checks = make(map[string]bool, len(names))
	}
	for _, name := range names {
		ok := s.checks[name]()
		resp.Checks[name] = ok
		if !ok {
			resp.Status = "degraded"
		}
	}
	s.mu.RUnlock()

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
