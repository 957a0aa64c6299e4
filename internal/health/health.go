// Package health provides HTTP liveness and readiness endpoints.
//
// Docker and Kubernetes use these endpoints to monitor the daemon.
// /healthz returns 200 OK once the daemon has started its transports.
// /readyz additionally requires the synthesis engine to be loaded, so it
// stays 503 until warmup or the first request has brought the model up.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// Server is a lightweight HTTP server that exposes /healthz and /readyz.
type Server struct {
	port   int
	ready  atomic.Bool
	probe  func() bool
	server *http.Server
}

// New creates a new health check server. probe reports whether the
// synthesis engine is loaded; nil means always loaded.
func New(port int, probe func() bool) *Server {
	if probe == nil {
		probe = func() bool { return true }
	}
	return &Server{port: port, probe: probe}
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

type statusBody struct {
	Status string `json:"status"`
	Engine string `json:"engine,omitempty"`
}

// Handler returns the health routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, statusBody{Status: "not_ready"})
			return
		}
		writeStatus(w, http.StatusOK, statusBody{Status: "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		engine := "not_loaded"
		if s.probe() {
			engine = "loaded"
		}
		if !s.ready.Load() || engine != "loaded" {
			writeStatus(w, http.StatusServiceUnavailable, statusBody{Status: "not_ready", Engine: engine})
			return
		}
		writeStatus(w, http.StatusOK, statusBody{Status: "ok", Engine: engine})
	})

	return mux
}

func writeStatus(w http.ResponseWriter, code int, body statusBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("health server: %w", err)
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
