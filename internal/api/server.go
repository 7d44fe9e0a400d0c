// Package api serves health, Prometheus metrics and a live progress stream
// for bannerscan runs.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anstrom/bannerscan/internal/logging"
)

// Server timeout constants.
const (
	serverShutdownTimeout = 10 * time.Second
	readHeaderTimeout     = 5 * time.Second
)

// MetricsSource is the collector set exposed by the server.
type MetricsSource interface {
	GetRegistry() *prometheus.Registry
	GetUptime() time.Duration
}

// Server represents the observability server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *ProgressHub
	metrics    MetricsSource
	logger     *logging.Logger
}

// New creates a server listening on addr. source backs /metrics and the
// uptime in /health; hub backs /ws/progress.
func New(addr string, source MetricsSource, hub *ProgressHub, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	if hub == nil {
		hub = NewProgressHub(logger)
	}

	s := &Server{
		router:  mux.NewRouter(),
		hub:     hub,
		metrics: source,
		logger:  logger.WithComponent("api"),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.Use(requestID, securityHeaders)
	s.router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.GetRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.Handle("/ws/progress", s.hub).Methods(http.MethodGet)
}

// Handler returns the router wrapped with panic recovery and request logging.
func (s *Server) Handler() http.Handler {
	logged := handlers.CustomLoggingHandler(io.Discard, s.router, s.logRequest)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(logged)
}

// Hub returns the progress hub served at /ws/progress.
func (s *Server) Hub() *ProgressHub {
	return s.hub
}

// Start serves until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Starting observability server", "address", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return err
	}
}

// Stop gracefully stops the server and disconnects progress clients.
func (s *Server) Stop() error {
	s.logger.Info("Stopping observability server")
	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":           "healthy",
		"timestamp":        time.Now().UTC(),
		"uptime":           s.metrics.GetUptime().String(),
		"progress_clients": s.hub.Clients(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err,
			"path", r.URL.Path, "request_id", GetRequestID(r))
	}
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.logger.Debug("HTTP request",
		"method", p.Request.Method,
		"path", p.URL.Path,
		"status", p.StatusCode,
		"size", p.Size,
		"duration", time.Since(p.TimeStamp),
		"remote_addr", p.Request.RemoteAddr)
}

// recoveryLogger adapts the logger to gorilla's RecoveryHandlerLogger.
type recoveryLogger struct {
	logger *logging.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error("Panic in HTTP handler", "error", fmt.Sprint(v...))
}
