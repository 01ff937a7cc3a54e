// Package server provides the HTTP console server for the flow monitor.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"proxycast-hq/flowscope/pkg/config"
	"proxycast-hq/flowscope/pkg/monitor"
	"proxycast-hq/flowscope/pkg/telemetry/metrics"
)

// Server serves the flow monitor console API, the event stream, and the
// metrics and health endpoints.
type Server struct {
	config     *config.ServerConfig
	monitor    *monitor.Monitor
	metrics    *metrics.Collector
	logger     *slog.Logger
	httpServer *http.Server

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a console server. The collector may be nil, which disables the
// /metrics endpoint.
func New(cfg *config.ServerConfig, mon *monitor.Monitor, collector *metrics.Collector) *Server {
	return &Server{
		config:       cfg,
		monitor:      mon,
		metrics:      collector,
		logger:       slog.Default().With("component", "server"),
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		// WriteTimeout defaults to 0: the event stream endpoint holds its
		// connection open indefinitely.
		WriteTimeout: s.config.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting console server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server, waiting up to the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("console server stopped")
	})

	return shutdownErr
}

// Stop requests an asynchronous shutdown of a running server.
func (s *Server) Stop() {
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
}

// IsRunning reports whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler with the middleware chain
// applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	handler = corsMiddleware(&s.config.CORS)(handler)
	handler = requestIDMiddleware(handler)
	handler = loggingMiddleware(handler)
	handler = recoveryMiddleware(handler)
	return handler
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Queries
	mux.HandleFunc("POST /flow-monitor/query", s.handleQuery)
	mux.HandleFunc("POST /flow-monitor/query-expression", s.handleQueryExpression)
	mux.HandleFunc("GET /flow-monitor/recent", s.handleRecent)
	mux.HandleFunc("POST /flow-monitor/search", s.handleSearch)
	mux.HandleFunc("GET /flow-monitor/flows/{id}", s.handleGetFlow)
	mux.HandleFunc("DELETE /flow-monitor/flows/{id}", s.handleDeleteFlow)
	mux.HandleFunc("POST /flow-monitor/delete-batch", s.handleDeleteBatch)
	mux.HandleFunc("POST /flow-monitor/cleanup", s.handleCleanup)

	// Statistics
	mux.HandleFunc("POST /flow-monitor/stats", s.handleStats)
	mux.HandleFunc("POST /flow-monitor/enhanced-stats", s.handleEnhancedStats)
	mux.HandleFunc("POST /flow-monitor/request-trend", s.handleRequestTrend)
	mux.HandleFunc("POST /flow-monitor/token-distribution", s.handleTokenDistribution)
	mux.HandleFunc("POST /flow-monitor/latency-histogram", s.handleLatencyHistogram)

	// Export
	mux.HandleFunc("POST /flow-monitor/export", s.handleExport)
	mux.HandleFunc("POST /flow-monitor/export-report", s.handleExportReport)

	// Annotations
	mux.HandleFunc("PUT /flow-monitor/flows/{id}/annotations", s.handleUpdateAnnotations)
	mux.HandleFunc("POST /flow-monitor/flows/{id}/toggle-star", s.handleToggleStar)
	mux.HandleFunc("POST /flow-monitor/flows/{id}/tags", s.handleAddTags)
	mux.HandleFunc("DELETE /flow-monitor/flows/{id}/tags", s.handleRemoveTags)
	mux.HandleFunc("PUT /flow-monitor/flows/{id}/comment", s.handleSetComment)
	mux.HandleFunc("PUT /flow-monitor/flows/{id}/marker", s.handleSetMarker)
	mux.HandleFunc("GET /flow-monitor/tags", s.handleAllTags)

	// Realtime
	mux.HandleFunc("GET /flow-monitor/threshold-config", s.handleGetThresholds)
	mux.HandleFunc("PUT /flow-monitor/threshold-config", s.handleSetThresholds)
	mux.HandleFunc("GET /flow-monitor/request-rate", s.handleRequestRate)
	mux.HandleFunc("PUT /flow-monitor/rate-window", s.handleSetRateWindow)
	mux.HandleFunc("GET /flow-monitor/events", s.handleEvents)

	// Operations
	mux.HandleFunc("GET /flow-monitor/debug", s.handleDebug)
	mux.HandleFunc("PUT /flow-monitor/enabled", s.handleSetEnabled)

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}
