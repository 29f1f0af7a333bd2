/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-apiorch/log"
	"github.com/acronis/go-apiorch/service"
)

// Opts represents options for New.
type Opts struct {
	// Gatherer serves /metrics. prometheus.DefaultGatherer is used if nil.
	Gatherer prometheus.Gatherer
	// MetricsNamespace is prepended to the names of the server's own metrics.
	MetricsNamespace string
	// Listener is used instead of listening on Config.Address.
	Listener net.Listener
}

// Server is the monitoring HTTP server. It implements service.Unit and service.MetricsRegisterer.
type Server struct {
	HTTPServer      *http.Server
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener   net.Listener
	addr       atomic.Value
	serverDone atomic.Value
	metrics    *HTTPRequestMetrics
}

var _ service.Unit = (*Server)(nil)
var _ service.MetricsRegisterer = (*Server)(nil)

// New creates a monitoring server over backend.
func New(cfg *Config, backend Backend, logger log.FieldLogger, opts Opts) *Server {
	metrics := NewHTTPRequestMetrics(opts.MetricsNamespace)
	router := NewRouter(backend, logger, RouterOpts{
		Gatherer:           opts.Gatherer,
		Metrics:            metrics,
		MaxRequestBodySize: uint64(cfg.MaxRequestBodySize),
		ProfilingEnabled:   cfg.ProfilingEnabled,
	})
	return &Server{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Logger:          logger,
		ShutdownTimeout: cfg.ShutdownTimeout.Duration(),
		listener:        opts.Listener,
		metrics:         metrics,
	}
}

// Start starts the server in a blocking way. A fatal error is sent to fatalError.
func (s *Server) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.serverDone.Store(done)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr), log.Duration("shutdown_timeout", s.ShutdownTimeout))
	logger.Info("starting monitoring HTTP server...")

	if s.listener == nil {
		ln, err := net.Listen("tcp", s.HTTPServer.Addr)
		if err != nil {
			logger.Error("monitoring HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
		s.listener = ln
	}
	s.addr.Store(s.listener.Addr().String())

	if err := s.HTTPServer.Serve(s.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("monitoring HTTP server closed")
			return
		}
		logger.Error("monitoring HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops the server (gracefully or not).
func (s *Server) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing monitoring HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("monitoring HTTP server closing error", log.Error(err))
			return err
		}
		s.waitServeReturned()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down monitoring HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("monitoring HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("monitoring HTTP server shut down")
	s.waitServeReturned()
	return nil
}

func (s *Server) waitServeReturned() {
	if done, ok := s.serverDone.Load().(chan struct{}); ok && done != nil {
		<-done
	}
}

// Addr returns the address the server listens on, empty until Start has bound the listener.
func (s *Server) Addr() string {
	addr, _ := s.addr.Load().(string)
	return addr
}

// MustRegisterMetrics implements service.MetricsRegisterer.
func (s *Server) MustRegisterMetrics() {
	s.metrics.MustRegister()
}

// UnregisterMetrics implements service.MetricsRegisterer.
func (s *Server) UnregisterMetrics() {
	s.metrics.Unregister()
}
