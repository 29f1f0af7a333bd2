/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/acronis/go-apiorch/log"
)

// Opts represents options for Service.
type Opts struct {
	// ShutdownSignals trigger a graceful stop. SIGINT and SIGTERM if nil.
	ShutdownSignals []os.Signal
}

// Service runs a Unit until a fatal error, a shutdown signal, or context cancellation.
type Service struct {
	unit    Unit
	logger  log.FieldLogger
	signals []os.Signal
}

// New creates a new Service running unit.
func New(logger log.FieldLogger, unit Unit) *Service {
	return NewWithOpts(logger, unit, Opts{})
}

// NewWithOpts creates a new Service running unit with the provided options.
func NewWithOpts(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	if opts.ShutdownSignals == nil {
		opts.ShutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &Service{unit: unit, logger: logger, signals: opts.ShutdownSignals}
}

// Start is Run with the background context.
func (s *Service) Start() error {
	return s.Run(context.Background())
}

// Run starts the unit in a separate goroutine and blocks until it fails,
// a shutdown signal is received, or ctx is done. In the last two cases the unit is stopped gracefully.
func (s *Service) Run(ctx context.Context) error {
	if mr, ok := s.unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, s.signals...)
	defer signal.Stop(sigCh)

	fatalErr := make(chan error, 1)
	go s.unit.Start(fatalErr)

	select {
	case err := <-fatalErr:
		s.logger.Error("service unit failed", log.Error(err))
		return fmt.Errorf("fatal error: %w", err)
	case sig := <-sigCh:
		s.logger.Info("shutdown signal received", log.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("context is done, stopping service")
	}

	if err := s.unit.Stop(true); err != nil {
		return fmt.Errorf("stop service gracefully: %w", err)
	}
	return nil
}
