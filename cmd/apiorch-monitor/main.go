/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command apiorch-monitor runs the API request orchestrator over a REST backend
// and serves its monitoring page.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-apiorch/config"
	"github.com/acronis/go-apiorch/httpclient"
	"github.com/acronis/go-apiorch/internal/libinfo"
	"github.com/acronis/go-apiorch/log"
	"github.com/acronis/go-apiorch/lrucache"
	"github.com/acronis/go-apiorch/monitor"
	"github.com/acronis/go-apiorch/orchestrator"
	"github.com/acronis/go-apiorch/service"
	"github.com/acronis/go-apiorch/stats"
)

const (
	envVarsPrefix    = "APIORCH"
	metricsNamespace = "apiorch"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "config.yml", "path to the YAML configuration file")
	flag.Parse()

	logCfg := log.NewConfig("")
	orchCfg := orchestrator.NewConfig("")
	backendCfg := httpclient.NewConfig("")
	monitorCfg := monitor.NewConfig("")
	if err := config.NewDefaultLoader(envVarsPrefix).LoadFromFile(
		*cfgPath, config.DataTypeYAML, logCfg, orchCfg, backendCfg, monitorCfg,
	); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, closeLogger := log.NewLogger(logCfg)
	defer closeLogger()
	logger.Info("starting API orchestrator", log.String("version", libinfo.GetLibVersion()),
		log.String("backend", backendCfg.BaseURL))

	clientMetrics := httpclient.NewPrometheusMetricsCollector(metricsNamespace)
	transport, err := httpclient.NewTransport(backendCfg, httpclient.Opts{
		Logger:    logger.With(log.String("component", "backend")),
		Collector: clientMetrics,
	})
	if err != nil {
		return fmt.Errorf("create backend transport: %w", err)
	}

	// Gauges are evaluated at scrape time, after orch is assigned.
	var orch *orchestrator.Orchestrator
	statsMetrics := stats.NewPrometheusMetricsWithOpts(stats.PrometheusMetricsOpts{
		Namespace: metricsNamespace,
		Sources: stats.Sources{
			ActiveRequests:   func() int { return orch.StatsSources().ActiveRequests() },
			QueuedRequests:   func() int { return orch.StatsSources().QueuedRequests() },
			InFlightRequests: func() int { return orch.StatsSources().InFlightRequests() },
		},
	})
	cacheMetrics := lrucache.NewPrometheusMetricsWithOpts(lrucache.PrometheusMetricsOpts{Namespace: metricsNamespace})

	orch, err = orchestrator.New(orchCfg, transport, orchestrator.Opts{
		Logger:       logger,
		CacheMetrics: cacheMetrics,
		StatsMetrics: statsMetrics,
	})
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}
	defer func() {
		if closeErr := orch.Close(); closeErr != nil {
			logger.Error("failed to close orchestrator", log.Error(closeErr))
		}
	}()

	buildInfo := libinfo.NewBuildInfoGauge(metricsNamespace)
	prometheus.MustRegister(buildInfo)
	defer prometheus.Unregister(buildInfo)
	clientMetrics.MustRegister()
	defer clientMetrics.Unregister()
	statsMetrics.MustRegister()
	defer statsMetrics.Unregister()
	cacheMetrics.MustRegister()
	defer cacheMetrics.Unregister()

	monitorServer := monitor.New(monitorCfg, orch, logger.With(log.String("component", "monitor")),
		monitor.Opts{MetricsNamespace: metricsNamespace})
	sweeper := service.NewWorkerUnit(orchestrator.NewCacheSweeper(orch, logger.With(log.String("component", "sweeper"))))

	return service.New(logger, service.NewCompositeUnit(monitorServer, sweeper)).Start()
}
