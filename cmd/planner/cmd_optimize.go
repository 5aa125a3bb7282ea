// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianPlanner/pkg/logging"
	"github.com/AleutianAI/AleutianPlanner/pkg/telemetry"
	"github.com/AleutianAI/AleutianPlanner/services/planner/mcts"
	"github.com/AleutianAI/AleutianPlanner/services/planner/mockexec"
	"github.com/AleutianAI/AleutianPlanner/services/planner/optimizer"
	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

type optimizeOptions struct {
	pipelinePath string
	configPath   string
	outDir       string
	metricsAddr  string
	traceOut     string
	logLevel     string
	logDir       string
	jsonLogs     bool
	iterations   int
	workers      int
	records      int
	seed         uint64
	maxNodes     int
	timeLimit    time.Duration
	costLimit    float64
}

func newOptimizeCmd() *cobra.Command {
	opts := &optimizeOptions{}
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run the search against the simulated executor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOptimize(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.pipelinePath, "pipeline", "p", "", "pipeline definition (YAML or JSON)")
	f.StringVarP(&opts.configPath, "config", "c", "", "search configuration file")
	f.StringVarP(&opts.outDir, "out", "o", "", "directory for result files")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while searching")
	f.StringVar(&opts.traceOut, "trace-exporter", "", "trace exporter: none, stdout or otlp (default from OTEL_TRACES_EXPORTER)")
	f.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (default from config)")
	f.StringVar(&opts.logDir, "log-dir", "", "also write JSON logs to this directory")
	f.BoolVar(&opts.jsonLogs, "json-logs", false, "write console logs as JSON")
	f.IntVarP(&opts.iterations, "iterations", "n", 0, "iteration budget (default from config)")
	f.IntVar(&opts.workers, "workers", 0, "parallel simulations (default from config)")
	f.IntVar(&opts.records, "records", 60, "number of demo records")
	f.Uint64Var(&opts.seed, "seed", 0, "seed for reproducible runs")
	f.IntVar(&opts.maxNodes, "max-nodes", 0, "stop once the tree holds this many nodes (0: no limit)")
	f.DurationVar(&opts.timeLimit, "time-limit", 0, "wall-clock limit for the search (0: no limit)")
	f.Float64Var(&opts.costLimit, "cost-limit", 0, "stop once simulations have spent this much (0: no limit)")
	_ = cmd.MarkFlagRequired("pipeline")
	return cmd
}

func runOptimize(cmd *cobra.Command, opts *optimizeOptions) error {
	cfg, err := mcts.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("seed") {
		seed := opts.seed
		cfg.Search.Seed = &seed
	}
	if flags.Changed("workers") {
		cfg.Search.Workers = opts.workers
	}
	if flags.Changed("max-nodes") {
		cfg.Budget.MaxNodes = opts.maxNodes
	}
	if flags.Changed("time-limit") {
		cfg.Budget.TimeLimit = opts.timeLimit
	}
	if flags.Changed("cost-limit") {
		cfg.Budget.CostLimit = opts.costLimit
	}
	if opts.logLevel != "" {
		cfg.Observability.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if opts.records <= 0 {
		return fmt.Errorf("--records must be positive, got %d", opts.records)
	}

	level, err := logging.ParseLevel(cfg.Observability.LogLevel)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		LogDir:  opts.logDir,
		Service: cfg.Observability.ServiceName,
		JSON:    opts.jsonLogs,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		logger.Warn("file logging disabled", "error", err)
	}
	defer logger.Close()

	p, err := pipeline.LoadFile(opts.pipelinePath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telCfg := telemetry.DefaultConfig()
	telCfg.ServiceName = cfg.Observability.ServiceName
	telCfg.Writer = cmd.ErrOrStderr()
	if opts.traceOut != "" {
		telCfg.TraceExporter = opts.traceOut
	}
	if !cfg.Observability.TracingEnabled {
		telCfg.TraceExporter = telemetry.ExporterNone
	}
	tp, shutdownTraces, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTraces(shutdownCtx); err != nil {
			logger.Warn("flush traces", "error", err)
		}
	}()
	tracer := mcts.NewSearchTracerWithProvider(tp, logger.Slog(), cfg.Observability)

	var metrics *mcts.SearchMetrics
	if cfg.Observability.MetricsEnabled {
		reg := prometheus.NewRegistry()
		metrics = mcts.NewSearchMetrics(reg)
		if opts.metricsAddr != "" {
			srv, err := serveMetrics(opts.metricsAddr, reg, logger.Slog())
			if err != nil {
				return err
			}
			defer srv.Close()
		}
	}

	input, truth := mockexec.DemoData(opts.records)
	opt, err := optimizer.New(p, mockexec.NewExecutor(), mockexec.LabelMatch{},
		optimizer.WithConfig(cfg),
		optimizer.WithData(input, truth),
		optimizer.WithLogger(logger.Slog()),
		optimizer.WithTracer(tracer),
		optimizer.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	result, err := opt.Optimize(ctx, opts.iterations)
	if err != nil {
		return err
	}
	if result.Stats.Cancelled {
		logger.Warn("search interrupted, reporting partial results", "iterations", result.Stats.Iterations)
	}
	if by := result.Stats.BudgetExhaustedBy; by != "" {
		logger.Info("search stopped by budget", "limit", by, "iterations", result.Stats.Iterations)
	}

	if opts.outDir != "" {
		if err := writeArtifacts(opts.outDir, result, opt.Tree()); err != nil {
			return err
		}
		logger.Info("results written", "dir", opts.outDir)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Summary())
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}
