// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package optimizer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianPlanner/services/planner/mcts"
	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// Optimizer searches the configuration space around one pipeline.
//
// Thread Safety: Not safe for concurrent use. Each Optimize call builds a
// fresh engine; Statistics reports the most recent run.
type Optimizer struct {
	root      *pipeline.Pipeline
	executor  Executor
	evaluator Evaluator

	input       Batch
	groundTruth Batch

	config  mcts.PlannerConfig
	logger  *slog.Logger
	tracer  *mcts.SearchTracer
	metrics *mcts.SearchMetrics

	engine *mcts.Engine
}

// Option configures the optimizer.
type Option func(*Optimizer)

// WithConfig replaces the default configuration.
func WithConfig(config mcts.PlannerConfig) Option {
	return func(o *Optimizer) {
		o.config = config
	}
}

// WithData sets the input batch handed to the executor and the ground truth
// handed to the evaluator.
func WithData(input, groundTruth Batch) Option {
	return func(o *Optimizer) {
		o.input = input
		o.groundTruth = groundTruth
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer sets the search tracer.
func WithTracer(tracer *mcts.SearchTracer) Option {
	return func(o *Optimizer) {
		o.tracer = tracer
	}
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(metrics *mcts.SearchMetrics) Option {
	return func(o *Optimizer) {
		o.metrics = metrics
	}
}

// New creates an optimizer.
//
// Inputs:
//   - p: The initial configuration.
//   - executor: Runs configurations.
//   - evaluator: Scores executor output.
//   - opts: Optional configuration functions.
//
// Outputs:
//   - *Optimizer: Ready to Optimize.
//   - error: A *pipeline.ConfigurationError for missing collaborators or an
//     invalid configuration.
func New(p *pipeline.Pipeline, executor Executor, evaluator Evaluator, opts ...Option) (*Optimizer, error) {
	if p == nil || p.Len() == 0 {
		return nil, &pipeline.ConfigurationError{Field: "pipeline", Err: pipeline.ErrEmptyPipeline, Detail: "nothing to optimize"}
	}
	if executor == nil {
		return nil, &pipeline.ConfigurationError{Field: "executor", Err: pipeline.ErrInvalidSearchConfig, Detail: "an executor is required"}
	}
	if evaluator == nil {
		return nil, &pipeline.ConfigurationError{Field: "evaluator", Err: pipeline.ErrInvalidSearchConfig, Detail: "an evaluator is required"}
	}

	o := &Optimizer{
		root:      p,
		executor:  executor,
		evaluator: evaluator,
		config:    mcts.DefaultPlannerConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Optimize runs one search.
//
// Inputs:
//   - ctx: Cancelling it stops the search between iterations.
//   - iterations: Iteration budget; 0 uses the configured value.
//
// Outputs:
//   - *Result: The frontier, recommendations and statistics.
//   - error: A *pipeline.ConfigurationError if the settings are invalid.
//     Executor failures never surface here.
func (o *Optimizer) Optimize(ctx context.Context, iterations int) (*Result, error) {
	cfg := o.config.EngineConfig()
	if iterations != 0 {
		cfg.Iterations = iterations
	}

	sim := &executorSimulator{
		executor:        o.executor,
		evaluator:       o.evaluator,
		input:           o.input,
		groundTruth:     o.groundTruth,
		maxRetries:      o.config.Execution.MaxRetries,
		initialInterval: o.config.Execution.RetryInitialInterval,
		logger:          o.logger,
	}

	opts := []mcts.EngineOption{mcts.WithLogger(o.logger), mcts.WithMetrics(o.metrics)}
	if o.tracer != nil {
		opts = append(opts, mcts.WithTracer(o.tracer))
	}
	engine, err := mcts.NewEngine(o.root, sim, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("build search engine: %w", err)
	}
	o.engine = engine

	frontier, err := engine.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("run search: %w", err)
	}
	return NewResult(frontier, engine.Stats()), nil
}

// Statistics returns the statistics of the most recent run, or zero values
// before the first one.
func (o *Optimizer) Statistics() mcts.SearchStats {
	if o.engine == nil {
		return mcts.SearchStats{}
	}
	return o.engine.Stats()
}

// Tree returns the search tree of the most recent run, or nil.
func (o *Optimizer) Tree() *mcts.Tree {
	if o.engine == nil {
		return nil
	}
	return o.engine.Tree()
}
