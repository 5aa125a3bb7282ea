// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcts

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const plannerTracerName = "aleutian.planner"

// SearchTracer provides OpenTelemetry tracing for the search phases.
//
// Thread Safety: Safe for concurrent use.
type SearchTracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// NewSearchTracer creates a tracer backed by the global tracer provider.
//
// Inputs:
//   - logger: Logger for structured logging (can be nil for the default).
//   - config: Observability configuration.
func NewSearchTracer(logger *slog.Logger, config ObservabilityConfig) *SearchTracer {
	return NewSearchTracerWithProvider(otel.GetTracerProvider(), logger, config)
}

// NewSearchTracerWithProvider creates a tracer from an explicit provider.
func NewSearchTracerWithProvider(tp trace.TracerProvider, logger *slog.Logger, config ObservabilityConfig) *SearchTracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchTracer{
		tracer:  tp.Tracer(plannerTracerName),
		logger:  logger,
		enabled: config.TracingEnabled,
	}
}

// StartRun starts the span covering one search run.
func (t *SearchTracer) StartRun(ctx context.Context, runID string, root *Node, config EngineConfig) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "planner.run",
		trace.WithAttributes(
			attribute.String("planner.run_id", runID),
			attribute.String("planner.root", root.Pipeline().String()),
			attribute.String("planner.root_hash", root.Pipeline().ContentHash()),
			attribute.Int("planner.iterations", config.Iterations),
			attribute.Int("planner.max_children", config.MaxChildrenPerNode),
			attribute.Float64("planner.exploration_weight", config.ExplorationWeight),
			attribute.Int("planner.workers", config.Workers),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndRun completes the run span.
func (t *SearchTracer) EndRun(span trace.Span, stats SearchStats, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(
		attribute.Int("planner.result.iterations", stats.Iterations),
		attribute.Int("planner.result.tree_size", stats.TreeSize),
		attribute.Int("planner.result.frontier_size", stats.FrontierSize),
		attribute.Int("planner.result.dedup_hits", stats.DedupHits),
		attribute.Int("planner.result.failed_simulations", stats.FailedSimulations),
		attribute.Bool("planner.result.exhausted", stats.Exhausted),
		attribute.Float64("planner.result.simulated_cost", stats.SimulatedCost),
		attribute.String("planner.result.budget_exhausted_by", stats.BudgetExhaustedBy),
	)
	span.End()
}

// TraceIteration starts the span of one iteration.
func (t *SearchTracer) TraceIteration(ctx context.Context, iteration int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "planner.iteration",
		trace.WithAttributes(attribute.Int("planner.iteration", iteration)),
	)
}

// TraceSelect records the selection phase as a completed span.
func (t *SearchTracer) TraceSelect(ctx context.Context, selected *Node) {
	t.logger.DebugContext(ctx, "planner select",
		slog.Int("node_id", int(selected.ID())),
		slog.Int("depth", selected.Depth()),
		slog.Int64("visits", selected.Visits()),
		slog.Float64("avg_reward", selected.AvgReward()),
	)
	if !t.enabled {
		return
	}
	_, span := t.tracer.Start(ctx, "planner.select",
		trace.WithAttributes(
			attribute.Int("planner.node_id", int(selected.ID())),
			attribute.Int("planner.node_depth", selected.Depth()),
			attribute.Int64("planner.node_visits", selected.Visits()),
			attribute.Float64("planner.node_avg_reward", selected.AvgReward()),
		),
	)
	span.End()
}

// TraceExpand starts the expansion span.
func (t *SearchTracer) TraceExpand(ctx context.Context, parent *Node) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "planner.expand",
		trace.WithAttributes(
			attribute.Int("planner.parent_id", int(parent.ID())),
			attribute.Int("planner.parent_children", parent.ChildCount()),
		),
	)
}

// EndExpand completes the expansion span.
func (t *SearchTracer) EndExpand(span trace.Span, generated, created, dedupHits int) {
	span.SetAttributes(
		attribute.Int("planner.expand.generated", generated),
		attribute.Int("planner.expand.created", created),
		attribute.Int("planner.expand.dedup_hits", dedupHits),
	)
	span.End()
	t.logger.Debug("planner expand completed",
		slog.Int("generated", generated),
		slog.Int("created", created),
		slog.Int("dedup_hits", dedupHits),
	)
}

// TraceSimulate starts the simulation span.
func (t *SearchTracer) TraceSimulate(ctx context.Context, node *Node) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "planner.simulate",
		trace.WithAttributes(
			attribute.Int("planner.node_id", int(node.ID())),
			attribute.String("planner.pipeline", node.Pipeline().String()),
		),
	)
}

// EndSimulate completes the simulation span.
func (t *SearchTracer) EndSimulate(span trace.Span, metrics *ExecutionMetrics, reward float64, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.Float64("planner.simulate.reward", reward))
	if metrics != nil {
		span.SetAttributes(
			attribute.Float64("planner.simulate.accuracy", metrics.Accuracy),
			attribute.Float64("planner.simulate.cost", metrics.Cost),
			attribute.Int64("planner.simulate.resource_units", metrics.ResourceUnits),
			attribute.String("planner.simulate.execution_time", metrics.ExecutionTime.String()),
		)
	}
	span.End()
}

// TraceBackpropagate records the backpropagation of reward from node.
func (t *SearchTracer) TraceBackpropagate(ctx context.Context, node *Node, reward float64, nodesUpdated int, frontierAccepted bool) {
	if !t.enabled {
		return
	}
	_, span := t.tracer.Start(ctx, "planner.backpropagate",
		trace.WithAttributes(
			attribute.Int("planner.node_id", int(node.ID())),
			attribute.Float64("planner.backprop.reward", reward),
			attribute.Int("planner.backprop.nodes_updated", nodesUpdated),
			attribute.Bool("planner.backprop.frontier_accepted", frontierAccepted),
		),
	)
	span.End()
}

// TraceStall records an expansion that produced no new children.
func (t *SearchTracer) TraceStall(ctx context.Context, node *Node) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("expansion_exhausted",
		trace.WithAttributes(
			attribute.Int("node_id", int(node.ID())),
			attribute.Int64("visits", node.Visits()),
		),
	)
}

// LoggerWithTrace returns a logger with trace context.
//
// Inputs:
//   - ctx: Context that may contain trace information.
//   - logger: Base logger.
//
// Outputs:
//   - *slog.Logger: Logger with trace_id and span_id if available.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
