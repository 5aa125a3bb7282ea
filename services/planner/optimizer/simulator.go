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
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/AleutianAI/AleutianPlanner/services/planner/mcts"
	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// executorSimulator adapts an Executor and an Evaluator to mcts.Simulator.
//
// Thread Safety: Safe for concurrent use if the executor and evaluator are.
type executorSimulator struct {
	executor    Executor
	evaluator   Evaluator
	input       Batch
	groundTruth Batch

	maxRetries      int
	initialInterval time.Duration

	logger *slog.Logger
}

type runOutput struct {
	predictions Batch
	partial     PartialMetrics
}

// Simulate runs the executor, retrying transient failures, and scores the
// output.
func (s *executorSimulator) Simulate(ctx context.Context, p *pipeline.Pipeline) (mcts.ExecutionMetrics, error) {
	start := time.Now()
	attempt := 0

	out, err := backoff.Retry(ctx, func() (runOutput, error) {
		attempt++
		predictions, partial, err := s.executor.Run(ctx, p, s.input.Clone())
		if err != nil {
			if IsTransient(err) {
				return runOutput{}, err
			}
			return runOutput{}, backoff.Permanent(err)
		}
		return runOutput{predictions: predictions, partial: partial}, nil
	},
		backoff.WithBackOff(s.backOff()),
		backoff.WithMaxTries(uint(s.maxRetries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Debug("retrying transient executor failure",
				slog.String("pipeline", p.String()),
				slog.Int("attempt", attempt),
				slog.Duration("next", next),
				slog.String("error", err.Error()))
		}),
	)
	if err != nil {
		return mcts.ExecutionMetrics{}, err
	}

	elapsed := out.partial.ExecutionTime
	if elapsed <= 0 {
		elapsed = time.Since(start)
	}
	return mcts.ExecutionMetrics{
		Accuracy:      clamp01(s.evaluator.Score(s.groundTruth, out.predictions)),
		ResourceUnits: out.partial.ResourceUnits,
		ExecutionTime: elapsed,
		Cost:          out.partial.Cost,
	}, nil
}

func (s *executorSimulator) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if s.initialInterval > 0 {
		b.InitialInterval = s.initialInterval
	}
	return b
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
