// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package optimizer wires the search engine to an external pipeline executor
// and accuracy evaluator.
//
// The planner never runs stages itself. An Executor runs a configuration over
// an input batch and reports resource usage; an Evaluator compares the output
// with ground truth. The optimizer turns both into the engine's Simulator.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// Record is one item flowing through a pipeline.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	return maps.Clone(r)
}

// Batch is an ordered set of records.
type Batch []Record

// Clone returns a copy of the batch with every record cloned.
func (b Batch) Clone() Batch {
	if b == nil {
		return nil
	}
	out := make(Batch, len(b))
	for i, r := range b {
		out[i] = r.Clone()
	}
	return out
}

// PartialMetrics is what an executor can measure by itself. Accuracy comes
// from the Evaluator.
type PartialMetrics struct {
	ResourceUnits int64         `json:"resource_units"`
	ExecutionTime time.Duration `json:"execution_time"`
	Cost          float64       `json:"cost"`
}

// Executor runs a pipeline configuration over an input batch.
//
// Implementations must not retain or modify input. Failures should be
// returned as *ExecutionFailure so transient ones can be retried.
type Executor interface {
	Run(ctx context.Context, p *pipeline.Pipeline, input Batch) (Batch, PartialMetrics, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, p *pipeline.Pipeline, input Batch) (Batch, PartialMetrics, error)

// Run implements Executor.
func (f ExecutorFunc) Run(ctx context.Context, p *pipeline.Pipeline, input Batch) (Batch, PartialMetrics, error) {
	return f(ctx, p, input)
}

// Evaluator scores predictions against ground truth. Scores outside [0, 1]
// are clamped by the optimizer.
type Evaluator interface {
	Score(groundTruth, predictions Batch) float64
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(groundTruth, predictions Batch) float64

// Score implements Evaluator.
func (f EvaluatorFunc) Score(groundTruth, predictions Batch) float64 {
	return f(groundTruth, predictions)
}

// ExecutionFailure is an executor error attributed to a pipeline stage.
type ExecutionFailure struct {
	// Stage is the operation name, or empty if the failure is not tied to one.
	Stage string

	// Err is the underlying cause.
	Err error

	// Transient marks failures worth retrying (timeouts, rate limits).
	Transient bool
}

// Error implements error.
func (e *ExecutionFailure) Error() string {
	kind := "execution failed"
	if e.Transient {
		kind = "transient execution failure"
	}
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", kind, e.Err)
	}
	return fmt.Sprintf("%s at stage %q: %v", kind, e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ExecutionFailure) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is, or wraps, a transient ExecutionFailure.
func IsTransient(err error) bool {
	var failure *ExecutionFailure
	return errors.As(err, &failure) && failure.Transient
}
