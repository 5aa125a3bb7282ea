// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mockexec provides a deterministic simulated executor and a label
// matching evaluator for demos and tests.
//
// Each implementation has a profile: how often it keeps a record's label
// correct, what it charges per thousand tokens, and how long it takes per
// record. Whether a given stage corrupts a given record is a pure function of
// (record id, stage name, implementation), so a configuration always scores
// the same no matter when or how often it runs.
package mockexec

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/AleutianAI/AleutianPlanner/services/planner/optimizer"
	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// Record fields read and written by the executor.
const (
	FieldID    = "id"
	FieldText  = "text"
	FieldLabel = "label"
)

// ErrUnknownImplementation is returned for an implementation with no profile
// when the executor has no fallback.
var ErrUnknownImplementation = errors.New("no profile for implementation")

// errInjected is the cause of injected transient failures.
var errInjected = errors.New("injected transient failure")

// Profile describes one simulated implementation.
type Profile struct {
	// Accuracy is the probability a record's label survives the stage.
	Accuracy float64

	// PricePer1K is the price per thousand tokens. Zero for programmatic
	// implementations.
	PricePer1K float64

	// TokensPerRecord is the base token usage per record. The operation's
	// Spec adds two tokens per character.
	TokensPerRecord int

	// Latency is the simulated time per record.
	Latency time.Duration
}

// DefaultProfiles returns the built-in implementation table.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"gpt-4o":            {Accuracy: 0.92, PricePer1K: 0.005, TokensPerRecord: 500, Latency: 40 * time.Millisecond},
		"gpt-4o-mini":       {Accuracy: 0.85, PricePer1K: 0.0005, TokensPerRecord: 500, Latency: 15 * time.Millisecond},
		"claude-3-5-sonnet": {Accuracy: 0.90, PricePer1K: 0.003, TokensPerRecord: 500, Latency: 30 * time.Millisecond},
		"gpt-3.5-turbo":     {Accuracy: 0.80, PricePer1K: 0.0005, TokensPerRecord: 500, Latency: 10 * time.Millisecond},
		"model":             {Accuracy: 0.88, PricePer1K: 0.002, TokensPerRecord: 500, Latency: 25 * time.Millisecond},
		"keyword":           {Accuracy: 0.70, TokensPerRecord: 50, Latency: time.Millisecond},
		"rule_based":        {Accuracy: 0.70, TokensPerRecord: 50, Latency: time.Millisecond},
		"regex":             {Accuracy: 0.75, TokensPerRecord: 50, Latency: time.Millisecond},
	}
}

// FallbackProfile is used for unknown implementations by NewExecutor.
var FallbackProfile = Profile{Accuracy: 0.75, PricePer1K: 0.001, TokensPerRecord: 500, Latency: 20 * time.Millisecond}

// Executor simulates pipeline execution.
//
// Filter stages read the "selectivity" param (fraction of records kept,
// default 1) and drop records deterministically, so moving a filter ahead of
// a map lowers the map's volume and cost. Reduce stages process the batch as
// a single call.
//
// Thread Safety: Safe for concurrent use.
type Executor struct {
	profiles map[string]Profile
	fallback *Profile

	mu        sync.Mutex
	transient map[string]int
	runs      int
}

// Option configures the executor.
type Option func(*Executor)

// WithProfile adds or replaces the profile of impl.
func WithProfile(impl string, p Profile) Option {
	return func(e *Executor) {
		e.profiles[impl] = p
	}
}

// WithoutFallback makes unknown implementations fail the run.
func WithoutFallback() Option {
	return func(e *Executor) {
		e.fallback = nil
	}
}

// WithTransientFailures makes the first n runs that use impl fail with a
// transient ExecutionFailure.
func WithTransientFailures(impl string, n int) Option {
	return func(e *Executor) {
		e.transient[impl] = n
	}
}

// NewExecutor creates an executor with DefaultProfiles and FallbackProfile.
func NewExecutor(opts ...Option) *Executor {
	fallback := FallbackProfile
	e := &Executor{
		profiles:  DefaultProfiles(),
		fallback:  &fallback,
		transient: make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Runs returns how many times Run was called, failed calls included.
func (e *Executor) Runs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs
}

func (e *Executor) profile(impl string) (Profile, bool) {
	if p, ok := e.profiles[impl]; ok {
		return p, true
	}
	if e.fallback != nil {
		return *e.fallback, true
	}
	return Profile{}, false
}

// injectFailure consumes one pending transient failure of any implementation
// used by p.
func (e *Executor) injectFailure(p *pipeline.Pipeline) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs++
	for _, op := range p.Operations() {
		if e.transient[op.Selected] > 0 {
			e.transient[op.Selected]--
			return op.Name, true
		}
	}
	return "", false
}

// Run implements optimizer.Executor.
func (e *Executor) Run(ctx context.Context, p *pipeline.Pipeline, input optimizer.Batch) (optimizer.Batch, optimizer.PartialMetrics, error) {
	var metrics optimizer.PartialMetrics
	if err := ctx.Err(); err != nil {
		return nil, metrics, &optimizer.ExecutionFailure{Err: err}
	}
	if stage, ok := e.injectFailure(p); ok {
		return nil, metrics, &optimizer.ExecutionFailure{Stage: stage, Err: errInjected, Transient: true}
	}

	records := input.Clone()
	for _, op := range p.Operations() {
		prof, ok := e.profile(op.Selected)
		if !ok {
			return nil, optimizer.PartialMetrics{}, &optimizer.ExecutionFailure{
				Stage: op.Name,
				Err:   fmt.Errorf("%w %q", ErrUnknownImplementation, op.Selected),
			}
		}
		tokens := int64(prof.TokensPerRecord + 2*len(op.Spec))

		calls := len(records)
		if op.Kind == pipeline.KindReduce && calls > 0 {
			calls = 1
		}
		metrics.ResourceUnits += tokens * int64(calls)
		metrics.Cost += float64(tokens*int64(calls)) / 1000 * prof.PricePer1K
		metrics.ExecutionTime += prof.Latency * time.Duration(calls)

		for _, r := range records {
			if !survives(r, op, prof.Accuracy) {
				r[FieldLabel] = "corrupted:" + op.Name
			}
		}
		if op.Kind == pipeline.KindFilter {
			records = applySelectivity(records, selectivity(op))
		}
	}
	return records, metrics, nil
}

// survives draws a deterministic uniform value for (record, stage, impl).
func survives(r optimizer.Record, op pipeline.Operation, accuracy float64) bool {
	key := fmt.Sprintf("%v\x1f%s\x1f%s", r[FieldID], op.Name, op.Selected)
	draw := float64(xxhash.Sum64String(key)>>11) / float64(1<<53)
	return draw < accuracy
}

func selectivity(op pipeline.Operation) float64 {
	switch v := op.Params["selectivity"].(type) {
	case float64:
		return math.Max(0, math.Min(1, v))
	case int:
		return math.Max(0, math.Min(1, float64(v)))
	default:
		return 1
	}
}

// applySelectivity keeps the first ceil(n*fraction) records.
func applySelectivity(records optimizer.Batch, fraction float64) optimizer.Batch {
	keep := int(math.Ceil(float64(len(records)) * fraction))
	return records[:min(keep, len(records))]
}
