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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Simulation outcomes used as the "outcome" label.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// SearchMetrics exposes search progress as Prometheus metrics.
//
// Thread Safety: Safe for concurrent use.
type SearchMetrics struct {
	iterations         prometheus.Counter
	simulations        *prometheus.CounterVec
	dedupHits          prometheus.Counter
	exhaustedExpansion prometheus.Counter
	frontierSize       prometheus.Gauge
	treeSize           prometheus.Gauge
	simulationDuration prometheus.Histogram
}

// NewSearchMetrics registers the search metrics with reg.
//
// Inputs:
//   - reg: Registerer to use. Pass prometheus.NewRegistry() in tests to
//     avoid duplicate registration against the default registry.
func NewSearchMetrics(reg prometheus.Registerer) *SearchMetrics {
	factory := promauto.With(reg)
	return &SearchMetrics{
		iterations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "planner",
			Name:      "iterations_total",
			Help:      "Search iterations completed.",
		}),
		simulations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "planner",
			Name:      "simulations_total",
			Help:      "Pipeline simulations by outcome.",
		}, []string{"outcome"}),
		dedupHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "planner",
			Name:      "dedup_hits_total",
			Help:      "Generated configurations discarded because they were already visited.",
		}),
		exhaustedExpansion: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "planner",
			Name:      "exhausted_expansions_total",
			Help:      "Expansions that produced no new child.",
		}),
		frontierSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "aleutian",
			Subsystem: "planner",
			Name:      "frontier_size",
			Help:      "Points currently on the Pareto frontier.",
		}),
		treeSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "aleutian",
			Subsystem: "planner",
			Name:      "tree_nodes",
			Help:      "Nodes in the search tree.",
		}),
		simulationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aleutian",
			Subsystem: "planner",
			Name:      "simulation_duration_seconds",
			Help:      "Wall time of simulator calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}

// The methods below are nil-safe so the engine can call them unconditionally.

func (m *SearchMetrics) recordIteration() {
	if m == nil {
		return
	}
	m.iterations.Inc()
}

func (m *SearchMetrics) recordSimulation(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	m.simulations.WithLabelValues(outcome).Inc()
	m.simulationDuration.Observe(elapsed.Seconds())
}

func (m *SearchMetrics) recordDedupHits(n int) {
	if m == nil || n == 0 {
		return
	}
	m.dedupHits.Add(float64(n))
}

func (m *SearchMetrics) recordExhaustedExpansion() {
	if m == nil {
		return
	}
	m.exhaustedExpansion.Inc()
}

func (m *SearchMetrics) setSizes(tree, frontier int) {
	if m == nil {
		return
	}
	m.treeSize.Set(float64(tree))
	m.frontierSize.Set(float64(frontier))
}
