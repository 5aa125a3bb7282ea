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
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// ParetoPoint pairs a configuration with the metrics of its execution.
type ParetoPoint struct {
	Pipeline *pipeline.Pipeline
	Metrics  ExecutionMetrics

	// NodeID is the search tree node that produced the point.
	NodeID NodeID

	// seq is the insertion sequence number, used for stable ordering.
	seq int64
}

// Hash returns the pipeline content hash.
func (p ParetoPoint) Hash() string {
	return p.Pipeline.ContentHash()
}

// Dominates reports whether p is no worse than other on accuracy (higher),
// cost (lower) and execution time (lower), and strictly better on at least
// one of them.
func (p ParetoPoint) Dominates(other ParetoPoint) bool {
	a, b := p.Metrics, other.Metrics
	if a.Accuracy < b.Accuracy || a.Cost > b.Cost || a.ExecutionTime > b.ExecutionTime {
		return false
	}
	return a.Accuracy > b.Accuracy || a.Cost < b.Cost || a.ExecutionTime < b.ExecutionTime
}

// String returns a compact representation.
func (p ParetoPoint) String() string {
	return fmt.Sprintf("%s %s", p.Pipeline, p.Metrics)
}

// Frontier maintains the set of mutually non-dominated points.
//
// History is monotone: a point removed because something dominated it is
// never admitted again, and neither is a second point for a hash that is
// already on the frontier.
//
// Thread Safety: Safe for concurrent use. Consider calls are serialized.
type Frontier struct {
	mu      sync.RWMutex
	points  []ParetoPoint
	onFront map[string]struct{}
	removed map[string]struct{}
	nextSeq int64
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{
		onFront: make(map[string]struct{}),
		removed: make(map[string]struct{}),
	}
}

// Consider offers a point to the frontier.
//
// Inputs:
//   - point: The candidate. Its Pipeline must be non-nil and its metrics
//     finite.
//
// Outputs:
//   - bool: True if the point was inserted. False if an existing point
//     dominates it, or its hash is already present or was removed earlier.
func (f *Frontier) Consider(point ParetoPoint) bool {
	if point.Pipeline == nil || !point.Metrics.Finite() {
		return false
	}
	hash := point.Hash()

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.onFront[hash]; ok {
		return false
	}
	if _, ok := f.removed[hash]; ok {
		return false
	}

	for _, existing := range f.points {
		if existing.Dominates(point) {
			return false
		}
	}

	kept := f.points[:0]
	for _, existing := range f.points {
		if point.Dominates(existing) {
			delete(f.onFront, existing.Hash())
			f.removed[existing.Hash()] = struct{}{}
			continue
		}
		kept = append(kept, existing)
	}

	point.seq = f.nextSeq
	f.nextSeq++
	f.points = append(kept, point)
	f.onFront[hash] = struct{}{}
	return true
}

// Len returns the number of points on the frontier.
func (f *Frontier) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.points)
}

// Removed returns how many points were dropped for being dominated.
func (f *Frontier) Removed() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.removed)
}

// Contains reports whether a pipeline with the given hash is on the frontier.
func (f *Frontier) Contains(hash string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.onFront[hash]
	return ok
}

// Points returns a snapshot of the frontier in insertion order.
func (f *Frontier) Points() []ParetoPoint {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.points)
}

func bySeq(a, b ParetoPoint) int {
	return cmp.Compare(a.seq, b.seq)
}

func byAccuracy(a, b ParetoPoint) int {
	return cmp.Or(
		cmp.Compare(b.Metrics.Accuracy, a.Metrics.Accuracy),
		cmp.Compare(a.Metrics.Cost, b.Metrics.Cost),
		cmp.Compare(a.Metrics.ExecutionTime, b.Metrics.ExecutionTime),
		bySeq(a, b),
	)
}

func byCost(a, b ParetoPoint) int {
	return cmp.Or(
		cmp.Compare(a.Metrics.Cost, b.Metrics.Cost),
		cmp.Compare(b.Metrics.Accuracy, a.Metrics.Accuracy),
		cmp.Compare(a.Metrics.ExecutionTime, b.Metrics.ExecutionTime),
		bySeq(a, b),
	)
}

func byTime(a, b ParetoPoint) int {
	return cmp.Or(
		cmp.Compare(a.Metrics.ExecutionTime, b.Metrics.ExecutionTime),
		cmp.Compare(b.Metrics.Accuracy, a.Metrics.Accuracy),
		cmp.Compare(a.Metrics.Cost, b.Metrics.Cost),
		bySeq(a, b),
	)
}

func (f *Frontier) sorted(fn func(a, b ParetoPoint) int) []ParetoPoint {
	points := f.Points()
	slices.SortStableFunc(points, fn)
	return points
}

// SortedByAccuracy orders by accuracy desc, then cost asc, then time asc.
func (f *Frontier) SortedByAccuracy() []ParetoPoint {
	return f.sorted(byAccuracy)
}

// SortedByCost orders by cost asc, then accuracy desc, then time asc.
func (f *Frontier) SortedByCost() []ParetoPoint {
	return f.sorted(byCost)
}

// SortedByTime orders by execution time asc, then accuracy desc, then cost asc.
func (f *Frontier) SortedByTime() []ParetoPoint {
	return f.sorted(byTime)
}

func first(points []ParetoPoint) (ParetoPoint, bool) {
	if len(points) == 0 {
		return ParetoPoint{}, false
	}
	return points[0], true
}

// BestAccuracy returns the most accurate point; ties go to the cheaper one.
func (f *Frontier) BestAccuracy() (ParetoPoint, bool) {
	return first(f.SortedByAccuracy())
}

// LowestCost returns the cheapest point; ties go to the more accurate one.
func (f *Frontier) LowestCost() (ParetoPoint, bool) {
	return first(f.SortedByCost())
}

// Fastest returns the point with the lowest execution time; ties go to the
// more accurate one.
func (f *Frontier) Fastest() (ParetoPoint, bool) {
	return first(f.SortedByTime())
}

// Balanced returns the point minimizing
//
//	(1 - accuracy) + cost_norm + time_norm
//
// where x_norm = (x - min) / (max - min) over the current frontier, and 0
// when every point has the same value. Ties resolve in SortedByAccuracy order.
func (f *Frontier) Balanced() (ParetoPoint, bool) {
	points := f.SortedByAccuracy()
	if len(points) == 0 {
		return ParetoPoint{}, false
	}

	minCost, maxCost := points[0].Metrics.Cost, points[0].Metrics.Cost
	minTime, maxTime := points[0].Metrics.ExecutionTime, points[0].Metrics.ExecutionTime
	for _, p := range points[1:] {
		minCost = min(minCost, p.Metrics.Cost)
		maxCost = max(maxCost, p.Metrics.Cost)
		minTime = min(minTime, p.Metrics.ExecutionTime)
		maxTime = max(maxTime, p.Metrics.ExecutionTime)
	}

	best := points[0]
	bestScore := balancedScore(best, minCost, maxCost, float64(minTime), float64(maxTime))
	for _, p := range points[1:] {
		score := balancedScore(p, minCost, maxCost, float64(minTime), float64(maxTime))
		if score < bestScore {
			best, bestScore = p, score
		}
	}
	return best, true
}

func balancedScore(p ParetoPoint, minCost, maxCost, minTime, maxTime float64) float64 {
	return (1 - p.Metrics.Accuracy) +
		normalize(p.Metrics.Cost, minCost, maxCost) +
		normalize(float64(p.Metrics.ExecutionTime), minTime, maxTime)
}

func normalize(v, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	return (v - lo) / (hi - lo)
}
