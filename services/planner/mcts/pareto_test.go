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
	"math"
	"slices"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// point builds a frontier point whose hash is determined by impl.
func point(impl string, accuracy, cost float64, elapsed time.Duration) ParetoPoint {
	p := pipeline.MustNew("p", pipeline.Operation{
		Name:       "op",
		Kind:       pipeline.KindMap,
		Candidates: []string{impl},
	})
	return ParetoPoint{
		Pipeline: p,
		Metrics:  ExecutionMetrics{Accuracy: accuracy, Cost: cost, ExecutionTime: elapsed},
	}
}

func implsOf(points []ParetoPoint) []string {
	out := make([]string, 0, len(points))
	for _, p := range points {
		out = append(out, p.Pipeline.At(0).Selected)
	}
	return out
}

func permutations(points []ParetoPoint) [][]ParetoPoint {
	if len(points) <= 1 {
		return [][]ParetoPoint{append([]ParetoPoint(nil), points...)}
	}
	var out [][]ParetoPoint
	for i := range points {
		rest := make([]ParetoPoint, 0, len(points)-1)
		rest = append(rest, points[:i]...)
		rest = append(rest, points[i+1:]...)
		for _, perm := range permutations(rest) {
			out = append(out, append([]ParetoPoint{points[i]}, perm...))
		}
	}
	return out
}

var (
	accurate = point("accurate", 0.9, 0.5, 10*time.Second)
	quick    = point("quick", 0.7, 0.2, 5*time.Second)
	worse    = point("worse", 0.8, 0.6, 20*time.Second) // dominated by accurate
	cheap    = point("cheap", 0.6, 0.1, 30*time.Second)
)

func mustConsider(t *testing.T, f *Frontier, points ...ParetoPoint) {
	t.Helper()
	for _, p := range points {
		if !f.Consider(p) {
			t.Fatalf("Consider(%s) = false, want true", p)
		}
	}
}

func TestParetoPoint_Dominates(t *testing.T) {
	if !accurate.Dominates(worse) {
		t.Error("accurate should dominate worse")
	}
	if worse.Dominates(accurate) {
		t.Error("worse should not dominate accurate")
	}
	if accurate.Dominates(quick) || quick.Dominates(accurate) {
		t.Error("accurate and quick trade off; neither dominates")
	}

	same := point("same", 0.9, 0.5, 10*time.Second)
	if accurate.Dominates(same) || same.Dominates(accurate) {
		t.Error("equal metrics do not dominate")
	}
}

func TestFrontier_OrderIndependent(t *testing.T) {
	want := []string{"accurate", "cheap", "quick"}

	for _, perm := range permutations([]ParetoPoint{accurate, quick, worse, cheap}) {
		f := NewFrontier()
		for _, p := range perm {
			f.Consider(p)
		}
		got := implsOf(f.Points())
		slices.Sort(got)
		if !slices.Equal(got, want) {
			t.Errorf("insertion order %v: frontier = %v, want %v", implsOf(perm), got, want)
		}
	}
}

func TestFrontier_NoMutualDominance(t *testing.T) {
	f := NewFrontier()
	for _, p := range []ParetoPoint{worse, cheap, accurate, quick} {
		f.Consider(p)
	}

	points := f.Points()
	for i := range points {
		for j := range points {
			if i != j && points[i].Dominates(points[j]) {
				t.Errorf("%s dominates %s", points[i], points[j])
			}
		}
	}
}

func TestFrontier_RejectsDominated(t *testing.T) {
	f := NewFrontier()
	mustConsider(t, f, accurate)
	if f.Consider(worse) {
		t.Error("dominated point was inserted")
	}
	if f.Len() != 1 {
		t.Errorf("Len = %d, want 1", f.Len())
	}
	if f.Removed() != 0 {
		t.Errorf("Removed = %d, want 0", f.Removed())
	}
}

func TestFrontier_RemovesNewlyDominated(t *testing.T) {
	f := NewFrontier()
	mustConsider(t, f, worse, accurate)

	if f.Len() != 1 {
		t.Errorf("Len = %d, want 1", f.Len())
	}
	if f.Removed() != 1 {
		t.Errorf("Removed = %d, want 1", f.Removed())
	}
	if f.Contains(worse.Hash()) {
		t.Error("worse still on the frontier")
	}
	if !f.Contains(accurate.Hash()) {
		t.Error("accurate missing from the frontier")
	}
}

func TestFrontier_HistoryIsMonotone(t *testing.T) {
	f := NewFrontier()
	mustConsider(t, f, worse, accurate)

	// Same configuration, now with metrics that nothing on the frontier beats.
	comeback := point("worse", 1.0, 0.0, time.Millisecond)
	if f.Consider(comeback) {
		t.Error("a removed configuration came back")
	}
	if f.Contains(worse.Hash()) {
		t.Error("worse is on the frontier")
	}
}

func TestFrontier_RejectsDuplicateHash(t *testing.T) {
	f := NewFrontier()
	mustConsider(t, f, quick)
	if f.Consider(point("quick", 0.99, 0.01, time.Millisecond)) {
		t.Error("duplicate hash inserted")
	}
	if f.Len() != 1 {
		t.Fatalf("Len = %d, want 1", f.Len())
	}
	if got := f.Points()[0].Metrics.Accuracy; math.Abs(got-0.7) > 1e-9 {
		t.Errorf("Accuracy = %v, want 0.7", got)
	}
}

func TestFrontier_RejectsNilPipeline(t *testing.T) {
	f := NewFrontier()
	if f.Consider(ParetoPoint{}) {
		t.Error("point without a pipeline was inserted")
	}
	if f.Len() != 0 {
		t.Errorf("Len = %d, want 0", f.Len())
	}
}

func TestFrontier_RejectsNonFiniteMetrics(t *testing.T) {
	good := point("good", 0.9, 1, time.Second)

	tests := []struct {
		name  string
		point ParetoPoint
	}{
		{"nan_accuracy", point("nan_acc", math.NaN(), 0.5, time.Second)},
		{"nan_cost", point("nan_cost", 0.95, math.NaN(), time.Second)},
		{"inf_accuracy", point("inf_acc", math.Inf(1), 0.5, time.Second)},
		{"negative_inf_cost", point("neg_inf_cost", 0.95, math.Inf(-1), time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFrontier()
			mustConsider(t, f, good)

			if f.Consider(tt.point) {
				t.Errorf("Consider(%s) = true, want false", tt.point)
			}
			if !f.Contains(good.Hash()) {
				t.Error("good point was evicted")
			}
			if f.Len() != 1 || f.Removed() != 0 {
				t.Errorf("Len = %d, Removed = %d, want 1, 0", f.Len(), f.Removed())
			}
		})
	}
}

func TestFrontier_Sorted(t *testing.T) {
	f := NewFrontier()
	mustConsider(t, f, cheap, quick, accurate)

	if got, want := implsOf(f.SortedByAccuracy()), []string{"accurate", "quick", "cheap"}; !slices.Equal(got, want) {
		t.Errorf("SortedByAccuracy = %v, want %v", got, want)
	}
	if got, want := implsOf(f.SortedByCost()), []string{"cheap", "quick", "accurate"}; !slices.Equal(got, want) {
		t.Errorf("SortedByCost = %v, want %v", got, want)
	}
	if got, want := implsOf(f.SortedByTime()), []string{"quick", "accurate", "cheap"}; !slices.Equal(got, want) {
		t.Errorf("SortedByTime = %v, want %v", got, want)
	}
}

func TestFrontier_Recommendations(t *testing.T) {
	f := NewFrontier()
	mustConsider(t, f, cheap, quick, accurate)

	// accurate: 0.1 + 1.00 + 0.2 = 1.30
	// quick:    0.3 + 0.25 + 0.0 = 0.55
	// cheap:    0.4 + 0.00 + 1.0 = 1.40
	tests := []struct {
		name string
		fn   func() (ParetoPoint, bool)
		want ParetoPoint
	}{
		{"best_accuracy", f.BestAccuracy, accurate},
		{"lowest_cost", f.LowestCost, cheap},
		{"fastest", f.Fastest, quick},
		{"balanced", f.Balanced, quick},
	}
	for _, tt := range tests {
		got, ok := tt.fn()
		if !ok {
			t.Errorf("%s: no recommendation", tt.name)
			continue
		}
		if got.Hash() != tt.want.Hash() {
			t.Errorf("%s = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestFrontier_BalancedSinglePoint(t *testing.T) {
	f := NewFrontier()
	mustConsider(t, f, cheap)

	balanced, ok := f.Balanced()
	if !ok {
		t.Fatal("Balanced returned no point")
	}
	if balanced.Hash() != cheap.Hash() {
		t.Errorf("Balanced = %s, want cheap", balanced)
	}
}

func TestFrontier_EmptyRecommendations(t *testing.T) {
	f := NewFrontier()

	for name, fn := range map[string]func() (ParetoPoint, bool){
		"best_accuracy": f.BestAccuracy,
		"lowest_cost":   f.LowestCost,
		"fastest":       f.Fastest,
		"balanced":      f.Balanced,
	} {
		if _, ok := fn(); ok {
			t.Errorf("%s returned a point on an empty frontier", name)
		}
	}
}
