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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianPlanner/services/planner/mcts"
	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// PointRecord is the export form of a frontier point. Scalars only, so any
// encoder can write it.
type PointRecord struct {
	Pipeline             string               `json:"pipeline"`
	ContentHash          string               `json:"content_hash"`
	NodeID               int                  `json:"node_id"`
	Operations           []pipeline.Operation `json:"operations"`
	Accuracy             float64              `json:"accuracy"`
	Cost                 float64              `json:"cost"`
	ResourceUnits        int64                `json:"resource_units"`
	ExecutionTimeSeconds float64              `json:"execution_time_seconds"`
}

// NewPointRecord converts a frontier point.
func NewPointRecord(p mcts.ParetoPoint) PointRecord {
	return PointRecord{
		Pipeline:             p.Pipeline.String(),
		ContentHash:          p.Pipeline.ContentHash(),
		NodeID:               int(p.NodeID),
		Operations:           p.Pipeline.Operations(),
		Accuracy:             p.Metrics.Accuracy,
		Cost:                 p.Metrics.Cost,
		ResourceUnits:        p.Metrics.ResourceUnits,
		ExecutionTimeSeconds: p.Metrics.ExecutionTime.Seconds(),
	}
}

// Recommendations are the four single-point picks from the frontier. Each is
// nil when the frontier is empty.
type Recommendations struct {
	BestAccuracy *PointRecord `json:"best_accuracy"`
	LowestCost   *PointRecord `json:"lowest_cost"`
	Fastest      *PointRecord `json:"fastest"`
	Balanced     *PointRecord `json:"balanced"`
}

func recommend(pick func() (mcts.ParetoPoint, bool)) *PointRecord {
	p, ok := pick()
	if !ok {
		return nil
	}
	rec := NewPointRecord(p)
	return &rec
}

// NewRecommendations computes the recommendations of f.
func NewRecommendations(f *mcts.Frontier) Recommendations {
	return Recommendations{
		BestAccuracy: recommend(f.BestAccuracy),
		LowestCost:   recommend(f.LowestCost),
		Fastest:      recommend(f.Fastest),
		Balanced:     recommend(f.Balanced),
	}
}

// Result is the outcome of one optimization run.
type Result struct {
	RunID           string           `json:"run_id"`
	Frontier        []PointRecord    `json:"frontier"`
	Recommendations Recommendations  `json:"recommendations"`
	Stats           mcts.SearchStats `json:"stats"`
}

// NewResult exports a frontier. Points are ordered by accuracy.
func NewResult(f *mcts.Frontier, stats mcts.SearchStats) *Result {
	points := f.SortedByAccuracy()
	records := make([]PointRecord, 0, len(points))
	for _, p := range points {
		records = append(records, NewPointRecord(p))
	}
	return &Result{
		RunID:           stats.RunID,
		Frontier:        records,
		Recommendations: NewRecommendations(f),
		Stats:           stats,
	}
}

// Summary renders a human-readable report.
func (r *Result) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s: %d iterations, %d simulations (%d failed), %d nodes, %d dedup hits",
		r.RunID, r.Stats.Iterations, r.Stats.Simulations, r.Stats.FailedSimulations,
		r.Stats.TreeSize, r.Stats.DedupHits)
	if r.Stats.Exhausted {
		sb.WriteString(", search space exhausted")
	}
	if r.Stats.BudgetExhaustedBy != "" {
		fmt.Fprintf(&sb, ", stopped by %s budget", r.Stats.BudgetExhaustedBy)
	}
	if r.Stats.Cancelled {
		sb.WriteString(", cancelled")
	}
	fmt.Fprintf(&sb, "\nPareto frontier: %d configuration(s)\n", len(r.Frontier))

	section := func(title string, p *PointRecord) {
		if p == nil {
			return
		}
		fmt.Fprintf(&sb, "\n%s:\n  %s\n  accuracy=%.3f cost=$%.4f units=%d time=%.2fs\n",
			title, p.Pipeline, p.Accuracy, p.Cost, p.ResourceUnits, p.ExecutionTimeSeconds)
	}
	section("Best accuracy", r.Recommendations.BestAccuracy)
	section("Lowest cost", r.Recommendations.LowestCost)
	section("Fastest", r.Recommendations.Fastest)
	section("Balanced", r.Recommendations.Balanced)
	return sb.String()
}
