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
	"fmt"
	"time"
)

// Budget limit names reported in SearchStats.BudgetExhaustedBy.
const (
	BudgetLimitNodes = "nodes"
	BudgetLimitTime  = "time"
	BudgetLimitCost  = "cost"
)

// BudgetConfig bounds a search beyond its iteration count. A zero field
// disables that limit.
type BudgetConfig struct {
	// MaxNodes stops the search once the tree holds this many nodes. One
	// expansion may overshoot by up to MaxChildrenPerNode.
	MaxNodes int `json:"max_nodes" yaml:"max_nodes"`

	// TimeLimit is the wall-clock limit, root simulation included.
	TimeLimit time.Duration `json:"time_limit" yaml:"time_limit"`

	// CostLimit caps the summed executor cost of all successful simulations.
	CostLimit float64 `json:"cost_limit" yaml:"cost_limit"`
}

func (c BudgetConfig) validate() error {
	switch {
	case c.MaxNodes < 0:
		return fmt.Errorf("max_nodes must be >= 0, got %d", c.MaxNodes)
	case c.TimeLimit < 0:
		return fmt.Errorf("time_limit must be >= 0, got %v", c.TimeLimit)
	case c.CostLimit < 0:
		return fmt.Errorf("cost_limit must be >= 0, got %v", c.CostLimit)
	}
	return nil
}

// Unlimited reports whether no limit is set.
func (c BudgetConfig) Unlimited() bool {
	return c.MaxNodes == 0 && c.TimeLimit == 0 && c.CostLimit == 0
}

// SearchBudget tracks what a run has consumed against its BudgetConfig.
// Limits are only checked between iterations, so a run never stops halfway
// through one.
//
// Thread Safety: Not safe for concurrent use. The engine owns it.
type SearchBudget struct {
	config    BudgetConfig
	startTime time.Time
	now       func() time.Time

	spent       float64
	exhaustedBy string
}

// NewSearchBudget creates a budget whose clock starts now.
func NewSearchBudget(config BudgetConfig) *SearchBudget {
	return newSearchBudget(config, time.Now)
}

func newSearchBudget(config BudgetConfig, now func() time.Time) *SearchBudget {
	return &SearchBudget{config: config, startTime: now(), now: now}
}

// RecordSpend adds the executor cost of one simulation.
func (b *SearchBudget) RecordSpend(cost float64) {
	b.spent += cost
}

// Spent returns the summed executor cost.
func (b *SearchBudget) Spent() float64 {
	return b.spent
}

// Elapsed returns the time since the budget was created.
func (b *SearchBudget) Elapsed() time.Duration {
	return b.now().Sub(b.startTime)
}

// Check reports the first exceeded limit for a tree of treeSize nodes, or ""
// while the search may continue. Once a limit trips, Check keeps reporting it.
func (b *SearchBudget) Check(treeSize int) string {
	if b.exhaustedBy != "" {
		return b.exhaustedBy
	}
	switch {
	case b.config.TimeLimit > 0 && b.Elapsed() >= b.config.TimeLimit:
		b.exhaustedBy = BudgetLimitTime
	case b.config.MaxNodes > 0 && treeSize >= b.config.MaxNodes:
		b.exhaustedBy = BudgetLimitNodes
	case b.config.CostLimit > 0 && b.spent >= b.config.CostLimit:
		b.exhaustedBy = BudgetLimitCost
	}
	return b.exhaustedBy
}

// String returns a one-line status.
func (b *SearchBudget) String() string {
	status := ""
	if b.exhaustedBy != "" {
		status = " [exhausted by " + b.exhaustedBy + "]"
	}
	return fmt.Sprintf("Budget{time=%v/%v, cost=$%.4f/$%.4f, max_nodes=%d}%s",
		b.Elapsed().Round(time.Millisecond), b.config.TimeLimit,
		b.spent, b.config.CostLimit, b.config.MaxNodes, status)
}
