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
	"math"
	"time"
)

// ExecutionMetrics is an immutable snapshot of one pipeline execution.
type ExecutionMetrics struct {
	// Accuracy in [0, 1]. Higher is better.
	Accuracy float64 `json:"accuracy"`

	// ResourceUnits consumed (tokens, CPU units, ...). Lower is better.
	ResourceUnits int64 `json:"resource_units"`

	// ExecutionTime is the wall time of the execution. Lower is better.
	ExecutionTime time.Duration `json:"execution_time"`

	// Cost derived from the resources consumed. Lower is better.
	Cost float64 `json:"cost"`
}

// String returns a compact representation.
func (m ExecutionMetrics) String() string {
	return fmt.Sprintf("Metrics{accuracy=%.3f, units=%d, time=%s, cost=%.4f}",
		m.Accuracy, m.ResourceUnits, m.ExecutionTime.Round(time.Millisecond), m.Cost)
}

// Finite reports whether Accuracy and Cost are real numbers. NaN compares
// false against everything, so a NaN point would slip past dominance checks.
func (m ExecutionMetrics) Finite() bool {
	return !math.IsNaN(m.Accuracy) && !math.IsInf(m.Accuracy, 0) &&
		!math.IsNaN(m.Cost) && !math.IsInf(m.Cost, 0)
}

// RewardConfig turns metrics into the scalar reward used for backpropagation.
//
//	reward = AccuracyWeight*accuracy
//	       - CostWeight*min(cost/CostScale, 1)
//	       - TimeWeight*min(time/TimeScale, 1)
//
// Increasing in accuracy, non-increasing in cost and time.
type RewardConfig struct {
	AccuracyWeight float64       `json:"accuracy_weight" yaml:"accuracy_weight"`
	CostWeight     float64       `json:"cost_weight" yaml:"cost_weight"`
	TimeWeight     float64       `json:"time_weight" yaml:"time_weight"`
	CostScale      float64       `json:"cost_scale" yaml:"cost_scale"`
	TimeScale      time.Duration `json:"time_scale" yaml:"time_scale"`
}

// DefaultRewardConfig weights accuracy four times as much as each penalty.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		AccuracyWeight: 2.0,
		CostWeight:     0.5,
		TimeWeight:     0.5,
		CostScale:      1.0,
		TimeScale:      60 * time.Second,
	}
}

// Reward computes the scalar reward for m.
func (c RewardConfig) Reward(m ExecutionMetrics) float64 {
	reward := c.AccuracyWeight * m.Accuracy
	if c.CostScale > 0 {
		reward -= c.CostWeight * math.Min(math.Max(m.Cost, 0)/c.CostScale, 1)
	}
	if c.TimeScale > 0 {
		reward -= c.TimeWeight * math.Min(float64(max(m.ExecutionTime, 0))/float64(c.TimeScale), 1)
	}
	return reward
}

// validate reports the first invalid field.
func (c RewardConfig) validate() error {
	switch {
	case c.AccuracyWeight <= 0:
		return fmt.Errorf("reward.accuracy_weight must be > 0")
	case c.CostWeight < 0:
		return fmt.Errorf("reward.cost_weight must be >= 0")
	case c.TimeWeight < 0:
		return fmt.Errorf("reward.time_weight must be >= 0")
	case c.CostScale < 0:
		return fmt.Errorf("reward.cost_scale must be >= 0")
	case c.TimeScale < 0:
		return fmt.Errorf("reward.time_scale must be >= 0")
	}
	return nil
}
