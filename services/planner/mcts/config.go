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
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// PlannerConfig contains all search-related configuration.
// This is the top-level config struct that can be loaded from files/env.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type PlannerConfig struct {
	// Search contains MCTS loop settings.
	Search SearchConfig `json:"search" yaml:"search"`

	// Reward contains the metrics-to-reward weights.
	Reward RewardConfig `json:"reward" yaml:"reward"`

	// Execution contains settings for calls to the external executor.
	Execution ExecutionConfig `json:"execution" yaml:"execution"`

	// Budget contains optional node, time and cost limits.
	Budget BudgetConfig `json:"budget" yaml:"budget"`

	// Observability contains tracing, metrics and logging settings.
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// SearchConfig contains MCTS loop settings.
type SearchConfig struct {
	Iterations         int      `json:"iterations" yaml:"iterations"`
	ExplorationWeight  float64  `json:"exploration_weight" yaml:"exploration_weight"`
	MaxChildrenPerNode int      `json:"max_children_per_node" yaml:"max_children_per_node"`
	Seed               *uint64  `json:"seed,omitempty" yaml:"seed,omitempty"`
	Workers            int      `json:"workers" yaml:"workers"`
	ReorderRules       []string `json:"reorder_rules" yaml:"reorder_rules"`
}

// ExecutionConfig contains executor call settings.
type ExecutionConfig struct {
	// MaxRetries is how many times a transient executor failure is retried
	// before the simulation counts as failed. 0 disables retries.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryInitialInterval is the first backoff interval.
	RetryInitialInterval time.Duration `json:"retry_initial_interval" yaml:"retry_initial_interval"`
}

// ObservabilityConfig contains observability settings.
type ObservabilityConfig struct {
	TracingEnabled bool   `json:"tracing_enabled" yaml:"tracing_enabled"`
	MetricsEnabled bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
	LogLevel       string `json:"log_level" yaml:"log_level"`
	ServiceName    string `json:"service_name" yaml:"service_name"`
}

// DefaultPlannerConfig returns the default configuration.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		Search: SearchConfig{
			Iterations:         50,
			ExplorationWeight:  math.Sqrt2,
			MaxChildrenPerNode: 5,
			Workers:            1,
			ReorderRules:       []string{FilterPushdown.Name},
		},
		Reward: DefaultRewardConfig(),
		Execution: ExecutionConfig{
			MaxRetries:           0,
			RetryInitialInterval: 500 * time.Millisecond,
		},
		Observability: ObservabilityConfig{
			TracingEnabled: true,
			MetricsEnabled: true,
			LogLevel:       "info",
			ServiceName:    "planner",
		},
	}
}

// LoadConfig loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - configPath: Path to YAML/JSON config file (optional, can be empty).
//
// Outputs:
//   - PlannerConfig: Merged configuration.
//   - error: Non-nil if the file exists but is invalid, or validation fails.
func LoadConfig(configPath string) (PlannerConfig, error) {
	config := DefaultPlannerConfig()

	if configPath != "" {
		if err := loadConfigFile(configPath, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	loadConfigFromEnv(&config)

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func loadConfigFile(path string, config *PlannerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadConfigFromEnv(config *PlannerConfig) {
	if v := os.Getenv("PLANNER_ITERATIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Search.Iterations = i
		}
	}
	if v := os.Getenv("PLANNER_EXPLORATION_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Search.ExplorationWeight = f
		}
	}
	if v := os.Getenv("PLANNER_MAX_CHILDREN"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Search.MaxChildrenPerNode = i
		}
	}
	if v := os.Getenv("PLANNER_SEED"); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Search.Seed = &u
		}
	}
	if v := os.Getenv("PLANNER_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Search.Workers = i
		}
	}
	if v := os.Getenv("PLANNER_REORDER_RULES"); v != "" {
		var rules []string
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				rules = append(rules, r)
			}
		}
		config.Search.ReorderRules = rules
	}

	if v := os.Getenv("PLANNER_MAX_RETRIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Execution.MaxRetries = i
		}
	}

	if v := os.Getenv("PLANNER_MAX_NODES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Budget.MaxNodes = i
		}
	}
	if v := os.Getenv("PLANNER_TIME_LIMIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Budget.TimeLimit = d
		}
	}
	if v := os.Getenv("PLANNER_COST_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Budget.CostLimit = f
		}
	}

	if v := os.Getenv("PLANNER_TRACING_ENABLED"); v != "" {
		config.Observability.TracingEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PLANNER_METRICS_ENABLED"); v != "" {
		config.Observability.MetricsEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PLANNER_LOG_LEVEL"); v != "" {
		config.Observability.LogLevel = v
	}
}

func invalid(field, format string, args ...any) error {
	return &pipeline.ConfigurationError{
		Field:  field,
		Err:    pipeline.ErrInvalidSearchConfig,
		Detail: fmt.Sprintf(format, args...),
	}
}

// Validate checks that the configuration is valid.
//
// Outputs:
//   - error: A *pipeline.ConfigurationError if configuration is invalid.
func (c PlannerConfig) Validate() error {
	if err := c.Search.validate(); err != nil {
		return err
	}
	if err := c.Reward.validate(); err != nil {
		return invalid("reward", "%v", err)
	}
	if err := c.Budget.validate(); err != nil {
		return invalid("budget", "%v", err)
	}
	if c.Execution.MaxRetries < 0 {
		return invalid("execution.max_retries", "must be >= 0")
	}
	if c.Execution.RetryInitialInterval < 0 {
		return invalid("execution.retry_initial_interval", "must be >= 0")
	}
	return nil
}

func (c SearchConfig) validate() error {
	if c.Iterations < 1 {
		return invalid("search.iterations", "must be >= 1, got %d", c.Iterations)
	}
	if c.ExplorationWeight <= 0 || math.IsInf(c.ExplorationWeight, 0) || math.IsNaN(c.ExplorationWeight) {
		return invalid("search.exploration_weight", "must be a positive real, got %v", c.ExplorationWeight)
	}
	if c.MaxChildrenPerNode < 1 {
		return invalid("search.max_children_per_node", "must be >= 1, got %d", c.MaxChildrenPerNode)
	}
	if c.Workers < 1 {
		return invalid("search.workers", "must be >= 1, got %d", c.Workers)
	}
	for _, name := range c.ReorderRules {
		if _, ok := RuleByName(name); !ok {
			return invalid("search.reorder_rules", "unknown rule %q", name)
		}
	}
	return nil
}

// EngineConfig converts the file configuration into engine settings.
func (c PlannerConfig) EngineConfig() EngineConfig {
	rules := make([]CommutativityRule, 0, len(c.Search.ReorderRules))
	for _, name := range c.Search.ReorderRules {
		if rule, ok := RuleByName(name); ok {
			rules = append(rules, rule)
		}
	}
	return EngineConfig{
		Iterations:         c.Search.Iterations,
		ExplorationWeight:  c.Search.ExplorationWeight,
		MaxChildrenPerNode: c.Search.MaxChildrenPerNode,
		Seed:               c.Search.Seed,
		Workers:            c.Search.Workers,
		Reward:             c.Reward,
		Rules:              rules,
		Budget:             c.Budget,
	}
}
