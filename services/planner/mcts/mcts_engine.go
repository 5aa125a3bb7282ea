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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// Simulator executes and scores one pipeline configuration.
//
// It is the only blocking call in the search loop. It carries no timeout of
// its own; callers bound it through ctx.
type Simulator interface {
	Simulate(ctx context.Context, p *pipeline.Pipeline) (ExecutionMetrics, error)
}

// SimulatorFunc adapts a function to Simulator.
type SimulatorFunc func(ctx context.Context, p *pipeline.Pipeline) (ExecutionMetrics, error)

// Simulate implements Simulator.
func (f SimulatorFunc) Simulate(ctx context.Context, p *pipeline.Pipeline) (ExecutionMetrics, error) {
	return f(ctx, p)
}

// EngineConfig configures one search run.
type EngineConfig struct {
	// Iterations is the iteration budget. Pure step count.
	Iterations int

	// ExplorationWeight is the UCB1 exploration constant (default: sqrt(2)).
	ExplorationWeight float64

	// MaxChildrenPerNode caps the candidates requested per expansion.
	MaxChildrenPerNode int

	// Seed fixes the ordering of untried mutations. Nil picks a random seed,
	// which is reported in SearchStats so the run can be repeated.
	Seed *uint64

	// Workers > 1 simulates up to that many new children of one expansion
	// concurrently. Default: 1.
	Workers int

	// Reward turns metrics into the backpropagated scalar.
	Reward RewardConfig

	// Rules are the reorder rules. Empty disables reordering.
	Rules []CommutativityRule

	// Budget optionally stops the search before Iterations is reached.
	Budget BudgetConfig
}

// DefaultEngineConfig returns the engine settings of DefaultPlannerConfig.
func DefaultEngineConfig() EngineConfig {
	return DefaultPlannerConfig().EngineConfig()
}

// WithSeed returns a copy of c with a fixed seed.
func (c EngineConfig) WithSeed(seed uint64) EngineConfig {
	c.Seed = &seed
	return c
}

// Validate checks the engine settings.
//
// Outputs:
//   - error: A *pipeline.ConfigurationError if a setting is invalid.
func (c EngineConfig) Validate() error {
	if c.Iterations < 1 {
		return invalid("iterations", "must be >= 1, got %d", c.Iterations)
	}
	if c.ExplorationWeight <= 0 || math.IsInf(c.ExplorationWeight, 0) || math.IsNaN(c.ExplorationWeight) {
		return invalid("exploration_weight", "must be a positive real, got %v", c.ExplorationWeight)
	}
	if c.MaxChildrenPerNode < 1 {
		return invalid("max_children_per_node", "must be >= 1, got %d", c.MaxChildrenPerNode)
	}
	if c.Workers < 1 {
		return invalid("workers", "must be >= 1, got %d", c.Workers)
	}
	if err := c.Reward.validate(); err != nil {
		return invalid("reward", "%v", err)
	}
	if err := c.Budget.validate(); err != nil {
		return invalid("budget", "%v", err)
	}
	return nil
}

// SearchStats summarizes a run. All counters are cumulative.
type SearchStats struct {
	RunID               string `json:"run_id"`
	Seed                uint64 `json:"seed"`
	Iterations          int    `json:"iterations"`
	TreeSize            int    `json:"tree_size"`
	MaxDepth            int    `json:"max_depth"`
	Simulations         int    `json:"simulations"`
	FailedSimulations   int    `json:"failed_simulations"`
	DedupHits           int    `json:"dedup_hits"`
	ExhaustedExpansions int    `json:"exhausted_expansions"`
	FrontierSize        int    `json:"frontier_size"`
	Exhausted           bool   `json:"exhausted"`
	Cancelled           bool   `json:"cancelled"`

	// SimulatedCost sums the executor cost of successful simulations.
	SimulatedCost float64 `json:"simulated_cost"`

	// BudgetExhaustedBy names the budget limit that ended the run, if any.
	BudgetExhaustedBy string `json:"budget_exhausted_by,omitempty"`
}

// Engine runs the MCTS loop over pipeline configurations.
//
// The engine performs the classic MCTS loop:
//  1. SELECT: descend by UCB1 through fully expanded nodes
//  2. EXPAND: request mutations, drop already visited configurations
//  3. SIMULATE: execute and score a new child
//  4. BACKPROPAGATE: update rewards to the root, offer to the frontier
//
// One Engine is built per run. The visited set and the frontier are fields
// of the engine and nothing else mutates them.
//
// Thread Safety: Not safe for concurrent use. Run must be called once.
type Engine struct {
	tree      *Tree
	generator *ActionGenerator
	frontier  *Frontier
	visited   map[string]NodeID
	simulator Simulator
	config    EngineConfig

	seed  uint64
	runID  string
	stats  SearchStats
	budget *SearchBudget
	ran    bool

	tracer  *SearchTracer
	metrics *SearchMetrics
	logger  *slog.Logger
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer for observability.
func WithTracer(tracer *SearchTracer) EngineOption {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(metrics *SearchMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithRunID sets the run identifier used in logs and spans.
func WithRunID(id string) EngineOption {
	return func(e *Engine) {
		if id != "" {
			e.runID = id
		}
	}
}

// NewEngine creates an engine whose tree is rooted at root.
//
// Inputs:
//   - root: The initial configuration. Must be a non-empty pipeline.
//   - simulator: Executes and scores configurations.
//   - config: Engine configuration.
//   - opts: Optional configuration functions.
//
// Outputs:
//   - *Engine: Ready to Run.
//   - error: A *pipeline.ConfigurationError for an invalid root or config.
func NewEngine(root *pipeline.Pipeline, simulator Simulator, config EngineConfig, opts ...EngineOption) (*Engine, error) {
	if root == nil || root.Len() == 0 {
		return nil, &pipeline.ConfigurationError{Field: "root", Err: pipeline.ErrEmptyPipeline, Detail: "search needs a non-empty root pipeline"}
	}
	if simulator == nil {
		return nil, invalid("simulator", "a simulator is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	seed := rand.Uint64()
	if config.Seed != nil {
		seed = *config.Seed
	}

	e := &Engine{
		tree:      NewTree(root),
		generator: NewActionGenerator(seed, config.Rules...),
		frontier:  NewFrontier(),
		visited:   map[string]NodeID{root.ContentHash(): 0},
		simulator: simulator,
		config:    config,
		seed:      seed,
		runID:     uuid.NewString(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = NewSearchTracer(e.logger, ObservabilityConfig{TracingEnabled: false})
	}
	e.stats.RunID = e.runID
	e.stats.Seed = seed
	return e, nil
}

// Tree returns the search tree.
func (e *Engine) Tree() *Tree {
	return e.tree
}

// Frontier returns the Pareto frontier.
func (e *Engine) Frontier() *Frontier {
	return e.frontier
}

// Generator returns the action generator.
func (e *Engine) Generator() *ActionGenerator {
	return e.generator
}

// Stats returns a snapshot of the search statistics.
func (e *Engine) Stats() SearchStats {
	s := e.stats
	s.TreeSize = e.tree.Len()
	s.MaxDepth = e.tree.MaxDepth()
	s.FrontierSize = e.frontier.Len()
	return s
}

// Run executes the search.
//
// The root is simulated once before the first iteration. The loop then runs
// exactly config.Iterations iterations unless the search space is exhausted
// first or ctx is cancelled between iterations. Simulation failures never
// abort the loop.
//
// Outputs:
//   - *Frontier: The accumulated Pareto frontier.
//   - error: Non-nil only if Run was called twice.
func (e *Engine) Run(ctx context.Context) (*Frontier, error) {
	if e.ran {
		return e.frontier, errors.New("engine already ran; build a new engine per search")
	}
	e.ran = true

	ctx, span := e.tracer.StartRun(ctx, e.runID, e.tree.Root(), e.config)
	logger := LoggerWithTrace(ctx, e.logger).With(slog.String("run_id", e.runID))

	logger.Info("search started",
		slog.String("root", e.tree.Root().Pipeline().String()),
		slog.Int("iterations", e.config.Iterations),
		slog.Int("max_children", e.config.MaxChildrenPerNode),
		slog.Float64("exploration_weight", e.config.ExplorationWeight),
		slog.Uint64("seed", e.seed),
	)
	start := time.Now()
	e.budget = NewSearchBudget(e.config.Budget)

	e.simulateNodes(ctx, logger, []NodeID{e.tree.Root().ID()})

	for iteration := 0; iteration < e.config.Iterations; iteration++ {
		if ctx.Err() != nil {
			e.stats.Cancelled = true
			logger.Info("search cancelled", slog.Int("iteration", iteration))
			break
		}
		if limit := e.budget.Check(e.tree.Len()); limit != "" {
			e.stats.BudgetExhaustedBy = limit
			logger.Info("search budget exhausted",
				slog.Int("iteration", iteration),
				slog.String("limit", limit),
				slog.String("budget", e.budget.String()))
			break
		}
		if e.exhausted() {
			e.stats.Exhausted = true
			logger.Info("search space exhausted", slog.Int("iteration", iteration))
			break
		}
		e.runIteration(ctx, logger, iteration)
		e.stats.Iterations++
		e.metrics.recordIteration()
	}

	stats := e.Stats()
	e.tracer.EndRun(span, stats, nil)
	logger.Info("search complete",
		slog.Int("iterations", stats.Iterations),
		slog.Int("tree_size", stats.TreeSize),
		slog.Int("frontier_size", stats.FrontierSize),
		slog.Int("dedup_hits", stats.DedupHits),
		slog.Int("failed_simulations", stats.FailedSimulations),
		slog.Bool("exhausted", stats.Exhausted),
		slog.Duration("elapsed", time.Since(start)),
	)
	return e.frontier, nil
}

// runIteration performs one iteration: Select → Expand → Simulate → Backpropagate.
func (e *Engine) runIteration(ctx context.Context, logger *slog.Logger, iteration int) {
	ctx, span := e.tracer.TraceIteration(ctx, iteration)
	defer span.End()

	// 1. SELECT
	selected := e.tree.Node(e.selectNode())
	e.tracer.TraceSelect(ctx, selected)

	// A sibling left pending by an earlier expansion gets its own simulation
	// before anything is expanded below it.
	if !selected.State().IsTerminal() {
		e.simulateNodes(ctx, logger, []NodeID{selected.ID()})
		return
	}

	// 2. EXPAND
	created := e.expand(ctx, selected)
	if len(created) == 0 {
		// Without this the node's score never moves relative to its siblings
		// and it would be selected again on every iteration. The visit is
		// carried to the ancestors with zero reward so an only child that
		// stalls also stops pulling selection into its parent.
		e.tree.Backpropagate(selected.ID(), 0)
		e.stats.ExhaustedExpansions++
		e.metrics.recordExhaustedExpansion()
		e.tracer.TraceStall(ctx, selected)
		logger.Debug("expansion produced no new configuration",
			slog.Int("node_id", int(selected.ID())),
			slog.Int64("visits", selected.Visits()))
		return
	}

	// 3. SIMULATE + 4. BACKPROPAGATE
	batch := created[:min(e.config.Workers, len(created))]
	e.simulateNodes(ctx, logger, batch)
}

// selectNode descends from the root through fully expanded nodes, following
// the highest UCB score, and returns the first node that is not fully
// expanded or has no children.
func (e *Engine) selectNode() NodeID {
	id := e.tree.Root().ID()
	for {
		n := e.tree.Node(id)
		if n.IsLeaf() {
			return id
		}
		if !e.tree.IsFullyExpanded(id, e.generator.Remaining(n.Pipeline())) {
			return id
		}
		id = e.tree.BestChild(id, e.config.ExplorationWeight)
	}
}

// expand asks the generator for candidates and turns the ones whose
// configuration was never seen into children.
func (e *Engine) expand(ctx context.Context, n *Node) []NodeID {
	_, span := e.tracer.TraceExpand(ctx, n)

	candidates := e.generator.GenerateChildren(n.Pipeline(), e.config.MaxChildrenPerNode)
	var created []NodeID
	dedup := 0
	for _, c := range candidates {
		hash := c.Pipeline.ContentHash()
		if _, seen := e.visited[hash]; seen {
			dedup++
			continue
		}
		child, err := e.tree.AddChild(n.ID(), c.Pipeline, c.Action)
		if err != nil {
			continue
		}
		e.visited[hash] = child.ID()
		created = append(created, child.ID())
	}

	e.stats.DedupHits += dedup
	e.metrics.recordDedupHits(dedup)
	e.tracer.EndExpand(span, len(candidates), len(created), dedup)
	return created
}

// exhausted reports whether no iteration can make progress: every node has
// been simulated and no leaf has an untried mutation left.
func (e *Engine) exhausted() bool {
	done := true
	e.tree.Walk(func(n *Node) {
		if !done {
			return
		}
		if !n.State().IsTerminal() {
			done = false
			return
		}
		if n.IsLeaf() && e.generator.Remaining(n.Pipeline()) > 0 {
			done = false
		}
	})
	return done
}

// simulation is the outcome of one simulator call.
type simulation struct {
	metrics ExecutionMetrics
	err     error
	elapsed time.Duration
}

// simulateNodes simulates the nodes (concurrently when there is more than
// one) and then applies the results in the order given.
func (e *Engine) simulateNodes(ctx context.Context, logger *slog.Logger, ids []NodeID) {
	var results []simulation
	if len(ids) == 1 {
		results = []simulation{e.simulate(ctx, e.tree.Node(ids[0]))}
	} else {
		results = e.simulateParallel(ctx, ids)
	}
	for i, id := range ids {
		e.apply(ctx, logger, e.tree.Node(id), results[i])
	}
}

// simulate calls the simulator for one node. It does not touch the tree.
func (e *Engine) simulate(ctx context.Context, n *Node) (res simulation) {
	ctx, span := e.tracer.TraceSimulate(ctx, n)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = simulation{err: fmt.Errorf("simulator panic: %v", r)}
		}
		res.elapsed = time.Since(start)
		reward := 0.0
		var m *ExecutionMetrics
		if res.err == nil {
			reward = e.config.Reward.Reward(res.metrics)
			m = &res.metrics
		}
		e.tracer.EndSimulate(span, m, reward, res.err)
	}()

	metrics, err := e.simulator.Simulate(ctx, n.Pipeline())
	return simulation{metrics: metrics, err: err}
}

// apply records a simulation on its node, backpropagates the reward and
// offers successful results to the frontier. Failures count as zero reward.
func (e *Engine) apply(ctx context.Context, logger *slog.Logger, n *Node, res simulation) {
	if res.err == nil && !res.metrics.Finite() {
		res.err = fmt.Errorf("non-finite metrics: %s", res.metrics)
	}
	e.stats.Simulations++
	e.metrics.recordSimulation(res.err, res.elapsed)

	reward := 0.0
	if res.err != nil {
		n.MarkFailed(res.err)
		e.stats.FailedSimulations++
		logger.Warn("simulation failed",
			slog.Int("node_id", int(n.ID())),
			slog.String("pipeline", n.Pipeline().String()),
			slog.String("error", res.err.Error()))
	} else {
		n.SetMetrics(res.metrics)
		reward = e.config.Reward.Reward(res.metrics)
		e.budget.RecordSpend(res.metrics.Cost)
		e.stats.SimulatedCost = e.budget.Spent()
	}

	updated := e.tree.Backpropagate(n.ID(), reward)

	accepted := false
	if res.err == nil {
		accepted = e.frontier.Consider(ParetoPoint{
			Pipeline: n.Pipeline(),
			Metrics:  res.metrics,
			NodeID:   n.ID(),
		})
		if accepted {
			logger.Debug("new pareto point",
				slog.Int("node_id", int(n.ID())),
				slog.String("pipeline", n.Pipeline().String()),
				slog.Float64("accuracy", res.metrics.Accuracy),
				slog.Float64("cost", res.metrics.Cost),
				slog.Duration("execution_time", res.metrics.ExecutionTime))
		}
	}

	e.tracer.TraceBackpropagate(ctx, n, reward, updated, accepted)
	e.metrics.setSizes(e.tree.Len(), e.frontier.Len())
}
