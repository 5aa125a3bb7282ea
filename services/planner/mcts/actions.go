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
	"math/rand/v2"
	"sync"

	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// ActionKind is the closed set of mutation kinds.
type ActionKind int

const (
	// ActionSwitchImplementation assigns a different implementation to one operation.
	ActionSwitchImplementation ActionKind = iota

	// ActionReorderAdjacent swaps two adjacent operations.
	ActionReorderAdjacent
)

// String returns the string representation of the action kind.
func (k ActionKind) String() string {
	switch k {
	case ActionSwitchImplementation:
		return "switch_implementation"
	case ActionReorderAdjacent:
		return "reorder_adjacent"
	default:
		return "unknown"
	}
}

// Action is one mutation instance.
//
// For ActionSwitchImplementation, Operation and Implementation are set.
// For ActionReorderAdjacent, Left is the index of the first of the two
// swapped operations and Operation/Implementation are unused.
type Action struct {
	Kind           ActionKind `json:"kind"`
	Operation      string     `json:"operation,omitempty"`
	Implementation string     `json:"implementation,omitempty"`
	Left           int        `json:"left,omitempty"`
}

// SwitchImplementation builds a switch action.
func SwitchImplementation(operation, implementation string) Action {
	return Action{Kind: ActionSwitchImplementation, Operation: operation, Implementation: implementation}
}

// ReorderAdjacent builds a reorder action swapping left and left+1.
func ReorderAdjacent(left int) Action {
	return Action{Kind: ActionReorderAdjacent, Left: left}
}

// Key identifies the instance among the mutations of one pipeline.
func (a Action) Key() string {
	switch a.Kind {
	case ActionSwitchImplementation:
		return fmt.Sprintf("switch:%s=%s", a.Operation, a.Implementation)
	case ActionReorderAdjacent:
		return fmt.Sprintf("reorder:%d", a.Left)
	default:
		return "unknown"
	}
}

// String returns a human-readable description.
func (a Action) String() string {
	switch a.Kind {
	case ActionSwitchImplementation:
		return fmt.Sprintf("switch %s to %s", a.Operation, a.Implementation)
	case ActionReorderAdjacent:
		return fmt.Sprintf("swap operations %d and %d", a.Left, a.Left+1)
	default:
		return "unknown action"
	}
}

// Apply returns the pipeline produced by the action. It never modifies p.
func (a Action) Apply(p *pipeline.Pipeline) (*pipeline.Pipeline, error) {
	switch a.Kind {
	case ActionSwitchImplementation:
		idx := p.Index(a.Operation)
		if idx < 0 {
			return nil, fmt.Errorf("apply %s: operation %q not in pipeline", a.Key(), a.Operation)
		}
		return p.WithSelected(idx, a.Implementation)
	case ActionReorderAdjacent:
		return p.WithSwapped(a.Left)
	default:
		return nil, fmt.Errorf("apply: unknown action kind %d", a.Kind)
	}
}

// CommutativityRule decides whether left may be swapped with the operation
// right that immediately follows it.
type CommutativityRule struct {
	Name  string
	Allow func(left, right pipeline.Operation) bool
}

// FilterPushdown lets a filter move before an immediately preceding map.
// The filter accepts the same items either way and the map sees fewer of them.
var FilterPushdown = CommutativityRule{
	Name: "filter_pushdown",
	Allow: func(left, right pipeline.Operation) bool {
		return left.Kind == pipeline.KindMap && right.Kind == pipeline.KindFilter
	},
}

// TransformCommute lets two adjacent transforms trade places.
var TransformCommute = CommutativityRule{
	Name: "transform_commute",
	Allow: func(left, right pipeline.Operation) bool {
		return left.Kind == pipeline.KindTransform && right.Kind == pipeline.KindTransform
	},
}

// RuleByName resolves a rule name from configuration.
func RuleByName(name string) (CommutativityRule, bool) {
	switch name {
	case FilterPushdown.Name:
		return FilterPushdown, true
	case TransformCommute.Name:
		return TransformCommute, true
	default:
		return CommutativityRule{}, false
	}
}

// Candidate is a generated child configuration and the action producing it.
type Candidate struct {
	Pipeline *pipeline.Pipeline
	Action   Action
}

// ActionGenerator produces legal mutations of pipelines.
//
// It remembers, per pipeline content hash, which mutation instances were
// already handed out and only ever offers untried ones. A pipeline with K
// legal instances therefore yields exactly K distinct children over any
// sequence of calls, and nothing afterwards.
//
// Thread Safety: Safe for concurrent use.
type ActionGenerator struct {
	rules []CommutativityRule

	mu        sync.Mutex
	rng       *rand.Rand
	attempted map[string]map[string]struct{}
}

// NewActionGenerator creates a generator.
//
// Inputs:
//   - seed: Seeds the ordering of untried instances.
//   - rules: Reorder rules, used as given. None means no reorders are
//     offered; the configuration layer supplies FilterPushdown by default.
func NewActionGenerator(seed uint64, rules ...CommutativityRule) *ActionGenerator {
	return &ActionGenerator{
		rules:     rules,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		attempted: make(map[string]map[string]struct{}),
	}
}

func (g *ActionGenerator) canSwap(left, right pipeline.Operation) bool {
	for _, rule := range g.rules {
		if rule.Allow(left, right) {
			return true
		}
	}
	return false
}

// ApplicableActions lists every legal mutation instance of p, switches
// first (by operation order, then candidate order), then reorders.
func (g *ActionGenerator) ApplicableActions(p *pipeline.Pipeline) []Action {
	ops := p.Operations()
	var actions []Action
	for _, op := range ops {
		if !op.Switchable() {
			continue
		}
		for _, impl := range op.Candidates {
			if impl == op.Selected {
				continue
			}
			actions = append(actions, SwitchImplementation(op.Name, impl))
		}
	}
	for i := 0; i+1 < len(ops); i++ {
		if g.canSwap(ops[i], ops[i+1]) {
			actions = append(actions, ReorderAdjacent(i))
		}
	}
	return actions
}

// ApplicableKinds lists the mutation kinds that have at least one legal
// instance for p.
func (g *ActionGenerator) ApplicableKinds(p *pipeline.Pipeline) []ActionKind {
	var kinds []ActionKind
	seen := make(map[ActionKind]bool)
	for _, a := range g.ApplicableActions(p) {
		if !seen[a.Kind] {
			seen[a.Kind] = true
			kinds = append(kinds, a.Kind)
		}
	}
	return kinds
}

func (g *ActionGenerator) untried(p *pipeline.Pipeline) []Action {
	tried := g.attempted[p.ContentHash()]
	var out []Action
	for _, a := range g.ApplicableActions(p) {
		if _, ok := tried[a.Key()]; !ok {
			out = append(out, a)
		}
	}
	return out
}

// Remaining returns how many instances of p have not been handed out yet.
func (g *ActionGenerator) Remaining(p *pipeline.Pipeline) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.untried(p))
}

// GenerateChildren returns up to maxChildren new configurations derived
// from p, each paired with the action that produced it. Every instance
// returned is recorded as attempted for p's content hash.
func (g *ActionGenerator) GenerateChildren(p *pipeline.Pipeline, maxChildren int) []Candidate {
	if maxChildren <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	untried := g.untried(p)
	if len(untried) == 0 {
		return nil
	}
	g.rng.Shuffle(len(untried), func(i, j int) {
		untried[i], untried[j] = untried[j], untried[i]
	})
	if len(untried) > maxChildren {
		untried = untried[:maxChildren]
	}

	hash := p.ContentHash()
	tried, ok := g.attempted[hash]
	if !ok {
		tried = make(map[string]struct{})
		g.attempted[hash] = tried
	}

	children := make([]Candidate, 0, len(untried))
	for _, a := range untried {
		tried[a.Key()] = struct{}{}
		child, err := a.Apply(p)
		if err != nil {
			// Only reachable if ApplicableActions and Apply disagree.
			continue
		}
		children = append(children, Candidate{Pipeline: child, Action: a})
	}
	return children
}
