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
	"slices"

	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// NodeID addresses a node in the tree arena.
type NodeID int

// NoNode is the parent of the root.
const NoNode NodeID = -1

// NodeState represents the simulation lifecycle of a node.
type NodeState string

const (
	// NodePending nodes were created by an expansion but not simulated yet.
	NodePending NodeState = "pending"
	// NodeSimulated nodes have metrics.
	NodeSimulated NodeState = "simulated"
	// NodeFailed nodes were simulated and the executor failed.
	NodeFailed NodeState = "failed"
)

// String returns the string representation of the node state.
func (s NodeState) String() string {
	return string(s)
}

// IsTerminal returns true once the node has been simulated, successfully or not.
func (s NodeState) IsTerminal() bool {
	return s == NodeSimulated || s == NodeFailed
}

// Node is one pipeline variant in the search tree.
//
// Nodes refer to each other only by NodeID. The Tree owns every node; a
// parent id is a back-reference used to walk ancestors and never keeps a
// node alive.
//
// Thread Safety: Not safe for concurrent use. The engine mutates nodes from
// the search goroutine only.
type Node struct {
	id       NodeID
	parent   NodeID
	children []NodeID
	depth    int

	pipeline *pipeline.Pipeline
	action   *Action

	visits      int64
	totalReward float64

	state   NodeState
	metrics *ExecutionMetrics
	failure string
}

// ID returns the node id.
func (n *Node) ID() NodeID {
	return n.id
}

// Parent returns the parent id, or NoNode for the root.
func (n *Node) Parent() NodeID {
	return n.parent
}

// IsRoot returns true if this node has no parent.
func (n *Node) IsRoot() bool {
	return n.parent == NoNode
}

// Children returns a copy of the child ids in creation order.
func (n *Node) Children() []NodeID {
	return slices.Clone(n.children)
}

// ChildCount returns the number of children.
func (n *Node) ChildCount() int {
	return len(n.children)
}

// IsLeaf returns true if this node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.children) == 0
}

// Depth returns the distance from the root.
func (n *Node) Depth() int {
	return n.depth
}

// Pipeline returns the configuration this node represents.
func (n *Node) Pipeline() *pipeline.Pipeline {
	return n.pipeline
}

// Action returns the mutation that produced the node, nil for the root.
func (n *Node) Action() *Action {
	return n.action
}

// Visits returns the visit count.
func (n *Node) Visits() int64 {
	return n.visits
}

// TotalReward returns the cumulative reward.
func (n *Node) TotalReward() float64 {
	return n.totalReward
}

// AvgReward returns total reward / visits, or 0 when unvisited.
func (n *Node) AvgReward() float64 {
	if n.visits == 0 {
		return 0
	}
	return n.totalReward / float64(n.visits)
}

// State returns the simulation state.
func (n *Node) State() NodeState {
	return n.state
}

// Metrics returns the simulated metrics, or nil if the node was not
// simulated or the simulation failed.
func (n *Node) Metrics() *ExecutionMetrics {
	if n.metrics == nil {
		return nil
	}
	m := *n.metrics
	return &m
}

// Failure returns the simulation error message of a failed node.
func (n *Node) Failure() string {
	return n.failure
}

// SetMetrics records a successful simulation.
func (n *Node) SetMetrics(m ExecutionMetrics) {
	n.metrics = &m
	n.state = NodeSimulated
	n.failure = ""
}

// MarkFailed records a failed simulation.
func (n *Node) MarkFailed(err error) {
	n.metrics = nil
	n.state = NodeFailed
	if err != nil {
		n.failure = err.Error()
	}
}

// IncrementVisits adds one visit without reward and returns the new count.
func (n *Node) IncrementVisits() int64 {
	n.visits++
	return n.visits
}

// String returns a human-readable representation of the node.
func (n *Node) String() string {
	return fmt.Sprintf("Node{id=%d, depth=%d, state=%s, visits=%d, avg_reward=%.3f, children=%d, pipeline=%s}",
		n.id, n.depth, n.state, n.visits, n.AvgReward(), len(n.children), n.pipeline)
}

// MarshalJSON implements json.Marshaler.
func (n *Node) MarshalJSON() ([]byte, error) {
	type nodeJSON struct {
		ID          NodeID            `json:"id"`
		Parent      NodeID            `json:"parent"`
		Children    []NodeID          `json:"children,omitempty"`
		Depth       int               `json:"depth"`
		Pipeline    string            `json:"pipeline"`
		ContentHash string            `json:"content_hash"`
		Action      *Action           `json:"action,omitempty"`
		Visits      int64             `json:"visits"`
		TotalReward float64           `json:"total_reward"`
		AvgReward   float64           `json:"avg_reward"`
		State       NodeState         `json:"state"`
		Metrics     *ExecutionMetrics `json:"metrics,omitempty"`
		Failure     string            `json:"failure,omitempty"`
	}

	return json.Marshal(&nodeJSON{
		ID:          n.id,
		Parent:      n.parent,
		Children:    n.children,
		Depth:       n.depth,
		Pipeline:    n.pipeline.String(),
		ContentHash: n.pipeline.ContentHash(),
		Action:      n.action,
		Visits:      n.visits,
		TotalReward: n.totalReward,
		AvgReward:   n.AvgReward(),
		State:       n.state,
		Metrics:     n.metrics,
		Failure:     n.failure,
	})
}
