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
	"strings"

	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// Tree is the arena that owns every search node. Node ids are indexes into
// the arena and stay valid for the lifetime of the tree; nodes are never
// removed during a run.
//
// Thread Safety: Not safe for concurrent use.
type Tree struct {
	nodes []*Node
}

// NewTree creates a tree whose root holds p.
func NewTree(p *pipeline.Pipeline) *Tree {
	root := &Node{
		id:       0,
		parent:   NoNode,
		pipeline: p,
		state:    NodePending,
	}
	return &Tree{nodes: []*Node{root}}
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.nodes[0]
}

// Node returns the node with the given id, or nil if the id is unknown.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// AddChild appends a child holding p under parent and returns it.
func (t *Tree) AddChild(parent NodeID, p *pipeline.Pipeline, action Action) (*Node, error) {
	par := t.Node(parent)
	if par == nil {
		return nil, fmt.Errorf("add child: unknown parent %d", parent)
	}
	a := action
	child := &Node{
		id:       NodeID(len(t.nodes)),
		parent:   parent,
		depth:    par.depth + 1,
		pipeline: p,
		action:   &a,
		state:    NodePending,
	}
	t.nodes = append(t.nodes, child)
	par.children = append(par.children, child.id)
	return child, nil
}

// UCBScore returns the UCB1 score of a node:
//
//	avg_reward + c * sqrt(ln(parent_visits) / visits)
//
// An unvisited node scores +Inf so every new child is simulated once before
// the comparison matters. The root has no exploration term.
func (t *Tree) UCBScore(id NodeID, explorationWeight float64) float64 {
	n := t.Node(id)
	if n == nil {
		return math.Inf(-1)
	}
	if n.visits == 0 {
		return math.Inf(1)
	}
	exploitation := n.totalReward / float64(n.visits)
	parent := t.Node(n.parent)
	if parent == nil || parent.visits <= 0 {
		return exploitation
	}
	return exploitation + explorationWeight*math.Sqrt(math.Log(float64(parent.visits))/float64(n.visits))
}

// BestChild returns the child with the highest UCB score. Ties go to the
// earliest-created child. Returns NoNode for a leaf.
func (t *Tree) BestChild(id NodeID, explorationWeight float64) NodeID {
	n := t.Node(id)
	if n == nil || len(n.children) == 0 {
		return NoNode
	}
	best := n.children[0]
	bestScore := t.UCBScore(best, explorationWeight)
	for _, child := range n.children[1:] {
		if score := t.UCBScore(child, explorationWeight); score > bestScore {
			best, bestScore = child, score
		}
	}
	return best
}

// IsFullyExpanded reports whether a node should be descended through rather
// than expanded: it has at least one child, or it was visited and has no
// untried mutation left.
//
// Inputs:
//   - id: The node.
//   - remaining: Untried mutation instances for the node's pipeline.
func (t *Tree) IsFullyExpanded(id NodeID, remaining int) bool {
	n := t.Node(id)
	if n == nil {
		return true
	}
	return len(n.children) > 0 || (n.visits > 0 && remaining == 0)
}

// Backpropagate adds one visit and reward to the node and every ancestor up
// to and including the root. Returns the number of nodes updated.
func (t *Tree) Backpropagate(id NodeID, reward float64) int {
	updated := 0
	for n := t.Node(id); n != nil; n = t.Node(n.parent) {
		n.visits++
		n.totalReward += reward
		updated++
	}
	return updated
}

// Path returns the nodes from the root to id.
func (t *Tree) Path(id NodeID) []*Node {
	var path []*Node
	for n := t.Node(id); n != nil; n = t.Node(n.parent) {
		path = append(path, n)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// MaxDepth returns the depth of the deepest node.
func (t *Tree) MaxDepth() int {
	depth := 0
	for _, n := range t.nodes {
		depth = max(depth, n.depth)
	}
	return depth
}

// CountByState returns node counts per simulation state.
func (t *Tree) CountByState() map[NodeState]int {
	counts := make(map[NodeState]int)
	for _, n := range t.nodes {
		counts[n.state]++
	}
	return counts
}

// Walk visits every node in creation order.
func (t *Tree) Walk(fn func(*Node)) {
	for _, n := range t.nodes {
		fn(n)
	}
}

// Format returns an ASCII rendering of the tree.
func (t *Tree) Format() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Nodes: %d, Max Depth: %d\n\n", t.Len(), t.MaxDepth()))
	t.formatNode(&sb, t.Root(), "", true)
	return sb.String()
}

func (t *Tree) formatNode(sb *strings.Builder, node *Node, prefix string, isLast bool) {
	branch := "├── "
	if isLast {
		branch = "└── "
	}

	stateIcon := " "
	switch node.state {
	case NodeSimulated:
		stateIcon = "✓"
	case NodeFailed:
		stateIcon = "✗"
	}

	label := "root"
	if node.action != nil {
		label = node.action.String()
	}
	sb.WriteString(fmt.Sprintf("%s%s[%d] %s | %s (reward: %.3f, visits: %d) %s\n",
		prefix, branch, node.id, truncate(label, 40), node.pipeline,
		node.AvgReward(), node.visits, stateIcon))

	childPrefix := prefix
	if isLast {
		childPrefix += "    "
	} else {
		childPrefix += "│   "
	}
	for i, child := range node.children {
		t.formatNode(sb, t.nodes[child], childPrefix, i == len(node.children)-1)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// MarshalJSON implements json.Marshaler. Nodes are emitted flat, in id order.
func (t *Tree) MarshalJSON() ([]byte, error) {
	type treeJSON struct {
		TotalNodes int     `json:"total_nodes"`
		MaxDepth   int     `json:"max_depth"`
		Nodes      []*Node `json:"nodes"`
	}
	return json.Marshal(&treeJSON{
		TotalNodes: t.Len(),
		MaxDepth:   t.MaxDepth(),
		Nodes:      t.nodes,
	})
}
