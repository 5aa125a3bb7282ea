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
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

func single(impl string) *pipeline.Pipeline {
	return pipeline.MustNew("t", pipeline.Operation{
		Name:       "op",
		Kind:       pipeline.KindMap,
		Candidates: []string{"a", "b", "c", "d"},
		Selected:   impl,
	})
}

func TestNewTree(t *testing.T) {
	tree := NewTree(single("a"))

	if tree.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tree.Len())
	}
	root := tree.Root()
	if !root.IsRoot() {
		t.Error("root should have no parent")
	}
	if root.State() != NodePending {
		t.Errorf("root state = %s, want pending", root.State())
	}
	if root.Action() != nil {
		t.Error("root should have no action")
	}
	if tree.Node(5) != nil || tree.Node(NoNode) != nil {
		t.Error("unknown ids should return nil")
	}
}

func TestTree_AddChild(t *testing.T) {
	tree := NewTree(single("a"))
	child, err := tree.AddChild(0, single("b"), SwitchImplementation("op", "b"))
	if err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	if child.ID() != 1 || child.Parent() != 0 || child.Depth() != 1 {
		t.Errorf("child = %s", child)
	}
	if got := tree.Root().Children(); len(got) != 1 || got[0] != 1 {
		t.Errorf("root children = %v", got)
	}
	if child.Action().Key() != "switch:op=b" {
		t.Errorf("action = %s", child.Action().Key())
	}

	if _, err := tree.AddChild(42, single("c"), SwitchImplementation("op", "c")); err == nil {
		t.Error("expected error for unknown parent")
	}
}

func TestTree_UCBScore(t *testing.T) {
	tree := NewTree(single("a"))
	child, _ := tree.AddChild(0, single("b"), SwitchImplementation("op", "b"))

	if score := tree.UCBScore(child.ID(), math.Sqrt2); !math.IsInf(score, 1) {
		t.Errorf("unvisited score = %v, want +Inf", score)
	}

	tree.Backpropagate(0, 1.0)
	tree.Backpropagate(0, 1.0)
	tree.Backpropagate(0, 1.0)
	tree.Backpropagate(child.ID(), 2.0)

	// root: visits 4; child: visits 1, reward 2.
	want := 2.0 + math.Sqrt2*math.Sqrt(math.Log(4)/1)
	if got := tree.UCBScore(child.ID(), math.Sqrt2); math.Abs(got-want) > 1e-9 {
		t.Errorf("UCBScore = %v, want %v", got, want)
	}

	// The root has no parent: pure exploitation.
	if got := tree.UCBScore(0, math.Sqrt2); math.Abs(got-5.0/4.0) > 1e-9 {
		t.Errorf("root UCBScore = %v, want 1.25", got)
	}
}

func TestTree_BestChild(t *testing.T) {
	tree := NewTree(single("a"))
	if tree.BestChild(0, 1) != NoNode {
		t.Error("leaf should have no best child")
	}

	first, _ := tree.AddChild(0, single("b"), SwitchImplementation("op", "b"))
	second, _ := tree.AddChild(0, single("c"), SwitchImplementation("op", "c"))
	third, _ := tree.AddChild(0, single("d"), SwitchImplementation("op", "d"))

	// All unvisited: ties go to the earliest child.
	if got := tree.BestChild(0, 1); got != first.ID() {
		t.Errorf("BestChild = %d, want %d", got, first.ID())
	}

	tree.Backpropagate(first.ID(), 0.5)
	if got := tree.BestChild(0, 1); got != second.ID() {
		t.Errorf("BestChild = %d, want unvisited %d", got, second.ID())
	}

	tree.Backpropagate(second.ID(), 0.5)
	tree.Backpropagate(third.ID(), 1.5)
	if got := tree.BestChild(0, 1); got != third.ID() {
		t.Errorf("BestChild = %d, want %d", got, third.ID())
	}
}

func TestTree_BestChildEqualScores(t *testing.T) {
	tree := NewTree(single("a"))
	first, _ := tree.AddChild(0, single("b"), SwitchImplementation("op", "b"))
	second, _ := tree.AddChild(0, single("c"), SwitchImplementation("op", "c"))
	tree.Backpropagate(first.ID(), 1.0)
	tree.Backpropagate(second.ID(), 1.0)

	if got := tree.BestChild(0, math.Sqrt2); got != first.ID() {
		t.Errorf("BestChild = %d, want earliest %d", got, first.ID())
	}
}

func TestTree_Backpropagate(t *testing.T) {
	tree := NewTree(single("a"))
	c1, _ := tree.AddChild(0, single("b"), SwitchImplementation("op", "b"))
	c2, _ := tree.AddChild(c1.ID(), single("c"), SwitchImplementation("op", "c"))
	c3, _ := tree.AddChild(c2.ID(), single("d"), SwitchImplementation("op", "d"))
	sibling, _ := tree.AddChild(0, single("d"), SwitchImplementation("op", "d"))

	if n := tree.Backpropagate(c3.ID(), 0.75); n != 4 {
		t.Errorf("updated %d nodes, want 4", n)
	}
	for _, n := range tree.Path(c3.ID()) {
		if n.Visits() != 1 || n.TotalReward() != 0.75 {
			t.Errorf("node %d: visits=%d reward=%v", n.ID(), n.Visits(), n.TotalReward())
		}
	}
	if sibling.Visits() != 0 {
		t.Errorf("sibling visits = %d, want 0", sibling.Visits())
	}
	if tree.MaxDepth() != 3 {
		t.Errorf("MaxDepth = %d, want 3", tree.MaxDepth())
	}
}

func TestTree_IsFullyExpanded(t *testing.T) {
	tree := NewTree(single("a"))

	if tree.IsFullyExpanded(0, 3) {
		t.Error("unvisited leaf with untried mutations is not fully expanded")
	}
	if tree.IsFullyExpanded(0, 0) {
		t.Error("unvisited leaf is not fully expanded")
	}
	tree.Root().IncrementVisits()
	if tree.IsFullyExpanded(0, 1) {
		t.Error("visited leaf with untried mutations is not fully expanded")
	}
	if !tree.IsFullyExpanded(0, 0) {
		t.Error("visited leaf with nothing left is fully expanded")
	}
	_, _ = tree.AddChild(0, single("b"), SwitchImplementation("op", "b"))
	if !tree.IsFullyExpanded(0, 2) {
		t.Error("a node with children is fully expanded")
	}
}

func TestTree_Path(t *testing.T) {
	tree := NewTree(single("a"))
	c1, _ := tree.AddChild(0, single("b"), SwitchImplementation("op", "b"))
	c2, _ := tree.AddChild(c1.ID(), single("c"), SwitchImplementation("op", "c"))

	path := tree.Path(c2.ID())
	if len(path) != 3 || path[0].ID() != 0 || path[2].ID() != c2.ID() {
		t.Errorf("path = %v", path)
	}
}

func TestTree_CountByState(t *testing.T) {
	tree := NewTree(single("a"))
	c1, _ := tree.AddChild(0, single("b"), SwitchImplementation("op", "b"))
	_, _ = tree.AddChild(0, single("c"), SwitchImplementation("op", "c"))

	tree.Root().SetMetrics(ExecutionMetrics{Accuracy: 0.5})
	c1.MarkFailed(errors.New("boom"))

	counts := tree.CountByState()
	if counts[NodeSimulated] != 1 || counts[NodeFailed] != 1 || counts[NodePending] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if c1.Failure() != "boom" || c1.Metrics() != nil {
		t.Errorf("failed node = %s", c1)
	}
}

func TestTree_FormatAndJSON(t *testing.T) {
	tree := NewTree(single("a"))
	_, _ = tree.AddChild(0, single("b"), SwitchImplementation("op", "b"))
	tree.Root().SetMetrics(ExecutionMetrics{Accuracy: 0.5})

	out := tree.Format()
	for _, want := range []string{"Nodes: 2", "root", "switch op to b", "op(b)"} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}

	data, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded struct {
		TotalNodes int `json:"total_nodes"`
		Nodes      []struct {
			ID          int    `json:"id"`
			ContentHash string `json:"content_hash"`
			State       string `json:"state"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.TotalNodes != 2 || len(decoded.Nodes) != 2 {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.Nodes[0].State != string(NodeSimulated) || decoded.Nodes[1].ContentHash == "" {
		t.Errorf("decoded nodes = %+v", decoded.Nodes)
	}
}
