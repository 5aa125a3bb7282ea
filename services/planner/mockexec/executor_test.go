// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mockexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPlanner/services/planner/optimizer"
	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

func embedThenKeep(embed, keep string) *pipeline.Pipeline {
	return pipeline.MustNew("notes",
		pipeline.Operation{Name: "embed", Kind: pipeline.KindMap, Candidates: []string{"gpt-4o", "gpt-4o-mini"}, Selected: embed},
		pipeline.Operation{Name: "keep", Kind: pipeline.KindFilter, Candidates: []string{"keyword", "model"}, Selected: keep,
			Params: map[string]any{"selectivity": 0.5}},
	)
}

func TestExecutor_Deterministic(t *testing.T) {
	input, _ := DemoData(40)
	exec := NewExecutor()
	p := embedThenKeep("gpt-4o", "keyword")

	out1, m1, err := exec.Run(context.Background(), p, input)
	require.NoError(t, err)
	out2, m2, err := NewExecutor().Run(context.Background(), p, input)
	require.NoError(t, err)

	if diff := cmp.Diff(out1, out2); diff != "" {
		t.Errorf("outputs differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, m1, m2)
	assert.Equal(t, 1, exec.Runs())
}

func TestExecutor_DoesNotModifyInput(t *testing.T) {
	input, truth := DemoData(20)
	_, _, err := NewExecutor(WithProfile("gpt-4o", Profile{Accuracy: 0})).
		Run(context.Background(), embedThenKeep("gpt-4o", "keyword"), input)
	require.NoError(t, err)

	if diff := cmp.Diff(truth, input); diff != "" {
		t.Errorf("input modified (-want +got):\n%s", diff)
	}
}

func TestExecutor_Metrics(t *testing.T) {
	input, _ := DemoData(10)
	_, m, err := NewExecutor().Run(context.Background(), embedThenKeep("gpt-4o", "keyword"), input)
	require.NoError(t, err)

	// embed: 10 records x 500 tokens at $0.005/1K; keep: 10 x 50 tokens, free.
	assert.Equal(t, int64(5500), m.ResourceUnits)
	assert.InDelta(t, 0.025, m.Cost, 1e-12)
	assert.Equal(t, 10*40*time.Millisecond+10*time.Millisecond, m.ExecutionTime)
}

func TestExecutor_FilterPushdownLowersCost(t *testing.T) {
	input, truth := DemoData(10)
	exec := NewExecutor()

	before := embedThenKeep("gpt-4o", "keyword")
	after, err := before.WithSwapped(0)
	require.NoError(t, err)

	outBefore, mBefore, err := exec.Run(context.Background(), before, input)
	require.NoError(t, err)
	outAfter, mAfter, err := exec.Run(context.Background(), after, input)
	require.NoError(t, err)

	assert.Len(t, outBefore, 5)
	assert.Len(t, outAfter, 5)
	assert.Less(t, mAfter.Cost, mBefore.Cost)
	assert.InDelta(t, 0.0125, mAfter.Cost, 1e-12)
	assert.Equal(t, LabelMatch{}.Score(truth, outBefore), LabelMatch{}.Score(truth, outAfter))
}

func TestExecutor_ReduceIsOneCall(t *testing.T) {
	input, _ := DemoData(25)
	p := pipeline.MustNew("agg", pipeline.Operation{
		Name: "summarize", Kind: pipeline.KindReduce, Candidates: []string{"gpt-4o-mini"}, Spec: "12345",
	})
	_, m, err := NewExecutor().Run(context.Background(), p, input)
	require.NoError(t, err)
	assert.Equal(t, int64(510), m.ResourceUnits)
	assert.Equal(t, 15*time.Millisecond, m.ExecutionTime)
}

func TestExecutor_ProfileAccuracyShowsInScore(t *testing.T) {
	input, truth := DemoData(300)
	exec := NewExecutor()

	strong, _, err := exec.Run(context.Background(), embedThenKeep("gpt-4o", "model"), input)
	require.NoError(t, err)
	perfect, _, err := NewExecutor(
		WithProfile("gpt-4o", Profile{Accuracy: 1}),
		WithProfile("model", Profile{Accuracy: 1}),
	).Run(context.Background(), embedThenKeep("gpt-4o", "model"), input)
	require.NoError(t, err)
	broken, _, err := NewExecutor(WithProfile("gpt-4o", Profile{Accuracy: 0})).
		Run(context.Background(), embedThenKeep("gpt-4o", "model"), input)
	require.NoError(t, err)

	eval := LabelMatch{}
	assert.InDelta(t, 0.5, eval.Score(truth, perfect), 1e-12, "selectivity drops half the records")
	assert.Zero(t, eval.Score(truth, broken))
	assert.Greater(t, eval.Score(truth, strong), 0.0)
	assert.Less(t, eval.Score(truth, strong), 0.5)
}

func TestExecutor_UnknownImplementation(t *testing.T) {
	input, _ := DemoData(3)
	p := pipeline.MustNew("x", pipeline.Operation{Name: "m", Kind: pipeline.KindMap, Candidates: []string{"mystery"}})

	_, _, err := NewExecutor().Run(context.Background(), p, input)
	require.NoError(t, err, "the fallback profile covers unknown implementations")

	_, _, err = NewExecutor(WithoutFallback()).Run(context.Background(), p, input)
	var failure *optimizer.ExecutionFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "m", failure.Stage)
	assert.False(t, failure.Transient)
	assert.True(t, errors.Is(err, ErrUnknownImplementation))
}

func TestExecutor_TransientFailures(t *testing.T) {
	input, _ := DemoData(3)
	exec := NewExecutor(WithTransientFailures("keyword", 2))
	p := embedThenKeep("gpt-4o", "keyword")

	for i := 0; i < 2; i++ {
		_, _, err := exec.Run(context.Background(), p, input)
		assert.True(t, optimizer.IsTransient(err), "run %d: %v", i, err)
	}
	_, _, err := exec.Run(context.Background(), p, input)
	assert.NoError(t, err)
	assert.Equal(t, 3, exec.Runs())
}

func TestExecutor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewExecutor().Run(ctx, embedThenKeep("gpt-4o", "keyword"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLabelMatch(t *testing.T) {
	truth := optimizer.Batch{
		{FieldID: "a", FieldLabel: "x"},
		{FieldID: "b", FieldLabel: "y"},
		{FieldID: "c", FieldLabel: "z"},
		{FieldID: "d", FieldLabel: "x"},
	}
	predictions := optimizer.Batch{
		{FieldID: "d", FieldLabel: "x"},
		{FieldID: "a", FieldLabel: "x"},
		{FieldID: "b", FieldLabel: "wrong"},
	}

	assert.InDelta(t, 0.5, LabelMatch{}.Score(truth, predictions), 1e-12)
	assert.Equal(t, 1.0, LabelMatch{}.Score(truth, truth))
	assert.Zero(t, LabelMatch{}.Score(truth, nil))
	assert.Zero(t, LabelMatch{}.Score(nil, predictions))
}

func TestDemoData(t *testing.T) {
	input, truth := DemoData(4)
	require.Len(t, input, 4)
	assert.Equal(t, "rec-0003", input[3][FieldID])
	assert.Equal(t, "diagnosis", input[3][FieldLabel])

	truth[0][FieldLabel] = "changed"
	assert.Equal(t, "diagnosis", input[0][FieldLabel], "ground truth is an independent copy")
}
