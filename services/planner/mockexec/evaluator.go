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
	"fmt"

	"github.com/AleutianAI/AleutianPlanner/services/planner/optimizer"
)

// LabelMatch scores the fraction of ground-truth records whose prediction,
// matched by id, carries the same label. Missing predictions count as wrong.
type LabelMatch struct{}

// Score implements optimizer.Evaluator.
func (LabelMatch) Score(groundTruth, predictions optimizer.Batch) float64 {
	if len(groundTruth) == 0 {
		return 0
	}
	predicted := make(map[string]any, len(predictions))
	for _, r := range predictions {
		predicted[fmt.Sprint(r[FieldID])] = r[FieldLabel]
	}
	correct := 0
	for _, r := range groundTruth {
		label, ok := predicted[fmt.Sprint(r[FieldID])]
		if ok && label == r[FieldLabel] {
			correct++
		}
	}
	return float64(correct) / float64(len(groundTruth))
}

// DemoData builds n input records and the matching ground truth. Labels
// cycle through a fixed set so runs are reproducible.
func DemoData(n int) (input, groundTruth optimizer.Batch) {
	labels := []string{"diagnosis", "medication", "follow-up"}
	input = make(optimizer.Batch, 0, n)
	for i := range n {
		input = append(input, optimizer.Record{
			FieldID:    fmt.Sprintf("rec-%04d", i),
			FieldText:  fmt.Sprintf("clinical note %d", i),
			FieldLabel: labels[i%len(labels)],
		})
	}
	return input, input.Clone()
}
