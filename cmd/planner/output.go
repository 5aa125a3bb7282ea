// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianPlanner/services/planner/mcts"
	"github.com/AleutianAI/AleutianPlanner/services/planner/optimizer"
	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// Result file names inside --out.
const (
	frontierFile        = "pareto_frontier.json"
	recommendationsFile = "recommendations.json"
	statsFile           = "search_stats.json"
	treeFile            = "search_tree.json"
	balancedFile        = "balanced_pipeline.yaml"
)

func writeArtifacts(dir string, result *optimizer.Result, tree *mcts.Tree) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	files := map[string]any{
		frontierFile:        result.Frontier,
		recommendationsFile: result.Recommendations,
		statsFile:           result.Stats,
	}
	if tree != nil {
		files[treeFile] = tree
	}
	for name, v := range files {
		if err := writeJSON(filepath.Join(dir, name), v); err != nil {
			return err
		}
	}

	// The balanced pick is written back as a loadable definition.
	if b := result.Recommendations.Balanced; b != nil {
		data, err := yaml.Marshal(pipeline.Definition{Name: "balanced", Operations: b.Operations})
		if err != nil {
			return fmt.Errorf("encode %s: %w", balancedFile, err)
		}
		if err := os.WriteFile(filepath.Join(dir, balancedFile), data, 0o640); err != nil {
			return fmt.Errorf("write %s: %w", balancedFile, err)
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
