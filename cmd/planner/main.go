// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command planner searches the configuration space of a document-processing
// pipeline and reports the Pareto frontier of accuracy, cost and time.
//
// Usage:
//
//	planner validate pipeline.yaml
//	planner actions pipeline.yaml
//	planner optimize --pipeline pipeline.yaml --iterations 100 --out results/
//
// Optimize runs against the built-in simulated executor. Search settings
// come from --config (YAML), PLANNER_* environment variables and flags, in
// increasing priority.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
