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

	"golang.org/x/sync/errgroup"
)

// simulateParallel runs the simulator for several freshly created siblings at
// once, bounded by config.Workers.
//
// Leaf parallelization: only the simulator calls run concurrently. Each
// goroutine writes its own slot of the result slice and never touches the
// tree, the visited set or the frontier; simulateNodes applies the results
// afterwards in creation order so the tree evolves exactly as it would with
// sequential simulation of the same batch.
func (e *Engine) simulateParallel(ctx context.Context, ids []NodeID) []simulation {
	results := make([]simulation, len(ids))

	var g errgroup.Group
	g.SetLimit(e.config.Workers)
	for i, id := range ids {
		node := e.tree.Node(id)
		g.Go(func() error {
			results[i] = e.simulate(ctx, node)
			return nil
		})
	}
	// Simulation failures are carried in results, never as group errors.
	_ = g.Wait()

	return results
}
