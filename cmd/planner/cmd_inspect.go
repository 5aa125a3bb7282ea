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
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianPlanner/services/planner/mcts"
	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipeline.yaml>",
		Short: "Check a pipeline definition and print its operations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.LoadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d operation(s), hash %s\n\n", p.Name(), p.Len(), p.ContentHash())
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tNAME\tKIND\tSELECTED\tCANDIDATES")
			for i, op := range p.Operations() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i, op.Name, op.Kind, op.Selected, strings.Join(op.Candidates, ","))
			}
			return tw.Flush()
		},
	}
}

func newActionsCmd() *cobra.Command {
	var rules []string
	cmd := &cobra.Command{
		Use:   "actions <pipeline.yaml>",
		Short: "List the mutations applicable to a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.LoadFile(args[0])
			if err != nil {
				return err
			}
			var resolved []mcts.CommutativityRule
			for _, name := range rules {
				rule, ok := mcts.RuleByName(name)
				if !ok {
					return fmt.Errorf("unknown reorder rule %q", name)
				}
				resolved = append(resolved, rule)
			}

			gen := mcts.NewActionGenerator(0, resolved...)
			actions := gen.ApplicableActions(p)
			out := cmd.OutOrStdout()
			if len(actions) == 0 {
				fmt.Fprintln(out, "no applicable actions")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ACTION\tRESULT")
			for _, a := range actions {
				next, err := a.Apply(p)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\n", a, next)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringSliceVar(&rules, "rules", []string{mcts.FilterPushdown.Name}, "reorder rules to apply")
	return cmd
}
