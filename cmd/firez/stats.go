package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zoobzio/firez"
)

var statsCmd = &cobra.Command{
	Use:   "stats file",
	Short: "Summarize an artifact",
	Long:  `Stats reports node, span and event counts, the deepest nesting, and a per-level breakdown`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

// treeStats summarizes a tree.
type treeStats struct {
	Levels      map[string]int
	Nodes       int
	Spans       int
	Events      int
	MaxDepth    int
	MaxChildren int
}

func collectStats(tree *firez.Ashes) treeStats {
	s := treeStats{Levels: make(map[string]int)}
	_ = tree.Walk(func(b firez.Branch, depth int) error { //nolint:errcheck // callback never fails
		s.MaxDepth = max(s.MaxDepth, depth)
		s.MaxChildren = max(s.MaxChildren, b.NumChildren())
		p := b.Payload()
		if p == nil {
			return nil
		}
		s.Nodes++
		if p.IsSpan() {
			s.Spans++
		} else {
			s.Events++
		}
		if p.Level != "" {
			s.Levels[strings.ToUpper(string(p.Level))]++
		}
		return nil
	})
	return s
}

func runStats(cmd *cobra.Command, args []string) error {
	tree, err := firez.ImportFile(args[0])
	if err != nil {
		return err
	}
	s := collectStats(tree)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "nodes:        %d\n", s.Nodes)
	fmt.Fprintf(out, "spans:        %d\n", s.Spans)
	fmt.Fprintf(out, "events:       %d\n", s.Events)
	fmt.Fprintf(out, "max depth:    %d\n", s.MaxDepth)
	fmt.Fprintf(out, "max children: %d\n", s.MaxChildren)

	levels := make([]string, 0, len(s.Levels))
	for l := range s.Levels {
		levels = append(levels, l)
	}
	sort.Strings(levels)
	for _, l := range levels {
		fmt.Fprintf(out, "  %-6s %d\n", l, s.Levels[l])
	}
	return nil
}
