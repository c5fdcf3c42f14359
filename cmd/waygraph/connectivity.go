package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenthands/waygraph/internal/core"
	"github.com/agenthands/waygraph/internal/ioformat"
)

func newConnectivityCmd(a *app) *cobra.Command {
	var (
		nodesPath string
		edgesPath string
	)

	cmd := &cobra.Command{
		Use:   "connectivity",
		Short: "Report the connected components of a graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, badNodes, err := ioformat.ReadNodesFile(nodesPath)
			if err != nil {
				return err
			}
			a.logRecordErrors("node", badNodes)

			edges, badEdges, err := ioformat.ReadEdgesFile(edgesPath)
			if err != nil {
				return err
			}
			a.logRecordErrors("edge", badEdges)

			b := core.NewGraphBuilder(nil, a.cfg, a.logger)
			report := b.Connectivity(nodes, edges)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Nodes: %d  Edges: %d\n", len(nodes), len(edges))
			fmt.Fprintf(out, "Components: %d\n", report.Components)
			fmt.Fprintf(out, "Largest component: %d\n", report.Largest)
			fmt.Fprintf(out, "Isolated nodes: %d\n", report.Isolated)
			if report.DanglingRefs > 0 {
				fmt.Fprintf(out, "Edges referencing unknown nodes: %d\n", report.DanglingRefs)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&nodesPath, "nodes", "n", "data/nodes.csv", "node table")
	cmd.Flags().StringVarP(&edgesPath, "edges", "e", "data/edges.csv", "edge table")
	return cmd
}
