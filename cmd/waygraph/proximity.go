package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agenthands/waygraph/internal/ioformat"
)

func newProximityCmd(a *app) *cobra.Command {
	var (
		nodesPath string
		edgesPath string
		threshold float64
		workers   int
	)

	cmd := &cobra.Command{
		Use:   "proximity",
		Short: "Connect every pair of nodes within a walking distance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			nodes, bad, err := ioformat.ReadNodesFile(nodesPath)
			if err != nil {
				return err
			}
			a.logRecordErrors("node", bad)

			b, release, err := a.openBuilder(ctx)
			if err != nil {
				return err
			}
			defer release()

			if cmd.Flags().Changed("threshold") {
				b.Proximity.Threshold = threshold
			}
			if cmd.Flags().Changed("workers") {
				b.Proximity.Workers = workers
			}

			graph, err := b.BuildProximityGraph(nodes)
			if err != nil {
				return err
			}
			graph.Summary.Errored += len(bad)

			if err := ioformat.WriteFile(edgesPath, func(w io.Writer) error { return ioformat.WriteEdges(w, graph.Edges, false) }); err != nil {
				return err
			}
			if err := a.persist(ctx, b, graph); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSummary(out, graph.Summary)
			fmt.Fprintf(out, "Wrote %s\n", edgesPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&nodesPath, "nodes", "n", "data/nodes.csv", "node table")
	cmd.Flags().StringVarP(&edgesPath, "out", "o", "data/edges.csv", "edge table to write")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "maximum pair distance in meters (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel scan workers (default from config)")
	return cmd
}
