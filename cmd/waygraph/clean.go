package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agenthands/waygraph/internal/ioformat"
)

func newCleanCmd(a *app) *cobra.Command {
	var (
		nodesPath string
		outPath   string
		renumber  bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Drop malformed rows from a node table",
		Long:  `Rewrites the node table without unparsable rows, out-of-range coordinates and repeated ids. --renumber assigns sequential ids from 1 instead; edges built on the old ids must be regenerated.`,
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

			graph := b.CleanNodes(nodes, renumber)
			graph.Summary.Processed += len(bad)
			graph.Summary.Errored += len(bad)

			dst := outPath
			if dst == "" {
				dst = nodesPath
			}
			if dst == nodesPath {
				if _, err := ioformat.Backup(nodesPath); err != nil {
					return err
				}
			}
			if err := ioformat.WriteFile(dst, func(w io.Writer) error { return ioformat.WriteNodes(w, graph.Nodes) }); err != nil {
				return err
			}
			if err := a.persist(ctx, b, graph); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSummary(out, graph.Summary)
			fmt.Fprintf(out, "Wrote %s\n", dst)
			return nil
		},
	}

	cmd.Flags().StringVarP(&nodesPath, "nodes", "n", "data/nodes.csv", "node table")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (default: rewrite --nodes in place)")
	cmd.Flags().BoolVar(&renumber, "renumber", false, "assign sequential ids from 1")
	return cmd
}
