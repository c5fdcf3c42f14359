package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agenthands/waygraph/internal/core"
	"github.com/agenthands/waygraph/internal/ioformat"
)

func newMergeCmd(a *app) *cobra.Command {
	var (
		nodesPath    string
		featuresPath string
		reportPath   string
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge GeoJSON point features into the node table",
		Long:  `Adds new places, corrects drifted coordinates of known places and skips near-duplicates. The previous node table is kept as <nodes>.bak.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			nodes, badNodes, err := ioformat.ReadNodesFile(nodesPath)
			if err != nil {
				return err
			}
			a.logRecordErrors("node", badNodes)

			features, badFeatures, err := ioformat.DecodeFeaturesFile(featuresPath)
			if err != nil {
				return err
			}
			a.logRecordErrors("feature", badFeatures)

			b, release, err := a.openBuilder(ctx)
			if err != nil {
				return err
			}
			defer release()

			res := b.MergeFeatures(nodes, features)
			res.Summary.Errored += len(badFeatures)
			for _, r := range res.Rejected {
				a.logger.Warn("feature rejected", zap.Int("index", r.Index), zap.String("reason", r.Reason))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Existing nodes: %d\n", len(nodes))
			fmt.Fprintf(out, "Parsed features: %d\n", len(features))
			printSummary(out, res.Summary)

			if dryRun {
				fmt.Fprintln(out, "Dry run complete (no files written).")
				return nil
			}

			backup, err := ioformat.Backup(nodesPath)
			if err != nil {
				return err
			}
			if err := ioformat.WriteFile(nodesPath, func(w io.Writer) error { return ioformat.WriteNodes(w, res.Nodes) }); err != nil {
				return err
			}
			if err := ioformat.WriteFile(reportPath, func(w io.Writer) error { return ioformat.WriteReport(w, res.Report) }); err != nil {
				return err
			}
			if err := a.persist(ctx, b, core.MergeGraph(res)); err != nil {
				return err
			}

			fmt.Fprintf(out, "Wrote %s (backup %s) and report %s\n", nodesPath, backup, reportPath)
			if res.Summary.Added > 0 || res.Summary.Updated > 0 {
				fmt.Fprintln(out, "Node set changed; regenerate edges with: waygraph proximity")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&nodesPath, "nodes", "n", "data/nodes.csv", "node table to update")
	cmd.Flags().StringVarP(&featuresPath, "features", "f", "", "GeoJSON point features")
	cmd.Flags().StringVarP(&reportPath, "report", "r", "data/nodes_update_report.csv", "merge report to write")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the merge without writing anything")
	_ = cmd.MarkFlagRequired("features")
	return cmd
}
