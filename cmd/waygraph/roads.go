package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agenthands/waygraph/internal/core/dedupe"
	"github.com/agenthands/waygraph/internal/core/model"
	"github.com/agenthands/waygraph/internal/ioformat"
)

func newRoadsCmd(a *app) *cobra.Command {
	var (
		input  string
		mode   string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "roads",
		Short: "Build a road graph from GeoJSON or OSM XML ways",
		Long:  `Deduplicates way vertices into nodes and connects consecutive vertices. Writes road_<mode>_nodes.csv and road_<mode>_edges.csv.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := dedupe.ParseMode(mode)
			if !ok {
				return fmt.Errorf("unknown mode %q, want walk or drive", mode)
			}
			ctx := cmd.Context()

			ways, bad, err := readWays(ctx, input)
			if err != nil {
				return err
			}
			a.logRecordErrors("way", bad)

			b, release, err := a.openBuilder(ctx)
			if err != nil {
				return err
			}
			defer release()

			rg := b.BuildRoadGraph(ways, m)
			rg.Summary.Errored += len(bad)

			nodesPath := filepath.Join(outDir, fmt.Sprintf("road_%s_nodes.csv", m))
			edgesPath := filepath.Join(outDir, fmt.Sprintf("road_%s_edges.csv", m))
			if err := ioformat.WriteFile(nodesPath, func(w io.Writer) error { return ioformat.WriteRoadNodes(w, rg.Nodes) }); err != nil {
				return err
			}
			if err := ioformat.WriteFile(edgesPath, func(w io.Writer) error { return ioformat.WriteEdges(w, rg.Edges, true) }); err != nil {
				return err
			}
			if err := a.persist(ctx, b, &rg.Graph); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSummary(out, rg.Summary)
			fmt.Fprintf(out, "Wrote %s and %s\n", nodesPath, edgesPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "ways as GeoJSON (.geojson, .json), OSM XML (.osm, .xml) or OSM PBF (.pbf)")
	cmd.Flags().StringVar(&mode, "mode", string(dedupe.ModeWalk), "walk or drive")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "data", "output directory")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func readWays(ctx context.Context, path string) ([]model.Way, []ioformat.RecordError, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pbf":
		return ioformat.DecodeOSMPBFFile(ctx, path)
	case ".osm", ".xml":
		return ioformat.DecodeOSMFile(ctx, path)
	default:
		return ioformat.DecodeWaysFile(path)
	}
}
