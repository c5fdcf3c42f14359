package ioformat

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"

	"github.com/agenthands/waygraph/internal/core/model"
)

// DecodeOSM reads an OSM XML extract and returns its highway-tagged ways
// with node coordinates resolved. Ways that reference nodes missing from
// the extract are reported and skipped.
func DecodeOSM(ctx context.Context, r io.Reader) ([]model.Way, []RecordError, error) {
	scanner := osmxml.New(ctx, r)
	defer scanner.Close()
	return scanWays(scanner)
}

// DecodeOSMPBF is DecodeOSM for the PBF encoding.
func DecodeOSMPBF(ctx context.Context, r io.Reader) ([]model.Way, []RecordError, error) {
	scanner := osmpbf.New(ctx, r, runtime.GOMAXPROCS(0))
	defer scanner.Close()
	return scanWays(scanner)
}

func scanWays(scanner osm.Scanner) ([]model.Way, []RecordError, error) {
	coords := make(map[osm.NodeID]orb.Point)
	var rawWays []*osm.Way

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			coords[o.ID] = orb.Point{o.Lon, o.Lat}
		case *osm.Way:
			if o.Tags.Find("highway") != "" {
				rawWays = append(rawWays, o)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to scan osm data: %w", err)
	}

	var (
		ways []model.Way
		bad  []RecordError
	)
	for _, w := range rawWays {
		ls := make(orb.LineString, 0, len(w.Nodes))
		missing := 0
		for _, wn := range w.Nodes {
			p, ok := coords[wn.ID]
			if !ok {
				missing++
				continue
			}
			ls = append(ls, p)
		}
		if missing > 0 {
			bad = append(bad, RecordError{
				Ref:    fmt.Sprintf("way/%d", w.ID),
				Reason: fmt.Sprintf("%d of %d nodes missing from extract", missing, len(w.Nodes)),
			})
			continue
		}
		ways = append(ways, model.Way{
			ID:          int64(w.ID),
			Highway:     w.Tags.Find("highway"),
			Coordinates: ls,
		})
	}
	return ways, bad, nil
}

func DecodeOSMFile(ctx context.Context, path string) ([]model.Way, []RecordError, error) {
	f, err := openSource(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return DecodeOSM(ctx, f)
}

func DecodeOSMPBFFile(ctx context.Context, path string) ([]model.Way, []RecordError, error) {
	f, err := openSource(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return DecodeOSMPBF(ctx, f)
}
