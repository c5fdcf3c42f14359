// Package proximity connects every pair of nodes that lie within a distance
// threshold of each other.
package proximity

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/waygraph/internal/core/geo"
	"github.com/agenthands/waygraph/internal/core/model"
)

var (
	ErrNegativeThreshold = errors.New("proximity threshold must be >= 0")
	// ErrDuplicateNodeID is returned when two nodes share an id, which would
	// yield two edges for one pair.
	ErrDuplicateNodeID = errors.New("duplicate node id")
)

// Builder emits one undirected edge per node pair at distance <= Threshold.
type Builder struct {
	Threshold float64
	SpeedKph  float64
	Workers   int
	Logger    *zap.Logger
}

func NewBuilder(threshold, speedKph float64, workers int, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		Threshold: threshold,
		SpeedKph:  speedKph,
		Workers:   workers,
		Logger:    logger,
	}
}

// Exhaustive compares every pair. It is the reference result for Build.
func (b *Builder) Exhaustive(nodes []model.Node) ([]model.Edge, error) {
	if err := b.validate(nodes); err != nil {
		return nil, err
	}
	var edges []model.Edge
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			if e, ok := b.connect(nodes[i], nodes[j]); ok {
				edges = append(edges, e)
			}
		}
	}
	sortEdges(edges)
	return edges, nil
}

// Build produces the same edge set as Exhaustive using a grid index and a
// pool of workers. Output is sorted by (FromID, ToID).
func (b *Builder) Build(nodes []model.Node) ([]model.Edge, error) {
	if err := b.validate(nodes); err != nil {
		return nil, err
	}

	idx, ok := newGrid(nodes, b.Threshold)
	if !ok {
		b.Logger.Debug("grid index not applicable, scanning all pairs", zap.Int("nodes", len(nodes)))
		return b.Exhaustive(nodes)
	}

	workers := b.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(nodes) {
		workers = len(nodes)
	}
	if workers < 1 {
		workers = 1
	}

	results := make([][]model.Edge, workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			var local []model.Edge
			// interleaved stripes keep the triangular workload balanced
			for i := w; i < len(nodes); i += workers {
				idx.forEachCandidate(i, func(j int) {
					if e, ok := b.connect(nodes[i], nodes[j]); ok {
						local = append(local, e)
					}
				})
			}
			results[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("proximity scan failed: %w", err)
	}

	var total int
	for _, r := range results {
		total += len(r)
	}
	edges := make([]model.Edge, 0, total)
	for _, r := range results {
		edges = append(edges, r...)
	}
	sortEdges(edges)

	b.Logger.Debug("proximity edges built",
		zap.Int("nodes", len(nodes)),
		zap.Int("cells", len(idx.cells)),
		zap.Int("edges", len(edges)))
	return edges, nil
}

func (b *Builder) validate(nodes []model.Node) error {
	if b.Threshold < 0 || math.IsNaN(b.Threshold) {
		return ErrNegativeThreshold
	}
	seen := make(map[int64]struct{}, len(nodes))
	for _, n := range nodes {
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateNodeID, n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	return nil
}

func (b *Builder) connect(a, c model.Node) (model.Edge, bool) {
	if a.ID == c.ID {
		return model.Edge{}, false
	}
	d := geo.Distance(a.Coordinate(), c.Coordinate())
	if d > b.Threshold {
		return model.Edge{}, false
	}
	from, to := a.ID, c.ID
	if from > to {
		from, to = to, from
	}
	return model.Edge{
		FromID:         from,
		ToID:           to,
		DistanceMeters: d,
		SpeedKph:       b.SpeedKph,
		Undirected:     true,
	}, true
}

func sortEdges(edges []model.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].FromID != edges[j].FromID {
			return edges[i].FromID < edges[j].FromID
		}
		return edges[i].ToID < edges[j].ToID
	})
}
