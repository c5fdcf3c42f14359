// Package core wires the graph-building stages together and persists their
// output.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/waygraph/internal/config"
	"github.com/agenthands/waygraph/internal/core/community"
	"github.com/agenthands/waygraph/internal/core/dedupe"
	"github.com/agenthands/waygraph/internal/core/merge"
	"github.com/agenthands/waygraph/internal/core/model"
	"github.com/agenthands/waygraph/internal/core/proximity"
	"github.com/agenthands/waygraph/internal/driver"
	"github.com/agenthands/waygraph/internal/observability"
	"github.com/agenthands/waygraph/internal/store"
)

// ErrNoBackend is returned by Persist when neither a graph driver nor a
// snapshot sink is configured.
var ErrNoBackend = errors.New("no persistence backend configured")

// Run kinds recorded with every summary.
const (
	KindRoad      = "road"
	KindProximity = "proximity"
	KindMerge     = "merge"
	KindClean     = "clean"
)

const persistBatchSize = 1000

// SnapshotSink receives a full copy of a run's output.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, snap store.Snapshot) error
}

// Graph is the output of one run. A nil Edges slice means the run produced
// nodes only and leaves persisted edges untouched.
type Graph struct {
	Kind    string              `json:"kind"`
	Nodes   []model.Node        `json:"nodes"`
	Edges   []model.Edge        `json:"edges,omitempty"`
	Report  []model.ReportEntry `json:"report,omitempty"`
	Summary model.RunSummary    `json:"summary"`
}

// RoadGraph is a way-derived graph together with its per-way counters.
type RoadGraph struct {
	Graph
	Mode  dedupe.Mode  `json:"mode"`
	Stats dedupe.Stats `json:"stats"`
}

type GraphBuilder struct {
	Driver    driver.GraphDriver
	Sink      SnapshotSink
	Config    *config.Config
	Logger    *zap.Logger
	Dedupe    *dedupe.Deduplicator
	Proximity *proximity.Builder
	Merger    *merge.Engine
	Detector  community.ComponentDetector

	NewRunID func() string
	Now      func() time.Time
}

// NewGraphBuilder builds every stage from cfg. drv may be nil for runs that
// never touch a graph database.
func NewGraphBuilder(drv driver.GraphDriver, cfg *config.Config, logger *zap.Logger) *GraphBuilder {
	if cfg == nil {
		cfg = config.Default()
	}
	logger = observability.OrNop(logger)
	return &GraphBuilder{
		Driver:    drv,
		Config:    cfg,
		Logger:    logger,
		Dedupe:    dedupe.NewDeduplicator(cfg.Graph, logger.Named("dedupe")),
		Proximity: proximity.NewBuilder(cfg.Graph.ProximityMeters, cfg.Graph.WalkingSpeedKph, cfg.Graph.Workers, logger.Named("proximity")),
		Merger:    merge.NewEngine(cfg.Merge, logger.Named("merge")),
		Detector:  community.NewSimpleDetector(),
		NewRunID:  func() string { return uuid.New().String() },
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// BuildRoadGraph turns ways into a deduplicated node set and adjacency edges.
func (g *GraphBuilder) BuildRoadGraph(ways []model.Way, mode dedupe.Mode) *RoadGraph {
	state, edges, stats := g.Dedupe.Build(nil, ways, mode)
	if edges == nil {
		edges = []model.Edge{}
	}
	nodes := state.Nodes()

	rg := &RoadGraph{
		Graph: Graph{
			Kind:  KindRoad,
			Nodes: nodes,
			Edges: edges,
			Summary: model.RunSummary{
				RunID:     g.NewRunID(),
				Processed: stats.Ways,
				Added:     stats.NewNodes,
				Skipped:   stats.Excluded,
				Errored:   stats.Degenerate + stats.Invalid,
				Nodes:     len(nodes),
				Edges:     len(edges),
			},
		},
		Mode:  mode,
		Stats: stats,
	}
	g.logSummary(KindRoad, rg.Summary,
		zap.String("mode", string(mode)),
		zap.Int("short_segments", stats.ShortSegs),
		zap.Int("repeated_segments", stats.Repeated))
	return rg
}

// BuildProximityGraph connects every node pair within the configured
// threshold. A repeated node id keeps its first row only.
func (g *GraphBuilder) BuildProximityGraph(nodes []model.Node) (*Graph, error) {
	processed := len(nodes)
	nodes, dropped := g.dropRepeatedIDs(nodes)
	edges, err := g.Proximity.Build(nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to build proximity graph: %w", err)
	}
	if edges == nil {
		edges = []model.Edge{}
	}

	graph := &Graph{
		Kind:  KindProximity,
		Nodes: nodes,
		Edges: edges,
		Summary: model.RunSummary{
			RunID:     g.NewRunID(),
			Processed: processed,
			Skipped:   dropped,
			Nodes:     len(nodes),
			Edges:     len(edges),
		},
	}
	g.logSummary(KindProximity, graph.Summary, zap.Float64("threshold_meters", g.Proximity.Threshold))
	return graph, nil
}

// MergeFeatures folds observed features into existing. existing is not
// modified. Rows repeating an earlier node id are left out of the result.
func (g *GraphBuilder) MergeFeatures(existing []model.Node, features []model.Feature) *merge.Result {
	existing, dropped := g.dropRepeatedIDs(existing)
	res := g.Merger.Merge(existing, features)
	res.Summary.RunID = g.NewRunID()
	res.Summary.Skipped += dropped
	g.logSummary(KindMerge, res.Summary, zap.Int("rejected", len(res.Rejected)))
	return res
}

// MergeGraph wraps a merge result for persistence.
func MergeGraph(res *merge.Result) *Graph {
	return &Graph{
		Kind:    KindMerge,
		Nodes:   res.Nodes,
		Report:  res.Report,
		Summary: res.Summary,
	}
}

// CleanNodes drops nodes with out-of-range coordinates and repeated ids,
// keeping the first occurrence. With renumber set the survivors get
// sequential ids from 1 in their original order.
func (g *GraphBuilder) CleanNodes(nodes []model.Node, renumber bool) *Graph {
	out := make([]model.Node, 0, len(nodes))
	seen := make(map[int64]bool, len(nodes))
	summary := model.RunSummary{RunID: g.NewRunID()}

	for _, n := range nodes {
		summary.Processed++
		if !n.Coordinate().Valid() {
			summary.Errored++
			g.Logger.Warn("dropping node with invalid coordinates", zap.Int64("id", n.ID))
			continue
		}
		if !renumber && seen[n.ID] {
			summary.Skipped++
			g.Logger.Warn("dropping node with repeated id", zap.Int64("id", n.ID))
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
	}

	if renumber {
		for i := range out {
			if out[i].ID != int64(i+1) {
				summary.Updated++
			}
			out[i].ID = int64(i + 1)
		}
	}
	summary.Nodes = len(out)

	graph := &Graph{Kind: KindClean, Nodes: out, Summary: summary}
	g.logSummary(KindClean, summary, zap.Bool("renumber", renumber))
	return graph
}

// dropRepeatedIDs keeps the first node of each id. nodes is returned as is
// when every id is unique.
func (g *GraphBuilder) dropRepeatedIDs(nodes []model.Node) ([]model.Node, int) {
	seen := make(map[int64]bool, len(nodes))
	var out []model.Node
	for i, n := range nodes {
		if !seen[n.ID] {
			seen[n.ID] = true
			if out != nil {
				out = append(out, n)
			}
			continue
		}
		if out == nil {
			out = make([]model.Node, i, len(nodes))
			copy(out, nodes[:i])
		}
		g.Logger.Warn("dropping node with repeated id", zap.Int64("id", n.ID))
	}
	if out == nil {
		return nodes, 0
	}
	return out, len(nodes) - len(out)
}

// Connectivity reports the connected components of nodes and edges.
func (g *GraphBuilder) Connectivity(nodes []model.Node, edges []model.Edge) community.Report {
	report := community.Analyze(g.Detector, nodes, edges)
	g.Logger.Info("connectivity analyzed",
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(edges)),
		zap.Int("components", report.Components),
		zap.Int("largest", report.Largest),
		zap.Int("isolated", report.Isolated),
		zap.Int("dangling_refs", report.DanglingRefs))
	return report
}

// Backends reports the state of each configured persistence backend.
func (g *GraphBuilder) Backends(ctx context.Context) map[string]string {
	status := make(map[string]string, 2)
	if g.Driver != nil {
		status["memgraph"] = "ok"
		if err := g.Driver.VerifyConnectivity(ctx); err != nil {
			g.Logger.Warn("memgraph unreachable", zap.Error(err))
			status["memgraph"] = "unreachable"
		}
	}
	if g.Sink != nil {
		status["sqlite"] = "ok"
	}
	return status
}

func (g *GraphBuilder) BuildIndices(ctx context.Context) error {
	if g.Driver == nil {
		return ErrNoBackend
	}
	return g.Driver.BuildIndices(ctx)
}

// Persist writes graph to every configured backend. Places are upserted by
// (name, id); when the graph carries edges, the stored edges of name are
// replaced by them.
func (g *GraphBuilder) Persist(ctx context.Context, name string, graph *Graph) error {
	if g.Driver == nil && g.Sink == nil {
		return ErrNoBackend
	}

	if g.Driver != nil {
		if err := g.persistGraph(ctx, name, graph); err != nil {
			return err
		}
	}

	if g.Sink != nil {
		snap := store.Snapshot{
			Kind:    graph.Kind,
			Summary: graph.Summary,
			Nodes:   graph.Nodes,
			Edges:   graph.Edges,
			Report:  graph.Report,
		}
		if err := g.Sink.SaveSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
	}

	g.Logger.Info("graph persisted",
		zap.String("run_id", graph.Summary.RunID),
		zap.String("graph", name),
		zap.String("kind", graph.Kind),
		zap.Int("nodes", len(graph.Nodes)),
		zap.Int("edges", len(graph.Edges)))
	return nil
}

func (g *GraphBuilder) persistGraph(ctx context.Context, name string, graph *Graph) error {
	runID := graph.Summary.RunID
	now := g.Now().Format(time.RFC3339)

	for start := 0; start < len(graph.Nodes); start += persistBatchSize {
		end := min(start+persistBatchSize, len(graph.Nodes))
		batch := make([]map[string]interface{}, 0, end-start)
		for _, n := range graph.Nodes[start:end] {
			batch = append(batch, map[string]interface{}{
				"id":   n.ID,
				"name": n.Name,
				"lat":  n.Lat,
				"lon":  n.Lon,
				"type": n.Type,
			})
		}
		params := map[string]interface{}{
			"graph":      name,
			"nodes":      batch,
			"run_id":     runID,
			"updated_at": now,
		}
		if _, err := g.Driver.ExecuteQuery(ctx, driver.SavePlacesQuery, params); err != nil {
			return fmt.Errorf("failed to save places: %w", err)
		}
	}

	if graph.Edges != nil {
		if _, err := g.Driver.ExecuteQuery(ctx, driver.DeleteGraphEdgesQuery, map[string]interface{}{"graph": name}); err != nil {
			return fmt.Errorf("failed to clear edges: %w", err)
		}
		for start := 0; start < len(graph.Edges); start += persistBatchSize {
			end := min(start+persistBatchSize, len(graph.Edges))
			batch := make([]map[string]interface{}, 0, end-start)
			for _, e := range graph.Edges[start:end] {
				batch = append(batch, map[string]interface{}{
					"from_id":         e.FromID,
					"to_id":           e.ToID,
					"distance_meters": e.DistanceMeters,
					"speed_kph":       e.SpeedKph,
					"undirected":      e.Undirected,
					"way_class":       e.WayClass,
					"way_id":          e.WayID,
				})
			}
			params := map[string]interface{}{
				"graph":  name,
				"edges":  batch,
				"run_id": runID,
			}
			if _, err := g.Driver.ExecuteQuery(ctx, driver.SaveEdgesQuery, params); err != nil {
				return fmt.Errorf("failed to save edges: %w", err)
			}
		}
	}

	s := graph.Summary
	runParams := map[string]interface{}{
		"uuid":       runID,
		"graph":      name,
		"kind":       graph.Kind,
		"created_at": now,
		"processed":  s.Processed,
		"added":      s.Added,
		"updated":    s.Updated,
		"skipped":    s.Skipped,
		"errored":    s.Errored,
		"nodes":      s.Nodes,
		"edges":      s.Edges,
	}
	if _, err := g.Driver.ExecuteQuery(ctx, driver.SaveRunQuery, runParams); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// LoadPlaces reads the persisted node set of a graph in id order.
func (g *GraphBuilder) LoadPlaces(ctx context.Context, name string) ([]model.Node, error) {
	if g.Driver == nil {
		return nil, ErrNoBackend
	}
	res, err := g.Driver.ExecuteQuery(ctx, driver.GetPlacesQuery, map[string]interface{}{"graph": name})
	if err != nil {
		return nil, fmt.Errorf("failed to load places: %w", err)
	}

	nodes := make([]model.Node, 0, len(res.Records))
	for _, rec := range res.Records {
		id, _ := rec.Get("id")
		lat, _ := rec.Get("lat")
		lon, _ := rec.Get("lon")
		label, _ := rec.Get("name")
		typ, _ := rec.Get("type")

		n := model.Node{}
		var ok bool
		if n.ID, ok = id.(int64); !ok {
			return nil, fmt.Errorf("place has non-integer id %v", id)
		}
		if n.Lat, ok = lat.(float64); !ok {
			return nil, fmt.Errorf("place %d has non-numeric lat", n.ID)
		}
		if n.Lon, ok = lon.(float64); !ok {
			return nil, fmt.Errorf("place %d has non-numeric lon", n.ID)
		}
		n.Name, _ = label.(string)
		n.Type, _ = typ.(string)
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (g *GraphBuilder) logSummary(kind string, s model.RunSummary, extra ...zap.Field) {
	fields := append([]zap.Field{
		zap.String("run_id", s.RunID),
		zap.String("kind", kind),
		zap.Int("processed", s.Processed),
		zap.Int("added", s.Added),
		zap.Int("updated", s.Updated),
		zap.Int("skipped", s.Skipped),
		zap.Int("errored", s.Errored),
		zap.Int("nodes", s.Nodes),
		zap.Int("edges", s.Edges),
	}, extra...)
	g.Logger.Info("run complete", fields...)
}
