package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/agenthands/waygraph/internal/config"
	"github.com/agenthands/waygraph/internal/core/dedupe"
	"github.com/agenthands/waygraph/internal/core/model"
	"github.com/agenthands/waygraph/internal/driver"
)

func newTestBuilder(drv driver.GraphDriver) (*GraphBuilder, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	g := NewGraphBuilder(drv, config.Default(), zap.New(core))
	seq := 0
	g.NewRunID = func() string {
		seq++
		return fmt.Sprintf("run-%d", seq)
	}
	g.Now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return g, logs
}

func testWays() []model.Way {
	return []model.Way{
		{ID: 10, Highway: "residential", Coordinates: orb.LineString{{20, 10}, {20.001, 10}}},
		{ID: 11, Highway: "footway", Coordinates: orb.LineString{{20.001, 10}, {20.002, 10}}},
		{ID: 12, Highway: "service", Coordinates: orb.LineString{{20.005, 10}}},
	}
}

func TestBuildRoadGraph_Walk(t *testing.T) {
	g, logs := newTestBuilder(nil)

	rg := g.BuildRoadGraph(testWays(), dedupe.ModeWalk)

	assert.Equal(t, KindRoad, rg.Kind)
	assert.Equal(t, dedupe.ModeWalk, rg.Mode)
	require.Len(t, rg.Nodes, 3)
	require.Len(t, rg.Edges, 2)
	assert.Equal(t, int64(2), rg.Edges[1].FromID, "shared vertex is one node")
	assert.Equal(t, "footway", rg.Edges[1].WayClass)
	assert.Equal(t, 5.0, rg.Edges[1].SpeedKph)

	assert.Equal(t, model.RunSummary{
		RunID: "run-1", Processed: 3, Added: 3, Errored: 1, Nodes: 3, Edges: 2,
	}, rg.Summary)

	entries := logs.FilterMessage("run complete").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, "walk", fields["mode"])
}

func TestBuildRoadGraph_DriveExcludesFootways(t *testing.T) {
	g, _ := newTestBuilder(nil)

	rg := g.BuildRoadGraph(testWays(), dedupe.ModeDrive)

	assert.Len(t, rg.Nodes, 2)
	require.Len(t, rg.Edges, 1)
	assert.Equal(t, "residential", rg.Edges[0].WayClass)
	assert.Equal(t, 1, rg.Summary.Skipped)
	assert.Equal(t, 1, rg.Stats.Excluded)
}

func TestBuildRoadGraph_NoWays(t *testing.T) {
	g, _ := newTestBuilder(nil)

	rg := g.BuildRoadGraph(nil, dedupe.ModeWalk)
	assert.Empty(t, rg.Nodes)
	assert.NotNil(t, rg.Edges, "an empty graph still replaces stored edges")
}

func TestBuildProximityGraph(t *testing.T) {
	g, _ := newTestBuilder(nil)
	nodes := []model.Node{
		{ID: 1, Lat: 0, Lon: 0},
		{ID: 2, Lat: 0, Lon: 0.001},
		{ID: 3, Lat: 0, Lon: 1},
	}

	graph, err := g.BuildProximityGraph(nodes)
	require.NoError(t, err)

	require.Len(t, graph.Edges, 1)
	e := graph.Edges[0]
	assert.Equal(t, int64(1), e.FromID)
	assert.Equal(t, int64(2), e.ToID)
	assert.InDelta(t, 111.19, e.DistanceMeters, 0.01)
	assert.Equal(t, 5.0, e.SpeedKph)
	assert.True(t, e.Undirected)
	assert.Equal(t, model.RunSummary{RunID: "run-1", Processed: 3, Nodes: 3, Edges: 1}, graph.Summary)
}

func TestBuildProximityGraph_NegativeThreshold(t *testing.T) {
	g, _ := newTestBuilder(nil)
	g.Proximity.Threshold = -1

	_, err := g.BuildProximityGraph([]model.Node{{ID: 1}, {ID: 2}})
	assert.Error(t, err)
}

func TestBuildProximityGraph_RepeatedIDKeepsFirst(t *testing.T) {
	g, logs := newTestBuilder(nil)
	nodes := []model.Node{
		{ID: 1, Lat: 0, Lon: 0},
		{ID: 1, Lat: 0, Lon: 0.001},
		{ID: 2, Lat: 0, Lon: 0.002},
	}

	graph, err := g.BuildProximityGraph(nodes)
	require.NoError(t, err)

	require.Len(t, graph.Nodes, 2)
	assert.Equal(t, 0.0, graph.Nodes[0].Lon)
	require.Len(t, graph.Edges, 1)
	assert.Equal(t, model.PairKey{Low: 1, High: 2}, graph.Edges[0].Pair())
	assert.InDelta(t, 222.39, graph.Edges[0].DistanceMeters, 0.01)
	assert.Equal(t, 3, graph.Summary.Processed)
	assert.Equal(t, 1, graph.Summary.Skipped)
	assert.Equal(t, 2, graph.Summary.Nodes)
	assert.Len(t, logs.FilterMessage("dropping node with repeated id").All(), 1)
	assert.Len(t, nodes, 3, "input is not modified")
}

func TestMergeFeatures_RepeatedExistingIDKeepsFirst(t *testing.T) {
	g, _ := newTestBuilder(nil)
	existing := []model.Node{
		{ID: 1, Name: "Cafe A", Lat: 10, Lon: 20, Type: "cafe"},
		{ID: 1, Name: "Cafe A copy", Lat: 11, Lon: 21, Type: "cafe"},
		{ID: 2, Name: "Bank B", Lat: 10.01, Lon: 20, Type: "bank"},
	}

	res := g.MergeFeatures(existing, nil)

	require.Len(t, res.Nodes, 2)
	assert.Equal(t, []int64{1, 2}, []int64{res.Nodes[0].ID, res.Nodes[1].ID})
	assert.Equal(t, "Cafe A", res.Nodes[0].Name)
	assert.Equal(t, 1, res.Summary.Skipped)
}

func TestMergeFeatures(t *testing.T) {
	g, logs := newTestBuilder(nil)
	existing := []model.Node{{ID: 1, Name: "Cafe A", Lat: 10, Lon: 20, Type: "cafe"}}
	features := []model.Feature{
		{Name: "Cafe A", Lat: 10.00003, Lon: 20.00001, Type: "cafe"},
		{Name: "Bank B", Lat: 10.01, Lon: 20, Type: "bank"},
	}

	res := g.MergeFeatures(existing, features)

	assert.Equal(t, "run-1", res.Summary.RunID)
	assert.Equal(t, 1, res.Summary.Updated)
	assert.Equal(t, 1, res.Summary.Added)
	assert.Equal(t, 10.0, existing[0].Lat, "input is not modified")

	graph := MergeGraph(res)
	assert.Equal(t, KindMerge, graph.Kind)
	assert.Nil(t, graph.Edges)
	assert.Len(t, graph.Report, 2)

	require.Len(t, logs.FilterMessage("run complete").All(), 1)
}

func TestCleanNodes(t *testing.T) {
	g, _ := newTestBuilder(nil)
	nodes := []model.Node{
		{ID: 5, Name: "a", Lat: 1, Lon: 1},
		{ID: 9, Name: "bad", Lat: 91, Lon: 1},
		{ID: 5, Name: "dup", Lat: 2, Lon: 2},
		{ID: 7, Name: "c", Lat: 3, Lon: 3},
	}

	kept := g.CleanNodes(nodes, false)
	require.Len(t, kept.Nodes, 2)
	assert.Equal(t, []int64{5, 7}, []int64{kept.Nodes[0].ID, kept.Nodes[1].ID})
	assert.Equal(t, model.RunSummary{RunID: "run-1", Processed: 4, Skipped: 1, Errored: 1, Nodes: 2}, kept.Summary)

	renumbered := g.CleanNodes(nodes, true)
	require.Len(t, renumbered.Nodes, 3)
	for i, n := range renumbered.Nodes {
		assert.Equal(t, int64(i+1), n.ID)
	}
	assert.Equal(t, "dup", renumbered.Nodes[1].Name)
	assert.Equal(t, 3, renumbered.Summary.Updated)
	assert.Equal(t, int64(5), nodes[0].ID, "input is not modified")
}

func TestConnectivity(t *testing.T) {
	g, _ := newTestBuilder(nil)
	nodes := []model.Node{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}
	edges := []model.Edge{{FromID: 1, ToID: 2}, {FromID: 2, ToID: 3}, {FromID: 4, ToID: 99}}

	report := g.Connectivity(nodes, edges)
	assert.Equal(t, 2, report.Components)
	assert.Equal(t, 3, report.Largest)
	assert.Equal(t, 1, report.Isolated)
	assert.Equal(t, 1, report.DanglingRefs)
}

func TestPersist_NoBackend(t *testing.T) {
	g, _ := newTestBuilder(nil)
	err := g.Persist(context.Background(), "city", &Graph{})
	assert.ErrorIs(t, err, ErrNoBackend)

	assert.ErrorIs(t, g.BuildIndices(context.Background()), ErrNoBackend)
	_, err = g.LoadPlaces(context.Background(), "city")
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestPersist_GraphWithEdges(t *testing.T) {
	mock := &MockDriver{}
	g, _ := newTestBuilder(mock)
	rg := g.BuildRoadGraph(testWays(), dedupe.ModeWalk)

	require.NoError(t, g.Persist(context.Background(), "city", &rg.Graph))

	assert.Equal(t, []string{
		driver.SavePlacesQuery,
		driver.DeleteGraphEdgesQuery,
		driver.SaveEdgesQuery,
		driver.SaveRunQuery,
	}, mock.Queries())

	places := mock.Calls[0].Params
	assert.Equal(t, "city", places["graph"])
	assert.Equal(t, "run-1", places["run_id"])
	assert.Equal(t, "2024-05-01T12:00:00Z", places["updated_at"])
	nodes := places["nodes"].([]map[string]interface{})
	require.Len(t, nodes, 3)
	assert.Equal(t, int64(1), nodes[0]["id"])
	assert.Equal(t, 10.0, nodes[0]["lat"])

	edges := mock.Calls[2].Params["edges"].([]map[string]interface{})
	require.Len(t, edges, 2)
	assert.Equal(t, "residential", edges[0]["way_class"])
	assert.Equal(t, int64(10), edges[0]["way_id"])

	run := mock.Calls[3].Params
	assert.Equal(t, "run-1", run["uuid"])
	assert.Equal(t, KindRoad, run["kind"])
	assert.Equal(t, 2, run["edges"])
}

func TestPersist_NodesOnlyKeepsEdges(t *testing.T) {
	mock := &MockDriver{}
	g, _ := newTestBuilder(mock)
	res := g.MergeFeatures(nil, []model.Feature{{Name: "Kiosk", Lat: 1, Lon: 1, Type: "kiosk"}})

	require.NoError(t, g.Persist(context.Background(), "city", MergeGraph(res)))
	assert.Equal(t, []string{driver.SavePlacesQuery, driver.SaveRunQuery}, mock.Queries())
}

func TestPersist_Batches(t *testing.T) {
	mock := &MockDriver{}
	g, _ := newTestBuilder(mock)
	nodes := make([]model.Node, 2*persistBatchSize+5)
	for i := range nodes {
		nodes[i] = model.Node{ID: int64(i + 1), Lat: 1, Lon: float64(i) * 0.01}
	}

	require.NoError(t, g.Persist(context.Background(), "big", &Graph{Kind: KindClean, Nodes: nodes}))

	require.Len(t, mock.Calls, 4)
	sizes := []int{}
	for _, c := range mock.Calls[:3] {
		assert.Equal(t, driver.SavePlacesQuery, c.Query)
		sizes = append(sizes, len(c.Params["nodes"].([]map[string]interface{})))
	}
	assert.Equal(t, []int{persistBatchSize, persistBatchSize, 5}, sizes)
}

func TestPersist_DriverError(t *testing.T) {
	boom := errors.New("connection reset")
	mock := &MockDriver{Err: boom, FailOn: driver.SaveEdgesQuery}
	sink := &MockSink{}
	g, _ := newTestBuilder(mock)
	g.Sink = sink

	err := g.Persist(context.Background(), "city", &Graph{
		Kind:  KindProximity,
		Nodes: []model.Node{{ID: 1}, {ID: 2}},
		Edges: []model.Edge{{FromID: 1, ToID: 2}},
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to save edges")
	assert.NotContains(t, mock.Queries(), driver.SaveRunQuery)
	assert.Empty(t, sink.Snapshots, "sink is not written after a driver failure")
}

func TestPersist_SinkOnly(t *testing.T) {
	sink := &MockSink{}
	g, _ := newTestBuilder(nil)
	g.Sink = sink
	res := g.MergeFeatures(nil, []model.Feature{{Name: "Kiosk", Lat: 1, Lon: 1, Type: "kiosk"}})

	require.NoError(t, g.Persist(context.Background(), "city", MergeGraph(res)))

	require.Len(t, sink.Snapshots, 1)
	snap := sink.Snapshots[0]
	assert.Equal(t, KindMerge, snap.Kind)
	assert.Equal(t, "run-1", snap.Summary.RunID)
	assert.Len(t, snap.Nodes, 1)
	assert.Nil(t, snap.Edges)
	require.Len(t, snap.Report, 1)
	assert.Equal(t, model.ActionAdded, snap.Report[0].Action)
}

func TestLoadPlaces(t *testing.T) {
	keys := []string{"id", "name", "lat", "lon", "type"}
	mock := &MockDriver{MockResult: neo4j.EagerResult{
		Keys: keys,
		Records: []*neo4j.Record{
			{Keys: keys, Values: []any{int64(1), "Cafe A", 10.0, 20.0, "cafe"}},
			{Keys: keys, Values: []any{int64(2), nil, 10.5, 20.5, nil}},
		},
	}}
	g, _ := newTestBuilder(mock)

	nodes, err := g.LoadPlaces(context.Background(), "city")
	require.NoError(t, err)
	assert.Equal(t, []model.Node{
		{ID: 1, Name: "Cafe A", Lat: 10, Lon: 20, Type: "cafe"},
		{ID: 2, Lat: 10.5, Lon: 20.5},
	}, nodes)
	assert.Equal(t, "city", mock.Calls[0].Params["graph"])
}

func TestLoadPlaces_BadRecord(t *testing.T) {
	keys := []string{"id", "name", "lat", "lon", "type"}
	mock := &MockDriver{MockResult: neo4j.EagerResult{
		Records: []*neo4j.Record{{Keys: keys, Values: []any{"x", "", 1.0, 1.0, ""}}},
	}}
	g, _ := newTestBuilder(mock)

	_, err := g.LoadPlaces(context.Background(), "city")
	assert.Error(t, err)
}

func TestBuildIndices(t *testing.T) {
	mock := &MockDriver{}
	g, _ := newTestBuilder(mock)
	require.NoError(t, g.BuildIndices(context.Background()))
	assert.True(t, mock.IndicesBuilt)
}

func TestBackends(t *testing.T) {
	g, _ := newTestBuilder(nil)
	assert.Empty(t, g.Backends(context.Background()))

	mock := &MockDriver{Unreachable: errors.New("dial tcp: connection refused")}
	g, logs := newTestBuilder(mock)
	g.Sink = &MockSink{}
	assert.Equal(t, map[string]string{"memgraph": "unreachable", "sqlite": "ok"}, g.Backends(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("memgraph unreachable").Len())

	mock.Unreachable = nil
	assert.Equal(t, "ok", g.Backends(context.Background())["memgraph"])
}
