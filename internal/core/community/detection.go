// Package community finds the connected components of a built graph so that
// disconnected islands show up before the graph is used for routing.
package community

import (
	"sort"

	"github.com/agenthands/waygraph/internal/core/model"
)

// Component is a set of node ids reachable from each other.
type Component struct {
	IDs []int64 `json:"ids"`
}

func (c Component) Size() int { return len(c.IDs) }

type ComponentDetector interface {
	Detect(nodes []model.Node, edges []model.Edge) []Component
}

// Report summarizes graph connectivity.
type Report struct {
	Components   int   `json:"components"`
	Largest      int   `json:"largest"`
	Isolated     int   `json:"isolated"`
	DanglingRefs int   `json:"dangling_refs"`
	Sizes        []int `json:"sizes"`
}

type SimpleDetector struct{}

func NewSimpleDetector() ComponentDetector {
	return &SimpleDetector{}
}

// Detect treats edges as undirected. Edges that reference unknown nodes are
// ignored. Components are ordered by size, largest first, then by their
// smallest id; ids inside a component are ascending.
func (d *SimpleDetector) Detect(nodes []model.Node, edges []model.Edge) []Component {
	known := make(map[int64]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}

	adj := make(map[int64][]int64)
	for _, e := range edges {
		if !known[e.FromID] || !known[e.ToID] {
			continue
		}
		adj[e.FromID] = append(adj[e.FromID], e.ToID)
		adj[e.ToID] = append(adj[e.ToID], e.FromID)
	}

	visited := make(map[int64]bool, len(nodes))
	var components []Component

	for _, n := range nodes {
		if visited[n.ID] {
			continue
		}
		var ids []int64
		d.dfs(n.ID, adj, visited, &ids)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		components = append(components, Component{IDs: ids})
	}

	sort.SliceStable(components, func(i, j int) bool {
		if components[i].Size() != components[j].Size() {
			return components[i].Size() > components[j].Size()
		}
		return components[i].IDs[0] < components[j].IDs[0]
	})
	return components
}

// dfs uses an explicit stack; road graphs can be deep chains.
func (d *SimpleDetector) dfs(start int64, adj map[int64][]int64, visited map[int64]bool, component *[]int64) {
	stack := []int64{start}
	visited[start] = true
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		*component = append(*component, u)
		for _, v := range adj[u] {
			if !visited[v] {
				visited[v] = true
				stack = append(stack, v)
			}
		}
	}
}

// Analyze runs the detector and folds the result into a Report.
func Analyze(detector ComponentDetector, nodes []model.Node, edges []model.Edge) Report {
	known := make(map[int64]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}

	var r Report
	for _, e := range edges {
		if !known[e.FromID] || !known[e.ToID] {
			r.DanglingRefs++
		}
	}

	components := detector.Detect(nodes, edges)
	r.Components = len(components)
	for _, c := range components {
		r.Sizes = append(r.Sizes, c.Size())
		if c.Size() == 1 {
			r.Isolated++
		}
	}
	if len(components) > 0 {
		r.Largest = components[0].Size()
	}
	return r
}
