package community

import (
	"testing"

	"github.com/agenthands/waygraph/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	nodes := []model.Node{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}
	edges := []model.Edge{
		{FromID: 1, ToID: 2},
		{FromID: 3, ToID: 2},
		// 4 is isolated
	}

	components := NewSimpleDetector().Detect(nodes, edges)

	require.Len(t, components, 2)
	assert.Equal(t, []int64{1, 2, 3}, components[0].IDs)
	assert.Equal(t, []int64{4}, components[1].IDs)
}

func TestDetect_MultipleComponentsOrdering(t *testing.T) {
	nodes := []model.Node{{ID: 10}, {ID: 11}, {ID: 3}, {ID: 4}, {ID: 5}}
	edges := []model.Edge{
		{FromID: 10, ToID: 11},
		{FromID: 3, ToID: 4},
		{FromID: 99, ToID: 5}, // unknown node
	}

	components := NewSimpleDetector().Detect(nodes, edges)
	require.Len(t, components, 3)
	assert.Equal(t, []int64{3, 4}, components[0].IDs)
	assert.Equal(t, []int64{10, 11}, components[1].IDs)
	assert.Equal(t, []int64{5}, components[2].IDs)
}

func TestDetect_LongChain(t *testing.T) {
	const n = 100000
	nodes := make([]model.Node, n)
	edges := make([]model.Edge, 0, n-1)
	for i := range nodes {
		nodes[i] = model.Node{ID: int64(i + 1)}
		if i > 0 {
			edges = append(edges, model.Edge{FromID: int64(i), ToID: int64(i + 1)})
		}
	}

	components := NewSimpleDetector().Detect(nodes, edges)
	require.Len(t, components, 1)
	assert.Equal(t, n, components[0].Size())
}

func TestAnalyze(t *testing.T) {
	nodes := []model.Node{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}}
	edges := []model.Edge{
		{FromID: 1, ToID: 2},
		{FromID: 2, ToID: 3},
		{FromID: 3, ToID: 42},
	}

	r := Analyze(NewSimpleDetector(), nodes, edges)
	assert.Equal(t, Report{Components: 3, Largest: 3, Isolated: 2, DanglingRefs: 1, Sizes: []int{3, 1, 1}}, r)
}

func TestAnalyze_Empty(t *testing.T) {
	r := Analyze(NewSimpleDetector(), nil, nil)
	assert.Equal(t, 0, r.Components)
	assert.Equal(t, 0, r.Largest)
}
