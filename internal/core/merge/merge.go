// Package merge folds newly observed point features into an existing node
// set without disturbing the identity of nodes already assigned.
package merge

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/waygraph/internal/config"
	"github.com/agenthands/waygraph/internal/core/geo"
	"github.com/agenthands/waygraph/internal/core/model"
)

// UnknownType is the category given to features with no amenity or office tag.
const UnknownType = "unknown"

// Rejection is a feature that could not be merged at all.
type Rejection struct {
	Index   int           `json:"index"`
	Feature model.Feature `json:"feature"`
	Reason  string        `json:"reason"`
}

// Result is the complete outcome of one merge run. Nodes is the only valid
// node set after the merge: existing nodes first in their original order,
// then added nodes in input order.
type Result struct {
	Nodes    []model.Node        `json:"nodes"`
	Report   []model.ReportEntry `json:"report"`
	Updates  []model.CoordUpdate `json:"updates"`
	Rejected []Rejection         `json:"rejected,omitempty"`
	Summary  model.RunSummary    `json:"summary"`
}

// Added returns the nodes appended by this run.
func (r *Result) Added() []model.Node {
	var out []model.Node
	for _, e := range r.Report {
		if e.Action == model.ActionAdded {
			out = append(out, model.Node{ID: e.NodeID, Name: e.Name, Lat: e.Lat, Lon: e.Lon, Type: e.Type})
		}
	}
	return out
}

// Engine folds observed features into a node set by name, type and distance.
type Engine struct {
	DuplicateMeters   float64
	DriftIgnoreMeters float64
	Logger            *zap.Logger
}

func NewEngine(cfg config.MergeConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		DuplicateMeters:   cfg.DuplicateMeters,
		DriftIgnoreMeters: cfg.DriftIgnoreMeters,
		Logger:            logger,
	}
}

// index maps a normalized name/type key to positions in the node slice, in
// insertion order. Nodes without a name are never indexed.
type index map[geo.AttrKey][]int

func buildIndex(nodes []model.Node) index {
	idx := make(index)
	for i, n := range nodes {
		idx.add(n, i)
	}
	return idx
}

func (idx index) add(n model.Node, pos int) {
	if key, ok := geo.NewAttrKey(n.Name, n.Type); ok {
		idx[key] = append(idx[key], pos)
	}
}

// Merge resolves every feature against existing. The existing slice is not
// modified; coordinate corrections are applied to the returned copy and
// listed in Result.Updates.
func (e *Engine) Merge(existing []model.Node, features []model.Feature) *Result {
	nodes := make([]model.Node, len(existing), len(existing)+len(features))
	copy(nodes, existing)

	idx := buildIndex(nodes)
	nextID := model.MaxID(nodes) + 1

	res := &Result{}
	for i, f := range features {
		res.Summary.Processed++

		name := strings.TrimSpace(f.Name)
		typ := strings.TrimSpace(f.Type)

		if !f.Coordinate().Valid() {
			e.reject(res, i, f, "invalid coordinates")
			continue
		}
		if name == "" && (typ == "" || strings.EqualFold(typ, UnknownType)) {
			e.reject(res, i, f, "no name and no category")
			continue
		}

		obs := model.Coordinate{Lat: f.Lat, Lon: f.Lon}
		best, dist, ties := e.closest(nodes, idx, name, typ, obs)

		if best >= 0 && dist <= e.DuplicateMeters {
			match := &nodes[best]
			if dist <= e.DriftIgnoreMeters {
				res.Report = append(res.Report, model.ReportEntry{
					Action:  model.ActionSkipped,
					NodeID:  match.ID,
					Name:    name,
					Lat:     obs.Lat,
					Lon:     obs.Lon,
					Type:    typ,
					Details: withTies(fmt.Sprintf("duplicate within %.1fm", dist), ties),
				})
				res.Summary.Skipped++
				continue
			}

			prev := match.Coordinate()
			match.Lat, match.Lon = obs.Lat, obs.Lon
			res.Updates = append(res.Updates, model.CoordUpdate{
				NodeID:         match.ID,
				From:           prev,
				To:             obs,
				DistanceMeters: dist,
			})
			res.Report = append(res.Report, model.ReportEntry{
				Action:   model.ActionUpdatedCoords,
				NodeID:   match.ID,
				Name:     match.Name,
				Lat:      match.Lat,
				Lon:      match.Lon,
				Type:     match.Type,
				Details:  withTies(fmt.Sprintf("old=(%s,%s)", formatDeg(prev.Lat), formatDeg(prev.Lon)), ties),
				Previous: &prev,
			})
			res.Summary.Updated++
			e.Logger.Debug("node coordinates updated",
				zap.Int64("id", match.ID), zap.String("name", match.Name), zap.Float64("moved_m", dist))
			continue
		}

		node := model.Node{ID: nextID, Name: name, Lat: obs.Lat, Lon: obs.Lon, Type: typ}
		nextID++
		nodes = append(nodes, node)
		idx.add(node, len(nodes)-1)

		res.Report = append(res.Report, model.ReportEntry{
			Action: model.ActionAdded,
			NodeID: node.ID,
			Name:   node.Name,
			Lat:    node.Lat,
			Lon:    node.Lon,
			Type:   node.Type,
		})
		res.Summary.Added++
	}

	res.Nodes = nodes
	res.Summary.Nodes = len(nodes)
	return res
}

// closest returns the position of the nearest candidate sharing the
// feature's key, its distance, and how many candidates tie at that
// distance. The first candidate in insertion order wins a tie. Candidates
// with unusable coordinates are passed over.
func (e *Engine) closest(nodes []model.Node, idx index, name, typ string, obs model.Coordinate) (int, float64, int) {
	key, ok := geo.NewAttrKey(name, typ)
	if !ok {
		return -1, math.Inf(1), 0
	}

	best, ties := -1, 0
	minDist := math.Inf(1)
	for _, pos := range idx[key] {
		c := nodes[pos].Coordinate()
		if !c.Valid() {
			continue
		}
		d := geo.Distance(obs, c)
		switch {
		case d < minDist:
			best, minDist, ties = pos, d, 1
		case d == minDist:
			ties++
		}
	}
	return best, minDist, ties
}

func (e *Engine) reject(res *Result, i int, f model.Feature, reason string) {
	res.Rejected = append(res.Rejected, Rejection{Index: i, Feature: f, Reason: reason})
	res.Summary.Errored++
	e.Logger.Warn("dropping feature",
		zap.Int("index", i),
		zap.String("source_id", f.SourceID),
		zap.String("name", f.Name),
		zap.String("reason", reason))
}

func withTies(details string, ties int) string {
	if ties > 1 {
		return fmt.Sprintf("%s; %d equidistant candidates, first kept", details, ties)
	}
	return details
}

func formatDeg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
