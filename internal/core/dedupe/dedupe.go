// Package dedupe turns way polylines into a deduplicated node set and the
// adjacency edges between consecutive vertices.
package dedupe

import (
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/waygraph/internal/config"
	"github.com/agenthands/waygraph/internal/core/geo"
	"github.com/agenthands/waygraph/internal/core/model"
)

// Mode selects which way classes contribute to the graph.
type Mode string

const (
	// ModeWalk keeps every way.
	ModeWalk Mode = "walk"
	// ModeDrive drops pedestrian-only ways.
	ModeDrive Mode = "drive"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeWalk, ModeDrive:
		return Mode(s), true
	}
	return "", false
}

// State maps coordinate keys to assigned node ids. It is passed into and
// returned from Build so several batches can share one id space.
type State struct {
	normalizer geo.KeyNormalizer
	ids        map[geo.CoordKey]int64
	nodes      []model.Node
	seen       map[wayKey]struct{}
	nextID     int64
}

// wayKey identifies a way already turned into edges. Ways without an id are
// identified by their rounded vertex sequence.
type wayKey struct {
	id      int64
	highway string
	line    string
}

// NewState returns an empty id space rounding coordinates to precision digits.
func NewState(precision int) *State {
	return &State{
		normalizer: geo.NewKeyNormalizer(precision),
		ids:        make(map[geo.CoordKey]int64),
		seen:       make(map[wayKey]struct{}),
		nextID:     1,
	}
}

// Resolve returns the node id for c, assigning the next sequential id on
// first sight of its key.
func (s *State) Resolve(c model.Coordinate) (int64, bool) {
	key := s.normalizer.CoordKey(c)
	if id, ok := s.ids[key]; ok {
		return id, false
	}
	id := s.nextID
	s.nextID++
	s.ids[key] = id
	s.nodes = append(s.nodes, model.Node{ID: id, Lat: c.Lat, Lon: c.Lon})
	return id, true
}

// Nodes returns the node set in id order.
func (s *State) Nodes() []model.Node {
	out := make([]model.Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

func (s *State) Len() int { return len(s.nodes) }

// Stats counts what happened to the ways of one Build call.
type Stats struct {
	Ways       int `json:"ways"`
	Used       int `json:"used"`
	Excluded   int `json:"excluded"`
	Degenerate int `json:"degenerate"`
	Invalid    int `json:"invalid"`
	NewNodes   int `json:"new_nodes"`
	Edges      int `json:"edges"`
	ShortSegs  int `json:"short_segments"`
	Repeated   int `json:"repeated_segments"`
}

// Deduplicator holds the way-graph rules: speed table, minimum segment
// length and the drive-mode exclusion set.
type Deduplicator struct {
	MinSegmentMeters float64
	Precision        int
	Speeds           map[string]float64
	DefaultSpeedKph  float64
	DefaultHighway   string
	Excluded         map[string]bool
	Logger           *zap.Logger
}

func NewDeduplicator(cfg config.GraphConfig, logger *zap.Logger) *Deduplicator {
	excluded := make(map[string]bool, len(cfg.DriveExclude))
	for _, hw := range cfg.DriveExclude {
		excluded[hw] = true
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{
		MinSegmentMeters: cfg.MinSegmentMeters,
		Precision:        cfg.CoordPrecision,
		Speeds:           cfg.Speeds,
		DefaultSpeedKph:  cfg.DefaultSpeedKph,
		DefaultHighway:   cfg.DefaultHighway,
		Excluded:         excluded,
		Logger:           logger,
	}
}

// SpeedFor returns the speed of a highway class, or the default speed.
func (d *Deduplicator) SpeedFor(highway string) float64 {
	if s, ok := d.Speeds[highway]; ok {
		return s
	}
	return d.DefaultSpeedKph
}

// Build walks every way and emits an edge for each consecutive vertex pair
// longer than MinSegmentMeters. state may be nil to start a fresh id space.
// Every consecutive pair of a way yields an edge, repeats included. A way
// already built into state, by id or by identical vertices when it has no id,
// adds no edges.
func (d *Deduplicator) Build(state *State, ways []model.Way, mode Mode) (*State, []model.Edge, Stats) {
	if state == nil {
		state = NewState(d.Precision)
	}

	var (
		edges []model.Edge
		stats Stats
	)
	before := state.Len()

	for i, way := range ways {
		stats.Ways++

		if len(way.Coordinates) < 2 {
			stats.Degenerate++
			d.Logger.Debug("skipping degenerate way",
				zap.Int("index", i), zap.Int64("way_id", way.ID), zap.Int("points", len(way.Coordinates)))
			continue
		}

		highway := way.Highway
		if highway == "" {
			highway = d.DefaultHighway
		}
		if mode == ModeDrive && d.Excluded[highway] {
			stats.Excluded++
			continue
		}

		if !validLine(way) {
			stats.Invalid++
			d.Logger.Warn("skipping way with invalid coordinates",
				zap.Int("index", i), zap.Int64("way_id", way.ID))
			continue
		}

		stats.Used++
		speed := d.SpeedFor(highway)
		key := state.keyOf(way, highway)
		_, repeated := state.seen[key]
		state.seen[key] = struct{}{}

		var (
			prevID    int64
			prevCoord model.Coordinate
		)
		for j, p := range way.Coordinates {
			c := model.Coordinate{Lat: p.Lat(), Lon: p.Lon()}
			id, _ := state.Resolve(c)

			if j > 0 {
				dist := geo.Distance(prevCoord, c)
				// a segment this short is a duplicated vertex
				if dist <= d.MinSegmentMeters || id == prevID {
					stats.ShortSegs++
				} else if repeated {
					stats.Repeated++
				} else {
					edges = append(edges, model.Edge{
						FromID:         prevID,
						ToID:           id,
						DistanceMeters: dist,
						SpeedKph:       speed,
						Undirected:     true,
						WayClass:       highway,
						WayID:          way.ID,
					})
				}
			}
			prevID = id
			prevCoord = c
		}
	}

	stats.NewNodes = state.Len() - before
	stats.Edges = len(edges)
	return state, edges, stats
}

func (s *State) keyOf(way model.Way, highway string) wayKey {
	if way.ID != 0 {
		return wayKey{id: way.ID, highway: highway}
	}
	var b strings.Builder
	for _, p := range way.Coordinates {
		b.WriteString(s.normalizer.CoordKey(model.Coordinate{Lat: p.Lat(), Lon: p.Lon()}).String())
		b.WriteByte(';')
	}
	return wayKey{highway: highway, line: b.String()}
}

func validLine(way model.Way) bool {
	for _, p := range way.Coordinates {
		if !(model.Coordinate{Lat: p.Lat(), Lon: p.Lon()}).Valid() {
			return false
		}
	}
	return true
}
