package model

// Edge is an undirected connection between two nodes. FromID and ToID are
// always distinct.
type Edge struct {
	FromID         int64   `json:"from_id"`
	ToID           int64   `json:"to_id"`
	DistanceMeters float64 `json:"distance_meters"`
	SpeedKph       float64 `json:"speed_kph"`
	Undirected     bool    `json:"undirected"`
	WayClass       string  `json:"way_class,omitempty"` // highway tag, adjacency mode only
	WayID          int64   `json:"way_id,omitempty"`
}

// PairKey identifies the unordered node pair of an edge.
type PairKey struct {
	Low, High int64
}

func (e Edge) Pair() PairKey {
	if e.FromID < e.ToID {
		return PairKey{Low: e.FromID, High: e.ToID}
	}
	return PairKey{Low: e.ToID, High: e.FromID}
}
