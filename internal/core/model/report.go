package model

type MergeAction string

const (
	ActionAdded         MergeAction = "added"
	ActionUpdatedCoords MergeAction = "updated_coords"
	ActionSkipped       MergeAction = "skipped"
)

// ReportEntry is one row of the merge audit trail. For skipped features the
// coordinates are the observation's, and NodeID is the matched node.
type ReportEntry struct {
	Action   MergeAction `json:"action"`
	NodeID   int64       `json:"id"`
	Name     string      `json:"name"`
	Lat      float64     `json:"lat"`
	Lon      float64     `json:"lon"`
	Type     string      `json:"type"`
	Details  string      `json:"details"`
	Previous *Coordinate `json:"previous,omitempty"`
}

// CoordUpdate records a drift correction applied to an existing node.
type CoordUpdate struct {
	NodeID         int64      `json:"id"`
	From           Coordinate `json:"from"`
	To             Coordinate `json:"to"`
	DistanceMeters float64    `json:"distance_meters"`
}

// RunSummary is produced at the end of every run.
type RunSummary struct {
	RunID     string `json:"run_id"`
	Processed int    `json:"processed"`
	Added     int    `json:"added"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	Errored   int    `json:"errored"`
	Nodes     int    `json:"nodes"`
	Edges     int    `json:"edges"`
}
