package model

import "github.com/paulmach/orb"

// Way is a categorized line geometry. Coordinates follow GeoJSON order
// (lon, lat).
type Way struct {
	ID          int64          `json:"id,omitempty"`
	Highway     string         `json:"highway"`
	Coordinates orb.LineString `json:"coordinates"`
}

// Feature is a single observed point of interest.
type Feature struct {
	SourceID string  `json:"source_id,omitempty"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Type     string  `json:"type"`
}

func (f Feature) Coordinate() Coordinate {
	return Coordinate{Lat: f.Lat, Lon: f.Lon}
}
