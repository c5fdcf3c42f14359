package geo

import (
	"math"
	"testing"

	"github.com/agenthands/waygraph/internal/core/model"
	"github.com/stretchr/testify/assert"
)

func TestHaversine_Identical(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(10, 20, 10, 20))
	assert.Equal(t, 0.0, Haversine(-89.999999, 179.5, -89.999999, 179.5))
}

func TestHaversine_Symmetric(t *testing.T) {
	points := []model.Coordinate{
		{Lat: 0, Lon: 0},
		{Lat: 5.6502, Lon: -0.1869},
		{Lat: -33.9, Lon: 151.2},
		{Lat: 89.9, Lon: -179.9},
		{Lat: -90, Lon: 180},
	}
	for _, a := range points {
		for _, b := range points {
			assert.Equal(t, Distance(a, b), Distance(b, a), "%v <-> %v", a, b)
		}
	}
}

func TestHaversine_Antipodal(t *testing.T) {
	d := Haversine(0, 0, 0, 180)
	assert.False(t, math.IsNaN(d))
	assert.InDelta(t, math.Pi*EarthRadiusMeters, d, 1e-6)

	d = Haversine(90, 0, -90, 0)
	assert.False(t, math.IsNaN(d))
	assert.InDelta(t, math.Pi*EarthRadiusMeters, d, 1e-6)
}

func TestHaversine_KnownDistance(t *testing.T) {
	// 0.0045 degrees of longitude on the equator
	d := Haversine(0, 0, 0, 0.0045)
	assert.InDelta(t, 500.377, d, 0.001)

	// one degree of latitude
	assert.InDelta(t, 111194.927, Haversine(0, 0, 1, 0), 0.001)
}

func TestCoordKey_Rounding(t *testing.T) {
	n := NewKeyNormalizer(DefaultPrecision)

	a := n.CoordKey(model.Coordinate{Lat: 5.6502001, Lon: -0.1869004})
	b := n.CoordKey(model.Coordinate{Lat: 5.6502004, Lon: -0.1868996})
	assert.Equal(t, a, b)
	assert.Equal(t, CoordKey{Lat: 5650200, Lon: -186900}, a)

	c := n.CoordKey(model.Coordinate{Lat: 5.650201, Lon: -0.1869})
	assert.NotEqual(t, a, c)
}

func TestCoordKey_NegativePrecisionFallsBack(t *testing.T) {
	n := NewKeyNormalizer(-1)
	assert.Equal(t, CoordKey{Lat: 1000000, Lon: 2000000}, n.CoordKey(model.Coordinate{Lat: 1, Lon: 2}))
}

func TestAttrKey(t *testing.T) {
	k, ok := NewAttrKey("  Balme Library ", "Library ")
	assert.True(t, ok)
	assert.Equal(t, AttrKey{Name: "balme library", Type: "library"}, k)

	k2, ok := NewAttrKey("BALME LIBRARY", "library")
	assert.True(t, ok)
	assert.Equal(t, k, k2)

	_, ok = NewAttrKey("   ", "cafe")
	assert.False(t, ok)
}
