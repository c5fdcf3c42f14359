package proximity

import (
	"math"

	"github.com/agenthands/waygraph/internal/core/geo"
	"github.com/agenthands/waygraph/internal/core/model"
)

// slack widens cells a little so floating error never splits a pair that
// sits exactly on the threshold.
const slack = 1.01

type cell struct {
	lat, lon int
}

// grid buckets nodes into cells at least one threshold wide, so any pair
// within the threshold lies in the same or an adjacent cell. Longitude
// cells wrap at the antimeridian.
type grid struct {
	latSize float64
	lonSize float64
	lonN    int
	cells   map[cell][]int
	of      []cell
}

// newGrid reports false when the threshold is too large or the set too close
// to a pole for bucketing to beat a full scan.
func newGrid(nodes []model.Node, threshold float64) (*grid, bool) {
	if len(nodes) < 2 || threshold <= 0 {
		return nil, false
	}

	maxAbsLat := 0.0
	for _, n := range nodes {
		if a := math.Abs(n.Lat); a > maxAbsLat {
			maxAbsLat = a
		}
	}

	// haversine distance >= R*dLat
	latSize := threshold / geo.EarthRadiusMeters * 180 / math.Pi * slack

	// and >= 2R*cos(maxLat)*dLon/pi for dLon taken the short way round
	cosLat := math.Cos(maxAbsLat * math.Pi / 180)
	if cosLat <= 0 {
		return nil, false
	}
	lonSize := threshold * math.Pi / (2 * geo.EarthRadiusMeters * cosLat) * 180 / math.Pi * slack

	if latSize*3 >= 180 || lonSize*3 >= 360 {
		return nil, false
	}
	lonN := int(360 / lonSize)
	if lonN < 3 {
		return nil, false
	}

	g := &grid{
		latSize: latSize,
		lonSize: lonSize,
		lonN:    lonN,
		cells:   make(map[cell][]int),
		of:      make([]cell, len(nodes)),
	}
	for i, n := range nodes {
		c := g.cellOf(n)
		g.of[i] = c
		g.cells[c] = append(g.cells[c], i)
	}
	return g, true
}

func (g *grid) cellOf(n model.Node) cell {
	lat := int(math.Floor((n.Lat + 90) / g.latSize))
	lon := int(math.Floor((n.Lon + 180) / g.lonSize))
	// the last column absorbs the remainder of 360/lonSize
	if lon >= g.lonN {
		lon = g.lonN - 1
	}
	if lon < 0 {
		lon = 0
	}
	return cell{lat: lat, lon: lon}
}

// forEachCandidate calls fn for every node index j > i in the 3x3 block of
// cells around node i. Each unordered pair is visited once.
func (g *grid) forEachCandidate(i int, fn func(j int)) {
	home := g.of[i]
	for dLat := -1; dLat <= 1; dLat++ {
		for dLon := -1; dLon <= 1; dLon++ {
			c := cell{
				lat: home.lat + dLat,
				lon: ((home.lon+dLon)%g.lonN + g.lonN) % g.lonN,
			}
			for _, j := range g.cells[c] {
				if j > i {
					fn(j)
				}
			}
		}
	}
}
