package geo

import (
	"fmt"
	"math"
	"strings"

	"github.com/agenthands/waygraph/internal/core/model"
)

// DefaultPrecision rounds coordinates to 1e-6 degrees (about 0.11 m).
const DefaultPrecision = 6

// CoordKey is an exact-match bucket for a coordinate rounded to a fixed
// number of decimal places. Lat and Lon hold the rounded values scaled to
// integers so that equality is exact.
type CoordKey struct {
	Lat, Lon int64
}

func (k CoordKey) String() string {
	return fmt.Sprintf("%d:%d", k.Lat, k.Lon)
}

// KeyNormalizer builds dedup keys.
type KeyNormalizer struct {
	scale float64
}

func NewKeyNormalizer(precision int) KeyNormalizer {
	if precision < 0 {
		precision = DefaultPrecision
	}
	return KeyNormalizer{scale: math.Pow10(precision)}
}

// CoordKey rounds c half away from zero at the configured precision.
// Two coordinates share a node only if they round identically.
func (n KeyNormalizer) CoordKey(c model.Coordinate) CoordKey {
	return CoordKey{
		Lat: int64(math.Round(c.Lat * n.scale)),
		Lon: int64(math.Round(c.Lon * n.scale)),
	}
}

// AttrKey is the composite key of a named place: trimmed, lower-cased name
// and type.
type AttrKey struct {
	Name string
	Type string
}

func (k AttrKey) String() string {
	return k.Name + "|" + k.Type
}

// NewAttrKey normalizes a name/type pair. It reports false when the name is
// empty after trimming; such records are never matched by name.
func NewAttrKey(name, typ string) (AttrKey, bool) {
	key := AttrKey{
		Name: strings.ToLower(strings.TrimSpace(name)),
		Type: strings.ToLower(strings.TrimSpace(typ)),
	}
	if key.Name == "" {
		return AttrKey{}, false
	}
	return key, true
}
