package ioformat

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/agenthands/waygraph/internal/core/model"
)

func readCollection(r io.Reader) (*geojson.FeatureCollection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geojson: %w", err)
	}
	return fc, nil
}

// DecodeWays returns every LineString feature as a way. Other geometry
// types are not ways and are passed over silently; features without a
// geometry are reported.
func DecodeWays(r io.Reader) ([]model.Way, []RecordError, error) {
	fc, err := readCollection(r)
	if err != nil {
		return nil, nil, err
	}

	var (
		ways []model.Way
		bad  []RecordError
	)
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			bad = append(bad, RecordError{Ref: featureRef(f, i), Reason: "missing geometry"})
			continue
		}
		ls, ok := f.Geometry.(orb.LineString)
		if !ok {
			continue
		}
		ways = append(ways, model.Way{
			ID:          osmID(f),
			Highway:     stringProp(f.Properties, "highway"),
			Coordinates: ls,
		})
	}
	return ways, bad, nil
}

func DecodeWaysFile(path string) ([]model.Way, []RecordError, error) {
	f, err := openSource(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return DecodeWays(f)
}

// DecodeFeatures returns Point features as merge candidates. The name comes
// from name, else alt_name; the type from amenity, else office, else
// "unknown". Features with neither a name nor a category are reported.
func DecodeFeatures(r io.Reader) ([]model.Feature, []RecordError, error) {
	fc, err := readCollection(r)
	if err != nil {
		return nil, nil, err
	}

	var (
		features []model.Feature
		bad      []RecordError
	)
	for i, f := range fc.Features {
		ref := featureRef(f, i)
		if f == nil || f.Geometry == nil {
			bad = append(bad, RecordError{Ref: ref, Reason: "missing geometry"})
			continue
		}
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			bad = append(bad, RecordError{Ref: ref, Reason: fmt.Sprintf("geometry is %s, not Point", f.Geometry.GeoJSONType())})
			continue
		}

		name := firstString(f.Properties, "name", "alt_name")
		typ := firstString(f.Properties, "amenity", "office")
		if typ == "" {
			typ = "unknown"
		}
		if name == "" && typ == "unknown" {
			bad = append(bad, RecordError{Ref: ref, Reason: "no name and no category"})
			continue
		}

		features = append(features, model.Feature{
			SourceID: ref,
			Name:     name,
			Lat:      p.Lat(),
			Lon:      p.Lon(),
			Type:     typ,
		})
	}
	return features, bad, nil
}

func DecodeFeaturesFile(path string) ([]model.Feature, []RecordError, error) {
	f, err := openSource(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return DecodeFeatures(f)
}

func stringProp(p geojson.Properties, key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return strings.TrimSpace(s)
}

func firstString(p geojson.Properties, keys ...string) string {
	for _, k := range keys {
		if s := stringProp(p, k); s != "" {
			return s
		}
	}
	return ""
}

// featureRef is the feature's id, its @id property, or its position.
func featureRef(f *geojson.Feature, i int) string {
	if f != nil {
		switch id := f.ID.(type) {
		case string:
			if id != "" {
				return id
			}
		case float64:
			return strconv.FormatFloat(id, 'f', -1, 64)
		}
		if s := stringProp(f.Properties, "@id"); s != "" {
			return s
		}
	}
	return fmt.Sprintf("#%d", i)
}

// osmID extracts the numeric part of ids such as "way/123".
func osmID(f *geojson.Feature) int64 {
	ref := featureRef(f, 0)
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		ref = ref[i+1:]
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
