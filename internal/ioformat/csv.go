package ioformat

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/agenthands/waygraph/internal/core/model"
)

var (
	NodeHeader     = []string{"id", "name", "lat", "lon", "type"}
	RoadNodeHeader = []string{"id", "lat", "lon"}
	EdgeHeader     = []string{"fromId", "toId", "distanceMeters", "speedKph", "undirected"}
	ReportHeader   = []string{"action", "id", "name", "lat", "lon", "type", "details"}
)

// ReadNodes parses a node table. Columns are located by header name; name
// and type are optional. Rows with a non-integer id or missing or
// non-numeric coordinates are skipped and returned as RecordErrors.
func ReadNodes(r io.Reader) ([]model.Node, []RecordError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read node header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"id", "lat", "lon"} {
		if _, ok := cols[required]; !ok {
			return nil, nil, fmt.Errorf("node table is missing column %q", required)
		}
	}

	field := func(row []string, name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[i]), true
	}

	var (
		nodes []model.Node
		bad   []RecordError
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				bad = append(bad, RecordError{Line: perr.Line, Reason: perr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("failed to read node table: %w", err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		line, _ := reader.FieldPos(0)

		idStr, _ := field(row, "id")
		latStr, latOK := field(row, "lat")
		lonStr, lonOK := field(row, "lon")
		if !latOK || !lonOK || latStr == "" || lonStr == "" {
			bad = append(bad, RecordError{Line: line, Ref: idStr, Reason: "missing coordinates"})
			continue
		}

		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			bad = append(bad, RecordError{Line: line, Ref: idStr, Reason: fmt.Sprintf("invalid id %q", idStr)})
			continue
		}
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			bad = append(bad, RecordError{Line: line, Ref: idStr, Reason: fmt.Sprintf("invalid lat %q", latStr)})
			continue
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			bad = append(bad, RecordError{Line: line, Ref: idStr, Reason: fmt.Sprintf("invalid lon %q", lonStr)})
			continue
		}
		if !(model.Coordinate{Lat: lat, Lon: lon}).Valid() {
			bad = append(bad, RecordError{Line: line, Ref: idStr, Reason: "coordinates out of range"})
			continue
		}

		name, _ := field(row, "name")
		typ, _ := field(row, "type")
		nodes = append(nodes, model.Node{ID: id, Name: name, Lat: lat, Lon: lon, Type: typ})
	}
	return nodes, bad, nil
}

// ReadNodesFile is ReadNodes over a file. A missing file is ErrSourceNotFound.
func ReadNodesFile(path string) ([]model.Node, []RecordError, error) {
	f, err := openSource(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadNodes(f)
}

// ReadEdges parses an edge table written by WriteEdges, with or without the
// highway column. Unusable rows are returned as RecordErrors.
func ReadEdges(r io.Reader) ([]model.Edge, []RecordError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read edge header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{"fromId", "toId"} {
		if _, ok := cols[required]; !ok {
			return nil, nil, fmt.Errorf("edge table is missing column %q", required)
		}
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		edges []model.Edge
		bad   []RecordError
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				bad = append(bad, RecordError{Line: perr.Line, Reason: perr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("failed to read edge table: %w", err)
		}
		line, _ := reader.FieldPos(0)

		from, errFrom := strconv.ParseInt(field(row, "fromId"), 10, 64)
		to, errTo := strconv.ParseInt(field(row, "toId"), 10, 64)
		if errFrom != nil || errTo != nil {
			bad = append(bad, RecordError{Line: line, Reason: "invalid node reference"})
			continue
		}
		e := model.Edge{FromID: from, ToID: to, WayClass: field(row, "highway")}
		if v := field(row, "distanceMeters"); v != "" {
			if e.DistanceMeters, err = strconv.ParseFloat(v, 64); err != nil {
				bad = append(bad, RecordError{Line: line, Reason: fmt.Sprintf("invalid distance %q", v)})
				continue
			}
		}
		if v := field(row, "speedKph"); v != "" {
			if e.SpeedKph, err = strconv.ParseFloat(v, 64); err != nil {
				bad = append(bad, RecordError{Line: line, Reason: fmt.Sprintf("invalid speed %q", v)})
				continue
			}
		}
		e.Undirected = field(row, "undirected") == "1"
		edges = append(edges, e)
	}
	return edges, bad, nil
}

func ReadEdgesFile(path string) ([]model.Edge, []RecordError, error) {
	f, err := openSource(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadEdges(f)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 7, 64)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteNodes writes id,name,lat,lon,type with 7-decimal coordinates.
func WriteNodes(w io.Writer, nodes []model.Node) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(NodeHeader); err != nil {
		return err
	}
	for _, n := range nodes {
		row := []string{strconv.FormatInt(n.ID, 10), n.Name, formatCoord(n.Lat), formatCoord(n.Lon), n.Type}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRoadNodes writes the id,lat,lon table of a way-derived graph.
func WriteRoadNodes(w io.Writer, nodes []model.Node) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RoadNodeHeader); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := cw.Write([]string{strconv.FormatInt(n.ID, 10), formatCoord(n.Lat), formatCoord(n.Lon)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEdges writes the edge table. withWayClass adds the highway column
// used by way-derived graphs.
func WriteEdges(w io.Writer, edges []model.Edge, withWayClass bool) error {
	cw := csv.NewWriter(w)
	header := EdgeHeader
	if withWayClass {
		header = append(append([]string{}, EdgeHeader...), "highway")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range edges {
		undirected := "0"
		if e.Undirected {
			undirected = "1"
		}
		row := []string{
			strconv.FormatInt(e.FromID, 10),
			strconv.FormatInt(e.ToID, 10),
			strconv.FormatFloat(e.DistanceMeters, 'f', 1, 64),
			formatNumber(e.SpeedKph),
			undirected,
		}
		if withWayClass {
			row = append(row, e.WayClass)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReport writes one row per merge outcome.
func WriteReport(w io.Writer, entries []model.ReportEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReportHeader); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			string(e.Action),
			strconv.FormatInt(e.NodeID, 10),
			e.Name,
			formatCoord(e.Lat),
			formatCoord(e.Lon),
			e.Type,
			e.Details,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates path and hands it to write.
func WriteFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// Backup copies path to path+".bak". A missing path is not an error.
func Backup(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s for backup: %w", path, err)
	}
	dst := path + ".bak"
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup %s: %w", dst, err)
	}
	return dst, nil
}
