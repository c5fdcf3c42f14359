// Package ioformat reads and writes the tabular and GeoJSON shapes the graph
// builder consumes and produces.
package ioformat

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSourceNotFound means a required input is missing. Runs abort on it
	// before any processing.
	ErrSourceNotFound = errors.New("source not found")
	// ErrMalformedRecord marks a single unusable input record. Readers skip
	// such records and return them as RecordErrors instead.
	ErrMalformedRecord = errors.New("malformed record")
)

// RecordError describes one skipped input record.
type RecordError struct {
	Line   int    `json:"line,omitempty"`
	Ref    string `json:"ref,omitempty"`
	Reason string `json:"reason"`
}

func (e RecordError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("%s at line %d: %s", ErrMalformedRecord, e.Line, e.Reason)
	case e.Ref != "":
		return fmt.Sprintf("%s %s: %s", ErrMalformedRecord, e.Ref, e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedRecord, e.Reason)
}

func (e RecordError) Unwrap() error { return ErrMalformedRecord }

// openSource opens path, mapping a missing file to ErrSourceNotFound.
func openSource(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}
