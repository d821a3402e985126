package result

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrNoResults is returned by [Read] when no partition has been written.
var ErrNoResults = errors.New("no results")

// Snapshot is the partition currently on disk.
type Snapshot struct {
	Matched   []json.RawMessage `json:"matched"`
	Unmatched []json.RawMessage `json:"unmatched"`
	Reasons   []string          `json:"reasons"`
}

// Read loads the artifacts under dir.
func Read(dir string) (*Snapshot, error) {
	paths := NewPaths(dir)

	s := &Snapshot{}

	for _, f := range []struct {
		out  *[]json.RawMessage
		path string
	}{
		{path: paths.Matched, out: &s.Matched},
		{path: paths.Unmatched, out: &s.Unmatched},
	} {
		//nolint:gosec // G304: path is derived from configuration.
		data, err := os.ReadFile(f.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrNoResults, dir)
		} else if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.path, err)
		}

		err = json.Unmarshal(data, f.out)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.path, err)
		}
	}

	data, err := os.ReadFile(paths.Reasons)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrNoResults, dir)
	} else if err != nil {
		return nil, fmt.Errorf("read %s: %w", paths.Reasons, err)
	}

	s.Reasons = []string{}

	data = bytes.TrimSuffix(data, []byte("\n"))
	if len(data) == 0 {
		return s, nil
	}

	// Reasons can be arbitrarily long, so lines are split rather than scanned.
	for line := range bytes.SplitSeq(data, []byte("\n")) {
		s.Reasons = append(s.Reasons, string(line))
	}

	return s, nil
}
