package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Decode parses a plan document with strict field checking. Unknown fields
// are a structural error so planner drift is caught at the boundary instead
// of silently dropped.
func Decode(data []byte) (*Plan, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode plan: trailing data after document")
	}
	return &p, nil
}

// LoadFile reads and strictly decodes a plan JSON file.
func LoadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return Decode(data)
}
