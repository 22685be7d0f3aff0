package descriptor

import (
	"encoding/json"
	"fmt"
)

// Synthetic is the minimal descriptor written into dependency archives that
// ship without one. Field order is the serialized key order.
type Synthetic struct {
	SchemaVersion int    `json:"schemaVersion"`
	ID            string `json:"id"`
	Version       string `json:"version"`
	Name          string `json:"name"`
}

// NewSynthetic builds the descriptor for a coordinate.
func NewSynthetic(c Coordinate) Synthetic {
	return Synthetic{
		SchemaVersion: SchemaVersion,
		ID:            c.ModID(),
		Version:       c.Version,
		Name:          c.Name,
	}
}

// Synthesize renders the descriptor for c. Output is byte-stable for a given
// coordinate.
func Synthesize(c Coordinate) ([]byte, error) {
	data, err := json.MarshalIndent(NewSynthetic(c), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("synthesize descriptor for %s: %w", c, err)
	}
	return data, nil
}
