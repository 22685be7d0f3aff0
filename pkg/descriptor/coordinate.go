// Package descriptor identifies dependency archives and reads and writes the
// module descriptor (fabric.mod.json) embedded in them.
package descriptor

import (
	"fmt"
	"strings"
)

const (
	// DefaultEntry is the conventional descriptor path inside an archive.
	DefaultEntry = "fabric.mod.json"
	// DefaultStorageDir is where nested archives live inside the output.
	DefaultStorageDir = "META-INF/jars"
	// SchemaVersion is written into synthesized descriptors.
	SchemaVersion = 1
)

// Coordinate identifies a resolved dependency.
type Coordinate struct {
	Group   string `json:"group" toml:"group" yaml:"group"`
	Name    string `json:"name" toml:"name" yaml:"name"`
	Version string `json:"version" toml:"version" yaml:"version"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%s:%s:%s", c.Group, c.Name, c.Version)
}

// ModID derives the synthesized descriptor id: the group with dots replaced
// by underscores, joined to the name, lower-cased.
func (c Coordinate) ModID() string {
	return strings.ToLower(strings.ReplaceAll(c.Group, ".", "_") + "_" + c.Name)
}

// ResolvedArtifact pairs a coordinate with the file selected for it.
type ResolvedArtifact struct {
	Coordinate Coordinate
	File       string
}
