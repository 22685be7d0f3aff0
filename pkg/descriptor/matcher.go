package descriptor

import (
	"github.com/odvcencio/remapjar/pkg/archive"
)

// Matcher maps archive files back to the coordinates that resolved them.
// Files are compared by canonical path, never by content.
type Matcher struct {
	byPath map[string]Coordinate
}

// NewMatcher indexes artifacts by canonical path. When two artifacts share a
// file, the first one wins.
func NewMatcher(artifacts []ResolvedArtifact) (*Matcher, error) {
	m := &Matcher{byPath: make(map[string]Coordinate, len(artifacts))}
	for _, a := range artifacts {
		key, err := archive.CanonicalPath(a.File)
		if err != nil {
			return nil, err
		}
		if _, exists := m.byPath[key]; exists {
			continue
		}
		m.byPath[key] = a.Coordinate
	}
	return m, nil
}

// Len returns the number of indexed files.
func (m *Matcher) Len() int { return len(m.byPath) }

// Match returns the coordinate whose artifact file is file.
func (m *Matcher) Match(file string) (Coordinate, error) {
	key, err := archive.CanonicalPath(file)
	if err != nil {
		return Coordinate{}, err
	}
	c, ok := m.byPath[key]
	if !ok {
		return Coordinate{}, &UnresolvedDependencyError{File: file}
	}
	return c, nil
}
