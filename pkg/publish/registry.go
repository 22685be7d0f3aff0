// Package publish tracks the artifacts registered for publication and drops
// the ones a task is about to replace.
package publish

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/remapjar/pkg/archive"
)

// DefaultConfiguration is the configuration excluded by RemoveArtifacts when
// asked to leave the default scope alone.
const DefaultConfiguration = "default"

// Artifact is one publishable file.
type Artifact struct {
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	Classifier string `json:"classifier,omitempty"`
	File       string `json:"file"`
}

// Configuration groups artifacts published together.
type Configuration struct {
	Name      string     `json:"name"`
	Artifacts []Artifact `json:"artifacts"`
}

// Registry is the set of configurations and their artifacts. Relative
// artifact files are relative to the directory of the file the registry was
// loaded from.
type Registry struct {
	Configurations []*Configuration `json:"configurations"`

	dir string
}

// Configuration returns the named configuration, creating it if needed.
func (r *Registry) Configuration(name string) *Configuration {
	for _, c := range r.Configurations {
		if c.Name == name {
			return c
		}
	}
	c := &Configuration{Name: name}
	r.Configurations = append(r.Configurations, c)
	return c
}

// Add registers an artifact under a configuration.
func (r *Registry) Add(configuration string, a Artifact) {
	c := r.Configuration(configuration)
	c.Artifacts = append(c.Artifacts, a)
}

// RemoveArtifacts drops every artifact whose file is one of outputs, in all
// configurations except "default" when excludeDefault is set. It returns how
// many artifacts were removed; a repeated call with the same outputs removes
// nothing.
func (r *Registry) RemoveArtifacts(outputs []string, excludeDefault bool) int {
	targets := make(map[string]struct{}, len(outputs))
	for _, o := range outputs {
		targets[canonical(o)] = struct{}{}
	}

	removed := 0
	for _, c := range r.Configurations {
		if excludeDefault && c.Name == DefaultConfiguration {
			continue
		}
		kept := c.Artifacts[:0]
		for _, a := range c.Artifacts {
			if _, ok := targets[r.resolve(a.File)]; ok {
				removed++
				continue
			}
			kept = append(kept, a)
		}
		c.Artifacts = kept
	}
	return removed
}

func (r *Registry) resolve(file string) string {
	if r.dir != "" && !filepath.IsAbs(file) {
		file = filepath.Join(r.dir, file)
	}
	return canonical(file)
}

func canonical(path string) string {
	c, err := archive.CanonicalPath(path)
	if err != nil {
		return path
	}
	return c
}

// Load reads a registry file. A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Registry{dir: filepath.Dir(path)}, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}
	reg := Registry{dir: filepath.Dir(path)}
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("read registry: unmarshal: %w", err)
	}
	return &reg, nil
}

// Save atomically writes the registry to path.
func (r *Registry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("write registry: marshal: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write registry: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".registry-tmp-*")
	if err != nil {
		return fmt.Errorf("write registry: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write registry: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write registry: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write registry: rename: %w", err)
	}
	return nil
}
