// Package config loads the project file describing one remap build.
//
// The file is either TOML (remapjar.toml) or YAML (remapjar.yaml/.yml),
// chosen by extension. A .env file next to it is loaded into the process
// environment without overriding variables that are already set, and
// REMAPJAR_* variables then override values from the file. Relative paths
// are resolved against the directory holding the config file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/odvcencio/remapjar/pkg/descriptor"
	"github.com/odvcencio/remapjar/pkg/mapping"
)

// DefaultFile is the config file looked up when none is given.
const DefaultFile = "remapjar.toml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REMAPJAR_"

// Config describes one remap build.
type Config struct {
	// Dir is the directory relative paths are resolved against. It is not
	// read from the file.
	Dir string `toml:"-" yaml:"-"`

	// Input is the archive to remap.
	Input string `toml:"input" yaml:"input"`
	// Output is where the remapped archive is written.
	Output string `toml:"output" yaml:"output"`
	// Classpath lists reference archives for hierarchy lookups.
	Classpath []string `toml:"classpath" yaml:"classpath"`

	Mappings   MappingsConfig   `toml:"mappings" yaml:"mappings"`
	Nested     NestedConfig     `toml:"nested" yaml:"nested"`
	Refmap     RefmapConfig     `toml:"refmap" yaml:"refmap"`
	Descriptor DescriptorConfig `toml:"descriptor" yaml:"descriptor"`
	Publish    PublishConfig    `toml:"publish" yaml:"publish"`
	Deobf      DeobfConfig      `toml:"deobf" yaml:"deobf"`
}

// MappingsConfig locates the mapping files.
type MappingsConfig struct {
	// Primary is the required Tiny mapping file.
	Primary string `toml:"primary" yaml:"primary"`
	// Mixin is the optional exported mixin mapping file. It is skipped when
	// the file does not exist.
	Mixin string `toml:"mixin" yaml:"mixin"`
	From  string `toml:"from" yaml:"from"`
	To    string `toml:"to" yaml:"to"`
}

// NestedConfig controls bundling of dependency archives.
type NestedConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// Include lists the dependencies to bundle with their coordinates.
	Include []Dependency `toml:"include" yaml:"include"`
	// StagingDir holds scratch copies while descriptors are injected.
	StagingDir string `toml:"staging_dir" yaml:"staging_dir"`
	// StorageDir is the directory inside the output holding nested archives.
	StorageDir string `toml:"storage_dir" yaml:"storage_dir"`
	// Embed copies the bundled archives into the output under StorageDir.
	Embed bool `toml:"embed" yaml:"embed"`
}

// Dependency is a dependency archive to bundle. Group, Name and Version are
// its resolved coordinate.
type Dependency struct {
	Group   string `toml:"group" yaml:"group"`
	Name    string `toml:"name" yaml:"name"`
	Version string `toml:"version" yaml:"version"`
	File    string `toml:"file" yaml:"file"`
}

// Artifact converts the dependency to a resolved artifact.
func (d Dependency) Artifact() descriptor.ResolvedArtifact {
	return descriptor.ResolvedArtifact{
		Coordinate: descriptor.Coordinate{Group: d.Group, Name: d.Name, Version: d.Version},
		File:       d.File,
	}
}

// RefmapConfig names the reference map injected into mixin configs.
type RefmapConfig struct {
	Name       string `toml:"name" yaml:"name"`
	MinVersion string `toml:"min_version" yaml:"min_version"`
}

// DescriptorConfig names the descriptor entry inside archives.
type DescriptorConfig struct {
	Entry string `toml:"entry" yaml:"entry"`
}

// PublishConfig points at the artifact registry to clean.
type PublishConfig struct {
	Registry       string `toml:"registry" yaml:"registry"`
	ExcludeDefault bool   `toml:"exclude_default" yaml:"exclude_default"`
}

// DeobfConfig lists dependency archives remapped next to the main input.
type DeobfConfig struct {
	// Dependencies are candidate archives. Only those carrying a descriptor
	// are remapped.
	Dependencies []string `toml:"dependencies" yaml:"dependencies"`
	// OutputDir receives one <name>-remapped.jar per remapped archive.
	OutputDir string `toml:"output_dir" yaml:"output_dir"`
}

// Default returns a config rooted at dir with defaults applied.
func Default(dir string) *Config {
	cfg := &Config{Dir: dir}
	cfg.applyDefaults()
	return cfg
}

// Load reads the config file at path, applying the .env file, environment
// overrides and defaults.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	dir := filepath.Dir(abs)

	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := &Config{}
	switch ext := strings.ToLower(filepath.Ext(abs)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("load config %s: unknown keys %v", path, undecoded)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("load config %s: unsupported extension %q", path, ext)
	}

	cfg.Dir = dir
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func loadDotEnv(dir string) error {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load config: %w", err)
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("load config: %s: %w", envPath, err)
	}
	return nil
}

// ApplyEnv overrides fields from REMAPJAR_* variables returned by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("INPUT", &c.Input)
	str("OUTPUT", &c.Output)
	str("MAPPINGS", &c.Mappings.Primary)
	str("MIXIN_MAPPINGS", &c.Mappings.Mixin)
	str("FROM", &c.Mappings.From)
	str("TO", &c.Mappings.To)
	str("STAGING_DIR", &c.Nested.StagingDir)
	str("REFMAP", &c.Refmap.Name)
	str("MIXIN_VERSION", &c.Refmap.MinVersion)
	str("REGISTRY", &c.Publish.Registry)
	str("DEOBF_DIR", &c.Deobf.OutputDir)
	list := func(name string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = filepath.SplitList(v)
		}
	}
	list("CLASSPATH", &c.Classpath)
	list("DEOBF_DEPENDENCIES", &c.Deobf.Dependencies)
	return boolean("NESTED", &c.Nested.Enabled)
}

func (c *Config) applyDefaults() {
	if c.Mappings.From == "" {
		c.Mappings.From = mapping.NamespaceNamed
	}
	if c.Mappings.To == "" {
		c.Mappings.To = mapping.NamespaceIntermediary
	}
	if c.Descriptor.Entry == "" {
		c.Descriptor.Entry = descriptor.DefaultEntry
	}
	if c.Nested.StorageDir == "" {
		c.Nested.StorageDir = descriptor.DefaultStorageDir
	}
	if c.Nested.StagingDir == "" {
		c.Nested.StagingDir = filepath.Join("build", "temp", "modprocessing")
	}
	if c.Deobf.OutputDir == "" {
		c.Deobf.OutputDir = filepath.Join("build", "remapped-mods")
	}

	c.Input = c.Resolve(c.Input)
	c.Output = c.Resolve(c.Output)
	c.Mappings.Primary = c.Resolve(c.Mappings.Primary)
	c.Mappings.Mixin = c.Resolve(c.Mappings.Mixin)
	c.Nested.StagingDir = c.Resolve(c.Nested.StagingDir)
	c.Publish.Registry = c.Resolve(c.Publish.Registry)
	c.Deobf.OutputDir = c.Resolve(c.Deobf.OutputDir)
	for i := range c.Classpath {
		c.Classpath[i] = c.Resolve(c.Classpath[i])
	}
	for i := range c.Deobf.Dependencies {
		c.Deobf.Dependencies[i] = c.Resolve(c.Deobf.Dependencies[i])
	}
	for i := range c.Nested.Include {
		c.Nested.Include[i].File = c.Resolve(c.Nested.Include[i].File)
	}
}

// Resolve makes p absolute against the config directory. Empty paths stay
// empty.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Input == "" {
		errs = append(errs, errors.New("input is required"))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output is required"))
	}
	if c.Mappings.Primary == "" {
		errs = append(errs, errors.New("mappings.primary is required"))
	}
	if c.Mappings.From == c.Mappings.To {
		errs = append(errs, fmt.Errorf("mappings.from and mappings.to are both %q", c.Mappings.From))
	}
	for i, d := range c.Nested.Include {
		if d.File == "" {
			errs = append(errs, fmt.Errorf("nested.include[%d]: file is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Artifacts returns the resolved artifacts of the nested includes. Includes
// without a name carry no coordinate and are left out, so matching their
// files fails.
func (c *Config) Artifacts() []descriptor.ResolvedArtifact {
	out := make([]descriptor.ResolvedArtifact, 0, len(c.Nested.Include))
	for _, d := range c.Nested.Include {
		if d.Name == "" {
			continue
		}
		out = append(out, d.Artifact())
	}
	return out
}

// IncludeFiles returns the nested include files in declaration order.
func (c *Config) IncludeFiles() []string {
	out := make([]string, 0, len(c.Nested.Include))
	for _, d := range c.Nested.Include {
		out = append(out, d.File)
	}
	return out
}
