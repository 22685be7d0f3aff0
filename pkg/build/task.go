// Package build drives one remap build: nested dependency preparation,
// remapping, mixin config patching and descriptor bundling.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/odvcencio/remapjar/pkg/archive"
	"github.com/odvcencio/remapjar/pkg/config"
	"github.com/odvcencio/remapjar/pkg/descriptor"
	"github.com/odvcencio/remapjar/pkg/mapping"
	"github.com/odvcencio/remapjar/pkg/nested"
	"github.com/odvcencio/remapjar/pkg/publish"
	"github.com/odvcencio/remapjar/pkg/refmap"
	"github.com/odvcencio/remapjar/pkg/remap"
)

// RemappedSuffix names the archives written by RemapDependencies.
const RemappedSuffix = "-remapped.jar"

// Stage is the state of the output archive during a build.
type Stage int

const (
	StageAbsent Stage = iota
	StageRemappedRaw
	StagePatchedResources
	StageFinalWithManifest
)

func (s Stage) String() string {
	switch s {
	case StageAbsent:
		return "absent"
	case StageRemappedRaw:
		return "remapped-raw"
	case StagePatchedResources:
		return "patched-resources"
	case StageFinalWithManifest:
		return "final-with-manifest"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageError reports the stage a build failed to reach.
type StageError struct {
	// Stage is the last stage the output reached before the failure.
	Stage  Stage
	Output string
	Err    error
}

func (e *StageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("build %s: failed after %s: %v", e.Output, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Report summarizes a build.
type Report struct {
	Input  string
	Output string
	Stage  Stage

	Remap         *remap.Result
	Bundled       []string
	Embedded      int
	MixinConfigs  []string
	RefmapPatched bool
	// UnmappedInputs lists the development archives the output was built
	// from.
	UnmappedInputs   []string
	RemovedArtifacts int
	Digest           string
	Duration         time.Duration
}

// Task runs a build described by Config.
type Task struct {
	Config    *config.Config
	Logger    *slog.Logger
	NewEngine remap.EngineFactory
}

func (t *Task) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return t.Logger
}

// Prepare patches the configured nested dependencies and returns the
// archives to bundle, in declaration order. With bundling disabled it
// returns nothing and touches no file.
func (t *Task) Prepare(ctx context.Context) ([]string, error) {
	cfg := t.Config
	if !cfg.Nested.Enabled || len(cfg.Nested.Include) == 0 {
		return nil, nil
	}
	matcher, err := descriptor.NewMatcher(cfg.Artifacts())
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	pre, err := nested.New(nested.Options{
		Enabled:         cfg.Nested.Enabled,
		Matcher:         matcher,
		StagingDir:      cfg.Nested.StagingDir,
		DescriptorEntry: cfg.Descriptor.Entry,
		Logger:          t.logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	defer func() {
		if err := pre.Cleanup(); err != nil {
			t.logger().Warn("cleanup staging", "err", err)
		}
	}()

	if err := pre.ProcessAll(ctx, cfg.IncludeFiles()); err != nil {
		return nil, err
	}
	return pre.Bundle(), nil
}

// Run executes the build. Every stage runs once; on failure before the final
// stage the partial output is removed and the error is returned. Once the
// output is final it stays in place: a later registry or digest failure is
// returned as a StageError at StageFinalWithManifest together with the
// report.
func (t *Task) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	cfg := t.Config
	if cfg == nil {
		return nil, errors.New("build: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := t.logger()
	report := &Report{Input: cfg.Input, Output: cfg.Output, Stage: StageAbsent}

	bundled, err := t.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	report.Bundled = bundled

	mappings, err := t.mappings()
	if err != nil {
		return nil, err
	}

	res, err := remap.Remap(ctx, remap.Options{
		Input:     cfg.Input,
		Output:    cfg.Output,
		Classpath: cfg.Classpath,
		Mappings:  mappings,
		NewEngine: t.NewEngine,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	report.Remap = res
	report.UnmappedInputs = append(report.UnmappedInputs, cfg.Input)
	t.advance(report, StageRemappedRaw)

	if err := t.patchResources(report); err != nil {
		return nil, t.fail(report, err)
	}
	t.advance(report, StagePatchedResources)

	if err := t.finalize(report); err != nil {
		return nil, t.fail(report, err)
	}
	t.advance(report, StageFinalWithManifest)

	if cfg.Publish.Registry != "" {
		removed, err := cleanRegistry(cfg.Publish.Registry, []string{cfg.Output}, cfg.Publish.ExcludeDefault)
		if err != nil {
			return report, &StageError{Stage: report.Stage, Output: cfg.Output, Err: err}
		}
		report.RemovedArtifacts = removed
	}

	digest, err := archive.Digest(cfg.Output)
	if err != nil {
		return report, &StageError{Stage: report.Stage, Output: cfg.Output, Err: err}
	}
	report.Digest = digest
	report.Duration = time.Since(start)
	return report, nil
}

// mappings merges the primary and mixin mapping files.
func (t *Task) mappings() (*mapping.Builder, error) {
	m := t.Config.Mappings
	b, err := mapping.Merge(mapping.FileSource(m.Primary), m.Mixin, m.From, m.To)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	return b, nil
}

func (t *Task) advance(report *Report, stage Stage) {
	report.Stage = stage
	t.logger().Info("build stage", "output", report.Output, "stage", stage.String())
}

// fail removes the partial output.
func (t *Task) fail(report *Report, err error) error {
	if rmErr := os.Remove(report.Output); rmErr != nil && !os.IsNotExist(rmErr) {
		t.logger().Warn("remove partial output", "output", report.Output, "err", rmErr)
	}
	return &StageError{Stage: report.Stage, Output: report.Output, Err: err}
}

func (t *Task) patchResources(report *Report) error {
	cfg := t.Config
	configs, err := refmap.FindMixinConfigs(cfg.Output, cfg.Descriptor.Entry)
	if err != nil {
		return err
	}
	report.MixinConfigs = configs
	if cfg.Refmap.Name == "" || len(configs) == 0 {
		return nil
	}
	patched, err := refmap.PatchEntries(cfg.Output, configs, cfg.Refmap.Name, cfg.Refmap.MinVersion)
	if err != nil {
		return err
	}
	report.RefmapPatched = patched
	if patched {
		t.logger().Debug("transformed mixin reference maps", "output", cfg.Output)
	}
	return nil
}

func (t *Task) finalize(report *Report) error {
	cfg := t.Config
	if cfg.Nested.Embed && len(report.Bundled) > 0 {
		entries := make([]archive.Entry, 0, len(report.Bundled))
		for _, file := range report.Bundled {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("embed %s: %w", file, err)
			}
			entries = append(entries, archive.Entry{
				Name: descriptor.StoragePath(cfg.Nested.StorageDir, file),
				Data: data,
			})
		}
		if err := archive.AddEntries(cfg.Output, entries); err != nil {
			return err
		}
		report.Embedded = len(entries)
	}
	return descriptor.BundleArchive(cfg.Output, cfg.Descriptor.Entry, report.Bundled, cfg.Nested.StorageDir)
}

func cleanRegistry(path string, outputs []string, excludeDefault bool) (int, error) {
	reg, err := publish.Load(path)
	if err != nil {
		return 0, err
	}
	removed := reg.RemoveArtifacts(outputs, excludeDefault)
	if removed == 0 {
		return 0, nil
	}
	if err := reg.Save(path); err != nil {
		return 0, err
	}
	return removed, nil
}
