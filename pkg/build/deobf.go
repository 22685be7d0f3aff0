package build

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/odvcencio/remapjar/pkg/archive"
	"github.com/odvcencio/remapjar/pkg/remap"
)

// Reasons a dependency is left alone by RemapDependencies.
const (
	SkipAlreadyRemapped = "already remapped"
	SkipNoDescriptor    = "no descriptor"
)

// DependencyResult is the outcome for one archive handled by
// RemapDependencies.
type DependencyResult struct {
	File   string
	Output string
	// SkipReason is empty when the archive was remapped.
	SkipReason string
	Remap      *remap.Result
}

// Skipped reports whether the archive was left alone.
func (r DependencyResult) Skipped() bool { return r.SkipReason != "" }

// RemappedName returns the file name RemapDependencies writes for file.
func RemappedName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base)) + RemappedSuffix
}

// RemapDependencies remaps the input and every configured dependency that
// carries a descriptor into Deobf.OutputDir as <name>-remapped.jar. The input
// is always remapped. Dependencies already named *-remapped.jar or without a
// descriptor are skipped. Each archive sees the classpath plus all other
// dependencies. The first remap failure stops the run; outputs written before
// it are kept.
func (t *Task) RemapDependencies(ctx context.Context) ([]DependencyResult, error) {
	cfg := t.Config
	if cfg == nil {
		return nil, errors.New("deobf: config is required")
	}
	if err := validateDeobf(cfg.Input, cfg.Mappings.Primary, cfg.Deobf.OutputDir); err != nil {
		return nil, err
	}
	log := t.logger()

	mappings, err := t.mappings()
	if err != nil {
		return nil, err
	}

	classpath := append(append([]string(nil), cfg.Classpath...), cfg.Deobf.Dependencies...)
	classpath = append(classpath, cfg.Input)

	outputs := make(map[string]string)
	run := func(file string) (DependencyResult, error) {
		out := filepath.Join(cfg.Deobf.OutputDir, RemappedName(file))
		if prev, dup := outputs[out]; dup {
			return DependencyResult{}, fmt.Errorf("deobf: %s and %s both remap to %s", prev, file, out)
		}
		outputs[out] = file
		res, err := remap.Remap(ctx, remap.Options{
			Input:     file,
			Output:    out,
			Classpath: classpath,
			Mappings:  mappings,
			NewEngine: t.NewEngine,
			Logger:    log,
		})
		if err != nil {
			return DependencyResult{}, fmt.Errorf("deobf %s: %w", file, err)
		}
		return DependencyResult{File: file, Output: out, Remap: res}, nil
	}

	first, err := run(cfg.Input)
	if err != nil {
		return nil, err
	}
	results := []DependencyResult{first}

	for _, dep := range cfg.Deobf.Dependencies {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if strings.HasSuffix(filepath.Base(dep), RemappedSuffix) {
			log.Info("skipping already remapped dependency", "file", dep)
			results = append(results, DependencyResult{File: dep, SkipReason: SkipAlreadyRemapped})
			continue
		}
		has, err := archive.ContainsEntry(dep, cfg.Descriptor.Entry)
		if err != nil {
			return results, fmt.Errorf("deobf %s: %w", dep, err)
		}
		if !has {
			log.Info("skipping dependency without descriptor", "file", dep)
			results = append(results, DependencyResult{File: dep, SkipReason: SkipNoDescriptor})
			continue
		}
		res, err := run(dep)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func validateDeobf(input, mappings, outputDir string) error {
	var errs []error
	if input == "" {
		errs = append(errs, errors.New("input is required"))
	}
	if mappings == "" {
		errs = append(errs, errors.New("mappings.primary is required"))
	}
	if outputDir == "" {
		errs = append(errs, errors.New("deobf.output_dir is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
