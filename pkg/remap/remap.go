// Package remap runs one input archive through a remapping engine and writes
// the result, with its non-class resources, to the output archive.
package remap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/odvcencio/remapjar/pkg/archive"
	"github.com/odvcencio/remapjar/pkg/bytecode"
	"github.com/odvcencio/remapjar/pkg/mapping"
)

// Engine is a remapping engine. An engine is used for a single remap and is
// always finished, whether or not the remap succeeded.
type Engine interface {
	ReadClassPath(ctx context.Context, paths ...string) error
	ReadInputs(ctx context.Context, paths ...string) error
	Apply(ctx context.Context, out archive.EntryWriter) error
	Finish()
}

// EngineFactory builds an engine for the given rename table.
type EngineFactory func(remapper *mapping.Remapper, logger *slog.Logger) (Engine, error)

// DefaultEngine builds the class-file engine from pkg/bytecode.
func DefaultEngine(remapper *mapping.Remapper, logger *slog.Logger) (Engine, error) {
	e, err := bytecode.NewEngine(remapper, bytecode.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Options describes one remap.
type Options struct {
	Input  string
	Output string
	// Classpath lists reference archives. Duplicates and the input itself
	// are dropped.
	Classpath []string
	Mappings  *mapping.Builder
	NewEngine EngineFactory
	Logger    *slog.Logger
}

// Result summarizes a successful remap.
type Result struct {
	Input     string
	Output    string
	Classes   int
	Resources int
	// Digest is the hex BLAKE2b-256 of the output archive.
	Digest   string
	Duration time.Duration
}

// Classpath returns files without duplicates, in first-seen order, and
// without input. Paths are compared in canonical form.
func Classpath(files []string, input string) []string {
	inputKey := canonical(input)
	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		key := canonical(f)
		if key == inputKey {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}

func canonical(path string) string {
	c, err := archive.CanonicalPath(path)
	if err != nil {
		return path
	}
	return c
}

// Remap rewrites opts.Input into opts.Output. Any previous output is removed
// first; a failed remap leaves no output behind.
func Remap(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if !archive.Exists(opts.Input) {
		return nil, &InputNotFoundError{Input: opts.Input}
	}
	if opts.Output == "" {
		return nil, fmt.Errorf("remap: output path is required")
	}
	if opts.Mappings == nil {
		return nil, fmt.Errorf("remap: mappings are required")
	}
	if canonical(opts.Input) == canonical(opts.Output) {
		return nil, fmt.Errorf("remap: input and output are the same file: %s", opts.Input)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	factory := opts.NewEngine
	if factory == nil {
		factory = DefaultEngine
	}
	classpath := Classpath(opts.Classpath, opts.Input)

	if err := os.Remove(opts.Output); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remap: remove stale output: %w", err)
	}

	sink, err := archive.OpenSink(opts.Output)
	if err != nil {
		return nil, &RemapFailedError{Input: opts.Input, Output: opts.Output, Err: err}
	}
	defer sink.Close()

	logger.Debug("remap classpath", "input", opts.Input, "entries", classpath)
	remapper := opts.Mappings.Build()
	if err := runEngine(ctx, factory, remapper, logger, sink, opts.Input, classpath); err != nil {
		return nil, &RemapFailedError{Input: opts.Input, Output: opts.Output, Err: err}
	}
	if err := sink.Commit(); err != nil {
		return nil, &RemapFailedError{Input: opts.Input, Output: opts.Output, Err: err}
	}

	if !archive.Exists(opts.Output) {
		return nil, &OutputMissingError{Input: opts.Input, Output: opts.Output}
	}
	digest, err := archive.Digest(opts.Output)
	if err != nil {
		return nil, fmt.Errorf("remap: %w", err)
	}

	res := &Result{
		Input:     opts.Input,
		Output:    opts.Output,
		Classes:   sink.Classes(),
		Resources: sink.Resources(),
		Digest:    digest,
		Duration:  time.Since(start),
	}
	logger.Info("remapped archive",
		"input", res.Input, "output", res.Output,
		"classes", res.Classes, "resources", res.Resources,
		"duration", res.Duration)
	return res, nil
}

// runEngine drives one engine through its lifecycle. Finish runs exactly
// once on every path out of this function.
func runEngine(ctx context.Context, factory EngineFactory, remapper *mapping.Remapper, logger *slog.Logger, sink *archive.Sink, input string, classpath []string) error {
	engine, err := factory(remapper, logger)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer engine.Finish()

	if _, err := sink.AddNonClassFiles(input); err != nil {
		return err
	}
	if err := engine.ReadClassPath(ctx, classpath...); err != nil {
		return err
	}
	if err := engine.ReadInputs(ctx, input); err != nil {
		return err
	}
	return engine.Apply(ctx, sink)
}
