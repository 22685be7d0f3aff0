package bytecode

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/odvcencio/remapjar/pkg/archive"
	"github.com/odvcencio/remapjar/pkg/mapping"
)

const defaultLookupCacheSize = 8192

type classNode struct {
	super      string
	interfaces []string
}

type inputClass struct {
	source string
	entry  string
	data   []byte
}

type lookupKey struct {
	kind  mapping.Kind
	owner string
	name  string
	desc  string
}

// Engine remaps the classes of its inputs. Classpath archives contribute the
// class hierarchy used to find member renames declared on supertypes.
type Engine struct {
	remapper *mapping.Remapper
	logger   *slog.Logger

	classes map[string]*classNode
	inputs  []inputClass
	lookups *lru.Cache[lookupKey, string]

	finished bool
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	logger    *slog.Logger
	cacheSize int
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// WithLookupCacheSize bounds the member lookup memo.
func WithLookupCacheSize(n int) Option {
	return func(o *engineOptions) { o.cacheSize = n }
}

// NewEngine creates an engine applying remapper.
func NewEngine(remapper *mapping.Remapper, opts ...Option) (*Engine, error) {
	if remapper == nil {
		return nil, fmt.Errorf("bytecode: remapper is required")
	}
	o := engineOptions{cacheSize: defaultLookupCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cache, err := lru.New[lookupKey, string](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("bytecode: lookup cache: %w", err)
	}
	return &Engine{
		remapper: remapper,
		logger:   o.logger,
		classes:  make(map[string]*classNode),
		lookups:  cache,
	}, nil
}

// ReadClassPath indexes the class hierarchy of reference archives or
// directories. Missing entries are skipped.
func (e *Engine) ReadClassPath(ctx context.Context, paths ...string) error {
	if e.finished {
		return fmt.Errorf("bytecode: engine already finished")
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			e.logger.Debug("skipping missing classpath entry", "path", p)
			continue
		}
		err := walkClasses(p, func(entry string, data []byte) error {
			cf, err := Parse(data)
			if err != nil {
				e.logger.Debug("skipping unreadable class", "path", p, "entry", entry, "err", err)
				return nil
			}
			e.index(cf)
			return nil
		})
		if err != nil {
			return fmt.Errorf("bytecode: read classpath %s: %w", p, err)
		}
	}
	return nil
}

// ReadInputs loads the classes that Apply will remap.
func (e *Engine) ReadInputs(ctx context.Context, paths ...string) error {
	if e.finished {
		return fmt.Errorf("bytecode: engine already finished")
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := walkClasses(p, func(entry string, data []byte) error {
			cf, err := Parse(data)
			if err != nil {
				return fmt.Errorf("%s: %w", entry, err)
			}
			e.index(cf)
			e.inputs = append(e.inputs, inputClass{source: p, entry: entry, data: data})
			return nil
		})
		if err != nil {
			return fmt.Errorf("bytecode: read input %s: %w", p, err)
		}
	}
	return nil
}

// Apply remaps every input class and writes it to out under its new name.
func (e *Engine) Apply(ctx context.Context, out archive.EntryWriter) error {
	if e.finished {
		return fmt.Errorf("bytecode: engine already finished")
	}
	for _, in := range e.inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		cf, err := Parse(in.data)
		if err != nil {
			return fmt.Errorf("bytecode: %s!%s: %w", in.source, in.entry, err)
		}
		oldName := cf.Name()
		if err := cf.Remap(e); err != nil {
			return fmt.Errorf("bytecode: %s!%s: %w", in.source, in.entry, err)
		}
		entry := renameEntry(in.entry, oldName, cf.Name())
		if err := out.WriteEntry(entry, cf.Bytes()); err != nil {
			return fmt.Errorf("bytecode: write %s: %w", entry, err)
		}
	}
	e.logger.Debug("remapped classes", "count", len(e.inputs))
	return nil
}

// Finish releases the engine state. It is safe to call more than once.
func (e *Engine) Finish() {
	if e.finished {
		return
	}
	e.finished = true
	e.inputs = nil
	e.classes = nil
	e.lookups.Purge()
}

// Type implements Resolver.
func (e *Engine) Type(name string) string { return e.remapper.Type(name) }

// Desc implements Resolver.
func (e *Engine) Desc(desc string) string { return e.remapper.Desc(desc) }

// Field implements Resolver.
func (e *Engine) Field(owner, name, desc string) string {
	return e.member(mapping.KindField, owner, name, desc)
}

// Method implements Resolver.
func (e *Engine) Method(owner, name, desc string) string {
	return e.member(mapping.KindMethod, owner, name, desc)
}

// member walks owner and its supertypes breadth-first until a rename is
// found.
func (e *Engine) member(kind mapping.Kind, owner, name, desc string) string {
	key := lookupKey{kind: kind, owner: owner, name: name, desc: desc}
	if mapped, ok := e.lookups.Get(key); ok {
		return mapped
	}

	lookup := e.remapper.Field
	if kind == mapping.KindMethod {
		lookup = e.remapper.Method
	}

	result := name
	visited := make(map[string]struct{})
	queue := []string{owner}
	for len(queue) > 0 {
		cls := queue[0]
		queue = queue[1:]
		if _, seen := visited[cls]; seen {
			continue
		}
		visited[cls] = struct{}{}

		if mapped, ok := lookup(cls, name, desc); ok {
			result = mapped
			break
		}
		if node, ok := e.classes[cls]; ok {
			if node.super != "" {
				queue = append(queue, node.super)
			}
			queue = append(queue, node.interfaces...)
		}
	}

	e.lookups.Add(key, result)
	return result
}

func (e *Engine) index(cf *ClassFile) {
	e.classes[cf.Name()] = &classNode{super: cf.SuperName(), interfaces: cf.InterfaceNames()}
}

// renameEntry swaps the class name at the end of an entry path, keeping any
// prefix such as a multi-release directory.
func renameEntry(entry, oldName, newName string) string {
	suffix := oldName + archive.ClassSuffix
	if strings.HasSuffix(entry, suffix) {
		return strings.TrimSuffix(entry, suffix) + newName + archive.ClassSuffix
	}
	return newName + archive.ClassSuffix
}

// walkClasses calls fn for each class file in a directory tree or archive.
func walkClasses(path string, fn func(entry string, data []byte) error) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return archive.ForEachEntry(path, archive.IsClassEntry, fn)
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !archive.IsClassEntry(p) {
			return nil
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), data)
	})
}
