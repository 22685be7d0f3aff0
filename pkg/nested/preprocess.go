// Package nested prepares dependency archives for bundling inside the output
// archive. Every bundled archive must carry a descriptor; archives that lack
// one get a synthesized descriptor injected before they are packaged.
package nested

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/odvcencio/remapjar/pkg/archive"
	"github.com/odvcencio/remapjar/pkg/descriptor"
)

// Options configures a Preprocessor.
type Options struct {
	// Enabled mirrors the "bundle nested dependencies" flag. When false every
	// candidate is excluded and nothing is touched.
	Enabled bool
	// Matcher resolves archive files to their coordinates.
	Matcher *descriptor.Matcher
	// StagingDir holds scratch copies. Each run uses its own subdirectory.
	StagingDir string
	// DescriptorEntry defaults to descriptor.DefaultEntry.
	DescriptorEntry string
	Logger          *slog.Logger
}

// Preprocessor patches candidate archives and accumulates the bundle list.
// It is safe for concurrent use; each file is patched under its own lock.
type Preprocessor struct {
	enabled bool
	matcher *descriptor.Matcher
	entry   string
	runDir  string
	logger  *slog.Logger

	locks fileLocks

	mu     sync.Mutex
	bundle []string
	seen   map[string]struct{}
	// names maps each stored file name to the archive that claimed it.
	names map[string]string
}

// New creates a Preprocessor for one run.
func New(opts Options) (*Preprocessor, error) {
	if opts.Enabled && opts.Matcher == nil {
		return nil, fmt.Errorf("nested: matcher is required when bundling is enabled")
	}
	stagingDir := opts.StagingDir
	if stagingDir == "" {
		stagingDir = filepath.Join(os.TempDir(), "remapjar", "modprocessing")
	}
	entry := opts.DescriptorEntry
	if entry == "" {
		entry = descriptor.DefaultEntry
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	runID := strconv.Itoa(os.Getpid()) + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	return &Preprocessor{
		enabled: opts.Enabled,
		matcher: opts.Matcher,
		entry:   entry,
		runDir:  filepath.Join(stagingDir, runID),
		logger:  logger,
		seen:    make(map[string]struct{}),
		names:   make(map[string]string),
	}, nil
}

// Process handles one candidate archive. It reports whether the archive was
// added to the bundle list.
func (p *Preprocessor) Process(ctx context.Context, file string) (bool, error) {
	if !p.enabled {
		p.logger.Debug("excluding nested jar", "file", file)
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.logger.Info("processing nested jar", "file", file)
	coord, err := p.matcher.Match(file)
	if err != nil {
		return false, err
	}
	canonical, err := archive.CanonicalPath(file)
	if err != nil {
		return false, err
	}

	unlock := p.locks.lock(canonical)
	defer unlock()

	if err := p.checkName(file, canonical); err != nil {
		return false, err
	}
	has, err := archive.ContainsEntry(file, p.entry)
	if err != nil {
		return false, &ArchivePatchError{File: file, Op: "inspect", Err: err}
	}
	if !has {
		if err := p.inject(file, canonical, coord); err != nil {
			return false, err
		}
	}

	if err := p.record(file, canonical); err != nil {
		return false, err
	}
	return true, nil
}

// ProcessAll runs Process over files in order and stops at the first error.
func (p *Preprocessor) ProcessAll(ctx context.Context, files []string) error {
	for _, file := range files {
		if _, err := p.Process(ctx, file); err != nil {
			return err
		}
	}
	return nil
}

// inject writes a synthesized descriptor into a scratch copy of file and
// swaps the copy into place.
func (p *Preprocessor) inject(file, canonical string, coord descriptor.Coordinate) error {
	p.logger.Info("adding descriptor", "file", file, "entry", p.entry, "id", coord.ModID())

	data, err := descriptor.Synthesize(coord)
	if err != nil {
		return &ArchivePatchError{File: file, Op: "synthesize", Err: err}
	}

	scratch := filepath.Join(p.runDir, archive.PathKey(canonical), filepath.Base(file))
	if err := os.MkdirAll(filepath.Dir(scratch), 0o755); err != nil {
		return &ArchivePatchError{File: file, Op: "mkdir", Err: err}
	}
	if err := os.Remove(scratch); err != nil && !os.IsNotExist(err) {
		return &ArchivePatchError{File: file, Op: "clear scratch", Err: err}
	}

	if err := archive.CopyFile(file, scratch); err != nil {
		return &ArchivePatchError{File: file, Op: "copy", Err: err}
	}
	if err := archive.AddEntry(scratch, p.entry, data); err != nil {
		os.Remove(scratch)
		return &ArchivePatchError{File: file, Op: "inject", Err: err}
	}
	if err := archive.ReplaceFile(scratch, file); err != nil {
		os.Remove(scratch)
		return &ArchivePatchError{File: file, Op: "replace", Err: err}
	}
	return nil
}

// checkName fails when a different archive already claimed file's stored
// name. Bundled archives are stored by base name, so two of them sharing one
// would overwrite each other in the output.
func (p *Preprocessor) checkName(file, canonical string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conflict(file, canonical)
}

func (p *Preprocessor) conflict(file, canonical string) error {
	name := filepath.Base(file)
	owner, ok := p.names[name]
	if !ok || owner == canonical {
		return nil
	}
	return &BundleNameConflictError{Name: name, First: owner, Second: file}
}

func (p *Preprocessor) record(file, canonical string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.seen[canonical]; dup {
		return nil
	}
	if err := p.conflict(file, canonical); err != nil {
		return err
	}
	p.seen[canonical] = struct{}{}
	p.names[filepath.Base(file)] = canonical
	p.bundle = append(p.bundle, file)
	return nil
}

// Bundle returns the archives recorded so far, in encounter order.
func (p *Preprocessor) Bundle() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.bundle))
	copy(out, p.bundle)
	return out
}

// Cleanup removes this run's scratch directory.
func (p *Preprocessor) Cleanup() error {
	if err := os.RemoveAll(p.runDir); err != nil {
		return fmt.Errorf("nested: cleanup %s: %w", p.runDir, err)
	}
	return nil
}

// fileLocks hands out one mutex per canonical path.
type fileLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *fileLocks) lock(key string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
