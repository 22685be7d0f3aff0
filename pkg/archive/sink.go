package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// Sink is an output session for a single archive. Entries are written to a
// temp file next to the destination; Commit renames it into place and Close
// discards anything not committed. Nothing is created on disk until the
// first entry arrives.
type Sink struct {
	path    string
	tmpName string
	tmp     *os.File
	w       *zip.Writer
	names   map[string]struct{}

	classes   int
	resources int
	done      bool
}

// OpenSink starts an output session targeting path.
func OpenSink(path string) (*Sink, error) {
	if path == "" {
		return nil, fmt.Errorf("open sink: output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open sink %s: mkdir: %w", path, err)
	}
	return &Sink{path: path, names: make(map[string]struct{})}, nil
}

// Path returns the destination path.
func (s *Sink) Path() string { return s.path }

// Classes returns the number of class entries written.
func (s *Sink) Classes() int { return s.classes }

// Resources returns the number of non-class entries written.
func (s *Sink) Resources() int { return s.resources }

func (s *Sink) ensureOpen() error {
	if s.done {
		return fmt.Errorf("sink %s: already closed", s.path)
	}
	if s.w != nil {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("sink %s: tmpfile: %w", s.path, err)
	}
	s.tmp = tmp
	s.tmpName = tmp.Name()
	s.w = zip.NewWriter(tmp)
	return nil
}

func (s *Sink) claim(name string) error {
	if _, dup := s.names[name]; dup {
		return fmt.Errorf("sink %s: %w %q", s.path, ErrDuplicateEntry, name)
	}
	s.names[name] = struct{}{}
	return nil
}

// WriteEntry adds a new entry to the output.
func (s *Sink) WriteEntry(name string, data []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.claim(name); err != nil {
		return err
	}
	if err := writeEntry(s.w, name, data); err != nil {
		return fmt.Errorf("sink %s: %w", s.path, err)
	}
	if IsClassEntry(name) {
		s.classes++
	} else {
		s.resources++
	}
	return nil
}

// AddNonClassFiles copies every non-class entry of input into the output
// unchanged and returns how many were copied.
func (s *Sink) AddNonClassFiles(input string) (int, error) {
	r, err := zip.OpenReader(input)
	if err != nil {
		return 0, fmt.Errorf("open archive %s: %w", input, err)
	}
	defer r.Close()

	copied := 0
	for _, f := range r.File {
		if IsClassEntry(f.Name) {
			continue
		}
		if err := s.ensureOpen(); err != nil {
			return copied, err
		}
		if err := s.claim(f.Name); err != nil {
			return copied, err
		}
		if err := s.w.Copy(f); err != nil {
			return copied, fmt.Errorf("sink %s: copy %s: %w", s.path, f.Name, err)
		}
		copied++
	}
	s.resources += copied
	return copied, nil
}

// Commit finishes the archive and moves it to the destination path. A sink
// that never received an entry commits nothing.
func (s *Sink) Commit() error {
	if s.done {
		return fmt.Errorf("sink %s: already closed", s.path)
	}
	s.done = true
	if s.w == nil {
		return nil
	}

	if err := s.w.Close(); err != nil {
		s.discard()
		return fmt.Errorf("sink %s: finish zip: %w", s.path, err)
	}
	if err := s.tmp.Close(); err != nil {
		s.tmp = nil
		s.discard()
		return fmt.Errorf("sink %s: close: %w", s.path, err)
	}
	s.tmp = nil
	if err := os.Rename(s.tmpName, s.path); err != nil {
		s.discard()
		return fmt.Errorf("sink %s: rename: %w", s.path, err)
	}
	s.tmpName = ""
	return nil
}

// Close releases the session. Uncommitted output is removed. Close is safe
// to call after Commit and more than once.
func (s *Sink) Close() error {
	s.done = true
	if s.tmpName == "" && s.tmp == nil {
		return nil
	}
	var errs []error
	if s.w != nil && s.tmp != nil {
		errs = append(errs, s.w.Close())
	}
	s.discard()
	return errors.Join(errs...)
}

func (s *Sink) discard() {
	if s.tmp != nil {
		s.tmp.Close()
		s.tmp = nil
	}
	if s.tmpName != "" {
		os.Remove(s.tmpName)
		s.tmpName = ""
	}
}
