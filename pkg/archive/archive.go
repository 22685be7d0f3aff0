// Package archive holds the zip-level primitives the remap pipeline is built
// on: entry lookup, in-place entry rewrites and atomic file replacement.
//
// Every rewrite goes through a temp file in the destination directory that is
// renamed into place, so a failed rewrite never leaves a half-written archive
// behind.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// maxEntryBytes bounds how much of a single entry is read into memory.
const maxEntryBytes = 256 << 20

// ErrDuplicateEntry reports two entries with the same name bound for one
// archive.
var ErrDuplicateEntry = errors.New("duplicate entry")

// ClassSuffix marks compiled class entries.
const ClassSuffix = ".class"

// EntryWriter receives named archive entries.
type EntryWriter interface {
	WriteEntry(name string, data []byte) error
}

// TransformFunc rewrites the content of one entry. It reports whether the
// content changed; unchanged results are not written back.
type TransformFunc func(data []byte) ([]byte, bool, error)

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// CanonicalPath returns the absolute, cleaned, symlink-resolved form of path.
// Paths that do not exist yet are returned absolute and cleaned.
func CanonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("canonical path %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return filepath.Clean(abs), nil
		}
		return "", fmt.Errorf("canonical path %s: %w", path, err)
	}
	return filepath.Clean(resolved), nil
}

// Entries lists entry names in archive order.
func Entries(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// ContainsEntry reports whether the archive has an entry with the given name.
func ContainsEntry(path, name string) (bool, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// ReadEntry returns the content of the named entry. The boolean is false when
// the entry is absent.
func ReadEntry(path, name string) ([]byte, bool, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, false, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		data, err := readFile(f)
		if err != nil {
			return nil, false, fmt.Errorf("read %s!%s: %w", path, name, err)
		}
		return data, true, nil
	}
	return nil, false, nil
}

// ForEachEntry calls fn for each non-directory entry in archive order whose
// name passes match. Entries that do not match are never decompressed. A nil
// match accepts every entry.
func ForEachEntry(path string, match func(name string) bool, fn func(name string, data []byte) error) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if match != nil && !match(f.Name) {
			continue
		}
		data, err := readFile(f)
		if err != nil {
			return fmt.Errorf("read %s!%s: %w", path, f.Name, err)
		}
		if err := fn(f.Name, data); err != nil {
			return err
		}
	}
	return nil
}

// AddEntry writes an entry into the archive, replacing an existing entry of
// the same name.
func AddEntry(path, name string, data []byte) error {
	return AddEntries(path, []Entry{{Name: name, Data: data}})
}

// Entry is a named blob destined for an archive.
type Entry struct {
	Name string
	Data []byte
}

// AddEntries writes entries into the archive in order. Existing entries with
// the same names are dropped. Two entries sharing a name is an error and
// leaves the archive untouched.
func AddEntries(path string, entries []Entry) error {
	replaced := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := replaced[e.Name]; dup {
			return fmt.Errorf("add entries %s: %w %q", path, ErrDuplicateEntry, e.Name)
		}
		replaced[e.Name] = struct{}{}
	}

	return rewrite(path, func(r *zip.Reader, w *zip.Writer) (bool, error) {
		for _, f := range r.File {
			if _, ok := replaced[f.Name]; ok {
				continue
			}
			if err := w.Copy(f); err != nil {
				return false, fmt.Errorf("copy %s: %w", f.Name, err)
			}
		}
		for _, e := range entries {
			if err := writeEntry(w, e.Name, e.Data); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

// Create writes a new archive holding entries, replacing any file at path.
func Create(path string, entries []Entry) error {
	sink, err := OpenSink(path)
	if err != nil {
		return err
	}
	defer sink.Close()
	for _, e := range entries {
		if err := sink.WriteEntry(e.Name, e.Data); err != nil {
			return err
		}
	}
	return sink.Commit()
}

// TransformEntries applies transforms to the named entries. Entries that are
// missing are skipped. The archive is rewritten only if some transform
// reported a change, and the result says whether that happened.
func TransformEntries(path string, transforms map[string]TransformFunc) (bool, error) {
	if len(transforms) == 0 {
		return false, nil
	}

	changed := false
	err := rewrite(path, func(r *zip.Reader, w *zip.Writer) (bool, error) {
		for _, f := range r.File {
			fn, ok := transforms[f.Name]
			if !ok {
				if err := w.Copy(f); err != nil {
					return false, fmt.Errorf("copy %s: %w", f.Name, err)
				}
				continue
			}

			data, err := readFile(f)
			if err != nil {
				return false, fmt.Errorf("read %s: %w", f.Name, err)
			}
			out, modified, err := fn(data)
			if err != nil {
				return false, fmt.Errorf("transform %s: %w", f.Name, err)
			}
			if !modified {
				if err := w.Copy(f); err != nil {
					return false, fmt.Errorf("copy %s: %w", f.Name, err)
				}
				continue
			}
			changed = true
			if err := writeEntryLike(w, f, out); err != nil {
				return false, err
			}
		}
		return changed, nil
	})
	return changed, err
}

// rewrite streams path through fn into a sibling temp file and renames it
// over path when fn reports a change.
func rewrite(path string, fn func(r *zip.Reader, w *zip.Writer) (bool, error)) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", path, err)
	}
	defer r.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("rewrite %s: tmpfile: %w", path, err)
	}
	tmpName := tmp.Name()

	w := zip.NewWriter(tmp)
	write, err := fn(&r.Reader, w)
	if err != nil {
		w.Close()
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("rewrite %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("rewrite %s: finish zip: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rewrite %s: close: %w", path, err)
	}
	if !write {
		os.Remove(tmpName)
		return nil
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rewrite %s: rename: %w", path, err)
	}
	return nil
}

func writeEntry(w *zip.Writer, name string, data []byte) error {
	fh := &zip.FileHeader{Name: name, Method: zip.Deflate}
	fw, err := w.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func writeEntryLike(w *zip.Writer, f *zip.File, data []byte) error {
	fh := &zip.FileHeader{
		Name:     f.Name,
		Method:   f.Method,
		Modified: f.Modified,
		Comment:  f.Comment,
	}
	fh.SetMode(f.Mode())
	fw, err := w.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("create %s: %w", f.Name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", f.Name, err)
	}
	return nil
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxEntryBytes {
		return nil, fmt.Errorf("entry too large")
	}
	return data, nil
}

// IsClassEntry reports whether name is a compiled class entry.
func IsClassEntry(name string) bool {
	return strings.HasSuffix(name, ClassSuffix)
}
