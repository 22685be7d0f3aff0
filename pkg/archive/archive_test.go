package archive

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/odvcencio/remapjar/internal/classtest"
)

func writeTestJar(t *testing.T, path string, entries ...Entry) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		fw, err := w.Create(e.Name)
		if err != nil {
			t.Fatalf("Create(%s): %v", e.Name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			t.Fatalf("Write(%s): %v", e.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func TestContainsAndReadEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.jar")
	writeTestJar(t, path,
		Entry{Name: "fabric.mod.json", Data: []byte(`{"id":"lib"}`)},
		Entry{Name: "a/A.class", Data: []byte{0xCA, 0xFE}},
	)

	has, err := ContainsEntry(path, "fabric.mod.json")
	if err != nil {
		t.Fatalf("ContainsEntry: %v", err)
	}
	if !has {
		t.Fatalf("expected fabric.mod.json to be present")
	}
	has, err = ContainsEntry(path, "missing.json")
	if err != nil {
		t.Fatalf("ContainsEntry: %v", err)
	}
	if has {
		t.Fatalf("expected missing.json to be absent")
	}

	data, ok, err := ReadEntry(path, "fabric.mod.json")
	if err != nil {
		t.Fatalf("ReadEntry: %v", err)
	}
	if !ok || string(data) != `{"id":"lib"}` {
		t.Fatalf("ReadEntry = %q, %v", data, ok)
	}
}

func TestAddEntryReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.jar")
	writeTestJar(t, path,
		Entry{Name: "a.txt", Data: []byte("old")},
		Entry{Name: "b.txt", Data: []byte("keep")},
	)

	if err := AddEntry(path, "a.txt", []byte("new")); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	names, err := Entries(path)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if strings.Join(names, ",") != "b.txt,a.txt" {
		t.Fatalf("entries = %v, want [b.txt a.txt]", names)
	}
	data, _, err := ReadEntry(path, "a.txt")
	if err != nil {
		t.Fatalf("ReadEntry: %v", err)
	}
	if string(data) != "new" {
		t.Fatalf("a.txt = %q, want %q", data, "new")
	}
}

func TestTransformEntriesSkipsRewriteWhenUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.jar")
	writeTestJar(t, path, Entry{Name: "x.json", Data: []byte("{}")})

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	changed, err := TransformEntries(path, map[string]TransformFunc{
		"x.json": func(data []byte) ([]byte, bool, error) { return data, false, nil },
		"y.json": func(data []byte) ([]byte, bool, error) { return []byte("never"), true, nil },
	})
	if err != nil {
		t.Fatalf("TransformEntries: %v", err)
	}
	if changed {
		t.Fatalf("expected no change")
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("archive bytes changed without a modification")
	}

	leftovers, err := filepath.Glob(filepath.Join(dir, ".lib.jar.tmp-*"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestTransformEntriesRewritesChangedEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.jar")
	writeTestJar(t, path,
		Entry{Name: "x.json", Data: []byte("{}")},
		Entry{Name: "other", Data: []byte("same")},
	)

	changed, err := TransformEntries(path, map[string]TransformFunc{
		"x.json": func(data []byte) ([]byte, bool, error) { return []byte(`{"a":1}`), true, nil },
	})
	if err != nil {
		t.Fatalf("TransformEntries: %v", err)
	}
	if !changed {
		t.Fatalf("expected change")
	}
	data, _, err := ReadEntry(path, "x.json")
	if err != nil {
		t.Fatalf("ReadEntry: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Fatalf("x.json = %q", data)
	}
	other, _, err := ReadEntry(path, "other")
	if err != nil {
		t.Fatalf("ReadEntry: %v", err)
	}
	if string(other) != "same" {
		t.Fatalf("other = %q", other)
	}
}

func TestReplaceFileMovesContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "scratch", "lib.jar")
	dst := filepath.Join(dir, "lib.jar")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("patched"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ReplaceFile(src, dst); err != nil {
		t.Fatalf("ReplaceFile: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "patched" {
		t.Fatalf("dst = %q, want %q", data, "patched")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected src to be gone, stat err = %v", err)
	}
}

func TestReplaceFileMissingSourceKeepsDestination(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "lib.jar")
	if err := os.WriteFile(dst, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ReplaceFile(filepath.Join(dir, "nope.jar"), dst); err == nil {
		t.Fatalf("expected error for missing source")
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "original" {
		t.Fatalf("dst = %q, want original content", data)
	}
}

func TestCanonicalPathResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.jar")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.jar")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlink unsupported: %v", err)
	}

	a, err := CanonicalPath(target)
	if err != nil {
		t.Fatalf("CanonicalPath(target): %v", err)
	}
	b, err := CanonicalPath(link)
	if err != nil {
		t.Fatalf("CanonicalPath(link): %v", err)
	}
	if a != b {
		t.Fatalf("canonical paths differ: %q vs %q", a, b)
	}
}

func TestDigestDeterminism(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	d1, err := Digest(path)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	d2, err := Digest(path)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if d1 != d2 || len(d1) != 64 {
		t.Fatalf("digest = %q / %q", d1, d2)
	}
}

func TestForEachEntryOnlyReadsMatchingEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.jar")
	err := classtest.WriteJarWithBadEntry(path, map[string][]byte{
		"a/A.class": {0xCA, 0xFE},
		"b/B.class": {0xBA, 0xBE},
	}, "assets/big.bin")
	if err != nil {
		t.Fatalf("WriteJarWithBadEntry: %v", err)
	}

	var seen []string
	err = ForEachEntry(path, IsClassEntry, func(name string, data []byte) error {
		seen = append(seen, name)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachEntry(classes): %v", err)
	}
	if strings.Join(seen, ",") != "a/A.class,b/B.class" {
		t.Fatalf("seen = %v", seen)
	}

	if err := ForEachEntry(path, nil, func(string, []byte) error { return nil }); err == nil {
		t.Fatalf("expected reading the corrupt resource to fail without a filter")
	}
}

func TestAddEntriesRejectsDuplicateNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jar")
	writeTestJar(t, path, Entry{Name: "fabric.mod.json", Data: []byte("{}")})
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	err = AddEntries(path, []Entry{
		{Name: "META-INF/jars/lib-1.0.jar", Data: []byte("x")},
		{Name: "META-INF/jars/lib-1.0.jar", Data: []byte("y")},
	})
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("err = %v, want ErrDuplicateEntry", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("archive changed after rejected write")
	}
}
