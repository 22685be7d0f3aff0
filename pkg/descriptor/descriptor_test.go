package descriptor

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/odvcencio/remapjar/pkg/jsonobj"
)

func TestModIDNormalizesGroup(t *testing.T) {
	c := Coordinate{Group: "Com.Example.Lib", Name: "Cool-Lib", Version: "1.2.3"}
	if got, want := c.ModID(), "com_example_lib_cool-lib"; got != want {
		t.Fatalf("ModID = %q, want %q", got, want)
	}
}

func TestSynthesizeIsStableAndOrdered(t *testing.T) {
	c := Coordinate{Group: "org.test", Name: "thing", Version: "2.0"}
	a, err := Synthesize(c)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	b, err := Synthesize(c)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("synthesized descriptor is not reproducible")
	}

	want := "{\n  \"schemaVersion\": 1,\n  \"id\": \"org_test_thing\",\n  \"version\": \"2.0\",\n  \"name\": \"thing\"\n}"
	if string(a) != want {
		t.Fatalf("got:\n%s\nwant:\n%s", a, want)
	}
}

func TestMatcherMatchesByCanonicalPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "lib-a.jar")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	coord := Coordinate{Group: "g", Name: "lib-a", Version: "1"}
	m, err := NewMatcher([]ResolvedArtifact{{Coordinate: coord, File: file}})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	got, err := m.Match(filepath.Join(dir, ".", "sub", "..", "lib-a.jar"))
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got != coord {
		t.Fatalf("Match = %v, want %v", got, coord)
	}
}

func TestMatcherIgnoresContentEquality(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jar")
	b := filepath.Join(dir, "b.jar")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("same bytes"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	m, err := NewMatcher([]ResolvedArtifact{{Coordinate: Coordinate{Name: "a"}, File: a}})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	_, err = m.Match(b)
	if !errors.Is(err, ErrUnresolvedDependency) {
		t.Fatalf("Match(b) err = %v, want ErrUnresolvedDependency", err)
	}
	var unresolved *UnresolvedDependencyError
	if !errors.As(err, &unresolved) || unresolved.File != b {
		t.Fatalf("expected UnresolvedDependencyError for %s, got %v", b, err)
	}
}

func TestMatcherFirstRegistrationWins(t *testing.T) {
	file := filepath.Join(t.TempDir(), "dup.jar")
	first := Coordinate{Group: "g", Name: "first", Version: "1"}
	m, err := NewMatcher([]ResolvedArtifact{
		{Coordinate: first, File: file},
		{Coordinate: Coordinate{Group: "g", Name: "second", Version: "1"}, File: file},
	})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	got, err := m.Match(file)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got != first {
		t.Fatalf("Match = %v, want %v", got, first)
	}
}

func jarsOf(t *testing.T, manifest []byte) []string {
	t.Helper()
	files, err := NestedJars(manifest)
	if err != nil {
		t.Fatalf("NestedJars: %v", err)
	}
	return files
}

func TestBundleAppendsAfterExistingEntries(t *testing.T) {
	in := []byte(`{"id":"mod","jars":[{"file":"a.jar"}]}`)
	out, err := Bundle(in, []string{"/deps/b.jar", "/deps/c.jar"}, DefaultStorageDir)
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	want := []string{"a.jar", "META-INF/jars/b.jar", "META-INF/jars/c.jar"}
	if got := jarsOf(t, out); !reflect.DeepEqual(got, want) {
		t.Fatalf("jars = %v, want %v", got, want)
	}
}

func TestBundleWithoutJarsKeyAndNothingBundledIsUnchanged(t *testing.T) {
	in := []byte(`{"schemaVersion": 1, "id": "mod", "custom": {"x": [1, 2]}}`)
	out, err := Bundle(in, nil, DefaultStorageDir)
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}

	var before, after any
	if err := json.Unmarshal(in, &before); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(out, &after); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("manifest changed:\nbefore %s\nafter  %s", in, out)
	}

	obj, err := jsonobj.Parse(out)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if obj.Has(JarsKey) {
		t.Fatalf("jars key must not be introduced")
	}
}

func TestBundleReplacesNonArrayJars(t *testing.T) {
	in := []byte(`{"jars":"broken"}`)
	out, err := Bundle(in, []string{"x.jar"}, "nested")
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if got := jarsOf(t, out); !reflect.DeepEqual(got, []string{"nested/x.jar"}) {
		t.Fatalf("jars = %v", got)
	}
}

func TestBundlePreservesUnknownKeysAndOrder(t *testing.T) {
	in := []byte(`{"z":true,"jars":[{"file":"a.jar","extra":1}],"a":"x"}`)
	out, err := Bundle(in, []string{"b.jar"}, DefaultStorageDir)
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	obj, err := jsonobj.Parse(out)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := obj.Keys(); !reflect.DeepEqual(got, []string{"z", "jars", "a"}) {
		t.Fatalf("keys = %v", got)
	}
	items, _ := obj.GetArray(JarsKey)
	if len(items) != 2 || !bytes.Contains(items[0], []byte(`"extra"`)) {
		t.Fatalf("existing entry not preserved verbatim: %s", out)
	}
}
