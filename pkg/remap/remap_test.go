package remap

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odvcencio/remapjar/pkg/archive"
	"github.com/odvcencio/remapjar/pkg/mapping"
)

func writeJar(t *testing.T, path string, entries ...archive.Entry) {
	t.Helper()
	if err := archive.Create(path, entries); err != nil {
		t.Fatalf("Create(%s): %v", path, err)
	}
}

func emptyMappings() *mapping.Builder {
	return mapping.NewBuilder(mapping.NamespaceNamed, mapping.NamespaceIntermediary)
}

type fakeEngine struct {
	calls     []string
	classpath []string
	finished  int
	failAt    string
	classes   []archive.Entry
}

func (f *fakeEngine) step(name string) error {
	f.calls = append(f.calls, name)
	if f.failAt == name {
		return errors.New(name + " exploded")
	}
	return nil
}

func (f *fakeEngine) ReadClassPath(ctx context.Context, paths ...string) error {
	f.classpath = append(f.classpath, paths...)
	return f.step("classpath")
}

func (f *fakeEngine) ReadInputs(ctx context.Context, paths ...string) error {
	return f.step("inputs")
}

func (f *fakeEngine) Apply(ctx context.Context, out archive.EntryWriter) error {
	if err := f.step("apply"); err != nil {
		return err
	}
	for _, e := range f.classes {
		if err := out.WriteEntry(e.Name, e.Data); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeEngine) Finish() { f.finished++ }

func (f *fakeEngine) factory(created *int) EngineFactory {
	return func(*mapping.Remapper, *slog.Logger) (Engine, error) {
		*created++
		return f, nil
	}
}

func TestRemapMissingInputAllocatesNothing(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	created := 0
	_, err := Remap(context.Background(), Options{
		Input:     filepath.Join(dir, "missing.jar"),
		Output:    filepath.Join(dir, "out.jar"),
		Mappings:  emptyMappings(),
		NewEngine: engine.factory(&created),
	})
	var notFound *InputNotFoundError
	if !errors.As(err, &notFound) || !errors.Is(err, ErrInputNotFound) {
		t.Fatalf("expected InputNotFoundError, got %v", err)
	}
	if created != 0 || engine.finished != 0 {
		t.Fatalf("engine touched: created=%d finished=%d", created, engine.finished)
	}
}

func TestRemapWritesResourcesAndClasses(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "mod-dev.jar")
	output := filepath.Join(dir, "mod.jar")
	lib := filepath.Join(dir, "lib.jar")
	writeJar(t, input,
		archive.Entry{Name: "fabric.mod.json", Data: []byte(`{"id":"mod"}`)},
		archive.Entry{Name: "a/A.class", Data: []byte("named")},
	)
	writeJar(t, lib, archive.Entry{Name: "x.txt", Data: []byte("x")})
	if err := os.WriteFile(output, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	engine := &fakeEngine{classes: []archive.Entry{{Name: "b/A.class", Data: []byte("intermediary")}}}
	created := 0
	res, err := Remap(context.Background(), Options{
		Input:     input,
		Output:    output,
		Classpath: []string{lib, input, lib},
		Mappings:  emptyMappings(),
		NewEngine: engine.factory(&created),
	})
	if err != nil {
		t.Fatalf("Remap: %v", err)
	}
	if engine.finished != 1 {
		t.Fatalf("Finish called %d times, want 1", engine.finished)
	}
	if got := strings.Join(engine.calls, ","); got != "classpath,inputs,apply" {
		t.Fatalf("engine calls = %s", got)
	}
	if len(engine.classpath) != 1 || engine.classpath[0] != lib {
		t.Fatalf("classpath = %v, want [%s]", engine.classpath, lib)
	}

	names, err := archive.Entries(output)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if got := strings.Join(names, ","); got != "fabric.mod.json,b/A.class" {
		t.Fatalf("output entries = %s", got)
	}
	if res.Classes != 1 || res.Resources != 1 {
		t.Fatalf("counts = %d classes, %d resources", res.Classes, res.Resources)
	}
	if len(res.Digest) != 64 {
		t.Fatalf("digest = %q", res.Digest)
	}
}

func TestRemapEngineFailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.jar")
	output := filepath.Join(dir, "out.jar")
	writeJar(t, input, archive.Entry{Name: "res.txt", Data: []byte("r")})

	engine := &fakeEngine{failAt: "inputs"}
	created := 0
	_, err := Remap(context.Background(), Options{
		Input:     input,
		Output:    output,
		Mappings:  emptyMappings(),
		NewEngine: engine.factory(&created),
	})
	var failed *RemapFailedError
	if !errors.As(err, &failed) || !errors.Is(err, ErrRemapFailed) {
		t.Fatalf("expected RemapFailedError, got %v", err)
	}
	if failed.Input != input || failed.Output != output {
		t.Fatalf("error paths = %s -> %s", failed.Input, failed.Output)
	}
	if engine.finished != 1 {
		t.Fatalf("Finish called %d times, want 1", engine.finished)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the input to remain, found %d files", len(entries))
	}
}

func TestRemapEmptyOutputIsMissing(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.jar")
	writeJar(t, input, archive.Entry{Name: "a/A.class", Data: []byte("x")})

	engine := &fakeEngine{}
	created := 0
	_, err := Remap(context.Background(), Options{
		Input:     input,
		Output:    filepath.Join(dir, "out.jar"),
		Mappings:  emptyMappings(),
		NewEngine: engine.factory(&created),
	})
	if !errors.Is(err, ErrOutputMissing) {
		t.Fatalf("expected ErrOutputMissing, got %v", err)
	}
	if engine.finished != 1 {
		t.Fatalf("Finish called %d times before the output check, want 1", engine.finished)
	}
}

func TestRemapRejectsSameInputAndOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.jar")
	writeJar(t, input, archive.Entry{Name: "res.txt", Data: []byte("r")})
	if _, err := Remap(context.Background(), Options{Input: input, Output: input, Mappings: emptyMappings()}); err == nil {
		t.Fatalf("expected error")
	}
	if !archive.Exists(input) {
		t.Fatalf("input removed")
	}
}

func TestRemapDefaultEngineCopiesResources(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.jar")
	output := filepath.Join(dir, "out.jar")
	writeJar(t, input, archive.Entry{Name: "assets/mod/icon.png", Data: []byte{1, 2, 3}})

	res, err := Remap(context.Background(), Options{Input: input, Output: output, Mappings: emptyMappings()})
	if err != nil {
		t.Fatalf("Remap: %v", err)
	}
	data, ok, err := archive.ReadEntry(output, "assets/mod/icon.png")
	if err != nil || !ok || len(data) != 3 {
		t.Fatalf("ReadEntry = %v, %v, %v", data, ok, err)
	}
	if res.Resources != 1 || res.Classes != 0 {
		t.Fatalf("counts = %+v", res)
	}
}

func TestClasspathDedupesAndDropsInput(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jar")
	b := filepath.Join(dir, "b.jar")
	in := filepath.Join(dir, "in.jar")
	got := Classpath([]string{b, a, filepath.Join(dir, ".", "b.jar"), in, a}, in)
	if len(got) != 2 || got[0] != b || got[1] != a {
		t.Fatalf("Classpath = %v", got)
	}
}
