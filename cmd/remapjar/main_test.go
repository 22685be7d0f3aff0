package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odvcencio/remapjar/internal/classtest"
	"github.com/odvcencio/remapjar/pkg/archive"
	"github.com/odvcencio/remapjar/pkg/publish"
)

func chdirForTest(t *testing.T, dir string) func() {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir(%s): %v", dir, err)
	}
	return func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("restore cwd %s: %v", wd, err)
		}
	}
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeCmdJar(t *testing.T, path string, entries ...archive.Entry) {
	t.Helper()
	if err := archive.Create(path, entries); err != nil {
		t.Fatalf("Create(%s): %v", path, err)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if out != "remapjar "+version+"\n" {
		t.Fatalf("version output = %q", out)
	}
}

func TestRemapCmdWithFlags(t *testing.T) {
	dir := t.TempDir()
	restore := chdirForTest(t, dir)
	defer restore()

	writeCmdJar(t, filepath.Join(dir, "mod-dev.jar"),
		archive.Entry{Name: "fabric.mod.json", Data: []byte(`{"schemaVersion":1,"id":"mod"}`)},
		archive.Entry{Name: "a/A.class", Data: classtest.Simple("a/A")},
	)
	if err := os.WriteFile(filepath.Join(dir, "mappings.tiny"), []byte("v1\tnamed\tintermediary\nCLASS\ta/A\tb/A\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "remap", "-i", "mod-dev.jar", "-o", "out/mod.jar", "-m", "mappings.tiny")
	if err != nil {
		t.Fatalf("remap: %v\noutput:\n%s", err, out)
	}
	if !strings.Contains(out, "(1 classes, 1 resources)") || !strings.Contains(out, "blake2b ") {
		t.Fatalf("remap output = %q", out)
	}
	ok, err := archive.ContainsEntry(filepath.Join(dir, "out", "mod.jar"), "b/A.class")
	if err != nil || !ok {
		t.Fatalf("remapped class missing: %v %v", ok, err)
	}
}

func TestRemapCmdMissingExplicitConfig(t *testing.T) {
	dir := t.TempDir()
	restore := chdirForTest(t, dir)
	defer restore()

	if _, err := runCmd(t, "remap", "--config", "nope.toml"); err == nil {
		t.Fatalf("expected error for missing config")
	}
}

func TestNestCmdIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "plain-lib-1.0.jar")
	writeCmdJar(t, jar, archive.Entry{Name: "p/P.class", Data: classtest.Simple("p/P")})
	args := []string{"nest", jar, "--group", "org.lib", "--name", "plain-lib", "--version", "1.0", "--staging", filepath.Join(dir, "staging")}

	out, err := runCmd(t, args...)
	if err != nil {
		t.Fatalf("nest: %v", err)
	}
	if !strings.Contains(out, "id org_lib_plain-lib") {
		t.Fatalf("first nest output = %q", out)
	}
	before, err := os.ReadFile(jar)
	if err != nil {
		t.Fatal(err)
	}

	out, err = runCmd(t, args...)
	if err != nil {
		t.Fatalf("second nest: %v", err)
	}
	if !strings.Contains(out, "already has fabric.mod.json") {
		t.Fatalf("second nest output = %q", out)
	}
	after, err := os.ReadFile(jar)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("archive with a descriptor was modified")
	}
}

func TestPruneCmd(t *testing.T) {
	dir := t.TempDir()
	registry := filepath.Join(dir, "registry.json")
	output := filepath.Join(dir, "mod.jar")
	reg := &publish.Registry{}
	reg.Add("archives", publish.Artifact{Name: "mod", File: output})
	if err := reg.Save(registry); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "prune", "--registry", registry, "--output", output)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if !strings.Contains(out, "removed 1 artifact(s)") {
		t.Fatalf("prune output = %q", out)
	}
	out, err = runCmd(t, "prune", "--registry", registry, "--output", output)
	if err != nil {
		t.Fatalf("second prune: %v", err)
	}
	if !strings.Contains(out, "nothing to prune") {
		t.Fatalf("second prune output = %q", out)
	}
}

func TestInspectCmd(t *testing.T) {
	jar := filepath.Join(t.TempDir(), "mod.jar")
	writeCmdJar(t, jar,
		archive.Entry{Name: "fabric.mod.json", Data: []byte(`{"id":"mod","version":"1.0","jars":[{"file":"META-INF/jars/a.jar"}],"mixins":["mod.mixins.json"]}`)},
		archive.Entry{Name: "mod.mixins.json", Data: []byte(`{"package":"p","mixins":[]}`)},
		archive.Entry{Name: "b/A.class", Data: classtest.Simple("b/A")},
	)

	out, err := runCmd(t, "inspect", jar)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"1 classes, 2 resources", "id: mod", "jars: 1", "META-INF/jars/a.jar", "mixin configs: 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("inspect output %q missing %q", out, want)
		}
	}
}

func TestDeobfCmd(t *testing.T) {
	dir := t.TempDir()
	restore := chdirForTest(t, dir)
	defer restore()

	writeCmdJar(t, filepath.Join(dir, "mod-dev.jar"),
		archive.Entry{Name: "fabric.mod.json", Data: []byte(`{"schemaVersion":1,"id":"mod"}`)},
		archive.Entry{Name: "a/A.class", Data: classtest.Simple("a/A")},
	)
	writeCmdJar(t, filepath.Join(dir, "dep.jar"),
		archive.Entry{Name: "fabric.mod.json", Data: []byte(`{"id":"dep"}`)},
	)
	writeCmdJar(t, filepath.Join(dir, "plain.jar"), archive.Entry{Name: "p/P.class", Data: classtest.Simple("p/P")})
	if err := os.WriteFile(filepath.Join(dir, "mappings.tiny"), []byte("v1\tnamed\tintermediary\nCLASS\ta/A\tb/A\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "deobf", "-i", "mod-dev.jar", "-m", "mappings.tiny", "--out-dir", "remapped", "dep.jar", "plain.jar")
	if err != nil {
		t.Fatalf("deobf: %v\noutput:\n%s", err, out)
	}
	for _, want := range []string{"mod-dev-remapped.jar", "dep-remapped.jar", "skipped " + filepath.Join(dir, "plain.jar") + " (no descriptor)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("deobf output %q missing %q", out, want)
		}
	}
	if ok, err := archive.ContainsEntry(filepath.Join(dir, "remapped", "mod-dev-remapped.jar"), "b/A.class"); err != nil || !ok {
		t.Fatalf("remapped input missing b/A.class: %v %v", ok, err)
	}
}
