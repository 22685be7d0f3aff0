package publish

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRemoveArtifactsIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "build", "mod.jar")
	other := filepath.Join(dir, "build", "mod-sources.jar")

	reg := &Registry{}
	reg.Add("archives", Artifact{Name: "mod", Type: "jar", File: out})
	reg.Add("archives", Artifact{Name: "mod", Classifier: "sources", File: other})
	reg.Add("runtimeElements", Artifact{Name: "mod", File: filepath.Join(dir, "build", ".", "mod.jar")})

	if n := reg.RemoveArtifacts([]string{out}, false); n != 2 {
		t.Fatalf("first RemoveArtifacts = %d, want 2", n)
	}
	if n := reg.RemoveArtifacts([]string{out}, false); n != 0 {
		t.Fatalf("second RemoveArtifacts = %d, want 0", n)
	}
	archives := reg.Configuration("archives")
	if len(archives.Artifacts) != 1 || archives.Artifacts[0].File != other {
		t.Fatalf("archives = %+v", archives.Artifacts)
	}
}

func TestRemoveArtifactsExcludeDefault(t *testing.T) {
	out := filepath.Join(t.TempDir(), "mod.jar")
	reg := &Registry{}
	reg.Add(DefaultConfiguration, Artifact{Name: "mod", File: out})
	reg.Add("archives", Artifact{Name: "mod", File: out})

	if n := reg.RemoveArtifacts([]string{out}, true); n != 1 {
		t.Fatalf("RemoveArtifacts = %d, want 1", n)
	}
	if len(reg.Configuration(DefaultConfiguration).Artifacts) != 1 {
		t.Fatalf("default configuration was touched")
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "registry.json")

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(missing): %v", err)
	}
	if len(reg.Configurations) != 0 {
		t.Fatalf("expected empty registry")
	}

	reg.Add("archives", Artifact{Name: "mod", Type: "jar", File: "/tmp/mod.jar"})
	if err := reg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := loaded.Configuration("archives").Artifacts
	if len(got) != 1 || got[0] != (Artifact{Name: "mod", Type: "jar", File: "/tmp/mod.jar"}) {
		t.Fatalf("loaded = %+v", got)
	}
}

func TestLoadResolvesRelativeFilesAgainstRegistryDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "build", "registry.json")
	data := `{"configurations":[{"name":"archives","artifacts":[{"name":"mod","file":"libs/mod.jar"}]}]}`
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := reg.RemoveArtifacts([]string{filepath.Join(dir, "libs", "mod.jar")}, false); n != 0 {
		t.Fatalf("removed %d artifacts resolved against the wrong directory", n)
	}
	if n := reg.RemoveArtifacts([]string{filepath.Join(dir, "build", "libs", "mod.jar")}, false); n != 1 {
		t.Fatalf("RemoveArtifacts = %d, want 1", n)
	}
	if err := reg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
}
