// Package refmap points mixin configuration files inside an archive at the
// reference map generated for the current mapping namespace.
package refmap

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/odvcencio/remapjar/pkg/archive"
	"github.com/odvcencio/remapjar/pkg/descriptor"
	"github.com/odvcencio/remapjar/pkg/jsonobj"
)

const (
	KeyRefmap     = "refmap"
	KeyMinVersion = "minVersion"
	KeyPackage    = "package"
	KeyMixins     = "mixins"
)

// mixin config arrays that mark a file as a mixin configuration.
var mixinLists = []string{KeyMixins, "client", "server"}

// Patch adds refmapName and minVersion to a mixin config when the keys are
// missing. Existing values and unknown keys are kept. It reports whether
// anything changed.
func Patch(config []byte, refmapName, minVersion string) ([]byte, bool, error) {
	obj, err := jsonobj.Parse(config)
	if err != nil {
		return nil, false, fmt.Errorf("patch mixin config: %w", err)
	}
	changed := false
	if refmapName != "" && !obj.Has(KeyRefmap) {
		if err := obj.Set(KeyRefmap, refmapName); err != nil {
			return nil, false, err
		}
		changed = true
	}
	if minVersion != "" && !obj.Has(KeyMinVersion) {
		if err := obj.Set(KeyMinVersion, minVersion); err != nil {
			return nil, false, err
		}
		changed = true
	}
	if !changed {
		return config, false, nil
	}
	out, err := obj.MarshalIndent()
	if err != nil {
		return nil, false, fmt.Errorf("patch mixin config: %w", err)
	}
	return out, true, nil
}

// PatchEntry patches one config entry of the archive. A missing entry is not
// an error.
func PatchEntry(archivePath, entry, refmapName, minVersion string) (bool, error) {
	return PatchEntries(archivePath, []string{entry}, refmapName, minVersion)
}

// PatchEntries patches every named config entry in a single archive rewrite.
func PatchEntries(archivePath string, entries []string, refmapName, minVersion string) (bool, error) {
	transforms := make(map[string]archive.TransformFunc, len(entries))
	for _, entry := range entries {
		transforms[entry] = func(data []byte) ([]byte, bool, error) {
			return Patch(data, refmapName, minVersion)
		}
	}
	changed, err := archive.TransformEntries(archivePath, transforms)
	if err != nil {
		return false, fmt.Errorf("refmap %s: %w", archivePath, err)
	}
	return changed, nil
}

// AddRefmapName finds the mixin configs of the archive and patches them.
func AddRefmapName(archivePath, refmapName, minVersion string) (bool, error) {
	configs, err := FindMixinConfigs(archivePath, descriptor.DefaultEntry)
	if err != nil {
		return false, err
	}
	if len(configs) == 0 {
		return false, nil
	}
	return PatchEntries(archivePath, configs, refmapName, minVersion)
}

// FindMixinConfigs lists the mixin config entries of an archive: those the
// descriptor declares under "mixins", then any root-level JSON file that
// looks like a mixin config. Names are returned once, in that order.
func FindMixinConfigs(archivePath, descriptorEntry string) ([]string, error) {
	if descriptorEntry == "" {
		descriptorEntry = descriptor.DefaultEntry
	}
	var configs []string
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, dup := seen[name]; dup || name == "" {
			return
		}
		seen[name] = struct{}{}
		configs = append(configs, name)
	}

	isDescriptor := func(name string) bool { return name == descriptorEntry }
	err := archive.ForEachEntry(archivePath, isDescriptor, func(name string, data []byte) error {
		for _, c := range declaredConfigs(data) {
			add(c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find mixin configs: %w", err)
	}

	rootJSON := func(name string) bool {
		return name != descriptorEntry && !strings.Contains(name, "/") && path.Ext(name) == ".json"
	}
	err = archive.ForEachEntry(archivePath, rootJSON, func(name string, data []byte) error {
		if looksLikeMixinConfig(data) {
			add(name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find mixin configs: %w", err)
	}
	return configs, nil
}

// declaredConfigs reads the "mixins" value of a descriptor. Both the array
// form (strings or {"config": ...} objects) and the older object form keyed
// by environment are understood. Malformed descriptors declare nothing.
func declaredConfigs(manifest []byte) []string {
	obj, err := jsonobj.Parse(manifest)
	if err != nil {
		return nil
	}
	raw, ok := obj.Get(KeyMixins)
	if !ok {
		return nil
	}

	var out []string
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		for _, item := range items {
			out = append(out, configName(item))
		}
		return out
	}

	env, err := jsonobj.Parse(raw)
	if err != nil {
		return nil
	}
	for _, key := range env.Keys() {
		list, _ := env.GetArray(key)
		for _, item := range list {
			out = append(out, configName(item))
		}
	}
	return out
}

func configName(item json.RawMessage) string {
	var name string
	if err := json.Unmarshal(item, &name); err == nil {
		return name
	}
	var entry struct {
		Config string `json:"config"`
	}
	if err := json.Unmarshal(item, &entry); err == nil {
		return entry.Config
	}
	return ""
}

func looksLikeMixinConfig(data []byte) bool {
	obj, err := jsonobj.Parse(data)
	if err != nil || !obj.Has(KeyPackage) {
		return false
	}
	for _, key := range mixinLists {
		if _, ok := obj.GetArray(key); ok {
			return true
		}
	}
	return false
}
