package descriptor

import (
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"

	"github.com/odvcencio/remapjar/pkg/archive"
	"github.com/odvcencio/remapjar/pkg/jsonobj"
)

// JarsKey is the manifest key listing bundled archives.
const JarsKey = "jars"

// NestedJar is one entry of the manifest's jars list.
type NestedJar struct {
	File string `json:"file"`
}

// StoragePath returns where a bundled archive is stored inside the output.
func StoragePath(storageDir, file string) string {
	return path.Join(storageDir, filepath.Base(file))
}

// NestedJars returns the files listed under jars. Malformed entries are
// skipped.
func NestedJars(manifest []byte) ([]string, error) {
	obj, err := jsonobj.Parse(manifest)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	items, _ := obj.GetArray(JarsKey)
	files := make([]string, 0, len(items))
	for _, item := range items {
		var jar NestedJar
		if err := json.Unmarshal(item, &jar); err != nil || jar.File == "" {
			continue
		}
		files = append(files, jar.File)
	}
	return files, nil
}

// Bundle appends one jars entry per bundled archive to the manifest.
// Existing entries keep their order and content; a jars value that is not an
// array is replaced. Unknown keys pass through untouched. With nothing to
// bundle and no jars key, the manifest content is left as is.
func Bundle(manifest []byte, bundled []string, storageDir string) ([]byte, error) {
	obj, err := jsonobj.Parse(manifest)
	if err != nil {
		return nil, fmt.Errorf("bundle manifest: %w", err)
	}

	jars, ok := obj.GetArray(JarsKey)
	if !ok {
		jars = nil
	}
	if len(bundled) == 0 && !obj.Has(JarsKey) {
		return obj.MarshalIndent()
	}

	for _, file := range bundled {
		raw, err := json.Marshal(NestedJar{File: StoragePath(storageDir, file)})
		if err != nil {
			return nil, fmt.Errorf("bundle manifest: %w", err)
		}
		jars = append(jars, raw)
	}
	if jars == nil {
		jars = []json.RawMessage{}
	}
	if err := obj.Set(JarsKey, jars); err != nil {
		return nil, fmt.Errorf("bundle manifest: %w", err)
	}
	return obj.MarshalIndent()
}

// BundleArchive rewrites the descriptor entry of the archive at archivePath
// to list the bundled archives. An archive without the entry is left alone.
func BundleArchive(archivePath, entry string, bundled []string, storageDir string) error {
	if entry == "" {
		entry = DefaultEntry
	}
	if storageDir == "" {
		storageDir = DefaultStorageDir
	}
	_, err := archive.TransformEntries(archivePath, map[string]archive.TransformFunc{
		entry: func(data []byte) ([]byte, bool, error) {
			out, err := Bundle(data, bundled, storageDir)
			if err != nil {
				return nil, false, err
			}
			return out, true, nil
		},
	})
	if err != nil {
		return fmt.Errorf("bundle %s: %w", archivePath, err)
	}
	return nil
}
