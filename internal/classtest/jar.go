package classtest

import (
	"bytes"
	"hash/crc32"
	"os"
	"sort"

	"github.com/klauspost/compress/zip"
)

// WriteJarWithBadEntry writes an archive holding entries plus a stored entry
// named bad whose checksum does not match its content. Fully reading bad
// fails; listing the archive or copying the entry raw does not.
func WriteJarWithBadEntry(path string, entries map[string][]byte, bad string) error {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fw, err := w.Create(name)
		if err != nil {
			return err
		}
		if _, err := fw.Write(entries[name]); err != nil {
			return err
		}
	}

	payload := []byte("payload that does not match its checksum")
	fw, err := w.CreateRaw(&zip.FileHeader{
		Name:               bad,
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(payload) ^ 0xffffffff,
		CompressedSize64:   uint64(len(payload)),
		UncompressedSize64: uint64(len(payload)),
	})
	if err != nil {
		return err
	}
	if _, err := fw.Write(payload); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
