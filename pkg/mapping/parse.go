package mapping

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// ParseFile reads a Tiny v1 or v2 mapping file. Zstandard-compressed files
// are decompressed transparently.
func ParseFile(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mapping: open %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, err := br.Peek(len(zstdMagic)); err == nil && bytes.Equal(magic, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("mapping: %s: zstd: %w", path, err)
		}
		defer dec.Close()
		r = dec
	}

	tree, err := Parse(r)
	if err != nil {
		return nil, fmt.Errorf("mapping: %s: %w", path, err)
	}
	return tree, nil
}

// Parse reads Tiny mappings, detecting the version from the header line.
func Parse(r io.Reader) (*Tree, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 16<<20)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, fmt.Errorf("empty mapping file")
	}
	header := strings.Split(strings.TrimRight(sc.Text(), "\r"), "\t")

	switch {
	case len(header) >= 3 && header[0] == "v1":
		return parseV1(sc, header[1:])
	case len(header) >= 5 && header[0] == "tiny" && header[1] == "2":
		return parseV2(sc, header[3:])
	default:
		return nil, fmt.Errorf("unsupported mapping header %q", strings.Join(header, " "))
	}
}

func parseV1(sc *bufio.Scanner, namespaces []string) (*Tree, error) {
	tree := &Tree{Namespaces: namespaces}
	n := len(namespaces)
	byName := make(map[string]*Class)
	classFor := func(name string) *Class {
		if c, ok := byName[name]; ok {
			return c
		}
		c := &Class{Names: []string{name}}
		byName[name] = c
		tree.Classes = append(tree.Classes, c)
		return c
	}

	line := 1
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		cols := strings.Split(text, "\t")
		switch cols[0] {
		case "CLASS":
			if len(cols) < 2 {
				return nil, fmt.Errorf("line %d: malformed CLASS", line)
			}
			c := classFor(cols[1])
			c.Names = padNames(cols[1:], n)
		case "FIELD", "METHOD":
			if len(cols) < 4 {
				return nil, fmt.Errorf("line %d: malformed %s", line, cols[0])
			}
			c := classFor(cols[1])
			if len(c.Names) < n {
				c.Names = padNames(c.Names, n)
			}
			m := &Member{Desc: cols[2], Names: padNames(cols[3:], n)}
			if cols[0] == "FIELD" {
				c.Fields = append(c.Fields, m)
			} else {
				c.Methods = append(c.Methods, m)
			}
		default:
			// Unknown sections (e.g. comments) are ignored.
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return tree, nil
}

func parseV2(sc *bufio.Scanner, namespaces []string) (*Tree, error) {
	tree := &Tree{Namespaces: namespaces}
	n := len(namespaces)
	var current *Class

	line := 1
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" {
			continue
		}
		depth := 0
		for depth < len(text) && text[depth] == '\t' {
			depth++
		}
		cols := strings.Split(text[depth:], "\t")

		switch depth {
		case 0:
			if cols[0] != "c" {
				return nil, fmt.Errorf("line %d: unexpected section %q", line, cols[0])
			}
			if len(cols) < 2 {
				return nil, fmt.Errorf("line %d: malformed class", line)
			}
			current = &Class{Names: padNames(cols[1:], n)}
			tree.Classes = append(tree.Classes, current)
		case 1:
			if current == nil {
				// Header properties precede the first class.
				continue
			}
			switch cols[0] {
			case "f", "m":
				if len(cols) < 3 {
					return nil, fmt.Errorf("line %d: malformed member", line)
				}
				m := &Member{Desc: cols[1], Names: padNames(cols[2:], n)}
				if cols[0] == "f" {
					current.Fields = append(current.Fields, m)
				} else {
					current.Methods = append(current.Methods, m)
				}
			case "c":
				// class comment
			default:
				return nil, fmt.Errorf("line %d: unexpected member section %q", line, cols[0])
			}
		default:
			// Parameters, locals and comments do not affect renaming.
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return tree, nil
}

func padNames(names []string, n int) []string {
	out := make([]string, n)
	copy(out, names)
	return out
}
