package mapping

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Kind is the symbol category a rule applies to.
type Kind uint8

const (
	KindClass Kind = iota + 1
	KindField
	KindMethod
)

func (k Kind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindField:
		return "field"
	case KindMethod:
		return "method"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Rule renames one symbol. Owner and Desc are set for members and are
// expressed in the source namespace.
type Rule struct {
	Kind   Kind
	Owner  string
	Name   string
	Desc   string
	Target string
}

// Table is an ordered set of rules from one namespace to another.
type Table struct {
	From  string
	To    string
	Rules []Rule
}

// Source produces a Table for a namespace pair.
type Source interface {
	Table(from, to string) (*Table, error)
}

// FileSource reads a mapping file on demand.
type FileSource string

// Table parses the file and extracts the rules for from -> to.
func (f FileSource) Table(from, to string) (*Table, error) {
	tree, err := ParseFile(string(f))
	if err != nil {
		return nil, err
	}
	table, err := tree.Table(from, to)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", string(f), err)
	}
	return table, nil
}

type memberKey struct {
	owner, name, desc string
}

// Builder collects tables in registration order.
type Builder struct {
	from   string
	to     string
	tables []*Table
}

// NewBuilder returns an empty builder for from -> to.
func NewBuilder(from, to string) *Builder {
	return &Builder{from: from, to: to}
}

// From returns the source namespace.
func (b *Builder) From() string { return b.from }

// To returns the target namespace.
func (b *Builder) To() string { return b.to }

// Len returns the number of registered tables.
func (b *Builder) Len() int { return len(b.tables) }

// Add registers a table. Tables for a different namespace pair are rejected.
func (b *Builder) Add(t *Table) error {
	if t == nil {
		return fmt.Errorf("mapping: nil table")
	}
	if t.From != b.from || t.To != b.to {
		return fmt.Errorf("mapping: table %s->%s does not match builder %s->%s", t.From, t.To, b.from, b.to)
	}
	b.tables = append(b.tables, t)
	return nil
}

// Build flattens the registered tables into a Remapper. When several tables
// rename the same symbol, the one registered last wins.
func (b *Builder) Build() *Remapper {
	r := &Remapper{
		classes: make(map[string]string),
		fields:  make(map[memberKey]string),
		methods: make(map[memberKey]string),
	}
	for _, t := range b.tables {
		for _, rule := range t.Rules {
			switch rule.Kind {
			case KindClass:
				r.classes[rule.Name] = rule.Target
			case KindField:
				r.fields[memberKey{rule.Owner, rule.Name, rule.Desc}] = rule.Target
			case KindMethod:
				r.methods[memberKey{rule.Owner, rule.Name, rule.Desc}] = rule.Target
			}
		}
	}
	return r
}

// Merge builds the merged mapping set: the primary source first, then the
// supplementary file when it exists. The supplementary rules are registered
// second so they override the primary ones.
func Merge(primary Source, supplementaryPath, from, to string) (*Builder, error) {
	if primary == nil {
		return nil, fmt.Errorf("mapping: primary mappings are required")
	}
	b := NewBuilder(from, to)

	table, err := primary.Table(from, to)
	if err != nil {
		return nil, fmt.Errorf("mapping: primary: %w", err)
	}
	if err := b.Add(table); err != nil {
		return nil, err
	}

	if strings.TrimSpace(supplementaryPath) == "" {
		return b, nil
	}
	if _, err := os.Stat(supplementaryPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return b, nil
		}
		return nil, fmt.Errorf("mapping: supplementary %s: %w", supplementaryPath, err)
	}
	extra, err := FileSource(supplementaryPath).Table(from, to)
	if err != nil {
		return nil, fmt.Errorf("mapping: supplementary: %w", err)
	}
	if err := b.Add(extra); err != nil {
		return nil, err
	}
	return b, nil
}

// Remapper answers rename lookups for one namespace pair.
type Remapper struct {
	classes map[string]string
	fields  map[memberKey]string
	methods map[memberKey]string
}

// Class maps an internal class name. Unmapped inner classes follow their
// outer class.
func (r *Remapper) Class(name string) string {
	if mapped, ok := r.classes[name]; ok {
		return mapped
	}
	if idx := strings.LastIndexByte(name, '$'); idx > 0 {
		outer := r.Class(name[:idx])
		if outer != name[:idx] {
			return outer + name[idx:]
		}
	}
	return name
}

// HasClass reports whether name has an explicit class rule.
func (r *Remapper) HasClass(name string) bool {
	_, ok := r.classes[name]
	return ok
}

// Type maps an internal name or an array descriptor.
func (r *Remapper) Type(name string) string {
	if strings.HasPrefix(name, "[") {
		return r.Desc(name)
	}
	return r.Class(name)
}

// Desc maps every class reference in a descriptor.
func (r *Remapper) Desc(desc string) string {
	return MapDescriptor(desc, r.Class)
}

// Field looks up a field rename declared directly on owner.
func (r *Remapper) Field(owner, name, desc string) (string, bool) {
	mapped, ok := r.fields[memberKey{owner, name, desc}]
	return mapped, ok
}

// Method looks up a method rename declared directly on owner.
func (r *Remapper) Method(owner, name, desc string) (string, bool) {
	mapped, ok := r.methods[memberKey{owner, name, desc}]
	return mapped, ok
}

// Counts returns the number of class, field and method rules.
func (r *Remapper) Counts() (classes, fields, methods int) {
	return len(r.classes), len(r.fields), len(r.methods)
}
