// Package mapping reads Tiny mapping files and turns them into ordered rename
// tables between two namespaces.
package mapping

import (
	"fmt"
)

const (
	// NamespaceNamed is the human-readable development namespace.
	NamespaceNamed = "named"
	// NamespaceIntermediary is the stable runtime namespace.
	NamespaceIntermediary = "intermediary"
)

// Tree is a parsed mapping file. Names are indexed by namespace column;
// member descriptors are expressed in the first namespace.
type Tree struct {
	Namespaces []string
	Classes    []*Class
}

// Class holds one class and its members.
type Class struct {
	Names   []string
	Fields  []*Member
	Methods []*Member
}

// Member is a field or method.
type Member struct {
	Desc  string
	Names []string
}

// Namespace returns the column index of ns.
func (t *Tree) Namespace(ns string) (int, error) {
	for i, n := range t.Namespaces {
		if n == ns {
			return i, nil
		}
	}
	return -1, fmt.Errorf("mapping: namespace %q not found (have %v)", ns, t.Namespaces)
}

// Table extracts the rename rules from one namespace to another. Rules keep
// file order: classes first as they appear, each followed by its fields and
// methods.
func (t *Tree) Table(from, to string) (*Table, error) {
	fromIdx, err := t.Namespace(from)
	if err != nil {
		return nil, err
	}
	toIdx, err := t.Namespace(to)
	if err != nil {
		return nil, err
	}

	// Owners and descriptors are stored in column 0 and must be expressed in
	// the source namespace.
	toSource := make(map[string]string, len(t.Classes))
	for _, c := range t.Classes {
		toSource[nameAt(c.Names, 0)] = nameAt(c.Names, fromIdx)
	}
	mapOwner := func(name string) string {
		if mapped, ok := toSource[name]; ok {
			return mapped
		}
		return name
	}

	table := &Table{From: from, To: to}
	for _, c := range t.Classes {
		owner := nameAt(c.Names, fromIdx)
		if explicit(c.Names, toIdx) {
			table.Rules = append(table.Rules, Rule{
				Kind:   KindClass,
				Name:   owner,
				Target: nameAt(c.Names, toIdx),
			})
		}
		for _, f := range c.Fields {
			if !explicit(f.Names, toIdx) {
				continue
			}
			table.Rules = append(table.Rules, Rule{
				Kind:   KindField,
				Owner:  owner,
				Name:   nameAt(f.Names, fromIdx),
				Desc:   MapDescriptor(f.Desc, mapOwner),
				Target: nameAt(f.Names, toIdx),
			})
		}
		for _, m := range c.Methods {
			if !explicit(m.Names, toIdx) {
				continue
			}
			table.Rules = append(table.Rules, Rule{
				Kind:   KindMethod,
				Owner:  owner,
				Name:   nameAt(m.Names, fromIdx),
				Desc:   MapDescriptor(m.Desc, mapOwner),
				Target: nameAt(m.Names, toIdx),
			})
		}
	}
	return table, nil
}

// explicit reports whether column i carries a name of its own. Columns that
// only fall back to another namespace produce no rule.
func explicit(names []string, i int) bool {
	return i < len(names) && names[i] != ""
}

// nameAt returns names[i], falling back to the nearest non-empty column to
// its left when the name is missing.
func nameAt(names []string, i int) string {
	if i >= len(names) {
		i = len(names) - 1
	}
	for ; i >= 0; i-- {
		if names[i] != "" {
			return names[i]
		}
	}
	return ""
}

// MapDescriptor rewrites every class reference (Lname;) in a field or method
// descriptor through mapClass.
func MapDescriptor(desc string, mapClass func(string) string) string {
	var out []byte
	last := 0
	for i := 0; i < len(desc); i++ {
		if desc[i] != 'L' {
			continue
		}
		end := i + 1
		for end < len(desc) && desc[end] != ';' {
			end++
		}
		if end >= len(desc) {
			break
		}
		name := desc[i+1 : end]
		if mapped := mapClass(name); mapped != name {
			out = append(out, desc[last:i+1]...)
			out = append(out, mapped...)
			last = end
		}
		i = end
	}
	if out == nil {
		return desc
	}
	out = append(out, desc[last:]...)
	return string(out)
}
