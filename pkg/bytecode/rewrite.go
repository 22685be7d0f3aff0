package bytecode

import (
	"fmt"
	"strings"
)

// Resolver supplies the new names used while rewriting a class.
type Resolver interface {
	// Type maps an internal class name or array descriptor.
	Type(name string) string
	// Desc maps a field or method descriptor.
	Desc(desc string) string
	// Field and Method map a member name looked up from owner.
	Field(owner, name, desc string) string
	Method(owner, name, desc string) string
}

// Remap rewrites the class in place. Member references are resolved against
// their original owners before class entries are renamed.
func (cf *ClassFile) Remap(res Resolver) error {
	thisName := cf.Name()
	n := len(cf.pool)

	for i := 1; i < n; i++ {
		c := cf.pool[i]
		switch c.tag {
		case tagFieldref, tagMethodref, tagInterfaceMethodref:
			owner := cf.classAt(c.a)
			nat := cf.pool[c.b]
			name, desc := cf.utf8At(nat.a), cf.utf8At(nat.b)

			newName := name
			if !strings.HasPrefix(owner, "[") {
				if c.tag == tagFieldref {
					newName = res.Field(owner, name, desc)
				} else {
					newName = res.Method(owner, name, desc)
				}
			}
			newDesc := res.Desc(desc)
			if newName == name && newDesc == desc {
				continue
			}
			idx, err := cf.addNameAndType(newName, newDesc)
			if err != nil {
				return fmt.Errorf("remap %s: %w", thisName, err)
			}
			cf.pool[i].b = idx
		case tagDynamic, tagInvokeDynamic:
			nat := cf.pool[c.b]
			name, desc := cf.utf8At(nat.a), cf.utf8At(nat.b)
			newDesc := res.Desc(desc)
			if newDesc == desc {
				continue
			}
			idx, err := cf.addNameAndType(name, newDesc)
			if err != nil {
				return fmt.Errorf("remap %s: %w", thisName, err)
			}
			cf.pool[i].b = idx
		}
	}

	if err := cf.remapMembers(cf.fields, thisName, res.Field, res); err != nil {
		return err
	}
	if err := cf.remapMembers(cf.methods, thisName, res.Method, res); err != nil {
		return err
	}

	attrs, err := cf.remapAnnotations(cf.attrs, res)
	if err != nil {
		return fmt.Errorf("remap %s: %w", thisName, err)
	}
	cf.attrs = attrs
	for _, ms := range [][]member{cf.fields, cf.methods} {
		for i := range ms {
			attrs, err := cf.remapAnnotations(ms[i].attrs, res)
			if err != nil {
				return fmt.Errorf("remap %s.%s: %w", thisName, cf.utf8At(ms[i].name), err)
			}
			ms[i].attrs = attrs
		}
	}

	for i := 1; i < n; i++ {
		c := cf.pool[i]
		var (
			old, mapped string
		)
		switch c.tag {
		case tagClass:
			old = cf.utf8At(c.a)
			mapped = res.Type(old)
		case tagMethodType:
			old = cf.utf8At(c.a)
			mapped = res.Desc(old)
		default:
			continue
		}
		if mapped == old {
			continue
		}
		idx, err := cf.addUTF8(mapped)
		if err != nil {
			return fmt.Errorf("remap %s: %w", thisName, err)
		}
		cf.pool[i].a = idx
	}
	return nil
}

func (cf *ClassFile) remapMembers(ms []member, owner string, lookup func(owner, name, desc string) string, res Resolver) error {
	for i := range ms {
		name, desc := cf.utf8At(ms[i].name), cf.utf8At(ms[i].desc)
		newName := name
		if name != "<init>" && name != "<clinit>" {
			newName = lookup(owner, name, desc)
		}
		newDesc := res.Desc(desc)
		if newName != name {
			idx, err := cf.addUTF8(newName)
			if err != nil {
				return fmt.Errorf("remap %s.%s: %w", owner, name, err)
			}
			ms[i].name = idx
		}
		if newDesc != desc {
			idx, err := cf.addUTF8(newDesc)
			if err != nil {
				return fmt.Errorf("remap %s.%s: %w", owner, name, err)
			}
			ms[i].desc = idx
		}
	}
	return nil
}
