// Package classtest assembles minimal JVM class files and archives for tests.
package classtest

import "encoding/binary"

const (
	TagUTF8               = 1
	TagLong               = 5
	TagClass              = 7
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
)

// Member is a field or method declaration.
type Member struct {
	Name, Desc string
}

// Builder accumulates a constant pool.
type Builder struct {
	pool  [][]byte
	utf8s map[string]uint16

	// ClassAttributes are appended to the class as encoded attributes.
	ClassAttributes [][]byte
}

func NewBuilder() *Builder {
	return &Builder{utf8s: make(map[string]uint16)}
}

func (b *Builder) add(entry []byte) uint16 {
	b.pool = append(b.pool, entry)
	return uint16(len(b.pool))
}

// UTF8 adds (or reuses) a UTF8 constant.
func (b *Builder) UTF8(s string) uint16 {
	if idx, ok := b.utf8s[s]; ok {
		return idx
	}
	e := []byte{TagUTF8}
	e = binary.BigEndian.AppendUint16(e, uint16(len(s)))
	e = append(e, s...)
	idx := b.add(e)
	b.utf8s[s] = idx
	return idx
}

// Class adds a class constant.
func (b *Builder) Class(name string) uint16 {
	n := b.UTF8(name)
	return b.add(binary.BigEndian.AppendUint16([]byte{TagClass}, n))
}

// NameAndType adds a name-and-type constant.
func (b *Builder) NameAndType(name, desc string) uint16 {
	n, d := b.UTF8(name), b.UTF8(desc)
	e := binary.BigEndian.AppendUint16([]byte{TagNameAndType}, n)
	return b.add(binary.BigEndian.AppendUint16(e, d))
}

// Ref adds a field, method or interface method reference.
func (b *Builder) Ref(tag uint8, owner, name, desc string) uint16 {
	c := b.Class(owner)
	nt := b.NameAndType(name, desc)
	e := binary.BigEndian.AppendUint16([]byte{tag}, c)
	return b.add(binary.BigEndian.AppendUint16(e, nt))
}

// Long adds an eight-byte constant, which takes two pool slots.
func (b *Builder) Long(v uint64) uint16 {
	idx := b.add(binary.BigEndian.AppendUint64([]byte{TagLong}, v))
	b.pool = append(b.pool, nil)
	return idx
}

// Attribute encodes an attribute with the given name and content.
func (b *Builder) Attribute(name string, info []byte) []byte {
	out := binary.BigEndian.AppendUint16(nil, b.UTF8(name))
	out = binary.BigEndian.AppendUint32(out, uint32(len(info)))
	return append(out, info...)
}

// Build encodes a public class with the given declarations.
func (b *Builder) Build(this, super uint16, fields, methods []Member) []byte {
	type encoded struct{ name, desc uint16 }
	encode := func(ms []Member) []encoded {
		out := make([]encoded, 0, len(ms))
		for _, m := range ms {
			out = append(out, encoded{b.UTF8(m.Name), b.UTF8(m.Desc)})
		}
		return out
	}
	fs, ms := encode(fields), encode(methods)

	out := binary.BigEndian.AppendUint32(nil, 0xCAFEBABE)
	out = binary.BigEndian.AppendUint16(out, 0)
	out = binary.BigEndian.AppendUint16(out, 52)
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.pool)+1))
	for _, e := range b.pool {
		out = append(out, e...)
	}
	out = binary.BigEndian.AppendUint16(out, 0x0021)
	out = binary.BigEndian.AppendUint16(out, this)
	out = binary.BigEndian.AppendUint16(out, super)
	out = binary.BigEndian.AppendUint16(out, 0)
	for _, group := range [][]encoded{fs, ms} {
		out = binary.BigEndian.AppendUint16(out, uint16(len(group)))
		for _, m := range group {
			out = binary.BigEndian.AppendUint16(out, 0x0001)
			out = binary.BigEndian.AppendUint16(out, m.name)
			out = binary.BigEndian.AppendUint16(out, m.desc)
			out = binary.BigEndian.AppendUint16(out, 0)
		}
	}
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.ClassAttributes)))
	for _, a := range b.ClassAttributes {
		out = append(out, a...)
	}
	return out
}

// Simple builds a class extending java/lang/Object with a constructor.
func Simple(name string) []byte {
	b := NewBuilder()
	this := b.Class(name)
	super := b.Class("java/lang/Object")
	b.Ref(TagMethodref, "java/lang/Object", "<init>", "()V")
	return b.Build(this, super, nil, []Member{{Name: "<init>", Desc: "()V"}})
}
