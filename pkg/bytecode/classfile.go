// Package bytecode is the built-in remap engine. It rewrites JVM class files
// by appending renamed constant-pool entries and repointing references to
// them; the original entries are left in the pool unused.
package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const classMagic = 0xCAFEBABE

// Constant pool tags.
const (
	tagUTF8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

var errTruncated = errors.New("truncated class file")

type constant struct {
	tag  uint8
	utf8 string
	// a and b are index operands; kind is the method handle reference kind.
	a, b uint16
	kind uint8
	raw  []byte
}

type member struct {
	access uint16
	name   uint16
	desc   uint16
	attrs  []byte
}

// ClassFile is a parsed class with its constant pool exposed for rewriting.
// Attributes are kept as raw bytes.
type ClassFile struct {
	minor, major uint16
	pool         []constant
	access       uint16
	this         uint16
	super        uint16
	interfaces   []uint16
	fields       []member
	methods      []member
	attrs        []byte

	utf8Index map[string]uint16
	natIndex  map[[2]uint16]uint16
}

type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = errTruncated
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u1() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u2() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u4() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// Parse decodes a class file.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{data: data}
	if magic := r.u4(); r.err == nil && magic != classMagic {
		return nil, fmt.Errorf("bad class magic %#x", magic)
	}
	cf := &ClassFile{
		minor:     r.u2(),
		major:     r.u2(),
		utf8Index: make(map[string]uint16),
		natIndex:  make(map[[2]uint16]uint16),
	}

	count := int(r.u2())
	if count == 0 && r.err == nil {
		return nil, fmt.Errorf("empty constant pool")
	}
	cf.pool = make([]constant, count)
	for i := 1; i < count && r.err == nil; i++ {
		c := constant{tag: r.u1()}
		switch c.tag {
		case tagUTF8:
			n := int(r.u2())
			c.utf8 = string(r.take(n))
		case tagInteger, tagFloat:
			c.raw = r.take(4)
		case tagLong, tagDouble:
			c.raw = r.take(8)
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			c.a = r.u2()
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			c.a = r.u2()
			c.b = r.u2()
		case tagMethodHandle:
			c.kind = r.u1()
			c.a = r.u2()
		default:
			return nil, fmt.Errorf("constant pool entry %d: unknown tag %d", i, c.tag)
		}
		cf.pool[i] = c
		switch c.tag {
		case tagUTF8:
			if _, ok := cf.utf8Index[c.utf8]; !ok {
				cf.utf8Index[c.utf8] = uint16(i)
			}
		case tagNameAndType:
			key := [2]uint16{c.a, c.b}
			if _, ok := cf.natIndex[key]; !ok {
				cf.natIndex[key] = uint16(i)
			}
		case tagLong, tagDouble:
			// Eight-byte constants occupy two slots.
			i++
		}
	}

	cf.access = r.u2()
	cf.this = r.u2()
	cf.super = r.u2()
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		cf.interfaces = append(cf.interfaces, r.u2())
	}
	cf.fields = readMembers(r)
	cf.methods = readMembers(r)
	cf.attrs = readAttributes(r)
	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after class file", len(data)-r.off)
	}
	if err := cf.validate(); err != nil {
		return nil, err
	}
	return cf, nil
}

func readMembers(r *reader) []member {
	n := int(r.u2())
	out := make([]member, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		m := member{access: r.u2(), name: r.u2(), desc: r.u2()}
		m.attrs = readAttributes(r)
		out = append(out, m)
	}
	return out
}

// readAttributes returns the raw attribute table including its count.
func readAttributes(r *reader) []byte {
	start := r.off
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		r.u2()
		length := int(r.u4())
		r.take(length)
	}
	if r.err != nil {
		return nil
	}
	return r.data[start:r.off]
}

func (cf *ClassFile) validate() error {
	check := func(idx uint16, tag uint8) error {
		if int(idx) <= 0 || int(idx) >= len(cf.pool) || cf.pool[idx].tag != tag {
			return fmt.Errorf("constant pool index %d is not tag %d", idx, tag)
		}
		return nil
	}
	if err := check(cf.this, tagClass); err != nil {
		return fmt.Errorf("this_class: %w", err)
	}
	if cf.super != 0 {
		if err := check(cf.super, tagClass); err != nil {
			return fmt.Errorf("super_class: %w", err)
		}
	}
	for i, c := range cf.pool {
		switch c.tag {
		case tagClass, tagMethodType:
			if err := check(c.a, tagUTF8); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
		case tagNameAndType:
			if err := check(c.a, tagUTF8); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			if err := check(c.b, tagUTF8); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
		case tagFieldref, tagMethodref, tagInterfaceMethodref:
			if err := check(c.a, tagClass); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			if err := check(c.b, tagNameAndType); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
		case tagDynamic, tagInvokeDynamic:
			if err := check(c.b, tagNameAndType); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
		}
	}
	for _, m := range append(append([]member(nil), cf.fields...), cf.methods...) {
		if err := check(m.name, tagUTF8); err != nil {
			return fmt.Errorf("member name: %w", err)
		}
		if err := check(m.desc, tagUTF8); err != nil {
			return fmt.Errorf("member descriptor: %w", err)
		}
	}
	return nil
}

func (cf *ClassFile) utf8At(idx uint16) string {
	return cf.pool[idx].utf8
}

func (cf *ClassFile) classAt(idx uint16) string {
	return cf.pool[cf.pool[idx].a].utf8
}

// Name returns the internal name of the class.
func (cf *ClassFile) Name() string { return cf.classAt(cf.this) }

// SuperName returns the superclass name, or "" for java/lang/Object.
func (cf *ClassFile) SuperName() string {
	if cf.super == 0 {
		return ""
	}
	return cf.classAt(cf.super)
}

// InterfaceNames returns the directly implemented interfaces.
func (cf *ClassFile) InterfaceNames() []string {
	out := make([]string, 0, len(cf.interfaces))
	for _, idx := range cf.interfaces {
		out = append(out, cf.classAt(idx))
	}
	return out
}

// MemberSig is a member name and descriptor.
type MemberSig struct {
	Name string
	Desc string
}

// Fields returns the declared fields.
func (cf *ClassFile) Fields() []MemberSig { return cf.sigs(cf.fields) }

// Methods returns the declared methods.
func (cf *ClassFile) Methods() []MemberSig { return cf.sigs(cf.methods) }

func (cf *ClassFile) sigs(ms []member) []MemberSig {
	out := make([]MemberSig, 0, len(ms))
	for _, m := range ms {
		out = append(out, MemberSig{Name: cf.utf8At(m.name), Desc: cf.utf8At(m.desc)})
	}
	return out
}

func (cf *ClassFile) addUTF8(s string) (uint16, error) {
	if idx, ok := cf.utf8Index[s]; ok {
		return idx, nil
	}
	if len(s) > 0xFFFF {
		return 0, fmt.Errorf("constant too long (%d bytes)", len(s))
	}
	idx, err := cf.push(constant{tag: tagUTF8, utf8: s})
	if err != nil {
		return 0, err
	}
	cf.utf8Index[s] = idx
	return idx, nil
}

func (cf *ClassFile) addNameAndType(name, desc string) (uint16, error) {
	n, err := cf.addUTF8(name)
	if err != nil {
		return 0, err
	}
	d, err := cf.addUTF8(desc)
	if err != nil {
		return 0, err
	}
	key := [2]uint16{n, d}
	if idx, ok := cf.natIndex[key]; ok {
		return idx, nil
	}
	idx, err := cf.push(constant{tag: tagNameAndType, a: n, b: d})
	if err != nil {
		return 0, err
	}
	cf.natIndex[key] = idx
	return idx, nil
}

func (cf *ClassFile) push(c constant) (uint16, error) {
	if len(cf.pool) >= 0xFFFF {
		return 0, fmt.Errorf("constant pool overflow")
	}
	cf.pool = append(cf.pool, c)
	return uint16(len(cf.pool) - 1), nil
}

// Bytes encodes the class file.
func (cf *ClassFile) Bytes() []byte {
	out := make([]byte, 0, 1024)
	out = binary.BigEndian.AppendUint32(out, classMagic)
	out = binary.BigEndian.AppendUint16(out, cf.minor)
	out = binary.BigEndian.AppendUint16(out, cf.major)
	out = binary.BigEndian.AppendUint16(out, uint16(len(cf.pool)))
	for i := 1; i < len(cf.pool); i++ {
		c := cf.pool[i]
		out = append(out, c.tag)
		switch c.tag {
		case tagUTF8:
			out = binary.BigEndian.AppendUint16(out, uint16(len(c.utf8)))
			out = append(out, c.utf8...)
		case tagInteger, tagFloat:
			out = append(out, c.raw...)
		case tagLong, tagDouble:
			out = append(out, c.raw...)
			i++
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			out = binary.BigEndian.AppendUint16(out, c.a)
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			out = binary.BigEndian.AppendUint16(out, c.a)
			out = binary.BigEndian.AppendUint16(out, c.b)
		case tagMethodHandle:
			out = append(out, c.kind)
			out = binary.BigEndian.AppendUint16(out, c.a)
		}
	}
	out = binary.BigEndian.AppendUint16(out, cf.access)
	out = binary.BigEndian.AppendUint16(out, cf.this)
	out = binary.BigEndian.AppendUint16(out, cf.super)
	out = binary.BigEndian.AppendUint16(out, uint16(len(cf.interfaces)))
	for _, idx := range cf.interfaces {
		out = binary.BigEndian.AppendUint16(out, idx)
	}
	for _, ms := range [][]member{cf.fields, cf.methods} {
		out = binary.BigEndian.AppendUint16(out, uint16(len(ms)))
		for _, m := range ms {
			out = binary.BigEndian.AppendUint16(out, m.access)
			out = binary.BigEndian.AppendUint16(out, m.name)
			out = binary.BigEndian.AppendUint16(out, m.desc)
			out = append(out, m.attrs...)
		}
	}
	return append(out, cf.attrs...)
}
