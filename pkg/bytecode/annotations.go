package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Attributes whose content is a list of annotations or an element value.
const (
	attrVisibleAnnotations            = "RuntimeVisibleAnnotations"
	attrInvisibleAnnotations          = "RuntimeInvisibleAnnotations"
	attrVisibleParameterAnnotations   = "RuntimeVisibleParameterAnnotations"
	attrInvisibleParameterAnnotations = "RuntimeInvisibleParameterAnnotations"
	attrAnnotationDefault             = "AnnotationDefault"
)

// remapAnnotations rewrites the type descriptors referenced from the
// annotation attributes in table: annotation types, class-valued elements
// and enum types. Element names and enum constant names are left alone.
// The returned table is a copy when anything changed; indexes are patched in
// place so attribute lengths never change.
func (cf *ClassFile) remapAnnotations(table []byte, res Resolver) ([]byte, error) {
	if len(table) < 2 {
		return table, nil
	}
	p := &annotationPatcher{cf: cf, res: res, buf: table}
	count := int(binary.BigEndian.Uint16(table))
	off := 2
	for i := 0; i < count; i++ {
		if off+6 > len(table) {
			return nil, errTruncated
		}
		name := cf.poolUTF8(binary.BigEndian.Uint16(table[off:]))
		length := int(binary.BigEndian.Uint32(table[off+2:]))
		start := off + 6
		end := start + length
		if end > len(table) {
			return nil, errTruncated
		}
		p.off = start
		switch name {
		case attrVisibleAnnotations, attrInvisibleAnnotations:
			p.annotations()
		case attrVisibleParameterAnnotations, attrInvisibleParameterAnnotations:
			params := int(p.u1())
			for j := 0; j < params && p.err == nil; j++ {
				p.annotations()
			}
		case attrAnnotationDefault:
			p.elementValue()
		}
		if p.err != nil {
			return nil, fmt.Errorf("%s: %w", name, p.err)
		}
		if p.off > end {
			return nil, fmt.Errorf("%s: %w", name, errTruncated)
		}
		off = end
	}
	return p.buf, nil
}

// poolUTF8 returns the UTF8 constant at idx, or "" when idx is not one.
func (cf *ClassFile) poolUTF8(idx uint16) string {
	if int(idx) <= 0 || int(idx) >= len(cf.pool) || cf.pool[idx].tag != tagUTF8 {
		return ""
	}
	return cf.pool[idx].utf8
}

type annotationPatcher struct {
	cf     *ClassFile
	res    Resolver
	buf    []byte
	copied bool
	off    int
	err    error
}

func (p *annotationPatcher) u1() uint8 {
	if p.err != nil || p.off+1 > len(p.buf) {
		p.err = errTruncated
		return 0
	}
	v := p.buf[p.off]
	p.off++
	return v
}

func (p *annotationPatcher) u2() uint16 {
	if p.err != nil || p.off+2 > len(p.buf) {
		p.err = errTruncated
		return 0
	}
	v := binary.BigEndian.Uint16(p.buf[p.off:])
	p.off += 2
	return v
}

// desc remaps the descriptor whose index sits at the current offset.
func (p *annotationPatcher) desc() {
	at := p.off
	idx := p.u2()
	if p.err != nil {
		return
	}
	old := p.cf.poolUTF8(idx)
	if old == "" {
		p.err = fmt.Errorf("constant pool index %d is not a descriptor", idx)
		return
	}
	mapped := p.res.Desc(old)
	if mapped == old {
		return
	}
	next, err := p.cf.addUTF8(mapped)
	if err != nil {
		p.err = err
		return
	}
	if !p.copied {
		p.buf = append([]byte(nil), p.buf...)
		p.copied = true
	}
	binary.BigEndian.PutUint16(p.buf[at:], next)
}

func (p *annotationPatcher) annotations() {
	n := int(p.u2())
	for i := 0; i < n && p.err == nil; i++ {
		p.annotation()
	}
}

func (p *annotationPatcher) annotation() {
	p.desc()
	pairs := int(p.u2())
	for i := 0; i < pairs && p.err == nil; i++ {
		p.u2()
		p.elementValue()
	}
}

func (p *annotationPatcher) elementValue() {
	switch tag := p.u1(); tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		p.u2()
	case 'e':
		p.desc()
		p.u2()
	case 'c':
		p.desc()
	case '@':
		p.annotation()
	case '[':
		n := int(p.u2())
		for i := 0; i < n && p.err == nil; i++ {
			p.elementValue()
		}
	default:
		if p.err == nil {
			p.err = fmt.Errorf("unknown element value tag %q", tag)
		}
	}
}
