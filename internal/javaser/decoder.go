// Package javaser reads the Java object serialization stream format
// (protocol version 2, stream version 5) into a generic object graph.
package javaser

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

const (
	streamMagic   = 0xaced
	streamVersion = 5

	tcNull           = 0x70
	tcReference      = 0x71
	tcClassDesc      = 0x72
	tcObject         = 0x73
	tcString         = 0x74
	tcArray          = 0x75
	tcClass          = 0x76
	tcBlockData      = 0x77
	tcEndBlockData   = 0x78
	tcReset          = 0x79
	tcBlockDataLong  = 0x7a
	tcException      = 0x7b
	tcLongString     = 0x7c
	tcProxyClassDesc = 0x7d
	tcEnum           = 0x7e

	baseWireHandle = 0x7e0000

	scWriteMethod    = 0x01
	scSerializable   = 0x02
	scExternalizable = 0x04
	scBlockData      = 0x08
	scEnum           = 0x10

	maxDepth = 512
)

// Decode reads the first object from a serialization stream
func Decode(raw []byte) (Value, error) {
	d := &decoder{buf: raw}

	magic, err := d.u16()
	if err != nil {
		return nil, err
	}
	if magic != streamMagic {
		return nil, d.corruptAt(0, fmt.Sprintf("bad stream magic 0x%04x", magic))
	}
	version, err := d.u16()
	if err != nil {
		return nil, err
	}
	if version != streamVersion {
		return nil, d.corruptAt(2, fmt.Sprintf("unsupported stream version %d", version))
	}

	return d.content()
}

// DecodeObject reads the first stream value and requires it to be an object
func DecodeObject(raw []byte) (*Object, error) {
	v, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok || obj == nil {
		return nil, &UnknownTypeError{Reason: fmt.Sprintf("stream root is %T, not an object", v)}
	}
	return obj, nil
}

type decoder struct {
	buf     []byte
	pos     int
	handles []Value
	depth   int
}

func (d *decoder) corruptAt(offset int, reason string) error {
	return &CorruptGraphError{Offset: offset, Reason: reason}
}

func (d *decoder) corrupt(format string, args ...any) error {
	return d.corruptAt(d.pos, fmt.Sprintf(format, args...))
}

// =============================================================================
// Primitive reads
// =============================================================================

func (d *decoder) need(n int) error {
	if n < 0 || len(d.buf)-d.pos < n {
		return d.corrupt("unexpected end of stream: need %d bytes, have %d", n, len(d.buf)-d.pos)
	}
	return nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) u8() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) peek() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	return d.buf[d.pos], nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *decoder) utf() (string, error) {
	n, err := d.u16()
	if err != nil {
		return "", err
	}
	return d.modifiedUTF8(int(n))
}

func (d *decoder) longUTF() (string, error) {
	n, err := d.u64()
	if err != nil {
		return "", err
	}
	if n > uint64(len(d.buf)-d.pos) {
		return "", d.corrupt("long string length %d exceeds remaining input", n)
	}
	return d.modifiedUTF8(int(n))
}

// modifiedUTF8 decodes Java's modified UTF-8: NUL is two bytes and
// supplementary characters are encoded as surrogate pairs
func (d *decoder) modifiedUTF8(n int) (string, error) {
	start := d.pos
	b, err := d.bytes(n)
	if err != nil {
		return "", err
	}

	units := make([]uint16, 0, n)
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xe0 == 0xc0:
			if i+1 >= len(b) || b[i+1]&0xc0 != 0x80 {
				return "", d.corruptAt(start+i, "malformed modified UTF-8")
			}
			units = append(units, uint16(c&0x1f)<<6|uint16(b[i+1]&0x3f))
			i += 2
		case c&0xf0 == 0xe0:
			if i+2 >= len(b) || b[i+1]&0xc0 != 0x80 || b[i+2]&0xc0 != 0x80 {
				return "", d.corruptAt(start+i, "malformed modified UTF-8")
			}
			units = append(units, uint16(c&0x0f)<<12|uint16(b[i+1]&0x3f)<<6|uint16(b[i+2]&0x3f))
			i += 3
		default:
			return "", d.corruptAt(start+i, "malformed modified UTF-8")
		}
	}

	return string(utf16.Decode(units)), nil
}

// =============================================================================
// Handles
// =============================================================================

func (d *decoder) newHandle(v Value) int {
	d.handles = append(d.handles, v)
	return len(d.handles) - 1
}

func (d *decoder) setHandle(h int, v Value) {
	d.handles[h] = v
}

func (d *decoder) reference() (Value, error) {
	h, err := d.u32()
	if err != nil {
		return nil, err
	}
	idx := int64(h) - baseWireHandle
	if idx < 0 || idx >= int64(len(d.handles)) {
		return nil, d.corrupt("invalid handle 0x%08x", h)
	}
	return d.handles[idx], nil
}

// =============================================================================
// Grammar
// =============================================================================

// content reads one top-level element: an object or a block of data
func (d *decoder) content() (Value, error) {
	tag, err := d.peek()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tcBlockData, tcBlockDataLong:
		return d.blockData()
	}
	return d.object()
}

func (d *decoder) object() (Value, error) {
	d.depth++
	defer func() { d.depth-- }()
	if d.depth > maxDepth {
		return nil, d.corrupt("object graph nested deeper than %d", maxDepth)
	}

	tag, err := d.u8()
	if err != nil {
		return nil, err
	}

	switch tag {
	case tcNull:
		return nil, nil
	case tcReference:
		return d.reference()
	case tcObject:
		return d.newObject()
	case tcString:
		return d.newString(false)
	case tcLongString:
		return d.newString(true)
	case tcArray:
		return d.newArray()
	case tcClass:
		return d.newClass()
	case tcEnum:
		return d.newEnum()
	case tcClassDesc:
		return d.newClassDesc()
	case tcProxyClassDesc:
		return d.newProxyClassDesc()
	case tcReset:
		d.handles = d.handles[:0]
		return d.object()
	case tcException:
		return nil, &UnknownTypeError{Reason: "stream contains a serialized exception"}
	}

	return nil, d.corruptAt(d.pos-1, fmt.Sprintf("unexpected tag 0x%02x", tag))
}

func (d *decoder) blockData() (BlockData, error) {
	tag, err := d.u8()
	if err != nil {
		return nil, err
	}

	var n int
	switch tag {
	case tcBlockData:
		size, err := d.u8()
		if err != nil {
			return nil, err
		}
		n = int(size)
	case tcBlockDataLong:
		size, err := d.u32()
		if err != nil {
			return nil, err
		}
		if int64(size) > int64(len(d.buf)-d.pos) {
			return nil, d.corrupt("block data length %d exceeds remaining input", size)
		}
		n = int(size)
	default:
		return nil, d.corruptAt(d.pos-1, fmt.Sprintf("expected block data, got tag 0x%02x", tag))
	}

	b, err := d.bytes(n)
	if err != nil {
		return nil, err
	}
	out := make(BlockData, n)
	copy(out, b)
	return out, nil
}

// annotations reads contents up to and including TC_ENDBLOCKDATA
func (d *decoder) annotations() ([]Value, error) {
	var out []Value
	for {
		tag, err := d.peek()
		if err != nil {
			return nil, err
		}
		if tag == tcEndBlockData {
			d.pos++
			return out, nil
		}
		v, err := d.content()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func (d *decoder) classDesc() (*ClassDesc, error) {
	d.depth++
	defer func() { d.depth-- }()
	if d.depth > maxDepth {
		return nil, d.corrupt("class hierarchy nested deeper than %d", maxDepth)
	}

	tag, err := d.peek()
	if err != nil {
		return nil, err
	}

	switch tag {
	case tcNull:
		d.pos++
		return nil, nil
	case tcReference:
		d.pos++
		v, err := d.reference()
		if err != nil {
			return nil, err
		}
		desc, ok := v.(*ClassDesc)
		if !ok {
			return nil, d.corrupt("handle refers to %T, expected class descriptor", v)
		}
		return desc, nil
	case tcClassDesc:
		d.pos++
		return d.newClassDesc()
	case tcProxyClassDesc:
		d.pos++
		return d.newProxyClassDesc()
	}

	return nil, d.corrupt("expected class descriptor, got tag 0x%02x", tag)
}

func (d *decoder) newClassDesc() (*ClassDesc, error) {
	name, err := d.utf()
	if err != nil {
		return nil, err
	}
	suid, err := d.u64()
	if err != nil {
		return nil, err
	}

	desc := &ClassDesc{Name: name, SerialVersionUID: int64(suid)}
	d.newHandle(desc)

	if desc.Flags, err = d.u8(); err != nil {
		return nil, err
	}

	count, err := d.u16()
	if err != nil {
		return nil, err
	}
	desc.Fields = make([]FieldDesc, 0, count)
	for i := 0; i < int(count); i++ {
		f, err := d.fieldDesc(name)
		if err != nil {
			return nil, err
		}
		desc.Fields = append(desc.Fields, f)
	}

	if desc.Annotations, err = d.annotations(); err != nil {
		return nil, err
	}
	if desc.Super, err = d.superDesc(desc); err != nil {
		return nil, err
	}

	return desc, nil
}

// superDesc reads the superclass of desc. A back-reference may name desc or
// one of its subclasses under construction, which would make the chain cyclic.
func (d *decoder) superDesc(desc *ClassDesc) (*ClassDesc, error) {
	super, err := d.classDesc()
	if err != nil {
		return nil, err
	}
	for cur := super; cur != nil; cur = cur.Super {
		if cur == desc {
			return nil, d.corrupt("cyclic class hierarchy at %s", desc.Name)
		}
	}
	return super, nil
}

func (d *decoder) fieldDesc(owner string) (FieldDesc, error) {
	code, err := d.u8()
	if err != nil {
		return FieldDesc{}, err
	}
	name, err := d.utf()
	if err != nil {
		return FieldDesc{}, err
	}
	f := FieldDesc{TypeCode: code, Name: name}

	switch code {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
	case 'L', '[':
		v, err := d.object()
		if err != nil {
			return FieldDesc{}, err
		}
		sig, ok := v.(string)
		if !ok {
			return FieldDesc{}, d.corrupt("field %s.%s type signature is %T", owner, name, v)
		}
		f.ClassName = sig
	default:
		return FieldDesc{}, &UnknownTypeError{
			TypeName: owner,
			Reason:   fmt.Sprintf("field %s has unknown type code %q", name, code),
		}
	}

	return f, nil
}

func (d *decoder) newProxyClassDesc() (*ClassDesc, error) {
	desc := &ClassDesc{Proxy: true}
	d.newHandle(desc)

	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	if int64(count) > int64(len(d.buf)-d.pos) {
		return nil, d.corrupt("proxy interface count %d exceeds remaining input", count)
	}
	for i := 0; i < int(count); i++ {
		iface, err := d.utf()
		if err != nil {
			return nil, err
		}
		desc.Interfaces = append(desc.Interfaces, iface)
	}
	if len(desc.Interfaces) > 0 {
		desc.Name = "$Proxy(" + desc.Interfaces[0] + ")"
	}

	if desc.Annotations, err = d.annotations(); err != nil {
		return nil, err
	}
	if desc.Super, err = d.superDesc(desc); err != nil {
		return nil, err
	}

	return desc, nil
}

func (d *decoder) newObject() (*Object, error) {
	desc, err := d.classDesc()
	if err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, d.corrupt("object without class descriptor")
	}

	// Register before reading fields so self-references resolve
	obj := &Object{Class: desc}
	d.newHandle(obj)

	for _, cls := range desc.Hierarchy() {
		data, err := d.classData(cls)
		if err != nil {
			return nil, err
		}
		obj.Data = append(obj.Data, data)
	}

	return obj, nil
}

func (d *decoder) classData(cls *ClassDesc) (ClassData, error) {
	data := ClassData{Class: cls, Values: make(map[string]Value, len(cls.Fields))}
	var err error

	switch {
	case cls.Flags&scExternalizable != 0:
		if cls.Flags&scBlockData == 0 {
			return data, &UnknownTypeError{
				TypeName: cls.Name,
				Reason:   "externalizable class written without block data mode",
			}
		}
		data.Annotations, err = d.annotations()
		return data, err

	case cls.Flags&scSerializable != 0:
		for _, f := range cls.Fields {
			v, err := d.fieldValue(cls, f)
			if err != nil {
				return data, err
			}
			data.Values[f.Name] = v
		}
		if cls.Flags&scWriteMethod != 0 {
			data.Annotations, err = d.annotations()
		}
		return data, err
	}

	// Proxy descriptors and non-serializable superclasses carry no data
	return data, nil
}

func (d *decoder) fieldValue(cls *ClassDesc, f FieldDesc) (Value, error) {
	switch f.TypeCode {
	case 'B':
		b, err := d.u8()
		return int8(b), err
	case 'C':
		c, err := d.u16()
		return Char(c), err
	case 'D':
		u, err := d.u64()
		return math.Float64frombits(u), err
	case 'F':
		u, err := d.u32()
		return math.Float32frombits(u), err
	case 'I':
		u, err := d.u32()
		return int32(u), err
	case 'J':
		u, err := d.u64()
		return int64(u), err
	case 'S':
		u, err := d.u16()
		return int16(u), err
	case 'Z':
		b, err := d.u8()
		return b != 0, err
	case 'L', '[':
		return d.object()
	}
	return nil, &UnknownTypeError{TypeName: cls.Name, Reason: fmt.Sprintf("field %s has unknown type code %q", f.Name, f.TypeCode)}
}

func (d *decoder) newString(long bool) (string, error) {
	h := d.newHandle(nil)
	var (
		s   string
		err error
	)
	if long {
		s, err = d.longUTF()
	} else {
		s, err = d.utf()
	}
	if err != nil {
		return "", err
	}
	d.setHandle(h, s)
	return s, nil
}

func (d *decoder) newArray() (*Array, error) {
	desc, err := d.classDesc()
	if err != nil {
		return nil, err
	}
	if desc == nil || len(desc.Name) < 2 || desc.Name[0] != '[' {
		return nil, d.corrupt("array with invalid class descriptor")
	}

	arr := &Array{Class: desc}
	d.newHandle(arr)

	size, err := d.u32()
	if err != nil {
		return nil, err
	}
	// Every element occupies at least one byte
	if int64(size) > int64(len(d.buf)-d.pos) {
		return nil, d.corrupt("array length %d exceeds remaining input", size)
	}

	elem := FieldDesc{TypeCode: desc.Name[1], Name: "element"}
	arr.Elements = make([]Value, 0, size)
	for i := 0; i < int(size); i++ {
		v, err := d.fieldValue(desc, elem)
		if err != nil {
			return nil, err
		}
		arr.Elements = append(arr.Elements, v)
	}

	return arr, nil
}

func (d *decoder) newClass() (*ClassRef, error) {
	desc, err := d.classDesc()
	if err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, d.corrupt("class object without descriptor")
	}
	ref := &ClassRef{Desc: desc}
	d.newHandle(ref)
	return ref, nil
}

func (d *decoder) newEnum() (*Enum, error) {
	desc, err := d.classDesc()
	if err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, d.corrupt("enum without class descriptor")
	}

	e := &Enum{Class: desc}
	d.newHandle(e)

	v, err := d.object()
	if err != nil {
		return nil, err
	}
	name, ok := v.(string)
	if !ok {
		return nil, d.corrupt("enum constant name is %T", v)
	}
	e.Constant = name
	return e, nil
}
