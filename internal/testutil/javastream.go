package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Java serialization flags used when building test streams
const (
	FlagWriteMethod    byte = 0x01
	FlagSerializable   byte = 0x02
	FlagExternalizable byte = 0x04
	FlagBlockData      byte = 0x08
)

// JClass describes a class for JavaStream
type JClass struct {
	Name   string
	UID    int64
	Flags  byte
	Fields []JField
	Super  *JClass
}

// JField describes one field. Type is the JVM type code; Sig is the
// signature for 'L' and '[' fields.
type JField struct {
	Name string
	Type byte
	Sig  string
}

// JObject is an instance to serialize. Values are keyed by field name
// across the whole hierarchy; Annotation is written after the fields of
// the most-derived class when it has FlagWriteMethod.
type JObject struct {
	Class      *JClass
	Values     map[string]any
	Annotation []any
}

// JArray is an array instance; Sig is the array class name, e.g. "[I"
type JArray struct {
	Sig      string
	Elements []any
}

// JEnum is an enum constant
type JEnum struct {
	Class    *JClass
	Constant string
}

// Serializable returns a plain serializable class with the given fields
func Serializable(name string, fields ...JField) *JClass {
	return &JClass{Name: name, UID: 1, Flags: FlagSerializable, Fields: fields}
}

// StringField is a java.lang.String field descriptor
func StringField(name string) JField {
	return JField{Name: name, Type: 'L', Sig: "Ljava/lang/String;"}
}

// ObjectField is a java.lang.Object field descriptor
func ObjectField(name string) JField {
	return JField{Name: name, Type: 'L', Sig: "Ljava/lang/Object;"}
}

// JavaStream builds Java serialization streams for tests. Class
// descriptors and objects are written once and back-referenced afterwards,
// so shared and cyclic graphs can be expressed with pointers.
type JavaStream struct {
	buf     bytes.Buffer
	next    uint32
	classes map[*JClass]uint32
	objects map[any]uint32
	arrays  map[string]*JClass
}

// NewJavaStream writes the stream header
func NewJavaStream() *JavaStream {
	s := &JavaStream{
		next:    0x7e0000,
		classes: make(map[*JClass]uint32),
		objects: make(map[any]uint32),
		arrays:  make(map[string]*JClass),
	}
	s.u16(0xaced)
	s.u16(5)
	return s
}

// Write appends a value to the stream
func (s *JavaStream) Write(v any) *JavaStream {
	s.value(v)
	return s
}

// Block appends a block data record
func (s *JavaStream) Block(b []byte) *JavaStream {
	s.block(b)
	return s
}

// Bytes returns the encoded stream
func (s *JavaStream) Bytes() []byte {
	return s.buf.Bytes()
}

// EncodeJava serializes a single root value
func EncodeJava(v any) []byte {
	return NewJavaStream().Write(v).Bytes()
}

func (s *JavaStream) handle() uint32 {
	h := s.next
	s.next++
	return h
}

func (s *JavaStream) u8(b byte)    { s.buf.WriteByte(b) }
func (s *JavaStream) u16(v uint16) { _ = binary.Write(&s.buf, binary.BigEndian, v) }
func (s *JavaStream) u32(v uint32) { _ = binary.Write(&s.buf, binary.BigEndian, v) }
func (s *JavaStream) u64(v uint64) { _ = binary.Write(&s.buf, binary.BigEndian, v) }

func (s *JavaStream) utf(str string) {
	s.u16(uint16(len(str)))
	s.buf.WriteString(str)
}

func (s *JavaStream) ref(h uint32) {
	s.u8(0x71)
	s.u32(h)
}

func (s *JavaStream) block(b []byte) {
	if len(b) <= 0xff {
		s.u8(0x77)
		s.u8(byte(len(b)))
	} else {
		s.u8(0x7a)
		s.u32(uint32(len(b)))
	}
	s.buf.Write(b)
}

func (s *JavaStream) classDesc(c *JClass) {
	if c == nil {
		s.u8(0x70)
		return
	}
	if h, ok := s.classes[c]; ok {
		s.ref(h)
		return
	}
	s.u8(0x72)
	s.utf(c.Name)
	s.u64(uint64(c.UID))
	s.classes[c] = s.handle()
	s.u8(c.Flags)
	s.u16(uint16(len(c.Fields)))
	for _, f := range c.Fields {
		s.u8(f.Type)
		s.utf(f.Name)
		if f.Type == 'L' || f.Type == '[' {
			s.value(f.Sig)
		}
	}
	s.u8(0x78) // no class annotation
	s.classDesc(c.Super)
}

func (s *JavaStream) value(v any) {
	switch x := v.(type) {
	case nil:
		s.u8(0x70)
	case string:
		s.u8(0x74)
		s.handle()
		s.utf(x)
	case *JObject:
		if h, ok := s.objects[x]; ok {
			s.ref(h)
			return
		}
		s.object(x)
	case *JArray:
		if h, ok := s.objects[x]; ok {
			s.ref(h)
			return
		}
		s.array(x)
	case *JEnum:
		s.u8(0x7e)
		s.classDesc(x.Class)
		s.handle()
		s.value(x.Constant)
	default:
		panic(fmt.Sprintf("testutil: cannot serialize %T as an object", v))
	}
}

func (s *JavaStream) object(o *JObject) {
	s.u8(0x73)
	s.classDesc(o.Class)
	s.objects[o] = s.handle()

	var chain []*JClass
	for c := o.Class; c != nil; c = c.Super {
		chain = append([]*JClass{c}, chain...)
	}
	for _, c := range chain {
		if c.Flags&FlagExternalizable != 0 {
			s.annotation(o.Annotation)
			continue
		}
		for _, f := range c.Fields {
			s.field(f.Type, o.Values[f.Name])
		}
		if c.Flags&FlagWriteMethod != 0 {
			s.annotation(o.Annotation)
		}
	}
}

func (s *JavaStream) annotation(items []any) {
	for _, item := range items {
		if b, ok := item.([]byte); ok {
			s.block(b)
			continue
		}
		s.value(item)
	}
	s.u8(0x78)
}

func (s *JavaStream) array(a *JArray) {
	s.u8(0x75)
	cls, ok := s.arrays[a.Sig]
	if !ok {
		cls = &JClass{Name: a.Sig, UID: 1, Flags: FlagSerializable}
		s.arrays[a.Sig] = cls
	}
	s.classDesc(cls)
	s.objects[a] = s.handle()
	s.u32(uint32(len(a.Elements)))
	for _, e := range a.Elements {
		s.field(a.Sig[1], e)
	}
}

func (s *JavaStream) field(code byte, v any) {
	switch code {
	case 'B':
		s.u8(byte(toInt64(v)))
	case 'C':
		s.u16(uint16(toInt64(v)))
	case 'D':
		f, _ := v.(float64)
		s.u64(math.Float64bits(f))
	case 'F':
		f, _ := v.(float32)
		s.u32(math.Float32bits(f))
	case 'I':
		s.u32(uint32(int32(toInt64(v))))
	case 'J':
		s.u64(uint64(toInt64(v)))
	case 'S':
		s.u16(uint16(int16(toInt64(v))))
	case 'Z':
		if b, _ := v.(bool); b {
			s.u8(1)
		} else {
			s.u8(0)
		}
	default:
		s.value(v)
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint16:
		return int64(n)
	}
	return 0
}
