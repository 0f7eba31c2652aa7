package javaser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Standard errors
var (
	ErrUnknownType = errors.New("javaser: unknown type")
	ErrCorrupt     = errors.New("javaser: corrupt object graph")
)

// UnknownTypeError reports a construct the decoder has no rule for
type UnknownTypeError struct {
	TypeName string
	Reason   string
}

func (e *UnknownTypeError) Error() string {
	if e.TypeName == "" {
		return fmt.Sprintf("unknown type: %s", e.Reason)
	}
	return fmt.Sprintf("unknown type %s: %s", e.TypeName, e.Reason)
}

// Is lets callers match on ErrUnknownType
func (e *UnknownTypeError) Is(target error) bool { return target == ErrUnknownType }

// CorruptGraphError reports a truncated or inconsistent stream
type CorruptGraphError struct {
	Offset int
	Reason string
}

func (e *CorruptGraphError) Error() string {
	return fmt.Sprintf("corrupt object graph at offset %d: %s", e.Offset, e.Reason)
}

// Is lets callers match on ErrCorrupt
func (e *CorruptGraphError) Is(target error) bool { return target == ErrCorrupt }

// Value is any decoded stream value: nil, bool, int8, Char, int16, int32,
// int64, float32, float64, string, *Object, *Array, *Enum, *ClassDesc,
// *ClassRef or BlockData
type Value = any

// Char is a Java UTF-16 code unit
type Char uint16

// BlockData is raw bytes written by a custom writeObject method
type BlockData []byte

// FieldDesc describes one serializable field of a class
type FieldDesc struct {
	TypeCode  byte
	Name      string
	ClassName string // JVM signature for object and array fields
}

// ClassDesc is a serialized class descriptor
type ClassDesc struct {
	Name             string
	SerialVersionUID int64
	Flags            byte
	Fields           []FieldDesc
	Annotations      []Value
	Super            *ClassDesc
	Proxy            bool
	Interfaces       []string
}

// Hierarchy returns the class chain from the topmost superclass down to c
func (c *ClassDesc) Hierarchy() []*ClassDesc {
	var chain []*ClassDesc
	seen := make(map[*ClassDesc]bool)
	for cur := c; cur != nil && !seen[cur]; cur = cur.Super {
		seen[cur] = true
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// ClassData holds the field values one class in the hierarchy contributed
type ClassData struct {
	Class       *ClassDesc
	Values      map[string]Value
	Annotations []Value
}

// Object is a deserialized object instance
type Object struct {
	Class *ClassDesc
	Data  []ClassData // superclass first
}

// ClassName returns the object's runtime class name
func (o *Object) ClassName() string {
	if o == nil || o.Class == nil {
		return ""
	}
	return o.Class.Name
}

// Field looks up a field by name, most-derived class first
func (o *Object) Field(name string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	for i := len(o.Data) - 1; i >= 0; i-- {
		if v, ok := o.Data[i].Values[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// StringField returns a string-valued field
func (o *Object) StringField(name string) (string, bool) {
	v, ok := o.Field(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntField returns an integral field widened to int64
func (o *Object) IntField(name string) (int64, bool) {
	v, ok := o.Field(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case Char:
		return int64(n), true
	}
	return 0, false
}

// ObjectField returns an object-valued field
func (o *Object) ObjectField(name string) (*Object, bool) {
	v, ok := o.Field(name)
	if !ok {
		return nil, false
	}
	obj, ok := v.(*Object)
	return obj, ok && obj != nil
}

// FieldNames returns every field name in hierarchy order. A name shadowed
// by a subclass is listed once, at its first position.
func (o *Object) FieldNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, d := range o.Data {
		for _, f := range d.Class.Fields {
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			names = append(names, f.Name)
		}
	}
	return names
}

// String renders the object shallowly: nested objects show only their class
func (o *Object) String() string {
	if o == nil {
		return "null"
	}
	var b strings.Builder
	b.WriteString(o.ClassName())
	b.WriteByte('{')
	for i, name := range o.FieldNames() {
		if i > 0 {
			b.WriteString(", ")
		}
		v, _ := o.Field(name)
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(FormatScalar(v))
	}
	b.WriteByte('}')
	return b.String()
}

// Array is a deserialized array
type Array struct {
	Class    *ClassDesc
	Elements []Value
}

// Enum is a deserialized enum constant
type Enum struct {
	Class    *ClassDesc
	Constant string
}

// ClassRef is a serialized java.lang.Class instance
type ClassRef struct {
	Desc *ClassDesc
}

// FormatScalar renders a value without descending into objects
func FormatScalar(v Value) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case Char:
		return string(rune(x))
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", x)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case *Object:
		if x == nil {
			return "null"
		}
		return "<" + x.ClassName() + ">"
	case *Array:
		return fmt.Sprintf("<%s[%d]>", x.Class.Name, len(x.Elements))
	case *Enum:
		return x.Constant
	case *ClassRef:
		return "class " + x.Desc.Name
	case *ClassDesc:
		return "classdesc " + x.Name
	case BlockData:
		return fmt.Sprintf("<%d bytes>", len(x))
	}
	return fmt.Sprintf("%v", v)
}
