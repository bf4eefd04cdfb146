package bytecode

import (
	"fmt"
	"math"
	"strconv"
)

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
)

// ConstantPoolEntry is a value that occupies a constant pool slot. Two entries
// are equal when their tags and payloads are equal; the pool deduplicates on
// that equality, not on pointer identity.
type ConstantPoolEntry interface {
	Tag() uint8
	String() string

	// key identifies the entry's value for deduplication.
	key() entryKey
	// components are the entries this one refers to by index.
	components() []ConstantPoolEntry
	writeInfo(w *Writer, pool *ClassConstantPool) error
}

type entryKey struct {
	tag  uint8
	text string
	bits uint64
}

// joinKey concatenates two strings unambiguously.
func joinKey(a, b string) string {
	return strconv.Itoa(len(a)) + ":" + a + b
}

func utf8Text(u *UTF8) string {
	if u == nil {
		return ""
	}
	return u.Value
}

// slotWidth is the number of pool slots the entry occupies.
func slotWidth(e ConstantPoolEntry) int {
	switch e.Tag() {
	case TagLong, TagDouble:
		return 2
	}
	return 1
}

// isNilEntry reports whether e is nil, including a typed nil pointer.
func isNilEntry(e ConstantPoolEntry) bool {
	switch v := e.(type) {
	case nil:
		return true
	case *UTF8:
		return v == nil
	case *Integer:
		return v == nil
	case *Float:
		return v == nil
	case *Long:
		return v == nil
	case *Double:
		return v == nil
	case *Class:
		return v == nil
	case *String:
		return v == nil
	case *NameAndType:
		return v == nil
	case *FieldRef:
		return v == nil
	case *MethodRef:
		return v == nil
	case *InterfaceMethodRef:
		return v == nil
	}
	return false
}

func describeEntry(e ConstantPoolEntry) string {
	if isNilEntry(e) {
		return "<nil>"
	}
	return e.String()
}

type UTF8 struct {
	Value string
}

func NewUTF8(s string) *UTF8 { return &UTF8{Value: s} }

func (c *UTF8) Tag() uint8                      { return TagUtf8 }
func (c *UTF8) String() string                  { return "Utf8 " + strconv.Quote(c.Value) }
func (c *UTF8) key() entryKey                   { return entryKey{tag: TagUtf8, text: c.Value} }
func (c *UTF8) components() []ConstantPoolEntry { return nil }

func (c *UTF8) writeInfo(w *Writer, _ *ClassConstantPool) error {
	data := encodeMUTF8(c.Value)
	if err := checkCount("utf8 length", len(data), math.MaxUint16); err != nil {
		return err
	}
	w.U8(TagUtf8)
	w.U16(uint16(len(data)))
	w.Write(data)
	return nil
}

type Integer struct {
	Value int32
}

func NewInteger(v int32) *Integer { return &Integer{Value: v} }

func (c *Integer) Tag() uint8                      { return TagInteger }
func (c *Integer) String() string                  { return fmt.Sprintf("Integer %d", c.Value) }
func (c *Integer) key() entryKey                   { return entryKey{tag: TagInteger, bits: uint64(uint32(c.Value))} }
func (c *Integer) components() []ConstantPoolEntry { return nil }

func (c *Integer) writeInfo(w *Writer, _ *ClassConstantPool) error {
	w.U8(TagInteger)
	w.U32(uint32(c.Value))
	return nil
}

// Float compares by bit pattern, so NaN payloads and signed zeros stay distinct.
type Float struct {
	Value float32
}

func NewFloat(v float32) *Float { return &Float{Value: v} }

func (c *Float) Tag() uint8     { return TagFloat }
func (c *Float) String() string { return fmt.Sprintf("Float %g", c.Value) }
func (c *Float) key() entryKey {
	return entryKey{tag: TagFloat, bits: uint64(math.Float32bits(c.Value))}
}
func (c *Float) components() []ConstantPoolEntry { return nil }

func (c *Float) writeInfo(w *Writer, _ *ClassConstantPool) error {
	w.U8(TagFloat)
	w.U32(math.Float32bits(c.Value))
	return nil
}

type Long struct {
	Value int64
}

func NewLong(v int64) *Long { return &Long{Value: v} }

func (c *Long) Tag() uint8                      { return TagLong }
func (c *Long) String() string                  { return fmt.Sprintf("Long %d", c.Value) }
func (c *Long) key() entryKey                   { return entryKey{tag: TagLong, bits: uint64(c.Value)} }
func (c *Long) components() []ConstantPoolEntry { return nil }

func (c *Long) writeInfo(w *Writer, _ *ClassConstantPool) error {
	w.U8(TagLong)
	w.U64(uint64(c.Value))
	return nil
}

type Double struct {
	Value float64
}

func NewDouble(v float64) *Double { return &Double{Value: v} }

func (c *Double) Tag() uint8                      { return TagDouble }
func (c *Double) String() string                  { return fmt.Sprintf("Double %g", c.Value) }
func (c *Double) key() entryKey                   { return entryKey{tag: TagDouble, bits: math.Float64bits(c.Value)} }
func (c *Double) components() []ConstantPoolEntry { return nil }

func (c *Double) writeInfo(w *Writer, _ *ClassConstantPool) error {
	w.U8(TagDouble)
	w.U64(math.Float64bits(c.Value))
	return nil
}

// Class refers to a class or array type by its internal name.
type Class struct {
	Name *UTF8
}

func NewClass(name string) *Class { return &Class{Name: NewUTF8(name)} }

func (c *Class) Tag() uint8                      { return TagClass }
func (c *Class) String() string                  { return "Class " + utf8Text(c.Name) }
func (c *Class) key() entryKey                   { return entryKey{tag: TagClass, text: utf8Text(c.Name)} }
func (c *Class) components() []ConstantPoolEntry { return []ConstantPoolEntry{c.Name} }

func (c *Class) writeInfo(w *Writer, pool *ClassConstantPool) error {
	index, err := pool.IndexOf(c.Name)
	if err != nil {
		return err
	}
	w.U8(TagClass)
	w.U16(index)
	return nil
}

// String is a java.lang.String literal.
type String struct {
	Value *UTF8
}

func NewString(s string) *String { return &String{Value: NewUTF8(s)} }

func (c *String) Tag() uint8                      { return TagString }
func (c *String) String() string                  { return "String " + strconv.Quote(utf8Text(c.Value)) }
func (c *String) key() entryKey                   { return entryKey{tag: TagString, text: utf8Text(c.Value)} }
func (c *String) components() []ConstantPoolEntry { return []ConstantPoolEntry{c.Value} }

func (c *String) writeInfo(w *Writer, pool *ClassConstantPool) error {
	index, err := pool.IndexOf(c.Value)
	if err != nil {
		return err
	}
	w.U8(TagString)
	w.U16(index)
	return nil
}

type NameAndType struct {
	Name       *UTF8
	Descriptor *UTF8
}

func NewNameAndType(name, descriptor string) *NameAndType {
	return &NameAndType{Name: NewUTF8(name), Descriptor: NewUTF8(descriptor)}
}

func (c *NameAndType) Tag() uint8 { return TagNameAndType }
func (c *NameAndType) String() string {
	return "NameAndType " + utf8Text(c.Name) + ":" + utf8Text(c.Descriptor)
}
func (c *NameAndType) key() entryKey {
	return entryKey{tag: TagNameAndType, text: c.text()}
}
func (c *NameAndType) text() string {
	if c == nil {
		return ""
	}
	return joinKey(utf8Text(c.Name), utf8Text(c.Descriptor))
}
func (c *NameAndType) components() []ConstantPoolEntry {
	return []ConstantPoolEntry{c.Name, c.Descriptor}
}

func (c *NameAndType) writeInfo(w *Writer, pool *ClassConstantPool) error {
	return writeIndexPair(w, pool, TagNameAndType, c.Name, c.Descriptor)
}

// memberRef is shared by field, method and interface method references.
type memberRef struct {
	Class       *Class
	NameAndType *NameAndType
}

func (m *memberRef) text() string {
	var class string
	if m.Class != nil {
		class = utf8Text(m.Class.Name)
	}
	return joinKey(class, m.NameAndType.text())
}

func (m *memberRef) describe(kind string) string {
	var class string
	if m.Class != nil {
		class = utf8Text(m.Class.Name)
	}
	var name, desc string
	if m.NameAndType != nil {
		name, desc = utf8Text(m.NameAndType.Name), utf8Text(m.NameAndType.Descriptor)
	}
	return kind + " " + class + "." + name + ":" + desc
}

func (m *memberRef) components() []ConstantPoolEntry {
	return []ConstantPoolEntry{m.Class, m.NameAndType}
}

type FieldRef struct{ memberRef }

func NewFieldRef(class, name, descriptor string) *FieldRef {
	return &FieldRef{memberRef{Class: NewClass(class), NameAndType: NewNameAndType(name, descriptor)}}
}

func (c *FieldRef) Tag() uint8     { return TagFieldref }
func (c *FieldRef) String() string { return c.describe("Fieldref") }
func (c *FieldRef) key() entryKey  { return entryKey{tag: TagFieldref, text: c.text()} }

func (c *FieldRef) writeInfo(w *Writer, pool *ClassConstantPool) error {
	return writeIndexPair(w, pool, TagFieldref, c.Class, c.NameAndType)
}

type MethodRef struct{ memberRef }

func NewMethodRef(class, name, descriptor string) *MethodRef {
	return &MethodRef{memberRef{Class: NewClass(class), NameAndType: NewNameAndType(name, descriptor)}}
}

func (c *MethodRef) Tag() uint8     { return TagMethodref }
func (c *MethodRef) String() string { return c.describe("Methodref") }
func (c *MethodRef) key() entryKey  { return entryKey{tag: TagMethodref, text: c.text()} }

func (c *MethodRef) writeInfo(w *Writer, pool *ClassConstantPool) error {
	return writeIndexPair(w, pool, TagMethodref, c.Class, c.NameAndType)
}

type InterfaceMethodRef struct{ memberRef }

func NewInterfaceMethodRef(class, name, descriptor string) *InterfaceMethodRef {
	return &InterfaceMethodRef{memberRef{Class: NewClass(class), NameAndType: NewNameAndType(name, descriptor)}}
}

func (c *InterfaceMethodRef) Tag() uint8     { return TagInterfaceMethodref }
func (c *InterfaceMethodRef) String() string { return c.describe("InterfaceMethodref") }
func (c *InterfaceMethodRef) key() entryKey {
	return entryKey{tag: TagInterfaceMethodref, text: c.text()}
}

func (c *InterfaceMethodRef) writeInfo(w *Writer, pool *ClassConstantPool) error {
	return writeIndexPair(w, pool, TagInterfaceMethodref, c.Class, c.NameAndType)
}

func writeIndexPair(w *Writer, pool *ClassConstantPool, tag uint8, a, b ConstantPoolEntry) error {
	first, err := pool.IndexOf(a)
	if err != nil {
		return err
	}
	second, err := pool.IndexOf(b)
	if err != nil {
		return err
	}
	w.U8(tag)
	w.U16(first)
	w.U16(second)
	return nil
}
