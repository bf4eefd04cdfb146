package bytecode

import (
	"fmt"
	"math"
)

// Element value tags
const (
	ElemByte       = 'B'
	ElemChar       = 'C'
	ElemDouble     = 'D'
	ElemFloat      = 'F'
	ElemInt        = 'I'
	ElemLong       = 'J'
	ElemShort      = 'S'
	ElemBoolean    = 'Z'
	ElemString     = 's'
	ElemEnum       = 'e'
	ElemClass      = 'c'
	ElemAnnotation = '@'
	ElemArray      = '['
)

// ElementValue is the value half of an annotation element-value pair. The set
// of implementations is closed: ConstValue, EnumValue, ClassValue,
// AnnotationValue and ArrayValue.
type ElementValue interface {
	Tag() byte
	// CollectEntries lists every constant pool entry the value refers to,
	// depth first.
	CollectEntries() []ConstantPoolEntry
	Resolve(pool *ClassConstantPool) error
	// ByteLength is the serialized size including the tag byte.
	ByteLength() int
	WriteTo(w *Writer, pool *ClassConstantPool) error

	elementValue()
}

// ConstValue is a primitive or String constant. Tags B, C, I, S and Z take an
// Integer entry, J a Long, F a Float, D a Double and s a Utf8.
type ConstValue struct {
	ElemTag byte
	Value   ConstantPoolEntry
}

func IntValue(v int32) *ConstValue     { return &ConstValue{ElemTag: ElemInt, Value: NewInteger(v)} }
func ByteValue(v int8) *ConstValue     { return &ConstValue{ElemTag: ElemByte, Value: NewInteger(int32(v))} }
func CharValue(v uint16) *ConstValue   { return &ConstValue{ElemTag: ElemChar, Value: NewInteger(int32(v))} }
func ShortValue(v int16) *ConstValue   { return &ConstValue{ElemTag: ElemShort, Value: NewInteger(int32(v))} }
func LongValue(v int64) *ConstValue    { return &ConstValue{ElemTag: ElemLong, Value: NewLong(v)} }
func FloatValue(v float32) *ConstValue { return &ConstValue{ElemTag: ElemFloat, Value: NewFloat(v)} }
func DoubleValue(v float64) *ConstValue {
	return &ConstValue{ElemTag: ElemDouble, Value: NewDouble(v)}
}
func StringValue(s string) *ConstValue { return &ConstValue{ElemTag: ElemString, Value: NewUTF8(s)} }

func BooleanValue(v bool) *ConstValue {
	var i int32
	if v {
		i = 1
	}
	return &ConstValue{ElemTag: ElemBoolean, Value: NewInteger(i)}
}

func (v *ConstValue) Tag() byte { return v.ElemTag }
func (v *ConstValue) elementValue() {}

func (v *ConstValue) CollectEntries() []ConstantPoolEntry {
	return []ConstantPoolEntry{v.Value}
}

func (v *ConstValue) check() error {
	if isNilEntry(v.Value) {
		return malformed("const element value %q has no constant", v.ElemTag)
	}
	var want uint8
	switch v.ElemTag {
	case ElemByte, ElemChar, ElemInt, ElemShort, ElemBoolean:
		want = TagInteger
	case ElemLong:
		want = TagLong
	case ElemFloat:
		want = TagFloat
	case ElemDouble:
		want = TagDouble
	case ElemString:
		want = TagUtf8
	default:
		return malformed("unknown const element value tag %q", v.ElemTag)
	}
	if v.Value.Tag() != want {
		return malformed("const element value %q holds %s", v.ElemTag, v.Value)
	}
	return nil
}

func (v *ConstValue) Resolve(pool *ClassConstantPool) error {
	if err := v.check(); err != nil {
		return err
	}
	_, err := pool.Register(v.Value)
	return err
}

func (v *ConstValue) ByteLength() int { return 3 }

func (v *ConstValue) WriteTo(w *Writer, pool *ClassConstantPool) error {
	if err := v.check(); err != nil {
		return err
	}
	index, err := pool.IndexOf(v.Value)
	if err != nil {
		return err
	}
	w.U8(v.ElemTag)
	w.U16(index)
	return nil
}

// EnumValue names an enum constant by the enum's type descriptor and the
// constant's simple name.
type EnumValue struct {
	TypeName  *UTF8
	ConstName *UTF8
}

func NewEnumValue(typeDescriptor, name string) *EnumValue {
	return &EnumValue{TypeName: NewUTF8(typeDescriptor), ConstName: NewUTF8(name)}
}

func (v *EnumValue) Tag() byte     { return ElemEnum }
func (v *EnumValue) elementValue() {}

func (v *EnumValue) CollectEntries() []ConstantPoolEntry {
	return []ConstantPoolEntry{v.TypeName, v.ConstName}
}

func (v *EnumValue) Resolve(pool *ClassConstantPool) error {
	if v.TypeName == nil || v.ConstName == nil {
		return malformed("enum element value is missing its type or name")
	}
	return pool.RegisterAll(v.CollectEntries())
}

func (v *EnumValue) ByteLength() int { return 5 }

func (v *EnumValue) WriteTo(w *Writer, pool *ClassConstantPool) error {
	if v.TypeName == nil || v.ConstName == nil {
		return malformed("enum element value is missing its type or name")
	}
	typeIndex, err := pool.IndexOf(v.TypeName)
	if err != nil {
		return err
	}
	nameIndex, err := pool.IndexOf(v.ConstName)
	if err != nil {
		return err
	}
	w.U8(ElemEnum)
	w.U16(typeIndex)
	w.U16(nameIndex)
	return nil
}

// ClassValue is a class literal, stored as a return descriptor such as
// "Ljava/lang/String;" or "V".
type ClassValue struct {
	ClassInfo *UTF8
}

func NewClassValue(descriptor string) *ClassValue {
	return &ClassValue{ClassInfo: NewUTF8(descriptor)}
}

func (v *ClassValue) Tag() byte     { return ElemClass }
func (v *ClassValue) elementValue() {}

func (v *ClassValue) CollectEntries() []ConstantPoolEntry {
	return []ConstantPoolEntry{v.ClassInfo}
}

func (v *ClassValue) Resolve(pool *ClassConstantPool) error {
	if v.ClassInfo == nil {
		return malformed("class element value has no descriptor")
	}
	_, err := pool.Register(v.ClassInfo)
	return err
}

func (v *ClassValue) ByteLength() int { return 3 }

func (v *ClassValue) WriteTo(w *Writer, pool *ClassConstantPool) error {
	if v.ClassInfo == nil {
		return malformed("class element value has no descriptor")
	}
	index, err := pool.IndexOf(v.ClassInfo)
	if err != nil {
		return err
	}
	w.U8(ElemClass)
	w.U16(index)
	return nil
}

// AnnotationValue nests an annotation inside an element value.
type AnnotationValue struct {
	Annotation *Annotation
}

func NewAnnotationValue(a *Annotation) *AnnotationValue {
	return &AnnotationValue{Annotation: a}
}

func (v *AnnotationValue) Tag() byte     { return ElemAnnotation }
func (v *AnnotationValue) elementValue() {}

func (v *AnnotationValue) CollectEntries() []ConstantPoolEntry {
	if v.Annotation == nil {
		return nil
	}
	return v.Annotation.CollectEntries()
}

func (v *AnnotationValue) Resolve(pool *ClassConstantPool) error {
	if v.Annotation == nil {
		return malformed("annotation element value has no annotation")
	}
	return v.Annotation.Resolve(pool)
}

func (v *AnnotationValue) ByteLength() int {
	if v.Annotation == nil {
		return 1
	}
	return 1 + v.Annotation.ByteLength()
}

func (v *AnnotationValue) WriteTo(w *Writer, pool *ClassConstantPool) error {
	if v.Annotation == nil {
		return malformed("annotation element value has no annotation")
	}
	w.U8(ElemAnnotation)
	return v.Annotation.WriteTo(w, pool)
}

// ArrayValue is an ordered array of element values.
type ArrayValue struct {
	Values []ElementValue
}

func NewArrayValue(values ...ElementValue) *ArrayValue {
	return &ArrayValue{Values: values}
}

func (v *ArrayValue) Tag() byte     { return ElemArray }
func (v *ArrayValue) elementValue() {}

func (v *ArrayValue) CollectEntries() []ConstantPoolEntry {
	var out []ConstantPoolEntry
	for _, e := range v.Values {
		if !isNilValue(e) {
			out = append(out, e.CollectEntries()...)
		}
	}
	return out
}

func (v *ArrayValue) Resolve(pool *ClassConstantPool) error {
	if err := checkCount("array element values", len(v.Values), math.MaxUint16); err != nil {
		return err
	}
	for i, e := range v.Values {
		if isNilValue(e) {
			return malformed("array element %d is nil", i)
		}
		if err := e.Resolve(pool); err != nil {
			return fmt.Errorf("array element %d: %w", i, err)
		}
	}
	return nil
}

func (v *ArrayValue) ByteLength() int {
	n := 3
	for _, e := range v.Values {
		if !isNilValue(e) {
			n += e.ByteLength()
		}
	}
	return n
}

func (v *ArrayValue) WriteTo(w *Writer, pool *ClassConstantPool) error {
	if err := checkCount("array element values", len(v.Values), math.MaxUint16); err != nil {
		return err
	}
	w.U8(ElemArray)
	w.U16(uint16(len(v.Values)))
	for i, e := range v.Values {
		if isNilValue(e) {
			return malformed("array element %d is nil", i)
		}
		if err := e.WriteTo(w, pool); err != nil {
			return fmt.Errorf("array element %d: %w", i, err)
		}
	}
	return nil
}

func isNilValue(v ElementValue) bool {
	switch e := v.(type) {
	case nil:
		return true
	case *ConstValue:
		return e == nil
	case *EnumValue:
		return e == nil
	case *ClassValue:
		return e == nil
	case *AnnotationValue:
		return e == nil
	case *ArrayValue:
		return e == nil
	}
	return false
}
