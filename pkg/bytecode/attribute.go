package bytecode

import (
	"fmt"
	"math"
)

// Attribute names
const (
	AttrCode                                 = "Code"
	AttrConstantValue                        = "ConstantValue"
	AttrDeprecated                           = "Deprecated"
	AttrExceptions                           = "Exceptions"
	AttrLineNumberTable                      = "LineNumberTable"
	AttrSignature                            = "Signature"
	AttrSourceFile                           = "SourceFile"
	AttrSynthetic                            = "Synthetic"
	AttrAnnotationDefault                    = "AnnotationDefault"
	AttrRuntimeVisibleAnnotations            = "RuntimeVisibleAnnotations"
	AttrRuntimeInvisibleAnnotations          = "RuntimeInvisibleAnnotations"
	AttrRuntimeVisibleParameterAnnotations   = "RuntimeVisibleParameterAnnotations"
	AttrRuntimeInvisibleParameterAnnotations = "RuntimeInvisibleParameterAnnotations"
)

// Attribute is a class, field, method or code attribute. The set of
// implementations is closed to this package.
//
// BodyLength and WriteBody cover the attribute body only; the name index and
// length that precede it are written by WriteAttribute.
type Attribute interface {
	Name() *UTF8
	CollectEntries() []ConstantPoolEntry
	Resolve(pool *ClassConstantPool) error
	BodyLength() int
	WriteBody(w *Writer, pool *ClassConstantPool) error

	attribute()
}

// WriteAttribute writes the attribute_info wrapper and body of a.
func WriteAttribute(w *Writer, pool *ClassConstantPool, a Attribute) error {
	name := utf8Text(a.Name())
	nameIndex, err := pool.IndexOf(a.Name())
	if err != nil {
		return fmt.Errorf("attribute %s: %w", name, err)
	}
	length := a.BodyLength()
	if err := checkCount(name+" length", length, math.MaxUint32); err != nil {
		return err
	}
	w.U16(nameIndex)
	w.U32(uint32(length))

	start := w.Len()
	if err := a.WriteBody(w, pool); err != nil {
		return fmt.Errorf("attribute %s: %w", name, err)
	}
	if written := w.Len() - start; written != length {
		return malformed("attribute %s wrote %d bytes, declared %d", name, written, length)
	}
	return nil
}

// writeAttributes writes attributes_count followed by each attribute.
func writeAttributes(w *Writer, pool *ClassConstantPool, attrs []Attribute) error {
	if err := checkCount("attributes_count", len(attrs), math.MaxUint16); err != nil {
		return err
	}
	w.U16(uint16(len(attrs)))
	for _, a := range attrs {
		if err := WriteAttribute(w, pool, a); err != nil {
			return err
		}
	}
	return nil
}

func resolveAttributes(pool *ClassConstantPool, attrs []Attribute) error {
	for i, a := range attrs {
		if a == nil {
			return malformed("attribute %d is nil", i)
		}
		if err := a.Resolve(pool); err != nil {
			return fmt.Errorf("resolving attribute %s: %w", utf8Text(a.Name()), err)
		}
	}
	return nil
}

// attributesLength is the size of attributes_count plus every wrapped attribute.
func attributesLength(attrs []Attribute) int {
	n := 2
	for _, a := range attrs {
		n += 6 + a.BodyLength()
	}
	return n
}

// ExceptionsAttribute lists the checked exceptions a method declares.
type ExceptionsAttribute struct {
	Exceptions []*Class
}

func NewExceptionsAttribute(classNames ...string) *ExceptionsAttribute {
	a := &ExceptionsAttribute{}
	for _, n := range classNames {
		a.Exceptions = append(a.Exceptions, NewClass(n))
	}
	return a
}

func (a *ExceptionsAttribute) Name() *UTF8 { return NewUTF8(AttrExceptions) }
func (a *ExceptionsAttribute) attribute()  {}

func (a *ExceptionsAttribute) CollectEntries() []ConstantPoolEntry {
	out := []ConstantPoolEntry{a.Name()}
	for _, c := range a.Exceptions {
		out = append(out, c)
	}
	return out
}

func (a *ExceptionsAttribute) Resolve(pool *ClassConstantPool) error {
	if err := checkCount("number_of_exceptions", len(a.Exceptions), math.MaxUint16); err != nil {
		return err
	}
	return pool.RegisterAll(a.CollectEntries())
}

func (a *ExceptionsAttribute) BodyLength() int { return 2 + 2*len(a.Exceptions) }

func (a *ExceptionsAttribute) WriteBody(w *Writer, pool *ClassConstantPool) error {
	if err := checkCount("number_of_exceptions", len(a.Exceptions), math.MaxUint16); err != nil {
		return err
	}
	w.U16(uint16(len(a.Exceptions)))
	for _, c := range a.Exceptions {
		index, err := pool.IndexOf(c)
		if err != nil {
			return err
		}
		w.U16(index)
	}
	return nil
}

// LineNumber maps a bytecode offset to a source line.
type LineNumber struct {
	StartPC uint16
	Line    uint16
}

type LineNumberTableAttribute struct {
	Lines []LineNumber
}

func (a *LineNumberTableAttribute) Name() *UTF8 { return NewUTF8(AttrLineNumberTable) }
func (a *LineNumberTableAttribute) attribute()  {}

func (a *LineNumberTableAttribute) CollectEntries() []ConstantPoolEntry {
	return []ConstantPoolEntry{a.Name()}
}

func (a *LineNumberTableAttribute) Resolve(pool *ClassConstantPool) error {
	if err := checkCount("line_number_table_length", len(a.Lines), math.MaxUint16); err != nil {
		return err
	}
	_, err := pool.Register(a.Name())
	return err
}

func (a *LineNumberTableAttribute) BodyLength() int { return 2 + 4*len(a.Lines) }

func (a *LineNumberTableAttribute) WriteBody(w *Writer, _ *ClassConstantPool) error {
	if err := checkCount("line_number_table_length", len(a.Lines), math.MaxUint16); err != nil {
		return err
	}
	w.U16(uint16(len(a.Lines)))
	for _, l := range a.Lines {
		w.U16(l.StartPC)
		w.U16(l.Line)
	}
	return nil
}

// singleIndexAttribute is the shared shape of attributes whose body is one
// constant pool index.
type singleIndexAttribute struct {
	name  string
	value ConstantPoolEntry
}

func (a singleIndexAttribute) entries() []ConstantPoolEntry {
	return []ConstantPoolEntry{NewUTF8(a.name), a.value}
}

func (a singleIndexAttribute) resolve(pool *ClassConstantPool) error {
	if isNilEntry(a.value) {
		return malformed("%s attribute has no value", a.name)
	}
	return pool.RegisterAll(a.entries())
}

func (a singleIndexAttribute) write(w *Writer, pool *ClassConstantPool) error {
	if isNilEntry(a.value) {
		return malformed("%s attribute has no value", a.name)
	}
	index, err := pool.IndexOf(a.value)
	if err != nil {
		return err
	}
	w.U16(index)
	return nil
}

type SourceFileAttribute struct {
	File *UTF8
}

func NewSourceFileAttribute(file string) *SourceFileAttribute {
	return &SourceFileAttribute{File: NewUTF8(file)}
}

func (a *SourceFileAttribute) Name() *UTF8 { return NewUTF8(AttrSourceFile) }
func (a *SourceFileAttribute) attribute()  {}
func (a *SourceFileAttribute) shape() singleIndexAttribute {
	return singleIndexAttribute{name: AttrSourceFile, value: a.File}
}
func (a *SourceFileAttribute) CollectEntries() []ConstantPoolEntry   { return a.shape().entries() }
func (a *SourceFileAttribute) Resolve(pool *ClassConstantPool) error { return a.shape().resolve(pool) }
func (a *SourceFileAttribute) BodyLength() int                       { return 2 }
func (a *SourceFileAttribute) WriteBody(w *Writer, pool *ClassConstantPool) error {
	return a.shape().write(w, pool)
}

type SignatureAttribute struct {
	Signature *UTF8
}

func NewSignatureAttribute(signature string) *SignatureAttribute {
	return &SignatureAttribute{Signature: NewUTF8(signature)}
}

func (a *SignatureAttribute) Name() *UTF8 { return NewUTF8(AttrSignature) }
func (a *SignatureAttribute) attribute()  {}
func (a *SignatureAttribute) shape() singleIndexAttribute {
	return singleIndexAttribute{name: AttrSignature, value: a.Signature}
}
func (a *SignatureAttribute) CollectEntries() []ConstantPoolEntry   { return a.shape().entries() }
func (a *SignatureAttribute) Resolve(pool *ClassConstantPool) error { return a.shape().resolve(pool) }
func (a *SignatureAttribute) BodyLength() int                       { return 2 }
func (a *SignatureAttribute) WriteBody(w *Writer, pool *ClassConstantPool) error {
	return a.shape().write(w, pool)
}

// ConstantValueAttribute is the initial value of a static field: an Integer,
// Long, Float, Double or String entry.
type ConstantValueAttribute struct {
	Value ConstantPoolEntry
}

func (a *ConstantValueAttribute) Name() *UTF8 { return NewUTF8(AttrConstantValue) }
func (a *ConstantValueAttribute) attribute()  {}
func (a *ConstantValueAttribute) shape() singleIndexAttribute {
	return singleIndexAttribute{name: AttrConstantValue, value: a.Value}
}
func (a *ConstantValueAttribute) CollectEntries() []ConstantPoolEntry { return a.shape().entries() }

func (a *ConstantValueAttribute) Resolve(pool *ClassConstantPool) error {
	if !isNilEntry(a.Value) {
		switch a.Value.Tag() {
		case TagInteger, TagLong, TagFloat, TagDouble, TagString:
		default:
			return malformed("ConstantValue cannot hold %s", a.Value)
		}
	}
	return a.shape().resolve(pool)
}

func (a *ConstantValueAttribute) BodyLength() int { return 2 }
func (a *ConstantValueAttribute) WriteBody(w *Writer, pool *ClassConstantPool) error {
	return a.shape().write(w, pool)
}

// markerAttribute is an attribute with an empty body.
type markerAttribute struct{}

func (markerAttribute) BodyLength() int                             { return 0 }
func (markerAttribute) WriteBody(*Writer, *ClassConstantPool) error { return nil }
func (markerAttribute) attribute()                                  {}

type DeprecatedAttribute struct{ markerAttribute }

func (a *DeprecatedAttribute) Name() *UTF8 { return NewUTF8(AttrDeprecated) }
func (a *DeprecatedAttribute) CollectEntries() []ConstantPoolEntry {
	return []ConstantPoolEntry{a.Name()}
}
func (a *DeprecatedAttribute) Resolve(pool *ClassConstantPool) error {
	_, err := pool.Register(a.Name())
	return err
}

type SyntheticAttribute struct{ markerAttribute }

func (a *SyntheticAttribute) Name() *UTF8 { return NewUTF8(AttrSynthetic) }
func (a *SyntheticAttribute) CollectEntries() []ConstantPoolEntry {
	return []ConstantPoolEntry{a.Name()}
}
func (a *SyntheticAttribute) Resolve(pool *ClassConstantPool) error {
	_, err := pool.Register(a.Name())
	return err
}
