package bytecode

import (
	"fmt"
	"math"
)

// maxParameters is the largest num_parameters a u1 can hold.
const maxParameters = math.MaxUint8

// ParameterAnnotationsAttribute is a RuntimeVisibleParameterAnnotations or
// RuntimeInvisibleParameterAnnotations attribute. It carries one
// ParameterAnnotation per formal parameter, in declaration order, including
// parameters that have no annotations.
//
// num_parameters is a u1 while each parameter's num_annotations is a u2; both
// widths come from the class-file format.
type ParameterAnnotationsAttribute struct {
	AttributeName *UTF8
	Parameters    []ParameterAnnotation
}

// NewParameterAnnotationsAttribute creates the visible or invisible variant.
func NewParameterAnnotationsAttribute(visible bool, parameters ...ParameterAnnotation) *ParameterAnnotationsAttribute {
	name := AttrRuntimeInvisibleParameterAnnotations
	if visible {
		name = AttrRuntimeVisibleParameterAnnotations
	}
	return &ParameterAnnotationsAttribute{AttributeName: NewUTF8(name), Parameters: parameters}
}

func (a *ParameterAnnotationsAttribute) Name() *UTF8 { return a.AttributeName }
func (a *ParameterAnnotationsAttribute) attribute()  {}

// Visible reports whether this is the RuntimeVisible variant.
func (a *ParameterAnnotationsAttribute) Visible() bool {
	return a.AttributeName != nil && a.AttributeName.Value == AttrRuntimeVisibleParameterAnnotations
}

func (a *ParameterAnnotationsAttribute) CollectEntries() []ConstantPoolEntry {
	out := []ConstantPoolEntry{a.AttributeName}
	for _, p := range a.Parameters {
		out = append(out, p.CollectEntries()...)
	}
	return out
}

func (a *ParameterAnnotationsAttribute) check() error {
	if a.AttributeName == nil {
		return malformed("parameter annotations attribute has no name")
	}
	switch a.AttributeName.Value {
	case AttrRuntimeVisibleParameterAnnotations, AttrRuntimeInvisibleParameterAnnotations:
	default:
		return malformed("%q is not a parameter annotations attribute", a.AttributeName.Value)
	}
	return checkCount("num_parameters", len(a.Parameters), maxParameters)
}

func (a *ParameterAnnotationsAttribute) Resolve(pool *ClassConstantPool) error {
	if err := a.check(); err != nil {
		return err
	}
	if _, err := pool.Register(a.AttributeName); err != nil {
		return err
	}
	for i, p := range a.Parameters {
		if err := p.Resolve(pool); err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	return nil
}

// BodyLength is num_parameters (1) + each parameter's annotations.
func (a *ParameterAnnotationsAttribute) BodyLength() int {
	n := 1
	for _, p := range a.Parameters {
		n += p.ByteLength()
	}
	return n
}

func (a *ParameterAnnotationsAttribute) WriteBody(w *Writer, pool *ClassConstantPool) error {
	if err := a.check(); err != nil {
		return err
	}
	w.U8(uint8(len(a.Parameters)))
	for i, p := range a.Parameters {
		if err := p.WriteTo(w, pool); err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	return nil
}

func (a *ParameterAnnotationsAttribute) String() string {
	return fmt.Sprintf("%s: %d parameter annotations", utf8Text(a.AttributeName), len(a.Parameters))
}

// AnnotationsAttribute is a RuntimeVisibleAnnotations or
// RuntimeInvisibleAnnotations attribute.
type AnnotationsAttribute struct {
	AttributeName *UTF8
	Annotations   []*Annotation
}

func NewAnnotationsAttribute(visible bool, annotations ...*Annotation) *AnnotationsAttribute {
	name := AttrRuntimeInvisibleAnnotations
	if visible {
		name = AttrRuntimeVisibleAnnotations
	}
	return &AnnotationsAttribute{AttributeName: NewUTF8(name), Annotations: annotations}
}

func (a *AnnotationsAttribute) Name() *UTF8 { return a.AttributeName }
func (a *AnnotationsAttribute) attribute()  {}

// body reuses the ParameterAnnotation layout: a u2 count then annotations.
func (a *AnnotationsAttribute) body() ParameterAnnotation {
	return ParameterAnnotation{Annotations: a.Annotations}
}

func (a *AnnotationsAttribute) CollectEntries() []ConstantPoolEntry {
	return append([]ConstantPoolEntry{a.AttributeName}, a.body().CollectEntries()...)
}

func (a *AnnotationsAttribute) check() error {
	if a.AttributeName == nil {
		return malformed("annotations attribute has no name")
	}
	switch a.AttributeName.Value {
	case AttrRuntimeVisibleAnnotations, AttrRuntimeInvisibleAnnotations:
		return nil
	}
	return malformed("%q is not an annotations attribute", a.AttributeName.Value)
}

func (a *AnnotationsAttribute) Resolve(pool *ClassConstantPool) error {
	if err := a.check(); err != nil {
		return err
	}
	if _, err := pool.Register(a.AttributeName); err != nil {
		return err
	}
	return a.body().Resolve(pool)
}

func (a *AnnotationsAttribute) BodyLength() int { return a.body().ByteLength() }

func (a *AnnotationsAttribute) WriteBody(w *Writer, pool *ClassConstantPool) error {
	if err := a.check(); err != nil {
		return err
	}
	return a.body().WriteTo(w, pool)
}

// AnnotationDefaultAttribute holds the default value of an annotation
// interface element.
type AnnotationDefaultAttribute struct {
	Default ElementValue
}

func (a *AnnotationDefaultAttribute) Name() *UTF8 { return NewUTF8(AttrAnnotationDefault) }
func (a *AnnotationDefaultAttribute) attribute()  {}

func (a *AnnotationDefaultAttribute) CollectEntries() []ConstantPoolEntry {
	out := []ConstantPoolEntry{a.Name()}
	if !isNilValue(a.Default) {
		out = append(out, a.Default.CollectEntries()...)
	}
	return out
}

func (a *AnnotationDefaultAttribute) Resolve(pool *ClassConstantPool) error {
	if isNilValue(a.Default) {
		return malformed("AnnotationDefault has no value")
	}
	if _, err := pool.Register(a.Name()); err != nil {
		return err
	}
	return a.Default.Resolve(pool)
}

func (a *AnnotationDefaultAttribute) BodyLength() int {
	if isNilValue(a.Default) {
		return 0
	}
	return a.Default.ByteLength()
}

func (a *AnnotationDefaultAttribute) WriteBody(w *Writer, pool *ClassConstantPool) error {
	if isNilValue(a.Default) {
		return malformed("AnnotationDefault has no value")
	}
	return a.Default.WriteTo(w, pool)
}
