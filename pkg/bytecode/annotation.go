package bytecode

import (
	"fmt"
	"math"
)

// ElementValuePair is one name=value member of an annotation.
type ElementValuePair struct {
	Name  *UTF8
	Value ElementValue
}

// Pair builds an ElementValuePair.
func Pair(name string, value ElementValue) ElementValuePair {
	return ElementValuePair{Name: NewUTF8(name), Value: value}
}

// Annotation is a single annotation: a type descriptor plus element-value
// pairs. Pairs are written in slice order.
type Annotation struct {
	Type  *UTF8
	Pairs []ElementValuePair
}

// NewAnnotation creates an annotation of the given type descriptor, for
// example "Ljavax/annotation/Nullable;".
func NewAnnotation(typeDescriptor string, pairs ...ElementValuePair) *Annotation {
	return &Annotation{Type: NewUTF8(typeDescriptor), Pairs: pairs}
}

func (a *Annotation) CollectEntries() []ConstantPoolEntry {
	out := []ConstantPoolEntry{a.Type}
	for _, p := range a.Pairs {
		out = append(out, p.Name)
		if !isNilValue(p.Value) {
			out = append(out, p.Value.CollectEntries()...)
		}
	}
	return out
}

func (a *Annotation) Resolve(pool *ClassConstantPool) error {
	if a.Type == nil {
		return malformed("annotation has no type")
	}
	if err := checkCount("element value pairs", len(a.Pairs), math.MaxUint16); err != nil {
		return err
	}
	if _, err := pool.Register(a.Type); err != nil {
		return err
	}
	for i, p := range a.Pairs {
		if p.Name == nil || isNilValue(p.Value) {
			return malformed("pair %d of %s is incomplete", i, a.Type.Value)
		}
		if _, err := pool.Register(p.Name); err != nil {
			return err
		}
		if err := p.Value.Resolve(pool); err != nil {
			return fmt.Errorf("%s.%s: %w", a.Type.Value, p.Name.Value, err)
		}
	}
	return nil
}

// ByteLength is type_index (2) + num_element_value_pairs (2) + each pair.
func (a *Annotation) ByteLength() int {
	n := 4
	for _, p := range a.Pairs {
		n += 2
		if !isNilValue(p.Value) {
			n += p.Value.ByteLength()
		}
	}
	return n
}

func (a *Annotation) WriteTo(w *Writer, pool *ClassConstantPool) error {
	if a.Type == nil {
		return malformed("annotation has no type")
	}
	if err := checkCount("element value pairs", len(a.Pairs), math.MaxUint16); err != nil {
		return err
	}
	typeIndex, err := pool.IndexOf(a.Type)
	if err != nil {
		return err
	}
	w.U16(typeIndex)
	w.U16(uint16(len(a.Pairs)))
	for i, p := range a.Pairs {
		if p.Name == nil || isNilValue(p.Value) {
			return malformed("pair %d of %s is incomplete", i, a.Type.Value)
		}
		nameIndex, err := pool.IndexOf(p.Name)
		if err != nil {
			return err
		}
		w.U16(nameIndex)
		if err := p.Value.WriteTo(w, pool); err != nil {
			return fmt.Errorf("%s.%s: %w", a.Type.Value, p.Name.Value, err)
		}
	}
	return nil
}

// ParameterAnnotation holds the annotations of one formal parameter. A
// parameter without annotations is an empty ParameterAnnotation.
type ParameterAnnotation struct {
	Annotations []*Annotation
}

func NewParameterAnnotation(annotations ...*Annotation) ParameterAnnotation {
	return ParameterAnnotation{Annotations: annotations}
}

func (p ParameterAnnotation) CollectEntries() []ConstantPoolEntry {
	var out []ConstantPoolEntry
	for _, a := range p.Annotations {
		if a != nil {
			out = append(out, a.CollectEntries()...)
		}
	}
	return out
}

func (p ParameterAnnotation) Resolve(pool *ClassConstantPool) error {
	if err := checkCount("num_annotations", len(p.Annotations), math.MaxUint16); err != nil {
		return err
	}
	for i, a := range p.Annotations {
		if a == nil {
			return malformed("annotation %d is nil", i)
		}
		if err := a.Resolve(pool); err != nil {
			return err
		}
	}
	return nil
}

// ByteLength is num_annotations (2) + each annotation.
func (p ParameterAnnotation) ByteLength() int {
	n := 2
	for _, a := range p.Annotations {
		if a != nil {
			n += a.ByteLength()
		}
	}
	return n
}

func (p ParameterAnnotation) WriteTo(w *Writer, pool *ClassConstantPool) error {
	if err := checkCount("num_annotations", len(p.Annotations), math.MaxUint16); err != nil {
		return err
	}
	w.U16(uint16(len(p.Annotations)))
	for i, a := range p.Annotations {
		if a == nil {
			return malformed("annotation %d is nil", i)
		}
		if err := a.WriteTo(w, pool); err != nil {
			return err
		}
	}
	return nil
}
