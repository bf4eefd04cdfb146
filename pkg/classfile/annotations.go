package classfile

import (
	"bytes"
	"fmt"
)

// ElementValue is a decoded element_value. Which fields are set depends on
// Tag: ConstIndex for constants, strings and class literals; the two enum
// indices for 'e'; Annotation for '@'; Values for '['.
type ElementValue struct {
	Tag            byte
	ConstIndex     uint16
	TypeNameIndex  uint16
	ConstNameIndex uint16
	Annotation     *Annotation
	Values         []ElementValue
}

type ElementValuePair struct {
	NameIndex uint16
	Value     ElementValue
}

// Annotation is a decoded annotation structure.
type Annotation struct {
	TypeIndex uint16
	Pairs     []ElementValuePair
}

// DecodeParameterAnnotations decodes the body of a
// Runtime(In)VisibleParameterAnnotations attribute into one annotation list
// per parameter.
func DecodeParameterAnnotations(data []byte) ([][]Annotation, error) {
	r := bytes.NewReader(data)
	numParameters, err := readU8(r)
	if err != nil {
		return nil, fmt.Errorf("reading num_parameters: %w", err)
	}
	params := make([][]Annotation, numParameters)
	for i := range params {
		if params[i], err = readAnnotations(r); err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	return params, checkConsumed(r)
}

// DecodeAnnotations decodes the body of a Runtime(In)VisibleAnnotations
// attribute.
func DecodeAnnotations(data []byte) ([]Annotation, error) {
	r := bytes.NewReader(data)
	annotations, err := readAnnotations(r)
	if err != nil {
		return nil, err
	}
	return annotations, checkConsumed(r)
}

// DecodeElementValue decodes a lone element_value, the body of an
// AnnotationDefault attribute.
func DecodeElementValue(data []byte) (ElementValue, error) {
	r := bytes.NewReader(data)
	v, err := readElementValue(r)
	if err != nil {
		return ElementValue{}, err
	}
	return v, checkConsumed(r)
}

func checkConsumed(r *bytes.Reader) error {
	if r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes", r.Len())
	}
	return nil
}

func readAnnotations(r *bytes.Reader) ([]Annotation, error) {
	count, err := readU16(r)
	if err != nil {
		return nil, fmt.Errorf("reading num_annotations: %w", err)
	}
	out := make([]Annotation, count)
	for i := range out {
		if out[i], err = readAnnotation(r); err != nil {
			return nil, fmt.Errorf("annotation %d: %w", i, err)
		}
	}
	return out, nil
}

func readAnnotation(r *bytes.Reader) (Annotation, error) {
	typeIndex, numPairs, err := readIndexPair(r)
	if err != nil {
		return Annotation{}, fmt.Errorf("reading annotation header: %w", err)
	}
	a := Annotation{TypeIndex: typeIndex, Pairs: make([]ElementValuePair, numPairs)}
	for i := range a.Pairs {
		nameIndex, err := readU16(r)
		if err != nil {
			return Annotation{}, fmt.Errorf("reading pair %d name: %w", i, err)
		}
		value, err := readElementValue(r)
		if err != nil {
			return Annotation{}, fmt.Errorf("pair %d: %w", i, err)
		}
		a.Pairs[i] = ElementValuePair{NameIndex: nameIndex, Value: value}
	}
	return a, nil
}

func readElementValue(r *bytes.Reader) (ElementValue, error) {
	tag, err := readU8(r)
	if err != nil {
		return ElementValue{}, fmt.Errorf("reading element value tag: %w", err)
	}
	v := ElementValue{Tag: tag}
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's', 'c':
		v.ConstIndex, err = readU16(r)
	case 'e':
		v.TypeNameIndex, v.ConstNameIndex, err = readIndexPair(r)
	case '@':
		var a Annotation
		a, err = readAnnotation(r)
		v.Annotation = &a
	case '[':
		var count uint16
		if count, err = readU16(r); err != nil {
			break
		}
		v.Values = make([]ElementValue, count)
		for i := range v.Values {
			if v.Values[i], err = readElementValue(r); err != nil {
				return ElementValue{}, fmt.Errorf("array element %d: %w", i, err)
			}
		}
	default:
		return ElementValue{}, fmt.Errorf("unknown element value tag %q", tag)
	}
	if err != nil {
		return ElementValue{}, fmt.Errorf("element value %q: %w", tag, err)
	}
	return v, nil
}
