// Package classdesc decodes YAML class descriptions into unassembled
// bytecode.ClassFile trees.
//
// A description file holds a list of classes:
//
//	classes:
//	  - name: com/example/Greeter
//	    access: [public, super]
//	    methods:
//	      - name: greet
//	        descriptor: (Ljava/lang/String;)V
//	        access: [public, abstract]
//	        parameter_annotations:
//	          visible:
//	            - [{type: Ljavax/annotation/Nullable;}]
package classdesc

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/daimatz/classasm/pkg/bytecode"
)

// DefaultMajorVersion is used when a class sets no version (Java 8).
const DefaultMajorVersion = 52

// File is the top level of a description file.
type File struct {
	Classes []Class `yaml:"classes"`
}

type Class struct {
	Name        string      `yaml:"name"`
	Super       *string     `yaml:"super"`
	Interfaces  []string    `yaml:"interfaces"`
	Access      []string    `yaml:"access"`
	Version     *Version    `yaml:"version"`
	SourceFile  string      `yaml:"source_file"`
	Signature   string      `yaml:"signature"`
	Deprecated  bool        `yaml:"deprecated"`
	Fields      []Field     `yaml:"fields"`
	Methods     []Method    `yaml:"methods"`
	Annotations Annotations `yaml:"annotations"`
}

type Version struct {
	Major uint16 `yaml:"major"`
	Minor uint16 `yaml:"minor"`
}

type Field struct {
	Name        string      `yaml:"name"`
	Descriptor  string      `yaml:"descriptor"`
	Access      []string    `yaml:"access"`
	Signature   string      `yaml:"signature"`
	Deprecated  bool        `yaml:"deprecated"`
	Synthetic   bool        `yaml:"synthetic"`
	Constant    *Constant   `yaml:"constant"`
	Annotations Annotations `yaml:"annotations"`
}

type Method struct {
	Name                 string               `yaml:"name"`
	Descriptor           string               `yaml:"descriptor"`
	Access               []string             `yaml:"access"`
	Signature            string               `yaml:"signature"`
	Deprecated           bool                 `yaml:"deprecated"`
	Synthetic            bool                 `yaml:"synthetic"`
	Exceptions           []string             `yaml:"exceptions"`
	Code                 *Code                `yaml:"code"`
	Annotations          Annotations          `yaml:"annotations"`
	ParameterAnnotations ParameterAnnotations `yaml:"parameter_annotations"`
	AnnotationDefault    *Value               `yaml:"annotation_default"`
}

// Annotations lists the visible and invisible annotations of a class, field
// or method.
type Annotations struct {
	Visible   []Annotation `yaml:"visible"`
	Invisible []Annotation `yaml:"invisible"`
}

// ParameterAnnotations has one list per formal parameter. A variant that is
// absent produces no attribute; an empty list per parameter is kept.
type ParameterAnnotations struct {
	Visible   [][]Annotation `yaml:"visible"`
	Invisible [][]Annotation `yaml:"invisible"`
}

type Annotation struct {
	Type   string       `yaml:"type"`
	Values []NamedValue `yaml:"values"`
}

type NamedValue struct {
	Name  string `yaml:"name"`
	Value Value  `yaml:"value"`
}

// Value is an annotation element value. Scalar kinds read Value; enum reads
// Type and Const; class reads Type; annotation reads Annotation; array reads
// Values.
type Value struct {
	Kind       string      `yaml:"kind"`
	Value      yaml.Node   `yaml:"value"`
	Type       string      `yaml:"type"`
	Const      string      `yaml:"const"`
	Annotation *Annotation `yaml:"annotation"`
	Values     []Value     `yaml:"values"`
}

// Constant is a constant pool entry referenced from a field initializer or
// an instruction operand.
type Constant struct {
	Kind       string    `yaml:"kind"`
	Value      yaml.Node `yaml:"value"`
	Class      string    `yaml:"class"`
	Name       string    `yaml:"name"`
	Descriptor string    `yaml:"descriptor"`
}

type Code struct {
	MaxStack  uint16       `yaml:"max_stack"`
	MaxLocals uint16       `yaml:"max_locals"`
	Bytecode  string       `yaml:"bytecode"`
	Refs      []Ref        `yaml:"refs"`
	Handlers  []Handler    `yaml:"handlers"`
	Lines     []LineNumber `yaml:"lines"`
}

// Ref marks an operand at Offset in the bytecode that is patched with the
// pool index of Constant.
type Ref struct {
	Offset   int      `yaml:"offset"`
	Narrow   bool     `yaml:"narrow"`
	Constant Constant `yaml:"constant"`
}

type Handler struct {
	Start   uint16 `yaml:"start"`
	End     uint16 `yaml:"end"`
	Handler uint16 `yaml:"handler"`
	Catch   string `yaml:"catch"`
}

type LineNumber struct {
	PC   uint16 `yaml:"pc"`
	Line uint16 `yaml:"line"`
}

// Load reads and builds every class in the description file at path.
func Load(path string) ([]*bytecode.ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	classes, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return classes, nil
}

// Decode reads a description document from r and builds its classes.
func Decode(r io.Reader) ([]*bytecode.ClassFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding class description: %w", err)
	}
	return file.Build()
}

// Build converts every class description into a bytecode.ClassFile.
func (f *File) Build() ([]*bytecode.ClassFile, error) {
	out := make([]*bytecode.ClassFile, 0, len(f.Classes))
	for i := range f.Classes {
		cf, err := f.Classes[i].Build()
		if err != nil {
			return nil, fmt.Errorf("class %d (%s): %w", i, f.Classes[i].Name, err)
		}
		out = append(out, cf)
	}
	return out, nil
}

func (c *Class) Build() (*bytecode.ClassFile, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("class has no name")
	}
	if err := checkClassName(c.Name); err != nil {
		return nil, err
	}
	access, err := parseAccess(c.Access)
	if err != nil {
		return nil, err
	}

	cf := &bytecode.ClassFile{
		MajorVersion: DefaultMajorVersion,
		AccessFlags:  access,
		ThisClass:    bytecode.NewClass(c.Name),
	}
	if c.Version != nil {
		cf.MajorVersion, cf.MinorVersion = c.Version.Major, c.Version.Minor
	}
	switch {
	case c.Super == nil:
		cf.SuperClass = bytecode.NewClass("java/lang/Object")
	case *c.Super != "":
		cf.SuperClass = bytecode.NewClass(*c.Super)
	}
	for _, name := range c.Interfaces {
		cf.Interfaces = append(cf.Interfaces, bytecode.NewClass(name))
	}

	for i := range c.Fields {
		m, err := c.Fields[i].build()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", c.Fields[i].Name, err)
		}
		cf.Fields = append(cf.Fields, m)
	}
	for i := range c.Methods {
		m, err := c.Methods[i].build()
		if err != nil {
			return nil, fmt.Errorf("method %s%s: %w", c.Methods[i].Name, c.Methods[i].Descriptor, err)
		}
		cf.Methods = append(cf.Methods, m)
	}

	if c.SourceFile != "" {
		cf.Attributes = append(cf.Attributes, bytecode.NewSourceFileAttribute(c.SourceFile))
	}
	common, err := commonAttributes(c.Signature, c.Deprecated, false, c.Annotations)
	if err != nil {
		return nil, err
	}
	cf.Attributes = append(cf.Attributes, common...)
	return cf, nil
}

func (f *Field) build() (*bytecode.Member, error) {
	access, err := parseAccess(f.Access)
	if err != nil {
		return nil, err
	}
	m := bytecode.NewMember(access, f.Name, f.Descriptor)
	if f.Constant != nil {
		entry, err := f.Constant.build()
		if err != nil {
			return nil, fmt.Errorf("constant: %w", err)
		}
		m.Attributes = append(m.Attributes, &bytecode.ConstantValueAttribute{Value: entry})
	}
	common, err := commonAttributes(f.Signature, f.Deprecated, f.Synthetic, f.Annotations)
	if err != nil {
		return nil, err
	}
	m.Attributes = append(m.Attributes, common...)
	return m, nil
}

func (md *Method) build() (*bytecode.Member, error) {
	access, err := parseAccess(md.Access)
	if err != nil {
		return nil, err
	}
	m := bytecode.NewMember(access, md.Name, md.Descriptor)

	if md.Code != nil {
		code, err := md.Code.build()
		if err != nil {
			return nil, fmt.Errorf("code: %w", err)
		}
		m.Attributes = append(m.Attributes, code)
	}
	if len(md.Exceptions) > 0 {
		m.Attributes = append(m.Attributes, bytecode.NewExceptionsAttribute(md.Exceptions...))
	}

	common, err := commonAttributes(md.Signature, md.Deprecated, md.Synthetic, md.Annotations)
	if err != nil {
		return nil, err
	}
	m.Attributes = append(m.Attributes, common...)

	for _, variant := range []struct {
		visible bool
		params  [][]Annotation
	}{
		{true, md.ParameterAnnotations.Visible},
		{false, md.ParameterAnnotations.Invisible},
	} {
		if variant.params == nil {
			continue
		}
		attr, err := buildParameterAnnotations(variant.visible, variant.params)
		if err != nil {
			return nil, err
		}
		m.Attributes = append(m.Attributes, attr)
	}

	if md.AnnotationDefault != nil {
		v, err := md.AnnotationDefault.build()
		if err != nil {
			return nil, fmt.Errorf("annotation_default: %w", err)
		}
		m.Attributes = append(m.Attributes, &bytecode.AnnotationDefaultAttribute{Default: v})
	}
	return m, nil
}

func buildParameterAnnotations(visible bool, params [][]Annotation) (*bytecode.ParameterAnnotationsAttribute, error) {
	out := make([]bytecode.ParameterAnnotation, len(params))
	for i, list := range params {
		anns, err := buildAnnotations(list)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		out[i] = bytecode.NewParameterAnnotation(anns...)
	}
	return bytecode.NewParameterAnnotationsAttribute(visible, out...), nil
}

// commonAttributes builds the attributes classes, fields and methods share.
func commonAttributes(signature string, deprecated, synthetic bool, anns Annotations) ([]bytecode.Attribute, error) {
	var out []bytecode.Attribute
	if signature != "" {
		out = append(out, bytecode.NewSignatureAttribute(signature))
	}
	if deprecated {
		out = append(out, &bytecode.DeprecatedAttribute{})
	}
	if synthetic {
		out = append(out, &bytecode.SyntheticAttribute{})
	}
	for _, variant := range []struct {
		visible bool
		list    []Annotation
	}{
		{true, anns.Visible},
		{false, anns.Invisible},
	} {
		if len(variant.list) == 0 {
			continue
		}
		built, err := buildAnnotations(variant.list)
		if err != nil {
			return nil, err
		}
		out = append(out, bytecode.NewAnnotationsAttribute(variant.visible, built...))
	}
	return out, nil
}

func buildAnnotations(list []Annotation) ([]*bytecode.Annotation, error) {
	out := make([]*bytecode.Annotation, 0, len(list))
	for i := range list {
		a, err := list[i].build()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (a *Annotation) build() (*bytecode.Annotation, error) {
	if a.Type == "" {
		return nil, fmt.Errorf("annotation has no type")
	}
	pairs := make([]bytecode.ElementValuePair, 0, len(a.Values))
	for _, nv := range a.Values {
		if nv.Name == "" {
			return nil, fmt.Errorf("annotation %s: value has no name", a.Type)
		}
		v, err := nv.Value.build()
		if err != nil {
			return nil, fmt.Errorf("annotation %s, element %s: %w", a.Type, nv.Name, err)
		}
		pairs = append(pairs, bytecode.Pair(nv.Name, v))
	}
	return bytecode.NewAnnotation(a.Type, pairs...), nil
}

// checkClassName rejects names that cannot be used as a relative path:
// absolute names and names with empty, "." or ".." segments.
func checkClassName(name string) error {
	for _, seg := range strings.Split(name, "/") {
		switch seg {
		case "", ".", "..":
			return fmt.Errorf("invalid class name %q", name)
		}
	}
	if strings.ContainsRune(name, '\\') {
		return fmt.Errorf("invalid class name %q", name)
	}
	return nil
}
