package classdesc

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/daimatz/classasm/pkg/bytecode"
)

var accessFlags = map[string]uint16{
	"public":       bytecode.AccPublic,
	"private":      bytecode.AccPrivate,
	"protected":    bytecode.AccProtected,
	"static":       bytecode.AccStatic,
	"final":        bytecode.AccFinal,
	"super":        bytecode.AccSuper,
	"synchronized": bytecode.AccSuper,
	"volatile":     0x0040,
	"bridge":       0x0040,
	"transient":    bytecode.AccVarargs,
	"varargs":      bytecode.AccVarargs,
	"native":       0x0100,
	"interface":    bytecode.AccInterface,
	"abstract":     bytecode.AccAbstract,
	"strict":       0x0800,
	"synthetic":    bytecode.AccSynthetic,
	"annotation":   bytecode.AccAnnotation,
	"enum":         bytecode.AccEnum,
}

// parseAccess ORs together named access flags. Names that share a bit
// (super/synchronized, volatile/bridge, transient/varargs) are accepted in
// any position.
func parseAccess(names []string) (uint16, error) {
	var flags uint16
	for _, name := range names {
		bit, ok := accessFlags[strings.ToLower(name)]
		if !ok {
			return 0, fmt.Errorf("unknown access flag %q", name)
		}
		flags |= bit
	}
	return flags, nil
}

func (v *Value) build() (bytecode.ElementValue, error) {
	switch v.Kind {
	case "int", "byte", "char", "short", "boolean", "long", "float", "double", "string":
		return v.buildScalar()
	case "enum":
		if v.Type == "" || v.Const == "" {
			return nil, fmt.Errorf("enum value needs type and const")
		}
		return bytecode.NewEnumValue(v.Type, v.Const), nil
	case "class":
		if v.Type == "" {
			return nil, fmt.Errorf("class value needs type")
		}
		return bytecode.NewClassValue(v.Type), nil
	case "annotation":
		if v.Annotation == nil {
			return nil, fmt.Errorf("annotation value needs annotation")
		}
		a, err := v.Annotation.build()
		if err != nil {
			return nil, err
		}
		return bytecode.NewAnnotationValue(a), nil
	case "array":
		elems := make([]bytecode.ElementValue, 0, len(v.Values))
		for i := range v.Values {
			e, err := v.Values[i].build()
			if err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
			elems = append(elems, e)
		}
		return bytecode.NewArrayValue(elems...), nil
	case "":
		return nil, fmt.Errorf("value has no kind")
	}
	return nil, fmt.Errorf("unknown value kind %q", v.Kind)
}

func (v *Value) buildScalar() (bytecode.ElementValue, error) {
	if v.Value.Kind == 0 {
		return nil, fmt.Errorf("%s value is missing", v.Kind)
	}
	text := v.Value.Value

	switch v.Kind {
	case "string":
		return bytecode.StringValue(text), nil
	case "boolean":
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, scalarError(&v.Value, v.Kind, err)
		}
		return bytecode.BooleanValue(b), nil
	case "char":
		r, size := utf8.DecodeRuneInString(text)
		if size == 0 || size != len(text) || r > 0xFFFF {
			return nil, scalarError(&v.Value, v.Kind, fmt.Errorf("need a single BMP character"))
		}
		return bytecode.CharValue(uint16(r)), nil
	case "float":
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, scalarError(&v.Value, v.Kind, err)
		}
		return bytecode.FloatValue(float32(f)), nil
	case "double":
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, scalarError(&v.Value, v.Kind, err)
		}
		return bytecode.DoubleValue(f), nil
	case "long":
		n, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return nil, scalarError(&v.Value, v.Kind, err)
		}
		return bytecode.LongValue(n), nil
	}

	bits := map[string]int{"byte": 8, "short": 16, "int": 32}[v.Kind]
	n, err := strconv.ParseInt(text, 0, bits)
	if err != nil {
		return nil, scalarError(&v.Value, v.Kind, err)
	}
	switch v.Kind {
	case "byte":
		return bytecode.ByteValue(int8(n)), nil
	case "short":
		return bytecode.ShortValue(int16(n)), nil
	}
	return bytecode.IntValue(int32(n)), nil
}

func scalarError(n *yaml.Node, kind string, err error) error {
	return fmt.Errorf("line %d: invalid %s %q: %w", n.Line, kind, n.Value, err)
}

func (c *Constant) build() (bytecode.ConstantPoolEntry, error) {
	text := c.Value.Value
	switch c.Kind {
	case "utf8":
		return bytecode.NewUTF8(text), nil
	case "string":
		return bytecode.NewString(text), nil
	case "class":
		if text == "" {
			return nil, fmt.Errorf("class constant needs value")
		}
		return bytecode.NewClass(text), nil
	case "int":
		n, err := strconv.ParseInt(text, 0, 32)
		if err != nil {
			return nil, scalarError(&c.Value, c.Kind, err)
		}
		return bytecode.NewInteger(int32(n)), nil
	case "long":
		n, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return nil, scalarError(&c.Value, c.Kind, err)
		}
		return bytecode.NewLong(n), nil
	case "float":
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, scalarError(&c.Value, c.Kind, err)
		}
		return bytecode.NewFloat(float32(f)), nil
	case "double":
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, scalarError(&c.Value, c.Kind, err)
		}
		return bytecode.NewDouble(f), nil
	case "field", "method", "interface_method":
		if c.Class == "" || c.Name == "" || c.Descriptor == "" {
			return nil, fmt.Errorf("%s constant needs class, name and descriptor", c.Kind)
		}
		switch c.Kind {
		case "field":
			return bytecode.NewFieldRef(c.Class, c.Name, c.Descriptor), nil
		case "method":
			return bytecode.NewMethodRef(c.Class, c.Name, c.Descriptor), nil
		}
		return bytecode.NewInterfaceMethodRef(c.Class, c.Name, c.Descriptor), nil
	}
	return nil, fmt.Errorf("unknown constant kind %q", c.Kind)
}

func (c *Code) build() (*bytecode.CodeAttribute, error) {
	code, err := hex.DecodeString(strings.Join(strings.Fields(c.Bytecode), ""))
	if err != nil {
		return nil, fmt.Errorf("bytecode: %w", err)
	}

	attr := &bytecode.CodeAttribute{
		MaxStack:  c.MaxStack,
		MaxLocals: c.MaxLocals,
		Code:      code,
	}
	for i, r := range c.Refs {
		entry, err := r.Constant.build()
		if err != nil {
			return nil, fmt.Errorf("ref %d: %w", i, err)
		}
		attr.Refs = append(attr.Refs, bytecode.ConstantRef{Offset: r.Offset, Narrow: r.Narrow, Entry: entry})
	}
	for _, h := range c.Handlers {
		handler := bytecode.ExceptionHandler{StartPC: h.Start, EndPC: h.End, HandlerPC: h.Handler}
		if h.Catch != "" {
			handler.CatchType = bytecode.NewClass(h.Catch)
		}
		attr.ExceptionHandlers = append(attr.ExceptionHandlers, handler)
	}
	if len(c.Lines) > 0 {
		table := &bytecode.LineNumberTableAttribute{}
		for _, l := range c.Lines {
			table.Lines = append(table.Lines, bytecode.LineNumber{StartPC: l.PC, Line: l.Line})
		}
		attr.Attributes = append(attr.Attributes, table)
	}
	return attr, nil
}
