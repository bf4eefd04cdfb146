package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const classMagic = 0xCAFEBABE

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// ParseBytes parses an in-memory class file.
func ParseBytes(data []byte) (*ClassFile, error) {
	return Parse(bytes.NewReader(data))
}

// Parse reads a .class file from the given reader and returns a ClassFile.
func Parse(r io.Reader) (*ClassFile, error) {
	cf := &ClassFile{}

	magic, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("reading magic number: %w", err)
	}
	if magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}

	if cf.MinorVersion, err = readU16(r); err != nil {
		return nil, fmt.Errorf("reading minor version: %w", err)
	}
	if cf.MajorVersion, err = readU16(r); err != nil {
		return nil, fmt.Errorf("reading major version: %w", err)
	}

	cpCount, err := readU16(r)
	if err != nil {
		return nil, fmt.Errorf("reading constant pool count: %w", err)
	}
	if cf.ConstantPool, err = parseConstantPool(r, cpCount); err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}

	for _, field := range []struct {
		name string
		dst  *uint16
	}{
		{"access flags", &cf.AccessFlags},
		{"this_class", &cf.ThisClass},
		{"super_class", &cf.SuperClass},
	} {
		if *field.dst, err = readU16(r); err != nil {
			return nil, fmt.Errorf("reading %s: %w", field.name, err)
		}
	}

	interfacesCount, err := readU16(r)
	if err != nil {
		return nil, fmt.Errorf("reading interfaces count: %w", err)
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	for i := range cf.Interfaces {
		if cf.Interfaces[i], err = readU16(r); err != nil {
			return nil, fmt.Errorf("reading interface %d: %w", i, err)
		}
	}

	if cf.Fields, err = parseMembers(r, cf.ConstantPool, "field"); err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}
	if cf.Methods, err = parseMembers(r, cf.ConstantPool, "method"); err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}
	for i := range cf.Methods {
		m := &cf.Methods[i]
		if attr := FindAttribute(m.Attributes, "Code"); attr != nil {
			if m.Code, err = parseCodeAttribute(attr.Data, cf.ConstantPool); err != nil {
				return nil, fmt.Errorf("parsing Code attribute for method %s: %w", m.Name, err)
			}
		}
	}

	if cf.Attributes, err = parseAttributeInfos(r, cf.ConstantPool); err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	if rest, _ := io.ReadAll(r); len(rest) > 0 {
		return nil, fmt.Errorf("%d trailing bytes after class attributes", len(rest))
	}
	return cf, nil
}

// parseMembers reads a members_count and that many field_info or method_info
// structures, which share a layout.
func parseMembers(r io.Reader, pool []ConstantPoolEntry, kind string) ([]MemberInfo, error) {
	count, err := readU16(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s count: %w", kind, err)
	}
	members := make([]MemberInfo, count)
	for i := range members {
		var header [3]uint16
		for j := range header {
			if header[j], err = readU16(r); err != nil {
				return nil, fmt.Errorf("reading %s %d header: %w", kind, i, err)
			}
		}

		name, err := GetUtf8(pool, header[1])
		if err != nil {
			return nil, fmt.Errorf("resolving %s %d name: %w", kind, i, err)
		}
		desc, err := GetUtf8(pool, header[2])
		if err != nil {
			return nil, fmt.Errorf("resolving %s %d descriptor: %w", kind, i, err)
		}

		attrs, err := parseAttributeInfos(r, pool)
		if err != nil {
			return nil, fmt.Errorf("parsing %s %d attributes: %w", kind, i, err)
		}

		members[i] = MemberInfo{
			AccessFlags: header[0],
			Name:        name,
			Descriptor:  desc,
			Attributes:  attrs,
		}
	}
	return members, nil
}

func parseAttributeInfos(r io.Reader, pool []ConstantPoolEntry) ([]AttributeInfo, error) {
	count, err := readU16(r)
	if err != nil {
		return nil, fmt.Errorf("reading attributes count: %w", err)
	}
	attrs := make([]AttributeInfo, count)
	for i := range attrs {
		nameIndex, err := readU16(r)
		if err != nil {
			return nil, fmt.Errorf("reading attribute %d name index: %w", i, err)
		}
		length, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("reading attribute %d length: %w", i, err)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("reading attribute %d data: %w", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving attribute %d name: %w", i, err)
		}

		attrs[i] = AttributeInfo{Name: name, Data: data}
	}
	return attrs, nil
}

func parseCodeAttribute(data []byte, pool []ConstantPoolEntry) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("Code attribute too short: %d bytes", len(data))
	}

	maxStack := binary.BigEndian.Uint16(data[0:2])
	maxLocals := binary.BigEndian.Uint16(data[2:4])
	codeLength := binary.BigEndian.Uint32(data[4:8])

	if len(data) < 8+int(codeLength) {
		return nil, fmt.Errorf("Code attribute data too short for code_length %d", codeLength)
	}

	code := make([]byte, codeLength)
	copy(code, data[8:8+codeLength])

	r := bytes.NewReader(data[8+codeLength:])
	exTableLen, err := readU16(r)
	if err != nil {
		return nil, fmt.Errorf("reading exception table length: %w", err)
	}
	handlers := make([]ExceptionHandler, exTableLen)
	for i := range handlers {
		var row [4]uint16
		for j := range row {
			if row[j], err = readU16(r); err != nil {
				return nil, fmt.Errorf("reading exception handler %d: %w", i, err)
			}
		}
		handlers[i] = ExceptionHandler{StartPC: row[0], EndPC: row[1], HandlerPC: row[2], CatchType: row[3]}
	}

	attrs, err := parseAttributeInfos(r, pool)
	if err != nil {
		return nil, fmt.Errorf("parsing Code attributes: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes in Code attribute", r.Len())
	}

	return &CodeAttribute{
		MaxStack:          maxStack,
		MaxLocals:         maxLocals,
		Code:              code,
		ExceptionHandlers: handlers,
		Attributes:        attrs,
	}, nil
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MemberInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindMethodByName finds a method by name only (first match).
func (cf *ClassFile) FindMethodByName(name string) *MemberInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name {
			return &cf.Methods[i]
		}
	}
	return nil
}
