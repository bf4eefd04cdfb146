package bytecode

import (
	"fmt"
	"math"
)

// maxCodeLength is the JVM limit on code_length.
const maxCodeLength = math.MaxUint16

// ConstantRef marks an instruction operand in Code that holds a constant pool
// index. The operand is patched with the entry's pool index when the
// attribute is written. Narrow operands (ldc) are one byte, the rest two.
type ConstantRef struct {
	Offset int
	Narrow bool
	Entry  ConstantPoolEntry
}

// ExceptionHandler is one exception_table row. A nil CatchType catches
// everything (finally).
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType *Class
}

// CodeAttribute is the Code attribute of a method.
type CodeAttribute struct {
	MaxStack          uint16
	MaxLocals         uint16
	Code              []byte
	Refs              []ConstantRef
	ExceptionHandlers []ExceptionHandler
	Attributes        []Attribute
}

func (a *CodeAttribute) Name() *UTF8 { return NewUTF8(AttrCode) }
func (a *CodeAttribute) attribute()  {}

func (a *CodeAttribute) CollectEntries() []ConstantPoolEntry {
	out := []ConstantPoolEntry{a.Name()}
	for _, r := range a.Refs {
		out = append(out, r.Entry)
	}
	for _, h := range a.ExceptionHandlers {
		if h.CatchType != nil {
			out = append(out, h.CatchType)
		}
	}
	for _, attr := range a.Attributes {
		if attr != nil {
			out = append(out, attr.CollectEntries()...)
		}
	}
	return out
}

func (a *CodeAttribute) check() error {
	if len(a.Code) == 0 {
		return malformed("Code attribute has no instructions")
	}
	if err := checkCount("code_length", len(a.Code), maxCodeLength); err != nil {
		return err
	}
	if err := checkCount("exception_table_length", len(a.ExceptionHandlers), math.MaxUint16); err != nil {
		return err
	}
	for i, r := range a.Refs {
		width := 2
		if r.Narrow {
			width = 1
		}
		if r.Offset < 0 || r.Offset+width > len(a.Code) {
			return malformed("constant ref %d at offset %d is outside the code", i, r.Offset)
		}
	}
	return nil
}

func (a *CodeAttribute) Resolve(pool *ClassConstantPool) error {
	if err := a.check(); err != nil {
		return err
	}
	if _, err := pool.Register(a.Name()); err != nil {
		return err
	}
	for i, r := range a.Refs {
		if _, err := pool.Register(r.Entry); err != nil {
			return fmt.Errorf("constant ref %d: %w", i, err)
		}
	}
	for _, h := range a.ExceptionHandlers {
		if h.CatchType == nil {
			continue
		}
		if _, err := pool.Register(h.CatchType); err != nil {
			return err
		}
	}
	return resolveAttributes(pool, a.Attributes)
}

func (a *CodeAttribute) BodyLength() int {
	return 2 + 2 + 4 + len(a.Code) + 2 + 8*len(a.ExceptionHandlers) + attributesLength(a.Attributes)
}

func (a *CodeAttribute) WriteBody(w *Writer, pool *ClassConstantPool) error {
	if err := a.check(); err != nil {
		return err
	}
	code := make([]byte, len(a.Code))
	copy(code, a.Code)
	for i, r := range a.Refs {
		index, err := pool.IndexOf(r.Entry)
		if err != nil {
			return fmt.Errorf("constant ref %d: %w", i, err)
		}
		if r.Narrow {
			if err := checkCount("ldc operand", int(index), math.MaxUint8); err != nil {
				return err
			}
			code[r.Offset] = uint8(index)
			continue
		}
		code[r.Offset] = uint8(index >> 8)
		code[r.Offset+1] = uint8(index)
	}

	w.U16(a.MaxStack)
	w.U16(a.MaxLocals)
	w.U32(uint32(len(code)))
	w.Write(code)

	w.U16(uint16(len(a.ExceptionHandlers)))
	for _, h := range a.ExceptionHandlers {
		var catchType uint16
		if h.CatchType != nil {
			index, err := pool.IndexOf(h.CatchType)
			if err != nil {
				return err
			}
			catchType = index
		}
		w.U16(h.StartPC)
		w.U16(h.EndPC)
		w.U16(h.HandlerPC)
		w.U16(catchType)
	}
	return writeAttributes(w, pool, a.Attributes)
}
