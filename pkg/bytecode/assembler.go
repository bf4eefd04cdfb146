package bytecode

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

const classMagic = 0xCAFEBABE

// Assembler turns ClassFile trees into class-file bytes. Every call works on
// its own ClassConstantPool, so one Assembler may serve many goroutines.
type Assembler struct {
	log zerolog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger used for per-class diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(a *Assembler) { a.log = log }
}

// NewAssembler creates an Assembler.
func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble resolves every entry of cf into a fresh pool, then writes the
// complete class file. On error no bytes are returned.
func (a *Assembler) Assemble(cf *ClassFile) ([]byte, error) {
	if cf == nil {
		return nil, malformed("nil class file")
	}
	name := cf.Name()

	pool := NewClassConstantPool()
	if err := resolveClass(pool, cf); err != nil {
		return nil, fmt.Errorf("assembling %s: %w", name, err)
	}
	size, err := classLength(pool, cf)
	if err != nil {
		return nil, fmt.Errorf("assembling %s: %w", name, err)
	}

	w := NewWriter()
	if err := writeClass(w, pool, cf); err != nil {
		return nil, fmt.Errorf("assembling %s: %w", name, err)
	}
	if w.Len() != size {
		return nil, fmt.Errorf("assembling %s: %w", name,
			malformed("wrote %d bytes, computed %d", w.Len(), size))
	}

	a.log.Debug().
		Str("class", name).
		Int("pool_entries", pool.Len()).
		Int("bytes", w.Len()).
		Msg("assembled class")
	return w.Bytes(), nil
}

// AssembleAttributes writes a constant pool followed by attributes_count and
// the given attributes, all resolved against one fresh pool.
func (a *Assembler) AssembleAttributes(attrs []Attribute) ([]byte, error) {
	pool := NewClassConstantPool()
	if err := resolveAttributes(pool, attrs); err != nil {
		return nil, err
	}
	if err := checkLengths(attrs); err != nil {
		return nil, err
	}

	w := NewWriter()
	if err := pool.WriteTo(w); err != nil {
		return nil, err
	}
	if err := writeAttributes(w, pool, attrs); err != nil {
		return nil, err
	}
	a.log.Debug().
		Int("attributes", len(attrs)).
		Int("pool_entries", pool.Len()).
		Msg("assembled attributes")
	return w.Bytes(), nil
}

// CollectEntries lists every constant pool entry cf refers to, in the order
// the assembler resolves them.
func (cf *ClassFile) CollectEntries() []ConstantPoolEntry {
	var out []ConstantPoolEntry
	out = append(out, cf.ThisClass)
	if cf.SuperClass != nil {
		out = append(out, cf.SuperClass)
	}
	for _, c := range cf.Interfaces {
		out = append(out, c)
	}
	for _, members := range [][]*Member{cf.Fields, cf.Methods} {
		for _, m := range members {
			out = append(out, m.Name, m.Descriptor)
			for _, attr := range m.Attributes {
				out = append(out, attr.CollectEntries()...)
			}
		}
	}
	for _, attr := range cf.Attributes {
		out = append(out, attr.CollectEntries()...)
	}
	return out
}

func resolveClass(pool *ClassConstantPool, cf *ClassFile) error {
	if cf.ThisClass == nil {
		return malformed("class has no this_class")
	}
	if _, err := pool.Register(cf.ThisClass); err != nil {
		return fmt.Errorf("this_class: %w", err)
	}
	if cf.SuperClass != nil {
		if _, err := pool.Register(cf.SuperClass); err != nil {
			return fmt.Errorf("super_class: %w", err)
		}
	}
	if err := checkCount("interfaces_count", len(cf.Interfaces), math.MaxUint16); err != nil {
		return err
	}
	for i, c := range cf.Interfaces {
		if _, err := pool.Register(c); err != nil {
			return fmt.Errorf("interface %d: %w", i, err)
		}
	}
	if err := resolveMembers(pool, "field", cf.Fields); err != nil {
		return err
	}
	if err := resolveMembers(pool, "method", cf.Methods); err != nil {
		return err
	}
	return resolveAttributes(pool, cf.Attributes)
}

func resolveMembers(pool *ClassConstantPool, kind string, members []*Member) error {
	if err := checkCount(kind+"s_count", len(members), math.MaxUint16); err != nil {
		return err
	}
	for i, m := range members {
		if m == nil {
			return malformed("%s %d is nil", kind, i)
		}
		if _, err := pool.Register(m.Name); err != nil {
			return fmt.Errorf("%s %d name: %w", kind, i, err)
		}
		if _, err := pool.Register(m.Descriptor); err != nil {
			return fmt.Errorf("%s %d descriptor: %w", kind, i, err)
		}
		if err := resolveAttributes(pool, m.Attributes); err != nil {
			return fmt.Errorf("%s %s%s: %w", kind, m.Name.Value, m.Descriptor.Value, err)
		}
	}
	return nil
}

// checkLengths verifies every attribute body fits its u4 length field.
func checkLengths(attrs []Attribute) error {
	for _, a := range attrs {
		if err := checkCount(utf8Text(a.Name())+" length", a.BodyLength(), math.MaxUint32); err != nil {
			return err
		}
	}
	return nil
}

// classLength computes the size of the class file from the tree shape. It
// needs the pool only for the constant pool table's own size.
func classLength(pool *ClassConstantPool, cf *ClassFile) (int, error) {
	n := 4 + 2 + 2 // magic, minor, major
	n += poolLength(pool)
	n += 2 + 2 + 2 // access, this, super
	n += 2 + 2*len(cf.Interfaces)
	for _, members := range [][]*Member{cf.Fields, cf.Methods} {
		n += 2
		for _, m := range members {
			if err := checkLengths(m.Attributes); err != nil {
				return 0, err
			}
			n += 6 + attributesLength(m.Attributes)
		}
	}
	if err := checkLengths(cf.Attributes); err != nil {
		return 0, err
	}
	return n + attributesLength(cf.Attributes), nil
}

func poolLength(pool *ClassConstantPool) int {
	n := 2
	for _, e := range pool.entries {
		switch e := e.(type) {
		case *UTF8:
			n += 3 + len(encodeMUTF8(e.Value))
		case *Integer, *Float:
			n += 5
		case *Long, *Double:
			n += 9
		case *Class, *String:
			n += 3
		default:
			n += 5
		}
	}
	return n
}

func writeClass(w *Writer, pool *ClassConstantPool, cf *ClassFile) error {
	w.U32(classMagic)
	w.U16(cf.MinorVersion)
	w.U16(cf.MajorVersion)
	if err := pool.WriteTo(w); err != nil {
		return err
	}

	w.U16(cf.AccessFlags)
	thisIndex, err := pool.IndexOf(cf.ThisClass)
	if err != nil {
		return err
	}
	w.U16(thisIndex)
	var superIndex uint16
	if cf.SuperClass != nil {
		if superIndex, err = pool.IndexOf(cf.SuperClass); err != nil {
			return err
		}
	}
	w.U16(superIndex)

	w.U16(uint16(len(cf.Interfaces)))
	for _, c := range cf.Interfaces {
		index, err := pool.IndexOf(c)
		if err != nil {
			return err
		}
		w.U16(index)
	}

	for _, members := range [][]*Member{cf.Fields, cf.Methods} {
		w.U16(uint16(len(members)))
		for _, m := range members {
			if err := writeMember(w, pool, m); err != nil {
				return err
			}
		}
	}
	return writeAttributes(w, pool, cf.Attributes)
}

func writeMember(w *Writer, pool *ClassConstantPool, m *Member) error {
	nameIndex, err := pool.IndexOf(m.Name)
	if err != nil {
		return err
	}
	descIndex, err := pool.IndexOf(m.Descriptor)
	if err != nil {
		return err
	}
	w.U16(m.AccessFlags)
	w.U16(nameIndex)
	w.U16(descIndex)
	if err := writeAttributes(w, pool, m.Attributes); err != nil {
		return fmt.Errorf("%s%s: %w", m.Name.Value, m.Descriptor.Value, err)
	}
	return nil
}
