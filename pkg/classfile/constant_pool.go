package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
)

// ConstantPoolEntry is one decoded constant. Index-valued fields point back
// into the same pool.
type ConstantPoolEntry interface {
	Tag() uint8
}

type (
	ConstantUtf8    struct{ Value string }
	ConstantInteger struct{ Value int32 }
	ConstantFloat   struct{ Value float32 }
	ConstantLong    struct{ Value int64 }
	ConstantDouble  struct{ Value float64 }
	ConstantClass   struct{ NameIndex uint16 }
	ConstantString  struct{ StringIndex uint16 }

	ConstantNameAndType struct {
		NameIndex       uint16
		DescriptorIndex uint16
	}

	// ConstantMemberref is a Fieldref, Methodref or InterfaceMethodref;
	// RefTag tells which.
	ConstantMemberref struct {
		RefTag           uint8
		ClassIndex       uint16
		NameAndTypeIndex uint16
	}
)

func (*ConstantUtf8) Tag() uint8        { return TagUtf8 }
func (*ConstantInteger) Tag() uint8     { return TagInteger }
func (*ConstantFloat) Tag() uint8       { return TagFloat }
func (*ConstantLong) Tag() uint8        { return TagLong }
func (*ConstantDouble) Tag() uint8      { return TagDouble }
func (*ConstantClass) Tag() uint8       { return TagClass }
func (*ConstantString) Tag() uint8      { return TagString }
func (*ConstantNameAndType) Tag() uint8 { return TagNameAndType }
func (c *ConstantMemberref) Tag() uint8 { return c.RefTag }

func readU8(r io.Reader) (uint8, error) {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	return b[0], err
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// readIndexPair reads two consecutive u2 values.
func readIndexPair(r io.Reader) (uint16, uint16, error) {
	a, err := readU16(r)
	if err != nil {
		return 0, 0, err
	}
	b, err := readU16(r)
	return a, b, err
}

// parseConstantPool reads constant_pool_count-1 entries from the reader.
// The returned slice is 1-indexed: index 0 is nil, as is the slot after
// every Long and Double.
func parseConstantPool(r io.Reader, count uint16) ([]ConstantPoolEntry, error) {
	pool := make([]ConstantPoolEntry, count)

	for i := uint16(1); i < count; i++ {
		tag, err := readU8(r)
		if err != nil {
			return nil, fmt.Errorf("reading constant pool tag at index %d: %w", i, err)
		}

		switch tag {
		case TagUtf8:
			length, err := readU16(r)
			if err != nil {
				return nil, fmt.Errorf("reading Utf8 length at index %d: %w", i, err)
			}
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("reading Utf8 bytes at index %d: %w", i, err)
			}
			pool[i] = &ConstantUtf8{Value: decodeMUTF8(data)}

		case TagInteger, TagFloat:
			bits, err := readU32(r)
			if err != nil {
				return nil, fmt.Errorf("reading 4-byte constant at index %d: %w", i, err)
			}
			if tag == TagInteger {
				pool[i] = &ConstantInteger{Value: int32(bits)}
			} else {
				pool[i] = &ConstantFloat{Value: math.Float32frombits(bits)}
			}

		case TagLong, TagDouble:
			bits, err := readU64(r)
			if err != nil {
				return nil, fmt.Errorf("reading 8-byte constant at index %d: %w", i, err)
			}
			if tag == TagLong {
				pool[i] = &ConstantLong{Value: int64(bits)}
			} else {
				pool[i] = &ConstantDouble{Value: math.Float64frombits(bits)}
			}
			i++ // takes 2 slots

		case TagClass:
			nameIndex, err := readU16(r)
			if err != nil {
				return nil, fmt.Errorf("reading Class at index %d: %w", i, err)
			}
			pool[i] = &ConstantClass{NameIndex: nameIndex}

		case TagString:
			stringIndex, err := readU16(r)
			if err != nil {
				return nil, fmt.Errorf("reading String at index %d: %w", i, err)
			}
			pool[i] = &ConstantString{StringIndex: stringIndex}

		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			classIndex, natIndex, err := readIndexPair(r)
			if err != nil {
				return nil, fmt.Errorf("reading member ref at index %d: %w", i, err)
			}
			pool[i] = &ConstantMemberref{RefTag: tag, ClassIndex: classIndex, NameAndTypeIndex: natIndex}

		case TagNameAndType:
			nameIndex, descIndex, err := readIndexPair(r)
			if err != nil {
				return nil, fmt.Errorf("reading NameAndType at index %d: %w", i, err)
			}
			pool[i] = &ConstantNameAndType{NameIndex: nameIndex, DescriptorIndex: descIndex}

		case TagMethodHandle, TagMethodType, TagDynamic, TagInvokeDynamic:
			size := map[uint8]int{TagMethodHandle: 3, TagMethodType: 2, TagDynamic: 4, TagInvokeDynamic: 4}[tag]
			if _, err := io.ReadFull(r, make([]byte, size)); err != nil {
				return nil, fmt.Errorf("reading tag %d at index %d: %w", tag, i, err)
			}
			pool[i] = &constantPlaceholder{tag: tag}

		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
	}

	return pool, nil
}

// constantPlaceholder is used for constant pool entries we don't fully parse.
type constantPlaceholder struct {
	tag uint8
}

func (c *constantPlaceholder) Tag() uint8 { return c.tag }

func lookup(pool []ConstantPoolEntry, index uint16) (ConstantPoolEntry, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	return pool[index], nil
}

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	entry, err := lookup(pool, index)
	if err != nil {
		return "", err
	}
	utf8, ok := entry.(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8 (tag=%d)", index, entry.Tag())
	}
	return utf8.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, classIndex uint16) (string, error) {
	entry, err := lookup(pool, classIndex)
	if err != nil {
		return "", err
	}
	class, ok := entry.(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class", classIndex)
	}
	return GetUtf8(pool, class.NameIndex)
}

// MemberRefInfo holds a resolved field, method or interface method reference.
type MemberRefInfo struct {
	Tag        uint8
	ClassName  string
	Name       string
	Descriptor string
}

// ResolveMemberref resolves a Fieldref, Methodref or InterfaceMethodref.
func ResolveMemberref(pool []ConstantPoolEntry, index uint16) (*MemberRefInfo, error) {
	entry, err := lookup(pool, index)
	if err != nil {
		return nil, err
	}
	ref, ok := entry.(*ConstantMemberref)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not a member ref", index)
	}

	className, err := GetClassName(pool, ref.ClassIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving member ref class: %w", err)
	}
	natEntry, err := lookup(pool, ref.NameAndTypeIndex)
	if err != nil {
		return nil, err
	}
	nat, ok := natEntry.(*ConstantNameAndType)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not NameAndType", ref.NameAndTypeIndex)
	}
	name, err := GetUtf8(pool, nat.NameIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving member name: %w", err)
	}
	descriptor, err := GetUtf8(pool, nat.DescriptorIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving member descriptor: %w", err)
	}

	return &MemberRefInfo{
		Tag:        ref.RefTag,
		ClassName:  className,
		Name:       name,
		Descriptor: descriptor,
	}, nil
}
