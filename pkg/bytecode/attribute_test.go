package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAttributeWrapper(t *testing.T) {
	attr := NewSourceFileAttribute("Main.java")
	pool := NewClassConstantPool()
	require.NoError(t, attr.Resolve(pool))

	w := NewWriter()
	require.NoError(t, WriteAttribute(w, pool, attr))

	nameIndex, err := pool.IndexOf(NewUTF8(AttrSourceFile))
	require.NoError(t, err)
	fileIndex, err := pool.IndexOf(NewUTF8("Main.java"))
	require.NoError(t, err)
	require.Equal(t, []byte{
		byte(nameIndex >> 8), byte(nameIndex),
		0x00, 0x00, 0x00, 0x02,
		byte(fileIndex >> 8), byte(fileIndex),
	}, w.Bytes())
}

func TestWriteAttributeUnresolvedName(t *testing.T) {
	var resolution *ResolutionError
	err := WriteAttribute(NewWriter(), NewClassConstantPool(), &DeprecatedAttribute{})
	require.ErrorAs(t, err, &resolution)
}

func TestSimpleAttributes(t *testing.T) {
	tests := []struct {
		name string
		attr Attribute
		size int
	}{
		{"exceptions", NewExceptionsAttribute("java/io/IOException", "java/lang/InterruptedException"), 6},
		{"no exceptions", NewExceptionsAttribute(), 2},
		{"line numbers", &LineNumberTableAttribute{Lines: []LineNumber{{0, 10}, {4, 11}}}, 10},
		{"source file", NewSourceFileAttribute("A.java"), 2},
		{"signature", NewSignatureAttribute("Ljava/util/List<Ljava/lang/String;>;"), 2},
		{"constant int", &ConstantValueAttribute{Value: NewInteger(42)}, 2},
		{"constant string", &ConstantValueAttribute{Value: NewString("x")}, 2},
		{"constant long", &ConstantValueAttribute{Value: NewLong(1)}, 2},
		{"deprecated", &DeprecatedAttribute{}, 0},
		{"synthetic", &SyntheticAttribute{}, 0},
		{"annotation default", &AnnotationDefaultAttribute{Default: NewEnumValue("LE;", "A")}, 5},
		{"annotations", NewAnnotationsAttribute(false, NewAnnotation("LA;"), NewAnnotation("LB;")), 2 + 4 + 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, pool := resolveAndWrite(t, tt.attr)
			require.Len(t, body, tt.size)
			for _, e := range tt.attr.CollectEntries() {
				_, err := pool.IndexOf(e)
				require.NoError(t, err, e.String())
			}
		})
	}
}

func TestExceptionsAttributeBody(t *testing.T) {
	body, pool := resolveAndWrite(t, NewExceptionsAttribute("java/io/IOException"))
	index, err := pool.IndexOf(NewClass("java/io/IOException"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x01, byte(index >> 8), byte(index)}, body)
}

func TestConstantValueRejectsWrongKind(t *testing.T) {
	var malformedErr *MalformedError
	attr := &ConstantValueAttribute{Value: NewClass("A")}
	require.ErrorAs(t, attr.Resolve(NewClassConstantPool()), &malformedErr)

	attr = &ConstantValueAttribute{}
	require.ErrorAs(t, attr.Resolve(NewClassConstantPool()), &malformedErr)
}

func TestAnnotationDefaultWithoutValue(t *testing.T) {
	var malformedErr *MalformedError
	attr := &AnnotationDefaultAttribute{}
	require.ErrorAs(t, attr.Resolve(NewClassConstantPool()), &malformedErr)
	require.ErrorAs(t, attr.WriteBody(NewWriter(), NewClassConstantPool()), &malformedErr)
}

func TestCodeAttributePatchesOperands(t *testing.T) {
	field := NewFieldRef("java/lang/System", "out", "Ljava/io/PrintStream;")
	attr := &CodeAttribute{
		MaxStack:  2,
		MaxLocals: 1,
		// getstatic #0; ldc #0; pop2; return
		Code: []byte{0xb2, 0x00, 0x00, 0x12, 0x00, 0x58, 0xb1},
		Refs: []ConstantRef{
			{Offset: 1, Entry: field},
			{Offset: 4, Narrow: true, Entry: NewString("hi")},
		},
		ExceptionHandlers: []ExceptionHandler{
			{StartPC: 0, EndPC: 5, HandlerPC: 6},
		},
		Attributes: []Attribute{&LineNumberTableAttribute{Lines: []LineNumber{{0, 3}}}},
	}
	original := append([]byte(nil), attr.Code...)

	body, pool := resolveAndWrite(t, attr)

	fieldIndex, err := pool.IndexOf(field)
	require.NoError(t, err)
	strIndex, err := pool.IndexOf(NewString("hi"))
	require.NoError(t, err)

	code := body[8 : 8+7]
	require.Equal(t, []byte{0xb2, byte(fieldIndex >> 8), byte(fieldIndex), 0x12, byte(strIndex), 0x58, 0xb1}, code)
	// Patching works on a copy.
	require.Equal(t, original, attr.Code)

	table := body[15:25]
	require.Equal(t, []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x05, 0x00, 0x06, 0x00, 0x00}, table)
}

func TestCodeAttributeMalformed(t *testing.T) {
	tests := []struct {
		name string
		attr *CodeAttribute
	}{
		{"empty code", &CodeAttribute{}},
		{"ref past end", &CodeAttribute{Code: []byte{0xb2, 0x00}, Refs: []ConstantRef{{Offset: 1, Entry: NewInteger(1)}}}},
		{"negative offset", &CodeAttribute{Code: []byte{0x12, 0x00}, Refs: []ConstantRef{{Offset: -1, Narrow: true, Entry: NewInteger(1)}}}},
		{"ref without entry", &CodeAttribute{Code: []byte{0x12, 0x00}, Refs: []ConstantRef{{Offset: 1, Narrow: true}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var malformedErr *MalformedError
			require.ErrorAs(t, tt.attr.Resolve(NewClassConstantPool()), &malformedErr)
		})
	}
}

func TestCodeAttributeNarrowOperandCapacity(t *testing.T) {
	pool := NewClassConstantPool()
	for i := 0; i < 300; i++ {
		_, err := pool.Register(NewInteger(int32(i)))
		require.NoError(t, err)
	}
	attr := &CodeAttribute{
		Code: []byte{0x12, 0x00, 0xb1},
		Refs: []ConstantRef{{Offset: 1, Narrow: true, Entry: NewInteger(299)}},
	}
	require.NoError(t, attr.Resolve(pool))

	var capacity *CapacityError
	require.ErrorAs(t, attr.WriteBody(NewWriter(), pool), &capacity)
	require.Equal(t, 300, capacity.Count)
}
