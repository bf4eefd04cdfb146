package bytecode

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterDeduplicates(t *testing.T) {
	pool := NewClassConstantPool()

	first, err := pool.Register(NewUTF8("RuntimeVisibleParameterAnnotations"))
	require.NoError(t, err)
	second, err := pool.Register(NewUTF8("RuntimeVisibleParameterAnnotations"))
	require.NoError(t, err)

	require.Equal(t, uint16(1), first)
	require.Equal(t, first, second)
	require.Equal(t, 1, pool.Len())
	require.Equal(t, uint16(2), pool.Count())
}

func TestRegisterAssignsSequentialIndices(t *testing.T) {
	pool := NewClassConstantPool()

	for i, s := range []string{"a", "b", "c"} {
		index, err := pool.Register(NewUTF8(s))
		require.NoError(t, err)
		require.Equal(t, uint16(i+1), index)
	}

	again, err := pool.Register(NewUTF8("b"))
	require.NoError(t, err)
	require.Equal(t, uint16(2), again)
}

func TestRegisterComponentsFirst(t *testing.T) {
	pool := NewClassConstantPool()

	ref := NewMethodRef("java/lang/Object", "<init>", "()V")
	index, err := pool.Register(ref)
	require.NoError(t, err)

	// Utf8 name, Class, Utf8 <init>, Utf8 ()V, NameAndType, Methodref
	require.Equal(t, uint16(6), index)
	entries := pool.Entries()
	require.Len(t, entries, 6)
	require.Equal(t, NewUTF8("java/lang/Object"), entries[0])
	require.Equal(t, uint8(TagClass), entries[1].Tag())
	require.Equal(t, uint8(TagNameAndType), entries[4].Tag())

	classIndex, err := pool.IndexOf(NewClass("java/lang/Object"))
	require.NoError(t, err)
	require.Equal(t, uint16(2), classIndex)
}

func TestRegisterEqualityIsByKindAndValue(t *testing.T) {
	pool := NewClassConstantPool()

	utf, err := pool.Register(NewUTF8("x"))
	require.NoError(t, err)
	str, err := pool.Register(NewString("x"))
	require.NoError(t, err)
	require.NotEqual(t, utf, str)

	i, err := pool.Register(NewInteger(1))
	require.NoError(t, err)
	f, err := pool.Register(NewFloat(1))
	require.NoError(t, err)
	require.NotEqual(t, i, f)

	posZero, err := pool.Register(NewDouble(0))
	require.NoError(t, err)
	negZero, err := pool.Register(NewDouble(math.Copysign(0, -1)))
	require.NoError(t, err)
	require.NotEqual(t, posZero, negZero)

	nan1, err := pool.Register(NewFloat(float32(math.NaN())))
	require.NoError(t, err)
	nan2, err := pool.Register(NewFloat(float32(math.NaN())))
	require.NoError(t, err)
	require.Equal(t, nan1, nan2)
}

func TestWideEntriesTakeTwoSlots(t *testing.T) {
	pool := NewClassConstantPool()

	long, err := pool.Register(NewLong(42))
	require.NoError(t, err)
	next, err := pool.Register(NewUTF8("after"))
	require.NoError(t, err)

	require.Equal(t, uint16(1), long)
	require.Equal(t, uint16(3), next)
	require.Equal(t, uint16(4), pool.Count())

	_, ok := pool.Entry(2)
	require.False(t, ok)
	e, ok := pool.Entry(3)
	require.True(t, ok)
	require.Equal(t, "Utf8 \"after\"", e.String())
}

func TestIndexOfBeforeRegister(t *testing.T) {
	pool := NewClassConstantPool()

	_, err := pool.IndexOf(NewUTF8("missing"))
	var resolution *ResolutionError
	require.True(t, errors.As(err, &resolution))
	require.Contains(t, err.Error(), "missing")
}

func TestRegisterMalformed(t *testing.T) {
	pool := NewClassConstantPool()

	t.Run("nil entry", func(t *testing.T) {
		_, err := pool.Register(nil)
		var malformedErr *MalformedError
		require.ErrorAs(t, err, &malformedErr)
	})

	t.Run("typed nil entry", func(t *testing.T) {
		var u *UTF8
		_, err := pool.Register(u)
		var malformedErr *MalformedError
		require.ErrorAs(t, err, &malformedErr)
	})

	t.Run("class without name", func(t *testing.T) {
		_, err := pool.Register(&Class{})
		var malformedErr *MalformedError
		require.ErrorAs(t, err, &malformedErr)
		require.Equal(t, 0, pool.Len())
	})

	t.Run("nil name after empty name is pooled", func(t *testing.T) {
		pool := NewClassConstantPool()
		_, err := pool.Register(NewClass(""))
		require.NoError(t, err)
		_, err = pool.Register(NewString(""))
		require.NoError(t, err)
		before := pool.Len()

		var malformedErr *MalformedError
		_, err = pool.Register(&Class{})
		require.ErrorAs(t, err, &malformedErr)
		_, err = pool.Register(&String{})
		require.ErrorAs(t, err, &malformedErr)
		_, err = pool.Register(&FieldRef{memberRef{Class: &Class{}, NameAndType: NewNameAndType("f", "I")}})
		require.ErrorAs(t, err, &malformedErr)
		require.Equal(t, before, pool.Len())
	})
}

func TestRegisterUtf8TooLong(t *testing.T) {
	pool := NewClassConstantPool()

	_, err := pool.Register(NewUTF8(strings.Repeat("a", math.MaxUint16)))
	require.NoError(t, err)

	_, err = pool.Register(NewUTF8(strings.Repeat("b", math.MaxUint16+1)))
	var capacity *CapacityError
	require.ErrorAs(t, err, &capacity)
	require.Equal(t, math.MaxUint16+1, capacity.Count)
}

func TestPoolFull(t *testing.T) {
	pool := NewClassConstantPool()
	for i := 0; i < math.MaxUint16-1; i++ {
		_, err := pool.Register(NewInteger(int32(i)))
		require.NoError(t, err)
	}
	require.Equal(t, uint16(math.MaxUint16), pool.Count())

	_, err := pool.Register(NewInteger(-1))
	var capacity *CapacityError
	require.ErrorAs(t, err, &capacity)

	// Already pooled values still resolve.
	index, err := pool.Register(NewInteger(7))
	require.NoError(t, err)
	require.Equal(t, uint16(8), index)
}

func TestPoolWriteTo(t *testing.T) {
	pool := NewClassConstantPool()
	_, err := pool.Register(NewString("hi"))
	require.NoError(t, err)
	_, err = pool.Register(NewLong(-1))
	require.NoError(t, err)

	w := NewWriter()
	require.NoError(t, pool.WriteTo(w))
	require.Equal(t, []byte{
		0x00, 0x05, // count: utf8, string, long(2 slots) + 1
		TagUtf8, 0x00, 0x02, 'h', 'i',
		TagString, 0x00, 0x01,
		TagLong, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	}, w.Bytes())
	require.Equal(t, poolLength(pool), w.Len())
}

func TestEncodeMUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"ascii", "abc", []byte("abc")},
		{"nul", "a\x00b", []byte{'a', 0xC0, 0x80, 'b'}},
		{"two byte", "é", []byte{0xC3, 0xA9}},
		{"three byte", "€", []byte{0xE2, 0x82, 0xAC}},
		{"supplementary", "😀", []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, encodeMUTF8(tt.in))
		})
	}
}
