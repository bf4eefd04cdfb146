package classfile_test

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/daimatz/classasm/pkg/bytecode"
	"github.com/daimatz/classasm/pkg/classfile"
)

// helloClass は Hello.main を持つクラスを組み立てる
func helloClass(t *testing.T) []byte {
	t.Helper()
	main := &bytecode.CodeAttribute{
		MaxStack:  2,
		MaxLocals: 1,
		// getstatic System.out; ldc "Hello"; invokevirtual println; return
		Code: []byte{0xb2, 0, 0, 0x12, 0, 0xb6, 0, 0, 0xb1},
		Refs: []bytecode.ConstantRef{
			{Offset: 1, Entry: bytecode.NewFieldRef("java/lang/System", "out", "Ljava/io/PrintStream;")},
			{Offset: 4, Narrow: true, Entry: bytecode.NewString("Hello, World!")},
			{Offset: 6, Entry: bytecode.NewMethodRef("java/io/PrintStream", "println", "(Ljava/lang/String;)V")},
		},
	}
	cf := &bytecode.ClassFile{
		MajorVersion: 52,
		AccessFlags:  bytecode.AccPublic | bytecode.AccSuper,
		ThisClass:    bytecode.NewClass("Hello"),
		SuperClass:   bytecode.NewClass("java/lang/Object"),
		Fields: []*bytecode.Member{
			bytecode.NewMember(bytecode.AccPrivate, "big", "J",
				&bytecode.ConstantValueAttribute{Value: bytecode.NewLong(1 << 40)}),
		},
		Methods: []*bytecode.Member{
			bytecode.NewMember(bytecode.AccPublic|bytecode.AccStatic, "main", "([Ljava/lang/String;)V", main),
		},
		Attributes: []bytecode.Attribute{bytecode.NewSourceFileAttribute("Hello.java")},
	}
	data, err := bytecode.NewAssembler().Assemble(cf)
	if err != nil {
		t.Fatalf("assembling Hello: %v", err)
	}
	return data
}

func TestParseClassFile(t *testing.T) {
	cf, err := classfile.ParseBytes(helloClass(t))
	if err != nil {
		t.Fatalf("failed to parse Hello: %v", err)
	}

	if cf.MajorVersion != 52 {
		t.Errorf("major version: got %d, want 52", cf.MajorVersion)
	}

	// this_class が "Hello" を指すこと
	className, err := cf.ClassName()
	if err != nil {
		t.Fatalf("resolving this_class: %v", err)
	}
	if className != "Hello" {
		t.Errorf("this_class: got %q, want %q", className, "Hello")
	}
	if got := cf.SuperClassName(); got != "java/lang/Object" {
		t.Errorf("super_class: got %q, want %q", got, "java/lang/Object")
	}

	mainMethod := cf.FindMethod("main", "([Ljava/lang/String;)V")
	if mainMethod == nil {
		t.Fatal("main method not found")
	}
	if mainMethod.Code == nil {
		t.Fatal("main method has no Code attribute")
	}
	if mainMethod.Code.MaxStack != 2 || mainMethod.Code.MaxLocals != 1 {
		t.Errorf("max stack/locals: got %d/%d, want 2/1", mainMethod.Code.MaxStack, mainMethod.Code.MaxLocals)
	}
	if cf.FindMethodByName("main") != mainMethod {
		t.Error("FindMethodByName did not return main")
	}

	// invokevirtual のオペランドが println を指すこと
	code := mainMethod.Code.Code
	ref, err := classfile.ResolveMemberref(cf.ConstantPool, binary.BigEndian.Uint16(code[6:8]))
	if err != nil {
		t.Fatalf("resolving invokevirtual operand: %v", err)
	}
	want := classfile.MemberRefInfo{
		Tag:        classfile.TagMethodref,
		ClassName:  "java/io/PrintStream",
		Name:       "println",
		Descriptor: "(Ljava/lang/String;)V",
	}
	if *ref != want {
		t.Errorf("invokevirtual operand: got %+v, want %+v", *ref, want)
	}

	// getstatic は Fieldref
	field, err := classfile.ResolveMemberref(cf.ConstantPool, binary.BigEndian.Uint16(code[1:3]))
	if err != nil {
		t.Fatalf("resolving getstatic operand: %v", err)
	}
	if field.Tag != classfile.TagFieldref || field.Name != "out" {
		t.Errorf("getstatic operand: got %+v", *field)
	}

	// Long は 2 スロットを占める
	if len(cf.Fields) != 1 {
		t.Fatalf("fields: got %d, want 1", len(cf.Fields))
	}
	cv := classfile.FindAttribute(cf.Fields[0].Attributes, "ConstantValue")
	if cv == nil {
		t.Fatal("field has no ConstantValue")
	}
	index := binary.BigEndian.Uint16(cv.Data)
	long, ok := cf.ConstantPool[index].(*classfile.ConstantLong)
	if !ok || long.Value != 1<<40 {
		t.Errorf("ConstantValue: got %#v", cf.ConstantPool[index])
	}
	if int(index)+1 < len(cf.ConstantPool) && cf.ConstantPool[index+1] != nil {
		t.Errorf("slot after Long should be empty, got %#v", cf.ConstantPool[index+1])
	}

	if classfile.FindAttribute(cf.Attributes, "SourceFile") == nil {
		t.Error("SourceFile attribute not found")
	}
}

func TestParseInvalidMagic(t *testing.T) {
	_, err := classfile.Parse(bytes.NewReader([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	if err == nil {
		t.Fatal("expected error for invalid magic number")
	}
	if !strings.Contains(err.Error(), "magic") {
		t.Errorf("error should mention magic: %v", err)
	}
}

func TestParseTruncatedAndTrailing(t *testing.T) {
	data := helloClass(t)

	for _, n := range []int{0, 6, 10, len(data) / 2, len(data) - 1} {
		if _, err := classfile.ParseBytes(data[:n]); err == nil {
			t.Errorf("truncated at %d: expected error", n)
		}
	}

	if _, err := classfile.ParseBytes(append(data, 0x00)); err == nil {
		t.Error("trailing byte: expected error")
	}
}

func TestGetUtf8WrongKind(t *testing.T) {
	cf, err := classfile.ParseBytes(helloClass(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := classfile.GetUtf8(cf.ConstantPool, cf.ThisClass); err == nil {
		t.Error("GetUtf8 on a Class entry: expected error")
	}
	if _, err := classfile.GetUtf8(cf.ConstantPool, 0); err == nil {
		t.Error("GetUtf8 on index 0: expected error")
	}
	if _, err := classfile.ResolveMemberref(cf.ConstantPool, cf.ThisClass); err == nil {
		t.Error("ResolveMemberref on a Class entry: expected error")
	}
}

func TestParseNonASCIIUtf8(t *testing.T) {
	names := []string{"a\x00b", "café", "€uro", "😀"}
	var methods []*bytecode.Member
	for _, n := range names {
		methods = append(methods, bytecode.NewMember(bytecode.AccAbstract, n, "()V"))
	}
	data, err := bytecode.NewAssembler().Assemble(&bytecode.ClassFile{
		ThisClass: bytecode.NewClass("Names"),
		Methods:   methods,
	})
	if err != nil {
		t.Fatal(err)
	}

	cf, err := classfile.ParseBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range names {
		if got := cf.Methods[i].Name; got != want {
			t.Errorf("method %d: got %q, want %q", i, got, want)
		}
	}
}
