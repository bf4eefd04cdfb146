package classdesc_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daimatz/classasm/pkg/bytecode"
	"github.com/daimatz/classasm/pkg/classdesc"
	"github.com/daimatz/classasm/pkg/classfile"
)

const greeterYAML = `
classes:
  - name: com/example/Greeter
    access: [public, super]
    interfaces: [java/io/Serializable]
    source_file: Greeter.java
    annotations:
      visible:
        - type: Ljava/lang/Deprecated;
    fields:
      - name: LIMIT
        descriptor: J
        access: [public, static, final]
        constant: {kind: long, value: 0x10}
    methods:
      - name: <init>
        descriptor: ()V
        access: [public]
        code:
          max_stack: 1
          max_locals: 1
          bytecode: 2a b7 0000 b1
          refs:
            - offset: 2
              constant: {kind: method, class: java/lang/Object, name: <init>, descriptor: ()V}
          lines:
            - {pc: 0, line: 3}
      - name: greet
        descriptor: (Ljava/lang/String;I)V
        access: [public, abstract]
        exceptions: [java/io/IOException]
        parameter_annotations:
          visible:
            - [{type: Ljavax/annotation/Nullable;}]
            - []
          invisible:
            - []
            - - type: LRange;
                values:
                  - {name: min, value: {kind: int, value: 1}}
                  - {name: max, value: {kind: int, value: 10}}
`

func TestDecodeGreeter(t *testing.T) {
	classes, err := classdesc.Decode(strings.NewReader(greeterYAML))
	require.NoError(t, err)
	require.Len(t, classes, 1)

	cf := classes[0]
	require.Equal(t, "com/example/Greeter", cf.Name())
	require.Equal(t, uint16(classdesc.DefaultMajorVersion), cf.MajorVersion)
	require.Equal(t, uint16(bytecode.AccPublic|bytecode.AccSuper), cf.AccessFlags)
	require.Equal(t, "java/lang/Object", cf.SuperClass.Name.Value)

	greet := cf.FindMethod("greet", "(Ljava/lang/String;I)V")
	require.NotNil(t, greet)
	require.Equal(t, uint16(bytecode.AccPublic|bytecode.AccAbstract), greet.AccessFlags)

	var params []*bytecode.ParameterAnnotationsAttribute
	for _, a := range greet.Attributes {
		if p, ok := a.(*bytecode.ParameterAnnotationsAttribute); ok {
			params = append(params, p)
		}
	}
	require.Len(t, params, 2)
	require.True(t, params[0].Visible())
	require.Len(t, params[0].Parameters, 2)
	require.Len(t, params[0].Parameters[0].Annotations, 1)
	require.Empty(t, params[0].Parameters[1].Annotations)
	require.False(t, params[1].Visible())
	require.Len(t, params[1].Parameters[1].Annotations[0].Pairs, 2)
}

func TestDecodedClassAssembles(t *testing.T) {
	classes, err := classdesc.Decode(strings.NewReader(greeterYAML))
	require.NoError(t, err)

	data, err := bytecode.NewAssembler().Assemble(classes[0])
	require.NoError(t, err)

	cf, err := classfile.ParseBytes(data)
	require.NoError(t, err)
	name, err := cf.ClassName()
	require.NoError(t, err)
	require.Equal(t, "com/example/Greeter", name)

	greet := cf.FindMethod("greet", "(Ljava/lang/String;I)V")
	require.NotNil(t, greet)
	attr := classfile.FindAttribute(greet.Attributes, bytecode.AttrRuntimeVisibleParameterAnnotations)
	require.NotNil(t, attr)
	params, err := classfile.DecodeParameterAnnotations(attr.Data)
	require.NoError(t, err)
	require.Len(t, params, 2)

	init := cf.FindMethod("<init>", "()V")
	require.NotNil(t, init.Code)
	require.Equal(t, []byte{0x2a, 0xb7}, init.Code.Code[:2])
	require.NotNil(t, classfile.FindAttribute(cf.Fields[0].Attributes, bytecode.AttrConstantValue))
}

func TestDecodeValueKinds(t *testing.T) {
	doc := `
classes:
  - name: Kinds
    super: ""
    annotations:
      invisible:
        - type: LAll;
          values:
            - {name: b, value: {kind: byte, value: -1}}
            - {name: c, value: {kind: char, value: x}}
            - {name: s, value: {kind: short, value: 300}}
            - {name: z, value: {kind: boolean, value: true}}
            - {name: j, value: {kind: long, value: 9000000000}}
            - {name: f, value: {kind: float, value: 1.5}}
            - {name: d, value: {kind: double, value: 2.25}}
            - {name: str, value: {kind: string, value: hello}}
            - {name: e, value: {kind: enum, type: LColor;, const: RED}}
            - {name: cls, value: {kind: class, type: Ljava/lang/String;}}
            - {name: ann, value: {kind: annotation, annotation: {type: LInner;}}}
            - name: arr
              value:
                kind: array
                values:
                  - {kind: int, value: 1}
                  - {kind: int, value: 2}
`
	classes, err := classdesc.Decode(strings.NewReader(doc))
	require.NoError(t, err)
	cf := classes[0]
	require.Nil(t, cf.SuperClass)

	require.Len(t, cf.Attributes, 1)
	attr, ok := cf.Attributes[0].(*bytecode.AnnotationsAttribute)
	require.True(t, ok)
	require.False(t, strings.HasPrefix(attr.Name().Value, "RuntimeVisible"))

	var tags []byte
	for _, p := range attr.Annotations[0].Pairs {
		tags = append(tags, p.Value.Tag())
	}
	require.Equal(t, []byte("BCSZJFDsec@["), tags)

	_, err = bytecode.NewAssembler().Assemble(cf)
	require.NoError(t, err)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", "classes: [{name: A, bogus: 1}]", "bogus"},
		{"missing name", "classes: [{access: [public]}]", "no name"},
		{"unknown access", "classes: [{name: A, access: [sealed]}]", "sealed"},
		{"byte out of range", "classes: [{name: A, annotations: {visible: [{type: LA;, values: [{name: v, value: {kind: byte, value: 300}}]}]}}]", "invalid byte"},
		{"unknown kind", "classes: [{name: A, annotations: {visible: [{type: LA;, values: [{name: v, value: {kind: quux}}]}]}}]", "quux"},
		{"bad bytecode", "classes: [{name: A, methods: [{name: m, descriptor: ()V, code: {bytecode: zz}}]}]", "bytecode"},
		{"parent segment", "classes: [{name: ../escaped/Evil}]", "invalid class name"},
		{"absolute name", "classes: [{name: /tmp/Evil}]", "invalid class name"},
		{"empty segment", "classes: [{name: com//Evil}]", "invalid class name"},
		{"bad ref", "classes: [{name: A, methods: [{name: m, descriptor: ()V, code: {bytecode: b1, refs: [{offset: 0, constant: {kind: method}}]}}]}]", "needs class"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := classdesc.Decode(strings.NewReader(tt.doc))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "greeter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(greeterYAML), 0o644))

	classes, err := classdesc.Load(path)
	require.NoError(t, err)
	require.Len(t, classes, 1)

	_, err = classdesc.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDecodeEmpty(t *testing.T) {
	classes, err := classdesc.Decode(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, classes)
}
