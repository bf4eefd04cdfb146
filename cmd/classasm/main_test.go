package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daimatz/classasm/pkg/bytecode"
	"github.com/daimatz/classasm/pkg/classfile"
	"github.com/daimatz/classasm/pkg/jar"
)

const descriptions = `
classes:
  - name: com/example/Base
    access: [public, super, abstract]
    methods:
      - name: run
        descriptor: (Ljava/lang/String;)V
        access: [public, abstract]
        parameter_annotations:
          visible:
            - [{type: Ljavax/annotation/Nullable;}]
  - name: com/example/Impl
    super: com/example/Base
    access: [public, super]
    source_file: Impl.java
`

// writeInputs writes the description file and a bootstrap jar holding
// java/lang/Object.
func writeInputs(t *testing.T) (desc, bootstrap string) {
	t.Helper()
	dir := t.TempDir()

	desc = filepath.Join(dir, "classes.yaml")
	require.NoError(t, os.WriteFile(desc, []byte(descriptions), 0o644))

	object, err := bytecode.NewAssembler().Assemble(&bytecode.ClassFile{
		MajorVersion: 52,
		AccessFlags:  bytecode.AccPublic | bytecode.AccSuper,
		ThisClass:    bytecode.NewClass("java/lang/Object"),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	jw := jar.NewWriter(&buf)
	require.NoError(t, jw.AddClass("java/lang/Object", object))
	require.NoError(t, jw.Close())
	bootstrap = filepath.Join(dir, "rt.jar")
	require.NoError(t, os.WriteFile(bootstrap, buf.Bytes(), 0o644))
	return desc, bootstrap
}

func TestRunWritesDirectory(t *testing.T) {
	desc, bootstrap := writeInputs(t)
	out := t.TempDir()

	var stdout, stderr bytes.Buffer
	err := run([]string{"--out", out, "--verify", "--bootstrap", bootstrap, "--digest", desc}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	cf, err := classfile.ParseFile(filepath.Join(out, "com", "example", "Base.class"))
	require.NoError(t, err)
	method := cf.FindMethod("run", "(Ljava/lang/String;)V")
	require.NotNil(t, method)
	require.NotNil(t, classfile.FindAttribute(method.Attributes, bytecode.AttrRuntimeVisibleParameterAnnotations))

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasSuffix(lines[0], "  com/example/Base.class"))
	require.Len(t, strings.Fields(lines[0])[0], 64)
	require.Contains(t, stderr.String(), "verified")
}

func TestRunWritesJar(t *testing.T) {
	desc, bootstrap := writeInputs(t)
	out := filepath.Join(t.TempDir(), "out.jar")

	var stdout, stderr bytes.Buffer
	err := run([]string{"--jar", out, "--verify", "--bootstrap", bootstrap, "-j", "2", desc}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	l := jar.NewArchiveLoader(out)
	names, err := l.ClassNames()
	require.NoError(t, err)
	require.Equal(t, []string{"com/example/Base", "com/example/Impl"}, names)
	require.NoError(t, l.VerifyDigests())
}

func TestRunConfigFile(t *testing.T) {
	desc, bootstrap := writeInputs(t)
	out := t.TempDir()

	config := filepath.Join(t.TempDir(), "classasm.yaml")
	require.NoError(t, os.WriteFile(config, []byte(
		"out: "+out+"\nworkers: 1\nlog_level: warn\ndigest: true\n"), 0o644))

	var stdout, stderr bytes.Buffer
	err := run([]string{"--config", config, "--bootstrap", bootstrap, "--digest=false", desc}, &stdout, &stderr)
	require.NoError(t, err)
	require.Empty(t, stdout.String())
	require.NotContains(t, stderr.String(), "assembled")

	_, err = os.Stat(filepath.Join(out, "com", "example", "Impl.class"))
	require.NoError(t, err)
}

func TestRunVerifyMissingSuperclass(t *testing.T) {
	dir := t.TempDir()
	desc := filepath.Join(dir, "orphan.yaml")
	require.NoError(t, os.WriteFile(desc, []byte("classes: [{name: Orphan, super: com/example/Missing}]"), 0o644))
	_, bootstrap := writeInputs(t)

	var stdout, stderr bytes.Buffer
	err := run([]string{"--out", dir, "--verify", "--bootstrap", bootstrap, desc}, &stdout, &stderr)
	require.ErrorContains(t, err, "com/example/Missing")
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
classes:
  - name: Good
  - name: Bad
    methods:
      - name: m
        descriptor: ()V
        code: {bytecode: "12 00", refs: [{offset: 5, narrow: true, constant: {kind: int, value: 1}}]}
`), 0o644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no inputs", nil, "no class descriptions"},
		{"missing file", []string{filepath.Join(dir, "nope.yaml")}, "nope.yaml"},
		{"bad log level", []string{"--log-level", "loud", bad}, "log level"},
		{"assembly failure", []string{"--out", dir, bad}, "1 of 2 classes failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(tt.args, &stdout, &stderr)
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRunVerifyOperandKinds(t *testing.T) {
	dir := t.TempDir()
	desc := filepath.Join(dir, "wrong.yaml")
	require.NoError(t, os.WriteFile(desc, []byte(`
classes:
  - name: Wrong
    methods:
      - name: m
        descriptor: ()V
        access: [static]
        code:
          max_stack: 1
          bytecode: bb 0000 57 b1
          refs: [{offset: 1, constant: {kind: int, value: 5}}]
`), 0o644))
	_, bootstrap := writeInputs(t)

	var stdout, stderr bytes.Buffer
	err := run([]string{"--out", dir, "--verify", "--bootstrap", bootstrap, desc}, &stdout, &stderr)
	require.ErrorContains(t, err, "Wrong.m()V")
	require.ErrorContains(t, err, "has tag 3")
}

func TestRunRejectsEscapingNames(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out")
	desc := filepath.Join(root, "evil.yaml")
	require.NoError(t, os.WriteFile(desc, []byte("classes: [{name: ../escaped/Evil}]"), 0o644))

	var stdout, stderr bytes.Buffer
	err := run([]string{"--out", out, desc}, &stdout, &stderr)
	require.ErrorContains(t, err, "invalid class name")

	_, err = os.Stat(filepath.Join(root, "escaped", "Evil.class"))
	require.True(t, os.IsNotExist(err))
}

func TestWriteDirRejectsEscapingNames(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out")
	err := writeDir(out, []string{"../escaped/Evil"}, [][]byte{{0xCA, 0xFE}})
	require.ErrorContains(t, err, "outside")

	_, err = os.Stat(filepath.Join(root, "escaped", "Evil.class"))
	require.True(t, os.IsNotExist(err))
}

func TestRunJarFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	desc := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(desc, []byte("classes: [{name: Dup}, {name: Dup}]"), 0o644))
	out := filepath.Join(dir, "out.jar")

	var stdout, stderr bytes.Buffer
	err := run([]string{"--jar", out, desc}, &stdout, &stderr)
	require.ErrorContains(t, err, "duplicate")

	_, err = os.Stat(out)
	require.True(t, os.IsNotExist(err))
}
