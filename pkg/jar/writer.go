package jar

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Writer builds a jar. Entries are buffered until Close, which writes the
// manifest first and then every entry in the order it was added.
type Writer struct {
	w        io.Writer
	manifest *Manifest
	names    []string
	data     map[string][]byte
	closed   bool
}

// NewWriter creates a Writer that writes the jar to w on Close.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:        w,
		manifest: newManifest(),
		data:     make(map[string][]byte),
	}
}

// SetMainAttribute sets a main-section manifest attribute such as
// Created-By or Main-Class.
func (jw *Writer) SetMainAttribute(key, value string) {
	jw.manifest.Main[key] = value
}

// Add adds an entry. name is a slash-separated path inside the jar.
func (jw *Writer) Add(name string, data []byte) error {
	if jw.closed {
		return fmt.Errorf("jar: add %s: writer is closed", name)
	}
	if !validEntryName(name) {
		return fmt.Errorf("jar: invalid entry name %q", name)
	}
	if name == ManifestName {
		return fmt.Errorf("jar: %s is written by the writer", ManifestName)
	}
	if _, dup := jw.data[name]; dup {
		return fmt.Errorf("jar: duplicate entry %s", name)
	}
	jw.names = append(jw.names, name)
	jw.data[name] = data
	jw.manifest.setDigest(name, data)
	return nil
}

// validEntryName reports whether name is a relative slash-separated path
// with no empty, "." or ".." segments.
func validEntryName(name string) bool {
	if strings.ContainsRune(name, '\\') {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		switch seg {
		case "", ".", "..":
			return false
		}
	}
	return true
}

// AddClass adds the class called className (internal form, e.g.
// com/example/Greeter) as className.class.
func (jw *Writer) AddClass(className string, data []byte) error {
	return jw.Add(className+".class", data)
}

// Close writes the jar. The Writer cannot be used afterwards.
func (jw *Writer) Close() error {
	if jw.closed {
		return nil
	}
	jw.closed = true

	zw := zip.NewWriter(jw.w)
	mf, err := zw.Create(ManifestName)
	if err != nil {
		return fmt.Errorf("jar: creating manifest: %w", err)
	}
	if _, err := jw.manifest.WriteTo(mf); err != nil {
		return fmt.Errorf("jar: writing manifest: %w", err)
	}

	for _, name := range jw.names {
		f, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("jar: creating %s: %w", name, err)
		}
		if _, err := f.Write(jw.data[name]); err != nil {
			return fmt.Errorf("jar: writing %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("jar: finishing archive: %w", err)
	}
	return nil
}
