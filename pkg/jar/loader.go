// Package jar reads and writes class archives: jars, jmods and plain class
// directories.
package jar

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"

	"github.com/daimatz/classasm/pkg/classfile"
)

// jmodMagic prefixes the zip data of a JDK jmod file.
var jmodMagic = []byte("JM\x01\x00")

// ClassLoader loads parsed class files by internal name.
type ClassLoader interface {
	LoadClass(name string) (*classfile.ClassFile, error)
}

// ArchiveLoader loads classes from a jar or jmod file. A jmod keeps its
// classes under classes/; a jar keeps them at the root.
type ArchiveLoader struct {
	Path string

	mu      sync.Mutex
	cache   map[string]*classfile.ClassFile
	reader  *zip.Reader
	prefix  string
	entries map[string]*zip.File
}

// NewArchiveLoader creates a loader for the archive at path. The file is
// read on first use.
func NewArchiveLoader(path string) *ArchiveLoader {
	return &ArchiveLoader{
		Path:  path,
		cache: make(map[string]*classfile.ClassFile),
	}
}

func (l *ArchiveLoader) ensureReader() error {
	if l.reader != nil {
		return nil
	}

	data, err := os.ReadFile(l.Path)
	if err != nil {
		return fmt.Errorf("archive: reading %s: %w", l.Path, err)
	}
	if bytes.HasPrefix(data, jmodMagic) {
		data = data[len(jmodMagic):]
		l.prefix = "classes/"
	}

	l.reader, err = zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("archive: opening zip %s: %w", l.Path, err)
	}
	l.entries = make(map[string]*zip.File, len(l.reader.File))
	for _, f := range l.reader.File {
		l.entries[f.Name] = f
	}
	return nil
}

// LoadClass parses the class called name, caching the result.
func (l *ArchiveLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cf, ok := l.cache[name]; ok {
		return cf, nil
	}
	if err := l.ensureReader(); err != nil {
		return nil, err
	}

	target := l.prefix + name + ".class"
	data, err := l.readLocked(target)
	if err != nil {
		return nil, err
	}
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("archive: parsing %s: %w", name, err)
	}
	l.cache[name] = cf
	return cf, nil
}

// ClassNames lists the internal names of every class in the archive.
func (l *ArchiveLoader) ClassNames() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureReader(); err != nil {
		return nil, err
	}
	var names []string
	for _, f := range l.reader.File {
		if strings.HasPrefix(f.Name, l.prefix) && strings.HasSuffix(f.Name, ".class") {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(f.Name, l.prefix), ".class"))
		}
	}
	return names, nil
}

// VerifyDigests checks every entry against the BLAKE3 digest recorded for it
// in the manifest. Entries without a digest are reported too.
func (l *ArchiveLoader) VerifyDigests() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureReader(); err != nil {
		return err
	}
	raw, err := l.readLocked(ManifestName)
	if err != nil {
		return err
	}
	manifest, err := ParseManifest(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("archive: %s: %w", l.Path, err)
	}

	for _, f := range l.reader.File {
		if f.Name == ManifestName || strings.HasSuffix(f.Name, "/") {
			continue
		}
		want, ok := manifest.Entries[f.Name][DigestAttribute]
		if !ok {
			return fmt.Errorf("archive: %s has no %s", f.Name, DigestAttribute)
		}
		data, err := l.readLocked(f.Name)
		if err != nil {
			return err
		}
		sum := Digest(data)
		if got := base64.StdEncoding.EncodeToString(sum[:]); got != want {
			return fmt.Errorf("archive: %s digest mismatch: got %s, want %s", f.Name, got, want)
		}
	}
	return nil
}

func (l *ArchiveLoader) readLocked(name string) ([]byte, error) {
	f, ok := l.entries[name]
	if !ok {
		return nil, fmt.Errorf("archive: %s not found in %s", name, l.Path)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("archive: opening %s: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("archive: reading %s: %w", name, err)
	}
	return data, nil
}

// DirLoader loads classes from a directory tree. Classes missing from the
// directory are loaded from Parent when one is set, so a class in Dir
// shadows a parent class of the same name.
type DirLoader struct {
	Dir    string
	Parent ClassLoader

	mu    sync.Mutex
	cache map[string]*classfile.ClassFile
}

// NewDirLoader creates a DirLoader rooted at dir. parent may be nil.
func NewDirLoader(dir string, parent ClassLoader) *DirLoader {
	return &DirLoader{
		Dir:    dir,
		Parent: parent,
		cache:  make(map[string]*classfile.ClassFile),
	}
}

func (l *DirLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cf, ok := l.cache[name]; ok {
		return cf, nil
	}
	path := filepath.Join(l.Dir, filepath.FromSlash(name)+".class")
	if _, err := os.Stat(path); err != nil {
		if l.Parent != nil {
			if cf, perr := l.Parent.LoadClass(name); perr == nil {
				return cf, nil
			}
		}
		return nil, fmt.Errorf("dir: class %s not found: %w", name, err)
	}
	cf, err := classfile.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("dir: parsing %s: %w", name, err)
	}
	l.cache[name] = cf
	return cf, nil
}

// Chain tries each loader in order and returns the first class found. Nil
// loaders are skipped.
type Chain []ClassLoader

func (c Chain) LoadClass(name string) (*classfile.ClassFile, error) {
	var errs []error
	for _, l := range c {
		if l == nil {
			continue
		}
		cf, err := l.LoadClass(name)
		if err == nil {
			return cf, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("class %s not found: no loaders", name)
	}
	return nil, errs[len(errs)-1]
}
