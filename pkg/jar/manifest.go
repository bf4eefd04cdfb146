package jar

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	// ManifestName is the path of the manifest inside a jar.
	ManifestName = "META-INF/MANIFEST.MF"

	// DigestAttribute is the per-entry manifest attribute holding the
	// base64 BLAKE3-256 digest of the entry's bytes.
	DigestAttribute = "BLAKE3-Digest"

	maxLineLength = 72
)

// Digest returns the BLAKE3-256 digest of data.
func Digest(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// Manifest is a parsed jar manifest: main attributes plus one attribute
// section per named entry.
type Manifest struct {
	Main    map[string]string
	Entries map[string]map[string]string
}

func newManifest() *Manifest {
	return &Manifest{
		Main:    map[string]string{"Manifest-Version": "1.0"},
		Entries: make(map[string]map[string]string),
	}
}

// setDigest records the digest of the entry called name.
func (m *Manifest) setDigest(name string, data []byte) {
	sum := Digest(data)
	m.Entries[name] = map[string]string{DigestAttribute: base64.StdEncoding.EncodeToString(sum[:])}
}

// WriteTo writes m in jar manifest syntax. Sections and attributes are
// sorted so equal manifests produce equal bytes.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	writeSection(&buf, "", m.Main, "Manifest-Version")
	names := make([]string, 0, len(m.Entries))
	for name := range m.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeSection(&buf, name, m.Entries[name], "")
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func writeSection(buf *bytes.Buffer, name string, attrs map[string]string, first string) {
	if name != "" {
		writeHeader(buf, "Name", name)
	}
	if v, ok := attrs[first]; ok {
		writeHeader(buf, first, v)
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		if k != first {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeHeader(buf, k, attrs[k])
	}
	buf.WriteString("\r\n")
}

// writeHeader writes "key: value", continuing lines longer than 72 bytes
// with a leading space.
func writeHeader(buf *bytes.Buffer, key, value string) {
	line := key + ": " + value
	limit := maxLineLength
	for len(line) > limit {
		buf.WriteString(line[:limit])
		buf.WriteString("\r\n ")
		line = line[limit:]
		limit = maxLineLength - 1
	}
	buf.WriteString(line)
	buf.WriteString("\r\n")
}

// ParseManifest reads a manifest written by WriteTo or by the JDK jar tool.
func ParseManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{Main: make(map[string]string), Entries: make(map[string]map[string]string)}

	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(line, " ") && len(lines) > 0 && lines[len(lines)-1] != "" {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	section := m.Main
	for i, line := range lines {
		if line == "" {
			section = nil
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, fmt.Errorf("manifest line %d: missing \": \"", i+1)
		}
		if section == nil {
			if key != "Name" {
				return nil, fmt.Errorf("manifest line %d: section must start with Name", i+1)
			}
			section = make(map[string]string)
			m.Entries[value] = section
			continue
		}
		section[key] = value
	}
	return m, nil
}
