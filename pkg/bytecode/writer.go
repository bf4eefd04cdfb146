package bytecode

import (
	"bytes"
	"encoding/binary"
)

// Writer accumulates big-endian class-file data.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) U8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// Write appends raw bytes. It never fails.
func (w *Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Bytes returns the accumulated data. The slice aliases the Writer's buffer.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}
