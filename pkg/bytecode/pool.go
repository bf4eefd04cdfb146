package bytecode

import (
	"fmt"
	"math"
)

// ClassConstantPool is the constant pool of one class file under assembly.
// Entries are deduplicated by value and numbered in first-registration order
// starting at 1. A pool is not safe for concurrent use; each class file owns
// its own.
type ClassConstantPool struct {
	entries []ConstantPoolEntry // registration order
	slots   []ConstantPoolEntry // slots[i] is the entry at index i; nil for 0 and wide tails
	indices map[entryKey]uint16
}

// NewClassConstantPool creates an empty pool.
func NewClassConstantPool() *ClassConstantPool {
	return &ClassConstantPool{
		slots:   make([]ConstantPoolEntry, 1),
		indices: make(map[entryKey]uint16),
	}
}

// Register adds entry to the pool unless an equal entry is already present,
// and returns the index of the pooled value. The entries it refers to are
// registered first.
func (p *ClassConstantPool) Register(entry ConstantPoolEntry) (uint16, error) {
	if err := checkComplete(entry); err != nil {
		return 0, err
	}
	k := entry.key()
	if index, ok := p.indices[k]; ok {
		return index, nil
	}

	for _, c := range entry.components() {
		if _, err := p.Register(c); err != nil {
			return 0, err
		}
	}

	if u, ok := entry.(*UTF8); ok {
		if err := checkCount("utf8 length", len(encodeMUTF8(u.Value)), math.MaxUint16); err != nil {
			return 0, fmt.Errorf("registering %s: %w", entry, err)
		}
	}

	width := slotWidth(entry)
	// constant_pool_count is a u2, so the highest usable index is 65534.
	if used := len(p.slots) - 1 + width; used > math.MaxUint16-1 {
		return 0, &CapacityError{Field: "constant pool slots", Count: used, Max: math.MaxUint16 - 1}
	}

	index := uint16(len(p.slots))
	p.slots = append(p.slots, entry)
	for i := 1; i < width; i++ {
		p.slots = append(p.slots, nil)
	}
	p.entries = append(p.entries, entry)
	p.indices[k] = index
	return index, nil
}

// checkComplete rejects an entry that is nil or refers, at any depth, to a
// nil entry. Keys of such entries collide with those of empty values.
func checkComplete(entry ConstantPoolEntry) error {
	if isNilEntry(entry) {
		return malformed("nil constant pool entry")
	}
	for _, c := range entry.components() {
		if isNilEntry(c) {
			return malformed("%s refers to a nil entry", entry)
		}
		if err := checkComplete(c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterAll registers entries in order.
func (p *ClassConstantPool) RegisterAll(entries []ConstantPoolEntry) error {
	for _, e := range entries {
		if _, err := p.Register(e); err != nil {
			return err
		}
	}
	return nil
}

// IndexOf returns the index of a previously registered value equal to entry.
func (p *ClassConstantPool) IndexOf(entry ConstantPoolEntry) (uint16, error) {
	if isNilEntry(entry) {
		return 0, malformed("index requested for nil entry")
	}
	index, ok := p.indices[entry.key()]
	if !ok {
		return 0, &ResolutionError{Entry: entry}
	}
	return index, nil
}

// Entry returns the pooled entry at index.
func (p *ClassConstantPool) Entry(index uint16) (ConstantPoolEntry, bool) {
	if index == 0 || int(index) >= len(p.slots) || p.slots[index] == nil {
		return nil, false
	}
	return p.slots[index], true
}

// Entries returns the distinct entries in registration order.
func (p *ClassConstantPool) Entries() []ConstantPoolEntry {
	out := make([]ConstantPoolEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Len returns the number of distinct entries.
func (p *ClassConstantPool) Len() int {
	return len(p.entries)
}

// Count returns the constant_pool_count value: one more than the highest
// index in use.
func (p *ClassConstantPool) Count() uint16 {
	return uint16(len(p.slots))
}

// WriteTo writes constant_pool_count followed by every entry.
func (p *ClassConstantPool) WriteTo(w *Writer) error {
	w.U16(p.Count())
	for i, e := range p.entries {
		if err := e.writeInfo(w, p); err != nil {
			return fmt.Errorf("writing constant pool entry %d: %w", i, err)
		}
	}
	return nil
}
