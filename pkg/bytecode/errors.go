package bytecode

import "fmt"

// ResolutionError is returned when an index is requested for an entry that
// was never registered in the pool.
type ResolutionError struct {
	Entry ConstantPoolEntry
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unresolved constant pool entry: %s", describeEntry(e.Entry))
}

// CapacityError is returned when a count or size does not fit the width of
// the field that stores it.
type CapacityError struct {
	Field string
	Count int
	Max   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %d exceeds maximum %d", e.Field, e.Count, e.Max)
}

// MalformedError is returned when a node is missing a value its tag requires
// or carries a value of the wrong kind.
type MalformedError struct {
	What string
}

func (e *MalformedError) Error() string {
	return "malformed structure: " + e.What
}

func malformed(format string, args ...interface{}) error {
	return &MalformedError{What: fmt.Sprintf(format, args...)}
}

func checkCount(field string, count, max int) error {
	if count > max {
		return &CapacityError{Field: field, Count: count, Max: max}
	}
	return nil
}
