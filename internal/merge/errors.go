package merge

import (
	"fmt"
	"strings"
)

// MissingSegmentError indicates that one or more declared segment source
// files do not exist. The merge aborts before writing anything.
type MissingSegmentError struct {
	Names []string
}

func (e *MissingSegmentError) Error() string {
	return fmt.Sprintf("missing segment files: %s", strings.Join(e.Names, ", "))
}

// RangeError indicates a segment whose offset plus length does not fit
// in the 32-bit flash address space.
type RangeError struct {
	Name   string
	Offset uint32
	Length int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("segment %q at 0x%X (%d bytes) exceeds the addressable flash range",
		e.Name, e.Offset, e.Length)
}

// OverlapError indicates that two segments' flash ranges intersect.
type OverlapError struct {
	First  string
	Second string
	Offset uint32
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("segment %q overlaps %q at 0x%X", e.Second, e.First, e.Offset)
}

// ComposeError wraps a failure while materializing or writing the merged
// image. The underlying cause is preserved verbatim.
type ComposeError struct {
	Stage string
	Err   error
}

func (e *ComposeError) Error() string {
	return fmt.Sprintf("compose failed during %s: %v", e.Stage, e.Err)
}

func (e *ComposeError) Unwrap() error {
	return e.Err
}
