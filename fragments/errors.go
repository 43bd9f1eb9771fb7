package fragments

import (
	"errors"
	"fmt"
)

// ErrTruncated is matched by every [*TruncatedError].
var ErrTruncated = errors.New("truncated input")

// TruncatedError is the error returned when a read needs more bytes
// than remain in the input.
type TruncatedError struct {
	// Offset is the input offset at which the read was attempted.
	Offset int
	// Want is the number of bytes the read needed.
	Want int
	// Have is the number of bytes that were available.
	Have int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("wanted to read %d bytes at offset %d but only got %d", e.Want, e.Offset, e.Have)
}

func (e *TruncatedError) Is(target error) bool {
	return target == ErrTruncated
}

// TerminatorError is the error returned when a string or signature
// is not followed by the mandatory NUL byte.
type TerminatorError struct {
	// Offset is the input offset of the byte that should have been
	// NUL.
	Offset int
	// Got is the byte found instead of NUL.
	Got byte
	// Prefix is the string that preceded the bad terminator.
	Prefix string
}

func (e *TerminatorError) Error() string {
	return fmt.Sprintf("expected NUL byte after the string %q but found byte %d at offset %d", e.Prefix, e.Got, e.Offset)
}

// PaddingError is the error returned when alignment padding contains
// a non-zero byte.
type PaddingError struct {
	Offset int
	Got    byte
}

func (e *PaddingError) Error() string {
	return fmt.Sprintf("non-zero padding byte 0x%02x at offset %d", e.Got, e.Offset)
}

// FlagError is the error returned when a byte order flag is neither
// 'l' nor 'B'.
type FlagError struct {
	Got byte
}

func (e *FlagError) Error() string {
	return fmt.Sprintf("invalid endianness value, expected 0x6c ('l') or 0x42 ('B') but found 0x%02x", e.Got)
}
