package dbus

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is matched by errors caused by malformed wire
	// data: truncated input, bad terminators or padding, unknown byte
	// order or protocol version, and exceeded size limits.
	ErrMalformed = errors.New("malformed message")
	// ErrInvalidText is matched by errors caused by strings, object
	// paths, signatures or names that violate their grammar.
	ErrInvalidText = errors.New("invalid text")
	// ErrStructure is matched by errors caused by messages whose
	// headers and body are inconsistent with each other or with the
	// message type.
	ErrStructure = errors.New("invalid message structure")
	// ErrLocked is the panic value used when a locked [Message] is
	// mutated.
	ErrLocked = errors.New("message is locked")
)

// WireError is the error returned when a message's wire encoding is
// malformed.
type WireError struct {
	// Offset is the offset in the message at which the problem was
	// found.
	Offset int
	// Err is the underlying problem.
	Err error
}

func (e *WireError) Error() string {
	return fmt.Sprintf("malformed message at offset %d: %v", e.Offset, e.Err)
}

func (e *WireError) Unwrap() error { return e.Err }

func (e *WireError) Is(target error) bool { return target == ErrMalformed }

func wireErr(offset int, format string, args ...any) error {
	return &WireError{offset, fmt.Errorf(format, args...)}
}

// TextError is the error returned when a text value does not conform
// to its grammar.
type TextError struct {
	// Offset is the offset in the message of the invalid value, or -1
	// if the value did not come from the wire.
	Offset int
	// What is the kind of text, such as "string" or "object path".
	What string
	// Value is the offending text.
	Value string
	// Reason explains what is wrong with Value.
	Reason error
}

// maxQuotedText is the longest prefix of an invalid value quoted in a
// TextError's message.
const maxQuotedText = 64

func (e *TextError) Error() string {
	v := e.Value
	if len(v) > maxQuotedText {
		v = v[:maxQuotedText] + "..."
	}
	if e.Offset >= 0 {
		return fmt.Sprintf("invalid %s %q at offset %d: %v", e.What, v, e.Offset, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.What, v, e.Reason)
}

func (e *TextError) Unwrap() error { return e.Reason }

func (e *TextError) Is(target error) bool { return target == ErrInvalidText }

func textErr(what, value string, reason error) *TextError {
	return &TextError{
		Offset: -1,
		What:   what,
		Value:  value,
		Reason: reason,
	}
}

// HeaderError is the error returned when a message's headers or body
// are inconsistent with its type.
type HeaderError struct {
	// Type is the type of the offending message.
	Type MessageType
	// Field is the header field at fault, or zero if the problem is
	// not specific to one field.
	Field HeaderField
	// Reason explains what is wrong.
	Reason string
}

func (e *HeaderError) Error() string {
	if e.Field != 0 {
		return fmt.Sprintf("invalid %s message: header %s: %s", e.Type, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s message: %s", e.Type, e.Reason)
}

func (e *HeaderError) Is(target error) bool { return target == ErrStructure }

func headerErr(typ MessageType, field HeaderField, format string, args ...any) error {
	return &HeaderError{typ, field, fmt.Sprintf(format, args...)}
}

// TypeError is the error returned when a value does not match the
// type signature it is being encoded as.
type TypeError struct {
	// Type is the DBus type that was expected.
	Type string
	// Reason is an explanation of the mismatch.
	Reason error
}

func (e TypeError) Error() string {
	return fmt.Sprintf("dbus cannot encode value as %q: %s", e.Type, e.Reason)
}

func (e TypeError) Unwrap() error {
	return e.Reason
}

func typeErr(sig string, reason string, args ...any) error {
	return TypeError{sig, fmt.Errorf(reason, args...)}
}

// CallError is the error returned from failed DBus method calls.
type CallError struct {
	// Name is the error name provided by the remote peer.
	Name string
	// Detail is the human-readable explanation of what went wrong.
	Detail string
}

func (e CallError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("call error %s", e.Name)
	}
	return fmt.Sprintf("call error %s: %s", e.Name, e.Detail)
}
