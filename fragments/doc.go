// Package fragments provides the byte-level cursor used to construct
// and parse DBus messages.
//
// The provided encoder and decoder are very low level, and do not
// encode any DBus type semantics beyond alignment and byte order. It
// is the caller's responsibility to produce valid DBus messages using
// these tools. Package dbus builds its recursive value codec on top
// of them.
//
// An [Encoder] appends to a growable buffer and never fails. A
// [Decoder] reads from a fixed byte slice, and every read is bounds
// checked: reading past the end of the input returns a
// [*TruncatedError] and moves the cursor to the end of the input, so
// that a failed decode can never be mistaken for a partial success.
package fragments
