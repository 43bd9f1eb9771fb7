// Package dbus implements the DBus message wire format.
//
// A [Message] is a DBus message: a type, flags, a serial, a set of
// header fields and an optional body. [Message.Marshal] produces the
// message's wire encoding, and [Unmarshal] parses it back. Neither
// function does any I/O: connections read and write blobs
// themselves, using [BytesNeeded] to find the end of each message in
// a byte stream.
//
// DBus values are represented by the [Value] types:
//
//	DBus type     Value
//	y             Byte
//	b             Bool
//	n, q          Int16, Uint16
//	i, u          Int32, Uint32
//	x, t          Int64, Uint64
//	d             Double
//	s             String
//	o             ObjectPath
//	g             Signature
//	h             Handle
//	a<T>          Array
//	(...)         Struct
//	{KV}          DictEntry, only within an Array
//	v             Variant
//
// Values are immutable once constructed, and can be shared freely
// between messages. The type of any value is given by its Type
// method, and is a [Signature].
//
// A message's body is a sequence of values whose types, concatenated,
// must equal the message's SIGNATURE header. [Message.SetBody]
// maintains that invariant. Similarly, the NUM_UNIX_FDS header must
// equal the number of file descriptors attached to the message, which
// [Message.SetUnixFDs] maintains. File descriptors travel out of band
// and are not part of the wire encoding.
//
// Each message type requires certain header fields: method calls need
// PATH and MEMBER; method returns need REPLY_SERIAL; errors need
// ERROR_NAME and REPLY_SERIAL; signals need PATH, INTERFACE and
// MEMBER, and may not use the reserved local path or interface.
// Messages that violate these rules are rejected by both Marshal and
// Unmarshal.
//
// Failures are reported with typed errors. Malformed wire data
// produces a [*WireError], which matches [ErrMalformed]. Text that
// violates its grammar produces a [*TextError], which matches
// [ErrInvalidText]. Messages with inconsistent headers produce a
// [*HeaderError], which matches [ErrStructure]. Encoding a value as
// the wrong type produces a [TypeError].
//
// Mutating a message after [Message.Lock] panics with [ErrLocked].
package dbus
