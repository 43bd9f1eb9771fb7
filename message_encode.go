package dbus

import (
	"github.com/danderson/dbuswire/fragments"
)

// Capabilities are the optional protocol features negotiated for the
// connection a message travels on.
type Capabilities uint32

const (
	// CapUnixFDPassing indicates that file descriptors can be
	// attached to messages.
	CapUnixFDPassing Capabilities = 1 << iota
)

const (
	// protocolVersion is the only supported DBus protocol version.
	protocolVersion = 1
	// preambleLen is the size of the fixed part of the message
	// header, up to and including the length of the header field
	// array.
	preambleLen = 16
	// bodyLenOffset is the offset of the body length in the preamble.
	bodyLenOffset = 4
)

// headerArraySig is the type of the header field array.
const headerArraySig = "a(yv)"

var headerEntrySig = Signature{"(yv)"}

// Marshal returns the wire encoding of m.
//
// File descriptors attached to m are not part of the encoding, and
// must be sent out of band. Marshal fails if m has file descriptors
// attached and caps does not include [CapUnixFDPassing].
func (m *Message) Marshal(caps Capabilities) ([]byte, error) {
	if n := len(m.files); n > 0 && caps&CapUnixFDPassing == 0 {
		return nil, headerErr(m.typ, FieldUnixFDs, "%d file descriptors attached, but file descriptor passing is not enabled", n)
	}
	if got, want := m.NumUnixFDs(), len(m.files); int(got) != want {
		return nil, headerErr(m.typ, FieldUnixFDs, "header says %d file descriptors, but %d are attached", got, want)
	}
	if err := validateHeaders(m); err != nil {
		return nil, err
	}
	if err := validateBody(m); err != nil {
		return nil, err
	}
	ord, ok := m.order.fragments()
	if !ok {
		return nil, &WireError{0, &fragments.FlagError{Got: byte(m.order)}}
	}

	e := fragments.Encoder{Order: ord}
	e.ByteOrderFlag()
	e.Uint8(byte(m.typ))
	e.Uint8(byte(m.flags))
	e.Uint8(protocolVersion)
	e.Uint32(0) // body length, patched below
	e.Uint32(m.serial)

	hdrs := Array{elem: headerEntrySig, items: make([]Value, 0, len(m.fields))}
	for _, f := range m.fields {
		hdrs.items = append(hdrs.items, Struct{Byte(f), Variant{m.headers[f]}})
	}
	if _, err := encodeValue(&e, hdrs, headerArraySig, 0); err != nil {
		return nil, err
	}
	e.Pad(8)

	bodyStart := e.Len()
	for _, v := range m.body {
		if _, err := encodeValue(&e, v, v.Type().str, 0); err != nil {
			return nil, err
		}
		if e.Len() > MaxMessageLen {
			return nil, wireErr(0, "message of at least %d bytes exceeds maximum of %d", e.Len(), MaxMessageLen)
		}
	}
	e.PutUint32At(bodyLenOffset, uint32(e.Len()-bodyStart))

	if e.Len() > MaxMessageLen {
		return nil, wireErr(0, "message of %d bytes exceeds maximum of %d", e.Len(), MaxMessageLen)
	}
	return e.Out, nil
}
